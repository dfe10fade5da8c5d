package carriers

import (
	"reflect"
	"testing"
)

func TestRegexExtractorText(t *testing.T) {
	body := `<root><service-code>DOM.EP</service-code><due> 9.50 </due></root>`
	e := NewRegexExtractor()

	code, ok := e.Text(body, "service-code")
	if !ok || code != "DOM.EP" {
		t.Fatalf("expected DOM.EP, got %q (ok=%v)", code, ok)
	}

	due, ok := e.Text(body, "due")
	if !ok || due != "9.50" {
		t.Fatalf("expected trimmed 9.50, got %q", due)
	}

	if _, ok := e.Text(body, "missing"); ok {
		t.Fatalf("expected miss for absent element")
	}
}

func TestRegexExtractorNamespacePrefix(t *testing.T) {
	body := `<rat:price-quote><rat:service-code>DOM.RP</rat:service-code></rat:price-quote>`
	e := NewRegexExtractor()

	code, ok := e.Text(body, "service-code")
	if !ok || code != "DOM.RP" {
		t.Fatalf("expected namespaced match, got %q (ok=%v)", code, ok)
	}
}

func TestRegexExtractorAttributesIgnored(t *testing.T) {
	body := `<due currency="CAD">12.34</due>`
	e := NewRegexExtractor()

	due, ok := e.Text(body, "due")
	if !ok || due != "12.34" {
		t.Fatalf("expected 12.34 despite attributes, got %q", due)
	}
}

func TestRegexExtractorBlocks(t *testing.T) {
	body := `<quotes>
		<price-quote><service-code>DOM.RP</service-code></price-quote>
		<price-quote><service-code>DOM.EP</service-code></price-quote>
	</quotes>`
	e := NewRegexExtractor()

	blocks := e.Blocks(body, "price-quote")
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}

	var seen []string
	for _, block := range blocks {
		code, ok := e.Text(block, "service-code")
		if !ok {
			t.Fatalf("block missing service-code: %q", block)
		}
		seen = append(seen, code)
	}
	if !reflect.DeepEqual(seen, []string{"DOM.RP", "DOM.EP"}) {
		t.Fatalf("unexpected codes %v", seen)
	}
}

func TestRegexExtractorMultilineContent(t *testing.T) {
	body := "<description>line one\nline two</description>"
	e := NewRegexExtractor()

	text, ok := e.Text(body, "description")
	if !ok || text != "line one\nline two" {
		t.Fatalf("expected multiline match, got %q", text)
	}
}
