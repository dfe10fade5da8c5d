package carriers

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// FieldExtractor pulls element text out of an XML document without requiring
// callers to know how the document is parsed. The default implementation is
// regex-based, which is adequate for the handful of known Canada Post fields
// but can be swapped for a real XML parser without touching the adapter.
type FieldExtractor interface {
	// Text returns the text content of the first occurrence of element.
	Text(body, element string) (string, bool)
	// Blocks returns the inner content of every occurrence of element.
	Blocks(body, element string) []string
}

// RegexExtractor extracts fields by pattern matching. Element names are
// matched with or without a namespace prefix; attributes on the element are
// ignored. Well-formed XML with unusual attribute or CDATA layouts may defeat
// these patterns.
type RegexExtractor struct {
	mu       sync.Mutex
	compiled map[string]*regexp.Regexp
}

// NewRegexExtractor constructs a RegexExtractor with an empty pattern cache.
func NewRegexExtractor() *RegexExtractor {
	return &RegexExtractor{compiled: make(map[string]*regexp.Regexp)}
}

// Text implements FieldExtractor.
func (e *RegexExtractor) Text(body, element string) (string, bool) {
	matches := e.pattern(element).FindStringSubmatch(body)
	if len(matches) < 2 {
		return "", false
	}
	return strings.TrimSpace(matches[1]), true
}

// Blocks implements FieldExtractor.
func (e *RegexExtractor) Blocks(body, element string) []string {
	matches := e.pattern(element).FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) >= 2 {
			out = append(out, m[1])
		}
	}
	return out
}

func (e *RegexExtractor) pattern(element string) *regexp.Regexp {
	e.mu.Lock()
	defer e.mu.Unlock()
	if re, ok := e.compiled[element]; ok {
		return re
	}
	quoted := regexp.QuoteMeta(element)
	re := regexp.MustCompile(fmt.Sprintf(`(?s)<(?:[A-Za-z0-9]+:)?%s(?:\s[^>]*)?>(.*?)</(?:[A-Za-z0-9]+:)?%s>`, quoted, quoted))
	e.compiled[element] = re
	return re
}
