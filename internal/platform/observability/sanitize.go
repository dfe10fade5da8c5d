package observability

import (
	"strings"
	"unicode"
)

const defaultFieldLimit = 256

// sanitizeString strips control characters and caps length so attacker-shaped
// values (postal codes, order ids) cannot inject log lines.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultFieldLimit
	}
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t':
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	runes := []rune(cleaned)
	if len(runes) > limit {
		return string(runes[:limit])
	}
	return cleaned
}

// SanitizeRoute bounds the route label recorded on request logs and spans.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

// SanitizeMethod bounds the HTTP method label.
func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}

// SanitizeUserID caps merchant identifiers to limit PII spread in logs.
func SanitizeUserID(uid string) string {
	if uid == "" {
		return ""
	}
	return sanitizeString(uid, 64)
}

// RedactCredential masks carrier secrets (OAuth tokens, SOAP passwords,
// shipper numbers) before they reach log output. Short values are fully
// masked; longer ones keep a two-character prefix so operators can tell
// rotated credentials apart.
func RedactCredential(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(value) < 8 {
		return "***"
	}
	return value[:2] + "***"
}

// credentialKey reports whether a structured log field is likely to carry a
// secret and must be redacted.
func credentialKey(key string) bool {
	key = strings.ToLower(key)
	for _, marker := range []string{"token", "secret", "password", "authorization", "credential"} {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}

// RedactFields returns a copy of the field map with credential-shaped string
// values masked. Non-string values under credential keys are dropped entirely.
func RedactFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return fields
	}
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		if !credentialKey(key) {
			out[key] = value
			continue
		}
		if s, ok := value.(string); ok {
			out[key] = RedactCredential(s)
		}
	}
	return out
}
