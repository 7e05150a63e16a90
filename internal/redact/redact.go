// Package redact scrubs sensitive data from text and from arbitrarily
// nested metadata values before anything reaches disk.
package redact

import "regexp"

// rule pairs a compiled pattern with its replacement marker.
type rule struct {
	re   *regexp.Regexp
	repl string
}

// Ordering matters: PEM blocks and JWTs are matched before the generic
// patterns that could otherwise clip them, and the key=value catch-all
// runs last.
var rules = []rule{
	{regexp.MustCompile(`(?s)-----BEGIN (?:RSA |EC |DSA )?PRIVATE KEY-----.*?-----END (?:RSA |EC |DSA )?PRIVATE KEY-----`), "[REDACTED_PRIVATE_KEY]"},
	{regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`), "[REDACTED_JWT]"},
	{regexp.MustCompile(`sk-proj-[a-zA-Z0-9_-]{32,}`), "[REDACTED_API_KEY]"},
	{regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`), "[REDACTED_API_KEY]"},
	{regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`), "[REDACTED_API_KEY]"},
	{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "[REDACTED_AWS_KEY]"},
	{regexp.MustCompile(`\bgh[pos]_[a-zA-Z0-9]{20,}`), "[REDACTED_GITHUB_TOKEN]"},
	{regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-._~+/]+`), "[REDACTED_BEARER_TOKEN]"},
	{regexp.MustCompile(`(^|[\s"'=:])[A-Za-z0-9/+]{40}($|[\s"'])`), "${1}[REDACTED_AWS_SECRET]${2}"},
	{regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret|password|token)\s*[=:]\s*['"]?[^\s'"]+`), "${1}=[REDACTED]"},
}

// String applies all redaction patterns to s.
func String(s string) string {
	if s == "" {
		return s
	}
	for _, r := range rules {
		s = r.re.ReplaceAllString(s, r.repl)
	}
	return s
}

// Value walks any decoded-JSON shape (string, map, slice, scalar) and
// redacts every string it finds. Non-string scalars pass through
// untouched. The input is not mutated.
func Value(v any) any {
	switch x := v.(type) {
	case string:
		return String(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = Value(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = Value(val)
		}
		return out
	case []string:
		out := make([]string, len(x))
		for i, s := range x {
			out[i] = String(s)
		}
		return out
	default:
		return v
	}
}

// Map redacts a metadata map, returning a new map. Nil stays nil.
func Map(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return Value(m).(map[string]any)
}
