package policy

import "regexp"

var (
	bearerPattern = regexp.MustCompile(`(?i)\b(bearer|authorization:?)\s+[A-Za-z0-9._\-]{8,}`)
	jwtPattern    = regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\b`)
	apiKeyPattern = regexp.MustCompile(`\b(sk|pk|rk)[-_][A-Za-z0-9_\-]{16,}\b`)
)

// RedactSecrets masks credential-shaped substrings before a string reaches
// a log line. Signing secrets and bearer tokens must never be logged.
func RedactSecrets(input string) (redacted string, changed bool) {
	out := input

	// JWT redaction runs first so a "Bearer eyJ..." match does not leave
	// the token tail behind.
	next := jwtPattern.ReplaceAllString(out, "[REDACTED_TOKEN]")
	changed = changed || next != out
	out = next

	next = bearerPattern.ReplaceAllString(out, "[REDACTED_BEARER]")
	changed = changed || next != out
	out = next

	next = apiKeyPattern.ReplaceAllString(out, "[REDACTED_KEY]")
	changed = changed || next != out
	out = next

	return out, changed
}
