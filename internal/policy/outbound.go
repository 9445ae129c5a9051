package policy

import (
	"regexp"
	"strings"
)

var (
	refCodePattern  = regexp.MustCompile(`(?i)\b(app[_ ]?ref[_ ]?code|reference code)[:\s]*[A-Za-z0-9\-]*\b`)
	internalErrorRe = regexp.MustCompile(`(?i)\b(backend status \d{3}|context deadline exceeded|connection refused|EOF)\b`)
)

// ShapeOutbound sanitizes a reply before it is rendered as speech.
// Tool names, reference codes and raw error text are internal machinery and
// must never reach the user; the model is instructed not to emit them, this
// is the hard boundary when it does anyway.
func ShapeOutbound(reply string, toolNames []string) string {
	out := reply
	for _, name := range toolNames {
		if strings.TrimSpace(name) == "" {
			continue
		}
		pattern := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
		out = pattern.ReplaceAllString(out, "")
		// Also catch spoken variants with underscores read as spaces.
		spoken := strings.ReplaceAll(name, "_", " ")
		if spoken != name {
			pattern = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(spoken) + `\b`)
			out = pattern.ReplaceAllString(out, "")
		}
	}
	out = refCodePattern.ReplaceAllString(out, "")
	out = internalErrorRe.ReplaceAllString(out, "")

	out = strings.Join(strings.Fields(out), " ")
	return strings.TrimSpace(out)
}
