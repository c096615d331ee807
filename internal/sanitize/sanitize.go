package sanitize

import (
	"errors"
	"regexp"
	"strings"
)

// Context selects the transform applied after signature screening.
type Context string

const (
	ContextHTML    Context = "html"
	ContextSQL     Context = "sql"
	ContextGeneral Context = "general"
)

// ErrAttackDetected means the input matched an attack signature. The request
// fails outright: heuristically neutralizing a detected payload is
// unreliable, and the client-facing message stays vague.
var ErrAttackDetected = errors.New("attack signature detected")

var xssSignatures = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*(script|iframe|object|embed)\b`),
	regexp.MustCompile(`(?i)\b(javascript|vbscript)\s*:`),
	regexp.MustCompile(`(?i)data\s*:\s*text/html`),
	regexp.MustCompile(`(?i)<[^>]+\bon[a-z]+\s*=`),
	regexp.MustCompile(`(?i)expression\s*\(`),
}

var sqlSignatures = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bunion\s+(all\s+)?select\b`),
	regexp.MustCompile(`(?i)\bselect\s+[\w*,\s]+\s+from\b`),
	regexp.MustCompile(`(?i)\b(insert\s+into|delete\s+from|drop\s+(table|database)|truncate\s+table)\b`),
	regexp.MustCompile(`(?i)\bupdate\s+\w+\s+set\b`),
	regexp.MustCompile(`(?i)\b(or|and)\s+\d+\s*=\s*\d+`),
	regexp.MustCompile(`(?i)'\s*(or|and)\s+'[^']*'\s*=\s*'`),
	regexp.MustCompile(`(?i);\s*(drop|delete|update|insert)\b`),
	regexp.MustCompile(`(?i)\b(exec|execute)\s+(xp_|sp_)`),
}

// Scan checks a value against the XSS and SQL injection signature sets.
func Scan(value string) error {
	for _, sig := range xssSignatures {
		if sig.MatchString(value) {
			return ErrAttackDetected
		}
	}
	for _, sig := range sqlSignatures {
		if sig.MatchString(value) {
			return ErrAttackDetected
		}
	}
	return nil
}

// Clean screens the value and then applies the context transform. Detected
// attack payloads are never transformed, only rejected.
func Clean(value string, ctx Context) (string, error) {
	if err := Scan(value); err != nil {
		return "", err
	}

	switch ctx {
	case ContextHTML:
		return cleanHTML(value), nil
	case ContextSQL:
		return escapeSQL(value), nil
	default:
		return stripControl(value), nil
	}
}

// allowedTags is the formatting allow-list for the html context. Content is
// preserved; all other markup is stripped.
var allowedTags = map[string]struct{}{
	"b": {}, "i": {}, "em": {}, "strong": {}, "u": {}, "s": {},
	"p": {}, "br": {}, "blockquote": {}, "code": {}, "pre": {},
	"ul": {}, "ol": {}, "li": {}, "h2": {}, "h3": {}, "h4": {},
}

var htmlTagPattern = regexp.MustCompile(`</?([a-zA-Z][a-zA-Z0-9]*)\b[^>]*>`)

func cleanHTML(value string) string {
	return htmlTagPattern.ReplaceAllStringFunc(value, func(tag string) string {
		name := strings.ToLower(htmlTagPattern.FindStringSubmatch(tag)[1])
		if _, ok := allowedTags[name]; !ok {
			return ""
		}
		// Rebuild allowed tags bare, dropping any attributes.
		if strings.HasPrefix(tag, "</") {
			return "</" + name + ">"
		}
		return "<" + name + ">"
	})
}

// escapeSQL is defense in depth only: the data layer is expected to use
// parameterized queries.
func escapeSQL(value string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`'`, `''`,
		"\x00", "",
	)
	return replacer.Replace(value)
}

func stripControl(value string) string {
	builder := strings.Builder{}
	builder.Grow(len(value))

	for _, r := range value {
		if r < 0x20 && r != '\n' && r != '\t' {
			continue
		}
		if r == 0x7f {
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}
