package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// RedactPattern is a custom redaction rule.
type RedactPattern struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// Common PII pattern names.
const (
	PatternQID   = "qid"
	PatternEmail = "email"
	PatternPhone = "phone"
	PatternCard  = "card_number"
)

type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Redactor masks member identifiers in log attributes.
type Redactor struct {
	patterns []*redactPattern
}

// NewRedactor creates a Redactor with the default patterns followed by
// custom ones. Custom patterns that do not compile are skipped and returned
// by name.
func NewRedactor(custom []RedactPattern) (*Redactor, []string) {
	r := &Redactor{}

	// Order matters: card numbers before QIDs, QIDs before phone numbers.
	defaults := []struct {
		name, regex, replacement string
	}{
		{PatternEmail, `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`, "***@***"},
		{PatternCard, `\b(?:\d[ -]?){15,18}\d\b`, "****-****-****-****"},
		{PatternQID, `\b[23]\d{10}\b`, "***********"},
		{PatternPhone, `(?:\+974[-\s]?)?\b[3-7]\d{3}[-\s]?\d{4}\b`, "****-****"},
	}
	for _, d := range defaults {
		r.patterns = append(r.patterns, &redactPattern{
			name:        d.name,
			regex:       regexp.MustCompile(d.regex),
			replacement: d.replacement,
		})
	}

	var skipped []string
	for _, p := range custom {
		regex, err := regexp.Compile(p.Pattern)
		if err != nil {
			skipped = append(skipped, p.Name)
			continue
		}
		r.patterns = append(r.patterns, &redactPattern{name: p.Name, regex: regex, replacement: p.Replacement})
	}
	return r, skipped
}

// RedactString masks every pattern match in value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

var sensitiveKeys = []string{
	"member_id", "member_name", "qid", "patient", "dob",
	"card_number", "card_no", "emirates_id", "national_id",
	"password", "secret", "token",
}

// IsSensitiveKey reports whether an attribute key names member data.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// RedactAttr masks a whole value under a sensitive key and pattern matches
// in any other string. Groups are walked recursively.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch {
	case v.Kind() == slog.KindGroup:
		attrs := v.Group()
		out := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			out[i] = r.RedactAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	case IsSensitiveKey(a.Key):
		return slog.String(a.Key, "***")
	case v.Kind() == slog.KindString:
		return slog.String(a.Key, r.RedactString(v.String()))
	case v.Kind() == slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
		if items, ok := v.Any().([]string); ok {
			masked := make([]string, len(items))
			for i, s := range items {
				masked[i] = r.RedactString(s)
			}
			return slog.Any(a.Key, masked)
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}
