package logging

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"aegis-hq/firewall/pkg/config"
)

// Redactor redacts PII (Personally Identifiable Information) from log fields.
type Redactor struct {
	patterns []*redactPattern
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Common PII pattern names.
const (
	PatternAPIKey      = "api_key"
	PatternEmail       = "email"
	PatternSSN         = "ssn"
	PatternCreditCard  = "credit_card"
	PatternIPv4        = "ipv4"
	PatternIPv6        = "ipv6"
	PatternPhone       = "phone"
	PatternPassword    = "password"
	PatternBearerToken = "bearer_token"
)

var defaultPatterns = map[string]struct {
	regex       string
	replacement string
}{
	PatternAPIKey: {
		regex:       `(sk-[a-zA-Z0-9]+|api[-_]?key[-_:]\s*[a-zA-Z0-9]+)`,
		replacement: "sk-***",
	},
	PatternEmail: {
		regex:       `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`,
		replacement: "***@***",
	},
	PatternSSN: {
		regex:       `\b\d{3}-\d{2}-\d{4}\b`,
		replacement: "***-**-****",
	},
	PatternCreditCard: {
		regex:       `\b(?:\d{4}[ -]?){3}\d{1,4}\b`,
		replacement: "****-****-****-****",
	},
	PatternIPv4: {
		regex:       `\b(?:\d{1,3}\.){3}\d{1,3}\b`,
		replacement: "*.*.*.*",
	},
	PatternIPv6: {
		regex:       `\b(?:[0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}\b`,
		replacement: "****:****:****:****:****:****:****:****",
	},
	PatternPhone: {
		regex:       `\(\d{3}\)\s?\d{3}-\d{4}\b`,
		replacement: "(***) ***-****",
	},
	PatternBearerToken: {
		regex:       `Bearer\s+[a-zA-Z0-9\-._~+/]+=*`,
		replacement: "Bearer ***",
	},
	PatternPassword: {
		regex:       `(password|passwd|pwd)[:=]\s*[^\s]+`,
		replacement: "$1: ***",
	},
}

// sensitiveKeys are attribute names whose values are always masked.
var sensitiveKeys = []string{
	"password", "passwd", "pwd",
	"secret", "token", "api_key", "apikey",
	"auth", "authorization",
	"ssn", "social_security",
	"credit_card", "creditcard",
	"private_key", "privatekey",
}

// outputKeys are attribute names carrying model output.
var outputKeys = []string{"output_text", "output"}

// NewRedactor creates a Redactor with the default patterns plus custom ones.
// A custom pattern with a default pattern's name replaces it. Patterns are
// applied in name order.
func NewRedactor(customPatterns []config.RedactPattern) (*Redactor, error) {
	compiled := make(map[string]*redactPattern, len(defaultPatterns)+len(customPatterns))
	for name, p := range defaultPatterns {
		compiled[name] = &redactPattern{
			name:        name,
			regex:       regexp.MustCompile(p.regex),
			replacement: p.replacement,
		}
	}
	for _, p := range customPatterns {
		regex, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid redact pattern %q: %w", p.Name, err)
		}
		compiled[p.Name] = &redactPattern{
			name:        p.Name,
			regex:       regex,
			replacement: p.Replacement,
		}
	}

	names := make([]string, 0, len(compiled))
	for name := range compiled {
		names = append(names, name)
	}
	sort.Strings(names)

	r := &Redactor{patterns: make([]*redactPattern, 0, len(names))}
	for _, name := range names {
		r.patterns = append(r.patterns, compiled[name])
	}
	return r, nil
}

// Patterns returns the names of the active patterns.
func (r *Redactor) Patterns() []string {
	names := make([]string, len(r.patterns))
	for i, p := range r.patterns {
		names[i] = p.name
	}
	return names
}

// RedactString redacts PII from a string value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, pattern := range r.patterns {
		value = pattern.regex.ReplaceAllString(value, pattern.replacement)
	}
	return value
}

// RedactArgs redacts PII from variadic log arguments of the form
// key1, value1, key2, value2, ...
func (r *Redactor) RedactArgs(args ...any) []any {
	if len(args) == 0 {
		return args
	}

	redacted := make([]any, len(args))
	copy(redacted, args)

	for i := 1; i < len(redacted); i += 2 {
		key, _ := redacted[i-1].(string)
		switch {
		case isOutputKey(key):
			redacted[i] = redactOutput(fmt.Sprint(redacted[i]))
		case r.isSensitiveKey(key):
			redacted[i] = r.redactValue(redacted[i])
		default:
			if str, ok := redacted[i].(string); ok {
				redacted[i] = r.RedactString(str)
			}
		}
	}

	return redacted
}

// isSensitiveKey checks if a key name indicates sensitive data.
func (r *Redactor) isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}

// redactValue masks a sensitive value, keeping a short prefix of strings.
func (r *Redactor) redactValue(value any) any {
	v, ok := value.(string)
	if !ok {
		return "***"
	}
	if v == "" {
		return ""
	}
	if len(v) <= 4 {
		return "***"
	}
	return v[:4] + "***"
}

func isOutputKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, k := range outputKeys {
		if lowerKey == k {
			return true
		}
	}
	return false
}

// redactOutput replaces model output with its length.
func redactOutput(s string) string {
	return fmt.Sprintf("[redacted %d bytes]", len(s))
}

// RedactEmail redacts an email address partially (shows first char and domain).
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return email
	}

	username := parts[0]
	domain := parts[1]

	if len(username) == 0 {
		return "***@" + domain
	}

	return string(username[0]) + "***@" + domain
}

// RedactAPIKey redacts an API key, keeping only a prefix.
func RedactAPIKey(apiKey string) string {
	if len(apiKey) <= 4 {
		return "***"
	}
	return apiKey[:4] + "***"
}
