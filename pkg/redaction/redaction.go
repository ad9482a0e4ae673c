// Package redaction masks credentials before they reach log sinks.
// Commands and tool arguments are logged verbatim, so anything that looks
// like an API key, bearer token or password is replaced first.
package redaction

import (
	"regexp"
	"strings"
	"sync"
)

// Config holds redaction configuration.
type Config struct {
	Enabled         bool
	RedactAPIKeys   bool
	RedactPasswords bool
	CustomPatterns  []string
	Replacement     string
}

// DefaultConfig returns the default redaction configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		RedactAPIKeys:   true,
		RedactPasswords: true,
		Replacement:     "[REDACTED]",
	}
}

// Redactor masks sensitive substrings.
type Redactor struct {
	config   Config
	keys     []*regexp.Regexp
	password *regexp.Regexp
	custom   []*regexp.Regexp
}

var sensitiveKeys = []string{"api_key", "apikey", "token", "secret", "password", "authorization"}

// NewRedactor creates a Redactor. Invalid custom patterns are ignored.
func NewRedactor(config Config) *Redactor {
	if config.Replacement == "" {
		config.Replacement = "[REDACTED]"
	}
	r := &Redactor{
		config: config,
		keys: []*regexp.Regexp{
			regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-_]{20,}`),
			regexp.MustCompile(`sk-(?:proj-)?[a-zA-Z0-9\-_]{20,}`),
			regexp.MustCompile(`(?i)bearer\s+([a-zA-Z0-9_\-\.]{20,})`),
			regexp.MustCompile(`(?i)(api[_-]?key|auth[_-]?token|access[_-]?token|secret[_-]?key)\s*[=:]\s*['"]?([a-zA-Z0-9_\-\.]{16,})['"]?`),
			regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
		},
		password: regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*['"]?([^'"\s]{4,})['"]?`),
	}
	for _, pattern := range config.CustomPatterns {
		if re, err := regexp.Compile(pattern); err == nil {
			r.custom = append(r.custom, re)
		}
	}
	return r
}

// Redact applies all configured rules to input.
func (r *Redactor) Redact(input string) string {
	if !r.config.Enabled || input == "" {
		return input
	}
	out := input
	if r.config.RedactAPIKeys {
		for _, re := range r.keys {
			out = r.replace(re, out)
		}
	}
	if r.config.RedactPasswords {
		out = r.replace(r.password, out)
	}
	for _, re := range r.custom {
		out = re.ReplaceAllString(out, r.config.Replacement)
	}
	return out
}

// replace masks only the captured groups when the pattern has any,
// keeping the "api_key=" style prefix readable.
func (r *Redactor) replace(re *regexp.Regexp, input string) string {
	return re.ReplaceAllStringFunc(input, func(match string) string {
		sub := re.FindStringSubmatch(match)
		if len(sub) <= 1 {
			return r.config.Replacement
		}
		secret := sub[len(sub)-1]
		if secret == "" {
			return r.config.Replacement
		}
		return strings.Replace(match, secret, r.config.Replacement, 1)
	})
}

// RedactFields returns a copy of fields with sensitive values masked.
func (r *Redactor) RedactFields(fields map[string]any) map[string]any {
	if !r.config.Enabled || fields == nil {
		return fields
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if isSensitiveKey(k) {
			out[k] = r.config.Replacement
			continue
		}
		if s, ok := v.(string); ok {
			out[k] = r.Redact(s)
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, k := range sensitiveKeys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

var (
	globalMu       sync.RWMutex
	globalRedactor = NewRedactor(DefaultConfig())
)

// SetGlobalConfig replaces the process-wide redactor.
func SetGlobalConfig(config Config) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalRedactor = NewRedactor(config)
}

// Redact uses the process-wide redactor.
func Redact(input string) string {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalRedactor.Redact(input)
}

// RedactFields uses the process-wide redactor.
func RedactFields(fields map[string]any) map[string]any {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalRedactor.RedactFields(fields)
}
