package common

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// MaskedValue replaces any sensitive value in log output.
const MaskedValue = "***MASKED***"

// SensitivePattern describes a value that must not reach the logs.
type SensitivePattern struct {
	Name        string         // Pattern name (e.g., "password", "cookie")
	Regex       *regexp.Regexp // Matches sensitive data embedded in a string value
	Replacement string
	Keys        []string // Attribute keys masked outright (case-insensitive)
}

// DefaultSensitivePatterns covers credentials plus the session headers a
// replayed browser carries.
var DefaultSensitivePatterns = []SensitivePattern{
	{
		Name:        "password",
		Regex:       regexp.MustCompile(`(?i)(password|passwd|pwd)(["'\s]*[:=]["'\s]*)([^"',}\]\s&]+)`),
		Replacement: "${1}${2}" + MaskedValue,
		Keys:        []string{"password", "passwd", "pwd"},
	},
	{
		Name:        "token",
		Regex:       regexp.MustCompile(`(?i)(access[_-]?token|auth[_-]?token|api[_-]?key)(["'\s]*[:=]["'\s]*)([^"',}\]\s&]+)`),
		Replacement: "${1}${2}" + MaskedValue,
		Keys:        []string{"token", "access_token", "auth_token", "api_key", "apikey"},
	},
	{
		Name:        "authorization",
		Regex:       regexp.MustCompile(`(?i)(Bearer|Basic)\s+[A-Za-z0-9\-._~+/]+=*`),
		Replacement: "${1} " + MaskedValue,
		Keys:        []string{"authorization", "proxy-authorization"},
	},
	{
		Name:        "secret",
		Regex:       regexp.MustCompile(`(?i)(client[_-]?secret|jwt[_-]?secret)(["'\s]*[:=]["'\s]*)([^"',}\]\s&]+)`),
		Replacement: "${1}${2}" + MaskedValue,
		Keys:        []string{"secret", "client_secret", "jwt_secret"},
	},
	{
		Name: "cookie",
		Keys: []string{"cookie", "set-cookie"},
	},
}

// Masker masks sensitive attribute values. Safe for concurrent use.
type Masker struct {
	mu       sync.RWMutex
	patterns []SensitivePattern
	enabled  bool
}

// NewMasker creates a new masker with default patterns
func NewMasker() *Masker {
	return NewMaskerWithPatterns(DefaultSensitivePatterns)
}

// NewMaskerWithPatterns creates a new masker with custom patterns
func NewMaskerWithPatterns(patterns []SensitivePattern) *Masker {
	return &Masker{patterns: append([]SensitivePattern{}, patterns...), enabled: true}
}

// SetEnabled enables or disables masking
func (m *Masker) SetEnabled(enabled bool) {
	m.mu.Lock()
	m.enabled = enabled
	m.mu.Unlock()
}

// IsEnabled returns whether masking is enabled
func (m *Masker) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// AddPattern adds a pattern. When Regex is nil but Keys are set, a key=value
// regex is derived from the keys.
func (m *Masker) AddPattern(p SensitivePattern) {
	if p.Regex == nil && len(p.Keys) > 0 {
		keys := make([]string, len(p.Keys))
		for i, k := range p.Keys {
			keys[i] = regexp.QuoteMeta(k)
		}
		p.Regex = regexp.MustCompile(fmt.Sprintf(`(?i)\b(%s)(\s*[:=]\s*['"]?)([^'",\s}\]&]+)`, strings.Join(keys, "|")))
		if p.Replacement == "" {
			p.Replacement = "${1}${2}" + MaskedValue
		}
	}
	m.mu.Lock()
	m.patterns = append(m.patterns, p)
	m.mu.Unlock()
}

// IsSensitiveKey reports whether values logged under key are always masked.
func (m *Masker) IsSensitiveKey(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.patterns {
		for _, k := range p.Keys {
			if strings.EqualFold(k, key) {
				return true
			}
		}
	}
	return false
}

// MaskString masks sensitive substrings in input.
func (m *Masker) MaskString(input string) string {
	if !m.IsEnabled() {
		return input
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.patterns {
		if p.Regex != nil {
			input = p.Regex.ReplaceAllString(input, p.Replacement)
		}
	}
	return input
}

// MaskValue masks value based on its key, then on its content.
func (m *Masker) MaskValue(key string, value interface{}) interface{} {
	if !m.IsEnabled() {
		return value
	}
	if m.IsSensitiveKey(key) {
		return MaskedValue
	}
	switch v := value.(type) {
	case string:
		return m.MaskString(v)
	case []byte:
		return m.MaskString(string(v))
	case error:
		return m.MaskString(v.Error())
	default:
		return value
	}
}
