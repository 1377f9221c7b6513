package risk

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// Entry is one classification decision.
type Entry struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args"`
	Level  Level          `json:"level"`
	Reason string         `json:"reason"`
	At     time.Time      `json:"at"`
}

// Audit is an append-only trail of classifications.
type Audit struct {
	mu      sync.Mutex
	entries []Entry
}

func NewAudit() *Audit { return &Audit{} }

func (a *Audit) append(e Entry) {
	a.mu.Lock()
	a.entries = append(a.entries, e)
	a.mu.Unlock()
}

// Len reports how many decisions have been recorded.
func (a *Audit) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Recent returns up to n of the newest entries, oldest first.
func (a *Audit) Recent(n int) []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n <= 0 {
		return nil
	}
	start := len(a.entries) - n
	if start < 0 {
		start = 0
	}
	out := make([]Entry, len(a.entries)-start)
	copy(out, a.entries[start:])
	return out
}

const redacted = "[REDACTED]"

var sensitiveKeys = []string{
	"password", "passwd", "secret", "token", "api_key", "apikey",
	"authorization", "credential", "private_key",
}

var secretValues = []*regexp.Regexp{
	regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`ghp_[a-zA-Z0-9]{36,}`),
	regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
	regexp.MustCompile(`AIza[A-Za-z0-9_-]{35}`),
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`),
	regexp.MustCompile(`(?s)-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----.*?-----END (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
}

// Redact returns a deep copy of args with sensitive keys and embedded
// secrets replaced.
func Redact(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if isSensitiveKey(k) {
			out[k] = redacted
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch t := v.(type) {
	case string:
		for _, re := range secretValues {
			t = re.ReplaceAllString(t, redacted)
		}
		return t
	case map[string]any:
		return Redact(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = redactValue(e)
		}
		return out
	default:
		return v
	}
}

func isSensitiveKey(k string) bool {
	lower := strings.ToLower(k)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
