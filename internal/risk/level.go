package risk

import (
	"fmt"
	"strings"
)

// Level is the risk tier of a single tool invocation.
type Level int

const (
	// Unspecified means a tool declared no level of its own.
	Unspecified Level = iota
	Safe
	Sensitive
	Dangerous
)

func (l Level) String() string {
	switch l {
	case Unspecified:
		return "unspecified"
	case Safe:
		return "safe"
	case Sensitive:
		return "sensitive"
	case Dangerous:
		return "dangerous"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel accepts the lower-case names produced by String.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "safe":
		return Safe, nil
	case "sensitive":
		return Sensitive, nil
	case "dangerous":
		return Dangerous, nil
	}
	return Unspecified, fmt.Errorf("unknown risk level %q", s)
}

func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *Level) UnmarshalText(b []byte) error {
	v, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}
