package tool

import (
	"fmt"
	"strings"
)

// Vendor identifies a model backend and therefore a declaration shape.
type Vendor string

const (
	Anthropic Vendor = "anthropic"
	Gemini    Vendor = "gemini"
	OpenAI    Vendor = "openai"
	Ollama    Vendor = "ollama"
)

// Vendors lists every supported backend.
var Vendors = []Vendor{Anthropic, Gemini, OpenAI, Ollama}

// ParseVendor accepts a vendor name and a few common aliases.
func ParseVendor(s string) (Vendor, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "anthropic", "claude":
		return Anthropic, nil
	case "gemini", "google":
		return Gemini, nil
	case "openai", "gpt":
		return OpenAI, nil
	case "ollama", "local":
		return Ollama, nil
	}
	return "", fmt.Errorf("unknown vendor %q", s)
}

// RequiresCredential reports whether calls to v need an API key.
func (v Vendor) RequiresCredential() bool {
	return v != Ollama
}
