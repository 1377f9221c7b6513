// Package tool holds tool capabilities, the registry that owns them, and the
// per-vendor projection of their declarations.
package tool

import (
	"context"
	"time"

	"github.com/moorebrett0/agentcore/internal/risk"
)

// Category groups tools by the kind of work they do. Heavy categories get a
// longer execution timeout.
type Category string

const (
	CategoryFilesystem Category = "filesystem"
	CategoryShell      Category = "shell"
	CategorySystem     Category = "system"
	CategoryDocument   Category = "document"
	CategoryBrowser    Category = "browser"
	CategoryWeb        Category = "web"
	CategoryExternal   Category = "external"
)

const (
	DefaultTimeout = 30 * time.Second
	HeavyTimeout   = 120 * time.Second
)

// Heavy reports whether tools in c are expected to do slow I/O.
func (c Category) Heavy() bool {
	return c == CategoryDocument || c == CategoryBrowser
}

// Func executes a tool. A returned error is reported to the model as text.
type Func func(ctx context.Context, input map[string]any) (string, error)

// Tool is a named capability the model can invoke.
type Tool struct {
	Name        string
	Category    Category
	Description string
	Parameters  *Schema
	Risk        risk.Level
	Execute     Func

	// Source names the provider of the tool; empty for built-ins.
	Source string
}

// Timeout returns the per-call deadline for t. Non-zero normal and heavy
// replace DefaultTimeout and HeavyTimeout.
func (t *Tool) Timeout(normal, heavy time.Duration) time.Duration {
	if t.Category.Heavy() {
		if heavy > 0 {
			return heavy
		}
		return HeavyTimeout
	}
	if normal > 0 {
		return normal
	}
	return DefaultTimeout
}

// Declaration is the vendor-shaped description of a tool sent to the model.
type Declaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  *Schema `json:"parameters"`
}
