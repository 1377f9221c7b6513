package tool

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// BuiltinSource is the source name used by Register.
const BuiltinSource = ""

type snapshot struct {
	byName map[string]*Tool
	order  []string
}

// Registry owns the registered tools. Readers always observe a complete
// snapshot; writers serialize on a mutex and publish a new snapshot.
type Registry struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

func NewRegistry() *Registry {
	r := &Registry{}
	r.snap.Store(&snapshot{byName: map[string]*Tool{}})
	return r
}

// Register adds t to the built-in source. Registering an existing name
// replaces the earlier entry.
func (r *Registry) Register(t *Tool) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("tool: register requires a name")
	}
	if t.Execute == nil {
		return fmt.Errorf("tool: %s has no execute function", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	next := cur.clone()
	cp := *t
	cp.Source = BuiltinSource
	next.put(&cp)
	r.snap.Store(next)
	return nil
}

// ReplaceSource removes every tool attributed to source and installs tools in
// one step.
func (r *Registry) ReplaceSource(source string, tools []*Tool) error {
	for _, t := range tools {
		if t == nil || t.Name == "" || t.Execute == nil {
			return fmt.Errorf("tool: source %q has an incomplete tool", source)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	next := &snapshot{byName: make(map[string]*Tool, len(cur.byName)+len(tools))}
	for _, name := range cur.order {
		if t := cur.byName[name]; t.Source != source {
			next.put(t)
		}
	}
	for _, t := range tools {
		cp := *t
		cp.Source = source
		next.put(&cp)
	}
	r.snap.Store(next)

	slog.Debug("tool: source replaced", "source", source, "tools", len(tools))
	return nil
}

// RemoveSource drops every tool attributed to source.
func (r *Registry) RemoveSource(source string) {
	_ = r.ReplaceSource(source, nil)
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.snap.Load().byName[name]
	return t, ok
}

// List returns the registered tools in registration order.
func (r *Registry) List() []*Tool {
	s := r.snap.Load()
	out := make([]*Tool, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name])
	}
	return out
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	s := r.snap.Load()
	names := append([]string(nil), s.order...)
	sort.Strings(names)
	return names
}

// Len reports the number of registered tools.
func (r *Registry) Len() int { return len(r.snap.Load().order) }

func (s *snapshot) clone() *snapshot {
	out := &snapshot{
		byName: make(map[string]*Tool, len(s.byName)+1),
		order:  append([]string(nil), s.order...),
	}
	for k, v := range s.byName {
		out.byName[k] = v
	}
	return out
}

func (s *snapshot) put(t *Tool) {
	if _, exists := s.byName[t.Name]; !exists {
		s.order = append(s.order, t.Name)
	}
	s.byName[t.Name] = t
}
