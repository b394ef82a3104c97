package prompt

import (
	"fmt"
	"strings"
	"sync"

	"github.com/api996/AIHeuristicLearningApp-sub001/internal/models"
)

// TemplateSet is a custom prompt for one model, composed of fixed fragments.
type TemplateSet struct {
	Base   string                  `json:"base" yaml:"base"`
	Phases map[models.Phase]string `json:"phases,omitempty" yaml:"phases,omitempty"`
	Style  string                  `json:"style,omitempty" yaml:"style,omitempty"`
	Policy string                  `json:"policy,omitempty" yaml:"policy,omitempty"`
}

// Compose joins base, the fragment of phase, style and policy with blank lines.
// Empty fragments are skipped.
func (ts TemplateSet) Compose(phase models.Phase) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{ts.Base, ts.Phases[phase], ts.Style, ts.Policy} {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (ts TemplateSet) validate() error {
	for p := range ts.Phases {
		if !p.Valid() {
			return fmt.Errorf("invalid phase %q", p)
		}
	}
	return nil
}

// TemplateRegistry maps model ids to custom template sets.
type TemplateRegistry struct {
	mu        sync.RWMutex
	sets      map[string]TemplateSet
	version   uint64
	listeners []func()
}

// NewTemplateRegistry creates an empty registry.
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{sets: make(map[string]TemplateSet)}
}

// Get returns the template set for modelID. Lookup is case-insensitive.
func (r *TemplateRegistry) Get(modelID string) (TemplateSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ts, ok := r.sets[modelKey(modelID)]
	return ts, ok
}

// Set registers ts for modelID.
func (r *TemplateRegistry) Set(modelID string, ts TemplateSet) error {
	if strings.TrimSpace(modelID) == "" {
		return fmt.Errorf("model id is required")
	}
	if err := ts.validate(); err != nil {
		return fmt.Errorf("template %q: %w", modelID, err)
	}
	r.mu.Lock()
	r.sets[modelKey(modelID)] = ts
	r.version++
	listeners := append([]func(){}, r.listeners...)
	r.mu.Unlock()
	notify(listeners)
	return nil
}

// Replace swaps every template set.
func (r *TemplateRegistry) Replace(sets map[string]TemplateSet) error {
	next := make(map[string]TemplateSet, len(sets))
	for id, ts := range sets {
		if err := ts.validate(); err != nil {
			return fmt.Errorf("template %q: %w", id, err)
		}
		next[modelKey(id)] = ts
	}
	r.mu.Lock()
	r.sets = next
	r.version++
	listeners := append([]func(){}, r.listeners...)
	r.mu.Unlock()
	notify(listeners)
	return nil
}

// Models lists the model ids with a custom template.
func (r *TemplateRegistry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sets))
	for id := range r.sets {
		out = append(out, id)
	}
	return out
}

// Version increases on every mutation.
func (r *TemplateRegistry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// OnChange registers fn to run after every mutation.
func (r *TemplateRegistry) OnChange(fn func()) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}
