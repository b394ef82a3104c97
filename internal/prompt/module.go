package prompt

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/api996/AIHeuristicLearningApp-sub001/internal/models"
)

// ErrModuleNotFound is returned when updating an unknown module.
var ErrModuleNotFound = errors.New("prompt module not found")

// Module is one ordered fragment of a system prompt.
type Module struct {
	ID      string `json:"id" yaml:"id"`
	Content string `json:"content" yaml:"content"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
	// Phase restricts the module to one phase; empty means every phase.
	Phase          models.Phase    `json:"phase,omitempty" yaml:"phase,omitempty"`
	ModelOverrides map[string]bool `json:"modelOverrides,omitempty" yaml:"modelOverrides,omitempty"`
}

// modelKey normalizes a model id. Model ids are case-insensitive for both
// template sets and module overrides.
func modelKey(modelID string) string {
	return strings.ToLower(strings.TrimSpace(modelID))
}

// EnabledFor reports whether the module is active for modelID and phase.
func (m Module) EnabledFor(modelID string, phase models.Phase) bool {
	if m.Phase != "" && m.Phase != phase {
		return false
	}
	key := modelKey(modelID)
	for model, v := range m.ModelOverrides {
		if modelKey(model) == key {
			return v
		}
	}
	return m.Enabled
}

// clone deep-copies m with normalized override keys.
func (m Module) clone() Module {
	if m.ModelOverrides != nil {
		o := make(map[string]bool, len(m.ModelOverrides))
		for k, v := range m.ModelOverrides {
			o[modelKey(k)] = v
		}
		m.ModelOverrides = o
	}
	return m
}

// ModuleUpdate is a partial update to a module. Nil fields are left unchanged;
// a ModelOverrides entry set to nil removes that override.
type ModuleUpdate struct {
	Content        *string          `json:"content,omitempty"`
	Enabled        *bool            `json:"enabled,omitempty"`
	ModelOverrides map[string]*bool `json:"modelOverrides,omitempty"`
}

// ModuleStore holds the ordered prompt modules and notifies listeners on change.
type ModuleStore struct {
	mu        sync.RWMutex
	modules   []Module
	version   uint64
	listeners []func()
}

// NewModuleStore creates a store seeded with mods.
func NewModuleStore(mods []Module) (*ModuleStore, error) {
	if err := validateModules(mods); err != nil {
		return nil, err
	}
	s := &ModuleStore{}
	s.modules = cloneModules(mods)
	return s, nil
}

func validateModules(mods []Module) error {
	seen := make(map[string]bool, len(mods))
	for i, m := range mods {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			return fmt.Errorf("module %d: id is required", i)
		}
		if seen[id] {
			return fmt.Errorf("module %q: duplicate id", id)
		}
		seen[id] = true
		if m.Phase != "" && !m.Phase.Valid() {
			return fmt.Errorf("module %q: invalid phase %q", id, m.Phase)
		}
		overrides := make(map[string]bool, len(m.ModelOverrides))
		for model := range m.ModelOverrides {
			k := modelKey(model)
			if k == "" {
				return fmt.Errorf("module %q: empty model id in overrides", id)
			}
			if overrides[k] {
				return fmt.Errorf("module %q: conflicting overrides for model %q", id, k)
			}
			overrides[k] = true
		}
	}
	return nil
}

func cloneModules(mods []Module) []Module {
	out := make([]Module, len(mods))
	for i, m := range mods {
		out[i] = m.clone()
	}
	return out
}

// List returns a copy of all modules in order.
func (s *ModuleStore) List() []Module {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneModules(s.modules)
}

// Get returns the module with id.
func (s *ModuleStore) Get(id string) (Module, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.modules {
		if m.ID == id {
			return m.clone(), true
		}
	}
	return Module{}, false
}

// Enabled returns the modules active for modelID and phase, in order.
func (s *ModuleStore) Enabled(modelID string, phase models.Phase) []Module {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Module
	for _, m := range s.modules {
		if m.EnabledFor(modelID, phase) {
			out = append(out, m.clone())
		}
	}
	return out
}

// Update applies upd to the module with id.
func (s *ModuleStore) Update(id string, upd ModuleUpdate) (Module, error) {
	s.mu.Lock()
	idx := -1
	for i, m := range s.modules {
		if m.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return Module{}, ErrModuleNotFound
	}
	m := s.modules[idx].clone()
	if upd.Content != nil {
		m.Content = *upd.Content
	}
	if upd.Enabled != nil {
		m.Enabled = *upd.Enabled
	}
	for model, v := range upd.ModelOverrides {
		key := modelKey(model)
		if v == nil {
			delete(m.ModelOverrides, key)
			continue
		}
		if m.ModelOverrides == nil {
			m.ModelOverrides = make(map[string]bool)
		}
		m.ModelOverrides[key] = *v
	}
	s.modules[idx] = m
	s.version++
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()

	slog.Info("ModuleStore.Update: module updated", "id", id, "enabled", m.Enabled)
	notify(listeners)
	return m.clone(), nil
}

// Replace swaps the whole module list.
func (s *ModuleStore) Replace(mods []Module) error {
	if err := validateModules(mods); err != nil {
		return err
	}
	s.mu.Lock()
	s.modules = cloneModules(mods)
	s.version++
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()

	slog.Info("ModuleStore.Replace: modules replaced", "count", len(mods))
	notify(listeners)
	return nil
}

// Version increases on every mutation.
func (s *ModuleStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// OnChange registers fn to run after every mutation.
func (s *ModuleStore) OnChange(fn func()) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func notify(listeners []func()) {
	for _, fn := range listeners {
		fn()
	}
}
