package prompt

import (
	"errors"
	"testing"

	"github.com/api996/AIHeuristicLearningApp-sub001/internal/models"
)

func TestNewModuleStore_Validation(t *testing.T) {
	tests := []struct {
		name string
		mods []Module
	}{
		{"empty id", []Module{{ID: " "}}},
		{"duplicate", []Module{{ID: "a"}, {ID: "a"}}},
		{"bad phase", []Module{{ID: "a", Phase: "X"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewModuleStore(tt.mods); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestModuleStore_UpdateAndNotify(t *testing.T) {
	s, err := NewModuleStore([]Module{{ID: "a", Enabled: true, Content: "A"}})
	if err != nil {
		t.Fatal(err)
	}
	calls := 0
	s.OnChange(func() { calls++ })

	content := "A2"
	off := false
	m, err := s.Update("a", ModuleUpdate{Content: &content, Enabled: &off})
	if err != nil {
		t.Fatal(err)
	}
	if m.Content != "A2" || m.Enabled {
		t.Errorf("update not applied: %+v", m)
	}
	if calls != 1 || s.Version() != 1 {
		t.Errorf("calls=%d version=%d", calls, s.Version())
	}

	if _, err := s.Update("missing", ModuleUpdate{}); !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("expected ErrModuleNotFound, got %v", err)
	}
}

func TestModuleStore_OverrideRemoval(t *testing.T) {
	s, _ := NewModuleStore([]Module{{ID: "a", Enabled: true, ModelOverrides: map[string]bool{"gpt": false}}})
	if len(s.Enabled("gpt", models.PhaseKnow)) != 0 {
		t.Fatal("override should disable module for gpt")
	}
	if _, err := s.Update("a", ModuleUpdate{ModelOverrides: map[string]*bool{"gpt": nil}}); err != nil {
		t.Fatal(err)
	}
	if len(s.Enabled("gpt", models.PhaseKnow)) != 1 {
		t.Error("removing override should restore default")
	}
}

func TestModuleStore_ListIsCopy(t *testing.T) {
	s, _ := NewModuleStore([]Module{{ID: "a", ModelOverrides: map[string]bool{"x": true}}})
	l := s.List()
	l[0].ModelOverrides["x"] = false
	l[0].Content = "changed"
	m, _ := s.Get("a")
	if !m.ModelOverrides["x"] || m.Content != "" {
		t.Errorf("store mutated through List: %+v", m)
	}
}

func TestModule_EnabledForPhase(t *testing.T) {
	m := Module{ID: "q", Enabled: true, Phase: models.PhaseQuestion}
	if m.EnabledFor("any", models.PhaseKnow) {
		t.Error("phase-scoped module active in wrong phase")
	}
	if !m.EnabledFor("any", models.PhaseQuestion) {
		t.Error("phase-scoped module inactive in its phase")
	}
}
