package prompt

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/api996/AIHeuristicLearningApp-sub001/internal/models"
)

const sampleConfig = `
modules:
  - id: role
    enabled: true
    content: "你是导师。"
  - id: wonder
    enabled: true
    phase: W
    content: "鼓励提问。"
  - id: experimental
    enabled: false
    content: "实验模块"
    modelOverrides:
      deepseek-chat: true
templates:
  claude-3-5-haiku-latest:
    base: "Claude base"
    phases:
      Q: "Question fragment"
    policy: "Be concise."
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if len(cfg.Modules) != 3 {
		t.Fatalf("expected 3 modules, got %d", len(cfg.Modules))
	}
	if cfg.Modules[1].Phase != models.PhaseWonder {
		t.Errorf("phase not decoded: %+v", cfg.Modules[1])
	}
	if !cfg.Modules[2].ModelOverrides["deepseek-chat"] {
		t.Errorf("overrides not decoded: %+v", cfg.Modules[2])
	}
	ts := cfg.Templates["claude-3-5-haiku-latest"]
	if ts.Phases[models.PhaseQuestion] != "Question fragment" || ts.Policy != "Be concise." {
		t.Errorf("template not decoded: %+v", ts)
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"syntax":         "modules: [",
		"duplicate id":   "modules:\n  - id: a\n  - id: a\n",
		"bad phase":      "modules:\n  - id: a\n    phase: Z\n",
		"template phase": "templates:\n  m:\n    phases:\n      X: y\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseConfig([]byte(data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestConfig_Apply(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	if err != nil {
		t.Fatal(err)
	}
	ms, _ := NewModuleStore(DefaultModules())
	reg := NewTemplateRegistry()
	if err := cfg.Apply(ms, reg); err != nil {
		t.Fatal(err)
	}
	if len(ms.List()) != 3 {
		t.Errorf("modules not replaced: %d", len(ms.List()))
	}
	if _, ok := reg.Get("Claude-3-5-Haiku-Latest"); !ok {
		t.Error("template not registered")
	}

	empty := &Config{}
	if err := empty.Apply(ms, reg); err != nil {
		t.Fatal(err)
	}
	if len(ms.List()) != 3 || len(reg.Models()) != 0 {
		t.Errorf("empty config should keep modules and clear templates")
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	ms, _ := NewModuleStore(cfg.Modules)
	reg := NewTemplateRegistry()
	a, err := NewAssembler(ms, reg)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	w, err := NewWatcher(path, ms, reg)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.debounce = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Close()

	if err := os.WriteFile(path, []byte("modules: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if len(ms.List()) != 3 {
		t.Fatal("invalid config must not replace modules")
	}

	updated := "modules:\n  - id: only\n    enabled: true\n    content: \"RELOADED\"\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if w.Reloads() > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if w.Reloads() == 0 {
		t.Fatal("config was not reloaded")
	}
	if out := a.Assemble("gpt", Input{UserInput: "x"}); !strings.Contains(out, "RELOADED") {
		t.Errorf("assembler did not pick up reloaded modules:\n%s", out)
	}
}
