package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk prompt configuration.
type Config struct {
	Modules   []Module               `yaml:"modules"`
	Templates map[string]TemplateSet `yaml:"templates"`
}

// ParseConfig decodes a YAML prompt configuration.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse prompt config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig reads and parses the prompt configuration at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// Validate checks module ids and phases and template phases.
func (c *Config) Validate() error {
	if err := validateModules(c.Modules); err != nil {
		return fmt.Errorf("invalid prompt config: %w", err)
	}
	for id, ts := range c.Templates {
		if err := ts.validate(); err != nil {
			return fmt.Errorf("invalid prompt config: template %q: %w", id, err)
		}
	}
	return nil
}

// Apply replaces the contents of modules and templates. An empty module list
// keeps the current modules.
func (c *Config) Apply(modules *ModuleStore, templates *TemplateRegistry) error {
	if len(c.Modules) > 0 && modules != nil {
		if err := modules.Replace(c.Modules); err != nil {
			return err
		}
	}
	if templates != nil {
		sets := c.Templates
		if sets == nil {
			sets = map[string]TemplateSet{}
		}
		if err := templates.Replace(sets); err != nil {
			return err
		}
	}
	return nil
}

const defaultReloadDebounce = 250 * time.Millisecond

// Watcher reloads the prompt configuration when its file changes.
type Watcher struct {
	path      string
	modules   *ModuleStore
	templates *TemplateRegistry
	watcher   *fsnotify.Watcher
	debounce  time.Duration

	mu      sync.Mutex
	reloads int
	done    chan struct{}
	started bool
}

// NewWatcher creates a Watcher for path. The containing directory is watched
// so editors that replace the file on save are handled.
func NewWatcher(path string, modules *ModuleStore, templates *TemplateRegistry) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{
		path:      abs,
		modules:   modules,
		templates: templates,
		watcher:   fw,
		debounce:  defaultReloadDebounce,
		done:      make(chan struct{}),
	}, nil
}

// Start runs the event loop until ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run(ctx)
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Watcher.run: watch error", "path", w.path, "error", err)
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

// reload keeps the previous configuration when the new file is invalid.
func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		slog.Error("Watcher.reload: keeping previous prompt config", "path", w.path, "error", err)
		return
	}
	if err := cfg.Apply(w.modules, w.templates); err != nil {
		slog.Error("Watcher.reload: apply failed", "path", w.path, "error", err)
		return
	}
	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()
	slog.Info("Watcher.reload: prompt config reloaded", "path", w.path, "modules", len(cfg.Modules), "templates", len(cfg.Templates))
}

// Reloads returns how many times the configuration was reloaded.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Close stops watching and waits for the event loop to exit.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if started {
		<-w.done
	}
	return err
}
