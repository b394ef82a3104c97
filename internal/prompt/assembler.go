package prompt

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/api996/AIHeuristicLearningApp-sub001/internal/models"
)

// DefaultTemplate is used whenever template resolution fails.
const DefaultTemplate = `你是一位耐心、专业的学习导师，采用KWLQ教学法引导学生学习。
当前学习阶段：{{phase}}（{{phase_name}}），教学重点：{{phase_description}}。
当前时间：{{datetime}}（{{timezone}}）

{{#memory}}相关记忆：
{{memory}}{{/memory}}

{{#search_results}}参考资料：
{{search_results}}{{/search_results}}

学生输入：
{{user_input}}`

// AssemblyError reports a failure to resolve the template for a model and phase.
type AssemblyError struct {
	ModelID string
	Phase   models.Phase
	Reason  string
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assemble prompt for model %q phase %s: %s", e.ModelID, e.Phase, e.Reason)
}

const (
	templateCacheCounters = 1e4
	templateCacheMaxCost  = 8 << 20
	templateCacheBuffer   = 64
)

// AssemblerOpts holds configuration for an Assembler.
type AssemblerOpts struct {
	Location *time.Location
	Now      func() time.Time
}

// AssemblerOption defines a functional option for configuring an Assembler.
type AssemblerOption func(*AssemblerOpts)

// WithLocation sets the timezone used for date and time placeholders.
func WithLocation(loc *time.Location) AssemblerOption {
	return func(o *AssemblerOpts) {
		o.Location = loc
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) AssemblerOption {
	return func(o *AssemblerOpts) {
		o.Now = now
	}
}

// Assembler resolves and renders system prompts. Resolved templates are cached
// per model, phase and configuration version; any configuration change clears
// the cache.
type Assembler struct {
	modules   *ModuleStore
	templates *TemplateRegistry
	cache     *ristretto.Cache
	loc       *time.Location
	now       func() time.Time

	fallbacks atomic.Uint64
	closed    atomic.Bool
}

// NewAssembler creates an Assembler over modules and templates.
func NewAssembler(modules *ModuleStore, templates *TemplateRegistry, opts ...AssemblerOption) (*Assembler, error) {
	o := AssemblerOpts{Location: time.Local, Now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: templateCacheCounters,
		MaxCost:     templateCacheMaxCost,
		BufferItems: templateCacheBuffer,
	})
	if err != nil {
		return nil, fmt.Errorf("create template cache: %w", err)
	}
	if templates == nil {
		templates = NewTemplateRegistry()
	}
	a := &Assembler{modules: modules, templates: templates, cache: c, loc: o.Location, now: o.Now}
	if modules != nil {
		modules.OnChange(a.Invalidate)
	}
	templates.OnChange(a.Invalidate)
	return a, nil
}

// Version identifies the current module and template configuration.
func (a *Assembler) Version() string {
	var mv uint64
	if a.modules != nil {
		mv = a.modules.Version()
	}
	return fmt.Sprintf("m%d.t%d", mv, a.templates.Version())
}

// Invalidate drops every cached template. It is a no-op after Close.
func (a *Assembler) Invalidate() {
	if a.closed.Load() {
		return
	}
	a.cache.Clear()
	slog.Debug("Assembler.Invalidate: template cache cleared")
}

// Close releases the template cache. Templates are still resolved afterwards,
// just without caching.
func (a *Assembler) Close() {
	if a.closed.Swap(true) {
		return
	}
	a.cache.Close()
}

// Fallbacks returns how many times the default template was used.
func (a *Assembler) Fallbacks() uint64 { return a.fallbacks.Load() }

// Template returns the prepared, unsubstituted template for modelID and phase.
func (a *Assembler) Template(modelID string, phase models.Phase) (tmpl string, err error) {
	key := a.Version() + "|" + modelKey(modelID) + "|" + string(phase)
	cached := !a.closed.Load()
	if cached {
		if v, ok := a.cache.Get(key); ok {
			if s, ok := v.(string); ok {
				return s, nil
			}
		}
	}

	defer func() {
		if r := recover(); r != nil {
			tmpl, err = "", &AssemblyError{ModelID: modelID, Phase: phase, Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()

	var raw string
	if ts, ok := a.templates.Get(modelID); ok {
		raw = ts.Compose(phase)
	} else {
		if a.modules == nil {
			return "", &AssemblyError{ModelID: modelID, Phase: phase, Reason: "no prompt modules configured"}
		}
		mods := a.modules.Enabled(modelID, phase)
		parts := make([]string, 0, len(mods))
		for _, m := range mods {
			if s := strings.TrimSpace(m.Content); s != "" {
				parts = append(parts, s)
			}
		}
		raw = strings.Join(parts, "\n\n")
	}

	tmpl = prepareTemplate(raw)
	if tmpl == "" {
		return "", &AssemblyError{ModelID: modelID, Phase: phase, Reason: "empty template"}
	}
	if cached {
		a.cache.Set(key, tmpl, int64(len(tmpl)))
		a.cache.Wait()
	}
	return tmpl, nil
}

// TemplateOrDefault resolves the template, falling back to DefaultTemplate.
func (a *Assembler) TemplateOrDefault(modelID string, phase models.Phase) string {
	tmpl, err := a.Template(modelID, phase)
	if err != nil {
		a.fallbacks.Add(1)
		slog.Warn("Assembler.TemplateOrDefault: using default template", "modelID", modelID, "phase", phase, "error", err)
		return prepareTemplate(DefaultTemplate)
	}
	return tmpl
}

// Render substitutes in into a prepared template.
func (a *Assembler) Render(tmpl string, in Input) string {
	if in.Now.IsZero() {
		in.Now = a.now()
	}
	return render(tmpl, in, a.loc)
}

// Assemble resolves and renders the prompt for modelID. It always returns a
// usable prompt containing the user input.
func (a *Assembler) Assemble(modelID string, in Input) string {
	return a.Render(a.TemplateOrDefault(modelID, in.Phase), in)
}
