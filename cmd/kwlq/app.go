package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/api996/AIHeuristicLearningApp-sub001/internal/genai"
	"github.com/api996/AIHeuristicLearningApp-sub001/internal/lockfile"
	"github.com/api996/AIHeuristicLearningApp-sub001/internal/paramstore"
	"github.com/api996/AIHeuristicLearningApp-sub001/internal/phase"
	"github.com/api996/AIHeuristicLearningApp-sub001/internal/prompt"
	"github.com/api996/AIHeuristicLearningApp-sub001/internal/store"
)

// app holds the wired components shared by every command.
type app struct {
	store     store.PhaseStore
	writer    *store.PhaseWriter
	pipeline  *phase.Pipeline
	modules   *prompt.ModuleStore
	templates *prompt.TemplateRegistry
	assembler *prompt.Assembler
	prompts   *prompt.Service
	lock      *lockfile.Lock
}

// buildApp opens the store and wires the classification and prompt components.
func buildApp(ctx context.Context, config Config) (*app, error) {
	a := &app{}
	dsn := resolveDSN(config)

	if store.DetectDSNType(dsn) == store.DSNTypeSQLite {
		lock, err := lockfile.Acquire(filepath.Dir(dsn))
		if err != nil {
			return nil, err
		}
		a.lock = lock
	}

	st, err := store.Open(ctx, dsn)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open phase store: %w", err)
	}
	a.store = st
	a.writer = store.NewPhaseWriter(st)

	stats := phase.NewStats()
	a.pipeline = phase.NewPipeline(
		phase.WithClassifiers(buildClassifiers(ctx, config, stats)...),
		phase.WithRecorder(a.writer),
		phase.WithStats(stats),
	)

	mods, templates, err := loadPromptConfig(config.PromptConfig)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.modules, err = prompt.NewModuleStore(mods)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("prompt modules: %w", err)
	}
	a.templates = prompt.NewTemplateRegistry()
	if err := a.templates.Replace(templates); err != nil {
		a.Close()
		return nil, fmt.Errorf("prompt templates: %w", err)
	}
	a.assembler, err = prompt.NewAssembler(a.modules, a.templates)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.prompts = prompt.NewService(a.assembler,
		prompt.NewTransitionDetector(prompt.DefaultStateCapacity, prompt.DefaultStateTTL),
		a.store, a.pipeline)

	slog.Info("kwlq: components ready", "store", store.DetectDSNType(dsn), "providers", a.pipeline.Providers(), "modules", len(mods))
	return a, nil
}

// buildClassifiers creates provider classifiers in priority order.
func buildClassifiers(ctx context.Context, config Config, stats *phase.Stats) []phase.Classifier {
	var getter genai.KeyGetter
	if config.ParamPrefix != "" {
		ps, err := paramstore.NewFromEnvironment(ctx)
		if err != nil {
			slog.Warn("buildClassifiers: parameter store unavailable, using environment keys only", "error", err)
		} else {
			getter = ps
		}
	}

	providers := genai.BuildProviders(ctx, providerConfigs(config), getter, config.ParamPrefix)
	classifiers := make([]phase.Classifier, 0, len(providers))
	for _, p := range providers {
		classifiers = append(classifiers, phase.NewProviderClassifier(p,
			phase.WithTimeout(config.ProviderTimeout),
			phase.WithProviderStats(stats)))
	}
	if len(classifiers) == 0 {
		slog.Warn("buildClassifiers: no providers configured, phase analysis uses the keyword heuristic only")
	}
	return classifiers
}

// loadPromptConfig returns the configured modules and templates, or the defaults.
func loadPromptConfig(path string) ([]prompt.Module, map[string]prompt.TemplateSet, error) {
	if path == "" {
		return prompt.DefaultModules(), nil, nil
	}
	cfg, err := prompt.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	mods := cfg.Modules
	if len(mods) == 0 {
		mods = prompt.DefaultModules()
	}
	return mods, cfg.Templates, nil
}

// Close flushes pending records and releases every resource.
func (a *app) Close() error {
	var errs []error
	if a.assembler != nil {
		a.assembler.Close()
	}
	if a.writer != nil {
		a.writer.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if a.lock != nil {
		if err := a.lock.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
