// Package scheduler runs the periodic maintenance jobs of the kwlq server,
// such as the classification statistics report and cache purging.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

// NewScheduler creates and starts a cron scheduler. Expressions use the
// standard five fields and also accept descriptors such as "@every 5m".
func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c, jobs: make(map[string]cron.EntryID)}
}

// AddJob schedules task under name. Adding a name twice replaces the earlier job.
func (s *Scheduler) AddJob(name, expr string, task func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.cron.AddFunc(expr, func() {
		slog.Debug("Scheduler: running job", "job", name)
		task()
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, expr, err)
	}
	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old)
	}
	s.jobs[name] = id
	slog.Info("Scheduler.AddJob: job scheduled", "job", name, "expr", expr)
	return nil
}

// RemoveJob unschedules name. It reports whether the job existed.
func (s *Scheduler) RemoveJob(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.jobs[name]
	if ok {
		s.cron.Remove(id)
		delete(s.jobs, name)
	}
	return ok
}

// Jobs returns the number of scheduled jobs.
func (s *Scheduler) Jobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Stop stops the scheduler and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("Scheduler.Stop: gave up waiting for running jobs", "error", ctx.Err())
	}
}
