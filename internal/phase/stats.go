package phase

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Stats counts classification activity. A nil *Stats discards all updates.
type Stats struct {
	requests           atomic.Uint64
	successes          atomic.Uint64
	failures           atomic.Uint64
	timeouts           atomic.Uint64
	cacheHits          atomic.Uint64
	heuristicFallbacks atomic.Uint64
	dedupedCalls       atomic.Uint64

	mu         sync.Mutex
	byProvider map[string]*ProviderCounts
}

// ProviderCounts are the counters of a single provider.
type ProviderCounts struct {
	Requests  uint64 `json:"requests"`
	Successes uint64 `json:"successes"`
	Failures  uint64 `json:"failures"`
	Timeouts  uint64 `json:"timeouts"`
}

// StatsSnapshot is a copy of the counters at a point in time.
type StatsSnapshot struct {
	Requests           uint64                    `json:"requests"`
	Successes          uint64                    `json:"successes"`
	Failures           uint64                    `json:"failures"`
	Timeouts           uint64                    `json:"timeouts"`
	CacheHits          uint64                    `json:"cacheHits"`
	HeuristicFallbacks uint64                    `json:"heuristicFallbacks"`
	DedupedCalls       uint64                    `json:"dedupedCalls"`
	Providers          map[string]ProviderCounts `json:"providers"`
}

// NewStats returns an empty counter set.
func NewStats() *Stats {
	return &Stats{byProvider: make(map[string]*ProviderCounts)}
}

func (s *Stats) provider(name string) *ProviderCounts {
	pc, ok := s.byProvider[name]
	if !ok {
		pc = &ProviderCounts{}
		s.byProvider[name] = pc
	}
	return pc
}

func (s *Stats) recordRequest(name string) {
	if s == nil {
		return
	}
	s.requests.Add(1)
	s.mu.Lock()
	s.provider(name).Requests++
	s.mu.Unlock()
}

func (s *Stats) recordSuccess(name string) {
	if s == nil {
		return
	}
	s.successes.Add(1)
	s.mu.Lock()
	s.provider(name).Successes++
	s.mu.Unlock()
}

func (s *Stats) recordFailure(name string, timeout bool) {
	if s == nil {
		return
	}
	s.failures.Add(1)
	if timeout {
		s.timeouts.Add(1)
	}
	s.mu.Lock()
	pc := s.provider(name)
	pc.Failures++
	if timeout {
		pc.Timeouts++
	}
	s.mu.Unlock()
}

func (s *Stats) recordCacheHit() {
	if s != nil {
		s.cacheHits.Add(1)
	}
}

func (s *Stats) recordHeuristic() {
	if s != nil {
		s.heuristicFallbacks.Add(1)
	}
}

func (s *Stats) recordDeduped() {
	if s != nil {
		s.dedupedCalls.Add(1)
	}
}

// Snapshot copies the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	if s == nil {
		return StatsSnapshot{Providers: map[string]ProviderCounts{}}
	}
	snap := StatsSnapshot{
		Requests:           s.requests.Load(),
		Successes:          s.successes.Load(),
		Failures:           s.failures.Load(),
		Timeouts:           s.timeouts.Load(),
		CacheHits:          s.cacheHits.Load(),
		HeuristicFallbacks: s.heuristicFallbacks.Load(),
		DedupedCalls:       s.dedupedCalls.Load(),
	}
	s.mu.Lock()
	snap.Providers = make(map[string]ProviderCounts, len(s.byProvider))
	for name, pc := range s.byProvider {
		snap.Providers[name] = *pc
	}
	s.mu.Unlock()
	return snap
}

// Report logs the current counters.
func (s *Stats) Report() {
	snap := s.Snapshot()
	slog.Info("phase classification stats",
		"requests", snap.Requests,
		"successes", snap.Successes,
		"failures", snap.Failures,
		"timeouts", snap.Timeouts,
		"cacheHits", snap.CacheHits,
		"heuristicFallbacks", snap.HeuristicFallbacks,
		"dedupedCalls", snap.DedupedCalls)
	for name, pc := range snap.Providers {
		slog.Info("phase classification provider stats", "provider", name, "requests", pc.Requests, "successes", pc.Successes, "failures", pc.Failures, "timeouts", pc.Timeouts)
	}
}
