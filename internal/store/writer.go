package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/api996/AIHeuristicLearningApp-sub001/internal/models"
)

// Writer defaults.
const (
	DefaultWriterQueueSize   = 256
	DefaultWriterMaxAttempts = 4
	DefaultWriterBackoff     = 200 * time.Millisecond
	DefaultWriteTimeout      = 5 * time.Second
)

// WriterOpts holds configuration for a PhaseWriter.
type WriterOpts struct {
	QueueSize    int
	MaxAttempts  int
	Backoff      time.Duration
	WriteTimeout time.Duration
}

// WriterOption defines a functional option for configuring a PhaseWriter.
type WriterOption func(*WriterOpts)

// WithQueueSize bounds the number of pending records.
func WithQueueSize(n int) WriterOption {
	return func(o *WriterOpts) {
		o.QueueSize = n
	}
}

// WithMaxAttempts sets how many times a record is written before it is dropped.
func WithMaxAttempts(n int) WriterOption {
	return func(o *WriterOpts) {
		o.MaxAttempts = n
	}
}

// WithBackoff sets the base delay between attempts; it doubles per attempt.
func WithBackoff(d time.Duration) WriterOption {
	return func(o *WriterOpts) {
		o.Backoff = d
	}
}

// WithWriteTimeout bounds a single backend write.
func WithWriteTimeout(d time.Duration) WriterOption {
	return func(o *WriterOpts) {
		o.WriteTimeout = d
	}
}

// WriterStats reports PhaseWriter activity.
type WriterStats struct {
	Written uint64 `json:"written"`
	Retried uint64 `json:"retried"`
	Dropped uint64 `json:"dropped"`
	Pending int    `json:"pending"`
}

// PhaseWriter persists phase records in the background. Record never blocks:
// when the queue is full the record is dropped and logged.
type PhaseWriter struct {
	store PhaseStore
	opts  WriterOpts
	queue chan models.PhaseRecord
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	written, retried, dropped atomic.Uint64
}

// NewPhaseWriter starts a writer goroutine for store.
func NewPhaseWriter(store PhaseStore, opts ...WriterOption) *PhaseWriter {
	o := WriterOpts{
		QueueSize:    DefaultWriterQueueSize,
		MaxAttempts:  DefaultWriterMaxAttempts,
		Backoff:      DefaultWriterBackoff,
		WriteTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultWriterQueueSize
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 1
	}
	w := &PhaseWriter{
		store: store,
		opts:  o,
		queue: make(chan models.PhaseRecord, o.QueueSize),
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

// Record enqueues rec for persistence.
func (w *PhaseWriter) Record(_ context.Context, rec models.PhaseRecord) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.dropped.Add(1)
		slog.Warn("PhaseWriter.Record: writer closed, dropping record", "conversationID", rec.ConversationID)
		return
	}
	select {
	case w.queue <- rec:
	default:
		w.dropped.Add(1)
		slog.Warn("PhaseWriter.Record: queue full, dropping record", "conversationID", rec.ConversationID, "queueSize", w.opts.QueueSize)
	}
}

// Close stops accepting records and waits until pending ones are written.
func (w *PhaseWriter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()
	<-w.done
	slog.Debug("PhaseWriter.Close: drained", "written", w.written.Load(), "dropped", w.dropped.Load())
}

// Stats returns writer counters.
func (w *PhaseWriter) Stats() WriterStats {
	return WriterStats{
		Written: w.written.Load(),
		Retried: w.retried.Load(),
		Dropped: w.dropped.Load(),
		Pending: len(w.queue),
	}
}

func (w *PhaseWriter) run() {
	defer close(w.done)
	for rec := range w.queue {
		w.write(rec)
	}
}

// write retries with exponential backoff: base, 2*base, 4*base, ...
func (w *PhaseWriter) write(rec models.PhaseRecord) {
	for attempt := 0; attempt < w.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			w.retried.Add(1)
			time.Sleep(w.opts.Backoff * time.Duration(1<<(attempt-1)))
		}
		ctx, cancel := context.WithTimeout(context.Background(), w.opts.WriteTimeout)
		err := w.store.SavePhase(ctx, rec)
		cancel()
		if err == nil {
			w.written.Add(1)
			return
		}
		slog.Error("PhaseWriter.write: save failed", "conversationID", rec.ConversationID, "attempt", attempt+1, "error", err)
	}
	w.dropped.Add(1)
	slog.Error("PhaseWriter.write: giving up on record", "conversationID", rec.ConversationID, "attempts", w.opts.MaxAttempts)
}
