// Package store persists the latest KWLQ phase of each conversation.
//
// Backends share the PhaseStore interface: an in-memory map for tests and
// heuristic-only deployments, SQLite for single-instance deployments, Postgres
// and DynamoDB for shared state. PhaseWriter decouples the classification path
// from backend latency.
package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/api996/AIHeuristicLearningApp-sub001/internal/models"
)

// ErrDSNNotSet is returned when a persistent store is created without a DSN.
var ErrDSNNotSet = errors.New("database DSN not set")

// PhaseStore is the sink and reader for per-conversation phase records.
type PhaseStore interface {
	// SavePhase upserts rec as the latest phase of its conversation. Records
	// older than the stored one are ignored.
	SavePhase(ctx context.Context, rec models.PhaseRecord) error
	// LatestPhase returns the stored record, or nil if the conversation has none.
	LatestPhase(ctx context.Context, conversationID int64) (*models.PhaseRecord, error)
	Close() error
}

// DSN types.
const (
	DSNTypeMemory   = "memory"
	DSNTypeSQLite   = "sqlite"
	DSNTypePostgres = "postgres"
	DSNTypeDynamoDB = "dynamodb"
)

// DynamoDBScheme prefixes DynamoDB table DSNs, e.g. dynamodb://kwlq-phases.
const DynamoDBScheme = "dynamodb://"

// Opts holds configuration for persistent stores.
type Opts struct {
	DSN string
}

// Option defines a functional option for configuring a store.
type Option func(*Opts)

// WithDSN sets the data source name.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType classifies dsn as memory, postgres, dynamodb or sqlite.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	lower := strings.ToLower(d)
	switch {
	case d == "" || lower == ":memory:" || lower == "memory":
		return DSNTypeMemory
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DSNTypePostgres
	case strings.Contains(lower, "host=") && strings.Contains(lower, "dbname="):
		return DSNTypePostgres
	case strings.HasPrefix(lower, DynamoDBScheme):
		return DSNTypeDynamoDB
	default:
		return DSNTypeSQLite
	}
}

// Open creates the backend selected by dsn.
func Open(ctx context.Context, dsn string) (PhaseStore, error) {
	typ := DetectDSNType(dsn)
	slog.Debug("store.Open: opening phase store", "type", typ)
	switch typ {
	case DSNTypeMemory:
		return NewInMemoryStore(), nil
	case DSNTypePostgres:
		return NewPostgresStore(WithDSN(dsn))
	case DSNTypeDynamoDB:
		return NewDynamoStoreFromEnvironment(ctx, strings.TrimPrefix(strings.TrimSpace(dsn), DynamoDBScheme))
	default:
		return NewSQLiteStore(WithDSN(dsn))
	}
}

// InMemoryStore keeps phase records in a map.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[int64]models.PhaseRecord
}

var _ PhaseStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[int64]models.PhaseRecord)}
}

// SavePhase stores rec unless a newer record exists.
func (s *InMemoryStore) SavePhase(_ context.Context, rec models.PhaseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.records[rec.ConversationID]; ok && cur.Timestamp.After(rec.Timestamp) {
		return nil
	}
	s.records[rec.ConversationID] = rec
	return nil
}

// LatestPhase returns the stored record for conversationID.
func (s *InMemoryStore) LatestPhase(_ context.Context, conversationID int64) (*models.PhaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[conversationID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }

// normalizeTimestamp fills a missing timestamp and drops the monotonic reading.
func normalizeTimestamp(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Round(0)
}
