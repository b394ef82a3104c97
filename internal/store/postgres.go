package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/api996/AIHeuristicLearningApp-sub001/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists phase records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ PhaseStore = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, ErrDSNNotSet
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// SavePhase upserts rec unless the stored record is newer.
func (s *PostgresStore) SavePhase(ctx context.Context, rec models.PhaseRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_phases (conversation_id, record_id, phase, summary, confidence, source, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (conversation_id) DO UPDATE SET
			record_id = EXCLUDED.record_id,
			phase = EXCLUDED.phase,
			summary = EXCLUDED.summary,
			confidence = EXCLUDED.confidence,
			source = EXCLUDED.source,
			updated_at = EXCLUDED.updated_at
		WHERE EXCLUDED.updated_at >= conversation_phases.updated_at`,
		rec.ConversationID, rec.ID, string(rec.Phase), rec.Summary, rec.Confidence, rec.Source, normalizeTimestamp(rec.Timestamp))
	if err != nil {
		slog.Error("PostgresStore SavePhase failed", "error", err, "conversationID", rec.ConversationID)
		return fmt.Errorf("failed to save phase for conversation %d: %w", rec.ConversationID, err)
	}
	slog.Debug("PostgresStore SavePhase succeeded", "conversationID", rec.ConversationID, "phase", rec.Phase)
	return nil
}

// LatestPhase returns the stored record, or nil if none exists.
func (s *PostgresStore) LatestPhase(ctx context.Context, conversationID int64) (*models.PhaseRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, record_id, phase, summary, confidence, source, updated_at
		FROM conversation_phases WHERE conversation_id = $1`, conversationID)
	rec, err := scanPhaseRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore LatestPhase failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to load phase for conversation %d: %w", conversationID, err)
	}
	return rec, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
