package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/api996/AIHeuristicLearningApp-sub001/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists phase records in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ PhaseStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and migrates) the SQLite database at the DSN path,
// creating its directory if needed.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, ErrDSNNotSet
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// SQLite serializes writers; one connection avoids "database is locked".
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite phase store ready", "path", cfg.DSN)
	return &SQLiteStore{db: db}, nil
}

// SavePhase upserts rec unless the stored record is newer.
func (s *SQLiteStore) SavePhase(ctx context.Context, rec models.PhaseRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_phases (conversation_id, record_id, phase, summary, confidence, source, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			record_id = excluded.record_id,
			phase = excluded.phase,
			summary = excluded.summary,
			confidence = excluded.confidence,
			source = excluded.source,
			updated_at = excluded.updated_at
		WHERE excluded.updated_at >= conversation_phases.updated_at`,
		rec.ConversationID, rec.ID, string(rec.Phase), rec.Summary, rec.Confidence, rec.Source, normalizeTimestamp(rec.Timestamp))
	if err != nil {
		slog.Error("SQLiteStore SavePhase failed", "error", err, "conversationID", rec.ConversationID)
		return fmt.Errorf("failed to save phase for conversation %d: %w", rec.ConversationID, err)
	}
	slog.Debug("SQLiteStore SavePhase succeeded", "conversationID", rec.ConversationID, "phase", rec.Phase)
	return nil
}

// LatestPhase returns the stored record, or nil if none exists.
func (s *SQLiteStore) LatestPhase(ctx context.Context, conversationID int64) (*models.PhaseRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, record_id, phase, summary, confidence, source, updated_at
		FROM conversation_phases WHERE conversation_id = ?`, conversationID)
	rec, err := scanPhaseRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore LatestPhase failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to load phase for conversation %d: %w", conversationID, err)
	}
	return rec, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

// scanPhaseRecord scans a PhaseRecord from a single sql.Row.
func scanPhaseRecord(row *sql.Row) (*models.PhaseRecord, error) {
	var rec models.PhaseRecord
	var phase string
	if err := row.Scan(&rec.ConversationID, &rec.ID, &phase, &rec.Summary, &rec.Confidence, &rec.Source, &rec.Timestamp); err != nil {
		return nil, err
	}
	rec.Phase = models.Phase(phase)
	rec.Timestamp = rec.Timestamp.UTC()
	return &rec, nil
}
