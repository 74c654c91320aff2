package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tjfontaine/callscope/internal/core/domain"
	"github.com/tjfontaine/callscope/internal/storage"
)

// Store is a SQLite implementation of RecordingStore
type Store struct {
	db *sql.DB
}

var _ storage.RecordingStore = (*Store)(nil)

// New creates a new SQLite store
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	// Initialize schema
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS recordings (
			id TEXT PRIMARY KEY,
			name TEXT,
			app TEXT,
			recorder_name TEXT,
			recorder_type TEXT,
			hostname TEXT,
			labels TEXT,
			started_at TIMESTAMP,
			finished_at TIMESTAMP,
			events TEXT NOT NULL,
			class_map TEXT,
			event_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recordings_name ON recordings(name)`,
		`CREATE INDEX IF NOT EXISTS idx_recordings_created ON recordings(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *Store) SaveRecording(ctx context.Context, rec *domain.Recording) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	events, err := json.Marshal(rec.Events)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	classMap, err := json.Marshal(rec.ClassMap)
	if err != nil {
		return fmt.Errorf("failed to marshal class map: %w", err)
	}
	labels, err := json.Marshal(rec.Metadata.Labels)
	if err != nil {
		return fmt.Errorf("failed to marshal labels: %w", err)
	}

	query := `INSERT INTO recordings (id, name, app, recorder_name, recorder_type, hostname,
	          labels, started_at, finished_at, events, class_map, event_count, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.Metadata.Name, rec.Metadata.App, rec.Metadata.RecorderName,
		rec.Metadata.RecorderType, rec.Metadata.Hostname, string(labels),
		rec.Metadata.StartedAt, rec.Metadata.FinishedAt,
		string(events), string(classMap), len(rec.Events), rec.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save recording: %w", err)
	}

	return nil
}

func (s *Store) GetRecording(ctx context.Context, id string) (*domain.Recording, error) {
	query := `SELECT id, name, app, recorder_name, recorder_type, hostname,
	          labels, started_at, finished_at, events, class_map, created_at
	          FROM recordings WHERE id = ?`

	var rec domain.Recording
	var labelsJSON, eventsJSON, classMapJSON string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.Metadata.Name, &rec.Metadata.App, &rec.Metadata.RecorderName,
		&rec.Metadata.RecorderType, &rec.Metadata.Hostname, &labelsJSON,
		&rec.Metadata.StartedAt, &rec.Metadata.FinishedAt,
		&eventsJSON, &classMapJSON, &rec.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("recording %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recording: %w", err)
	}

	if err := json.Unmarshal([]byte(labelsJSON), &rec.Metadata.Labels); err != nil {
		return nil, fmt.Errorf("failed to unmarshal labels: %w", err)
	}
	if err := json.Unmarshal([]byte(eventsJSON), &rec.Events); err != nil {
		return nil, fmt.Errorf("failed to unmarshal events: %w", err)
	}
	if err := json.Unmarshal([]byte(classMapJSON), &rec.ClassMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal class map: %w", err)
	}

	return &rec, nil
}

func (s *Store) ListRecordings(ctx context.Context, opts storage.ListOptions) ([]*storage.RecordingSummary, error) {
	query := `SELECT id, name, app, recorder_type, event_count, created_at
	          FROM recordings
	          ORDER BY created_at DESC
	          LIMIT ? OFFSET ?`

	limit := opts.Limit
	if limit == 0 {
		limit = 100 // default limit
	}

	rows, err := s.db.QueryContext(ctx, query, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query recordings: %w", err)
	}
	defer rows.Close()

	var summaries []*storage.RecordingSummary
	for rows.Next() {
		var sum storage.RecordingSummary
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.App, &sum.RecorderType,
			&sum.Events, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recording: %w", err)
		}
		summaries = append(summaries, &sum)
	}

	return summaries, rows.Err()
}

func (s *Store) DeleteRecording(ctx context.Context, id string) error {
	query := `DELETE FROM recordings WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete recording: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("recording %s: %w", id, storage.ErrNotFound)
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
