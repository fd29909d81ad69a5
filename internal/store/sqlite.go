package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// updatableColumns whitelists the fields a partial update may touch.
var updatableColumns = map[string]bool{
	"title":            true,
	"stage":            true,
	"progress_percent": true,
	"message":          true,
	"error":            true,
	"transcript_json":  true,
	"transcript_text":  true,
	"story":            true,
	"summary":          true,
	"script_json":      true,
	"audio_path":       true,
	"started_at":       true,
}

// SQLiteStore implements SessionStore on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the session database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS sessions (
		campaign_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		stage TEXT NOT NULL DEFAULT 'submitted',
		progress_percent INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		transcript_json TEXT NOT NULL DEFAULT '',
		transcript_text TEXT NOT NULL DEFAULT '',
		story TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		script_json TEXT NOT NULL DEFAULT '',
		podcast_version INTEGER NOT NULL DEFAULT 0,
		audio_path TEXT NOT NULL DEFAULT '',
		started_at DATETIME,
		updated_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (campaign_id, session_id)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_campaign_stage ON sessions(campaign_id, stage);
	CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Get returns one session document.
func (s *SQLiteStore) Get(ctx context.Context, campaignID, sessionID string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT campaign_id, session_id, title, stage, progress_percent, message, error,
	       transcript_json, transcript_text, story, summary, script_json,
	       podcast_version, audio_path, started_at, updated_at, created_at
	FROM sessions WHERE campaign_id = ? AND session_id = ?
	`, campaignID, sessionID)

	rec, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return rec, nil
}

// Update upserts the named fields. Unknown field names are rejected so a
// typo cannot silently widen the write.
func (s *SQLiteStore) Update(ctx context.Context, campaignID, sessionID string, fields Fields) error {
	now := time.Now().UTC()

	// Ensure the row exists so the partial update has a target.
	if _, err := s.db.ExecContext(ctx, `
	INSERT INTO sessions (campaign_id, session_id, updated_at, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(campaign_id, session_id) DO NOTHING
	`, campaignID, sessionID, now, now); err != nil {
		return fmt.Errorf("failed to ensure session row: %w", err)
	}

	assignments := []string{"updated_at = ?"}
	args := []any{now}

	// Deterministic ordering keeps the generated SQL stable.
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !updatableColumns[name] {
			return fmt.Errorf("field %q is not updatable", name)
		}
		assignments = append(assignments, name+" = ?")
		args = append(args, fields[name])
	}
	args = append(args, campaignID, sessionID)

	query := "UPDATE sessions SET " + strings.Join(assignments, ", ") +
		" WHERE campaign_id = ? AND session_id = ?"
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// CompletedSessions returns completed sessions oldest first.
func (s *SQLiteStore) CompletedSessions(ctx context.Context, campaignID string, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT campaign_id, session_id, title, stage, progress_percent, message, error,
	       transcript_json, transcript_text, story, summary, script_json,
	       podcast_version, audio_path, started_at, updated_at, created_at
	FROM sessions
	WHERE campaign_id = ? AND stage = 'completed'
	ORDER BY created_at ASC
	LIMIT ?
	`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed sessions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// NextPodcastVersion bumps the per-session take counter and returns the new
// value.
func (s *SQLiteStore) NextPodcastVersion(ctx context.Context, campaignID, sessionID string) (int, error) {
	row := s.db.QueryRowContext(ctx, `
	UPDATE sessions SET podcast_version = podcast_version + 1, updated_at = ?
	WHERE campaign_id = ? AND session_id = ?
	RETURNING podcast_version
	`, time.Now().UTC(), campaignID, sessionID)

	var version int
	if err := row.Scan(&version); err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrSessionNotFound
		}
		return 0, fmt.Errorf("failed to bump podcast version: %w", err)
	}
	return version, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	var rec SessionRecord
	var startedAt sql.NullTime
	err := row.Scan(
		&rec.CampaignID, &rec.SessionID, &rec.Title, &rec.Stage,
		&rec.ProgressPercent, &rec.Message, &rec.Error,
		&rec.TranscriptJSON, &rec.TranscriptText, &rec.Story, &rec.Summary,
		&rec.ScriptJSON, &rec.PodcastVersion, &rec.AudioPath,
		&startedAt, &rec.UpdatedAt, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		rec.StartedAt = startedAt.Time
	}
	return &rec, nil
}
