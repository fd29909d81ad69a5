// Package store persists per-session documents: pipeline progress,
// checkpointed artifacts (transcript, story, script) and podcast metadata.
// The interface is a key-value document store with partial-field update
// semantics; writers update named fields only, so a concurrent reader never
// observes a half-written unrelated field.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned by Get for an unknown (campaign, session)
// pair.
var ErrSessionNotFound = errors.New("session not found")

// Fields is a partial-field update: column name to new value.
type Fields map[string]any

// SessionRecord is the durable document for one session.
type SessionRecord struct {
	CampaignID      string
	SessionID       string
	Title           string
	Stage           string
	ProgressPercent int
	Message         string
	Error           string
	TranscriptJSON  string
	TranscriptText  string
	Story           string
	Summary         string
	ScriptJSON      string
	PodcastVersion  int
	AudioPath       string
	StartedAt       time.Time
	UpdatedAt       time.Time
	CreatedAt       time.Time
}

// SessionStore is the document-store capability the pipeline consumes. No
// transactions are required; updates are last-writer-wins partial writes.
type SessionStore interface {
	// Get returns one session document or ErrSessionNotFound.
	Get(ctx context.Context, campaignID, sessionID string) (*SessionRecord, error)

	// Update upserts the named fields of one session document, leaving
	// every other field untouched. UpdatedAt is always refreshed.
	Update(ctx context.Context, campaignID, sessionID string, fields Fields) error

	// CompletedSessions returns a campaign's completed sessions ordered
	// oldest first, for narrative continuity.
	CompletedSessions(ctx context.Context, campaignID string, limit int) ([]SessionRecord, error)

	// NextPodcastVersion increments and returns the session's podcast
	// take counter.
	NextPodcastVersion(ctx context.Context, campaignID, sessionID string) (int, error)
}
