// Package progress tracks one processing job's durable, resumable state.
// Every checkpoint is a partial-field write to the session document, so a
// client can observe an in-flight job across page reloads and worker
// restarts.
package progress

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rpgscribe/rpgscribe/internal/store"
	"github.com/rpgscribe/rpgscribe/internal/types"
)

// Percentage band boundaries. These are fixed contract points a UI can
// rely on.
const (
	PercentContextLoaded         = 10
	PercentTranscriptionComplete = 40
	PercentStoryComplete         = 60
	PercentScriptComplete        = 75
	PercentAudioComplete         = 90
	PercentDone                  = 100
)

// Ledger records stage transitions for one (campaign, session) job. Writes
// for a given job happen synchronously in sequence, never concurrently, so
// they are applied in stage order.
type Ledger struct {
	store      store.SessionStore
	campaignID string
	sessionID  string
	log        *logrus.Logger
}

// NewLedger binds a ledger to one session document.
func NewLedger(s store.SessionStore, campaignID, sessionID string, log *logrus.Logger) *Ledger {
	return &Ledger{store: s, campaignID: campaignID, sessionID: sessionID, log: log}
}

// Begin creates or resets the job record: stage submitted, progress 0, and
// a cleared error so a retry reuses the same audit record.
func (l *Ledger) Begin(ctx context.Context, message string) error {
	return l.store.Update(ctx, l.campaignID, l.sessionID, store.Fields{
		"stage":            string(types.StageSubmitted),
		"progress_percent": 0,
		"message":          message,
		"error":            "",
		"started_at":       time.Now().UTC(),
	})
}

// Checkpoint persists a completed stage transition.
func (l *Ledger) Checkpoint(ctx context.Context, stage types.Stage, percent int, message string) error {
	l.log.WithFields(logrus.Fields{
		"campaign": l.campaignID,
		"session":  l.sessionID,
		"stage":    stage,
		"percent":  percent,
	}).Info(message)

	return l.store.Update(ctx, l.campaignID, l.sessionID, store.Fields{
		"stage":            string(stage),
		"progress_percent": percent,
		"message":          message,
	})
}

// CheckpointWith persists a stage transition together with artifact fields
// in one write, so a crash after the write never loses the artifact the
// stage produced.
func (l *Ledger) CheckpointWith(ctx context.Context, stage types.Stage, percent int, message string, artifacts store.Fields) error {
	fields := store.Fields{
		"stage":            string(stage),
		"progress_percent": percent,
		"message":          message,
	}
	for name, value := range artifacts {
		fields[name] = value
	}

	l.log.WithFields(logrus.Fields{
		"campaign": l.campaignID,
		"session":  l.sessionID,
		"stage":    stage,
		"percent":  percent,
	}).Info(message)

	return l.store.Update(ctx, l.campaignID, l.sessionID, fields)
}

// Fail writes the terminal failed state. The message is the human-readable
// stage-qualified failure; no stack traces or internal identifiers.
func (l *Ledger) Fail(ctx context.Context, message string) error {
	l.log.WithFields(logrus.Fields{
		"campaign": l.campaignID,
		"session":  l.sessionID,
	}).Error(message)

	return l.store.Update(ctx, l.campaignID, l.sessionID, store.Fields{
		"stage":            string(types.StageFailed),
		"progress_percent": 0,
		"message":          "Processing failed",
		"error":            message,
	})
}

// TranscriptionPercent divides the 10-40 transcription band evenly across
// segment count: the value after completing segmentsDone of total.
func TranscriptionPercent(segmentsDone, total int) int {
	if total <= 0 {
		return PercentContextLoaded
	}
	band := PercentTranscriptionComplete - PercentContextLoaded
	return PercentContextLoaded + band*segmentsDone/total
}
