package handlers

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"github.com/rpgscribe/rpgscribe/internal/store"
	"github.com/rpgscribe/rpgscribe/internal/types"
)

// ProgressStream pushes session progress snapshots over a websocket until
// the run reaches a terminal stage or the client goes away.
type ProgressStream struct {
	sessions store.SessionStore
	interval time.Duration
	log      *logrus.Logger
}

// NewProgressStream creates the websocket progress handler.
func NewProgressStream(sessions store.SessionStore, interval time.Duration, log *logrus.Logger) *ProgressStream {
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressStream{sessions: sessions, interval: interval, log: log}
}

// Handle serves GET /ws/campaigns/:campaignId/sessions/:sessionId/progress.
// Snapshots are sent on connect and then whenever the stored state
// changes; unchanged polls send nothing.
func (p *ProgressStream) Handle(c *websocket.Conn) {
	defer c.Close()

	campaignID := c.Params("campaignId")
	sessionID := c.Params("sessionId")
	entry := p.log.WithFields(logrus.Fields{
		"campaign": campaignID,
		"session":  sessionID,
	})
	entry.Debug("progress subscription opened")

	// Reads are discarded; their failure is the only signal that the
	// client disconnected.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var last types.ProcessingJob
	sent := false
	for {
		rec, err := p.sessions.Get(context.Background(), campaignID, sessionID)
		if err != nil {
			if werr := c.WriteJSON(map[string]string{"error": "Session not found"}); werr != nil {
				return
			}
		} else {
			job := snapshot(rec)
			if !sent || job != last {
				if err := c.WriteJSON(job); err != nil {
					return
				}
				last = job
				sent = true
			}
			if job.Stage == types.StageCompleted || job.Stage == types.StageFailed {
				entry.Debug("progress subscription finished")
				return
			}
		}

		select {
		case <-done:
			return
		case <-ticker.C:
		}
	}
}
