package handlers

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/rpgscribe/rpgscribe/internal/store"
	"github.com/rpgscribe/rpgscribe/internal/types"
)

// SessionHandler serves session state and the checkpointed artifacts.
type SessionHandler struct {
	sessions store.SessionStore
	log      *logrus.Logger
}

// NewSessionHandler creates the read-side handler.
func NewSessionHandler(sessions store.SessionStore, log *logrus.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, log: log}
}

// snapshot converts a stored record into the progress shape clients poll.
func snapshot(rec *store.SessionRecord) types.ProcessingJob {
	return types.ProcessingJob{
		CampaignID:      rec.CampaignID,
		SessionID:       rec.SessionID,
		Version:         rec.PodcastVersion,
		Stage:           types.Stage(rec.Stage),
		ProgressPercent: rec.ProgressPercent,
		Message:         rec.Message,
		StartedAt:       rec.StartedAt,
		UpdatedAt:       rec.UpdatedAt,
		Error:           rec.Error,
	}
}

func (h *SessionHandler) lookup(c *fiber.Ctx) (*store.SessionRecord, error) {
	rec, err := h.sessions.Get(c.Context(), c.Params("campaignId"), c.Params("sessionId"))
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Session not found",
				"code":  "ERR_SESSION_NOT_FOUND",
			})
		}
		h.log.WithError(err).Error("session lookup failed")
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Session lookup failed",
			"code":  "ERR_STORE",
		})
	}
	return rec, nil
}

// Progress serves GET .../progress.
func (h *SessionHandler) Progress(c *fiber.Ctx) error {
	rec, err := h.lookup(c)
	if rec == nil {
		return err
	}
	return c.JSON(snapshot(rec))
}

// Transcript serves GET .../transcript: the merged utterances plus the
// flat display text.
func (h *SessionHandler) Transcript(c *fiber.Ctx) error {
	rec, err := h.lookup(c)
	if rec == nil {
		return err
	}
	if rec.TranscriptJSON == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Transcript not available yet",
			"code":  "ERR_NOT_READY",
		})
	}

	var utterances []types.Utterance
	if err := json.Unmarshal([]byte(rec.TranscriptJSON), &utterances); err != nil {
		h.log.WithError(err).Error("stored transcript is unreadable")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Stored transcript is unreadable",
			"code":  "ERR_CORRUPT_ARTIFACT",
		})
	}
	return c.JSON(fiber.Map{
		"utterances": utterances,
		"text":       rec.TranscriptText,
	})
}

// Story serves GET .../story.
func (h *SessionHandler) Story(c *fiber.Ctx) error {
	rec, err := h.lookup(c)
	if rec == nil {
		return err
	}
	if rec.Story == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Story not available yet",
			"code":  "ERR_NOT_READY",
		})
	}
	return c.JSON(fiber.Map{"story": rec.Story})
}

// Script serves GET .../script.
func (h *SessionHandler) Script(c *fiber.Ctx) error {
	rec, err := h.lookup(c)
	if rec == nil {
		return err
	}
	if rec.ScriptJSON == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Script not available yet",
			"code":  "ERR_NOT_READY",
		})
	}

	var script types.DialogueScript
	if err := json.Unmarshal([]byte(rec.ScriptJSON), &script); err != nil {
		h.log.WithError(err).Error("stored script is unreadable")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Stored script is unreadable",
			"code":  "ERR_CORRUPT_ARTIFACT",
		})
	}
	return c.JSON(script)
}

// Podcast serves GET .../podcast: the audio URL and take number.
func (h *SessionHandler) Podcast(c *fiber.Ctx) error {
	rec, err := h.lookup(c)
	if rec == nil {
		return err
	}
	if rec.AudioPath == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Podcast not available yet",
			"code":  "ERR_NOT_READY",
		})
	}
	return c.JSON(fiber.Map{
		"url":     rec.AudioPath,
		"version": rec.PodcastVersion,
	})
}

// List serves GET /campaigns/:campaignId/sessions: completed sessions
// oldest first.
func (h *SessionHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	records, err := h.sessions.CompletedSessions(c.Context(), c.Params("campaignId"), limit)
	if err != nil {
		h.log.WithError(err).Error("session list failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Session list failed",
			"code":  "ERR_STORE",
		})
	}

	jobs := make([]types.ProcessingJob, 0, len(records))
	for i := range records {
		jobs = append(jobs, snapshot(&records[i]))
	}
	return c.JSON(fiber.Map{"sessions": jobs})
}
