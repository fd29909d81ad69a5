package handlers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/rpgscribe/rpgscribe/internal/pipeline"
	"github.com/rpgscribe/rpgscribe/internal/queue"
	"github.com/rpgscribe/rpgscribe/internal/store"
	"github.com/rpgscribe/rpgscribe/internal/types"
)

// RegenerateHandler re-runs podcast synthesis from a user-edited script,
// skipping transcription and generation.
type RegenerateHandler struct {
	pool           Enqueuer
	sessions       store.SessionStore
	maxScriptChars int
	validate       *validator.Validate
	log            *logrus.Logger
}

// NewRegenerateHandler creates the regeneration handler.
func NewRegenerateHandler(pool Enqueuer, sessions store.SessionStore, maxScriptChars int, log *logrus.Logger) *RegenerateHandler {
	return &RegenerateHandler{
		pool:           pool,
		sessions:       sessions,
		maxScriptChars: maxScriptChars,
		validate:       validator.New(),
		log:            log,
	}
}

type regenerateRequest struct {
	Segments []regenerateSegment `json:"segments" validate:"required,min=1,dive"`
}

type regenerateSegment struct {
	Speaker string `json:"speaker" validate:"required,oneof=HOST GUEST"`
	Text    string `json:"text" validate:"required"`
}

// Handle processes POST /campaigns/:campaignId/sessions/:sessionId/podcast.
// The script's character budget is enforced up front, so an over-long
// script is rejected here instead of burning a queue slot.
func (h *RegenerateHandler) Handle(c *fiber.Ctx) error {
	campaignID := c.Params("campaignId")
	sessionID := c.Params("sessionId")

	if _, err := h.sessions.Get(c.Context(), campaignID, sessionID); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Session not found",
				"code":  "ERR_SESSION_NOT_FOUND",
			})
		}
		h.log.WithError(err).Error("session lookup failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Session lookup failed",
			"code":  "ERR_STORE",
		})
	}

	var req regenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "ERR_INVALID_BODY",
		})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "ERR_VALIDATION",
		})
	}

	script := types.DialogueScript{
		Segments: make([]types.DialogueSegment, 0, len(req.Segments)),
	}
	for _, seg := range req.Segments {
		script.Segments = append(script.Segments, types.DialogueSegment{
			Speaker: seg.Speaker,
			Text:    seg.Text,
		})
	}
	if total := script.CharacterCount(); total > h.maxScriptChars {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Script exceeds the synthesis character budget",
			"code":  "ERR_SCRIPT_TOO_LONG",
			"chars": total,
			"max":   h.maxScriptChars,
		})
	}

	job := queue.NewJob(pipeline.Request{
		CampaignID:     campaignID,
		SessionID:      sessionID,
		PrebuiltScript: &script,
	})
	h.pool.Enqueue(job)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"jobId":      job.ID,
		"campaignId": campaignID,
		"sessionId":  sessionID,
		"status":     "queued",
	})
}
