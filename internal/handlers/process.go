// Package handlers holds the HTTP glue: validate a request, enqueue or
// look up, return JSON. No pipeline logic lives here.
package handlers

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rpgscribe/rpgscribe/internal/audio"
	"github.com/rpgscribe/rpgscribe/internal/pipeline"
	"github.com/rpgscribe/rpgscribe/internal/queue"
	"github.com/rpgscribe/rpgscribe/internal/types"
)

// Enqueuer hands jobs to the background pool. *queue.WorkerPool
// satisfies this.
type Enqueuer interface {
	Enqueue(job *queue.Job)
}

// ProcessHandler accepts a session recording and starts processing.
type ProcessHandler struct {
	pool      Enqueuer
	tempDir   string
	maxSizeMB int
	log       *logrus.Logger
}

// NewProcessHandler creates the submit handler.
func NewProcessHandler(pool Enqueuer, tempDir string, maxSizeMB int, log *logrus.Logger) *ProcessHandler {
	return &ProcessHandler{
		pool:      pool,
		tempDir:   tempDir,
		maxSizeMB: maxSizeMB,
		log:       log,
	}
}

// glossaryPayload is the optional "glossary" form field, a JSON document
// of campaign proper nouns.
type glossaryPayload struct {
	Characters []string `json:"characters"`
	Places     []string `json:"places"`
	Quests     []string `json:"quests"`
	Factions   []string `json:"factions"`
}

// Handle processes POST /campaigns/:campaignId/sessions/:sessionId/process.
// The response returns as soon as the job is queued; progress is read from
// the session document.
func (h *ProcessHandler) Handle(c *fiber.Ctx) error {
	campaignID := c.Params("campaignId")
	sessionID := c.Params("sessionId")

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No audio file uploaded",
			"code":  "ERR_NO_FILE",
		})
	}

	maxSize := int64(h.maxSizeMB) * 1024 * 1024
	if file.Size > maxSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("File too large (max %dMB)", h.maxSizeMB),
			"code":  "ERR_FILE_TOO_LARGE",
		})
	}

	if !audio.ValidFormat(file.Filename) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unsupported audio format",
			"code":  "ERR_INVALID_FORMAT",
		})
	}

	var glossary types.GlossaryContext
	if raw := c.FormValue("glossary"); raw != "" {
		var payload glossaryPayload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Glossary must be a JSON object",
				"code":  "ERR_INVALID_GLOSSARY",
			})
		}
		glossary = types.GlossaryContext{
			Characters: payload.Characters,
			Places:     payload.Places,
			Quests:     payload.Quests,
			Factions:   payload.Factions,
		}
	}

	tempPath := filepath.Join(h.tempDir, fmt.Sprintf("%s%s", uuid.New().String(), filepath.Ext(file.Filename)))
	if err := c.SaveFile(file, tempPath); err != nil {
		h.log.WithError(err).Error("failed to save uploaded file")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save file",
			"code":  "ERR_SAVE_FAILED",
		})
	}

	job := queue.NewJob(pipeline.Request{
		CampaignID:      campaignID,
		SessionID:       sessionID,
		SourcePath:      tempPath,
		Glossary:        glossary,
		UserCorrections: c.FormValue("corrections"),
	})
	h.pool.Enqueue(job)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"jobId":      job.ID,
		"campaignId": campaignID,
		"sessionId":  sessionID,
		"status":     "queued",
	})
}
