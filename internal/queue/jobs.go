package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/rpgscribe/rpgscribe/internal/pipeline"
)

// Job is one queued processing run. The embedded request carries
// everything the pipeline needs; the job adds queue bookkeeping.
type Job struct {
	ID        string
	Request   pipeline.Request
	CreatedAt time.Time
}

// NewJob wraps a pipeline request for the queue.
func NewJob(req pipeline.Request) *Job {
	return &Job{
		ID:        uuid.New().String(),
		Request:   req,
		CreatedAt: time.Now(),
	}
}
