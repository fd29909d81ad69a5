// Package queue hands uploaded sessions to background workers. The HTTP
// layer enqueues and returns immediately; workers drive the pipeline to a
// terminal state and survive panics in any stage.
package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rpgscribe/rpgscribe/internal/pipeline"
	"github.com/rpgscribe/rpgscribe/internal/store"
	"github.com/rpgscribe/rpgscribe/internal/types"
)

// Runner executes one job to completion. *pipeline.Orchestrator satisfies
// this.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) error
}

// WorkerPool manages a fixed set of workers draining the job queue.
type WorkerPool struct {
	jobQueue    chan *Job
	workerCount int
	runner      Runner
	sessions    store.SessionStore
	log         *logrus.Logger
	wg          sync.WaitGroup
}

// NewWorkerPool creates a pool with a buffered queue; Enqueue blocks only
// when the buffer is full.
func NewWorkerPool(workerCount int, runner Runner, sessions store.SessionStore, log *logrus.Logger) *WorkerPool {
	return &WorkerPool{
		jobQueue:    make(chan *Job, 100),
		workerCount: workerCount,
		runner:      runner,
		sessions:    sessions,
		log:         log,
	}
}

// Start launches the workers.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.log.WithField("workers", wp.workerCount).Info("starting worker pool")
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Enqueue adds a job to the queue and returns; the caller must not wait
// on the result.
func (wp *WorkerPool) Enqueue(job *Job) {
	wp.jobQueue <- job
	wp.log.WithFields(logrus.Fields{
		"job":      job.ID,
		"campaign": job.Request.CampaignID,
		"session":  job.Request.SessionID,
	}).Info("job enqueued")
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	wp.log.WithField("worker", id).Debug("worker started")

	for job := range wp.jobQueue {
		wp.runJob(ctx, id, job)
	}
}

// runJob isolates one job: a panic in a pipeline stage marks that session
// failed and the worker moves on to the next job.
func (wp *WorkerPool) runJob(ctx context.Context, workerID int, job *Job) {
	defer func() {
		if r := recover(); r != nil {
			wp.log.WithFields(logrus.Fields{
				"worker": workerID,
				"job":    job.ID,
				"stack":  string(debug.Stack()),
			}).Errorf("panic processing job: %v", r)
			wp.markFailed(ctx, job, fmt.Sprintf("internal error: %v", r))
		}
	}()

	entry := wp.log.WithFields(logrus.Fields{
		"worker":   workerID,
		"job":      job.ID,
		"campaign": job.Request.CampaignID,
		"session":  job.Request.SessionID,
	})
	entry.Info("processing job")

	if err := wp.runner.Run(ctx, job.Request); err != nil {
		// The pipeline has already written the failed state; the pool
		// only logs.
		entry.WithError(err).Error("job failed")
		return
	}
	entry.Info("job completed")
}

func (wp *WorkerPool) markFailed(ctx context.Context, job *Job, message string) {
	err := wp.sessions.Update(ctx, job.Request.CampaignID, job.Request.SessionID, store.Fields{
		"stage":            string(types.StageFailed),
		"progress_percent": 0,
		"message":          "Processing failed",
		"error":            message,
	})
	if err != nil {
		wp.log.WithError(err).WithField("job", job.ID).Error("failed to record panic state")
	}
}
