// Package cleanup sweeps orphaned temp files. Uploads and audio segments
// are deleted by the pipeline on every exit path; the sweeper catches
// what a crashed process left behind.
package cleanup

import (
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler periodically deletes stale files under the temp directory.
type Scheduler struct {
	tempDir  string
	interval time.Duration
	maxAge   time.Duration
	stopChan chan struct{}
	log      *logrus.Logger
}

// NewScheduler creates a sweeper; nothing runs until Start.
func NewScheduler(tempDir string, interval, maxAge time.Duration, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		tempDir:  tempDir,
		interval: interval,
		maxAge:   maxAge,
		stopChan: make(chan struct{}),
		log:      log,
	}
}

// Start runs one sweep immediately, then sweeps on the interval until
// Stop.
func (s *Scheduler) Start() {
	s.Sweep()

	ticker := time.NewTicker(s.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	s.log.WithFields(logrus.Fields{
		"interval": s.interval,
		"max_age":  s.maxAge,
	}).Info("cleanup scheduler started")
}

// Stop halts the periodic sweep.
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

// Sweep removes files older than maxAge and any directories the sweep
// leaves empty. Unreadable entries are skipped; running a sweep twice
// over the same tree is harmless.
func (s *Scheduler) Sweep() {
	now := time.Now()
	var deleted int
	var freed int64

	var emptyDirs []string
	err := filepath.Walk(s.tempDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if path != s.tempDir {
				emptyDirs = append(emptyDirs, path)
			}
			return nil
		}
		if now.Sub(info.ModTime()) <= s.maxAge {
			return nil
		}

		size := info.Size()
		if err := os.Remove(path); err != nil {
			s.log.WithError(err).WithField("path", path).Warn("failed to delete stale temp file")
			return nil
		}
		deleted++
		freed += size
		return nil
	})
	if err != nil {
		s.log.WithError(err).Warn("temp sweep failed")
		return
	}

	// Deepest first, so a chain of empty segment dirs collapses.
	for i := len(emptyDirs) - 1; i >= 0; i-- {
		// Remove refuses non-empty directories, which is exactly the
		// check needed here.
		_ = os.Remove(emptyDirs[i])
	}

	if deleted > 0 {
		s.log.WithFields(logrus.Fields{
			"files":    deleted,
			"freed_kb": freed / 1024,
		}).Info("temp sweep complete")
	}
}

// EnsureTempDirExists creates the temp directory if needed.
func EnsureTempDirExists(tempDir string) error {
	return os.MkdirAll(tempDir, 0o755)
}
