// Package audio cuts a source recording into fixed-duration segments
// normalized to the one input shape every downstream consumer expects:
// mono 16kHz 16-bit PCM WAV.
package audio

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rpgscribe/rpgscribe/internal/types"
)

// DefaultMaxSegmentSeconds is the fixed chunk window: 30 minutes.
const DefaultMaxSegmentSeconds = 1800.0

// Splitter shells out to ffmpeg/ffprobe to probe and slice audio. It knows
// nothing about transcription or any other AI concern.
type Splitter struct {
	ffmpegPath        string
	ffprobePath       string
	maxSegmentSeconds float64
	tempRoot          string
	runner            commandRunner
	log               *logrus.Logger
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithBinaries overrides the ffmpeg and ffprobe executable paths.
func WithBinaries(ffmpeg, ffprobe string) Option {
	return func(s *Splitter) {
		s.ffmpegPath = ffmpeg
		s.ffprobePath = ffprobe
	}
}

// WithMaxSegmentSeconds overrides the chunk window length.
func WithMaxSegmentSeconds(seconds float64) Option {
	return func(s *Splitter) { s.maxSegmentSeconds = seconds }
}

// WithTempRoot places segment directories under dir instead of the system
// temp directory.
func WithTempRoot(dir string) Option {
	return func(s *Splitter) { s.tempRoot = dir }
}

func withRunner(r commandRunner) Option {
	return func(s *Splitter) { s.runner = r }
}

// NewSplitter builds a Splitter with 30-minute windows and system ffmpeg.
func NewSplitter(log *logrus.Logger, opts ...Option) *Splitter {
	s := &Splitter{
		ffmpegPath:        "ffmpeg",
		ffprobePath:       "ffprobe",
		maxSegmentSeconds: DefaultMaxSegmentSeconds,
		runner:            execRunner{},
		log:               log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxSegmentSeconds exposes the configured window length.
func (s *Splitter) MaxSegmentSeconds() float64 { return s.maxSegmentSeconds }

// Duration probes the source length in seconds. A probe that cannot
// determine length is ErrDurationUnavailable, which is fatal for the job.
func (s *Splitter) Duration(ctx context.Context, path string) (float64, error) {
	stdout, _, err := s.runner.Run(ctx, s.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrDurationUnavailable, err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(stdout), 64)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("%w: ffprobe output %q", types.ErrDurationUnavailable, strings.TrimSpace(stdout))
	}
	return seconds, nil
}

// Split cuts the source into consecutive windows of at most the configured
// length; the final window may be shorter. Offsets exactly tile
// [0, totalDurationSeconds). Every segment is re-encoded to mono 16kHz WAV.
//
// Segment files live in a private temp directory owned by the caller, who
// must release them with Cleanup on every exit path.
func (s *Splitter) Split(ctx context.Context, sourcePath string, totalDurationSeconds float64) ([]types.AudioSegment, error) {
	if totalDurationSeconds <= 0 {
		return nil, fmt.Errorf("%w: non-positive duration %.2f", types.ErrDurationUnavailable, totalDurationSeconds)
	}

	tempDir, err := os.MkdirTemp(s.tempRoot, "segments_")
	if err != nil {
		return nil, fmt.Errorf("create segment directory: %w", err)
	}

	count := int(math.Ceil(totalDurationSeconds / s.maxSegmentSeconds))
	segments := make([]types.AudioSegment, 0, count)

	for i := 0; i < count; i++ {
		start := float64(i) * s.maxSegmentSeconds
		end := math.Min(start+s.maxSegmentSeconds, totalDurationSeconds)
		outPath := filepath.Join(tempDir, fmt.Sprintf("segment_%03d.wav", i))

		if _, _, err := s.runner.Run(ctx, s.ffmpegPath,
			"-ss", formatSeconds(start),
			"-t", formatSeconds(end-start),
			"-i", sourcePath,
			"-ar", "16000",
			"-ac", "1",
			"-c:a", "pcm_s16le",
			"-y",
			outPath,
		); err != nil {
			s.Cleanup(segments)
			_ = os.RemoveAll(tempDir)
			return nil, fmt.Errorf("split segment %d: %w", i, err)
		}

		segments = append(segments, types.AudioSegment{
			Index:              i,
			StartOffsetSeconds: start,
			EndOffsetSeconds:   end,
			DurationSeconds:    end - start,
			LocalPath:          outPath,
		})
	}

	return segments, nil
}

// Cleanup releases segment files and their directory. Best-effort and
// idempotent: failures are logged, never escalated, and a second call on
// the same set is a no-op.
func (s *Splitter) Cleanup(segments []types.AudioSegment) {
	var dir string
	for _, seg := range segments {
		if seg.LocalPath == "" {
			continue
		}
		dir = filepath.Dir(seg.LocalPath)
		if err := os.Remove(seg.LocalPath); err != nil && !os.IsNotExist(err) {
			s.log.WithError(err).WithField("path", seg.LocalPath).Warn("failed to remove segment file")
		}
	}
	if dir != "" {
		if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
			s.log.WithError(err).WithField("dir", dir).Warn("failed to remove segment directory")
		}
	}
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
