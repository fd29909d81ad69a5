// Package pipeline sequences the full audio-to-podcast run: split,
// transcribe, merge, story, script, synthesis, upload. The orchestrator
// persists a checkpoint after every stage and decides what a failure at
// each stage means; no stage retries itself.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rpgscribe/rpgscribe/internal/podcast"
	"github.com/rpgscribe/rpgscribe/internal/progress"
	"github.com/rpgscribe/rpgscribe/internal/storage"
	"github.com/rpgscribe/rpgscribe/internal/store"
	"github.com/rpgscribe/rpgscribe/internal/story"
	"github.com/rpgscribe/rpgscribe/internal/transcription"
	"github.com/rpgscribe/rpgscribe/internal/types"
)

// uploadAttempts bounds the object-storage retry; upload is the one step
// retried in place because it is cheap and not billable model work.
const uploadAttempts = 3

// Request describes one processing job.
type Request struct {
	CampaignID string
	SessionID  string

	// SourcePath is the uploaded recording. The job owns this file and
	// deletes it on every exit path.
	SourcePath string

	Glossary        types.GlossaryContext
	UserCorrections string

	// PrebuiltScript switches to the alternate entry point: the state
	// machine jumps straight from submitted to script-complete with the
	// given user-edited script, skipping transcription and generation.
	PrebuiltScript *types.DialogueScript
}

// The stage collaborators are consumed through the narrowest interface
// each stage needs; audio.Splitter, transcription.SegmentTranscriber and
// friends satisfy these.
type audioSplitter interface {
	Duration(ctx context.Context, path string) (float64, error)
	Split(ctx context.Context, sourcePath string, totalDurationSeconds float64) ([]types.AudioSegment, error)
	Cleanup(segments []types.AudioSegment)
}

type segmentTranscriber interface {
	Transcribe(ctx context.Context, segment types.AudioSegment, glossary types.GlossaryContext) ([]types.Utterance, error)
}

type storyGenerator interface {
	Generate(ctx context.Context, transcript types.Transcript, sctx story.Context) (string, error)
}

type scriptGenerator interface {
	Generate(ctx context.Context, prose string, maxCharacters int) (types.DialogueScript, error)
}

type audioSynthesizer interface {
	Synthesize(ctx context.Context, script types.DialogueScript, voices podcast.VoiceAssignment) ([]byte, error)
}

// Orchestrator wires the pipeline stages onto their collaborators.
type Orchestrator struct {
	splitter       audioSplitter
	transcriber    segmentTranscriber
	storyGen       storyGenerator
	scriptGen      scriptGenerator
	synthesizer    audioSynthesizer
	sessions       store.SessionStore
	objects        storage.ObjectStore
	voices         podcast.VoiceAssignment
	maxScriptChars int
	uploadDelay    time.Duration
	log            *logrus.Logger
}

// New assembles an orchestrator.
func New(
	splitter audioSplitter,
	transcriber segmentTranscriber,
	storyGen storyGenerator,
	scriptGen scriptGenerator,
	synthesizer audioSynthesizer,
	sessions store.SessionStore,
	objects storage.ObjectStore,
	voices podcast.VoiceAssignment,
	maxScriptChars int,
	log *logrus.Logger,
) *Orchestrator {
	return &Orchestrator{
		splitter:       splitter,
		transcriber:    transcriber,
		storyGen:       storyGen,
		scriptGen:      scriptGen,
		synthesizer:    synthesizer,
		sessions:       sessions,
		objects:        objects,
		voices:         voices,
		maxScriptChars: maxScriptChars,
		uploadDelay:    time.Second,
		log:            log,
	}
}

// Run executes one job to its terminal state. The returned error reports
// the failure to the caller (the queue worker) for logging; the terminal
// failed state has already been written to the ledger by then, and the
// error never propagates in a way that could take down sibling jobs.
func (o *Orchestrator) Run(ctx context.Context, req Request) error {
	ledger := progress.NewLedger(o.sessions, req.CampaignID, req.SessionID, o.log)

	if err := ledger.Begin(ctx, "Processing submitted"); err != nil {
		return fmt.Errorf("begin job record: %w", err)
	}

	// The uploaded source is exclusively owned by this run.
	defer o.removeSource(req.SourcePath)

	script, err := o.produceScript(ctx, ledger, req)
	if err != nil {
		return o.fail(ctx, ledger, err)
	}

	if err := o.produceAudio(ctx, ledger, req, script); err != nil {
		return o.fail(ctx, ledger, err)
	}

	return nil
}

// produceScript runs the entry point up to script-complete: either the
// full transcribe-story-script chain, or the jump with a prebuilt script.
func (o *Orchestrator) produceScript(ctx context.Context, ledger *progress.Ledger, req Request) (types.DialogueScript, error) {
	var zero types.DialogueScript

	if req.PrebuiltScript != nil {
		script := *req.PrebuiltScript
		if len(script.Segments) == 0 {
			return zero, types.NewStageError(types.StageSubmitted, types.ErrNoSegmentsParsed)
		}
		if total := script.CharacterCount(); total > o.maxScriptChars {
			return zero, types.NewStageError(types.StageSubmitted,
				fmt.Errorf("%w: %d > %d", types.ErrScriptTooLong, total, o.maxScriptChars))
		}
		if script.EstimatedDurationSeconds == 0 {
			script.EstimatedDurationSeconds = podcast.EstimateDurationSeconds(script.Segments)
		}

		scriptJSON, err := json.Marshal(script)
		if err != nil {
			return zero, types.NewStageError(types.StageSubmitted, err)
		}
		if err := ledger.CheckpointWith(ctx, types.StageScriptComplete, progress.PercentScriptComplete,
			"Using supplied dialogue script", store.Fields{"script_json": string(scriptJSON)}); err != nil {
			return zero, types.NewStageError(types.StageScriptComplete, err)
		}
		return script, nil
	}

	// Stage: loading-context.
	if err := ledger.Checkpoint(ctx, types.StageLoadingContext, 0, "Loading campaign context"); err != nil {
		return zero, types.NewStageError(types.StageLoadingContext, err)
	}
	summaries, err := o.loadContinuity(ctx, req.CampaignID, req.SessionID)
	if err != nil {
		return zero, types.NewStageError(types.StageLoadingContext, err)
	}

	// Stage: transcribing.
	if err := ledger.Checkpoint(ctx, types.StageTranscribing, progress.PercentContextLoaded, "Transcribing session audio"); err != nil {
		return zero, types.NewStageError(types.StageTranscribing, err)
	}
	transcript, err := o.transcribe(ctx, ledger, req)
	if err != nil {
		return zero, types.NewStageError(types.StageTranscribing, err)
	}

	// Checkpoint the transcript itself: a crash after this write never
	// re-runs transcription for nothing.
	transcriptJSON, err := json.Marshal(transcript.Utterances)
	if err != nil {
		return zero, types.NewStageError(types.StageTranscribing, err)
	}
	if err := ledger.CheckpointWith(ctx, types.StageTranscriptionComplete, progress.PercentTranscriptionComplete,
		"Transcription complete", store.Fields{
			"transcript_json": string(transcriptJSON),
			"transcript_text": transcript.FlatText,
		}); err != nil {
		return zero, types.NewStageError(types.StageTranscriptionComplete, err)
	}

	// Stage: generating-story.
	if err := ledger.Checkpoint(ctx, types.StageGeneratingStory, progress.PercentTranscriptionComplete, "Writing the session story"); err != nil {
		return zero, types.NewStageError(types.StageGeneratingStory, err)
	}
	prose, err := o.storyGen.Generate(ctx, transcript, story.Context{
		PreviousSummaries: summaries,
		Glossary:          req.Glossary,
		UserCorrections:   req.UserCorrections,
	})
	if err != nil {
		return zero, types.NewStageError(types.StageGeneratingStory, err)
	}
	if err := ledger.CheckpointWith(ctx, types.StageStoryComplete, progress.PercentStoryComplete,
		"Story complete", store.Fields{"story": prose}); err != nil {
		return zero, types.NewStageError(types.StageStoryComplete, err)
	}

	// Stage: generating-script.
	if err := ledger.Checkpoint(ctx, types.StageGeneratingScript, progress.PercentStoryComplete, "Writing the podcast script"); err != nil {
		return zero, types.NewStageError(types.StageGeneratingScript, err)
	}
	script, err := o.scriptGen.Generate(ctx, prose, o.maxScriptChars)
	if err != nil {
		return zero, types.NewStageError(types.StageGeneratingScript, err)
	}
	scriptJSON, err := json.Marshal(script)
	if err != nil {
		return zero, types.NewStageError(types.StageGeneratingScript, err)
	}
	if err := ledger.CheckpointWith(ctx, types.StageScriptComplete, progress.PercentScriptComplete,
		"Podcast script complete", store.Fields{"script_json": string(scriptJSON)}); err != nil {
		return zero, types.NewStageError(types.StageScriptComplete, err)
	}

	return script, nil
}

// transcribe splits the source and runs segments through the speech model
// sequentially, reporting per-segment progress. Sequential on purpose: a
// failure on segment k must not leave k+1..n running wastefully, and the
// 10-40 band is divided evenly across segments.
func (o *Orchestrator) transcribe(ctx context.Context, ledger *progress.Ledger, req Request) (types.Transcript, error) {
	var zero types.Transcript

	duration, err := o.splitter.Duration(ctx, req.SourcePath)
	if err != nil {
		return zero, err
	}

	segments, err := o.splitter.Split(ctx, req.SourcePath, duration)
	if err != nil {
		return zero, err
	}
	defer o.splitter.Cleanup(segments)

	results := make([]transcription.SegmentResult, 0, len(segments))
	for i, seg := range segments {
		utterances, err := o.transcriber.Transcribe(ctx, seg, req.Glossary)
		if err != nil {
			return zero, err
		}
		results = append(results, transcription.SegmentResult{Segment: seg, Utterances: utterances})

		if err := ledger.Checkpoint(ctx, types.StageTranscribing,
			progress.TranscriptionPercent(i+1, len(segments)),
			fmt.Sprintf("Transcribed segment %d of %d", i+1, len(segments))); err != nil {
			return zero, err
		}
	}

	return transcription.Merge(results), nil
}

// produceAudio runs script-complete through completed: synthesis and
// upload, under a fresh podcast version so every take is separately
// addressable.
func (o *Orchestrator) produceAudio(ctx context.Context, ledger *progress.Ledger, req Request, script types.DialogueScript) error {
	version, err := o.sessions.NextPodcastVersion(ctx, req.CampaignID, req.SessionID)
	if err != nil {
		return types.NewStageError(types.StageGeneratingAudio, err)
	}

	if err := ledger.Checkpoint(ctx, types.StageGeneratingAudio, progress.PercentScriptComplete, "Synthesizing podcast audio"); err != nil {
		return types.NewStageError(types.StageGeneratingAudio, err)
	}
	audioBytes, err := o.synthesizer.Synthesize(ctx, script, o.voices)
	if err != nil {
		return types.NewStageError(types.StageGeneratingAudio, err)
	}

	if err := ledger.Checkpoint(ctx, types.StageUploading, progress.PercentAudioComplete, "Uploading podcast audio"); err != nil {
		return types.NewStageError(types.StageUploading, err)
	}

	objectPath := fmt.Sprintf("campaigns/%s/sessions/%s/podcast_v%d.mp3", req.CampaignID, req.SessionID, version)
	url, err := o.upload(ctx, objectPath, audioBytes)
	if err != nil {
		return types.NewStageError(types.StageUploading, err)
	}

	if err := ledger.CheckpointWith(ctx, types.StageCompleted, progress.PercentDone,
		fmt.Sprintf("Podcast take %d ready", version), store.Fields{"audio_path": url}); err != nil {
		return types.NewStageError(types.StageCompleted, err)
	}
	return nil
}

// upload pushes audio to object storage with backoff, the way every other
// artifact write in this codebase retries cheap IO.
func (o *Orchestrator) upload(ctx context.Context, path string, data []byte) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= uploadAttempts; attempt++ {
		url, err := o.objects.Put(ctx, path, data, "audio/mpeg")
		if err == nil {
			return url, nil
		}
		lastErr = err
		o.log.WithError(err).WithField("attempt", attempt).Warn("podcast upload failed")
		if attempt < uploadAttempts {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt*attempt) * o.uploadDelay):
			}
		}
	}
	return "", fmt.Errorf("upload failed after %d attempts: %w", uploadAttempts, lastErr)
}

// loadContinuity fetches prior completed sessions for the campaign,
// excluding the one being processed. A session without an explicit summary
// contributes its story text.
func (o *Orchestrator) loadContinuity(ctx context.Context, campaignID, sessionID string) ([]types.SessionSummary, error) {
	records, err := o.sessions.CompletedSessions(ctx, campaignID, 20)
	if err != nil {
		return nil, fmt.Errorf("load prior sessions: %w", err)
	}

	var summaries []types.SessionSummary
	for _, rec := range records {
		if rec.SessionID == sessionID {
			continue
		}
		text := rec.Summary
		if text == "" {
			text = rec.Story
		}
		if text == "" {
			continue
		}
		summaries = append(summaries, types.SessionSummary{
			SessionID: rec.SessionID,
			Title:     rec.Title,
			Summary:   text,
			CreatedAt: rec.CreatedAt,
		})
	}
	return summaries, nil
}

// fail writes the terminal state and returns the stage-qualified error.
// Ledger-write failures here are logged only; the job is already failing.
func (o *Orchestrator) fail(ctx context.Context, ledger *progress.Ledger, err error) error {
	if ferr := ledger.Fail(ctx, err.Error()); ferr != nil {
		o.log.WithError(ferr).Error("failed to record terminal job state")
	}
	return err
}

func (o *Orchestrator) removeSource(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		o.log.WithError(err).WithField("path", path).Warn("failed to remove source upload")
	}
}
