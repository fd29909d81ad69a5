package types

import (
	"errors"
	"fmt"
)

// Fatal pipeline errors. None of these are retried by the pipeline itself;
// an external caller may resubmit the whole job.
var (
	// ErrDurationUnavailable means media probing could not determine the
	// source recording length.
	ErrDurationUnavailable = errors.New("duration unavailable")

	// ErrNoTranscriptionContent means the speech model returned empty or
	// malformed output for a segment.
	ErrNoTranscriptionContent = errors.New("no transcription content")

	// ErrEmptyGeneration means the text model returned no prose.
	ErrEmptyGeneration = errors.New("empty generation result")

	// ErrNoSegmentsParsed means no recognizable dialogue lines survived
	// script parsing.
	ErrNoSegmentsParsed = errors.New("no dialogue segments parsed")

	// ErrScriptTooLong means the script exceeds the synthesis character
	// budget. The script is rejected, never truncated.
	ErrScriptTooLong = errors.New("script exceeds character budget")

	// ErrEmptySynthesis means speech synthesis produced zero audio bytes.
	ErrEmptySynthesis = errors.New("empty synthesis result")

	// ErrUnrecognizedResponse means a vendor response matched none of the
	// known shapes.
	ErrUnrecognizedResponse = errors.New("unrecognized model response shape")
)

// StageError wraps a failure with the pipeline stage it happened in, so the
// progress record can carry a stage-qualified message without exposing
// internals.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError attaches stage context to err. Passing an existing
// StageError returns it unchanged so the innermost stage wins.
func NewStageError(stage Stage, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}
