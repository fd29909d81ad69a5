// Package ai defines the capability interfaces the pipeline consumes for
// speech-to-text, text generation and speech synthesis. Concrete vendor
// clients live behind these interfaces; responses are raw text until the
// decode step gives them a shape.
package ai

import (
	"context"
	"io"
)

// GenerationConfig carries the tunables forwarded to a model call.
type GenerationConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// SpeechToText transcribes one audio segment. The returned Text is the raw
// model output, expected (but not trusted) to be the transcription JSON
// envelope decoded by DecodeTranscription.
type SpeechToText interface {
	Transcribe(ctx context.Context, audioPath string, prompt string, cfg GenerationConfig) (Response, error)
	Name() string
}

// TextGenerator produces prose from prompt contents plus an optional system
// instruction.
type TextGenerator interface {
	Generate(ctx context.Context, contents []string, systemInstruction string, cfg GenerationConfig) (Response, error)
	Name() string
}

// SynthesisInput is one scripted line handed to multi-speaker synthesis.
type SynthesisInput struct {
	Text    string
	VoiceID string
}

// SpeechSynthesizer converts a whole script in one multi-speaker call so
// the vendor controls conversational pacing. The stream is owned by the
// caller and must be drained and closed.
type SpeechSynthesizer interface {
	Convert(ctx context.Context, inputs []SynthesisInput) (io.ReadCloser, error)
	Name() string
}

// Response is the common envelope for text-producing model calls.
type Response struct {
	Text string
}
