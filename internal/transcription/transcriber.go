// Package transcription turns audio segments into timestamped utterances
// and merges per-segment results into one chronological transcript.
package transcription

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rpgscribe/rpgscribe/internal/ai"
	"github.com/rpgscribe/rpgscribe/internal/types"
)

const baseInstruction = `Transcribe this tabletop RPG session recording. Return JSON only, no markdown, with the shape:
{"segments": [{"timeSeconds": <number>, "text": "<spoken line>", "speaker": "<optional label>"}]}
Every utterance needs a timeSeconds value. If the audio cannot be transcribed, return {"error": "<reason>"}.`

// SegmentTranscriber sends one audio segment plus a context prompt to the
// speech model and validates the structured result. It performs no retries;
// retry policy belongs to the orchestrator.
type SegmentTranscriber struct {
	stt ai.SpeechToText
	cfg ai.GenerationConfig
	log *logrus.Logger
}

// NewSegmentTranscriber wires a transcriber onto a speech-to-text capability.
func NewSegmentTranscriber(stt ai.SpeechToText, cfg ai.GenerationConfig, log *logrus.Logger) *SegmentTranscriber {
	return &SegmentTranscriber{stt: stt, cfg: cfg, log: log}
}

// Transcribe runs one segment through the model and returns its utterances
// with timestamps still segment-local (re-anchoring happens in the merger).
func (t *SegmentTranscriber) Transcribe(ctx context.Context, segment types.AudioSegment, glossary types.GlossaryContext) ([]types.Utterance, error) {
	prompt := BuildPrompt(segment, glossary)

	resp, err := t.stt.Transcribe(ctx, segment.LocalPath, prompt, t.cfg)
	if err != nil {
		return nil, fmt.Errorf("speech model call for segment %d: %w", segment.Index, err)
	}

	payload, err := ai.DecodeTranscription(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("segment %d: %w", segment.Index, err)
	}

	t.log.WithFields(logrus.Fields{
		"segment":    segment.Index,
		"utterances": len(payload.Segments),
	}).Info("segment transcribed")

	return payload.Segments, nil
}

// BuildPrompt assembles the transcription instruction for one segment:
// the base instruction, an optional glossary reference block scoped to
// spelling only, and for non-first segments a temporal-anchoring
// instruction with one worked example.
func BuildPrompt(segment types.AudioSegment, glossary types.GlossaryContext) string {
	var b strings.Builder
	b.WriteString(baseInstruction)

	if !glossary.Empty() {
		b.WriteString("\n\nREFERENCE GLOSSARY (for correct spelling only, do not invent content):")
		writeGlossaryList(&b, "Characters", glossary.Characters)
		writeGlossaryList(&b, "Places", glossary.Places)
		writeGlossaryList(&b, "Quests", glossary.Quests)
		writeGlossaryList(&b, "Factions", glossary.Factions)
	}

	if segment.Index > 0 {
		b.WriteString(fmt.Sprintf(
			"\n\nThis audio is a continuation chunk starting %.0f seconds into the full recording. "+
				"Report timeSeconds relative to the START OF THIS CHUNK, not the full recording. "+
				"Example: a line spoken 30 seconds into this chunk has timeSeconds 30, not %.0f.",
			segment.StartOffsetSeconds, segment.StartOffsetSeconds+30,
		))
	}

	return b.String()
}

func writeGlossaryList(b *strings.Builder, label string, names []string) {
	if len(names) == 0 {
		return
	}
	b.WriteString("\n")
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(strings.Join(names, ", "))
}
