package podcast

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/rpgscribe/rpgscribe/internal/ai"
	"github.com/rpgscribe/rpgscribe/internal/types"
)

// VoiceAssignment maps a dialogue role to a vendor voice identity.
type VoiceAssignment map[string]string

// VoiceSynthesizer renders a whole dialogue script as one multi-speaker
// synthesis call, so the vendor controls conversational pacing, and
// concatenates the streamed response into a single buffer.
type VoiceSynthesizer struct {
	synth ai.SpeechSynthesizer
	log   *logrus.Logger
}

// NewVoiceSynthesizer wires a VoiceSynthesizer onto a synthesis capability.
func NewVoiceSynthesizer(synth ai.SpeechSynthesizer, log *logrus.Logger) *VoiceSynthesizer {
	return &VoiceSynthesizer{synth: synth, log: log}
}

// Synthesize converts the script into audio bytes. An empty resulting
// buffer is a fatal ErrEmptySynthesis.
func (v *VoiceSynthesizer) Synthesize(ctx context.Context, script types.DialogueScript, voices VoiceAssignment) ([]byte, error) {
	inputs := make([]ai.SynthesisInput, 0, len(script.Segments))
	for i, seg := range script.Segments {
		voiceID, ok := voices[seg.Speaker]
		if !ok {
			return nil, fmt.Errorf("segment %d: no voice assigned for speaker %q", i, seg.Speaker)
		}
		inputs = append(inputs, ai.SynthesisInput{Text: seg.Text, VoiceID: voiceID})
	}

	stream, err := v.synth.Convert(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("synthesis call: %w", err)
	}
	defer stream.Close()

	audio, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("read synthesis stream: %w", err)
	}
	if len(audio) == 0 {
		return nil, types.ErrEmptySynthesis
	}

	v.log.WithField("bytes", len(audio)).Info("podcast audio synthesized")
	return audio, nil
}
