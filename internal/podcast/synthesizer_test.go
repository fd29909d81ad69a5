package podcast

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpgscribe/rpgscribe/internal/ai"
	"github.com/rpgscribe/rpgscribe/internal/types"
)

type fakeSynth struct {
	audio  []byte
	err    error
	inputs []ai.SynthesisInput
	calls  int
}

func (f *fakeSynth) Convert(_ context.Context, inputs []ai.SynthesisInput) (io.ReadCloser, error) {
	f.calls++
	f.inputs = inputs
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(bytes.NewReader(f.audio)), nil
}

func (f *fakeSynth) Name() string { return "fake-tts" }

var testVoices = VoiceAssignment{
	types.RoleHost:  "voice-alloy",
	types.RoleGuest: "voice-ember",
}

func testScript() types.DialogueScript {
	return types.DialogueScript{Segments: []types.DialogueSegment{
		{Speaker: types.RoleHost, Text: "Welcome back."},
		{Speaker: types.RoleGuest, Text: "Glad to be here."},
		{Speaker: types.RoleHost, Text: "Let's recap."},
	}}
}

func TestSynthesizeSingleMultiSpeakerCall(t *testing.T) {
	synth := &fakeSynth{audio: []byte("mp3-bytes")}
	v := NewVoiceSynthesizer(synth, testLogger())

	audio, err := v.Synthesize(context.Background(), testScript(), testVoices)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), audio)

	// One call for the whole script, not one per line.
	assert.Equal(t, 1, synth.calls)
	require.Len(t, synth.inputs, 3)
	assert.Equal(t, "voice-alloy", synth.inputs[0].VoiceID)
	assert.Equal(t, "voice-ember", synth.inputs[1].VoiceID)
	assert.Equal(t, "voice-alloy", synth.inputs[2].VoiceID)
}

func TestSynthesizeUnknownSpeaker(t *testing.T) {
	script := types.DialogueScript{Segments: []types.DialogueSegment{
		{Speaker: "NARRATOR", Text: "Once upon a time."},
	}}
	v := NewVoiceSynthesizer(&fakeSynth{audio: []byte("x")}, testLogger())

	_, err := v.Synthesize(context.Background(), script, testVoices)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NARRATOR")
}

func TestSynthesizeEmptyBufferIsFatal(t *testing.T) {
	v := NewVoiceSynthesizer(&fakeSynth{audio: nil}, testLogger())
	_, err := v.Synthesize(context.Background(), testScript(), testVoices)
	assert.ErrorIs(t, err, types.ErrEmptySynthesis)
}

func TestSynthesizeVendorError(t *testing.T) {
	v := NewVoiceSynthesizer(&fakeSynth{err: errors.New("voice service unavailable")}, testLogger())
	_, err := v.Synthesize(context.Background(), testScript(), testVoices)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "voice service unavailable")
}
