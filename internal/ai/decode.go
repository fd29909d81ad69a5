package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rpgscribe/rpgscribe/internal/types"
)

// TranscriptionPayload is the decoded body of a speech-to-text response.
type TranscriptionPayload struct {
	Segments []types.Utterance `json:"segments"`
	Error    string            `json:"error,omitempty"`
	Message  string            `json:"message,omitempty"`
}

// transcriptionEnvelope mirrors the wire shape before validation. Segments
// stays raw so an empty array and a missing field are distinguishable from
// a non-object response.
type transcriptionEnvelope struct {
	Segments []struct {
		TimeSeconds float64 `json:"timeSeconds"`
		Text        string  `json:"text"`
		Speaker     string  `json:"speaker,omitempty"`
	} `json:"segments"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// DecodeTranscription parses a model's raw text output into a validated
// payload. Decoders are tried per known shape: a bare JSON object, then the
// same object wrapped in a markdown code fence. Anything else is an
// unrecognized-shape error rather than a guess.
//
// A model-reported error field wins over any segments present. Empty or
// missing segments after a successful parse is ErrNoTranscriptionContent.
func DecodeTranscription(raw string) (*TranscriptionPayload, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return nil, fmt.Errorf("%w: empty response body", types.ErrNoTranscriptionContent)
	}

	env, err := decodeEnvelope(candidate)
	if err != nil {
		if fenced, ok := stripCodeFence(candidate); ok {
			env, err = decodeEnvelope(fenced)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrUnrecognizedResponse, err)
	}

	if env.Error != "" {
		msg := env.Error
		if env.Message != "" {
			msg = msg + ": " + env.Message
		}
		return nil, fmt.Errorf("model reported error: %s", msg)
	}
	if len(env.Segments) == 0 {
		return nil, fmt.Errorf("%w: response carried no segments", types.ErrNoTranscriptionContent)
	}

	payload := &TranscriptionPayload{Message: env.Message}
	for _, s := range env.Segments {
		payload.Segments = append(payload.Segments, types.Utterance{
			TimeSeconds:  s.TimeSeconds,
			Text:         strings.TrimSpace(s.Text),
			SpeakerLabel: strings.TrimSpace(s.Speaker),
		})
	}
	return payload, nil
}

func decodeEnvelope(candidate string) (*transcriptionEnvelope, error) {
	dec := json.NewDecoder(strings.NewReader(candidate))
	var env transcriptionEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, err
	}
	return &env, nil
}

// stripCodeFence unwraps ```json ... ``` fenced output, which some models
// add despite instructions not to.
func stripCodeFence(raw string) (string, bool) {
	if !strings.HasPrefix(raw, "```") {
		return "", false
	}
	body := strings.TrimPrefix(raw, "```json")
	body = strings.TrimPrefix(body, "```")
	idx := strings.LastIndex(body, "```")
	if idx < 0 {
		return "", false
	}
	return strings.TrimSpace(body[:idx]), true
}
