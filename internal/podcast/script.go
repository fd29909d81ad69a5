// Package podcast turns session prose into a two-host dialogue script and
// synthesizes it into a single audio stream.
package podcast

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rpgscribe/rpgscribe/internal/ai"
	"github.com/rpgscribe/rpgscribe/internal/types"
)

// WordsPerMinute is the assumed speaking rate used for the duration
// estimate.
const WordsPerMinute = 150

const scriptSystemInstruction = `You write two-host podcast scripts. The hosts recap and discuss a tabletop RPG session story with energy and humor. Output ONLY dialogue lines, each prefixed with "HOST:" or "GUEST:". No headings, no markdown, no stage directions.`

// ScriptGenerator prompts a text model for a two-speaker dialogue and
// parses the tagged lines out of it, enforcing a hard character budget.
type ScriptGenerator struct {
	gen ai.TextGenerator
	cfg ai.GenerationConfig
	log *logrus.Logger
}

// NewScriptGenerator wires a ScriptGenerator onto a text capability.
func NewScriptGenerator(gen ai.TextGenerator, cfg ai.GenerationConfig, log *logrus.Logger) *ScriptGenerator {
	return &ScriptGenerator{gen: gen, cfg: cfg, log: log}
}

// Generate produces a dialogue script from prose. A script whose total text
// exceeds maxCharacters is rejected with ErrScriptTooLong, never silently
// truncated: truncation would cut audio mid-sentence.
func (g *ScriptGenerator) Generate(ctx context.Context, prose string, maxCharacters int) (types.DialogueScript, error) {
	prompt := fmt.Sprintf(
		"Write a podcast dialogue of at most %d total characters discussing this story:\n\n%s",
		maxCharacters, prose,
	)

	resp, err := g.gen.Generate(ctx, []string{prompt}, scriptSystemInstruction, g.cfg)
	if err != nil {
		return types.DialogueScript{}, fmt.Errorf("script model call: %w", err)
	}

	script, err := ParseScript(resp.Text)
	if err != nil {
		return types.DialogueScript{}, err
	}

	if total := script.CharacterCount(); total > maxCharacters {
		return types.DialogueScript{}, fmt.Errorf("%w: %d > %d", types.ErrScriptTooLong, total, maxCharacters)
	}

	g.log.WithFields(logrus.Fields{
		"segments":     len(script.Segments),
		"est_duration": script.EstimatedDurationSeconds,
	}).Info("dialogue script generated")

	return script, nil
}

// ParseScript keeps only lines beginning with a recognized role tag;
// preamble, markdown fences and anything else the model added are
// discarded. Zero surviving lines is ErrNoSegmentsParsed.
func ParseScript(text string) (types.DialogueScript, error) {
	var segments []types.DialogueSegment

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		for _, role := range []string{types.RoleHost, types.RoleGuest} {
			tag := role + ":"
			if strings.HasPrefix(line, tag) {
				body := strings.TrimSpace(strings.TrimPrefix(line, tag))
				if body != "" {
					segments = append(segments, types.DialogueSegment{Speaker: role, Text: body})
				}
				break
			}
		}
	}

	if len(segments) == 0 {
		return types.DialogueScript{}, types.ErrNoSegmentsParsed
	}

	return types.DialogueScript{
		Segments:                 segments,
		EstimatedDurationSeconds: EstimateDurationSeconds(segments),
	}, nil
}

// EstimateDurationSeconds derives playing time from word count at the
// assumed speaking rate: ceil(words / WordsPerMinute * 60).
func EstimateDurationSeconds(segments []types.DialogueSegment) int {
	words := 0
	for _, seg := range segments {
		words += len(strings.Fields(seg.Text))
	}
	return int(math.Ceil(float64(words) / WordsPerMinute * 60))
}
