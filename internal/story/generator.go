// Package story generates session prose from a merged transcript.
package story

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rpgscribe/rpgscribe/internal/ai"
	"github.com/rpgscribe/rpgscribe/internal/types"
)

// DefaultSummaryBudgetChars caps the total size of prior-session summaries
// injected for continuity.
const DefaultSummaryBudgetChars = 8000

const systemInstruction = `You are a fantasy author turning a tabletop RPG session transcript into an engaging short story. Write flowing prose in past tense, third person. Stay faithful to the events in the transcript; do not invent outcomes that did not happen at the table.`

// Context is the optional material biasing a story generation.
type Context struct {
	// PreviousSummaries are prior sessions' recaps, chronologically
	// ordered, oldest first.
	PreviousSummaries []types.SessionSummary
	Glossary          types.GlossaryContext
	// UserCorrections is free text from the user steering a regeneration.
	UserCorrections string
}

// Generator produces narrative prose via a text-generation capability.
type Generator struct {
	gen           ai.TextGenerator
	cfg           ai.GenerationConfig
	summaryBudget int
	log           *logrus.Logger
}

// NewGenerator builds a Generator with the default summary budget.
func NewGenerator(gen ai.TextGenerator, cfg ai.GenerationConfig, log *logrus.Logger) *Generator {
	return &Generator{gen: gen, cfg: cfg, summaryBudget: DefaultSummaryBudgetChars, log: log}
}

// WithSummaryBudget overrides the continuity character budget.
func (g *Generator) WithSummaryBudget(chars int) *Generator {
	g.summaryBudget = chars
	return g
}

// Generate turns the transcript into prose. Absent or empty model output is
// fatal for this stage and is not retried here.
func (g *Generator) Generate(ctx context.Context, transcript types.Transcript, sctx Context) (string, error) {
	contents := g.buildContents(transcript, sctx)

	resp, err := g.gen.Generate(ctx, contents, systemInstruction, g.cfg)
	if err != nil {
		return "", fmt.Errorf("story model call: %w", err)
	}

	prose := strings.TrimSpace(resp.Text)
	if prose == "" {
		return "", types.ErrEmptyGeneration
	}

	g.log.WithField("chars", len(prose)).Info("story generated")
	return prose, nil
}

func (g *Generator) buildContents(transcript types.Transcript, sctx Context) []string {
	var contents []string

	if kept := TrimSummaries(sctx.PreviousSummaries, g.summaryBudget); len(kept) > 0 {
		var b strings.Builder
		b.WriteString("Previous sessions, oldest first:\n")
		for _, s := range kept {
			if s.Title != "" {
				b.WriteString("## " + s.Title + "\n")
			}
			b.WriteString(s.Summary + "\n")
		}
		contents = append(contents, b.String())
	}

	if !sctx.Glossary.Empty() {
		var b strings.Builder
		b.WriteString("Campaign glossary (for correct spelling only):\n")
		appendNames(&b, "Characters", sctx.Glossary.Characters)
		appendNames(&b, "Places", sctx.Glossary.Places)
		appendNames(&b, "Quests", sctx.Glossary.Quests)
		appendNames(&b, "Factions", sctx.Glossary.Factions)
		contents = append(contents, b.String())
	}

	if sctx.UserCorrections != "" {
		contents = append(contents, "Apply these corrections from the user:\n"+sctx.UserCorrections)
	}

	contents = append(contents, "Session transcript:\n"+transcript.FlatText)
	return contents
}

// TrimSummaries keeps whole summaries within the character budget,
// dropping the oldest first. A kept summary is never truncated: either it
// fits in full or it is dropped.
func TrimSummaries(summaries []types.SessionSummary, budgetChars int) []types.SessionSummary {
	if len(summaries) == 0 || budgetChars <= 0 {
		return nil
	}

	// Walk newest to oldest, keeping while the budget holds.
	total := 0
	keepFrom := len(summaries)
	for i := len(summaries) - 1; i >= 0; i-- {
		size := len(summaries[i].Summary)
		if total+size > budgetChars {
			break
		}
		total += size
		keepFrom = i
	}
	if keepFrom == len(summaries) {
		return nil
	}
	return summaries[keepFrom:]
}

func appendNames(b *strings.Builder, label string, names []string) {
	if len(names) == 0 {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(names, ", "))
}
