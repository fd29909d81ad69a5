package types

import (
	"fmt"
	"strings"
	"time"
)

// Stage identifies where a processing job currently is in the pipeline.
type Stage string

// Pipeline stages, in execution order. A UI can rely on these values.
const (
	StageSubmitted             Stage = "submitted"
	StageLoadingContext        Stage = "loading-context"
	StageTranscribing          Stage = "transcribing"
	StageTranscriptionComplete Stage = "transcription-complete"
	StageGeneratingStory       Stage = "generating-story"
	StageStoryComplete         Stage = "story-complete"
	StageGeneratingScript      Stage = "generating-script"
	StageScriptComplete        Stage = "script-complete"
	StageGeneratingAudio       Stage = "generating-audio"
	StageUploading             Stage = "uploading"
	StageCompleted             Stage = "completed"
	StageFailed                Stage = "failed"
)

// Dialogue speaker roles. Script lines must be prefixed with one of these
// tags (e.g. "HOST: ...") to survive parsing.
const (
	RoleHost  = "HOST"
	RoleGuest = "GUEST"
)

// AudioSegment is one slice of the source recording. Segments partition
// [0, totalDuration): EndOffsetSeconds of segment i equals
// StartOffsetSeconds of segment i+1.
type AudioSegment struct {
	Index              int
	StartOffsetSeconds float64
	EndOffsetSeconds   float64
	DurationSeconds    float64
	LocalPath          string
}

// Utterance is one timestamped spoken line. After merging, TimeSeconds is
// relative to the full recording.
type Utterance struct {
	TimeSeconds  float64 `json:"timeSeconds"`
	Text         string  `json:"text"`
	SpeakerLabel string  `json:"speaker,omitempty"`
}

// Transcript is the merged, chronologically ordered transcription of one
// session. Immutable once built.
type Transcript struct {
	Utterances []Utterance `json:"utterances"`
	FlatText   string      `json:"flatText"`
}

// DialogueSegment is one line of the generated podcast script.
type DialogueSegment struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// DialogueScript is the two-host conversation handed to speech synthesis.
type DialogueScript struct {
	Segments                 []DialogueSegment `json:"segments"`
	EstimatedDurationSeconds int               `json:"estimatedDurationSeconds"`
}

// CharacterCount returns the total text length across all segments, the
// quantity the synthesis character budget is enforced against.
func (s DialogueScript) CharacterCount() int {
	total := 0
	for _, seg := range s.Segments {
		total += len(seg.Text)
	}
	return total
}

// ProcessingJob is the durable progress record for one (campaign, session)
// pair. It is mutated in place after every stage transition and retained as
// an audit trail; a retry reuses the record and clears Error.
type ProcessingJob struct {
	CampaignID      string    `json:"campaignId"`
	SessionID       string    `json:"sessionId"`
	Version         int       `json:"version"`
	Stage           Stage     `json:"stage"`
	ProgressPercent int       `json:"progressPercent"`
	Message         string    `json:"message"`
	StartedAt       time.Time `json:"startedAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	Error           string    `json:"error,omitempty"`
}

// SessionSummary is one prior session's recap, used for narrative
// continuity. Summaries are supplied chronologically, oldest first.
type SessionSummary struct {
	SessionID string
	Title     string
	Summary   string
	CreatedAt time.Time
}

// GlossaryContext carries the campaign proper nouns injected into
// transcription and generation prompts for spelling only.
type GlossaryContext struct {
	Characters []string
	Places     []string
	Quests     []string
	Factions   []string
}

// Empty reports whether there is nothing worth injecting.
func (g GlossaryContext) Empty() bool {
	return len(g.Characters) == 0 && len(g.Places) == 0 &&
		len(g.Quests) == 0 && len(g.Factions) == 0
}

// FormatTimestamp renders seconds as the [mm:ss] prefix used in flat
// transcript text. Minutes are not wrapped at the hour.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("[%02d:%02d]", total/60, total%60)
}

// RenderFlatText joins utterances into the display form, one line each:
// "[mm:ss] text" or "[mm:ss] speaker: text" when a speaker label exists.
func RenderFlatText(utterances []Utterance) string {
	lines := make([]string, 0, len(utterances))
	for _, u := range utterances {
		if u.SpeakerLabel != "" {
			lines = append(lines, fmt.Sprintf("%s %s: %s", FormatTimestamp(u.TimeSeconds), u.SpeakerLabel, u.Text))
		} else {
			lines = append(lines, fmt.Sprintf("%s %s", FormatTimestamp(u.TimeSeconds), u.Text))
		}
	}
	return strings.Join(lines, "\n")
}
