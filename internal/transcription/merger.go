package transcription

import (
	"sort"

	"github.com/rpgscribe/rpgscribe/internal/types"
)

// relativeSlackSeconds is the tolerance of the offset-correction heuristic:
// a timestamp more than this far below its segment's start offset is
// treated as segment-relative and re-anchored. The speech model is not
// perfectly consistent about returning segment-relative versus absolute
// time, so the merge has to handle both.
const relativeSlackSeconds = 5.0

// SegmentResult pairs a segment with the utterances transcribed from it.
type SegmentResult struct {
	Segment    types.AudioSegment
	Utterances []types.Utterance
}

// Merge re-anchors each segment's utterance timestamps onto the full
// recording's timeline and produces one chronologically ordered transcript.
//
// With a single segment there is no merge ambiguity: its utterances are
// used directly and no offset correction is applied. Otherwise, a timestamp
// more than 5 seconds below the segment's start offset gets the offset
// added; anything else is trusted as already absolute. The final order is a
// stable sort by time, so equal timestamps keep segment-index order and
// intra-segment order.
func Merge(results []SegmentResult) types.Transcript {
	if len(results) == 1 {
		utterances := append([]types.Utterance(nil), results[0].Utterances...)
		return types.Transcript{
			Utterances: utterances,
			FlatText:   types.RenderFlatText(utterances),
		}
	}

	ordered := append([]SegmentResult(nil), results...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Segment.Index < ordered[j].Segment.Index
	})

	var merged []types.Utterance
	for _, res := range ordered {
		offset := res.Segment.StartOffsetSeconds
		for _, u := range res.Utterances {
			if u.TimeSeconds < offset-relativeSlackSeconds {
				u.TimeSeconds += offset
			}
			merged = append(merged, u)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].TimeSeconds < merged[j].TimeSeconds
	})

	return types.Transcript{
		Utterances: merged,
		FlatText:   types.RenderFlatText(merged),
	}
}
