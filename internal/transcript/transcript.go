// Package transcript defines the segment model shared by every
// transcription backend and the playback controller, plus file writers
// for the supported transcript formats.
package transcript

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Segment is a single timestamped span of transcript text. Start and End
// are in seconds; Confidence is nil when the backend does not report one.
type Segment struct {
	ID         string   `json:"id"`
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Result is a complete transcription. FullText is always populated;
// Segments may be empty when the backend returned no timing information.
type Result struct {
	FullText string    `json:"full_text"`
	Segments []Segment `json:"segments"`
}

// NewSegment creates a Segment with a fresh id and no confidence score.
func NewSegment(start, end float64, text string) Segment {
	return Segment{
		ID:    uuid.New().String(),
		Start: start,
		End:   end,
		Text:  text,
	}
}

// SortSegments orders segments chronologically by start time. The sort is
// stable so equal-start segments keep their arrival order. Diarized
// providers emit utterances out of order, so callers must sort before
// handing segments to the playback controller.
func SortSegments(segs []Segment) {
	sort.SliceStable(segs, func(i, j int) bool {
		return segs[i].Start < segs[j].Start
	})
}

// JoinText concatenates segment texts with the given separator, in segment
// order. Used to derive FullText when the backend reports only segments.
func JoinText(segs []Segment, sep string) string {
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = s.Text
	}
	return strings.Join(parts, sep)
}

// Duration returns the end time of the last segment, or 0 when there are
// no segments. Segments must already be sorted.
func Duration(segs []Segment) float64 {
	if len(segs) == 0 {
		return 0
	}
	return segs[len(segs)-1].End
}
