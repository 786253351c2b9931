// Package export renders an analysed fight as an edit decision list so the
// segment breakdown can be laid on an editor's timeline.
package export

import (
	"math"
	"strconv"

	"github.com/ringside/ringside-agent/internal/backend"
)

// DefaultSegmentSize is used when the analysis omits segment_size.
const DefaultSegmentSize = 30.0

// Event is one segment of the source video.
type Event struct {
	Name    string
	StartMs int
	EndMs   int
	Notes   []string
}

// Events turns analysed segments into contiguous timeline events. Each
// event carries the general analysis and, when present, the head coach's
// note.
func Events(result *backend.AnalysisResult) []Event {
	size := result.SegmentSize
	if size <= 0 {
		size = DefaultSegmentSize
	}
	sizeMs := int(math.Round(size * 1000))

	events := make([]Event, 0, len(result.ChunkAnalyses))
	for i, seg := range result.ChunkAnalyses {
		ev := Event{
			Name:    segmentName(i, seg),
			StartMs: i * sizeMs,
			EndMs:   (i + 1) * sizeMs,
		}
		if seg.GeneralAnalyst != "" {
			ev.Notes = append(ev.Notes, seg.GeneralAnalyst)
		}
		if seg.HeadCoach != "" {
			ev.Notes = append(ev.Notes, "COACH: "+seg.HeadCoach)
		}
		if seg.Error != "" {
			ev.Notes = append(ev.Notes, "ERROR: "+seg.Error)
		}
		events = append(events, ev)
	}
	return events
}

func segmentName(i int, seg backend.SegmentAnalysis) string {
	if seg.ChunkFilename != "" {
		return seg.ChunkFilename
	}
	return "Segment " + strconv.Itoa(i+1)
}
