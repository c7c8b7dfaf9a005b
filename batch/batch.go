// Package batch describes the post-meeting transcription path. The
// live relay never calls it; it only shares the segment shape.
package batch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AbNAt-Cell/NoteTaker/deepgram"
	"github.com/AbNAt-Cell/NoteTaker/segment"
)

type Status string

const (
	Completed Status = "completed"
	Failed    Status = "failed"
)

// Recording points at stored meeting audio.
type Recording struct {
	MeetingID   string
	StoragePath string
	Duration    time.Duration
	Language    string
}

type Result struct {
	Status   Status
	Segments []segment.Segment
	Err      string
}

// FullText renders the result as "Speaker n: text" lines.
func (r Result) FullText() string {
	lines := make([]string, 0, len(r.Segments))
	for _, seg := range r.Segments {
		lines = append(lines, fmt.Sprintf("%s: %s", seg.Speaker, seg.Text))
	}
	return strings.Join(lines, "\n")
}

type Transcriber interface {
	Transcribe(ctx context.Context, rec Recording) (Result, error)
}

// GroupWords joins consecutive words from the same speaker into one
// completed segment. Words without a speaker tag count as speaker 0.
func GroupWords(words []deepgram.Word, language string) []segment.Segment {
	var (
		out     []segment.Segment
		current *segment.Segment
		speaker int
		text    []string
		start   float64
		end     float64
	)
	flush := func() {
		if current == nil {
			return
		}
		current.Text = strings.Join(text, " ")
		current.Start = segment.FormatSeconds(start)
		current.End = segment.FormatSeconds(end)
		out = append(out, *current)
	}

	for _, w := range words {
		n := 0
		if w.Speaker != nil {
			n = *w.Speaker
		}
		word := w.PunctuatedWord
		if word == "" {
			word = w.Word
		}
		if current == nil || n != speaker {
			flush()
			current = &segment.Segment{
				Completed: true,
				Language:  language,
				Speaker:   segment.SpeakerLabel(n),
			}
			speaker = n
			text = nil
			start = w.Start
		}
		text = append(text, word)
		end = w.End
	}
	flush()
	return out
}
