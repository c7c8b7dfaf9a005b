package segment

import (
	"strings"
	"sync"
)

// Assembler turns provider transcripts into segments and keeps the
// finalized history of one audio stream. The history only ever grows.
type Assembler struct {
	filter   *Filter
	language string

	mu      sync.Mutex
	history []Segment
	pending *Segment
}

func NewAssembler(filter *Filter, language string) *Assembler {
	if filter == nil {
		filter = DefaultFilter()
	}
	return &Assembler{filter: filter, language: language}
}

// Assemble converts t into a segment. It reports false when the
// transcript carries no usable text. Final segments are appended to the
// history; interim ones replace the pending hypothesis.
func (a *Assembler) Assemble(t Transcript) (Segment, bool) {
	if strings.TrimSpace(t.Text) == "" {
		return Segment{}, false
	}
	text, ok := a.filter.Apply(t.Text)
	if !ok {
		return Segment{}, false
	}

	seg := Segment{
		Start:     FormatSeconds(t.Start),
		End:       FormatSeconds(t.Start + t.Duration),
		Text:      text,
		Completed: t.IsFinal,
		Language:  a.language,
	}
	if t.Speaker != nil {
		seg.Speaker = SpeakerLabel(*t.Speaker)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if t.IsFinal {
		a.history = append(a.history, seg)
		a.pending = nil
	} else {
		p := seg
		a.pending = &p
	}
	return seg, true
}

// History returns a copy of the finalized segments in arrival order.
func (a *Assembler) History() []Segment {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Segment, len(a.history))
	copy(out, a.history)
	return out
}

func (a *Assembler) Pending() (Segment, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending == nil {
		return Segment{}, false
	}
	return *a.pending, true
}

// Live is the history followed by the latest interim hypothesis, if any.
func (a *Assembler) Live() []Segment {
	out := a.History()
	if p, ok := a.Pending(); ok {
		out = append(out, p)
	}
	return out
}

func (a *Assembler) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.history)
}
