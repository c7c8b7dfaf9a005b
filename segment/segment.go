package segment

import (
	"fmt"
	"strconv"
)

// Transcript is one recognition result as the provider reported it.
type Transcript struct {
	Text     string
	IsFinal  bool
	Start    float64
	Duration float64
	Speaker  *int
}

// Segment is the canonical unit of transcribed text. Times are seconds
// formatted with three decimals, which is also the wire format.
type Segment struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	Language  string `json:"language,omitempty"`
	Speaker   string `json:"speaker,omitempty"`
}

func FormatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func SpeakerLabel(n int) string {
	return fmt.Sprintf("Speaker %d", n)
}

// StartSeconds parses the formatted start time.
func (s Segment) StartSeconds() float64 {
	f, _ := strconv.ParseFloat(s.Start, 64)
	return f
}

func (s Segment) EndSeconds() float64 {
	f, _ := strconv.ParseFloat(s.End, 64)
	return f
}
