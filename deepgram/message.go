package deepgram

import (
	"encoding/json"
	"fmt"
)

type Word struct {
	Word           string  `json:"word"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	Confidence     float64 `json:"confidence"`
	Speaker        *int    `json:"speaker,omitempty"`
	PunctuatedWord string  `json:"punctuated_word,omitempty"`
}

type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	Words      []Word  `json:"words"`
}

type Channel struct {
	Alternatives []Alternative `json:"alternatives"`
}

// Message is the subset of the live response envelope the relay reads.
type Message struct {
	Type        string   `json:"type"`
	Start       float64  `json:"start"`
	Duration    float64  `json:"duration"`
	IsFinal     bool     `json:"is_final"`
	SpeechFinal bool     `json:"speech_final"`
	Channel     *Channel `json:"channel"`

	Description string `json:"description,omitempty"`
	ErrMessage  string `json:"message,omitempty"`
}

func ParseMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse deepgram message: %w", err)
	}
	return &m, nil
}

func (m *Message) IsError() bool {
	return m.Type == "Error"
}

func (m *Message) ErrorText() string {
	if m.Description != "" {
		return m.Description
	}
	return m.ErrMessage
}

// Alternative returns the top alternative, or nil when the message has
// no channel data.
func (m *Message) Alternative() *Alternative {
	if m.Channel == nil || len(m.Channel.Alternatives) == 0 {
		return nil
	}
	return &m.Channel.Alternatives[0]
}

// Speaker is the diarization tag of the first word, if any.
func (a *Alternative) Speaker() *int {
	if len(a.Words) == 0 {
		return nil
	}
	return a.Words[0].Speaker
}
