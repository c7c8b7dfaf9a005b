package stt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/AbNAt-Cell/NoteTaker/segment"
)

func TestPublisherKeepsGoingAfterSinkFailure(t *testing.T) {
	broken := &recordingSink{err: errors.New("redis down")}
	healthy := &recordingSink{}
	pub := NewPublisher(
		testLogger(),
		[]LiveSink{broken, healthy},
		[]DurableSink{broken, healthy},
	)

	meta := Metadata{UID: "p1", Token: "t", Platform: "zoom", MeetingID: "42"}
	seg := segment.Segment{Start: "0.000", End: "1.000", Text: "hi", Completed: true}
	pub.Segment(context.Background(), meta, 0, seg)
	pub.Finalized(context.Background(), meta, 0, []segment.Segment{seg})

	if len(healthy.Live()) != 1 || len(healthy.Durable()) != 1 {
		t.Errorf("healthy sink got %d live, %d durable", len(healthy.Live()), len(healthy.Durable()))
	}
	if len(broken.Live()) != 1 || len(broken.Durable()) != 1 {
		t.Error("broken sink was not attempted")
	}
}

func TestLiveMessageJSON(t *testing.T) {
	msg := LiveMessage{
		UID:      "abc",
		Segments: []segment.Segment{{Start: "0.000", End: "0.500", Text: "yo"}},
		Backend:  Backend,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"uid", "segments", "backend", "speaker_epoch"} {
		if _, ok := got[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
	if got["backend"] != "deepgram" {
		t.Errorf("backend = %v", got["backend"])
	}
}

func TestPublisherWithAddsLiveSink(t *testing.T) {
	base := &recordingSink{}
	extra := &recordingSink{}
	pub := NewPublisher(testLogger(), []LiveSink{base}, nil).With(extra)

	pub.Segment(context.Background(), Metadata{UID: "p2"}, 0, segment.Segment{Text: "x"})

	if len(base.Live()) != 1 || len(extra.Live()) != 1 {
		t.Errorf("base %d, extra %d", len(base.Live()), len(extra.Live()))
	}
}
