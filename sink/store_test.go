package sink

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/AbNAt-Cell/NoteTaker/segment"
)

func TestSQLiteKeepsLongestSnapshot(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "data", "transcripts.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	two := testDurable()
	two.Segments = append(two.Segments, segment.Segment{Start: "2.000", End: "3.000", Text: "second", Completed: true})
	if err := store.StoreTranscript(ctx, two); err != nil {
		t.Fatal(err)
	}
	// A late, shorter snapshot must not shrink the stored history.
	if err := store.StoreTranscript(ctx, testDurable()); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].Text != "second" {
		t.Errorf("stored = %+v", got)
	}

	missing, err := store.Load(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("Load(missing) = %v, %v", missing, err)
	}
}

type fakeKafkaWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func TestKafkaKeysByUID(t *testing.T) {
	w := &fakeKafkaWriter{}
	if err := NewKafka(w).StoreTranscript(context.Background(), testDurable()); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "u1" {
		t.Errorf("key = %q", w.msgs[0].Key)
	}
	if len(w.msgs[0].Value) == 0 {
		t.Error("empty value")
	}
}

func TestKafkaWrapsErrors(t *testing.T) {
	boom := errors.New("leader not available")
	err := NewKafka(&fakeKafkaWriter{err: boom}).StoreTranscript(context.Background(), testDurable())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}
