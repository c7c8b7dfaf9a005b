package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/AbNAt-Cell/NoteTaker/segment"
	"github.com/AbNAt-Cell/NoteTaker/stt"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	calls []execCall
	err   error
}

func (f *fakeExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func TestPostgresStoresSnapshot(t *testing.T) {
	db := &fakeExecer{}
	pg := NewPostgres(db)
	msg := testDurable()
	msg.SpeakerEpoch = 2

	if err := pg.StoreTranscript(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if len(db.calls) != 1 {
		t.Fatalf("calls = %d", len(db.calls))
	}
	call := db.calls[0]
	if !strings.Contains(call.sql, "ON CONFLICT (uid)") {
		t.Errorf("expected an upsert, got %s", call.sql)
	}
	if call.args[0] != "u1" || call.args[4] != 2 || call.args[5] != 1 {
		t.Errorf("args = %v", call.args)
	}

	var segs []segment.Segment
	if err := json.Unmarshal(call.args[6].([]byte), &segs); err != nil {
		t.Fatal(err)
	}
	if len(segs) != 1 || segs[0].Speaker != "Speaker 0" {
		t.Errorf("segments = %+v", segs)
	}
}

func TestPostgresMigrateRunsSchema(t *testing.T) {
	db := &fakeExecer{}
	if err := NewPostgres(db).Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(db.calls[0].sql, "CREATE TABLE IF NOT EXISTS transcript_snapshots") {
		t.Errorf("schema not executed: %s", db.calls[0].sql)
	}
}

func TestPostgresWrapsErrors(t *testing.T) {
	boom := errors.New("connection reset")
	err := NewPostgres(&fakeExecer{err: boom}).StoreTranscript(context.Background(), testDurable())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}

type fakeNATS struct {
	subject string
	data    []byte
}

func (f *fakeNATS) Publish(subject string, data []byte) error {
	f.subject, f.data = subject, data
	return nil
}

func TestNATSPublishesPerStreamSubject(t *testing.T) {
	conn := &fakeNATS{}
	msg := stt.LiveMessage{UID: "u7", Backend: stt.Backend, Segments: testDurable().Segments}

	if err := NewNATS(conn, "").SendLive(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if conn.subject != "transcripts.live.u7" {
		t.Errorf("subject = %q", conn.subject)
	}
	var got stt.LiveMessage
	if err := json.Unmarshal(conn.data, &got); err != nil {
		t.Fatal(err)
	}
	if got.UID != "u7" || len(got.Segments) != 1 {
		t.Errorf("unexpected message %+v", got)
	}
}

func TestConsolePrintsSegments(t *testing.T) {
	var buf bytes.Buffer
	msg := stt.LiveMessage{UID: "u1", Segments: []segment.Segment{
		{Start: "1.000", End: "2.000", Text: "partial", Speaker: "Speaker 1"},
	}}

	if err := NewConsole(&buf).SendLive(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"1.000", "Speaker 1", "partial"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}
