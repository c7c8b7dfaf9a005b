package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AbNAt-Cell/NoteTaker/deepgram"
)

func TestDeepgramSessionSurvivesMalformedFrame(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()

		ws.WriteMessage(websocket.TextMessage, []byte(`{not json`))
		ws.WriteMessage(websocket.TextMessage, []byte(
			`{"type":"Results","start":1.2,"duration":0.8,"is_final":true,`+
				`"channel":{"alternatives":[{"transcript":"still here"}]}}`,
		))
		for {
			_, data, err := ws.ReadMessage()
			if err != nil || strings.Contains(string(data), "CloseStream") {
				return
			}
		}
	}))
	defer srv.Close()

	client := deepgram.NewClient("secret", testLogger())
	client.BaseURL = "ws" + strings.TrimPrefix(srv.URL, "http")

	sink := &recordingSink{}
	s := NewSession(newTestStream("dg1", sink), Inline, testLogger(), nil)
	if err := s.Connect(context.Background(), NewDeepgramProvider(client, testLogger())); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	waitFor(t, "final published", func() bool { return len(sink.Durable()) == 1 })
	if s.State() != Streaming {
		t.Errorf("state = %v after malformed frame, want streaming", s.State())
	}

	s.Drain(time.Second)
	if s.Err() != nil {
		t.Errorf("Err = %v", s.Err())
	}
	seg := sink.Durable()[0].Segments[0]
	if seg.Start != "1.200" || seg.End != "2.000" || seg.Text != "still here" {
		t.Errorf("unexpected segment %+v", seg)
	}
}
