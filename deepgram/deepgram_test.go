package deepgram

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

func TestDefaultLiveOptionsQuery(t *testing.T) {
	q := DefaultLiveOptions("").Query()

	expected := map[string]string{
		"model":        "nova-3",
		"language":     "en",
		"smart_format": "true",
		"diarize":      "true",
		"encoding":     "linear16",
		"channels":     "1",
		"sample_rate":  "16000",
	}
	for k, v := range expected {
		if got := q.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}

	if got := DefaultLiveOptions("fr").Language; got != "fr" {
		t.Errorf("Language = %q, want fr", got)
	}
}

func TestParseMessage(t *testing.T) {
	data := []byte(`{
		"type": "Results",
		"start": 1.2,
		"duration": 0.8,
		"is_final": true,
		"channel": {"alternatives": [{
			"transcript": "hello there",
			"confidence": 0.98,
			"words": [
				{"word": "hello", "start": 1.2, "end": 1.5, "speaker": 1},
				{"word": "there", "start": 1.5, "end": 2.0, "speaker": 1}
			]
		}]}
	}`)

	m, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	alt := m.Alternative()
	if alt == nil {
		t.Fatal("expected an alternative")
	}
	if alt.Transcript != "hello there" || !m.IsFinal || m.Start != 1.2 || m.Duration != 0.8 {
		t.Errorf("unexpected message %+v", m)
	}
	if s := alt.Speaker(); s == nil || *s != 1 {
		t.Errorf("Speaker = %v", s)
	}
}

func TestParseMessageWithoutChannel(t *testing.T) {
	m, err := ParseMessage([]byte(`{"type":"Metadata","request_id":"abc"}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.Alternative() != nil {
		t.Error("metadata should carry no alternative")
	}

	m, err = ParseMessage([]byte(`{"type":"Results","channel":{"alternatives":[]}}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.Alternative() != nil {
		t.Error("empty alternatives should yield nil")
	}
}

func TestParseErrorMessage(t *testing.T) {
	m, err := ParseMessage([]byte(`{"type":"Error","description":"bad audio"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !m.IsError() || m.ErrorText() != "bad audio" {
		t.Errorf("unexpected %+v", m)
	}
}

func TestConnectRequiresAPIKey(t *testing.T) {
	c := NewClient("", log.New(io.Discard))
	_, err := c.Connect(context.Background(), DefaultLiveOptions(""))
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestConnectStreamsAudio(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan []byte, 1)
	closeStream := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token secret" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.URL.Query().Get("sample_rate"); got != "16000" {
			t.Errorf("sample_rate = %q", got)
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()

		_, audio, err := ws.ReadMessage()
		if err != nil {
			return
		}
		received <- audio

		ws.WriteMessage(websocket.TextMessage, []byte(
			`{"type":"Results","start":0,"duration":1,"is_final":true,`+
				`"channel":{"alternatives":[{"transcript":"hi","words":[{"word":"hi","speaker":0}]}]}}`,
		))

		_, ctrl, err := ws.ReadMessage()
		if err != nil {
			return
		}
		closeStream <- string(ctrl)
	}))
	defer srv.Close()

	c := NewClient("secret", log.New(io.Discard))
	c.BaseURL = "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, err := c.Connect(context.Background(), DefaultLiveOptions("en"))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	if err := conn.SendAudio([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case audio := <-received:
		if len(audio) != 4 {
			t.Errorf("server got %d bytes", len(audio))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received audio")
	}

	m, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if alt := m.Alternative(); alt == nil || alt.Transcript != "hi" {
		t.Fatalf("unexpected message %+v", m)
	}

	if err := conn.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	select {
	case ctrl := <-closeStream:
		if !strings.Contains(ctrl, "CloseStream") {
			t.Errorf("control message = %q", ctrl)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received CloseStream")
	}
}

func TestReadMessageSkipsMalformedFrames(t *testing.T) {
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
		ws.ReadMessage()
	}))
	defer srv.Close()

	c := NewClient("secret", log.New(io.Discard))
	c.BaseURL = "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, err := c.Connect(context.Background(), DefaultLiveOptions("en"))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	m, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if alt := m.Alternative(); alt == nil || alt.Transcript != "still here" || m.Start != 1.2 {
		t.Errorf("unexpected message %+v", m)
	}
}
