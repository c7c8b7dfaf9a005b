// Package server accepts producer audio over a websocket and runs one
// relay worker per connection.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AbNAt-Cell/NoteTaker/segment"
	"github.com/AbNAt-Cell/NoteTaker/stt"
)

const (
	EndOfAudio       = "END_OF_AUDIO"
	ServerReady      = "SERVER_READY"
	MissingKeyReason = "DEEPGRAM_API_KEY not configured on server."

	configTimeout = 10 * time.Second
	writeTimeout  = 10 * time.Second
)

// ClientConfig is the first text frame a producer sends.
type ClientConfig struct {
	UID        string `json:"uid"`
	Language   string `json:"language"`
	Platform   string `json:"platform"`
	MeetingID  string `json:"meeting_id"`
	MeetingURL string `json:"meeting_url"`
	Token      string `json:"token"`
}

type reply struct {
	UID     string `json:"uid"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message"`
	Backend string `json:"backend,omitempty"`
}

type Options struct {
	Provider  stt.Provider
	Publisher *stt.Publisher
	Filter    *segment.Filter
	Worker    stt.WorkerConfig
	Language  string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Logger  *log.Logger
}

type Server struct {
	opts     Options
	logger   *log.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	workers map[string]*stt.Worker
}

func New(opts Options) *Server {
	if opts.Publisher == nil {
		opts.Publisher = stt.NewPublisher(opts.Logger, nil, nil)
	}
	return &Server{
		opts:   opts,
		logger: opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		workers: make(map[string]*stt.Worker),
	}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", s.handleStream)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/streams", s.handleList)
	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics)
	}
	return r
}

// conn serializes writes: replies come from the handler while live
// segments come from the worker's receive goroutine.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

func (c *conn) close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(time.Second),
	)
	c.ws.Close()
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrade", "error", err)
		return
	}
	c := &conn{ws: ws}

	cfg, err := readConfig(ws)
	if err != nil {
		s.logger.Warn("bad config frame", "error", err)
		c.writeJSON(reply{Status: "ERROR", Message: err.Error()})
		c.close("bad config")
		return
	}
	if cfg.UID == "" {
		cfg.UID = uuid.NewString()
	}
	if cfg.Language == "" {
		cfg.Language = s.opts.Language
	}
	logger := s.logger.With("uid", cfg.UID)

	meta := stt.Metadata{
		UID:        cfg.UID,
		Token:      cfg.Token,
		Platform:   cfg.Platform,
		MeetingID:  cfg.MeetingID,
		MeetingURL: cfg.MeetingURL,
		Language:   cfg.Language,
	}
	toClient := stt.LiveSinkFunc(func(ctx context.Context, msg stt.LiveMessage) error {
		return c.writeJSON(msg)
	})
	stream := stt.NewStream(meta, s.opts.Filter, s.opts.Publisher.With(toClient), logger)
	worker := stt.NewWorker(stream, s.opts.Provider, s.opts.Worker, logger)

	if !s.register(cfg.UID, worker) {
		c.writeJSON(reply{UID: cfg.UID, Status: "ERROR", Message: "uid already streaming"})
		c.close("duplicate uid")
		return
	}
	defer s.unregister(cfg.UID)

	if err := worker.Start(r.Context()); err != nil {
		msg := err.Error()
		if errors.Is(err, stt.ErrMissingCredentials) {
			msg = MissingKeyReason
		}
		logger.Error("start failed", "error", err)
		c.writeJSON(reply{UID: cfg.UID, Status: "ERROR", Message: msg})
		c.close("start failed")
		return
	}

	c.writeJSON(reply{UID: cfg.UID, Message: ServerReady, Backend: stt.Backend})
	logger.Info("producer connected", "platform", cfg.Platform, "meeting", cfg.MeetingID)

	go func() {
		select {
		case <-worker.Failed():
			c.writeJSON(reply{UID: cfg.UID, Status: "ERROR", Message: worker.Err().Error()})
			c.close("provider failed")
		case <-r.Context().Done():
		}
	}()

	s.pump(ws, worker, logger)
	worker.Stop()
	c.close("")
}

func readConfig(ws *websocket.Conn) (ClientConfig, error) {
	var cfg ClientConfig
	ws.SetReadDeadline(time.Now().Add(configTimeout))
	defer ws.SetReadDeadline(time.Time{})

	typ, data, err := ws.ReadMessage()
	if err != nil {
		return cfg, err
	}
	if typ != websocket.TextMessage {
		return cfg, errors.New("first frame must be a JSON config")
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.New("invalid JSON config")
	}
	return cfg, nil
}

// pump forwards producer frames until end of audio or disconnect.
func (s *Server) pump(ws *websocket.Conn, worker *stt.Worker, logger *log.Logger) {
	for {
		typ, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("producer read", "error", err)
			}
			return
		}
		switch typ {
		case websocket.BinaryMessage:
			if _, err := worker.Write(data); err != nil {
				return
			}
		case websocket.TextMessage:
			if string(data) == EndOfAudio {
				logger.Info("end of audio")
				return
			}
			logger.Debug("ignoring text frame", "len", len(data))
		}
	}
}

func (s *Server) register(uid string, w *stt.Worker) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workers[uid]; ok {
		return false
	}
	s.workers[uid] = w
	return true
}

func (s *Server) unregister(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workers, uid)
}

type StreamInfo struct {
	UID       string `json:"uid"`
	Platform  string `json:"platform"`
	MeetingID string `json:"meeting_id"`
	Segments  int    `json:"segments"`
	Epoch     int    `json:"speaker_epoch"`
	State     string `json:"state"`
}

func (s *Server) Streams() []StreamInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StreamInfo, 0, len(s.workers))
	for uid, w := range s.workers {
		info := StreamInfo{
			UID:       uid,
			Platform:  w.Stream().Meta.Platform,
			MeetingID: w.Stream().Meta.MeetingID,
			Segments:  len(w.Stream().History()),
			Epoch:     w.Stream().Epoch(),
			State:     "connecting",
		}
		if sess := w.Session(); sess != nil {
			info.State = sess.State().String()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Streams())
}

// Shutdown stops every active stream.
func (s *Server) Shutdown() {
	s.mu.Lock()
	workers := make([]*stt.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Stop()
		}()
	}
	wg.Wait()
}
