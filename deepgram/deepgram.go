package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const (
	ListenURL         = "wss://api.deepgram.com/v1/listen"
	KeepAliveInterval = 5 * time.Second
	WriteTimeout      = 10 * time.Second
)

var ErrMissingAPIKey = errors.New("deepgram: API key not configured")

type LiveOptions struct {
	Model          string
	Language       string
	SmartFormat    bool
	Diarize        bool
	InterimResults bool
	Encoding       string
	Channels       int
	SampleRate     int
}

// DefaultLiveOptions matches the 16 kHz mono linear PCM the relay forwards.
func DefaultLiveOptions(language string) LiveOptions {
	if language == "" {
		language = "en"
	}
	return LiveOptions{
		Model:          "nova-3",
		Language:       language,
		SmartFormat:    true,
		Diarize:        true,
		InterimResults: true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     16000,
	}
}

func (o LiveOptions) Query() url.Values {
	q := url.Values{}
	q.Set("model", o.Model)
	q.Set("language", o.Language)
	q.Set("smart_format", strconv.FormatBool(o.SmartFormat))
	q.Set("diarize", strconv.FormatBool(o.Diarize))
	q.Set("interim_results", strconv.FormatBool(o.InterimResults))
	q.Set("encoding", o.Encoding)
	q.Set("channels", strconv.Itoa(o.Channels))
	q.Set("sample_rate", strconv.Itoa(o.SampleRate))
	return q
}

type Client struct {
	APIKey  string
	BaseURL string
	Dialer  *websocket.Dialer
	logger  *log.Logger
}

func NewClient(apiKey string, logger *log.Logger) *Client {
	return &Client{
		APIKey:  apiKey,
		BaseURL: ListenURL,
		Dialer:  websocket.DefaultDialer,
		logger:  logger,
	}
}

// Connect opens a live transcription socket. It returns once the
// handshake has completed.
func (c *Client) Connect(ctx context.Context, opts LiveOptions) (*Conn, error) {
	if c.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	u := c.BaseURL + "?" + opts.Query().Encode()
	header := http.Header{}
	header.Set("Authorization", fmt.Sprintf("Token %s", c.APIKey))

	ws, resp, err := c.Dialer.DialContext(ctx, u, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial deepgram: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial deepgram: %w", err)
	}

	c.logger.Info("open", "kind", "deepgram", "model", opts.Model, "language", opts.Language)

	conn := &Conn{ws: ws, logger: c.logger, done: make(chan struct{})}
	go conn.keepAlive(KeepAliveInterval)
	return conn, nil
}

type Conn struct {
	ws     *websocket.Conn
	logger *log.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func (c *Conn) SendAudio(data []byte) error {
	if err := c.write(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("send audio: %w", err)
	}
	return nil
}

type controlMessage struct {
	Type string `json:"type"`
}

// Finish asks the provider to flush remaining results and close the stream.
func (c *Conn) Finish() error {
	data, _ := json.Marshal(controlMessage{Type: "CloseStream"})
	if err := c.write(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send close stream: %w", err)
	}
	return nil
}

func (c *Conn) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(WriteTimeout))
	return c.ws.WriteMessage(messageType, data)
}

func (c *Conn) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	data, _ := json.Marshal(controlMessage{Type: "KeepAlive"})
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.write(websocket.TextMessage, data); err != nil {
				c.logger.Warn("keepalive failed", "error", err)
				return
			}
		}
	}
}

// ReadMessage blocks for the next text frame from the provider. Frames
// that do not decode are logged and skipped; only socket errors are
// returned.
func (c *Conn) ReadMessage() (*Message, error) {
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		m, err := ParseMessage(data)
		if err != nil {
			c.logger.Warn("skip malformed message", "error", err, "size", len(data))
			continue
		}
		return m, nil
	}
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
