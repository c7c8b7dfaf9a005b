package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"

	"github.com/AbNAt-Cell/NoteTaker/stt"
)

const DefaultNATSSubject = "transcripts.live"

type natsPublisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes live segments on "<prefix>.<uid>".
type NATS struct {
	conn   natsPublisher
	prefix string
}

func NewNATS(conn natsPublisher, prefix string) *NATS {
	if prefix == "" {
		prefix = DefaultNATSSubject
	}
	return &NATS{conn: conn, prefix: prefix}
}

func (n *NATS) Subject(uid string) string {
	return n.prefix + "." + uid
}

func (n *NATS) SendLive(ctx context.Context, msg stt.LiveMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode segment: %w", err)
	}
	if err := n.conn.Publish(n.Subject(msg.UID), data); err != nil {
		return fmt.Errorf("publish %s: %w", n.Subject(msg.UID), err)
	}
	return nil
}

func ConnectNATS(url string, logger *log.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("notetaker-relay"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return conn, nil
}
