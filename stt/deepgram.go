package stt

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"github.com/AbNAt-Cell/NoteTaker/deepgram"
	"github.com/AbNAt-Cell/NoteTaker/segment"
)

type DeepgramProvider struct {
	client *deepgram.Client
	logger *log.Logger
}

func NewDeepgramProvider(
	client *deepgram.Client,
	logger *log.Logger,
) *DeepgramProvider {
	return &DeepgramProvider{client: client, logger: logger}
}

func (p *DeepgramProvider) Connect(
	ctx context.Context,
	opts Options,
) (Connection, error) {
	conn, err := p.client.Connect(ctx, deepgram.DefaultLiveOptions(opts.Language))
	if err != nil {
		if errors.Is(err, deepgram.ErrMissingAPIKey) {
			return nil, ErrMissingCredentials
		}
		return nil, err
	}
	return &deepgramConnection{conn: conn, logger: p.logger}, nil
}

type deepgramConnection struct {
	conn   *deepgram.Conn
	logger *log.Logger
}

func (c *deepgramConnection) SendAudio(data []byte) error {
	return c.conn.SendAudio(data)
}

func (c *deepgramConnection) Finish() error {
	return c.conn.Finish()
}

func (c *deepgramConnection) Close() error {
	return c.conn.Close()
}

func (c *deepgramConnection) Next() (ProviderEvent, error) {
	m, err := c.conn.ReadMessage()
	if err != nil {
		return ProviderEvent{}, err
	}
	if m.IsError() {
		return ProviderEvent{Err: m.ErrorText()}, nil
	}

	alt := m.Alternative()
	if alt == nil {
		c.logger.Debug("skip", "type", m.Type)
		return ProviderEvent{}, nil
	}

	return ProviderEvent{
		Transcript: &segment.Transcript{
			Text:     alt.Transcript,
			IsFinal:  m.IsFinal,
			Start:    m.Start,
			Duration: m.Duration,
			Speaker:  alt.Speaker(),
		},
	}, nil
}
