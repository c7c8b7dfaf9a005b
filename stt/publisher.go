package stt

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AbNAt-Cell/NoteTaker/segment"
)

const Backend = "deepgram"

const publishTimeout = 5 * time.Second

// Metadata routes a stream's output downstream.
type Metadata struct {
	UID        string
	Token      string
	Platform   string
	MeetingID  string
	MeetingURL string
	Language   string
}

// LiveMessage carries one segment, final or interim, to a live consumer.
type LiveMessage struct {
	UID          string            `json:"uid"`
	Segments     []segment.Segment `json:"segments"`
	Backend      string            `json:"backend"`
	SpeakerEpoch int               `json:"speaker_epoch"`
}

// DurableMessage carries the whole finalized history; consumers
// deduplicate by content.
type DurableMessage struct {
	Type         string            `json:"type"`
	Token        string            `json:"token"`
	Platform     string            `json:"platform"`
	MeetingID    string            `json:"meeting_id"`
	UID          string            `json:"uid"`
	Segments     []segment.Segment `json:"segments"`
	SpeakerEpoch int               `json:"speaker_epoch"`
}

type LiveSink interface {
	SendLive(ctx context.Context, msg LiveMessage) error
}

type DurableSink interface {
	StoreTranscript(ctx context.Context, msg DurableMessage) error
}

type LiveSinkFunc func(ctx context.Context, msg LiveMessage) error

func (f LiveSinkFunc) SendLive(ctx context.Context, msg LiveMessage) error {
	return f(ctx, msg)
}

type DurableSinkFunc func(ctx context.Context, msg DurableMessage) error

func (f DurableSinkFunc) StoreTranscript(ctx context.Context, msg DurableMessage) error {
	return f(ctx, msg)
}

// Publisher delivers segments downstream on a best-effort basis: sink
// failures are logged and never reach the session.
type Publisher struct {
	live    []LiveSink
	durable []DurableSink
	logger  *log.Logger
}

func NewPublisher(logger *log.Logger, live []LiveSink, durable []DurableSink) *Publisher {
	return &Publisher{live: live, durable: durable, logger: logger}
}

// With returns a publisher that also delivers to the given live sinks.
func (p *Publisher) With(live ...LiveSink) *Publisher {
	sinks := make([]LiveSink, 0, len(p.live)+len(live))
	sinks = append(sinks, p.live...)
	sinks = append(sinks, live...)
	return &Publisher{live: sinks, durable: p.durable, logger: p.logger}
}

func (p *Publisher) Segment(
	ctx context.Context,
	meta Metadata,
	epoch int,
	seg segment.Segment,
) {
	msg := LiveMessage{
		UID:          meta.UID,
		Segments:     []segment.Segment{seg},
		Backend:      Backend,
		SpeakerEpoch: epoch,
	}
	for _, sink := range p.live {
		sctx, cancel := context.WithTimeout(ctx, publishTimeout)
		err := sink.SendLive(sctx, msg)
		cancel()
		if err != nil {
			telemetry.publishFailed(ctx, "live")
			p.logger.Error("live publish failed", "uid", meta.UID, "error", err)
		}
	}
}

func (p *Publisher) Finalized(
	ctx context.Context,
	meta Metadata,
	epoch int,
	history []segment.Segment,
) {
	ctx, span := tracer.Start(
		ctx,
		"stt.publish.durable",
		trace.WithAttributes(
			attribute.String("uid", meta.UID),
			attribute.Int("segments", len(history)),
		),
	)
	defer span.End()

	msg := DurableMessage{
		Type:         "transcription",
		Token:        meta.Token,
		Platform:     meta.Platform,
		MeetingID:    meta.MeetingID,
		UID:          meta.UID,
		Segments:     history,
		SpeakerEpoch: epoch,
	}
	for _, sink := range p.durable {
		sctx, cancel := context.WithTimeout(ctx, publishTimeout)
		err := sink.StoreTranscript(sctx, msg)
		cancel()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "durable sink failed")
			telemetry.publishFailed(ctx, "durable")
			p.logger.Error("durable publish failed", "uid", meta.UID, "error", err)
		}
	}
}
