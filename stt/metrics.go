package stt

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const meterName = "github.com/AbNAt-Cell/NoteTaker/stt"

type instruments struct {
	segments        metric.Int64Counter
	publishFailures metric.Int64Counter
	reconnects      metric.Int64Counter
	droppedChunks   metric.Int64Counter
	sessions        metric.Int64UpDownCounter
}

// The global meter delegates to whatever provider is installed later,
// so creating instruments at init is fine.
var telemetry = newInstruments()

var tracer trace.Tracer = otel.Tracer(meterName)

func newInstruments() instruments {
	m := otel.Meter(meterName)
	var in instruments
	in.segments, _ = m.Int64Counter(
		"stt.segments",
		metric.WithDescription("Segments emitted, by completion"),
	)
	in.publishFailures, _ = m.Int64Counter(
		"stt.publish.failures",
		metric.WithDescription("Downstream deliveries that failed"),
	)
	in.reconnects, _ = m.Int64Counter(
		"stt.reconnects",
		metric.WithDescription("Provider reconnect attempts"),
	)
	in.droppedChunks, _ = m.Int64Counter(
		"stt.audio.dropped_chunks",
		metric.WithDescription("Audio chunks dropped by a full input queue"),
	)
	in.sessions, _ = m.Int64UpDownCounter(
		"stt.sessions.active",
		metric.WithDescription("Provider sessions currently connecting or streaming"),
	)
	return in
}

func (in instruments) segment(ctx context.Context, completed bool) {
	if in.segments == nil {
		return
	}
	in.segments.Add(ctx, 1, metric.WithAttributes(attribute.Bool("completed", completed)))
}

func (in instruments) publishFailed(ctx context.Context, channel string) {
	if in.publishFailures == nil {
		return
	}
	in.publishFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
}

func (in instruments) reconnect(ctx context.Context) {
	if in.reconnects == nil {
		return
	}
	in.reconnects.Add(ctx, 1)
}

func (in instruments) dropped(ctx context.Context, n int) {
	if in.droppedChunks == nil || n == 0 {
		return
	}
	in.droppedChunks.Add(ctx, int64(n))
}

func (in instruments) sessionDelta(ctx context.Context, d int64) {
	if in.sessions == nil {
		return
	}
	in.sessions.Add(ctx, d)
}
