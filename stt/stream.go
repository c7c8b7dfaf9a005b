package stt

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/AbNAt-Cell/NoteTaker/segment"
)

// Stream is the state of one logical audio stream. It outlives the
// provider sessions that serve it, so its finalized history survives
// reconnects.
type Stream struct {
	Meta Metadata

	assembler *segment.Assembler
	publisher *Publisher
	logger    *log.Logger

	mu        sync.Mutex
	epoch     int
	connected bool
}

func NewStream(
	meta Metadata,
	filter *segment.Filter,
	publisher *Publisher,
	logger *log.Logger,
) *Stream {
	return &Stream{
		Meta:      meta,
		assembler: segment.NewAssembler(filter, meta.Language),
		publisher: publisher,
		logger:    logger,
	}
}

// Dispatch runs one provider event through the assembler and publishes
// the result.
func (s *Stream) Dispatch(ctx context.Context, ev ProviderEvent) {
	if ev.Err != "" {
		s.logger.Error("provider error", "uid", s.Meta.UID, "message", ev.Err)
		return
	}
	if ev.Transcript == nil {
		return
	}

	seg, ok := s.assembler.Assemble(*ev.Transcript)
	if !ok {
		return
	}
	telemetry.segment(ctx, seg.Completed)

	epoch := s.Epoch()
	if seg.Completed {
		s.logger.Info("hear", "uid", s.Meta.UID, "txt", seg.Text, "speaker", seg.Speaker)
	} else {
		s.logger.Debug("hear", "uid", s.Meta.UID, "tmp", seg.Text)
	}

	s.publisher.Segment(ctx, s.Meta, epoch, seg)
	if seg.Completed {
		s.publisher.Finalized(ctx, s.Meta, epoch, s.assembler.History())
	}
}

// markConnected records that a provider session reached streaming. The
// provider numbers speakers per connection, so every reconnect starts a
// new speaker epoch.
func (s *Stream) markConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		s.epoch++
		s.logger.Warn(
			"reconnected, speaker labels restart",
			"uid", s.Meta.UID,
			"epoch", s.epoch,
		)
	}
	s.connected = true
}

func (s *Stream) Epoch() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *Stream) History() []segment.Segment {
	return s.assembler.History()
}

// Live is what a live view should show: history plus the latest interim.
func (s *Stream) Live() []segment.Segment {
	return s.assembler.Live()
}
