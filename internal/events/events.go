package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xtrntr/feeledger/internal/models"
)

// Envelope carries a committed ledger event to subscribers
type Envelope struct {
	ID      uuid.UUID       `json:"id"`
	Market  models.Identity `json:"market"`
	Type    string          `json:"type"`
	Time    time.Time       `json:"time"`
	Payload models.Event    `json:"payload"`
}

// NewEnvelope wraps an event emitted in market
func NewEnvelope(market models.Identity, ev models.Event, at time.Time) Envelope {
	return Envelope{
		ID:      uuid.New(),
		Market:  market,
		Type:    ev.EventName(),
		Time:    at.UTC(),
		Payload: ev,
	}
}

// Sink receives published events
type Sink interface {
	Publish(ctx context.Context, env Envelope) error
}

// Bus fans events out to every sink. A failing sink is logged and does not
// stop delivery to the others.
type Bus struct {
	logger *zap.Logger
	sinks  []Sink
}

// NewBus creates a bus delivering to sinks in order
func NewBus(logger *zap.Logger, sinks ...Sink) *Bus {
	return &Bus{logger: logger, sinks: sinks}
}

// Publish delivers env to every sink
func (b *Bus) Publish(ctx context.Context, env Envelope) {
	for _, s := range b.sinks {
		if err := s.Publish(ctx, env); err != nil {
			b.logger.Warn("Failed to publish event",
				zap.String("type", env.Type),
				zap.Stringer("id", env.ID),
				zap.Error(err))
		}
	}
}

// LogSink writes every event to a zap logger
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink logging at info level
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish logs the event
func (s *LogSink) Publish(_ context.Context, env Envelope) error {
	s.logger.Info("Ledger event",
		zap.String("type", env.Type),
		zap.Stringer("id", env.ID),
		zap.Stringer("market", env.Market),
		zap.Any("payload", env.Payload))
	return nil
}
