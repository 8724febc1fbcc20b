// Package producer defines the Guaranteed/Hasty producer ports and the
// context-flag dispatcher that selects between them, per spec §4.7. Modeled
// as two instances behind one port plus a selector on the context, not as a
// type hierarchy — the two variants differ only in when the returned future
// (here, the Ack) resolves.
package producer

// file: internal/producer/producer.go

import (
	"context"
	"time"

	"github.com/dkoosis/cowgnition/internal/logging"
)

// Ack is the opaque result of a successful produce call. Offset is
// meaningful only for a Guaranteed producer; a Hasty producer returns an Ack
// with no Offset since the broker has not yet confirmed persistence.
type Ack struct {
	Topic     string
	Partition int32
	Offset    int64
}

// Producer is the shape both Guaranteed and Hasty implementations share.
// Partition, key, and timestamp are optional; nil means "let the underlying
// client choose".
type Producer interface {
	Produce(ctx context.Context, topic string, partition *int32, key *string, timestamp *time.Time, payload []byte) (Ack, error)
}

type hastyKey struct{}

// WithHasty marks ctx as requesting the Hasty producer, per the `hasty`
// request query flag.
func WithHasty(ctx context.Context, hasty bool) context.Context {
	return context.WithValue(ctx, hastyKey{}, hasty)
}

// IsHasty reports whether ctx was marked via WithHasty.
func IsHasty(ctx context.Context) bool {
	v, _ := ctx.Value(hastyKey{}).(bool)
	return v
}

// Dispatcher routes a produce call to Hasty when the context requests it and
// a Hasty producer is configured, otherwise to Guaranteed.
type Dispatcher struct {
	guaranteed Producer
	hasty      Producer
	logger     logging.Logger
}

// NewDispatcher builds a Dispatcher. hasty may be nil, in which case every
// call routes to guaranteed regardless of the context flag.
func NewDispatcher(guaranteed, hasty Producer, logger logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.GetNoopLogger()
	}
	return &Dispatcher{
		guaranteed: guaranteed,
		hasty:      hasty,
		logger:     logger.WithField("component", "producer_dispatcher"),
	}
}

// Dispatch sends payload to topic via whichever producer the context
// selects.
func (d *Dispatcher) Dispatch(ctx context.Context, topic string, partition *int32, key *string, timestamp *time.Time, payload []byte) (Ack, error) {
	if IsHasty(ctx) && d.hasty != nil {
		return d.hasty.Produce(ctx, topic, partition, key, timestamp, payload)
	}
	return d.guaranteed.Produce(ctx, topic, partition, key, timestamp, payload)
}
