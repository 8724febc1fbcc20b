// Package producer's in-memory broker is the concrete Producer
// implementation used when no external broker client is configured.
// Grounded on the teacher's InMemoryTransport
// (internal/transport/in_memory_transport.go): a buffered channel standing
// in for the wire, a closed flag guarding further use, and context-aware
// select on every blocking operation — repurposed here from framing
// JSON-RPC messages to delivering produced records and reporting broker
// acks.
package producer

// file: internal/producer/memory.go

import (
	"context"
	"sync"
	"time"

	"github.com/dkoosis/cowgnition/internal/eventerr"
	"github.com/dkoosis/cowgnition/internal/logging"
)

// Record is one message accepted by the broker, kept for test observation
// via Broker.Records.
type Record struct {
	Topic     string
	Partition int32
	Key       string
	Timestamp time.Time
	Payload   []byte
}

type inFlight struct {
	Record
	done chan deliverResult
}

type deliverResult struct {
	ack Ack
	err error
}

// Broker is a fake, in-process stand-in for a message broker client. It
// accepts produce calls onto a bounded queue (rejecting immediately when
// full, per spec §4.7's backpressure requirement) and "delivers" them on a
// background goroutine, handing each sender an ack once its turn comes.
type Broker struct {
	mu         sync.Mutex
	queue      chan *inFlight
	nextOffset map[string]int64
	records    []Record
	closed     bool
	logger     logging.Logger
}

// NewBroker starts a Broker with the given queue capacity.
func NewBroker(queueSize int, logger logging.Logger) *Broker {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = logging.GetNoopLogger()
	}
	b := &Broker{
		queue:      make(chan *inFlight, queueSize),
		nextOffset: make(map[string]int64),
		logger:     logger.WithField("component", "memory_broker"),
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	for msg := range b.queue {
		b.mu.Lock()
		offset := b.nextOffset[msg.Topic]
		b.nextOffset[msg.Topic] = offset + 1
		b.records = append(b.records, msg.Record)
		b.mu.Unlock()

		msg.done <- deliverResult{ack: Ack{Topic: msg.Topic, Partition: msg.Partition, Offset: offset}}
		close(msg.done)
	}
}

// Close stops accepting new messages. In-flight deliveries already queued
// are still processed.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.queue)
}

// Records returns a snapshot of every delivered record, for test assertions.
func (b *Broker) Records() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Record, len(b.records))
	copy(out, b.records)
	return out
}

func (b *Broker) enqueue(topic string, partition *int32, key *string, timestamp *time.Time, payload []byte) (*inFlight, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, eventerr.New(eventerr.ProduceFailure, "broker is closed")
	}

	var p int32
	if partition != nil {
		p = *partition
	}
	var k string
	if key != nil {
		k = *key
	}
	var ts time.Time
	if timestamp != nil {
		ts = *timestamp
	} else {
		ts = time.Now().UTC()
	}

	msg := &inFlight{
		Record: Record{Topic: topic, Partition: p, Key: k, Timestamp: ts, Payload: payload},
		done:   make(chan deliverResult, 1),
	}

	select {
	case b.queue <- msg:
		return msg, nil
	default:
		return nil, eventerr.New(eventerr.ProduceFailure, "producer queue is full")
	}
}

// GuaranteedProducer resolves only once the broker has "acknowledged"
// persistence (here: its turn on the delivery goroutine).
type GuaranteedProducer struct {
	broker *Broker
}

// NewGuaranteedProducer wraps broker as a Guaranteed Producer.
func NewGuaranteedProducer(broker *Broker) *GuaranteedProducer {
	return &GuaranteedProducer{broker: broker}
}

// Produce implements Producer, blocking until the broker acks or ctx is done.
func (p *GuaranteedProducer) Produce(ctx context.Context, topic string, partition *int32, key *string, timestamp *time.Time, payload []byte) (Ack, error) {
	msg, err := p.broker.enqueue(topic, partition, key, timestamp, payload)
	if err != nil {
		return Ack{}, err
	}
	select {
	case <-ctx.Done():
		return Ack{}, eventerr.Wrap(ctx.Err(), eventerr.ProduceFailure, "context canceled waiting for broker ack")
	case res := <-msg.done:
		if res.err != nil {
			return Ack{}, eventerr.Wrap(res.err, eventerr.ProduceFailure, "broker rejected message")
		}
		return res.ack, nil
	}
}

// HastyProducer resolves as soon as the message is accepted onto the queue,
// without waiting for the broker ack.
type HastyProducer struct {
	broker *Broker
}

// NewHastyProducer wraps broker as a Hasty Producer.
func NewHastyProducer(broker *Broker) *HastyProducer {
	return &HastyProducer{broker: broker}
}

// Produce implements Producer, returning immediately after local enqueue.
func (p *HastyProducer) Produce(_ context.Context, topic string, partition *int32, key *string, timestamp *time.Time, payload []byte) (Ack, error) {
	var part int32
	if partition != nil {
		part = *partition
	}
	if _, err := p.broker.enqueue(topic, partition, key, timestamp, payload); err != nil {
		return Ack{}, err
	}
	return Ack{Topic: topic, Partition: part}, nil
}
