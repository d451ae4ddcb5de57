// Package stream publishes committed ledger events to Kafka.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dvpsettle/dvpd/internal/ledger"
)

// Writer is the part of *kafka.Writer the sink uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter constructs a writer that hashes message keys onto
// partitions, so the events of one contract stay in order.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 200 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

// Sink buffers committed events and drains them to a Writer from a single
// goroutine. When the buffer is full, new batches are dropped rather than
// blocking the ledger.
type Sink struct {
	w       Writer
	buf     chan []ledger.Event
	dropped atomic.Uint64
	logger  *slog.Logger
}

// NewSink creates a sink holding up to buffer pending transactions.
func NewSink(w Writer, buffer int, logger *slog.Logger) *Sink {
	if buffer < 1 {
		buffer = 1
	}
	return &Sink{
		w:      w,
		buf:    make(chan []ledger.Event, buffer),
		logger: logger,
	}
}

// Publish enqueues the events of one transaction. It never blocks and is
// meant to be passed to ledger.Subscribe.
func (s *Sink) Publish(events []ledger.Event) {
	select {
	case s.buf <- events:
	default:
		n := s.dropped.Add(uint64(len(events)))
		s.logger.Warn("event stream buffer full, dropping events",
			slog.Int("count", len(events)),
			slog.Uint64("dropped_total", n),
		)
	}
}

// Dropped returns how many events were discarded because the buffer was
// full.
func (s *Sink) Dropped() uint64 {
	return s.dropped.Load()
}

// Run drains the buffer until ctx is cancelled, then closes the writer.
func (s *Sink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return s.w.Close()
		case events := <-s.buf:
			s.write(ctx, events)
		}
	}
}

func (s *Sink) write(ctx context.Context, events []ledger.Event) {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		msg, err := encode(e)
		if err != nil {
			s.logger.Error("encode event", slog.Uint64("seq", e.Seq), slog.String("error", err.Error()))
			continue
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return
	}
	if err := s.w.WriteMessages(ctx, msgs...); err != nil {
		s.logger.Error("publish events",
			slog.Uint64("first_seq", events[0].Seq),
			slog.Int("count", len(msgs)),
			slog.String("error", err.Error()),
		)
	}
}

func encode(e ledger.Event) (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(e.Contract.Hex()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(e.Name)},
		},
		Time: e.Timestamp,
	}, nil
}
