// Package syncer is the Kafka transport adapter at the ingestion boundary:
// it moves event records between machines but only ever speaks the
// ingestion contract, so the core stays transport-agnostic. The store's
// deterministic event ids make redelivery harmless.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/splitclock/splitclock/internal/event"
	"github.com/splitclock/splitclock/internal/ingest"
	"github.com/splitclock/splitclock/internal/store"
)

// Config holds the Kafka endpoint for event sync.
type Config struct {
	Brokers       string
	Topic         string
	ConsumerGroup string
}

// Consumer reads event records from the sync topic and feeds them through
// the idempotent insert path.
type Consumer struct {
	reader *kafka.Reader
	store  *store.Store
}

// NewConsumer creates a consumer for the configured sync topic.
func NewConsumer(cfg Config, st *store.Store) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(cfg.Brokers, ","),
		Topic:    cfg.Topic,
		GroupID:  cfg.ConsumerGroup,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader, store: st}
}

// Run consumes until the context is canceled. A malformed message is
// logged and skipped; it never stops the sync loop.
func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("event sync consumer started")
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read sync message: %w", err)
		}
		if err := c.handle(msg); err != nil {
			slog.Warn("dropping sync message", "offset", msg.Offset, "error", err)
		}
	}
}

// handle decodes one message into an event record and inserts it.
func (c *Consumer) handle(msg kafka.Message) error {
	var rec ingest.Record
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	e, err := rec.Event()
	if err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}
	if _, err := c.store.InsertEvents([]event.Event{e}); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

func (c *Consumer) Close() error { return c.reader.Close() }

// Publisher pushes local event records onto the sync topic for other
// machines to consume.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a publisher for the configured sync topic.
func NewPublisher(cfg Config) *Publisher {
	return &Publisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}}
}

// Publish writes one message per record, keyed by the deterministic event
// id so a record always lands on the same partition.
func (p *Publisher) Publish(ctx context.Context, records []ingest.Record) error {
	msgs := make([]kafka.Message, 0, len(records))
	for _, rec := range records {
		e, err := rec.Event()
		if err != nil {
			slog.Warn("skipping invalid record on publish", "error", err)
			continue
		}
		value, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", e.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.ID),
			Value: value,
			Time:  e.Timestamp,
		})
	}
	if len(msgs) == 0 {
		return nil
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *Publisher) Close() error { return p.writer.Close() }
