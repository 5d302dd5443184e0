// Package broker carries chunk-upload messages from ingest to the
// consumers that place and store them, over Kafka via franz-go.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/kluzzebass/filemesh/internal/chunkmsg"
	"github.com/kluzzebass/filemesh/internal/logging"
)

// DefaultTopic is the queue ingest publishes to and consumers read
// from.
const DefaultTopic = "fileChunksQueue"

// Publisher produces chunk messages to the broker.
type Publisher struct {
	client *kgo.Client
	topic  string
}

// NewPublisher dials brokers and returns a Publisher for topic. If
// topic is empty, DefaultTopic is used.
func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("kafka publisher client: %w", err)
	}
	return &Publisher{client: client, topic: topic}, nil
}

// Close releases the underlying client.
func (p *Publisher) Close() { p.client.Close() }

// Publish sends one chunk message and waits for the broker to
// acknowledge it.
func (p *Publisher) Publish(ctx context.Context, msg chunkmsg.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal chunk message: %w", err)
	}

	result := p.client.ProduceSync(ctx, &kgo.Record{
		Topic: p.topic,
		Key:   []byte(msg.FileID),
		Value: payload,
	})
	if err := result.FirstErr(); err != nil {
		return fmt.Errorf("produce chunk message: %w", err)
	}
	return nil
}

// Handler processes one decoded chunk message. A nil error commits
// the record's offset; any error leaves it uncommitted for redelivery.
type Handler func(ctx context.Context, msg chunkmsg.Message) error

// Consumer polls the broker and hands each record to a Handler,
// committing offsets only after a successful handle.
type Consumer struct {
	client *kgo.Client
	logger *slog.Logger
}

// NewConsumer dials brokers as member of group, consuming topic (or
// DefaultTopic if empty). Offsets are committed manually so a handler
// failure naturally redelivers the record.
func NewConsumer(brokers []string, topic, group string, logger *slog.Logger) (*Consumer, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumerGroup(group),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer client: %w", err)
	}
	return &Consumer{
		client: client,
		logger: logging.Default(logger).With("component", "broker-consumer"),
	}, nil
}

// Close releases the underlying client.
func (c *Consumer) Close() { c.client.Close() }

// Run polls fetches until ctx is cancelled, calling handle for each
// record. Records that fail to parse are logged and committed
// anyway — retrying a record franz-go itself can't decode would loop
// forever. Records that parse but fail handle are left uncommitted,
// so redelivery is automatic via the consumer group's offset.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	c.logger.Info("broker consumer started")
	for {
		fetches := c.client.PollFetches(ctx)
		if ctx.Err() != nil {
			c.logger.Info("broker consumer stopping")
			return nil
		}

		if errs := fetches.Errors(); len(errs) > 0 {
			for _, e := range errs {
				c.logger.Warn("fetch error", "topic", e.Topic, "partition", e.Partition, "error", e.Err)
			}
		}

		fetches.EachRecord(func(rec *kgo.Record) {
			var msg chunkmsg.Message
			if err := json.Unmarshal(rec.Value, &msg); err != nil {
				c.logger.Error("dropping unparseable chunk message", "error", err, "offset", rec.Offset)
				c.client.MarkCommitRecords(rec)
				return
			}

			if err := handle(ctx, msg); err != nil {
				c.logger.Warn("chunk handling failed, leaving uncommitted for redelivery",
					"file_id", msg.FileID, "chunk_id", msg.ChunkID, "error", err)
				return
			}

			c.client.MarkCommitRecords(rec)
		})

		if err := c.client.CommitMarkedOffsets(ctx); err != nil {
			c.logger.Warn("commit offsets failed", "error", err)
		}
	}
}
