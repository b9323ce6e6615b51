package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/nerrad567/hostel-gate/internal/infrastructure/config"
)

// ErrDisabled indicates Kafka ingest is disabled in configuration.
var ErrDisabled = errors.New("kafka: disabled in configuration")

// readErrorBackoff throttles the loop while the broker is unreachable.
const readErrorBackoff = time.Second

// Logger is the subset of logging.Logger the consumer uses.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Handler processes one message. A returned error is logged; the message is
// still committed so a poison batch cannot stall the partition.
type Handler func(ctx context.Context, key, value []byte) error

// messageReader is the part of *kafka.Reader the consumer needs.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafkago.Message, error)
	Close() error
}

// Consumer reads offline batches from a topic with a consumer group.
type Consumer struct {
	reader  messageReader
	topic   string
	logger  Logger
	backoff time.Duration
}

// NewConsumer builds a group reader for cfg.Topic.
// It returns ErrDisabled when the kafka section is switched off.
func NewConsumer(cfg config.KafkaConfig) (*Consumer, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: brokers and topic are required")
	}

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	return newConsumer(reader, cfg.Topic), nil
}

func newConsumer(reader messageReader, topic string) *Consumer {
	return &Consumer{
		reader:  reader,
		topic:   topic,
		logger:  noopLogger{},
		backoff: readErrorBackoff,
	}
}

// SetLogger sets the logger. Call before Run.
func (c *Consumer) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Run reads messages and hands each to handler until ctx is done.
// Read errors are logged and retried. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	c.logger.Info("kafka consumer started", "topic", c.topic)
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("kafka read error", "topic", c.topic, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}

		if err := handler(ctx, m.Key, m.Value); err != nil {
			c.logger.Warn("kafka message rejected",
				"topic", c.topic,
				"partition", m.Partition,
				"offset", m.Offset,
				"error", err,
			)
		}
	}
}

// Close closes the underlying reader and commits nothing further.
func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("closing kafka reader: %w", err)
	}
	return nil
}
