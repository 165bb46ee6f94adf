package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coffersTech/logvault/internal/metrics"
	"github.com/coffersTech/logvault/internal/model"
	"github.com/coffersTech/logvault/internal/storage"
	"github.com/segmentio/kafka-go"
)

// Sink receives validated batches.
type Sink interface {
	BulkInsert(inputs []model.LogInput) (storage.BulkResult, []model.LogRecord, error)
}

// Publisher is notified of records once they are stored.
type Publisher interface {
	Publish(records ...model.LogRecord)
}

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Stats() kafka.ReaderStats
	Close() error
}

type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	GroupID       string
	BatchSize     int
	FlushInterval time.Duration
}

// Consumer reads JSON log inputs from a Kafka topic and stores them in batches.
// Offsets are committed only after a batch has been written.
type Consumer struct {
	reader        messageReader
	sink          Sink
	pub           Publisher
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
}

func NewConsumer(cfg ConsumerConfig, sink Sink, pub Publisher, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return newConsumer(r, cfg, sink, pub, logger)
}

func newConsumer(r messageReader, cfg ConsumerConfig, sink Sink, pub Publisher, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	return &Consumer{
		reader:        r,
		sink:          sink,
		pub:           pub,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		logger:        logger.With("component", "kafka"),
	}
}

// DecodeMessage turns a message value into a validated LogInput.
func DecodeMessage(value []byte) (model.LogInput, error) {
	var in model.LogInput
	if err := json.Unmarshal(value, &in); err != nil {
		return model.LogInput{}, fmt.Errorf("unmarshal log input: %w", err)
	}
	if err := in.Validate(); err != nil {
		return model.LogInput{}, err
	}
	return in, nil
}

// Start consumes until ctx is cancelled. Invalid messages are logged and
// committed with the next batch so they are not redelivered.
func (c *Consumer) Start(ctx context.Context) error {
	defer c.reader.Close()
	c.logger.Info("starting kafka consumer", "batch_size", c.batchSize, "flush_interval", c.flushInterval)

	go c.reportLag(ctx)

	inputs := make([]model.LogInput, 0, c.batchSize)
	pending := make([]kafka.Message, 0, c.batchSize)
	lastFlush := time.Now()

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if len(inputs) > 0 {
			_, added, err := c.sink.BulkInsert(inputs)
			if err != nil {
				return fmt.Errorf("store batch of %d logs: %w", len(inputs), err)
			}
			for i := range added {
				metrics.RecordIngested(string(added[i].Level), "kafka")
			}
			if c.pub != nil {
				c.pub.Publish(added...)
			}
		}

		// a failed commit means redelivery and duplicates, not data loss
		if err := c.reader.CommitMessages(ctx, pending...); err != nil {
			c.logger.Warn("failed to commit messages", "count", len(pending), "error", err)
		}

		metrics.KafkaMessagesConsumed.Add(float64(len(pending)))
		inputs = inputs[:0]
		pending = pending[:0]
		lastFlush = time.Now()
		return nil
	}

	for {
		deadline := time.Now().Add(c.flushInterval)
		if len(pending) > 0 {
			if time.Since(lastFlush) >= c.flushInterval {
				if err := flush(); err != nil {
					c.logger.Error("flush failed", "error", err)
					if !sleepCtx(ctx, time.Second) {
						return ctx.Err()
					}
				}
				continue
			}
			deadline = lastFlush.Add(c.flushInterval)
		}

		fetchCtx, cancel := context.WithDeadline(ctx, deadline)
		m, err := c.reader.FetchMessage(fetchCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				if err := flush(); err != nil {
					c.logger.Error("flush failed on timeout", "error", err)
				}
				continue
			}
			c.logger.Error("failed to fetch message", "error", err)
			if !sleepCtx(ctx, time.Second) {
				return ctx.Err()
			}
			continue
		}

		pending = append(pending, m)
		in, err := DecodeMessage(m.Value)
		if err != nil {
			metrics.IngestRejected.WithLabelValues("kafka_invalid").Inc()
			c.logger.Warn("skipping invalid message",
				"partition", m.Partition,
				"offset", m.Offset,
				"error", err,
			)
		} else {
			inputs = append(inputs, in)
		}

		if len(pending) >= c.batchSize {
			if err := flush(); err != nil {
				c.logger.Error("flush failed on size limit", "error", err)
			}
		}
	}
}

func (c *Consumer) reportLag(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.KafkaConsumerLag.Set(float64(c.reader.Stats().Lag))
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
