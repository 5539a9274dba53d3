package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-sales/internal/logger"
	"ms-sales/internal/models"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	Reader messageReader
	Logger *logger.Logger
}

// NewConsumer creates a new Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{Reader: reader, Logger: log}
}

// ConsumeCreditTransactions hands every ledger event to handler and commits
// it afterwards. Unreadable messages are committed and skipped. A handler
// error stops the consumer without committing, so the group resumes from
// that message on restart. Returns nil when ctx is done.
func (c *Consumer) ConsumeCreditTransactions(ctx context.Context, handler func(context.Context, models.CreditTransactionEvent) error) error {
	c.Logger.Info("KAFKA", "Credit transaction consumer started")
	for {
		msg, err := c.Reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		var event models.CreditTransactionEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.Logger.Warn("KAFKA", fmt.Sprintf("Skipping malformed message at offset %d: %v", msg.Offset, err))
		} else if err := handler(ctx, event); err != nil {
			c.Logger.Error("KAFKA", fmt.Sprintf("Handler failed for offset %d: %v", msg.Offset, err))
			return fmt.Errorf("handle message at offset %d: %w", msg.Offset, err)
		}

		if err := c.Reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit message: %w", err)
		}
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.Reader.Close()
}
