package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-sales/internal/config"
	"ms-sales/internal/logger"
	"ms-sales/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer messageWriter
	Topics config.TopicConfig
	Logger *logger.Logger
}

// NewProducer returns a producer whose writer picks the topic per message.
func NewProducer(brokers []string, topics config.TopicConfig, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, Topics: topics, Logger: log}
}

func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	err := p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.Logger.LogKafka("PUBLISH", topic, fmt.Sprintf("key=%s", key))
	return nil
}

// PublishSaleCompleted streams a committed sale, keyed by order id.
func (p *Producer) PublishSaleCompleted(ctx context.Context, event models.SaleCompletedEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.Publish(ctx, p.Topics.SaleCompleted, strconv.FormatInt(event.OrderID, 10), value)
}

// PublishCreditTransaction streams one ledger row, keyed by account id so
// the reconciler sees an account's rows in order.
func (p *Producer) PublishCreditTransaction(ctx context.Context, event models.CreditTransactionEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.Publish(ctx, p.Topics.CreditTransaction, strconv.FormatInt(event.Transaction.CreditAccountID, 10), value)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
