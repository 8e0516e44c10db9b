// Package notification delivers dunning notifications to customers.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/erp/recurring-billing/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Header names set on every published notification
const (
	HeaderKind    = "notification-kind"
	HeaderStoreID = "store-id"
)

// NewKafkaProducer creates a synchronous producer that waits for all in-sync
// replicas before a send returns.
func NewKafkaProducer(cfg config.KafkaConfig) (sarama.SyncProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Successes = true
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	if cfg.BatchTimeout > 0 {
		sc.Producer.Flush.Frequency = cfg.BatchTimeout
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka: failed to create producer: %w", err)
	}
	return producer, nil
}

// KafkaNotifier publishes dunning notifications as JSON to a Kafka topic.
// Messages are keyed by order ID so every notification for an order lands on
// the same partition in the order it was sent.
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewKafkaNotifier creates a KafkaNotifier. The notifier owns the producer
// and closes it in Close.
func NewKafkaNotifier(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaNotifier{producer: producer, topic: topic, logger: logger}
}

// Notify implements billing.Notifier
func (n *KafkaNotifier) Notify(ctx context.Context, notification billing.DunningNotification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("kafka: failed to encode notification: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: n.topic,
		Key:   sarama.StringEncoder(notification.OrderID.String()),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderKind), Value: []byte(notification.Kind)},
			{Key: []byte(HeaderStoreID), Value: []byte(notification.StoreID.String())},
		},
	}

	partition, offset, err := n.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("kafka: failed to publish notification for order %s: %w", notification.OrderID, err)
	}

	n.logger.Debug("Published dunning notification",
		zap.String("topic", n.topic),
		zap.String("order_id", notification.OrderID.String()),
		zap.String("kind", string(notification.Kind)),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// Close closes the underlying producer
func (n *KafkaNotifier) Close() error {
	return n.producer.Close()
}

var _ billing.Notifier = (*KafkaNotifier)(nil)
