package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chonlathan-cloud/ProjectMIABackend/internal/domain"
)

// KafkaBus implements Bus over a Kafka topic. Publishes go through a shared
// sync producer; every Subscribe call joins the topic under a fresh consumer
// group so each stream sees all events.
type KafkaBus struct {
	producer    sarama.SyncProducer
	brokers     []string
	topic       string
	groupPrefix string
	logger      *zap.Logger
}

var _ Bus = (*KafkaBus)(nil)

func newSaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_8_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	return cfg
}

// NewKafkaBus connects the producer side. Subscriptions dial lazily.
func NewKafkaBus(brokers []string, topic, groupPrefix string, logger *zap.Logger) (*KafkaBus, error) {
	if logger == nil {
		logger = zap.L()
	}
	producer, err := sarama.NewSyncProducer(brokers, newSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return &KafkaBus{
		producer:    producer,
		brokers:     brokers,
		topic:       topic,
		groupPrefix: groupPrefix,
		logger:      logger,
	}, nil
}

// Publish sends the event keyed by shop so per-shop ordering is preserved.
func (b *KafkaBus) Publish(ctx context.Context, event domain.ChatEvent) (string, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("encode event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: b.topic,
		Key:   sarama.StringEncoder(event.ShopID),
		Value: sarama.ByteEncoder(value),
	}

	partition, offset, err := b.producer.SendMessage(msg)
	if err != nil {
		return "", fmt.Errorf("publish event: %w", err)
	}
	return fmt.Sprintf("%d-%d", partition, offset), nil
}

// Subscribe consumes the topic under a unique group until ctx is done.
func (b *KafkaBus) Subscribe(ctx context.Context, handler Handler) error {
	groupID := fmt.Sprintf("%s-%s", b.groupPrefix, uuid.NewString())
	group, err := sarama.NewConsumerGroup(b.brokers, groupID, newSaramaConfig())
	if err != nil {
		return fmt.Errorf("kafka consumer group: %w", err)
	}
	defer group.Close()

	consumer := &groupConsumer{handler: handler, logger: b.logger}
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := group.Consume(ctx, []string{b.topic}, consumer); err != nil {
			if err == sarama.ErrClosedConsumerGroup {
				return nil
			}
			return fmt.Errorf("consume: %w", err)
		}
	}
}

// Close releases the producer.
func (b *KafkaBus) Close() error {
	return b.producer.Close()
}

type groupConsumer struct {
	handler Handler
	logger  *zap.Logger
}

func (c *groupConsumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *groupConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim marks a message only after the handler accepts it; unmarked
// messages are redelivered on the next session.
func (c *groupConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		var event domain.ChatEvent
		if err := json.Unmarshal(message.Value, &event); err != nil {
			c.logger.Warn("undecodable bus message dropped",
				zap.Int32("partition", message.Partition),
				zap.Int64("offset", message.Offset),
				zap.Error(err))
			session.MarkMessage(message, "")
			continue
		}
		if err := c.handler(session.Context(), event); err != nil {
			c.logger.Warn("event handler failed, leaving unacked", zap.Error(err))
			continue
		}
		session.MarkMessage(message, "")
	}
	return nil
}
