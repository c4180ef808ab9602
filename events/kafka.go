package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Ammar797/treatz-backend/middleware"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// KafkaBus maps each routing key to a topic of the same name and each queue
// to a consumer group, which gives the same exact-key fan-out as the topic
// exchange.
type KafkaBus struct {
	brokers  []string
	config   *sarama.Config
	producer sarama.SyncProducer
	name     string
	logger   *zap.Logger
}

func NewKafkaBus(brokers []string, producerName string, logger *zap.Logger) (*KafkaBus, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.Info("Kafka bus initialized", zap.Strings("brokers", brokers))
	return &KafkaBus{
		brokers:  brokers,
		config:   config,
		producer: producer,
		name:     producerName,
		logger:   logger,
	}, nil
}

func (b *KafkaBus) Publish(ctx context.Context, routingKey string, payload any) error {
	env, err := NewEnvelope(routingKey, b.name, payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: routingKey,
		Value: sarama.ByteEncoder(body),
	}

	// Inject trace context into Kafka message headers
	carrier := make(saramaHeaderCarrier, 0)
	otel.GetTextMapPropagator().Inject(ctx, &carrier)
	msg.Headers = []sarama.RecordHeader(carrier)

	partition, offset, err := b.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	middleware.RecordEventPublished(routingKey)
	b.logger.Info("Event published",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("routing_key", routingKey),
		zap.String("event_id", env.ID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (b *KafkaBus) Subscribe(ctx context.Context, queue string, router *Router) error {
	group, err := sarama.NewConsumerGroup(b.brokers, queue, b.config)
	if err != nil {
		return fmt.Errorf("failed to create consumer group %s: %w", queue, err)
	}
	defer group.Close()

	go func() {
		for err := range group.Errors() {
			b.logger.Error("Kafka consumer error", zap.Error(err))
		}
	}()

	topics := router.RoutingKeys()
	b.logger.Info("Kafka consumer started", zap.String("group", queue), zap.Strings("topics", topics))

	handler := &groupHandler{router: router, logger: b.logger}
	for {
		if err := group.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return fmt.Errorf("consumer group %s: %w", queue, err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (b *KafkaBus) Close() error {
	return b.producer.Close()
}

type groupHandler struct {
	router *Router
	logger *zap.Logger
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.handleMessage(message)
			sess.MarkMessage(message, "")
		case <-sess.Context().Done():
			return nil
		}
	}
}

func (h *groupHandler) handleMessage(message *sarama.ConsumerMessage) {
	// Extract trace context from Kafka message headers
	carrier := saramaHeaderCarrierConsumer(message.Headers)
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), carrier)

	var env Envelope
	if err := json.Unmarshal(message.Value, &env); err != nil {
		h.logger.Error("Skipping malformed message",
			zap.String("topic", message.Topic),
			zap.Int64("offset", message.Offset),
			zap.Error(err),
		)
		return
	}
	if env.Type == "" {
		env.Type = message.Topic
	}

	_ = h.router.Deliver(ctx, env)
}

// saramaHeaderCarrier implements the TextMapCarrier interface for Kafka headers (for producer)
type saramaHeaderCarrier []sarama.RecordHeader

func (c saramaHeaderCarrier) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *saramaHeaderCarrier) Set(key, value string) {
	*c = append(*c, sarama.RecordHeader{
		Key:   []byte(key),
		Value: []byte(value),
	})
}

func (c saramaHeaderCarrier) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = string(h.Key)
	}
	return keys
}

// saramaHeaderCarrierConsumer implements the TextMapCarrier interface for Kafka headers (for consumer)
type saramaHeaderCarrierConsumer []*sarama.RecordHeader

func (c saramaHeaderCarrierConsumer) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c saramaHeaderCarrierConsumer) Set(key, value string) {
	// Not needed for extraction
}

func (c saramaHeaderCarrierConsumer) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = string(h.Key)
	}
	return keys
}
