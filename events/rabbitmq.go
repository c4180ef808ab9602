package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Ammar797/treatz-backend/middleware"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// RabbitBus publishes to a durable topic exchange and consumes through
// durable per-service queues bound with exact routing keys. A lost
// connection or publish channel is re-dialed in the background.
type RabbitBus struct {
	url      string
	exchange string
	producer string
	workers  int
	logger   *zap.Logger

	mu    sync.RWMutex
	conn  *amqp.Connection
	pubCh *amqp.Channel
	pubMu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
	reconnect chan struct{}
}

const maxReconnectBackoff = 30 * time.Second

func NewRabbitBus(url, exchange, producer string, workers int, logger *zap.Logger) (*RabbitBus, error) {
	if workers <= 0 {
		workers = 1
	}
	b := &RabbitBus{
		url:       url,
		exchange:  exchange,
		producer:  producer,
		workers:   workers,
		logger:    logger,
		closed:    make(chan struct{}),
		reconnect: make(chan struct{}, 1),
	}

	// Later failures are retried by watch.
	if err := b.connectOnce(); err != nil {
		return nil, err
	}
	go b.watch()

	logger.Info("RabbitMQ bus initialized", zap.String("exchange", exchange))
	return b, nil
}

func (b *RabbitBus) connectOnce() error {
	conn, err := amqp.DialConfig(b.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(10 * time.Second),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open publish channel: %w", err)
	}

	if err := ch.ExchangeDeclare(b.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", b.exchange, err)
	}

	b.mu.Lock()
	select {
	case <-b.closed:
		b.mu.Unlock()
		conn.Close()
		return errors.New("rabbitmq bus is closed")
	default:
	}
	old := b.conn
	b.conn = conn
	b.pubCh = ch
	b.mu.Unlock()
	if old != nil && !old.IsClosed() {
		_ = old.Close()
	}

	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		select {
		case <-b.closed:
			return
		case <-connClosed:
		case <-chClosed:
		}
		select {
		case b.reconnect <- struct{}{}:
		default:
		}
	}()
	return nil
}

// watch re-dials with exponential backoff until Close.
func (b *RabbitBus) watch() {
	for {
		select {
		case <-b.closed:
			return
		case <-b.reconnect:
		}

		backoff := time.Second
		for {
			select {
			case <-b.closed:
				return
			default:
			}

			err := b.connectOnce()
			if err == nil {
				b.logger.Info("Reconnected to RabbitMQ", zap.String("exchange", b.exchange))
				break
			}
			b.logger.Error("RabbitMQ reconnect failed", zap.Duration("backoff", backoff), zap.Error(err))

			select {
			case <-b.closed:
				return
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff, maxReconnectBackoff)
		}
	}
}

func (b *RabbitBus) Publish(ctx context.Context, routingKey string, payload any) error {
	env, err := NewEnvelope(routingKey, b.producer, payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	headers := amqp.Table{}
	otel.GetTextMapPropagator().Inject(ctx, amqpHeaderCarrier(headers))

	b.mu.RLock()
	ch := b.pubCh
	b.mu.RUnlock()
	if ch == nil || ch.IsClosed() {
		return fmt.Errorf("failed to publish %s: publish channel is not open", routingKey)
	}

	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	err = ch.PublishWithContext(ctx, b.exchange, routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    env.ID,
		Type:         routingKey,
		Timestamp:    env.OccurredAt,
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}

	middleware.RecordEventPublished(routingKey)
	b.logger.Info("Event published",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("routing_key", routingKey),
		zap.String("event_id", env.ID),
	)
	return nil
}

// Subscribe consumes queue on a fresh channel until ctx is canceled or the
// channel closes. Run it under Consume to resume after a reconnect.
func (b *RabbitBus) Subscribe(ctx context.Context, queue string, router *Router) error {
	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()
	if conn == nil || conn.IsClosed() {
		return errors.New("rabbitmq connection is not open")
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(b.workers, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	for _, key := range router.RoutingKeys() {
		if err := ch.QueueBind(queue, key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s to %s: %w", queue, key, err)
		}
	}

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", queue, err)
	}

	b.logger.Info("RabbitMQ consumer started",
		zap.String("queue", queue),
		zap.Strings("routing_keys", router.RoutingKeys()),
		zap.Int("workers", b.workers),
	)

	var wg sync.WaitGroup
	for i := 0; i < b.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range deliveries {
				b.handleDelivery(d, router)
			}
		}()
	}

	select {
	case <-ctx.Done():
		ch.Close()
		wg.Wait()
		return nil
	case amqpErr := <-closed:
		wg.Wait()
		if amqpErr == nil {
			return errors.New("consumer channel closed")
		}
		return fmt.Errorf("consumer channel closed: %w", amqpErr)
	}
}

func (b *RabbitBus) handleDelivery(d amqp.Delivery, router *Router) {
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), amqpHeaderCarrier(d.Headers))

	var env Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		b.logger.Error("Rejecting malformed message",
			zap.String("routing_key", d.RoutingKey),
			zap.String("message_id", d.MessageId),
			zap.Error(err),
		)
		_ = d.Nack(false, false)
		return
	}
	if env.Type == "" {
		env.Type = d.RoutingKey
	}

	// Handler errors are logged inside Deliver; redelivery of a message the
	// handler already decided on would only repeat the same outcome.
	_ = router.Deliver(ctx, env)
	if err := d.Ack(false); err != nil {
		b.logger.Error("Failed to ack message", zap.String("event_id", env.ID), zap.Error(err))
	}
}

func (b *RabbitBus) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubCh != nil {
		_ = b.pubCh.Close()
		b.pubCh = nil
	}
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}

// amqpHeaderCarrier implements the TextMapCarrier interface for AMQP headers
type amqpHeaderCarrier amqp.Table

func (c amqpHeaderCarrier) Get(key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

func (c amqpHeaderCarrier) Set(key, value string) {
	c[key] = value
}

func (c amqpHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
