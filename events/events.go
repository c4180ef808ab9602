// Package events carries order events between services over a topic bus.
//
// Every message is an Envelope tagged with its routing key and a schema
// version. Placement events carry the order id; status events carry an
// OrderSnapshot. Delivery is at-least-once with no ordering across routing
// keys, so every Handler must tolerate seeing the same envelope twice.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Ammar797/treatz-backend/apperr"
	"github.com/Ammar797/treatz-backend/middleware"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	RoutingKeyOrderPlaced    = "order.placed"
	RoutingKeyReadyForPickup = "order.status.ready_for_pickup"
	RoutingKeyDelivered      = "order.status.delivered"

	SchemaVersion = 1
)

// StatusRoutingKey derives the routing key announcing a move into status.
func StatusRoutingKey(status string) string {
	return "order.status." + strings.ToLower(status)
}

type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Version    int             `json:"version"`
	Producer   string          `json:"producer"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

func NewEnvelope(routingKey, producer string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", routingKey, err)
	}
	return Envelope{
		ID:         uuid.NewString(),
		Type:       routingKey,
		Version:    SchemaVersion,
		Producer:   producer,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: malformed %s payload: %v", apperr.ErrInvalidInput, e.Type, err)
	}
	return nil
}

// OrderSnapshot is the status-change payload and the wire shape of an order
// on the internal call surface.
type OrderSnapshot struct {
	ID           int64           `json:"id"`
	CustomerID   int64           `json:"customerId"`
	RestaurantID int64           `json:"restaurantId"`
	RiderID      *int64          `json:"riderId"`
	TotalPrice   decimal.Decimal `json:"totalPrice"`
	Status       string          `json:"status"`
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type Subscriber interface {
	// Subscribe binds queue to every routing key registered on router and
	// delivers messages until ctx is canceled.
	Subscribe(ctx context.Context, queue string, router *Router) error
}

type Bus interface {
	Publisher
	Subscriber
	Close() error
}

type Handler func(ctx context.Context, env Envelope) error

// Router maps exact routing keys to handlers. A consumer registers its keys
// at startup and the bus binds its queue to exactly those keys.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{handlers: map[string]Handler{}, logger: logger}
}

func (r *Router) Handle(routingKey string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[routingKey] = h
}

func (r *Router) RoutingKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Deliver is the consumer boundary: it runs the handler for env, converts a
// panic into an error and logs every failure so that one bad message never
// stops the consumer loop.
func (r *Router) Deliver(ctx context.Context, env Envelope) (err error) {
	r.mu.RLock()
	h, ok := r.handlers[env.Type]
	r.mu.RUnlock()
	if !ok {
		middleware.RecordEventConsumed(env.Type, "ignored")
		r.logger.Debug("No handler for routing key", zap.String("routing_key", env.Type))
		return nil
	}

	ctx, span := otel.Tracer("events").Start(ctx, "Consume "+env.Type)
	defer span.End()
	span.SetAttributes(
		attribute.String("event.id", env.ID),
		attribute.String("event.routing_key", env.Type),
	)

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: handler panic: %v", apperr.ErrUnexpected, rec)
		}
		if err != nil {
			fields := []zap.Field{
				zap.String("trace_id", middleware.GetTraceID(ctx)),
				zap.String("event_id", env.ID),
				zap.String("routing_key", env.Type),
				zap.Error(err),
			}
			if apperr.Recoverable(err) {
				middleware.RecordEventConsumed(env.Type, "deferred")
				r.logger.Warn("Event left for retry", fields...)
				return
			}
			span.RecordError(err)
			middleware.RecordEventConsumed(env.Type, "error")
			r.logger.Error("Event handler failed", fields...)
			return
		}
		middleware.RecordEventConsumed(env.Type, "ok")
	}()

	return h(ctx, env)
}
