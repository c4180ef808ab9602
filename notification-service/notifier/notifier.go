// Package notifier turns order placement events into customer and
// restaurant notifications. Delivery is simulated on an output stream.
package notifier

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Ammar797/treatz-backend/events"
	"github.com/Ammar797/treatz-backend/middleware"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const Queue = "notification_queue"

type Notifier struct {
	out    io.Writer
	logger *zap.Logger
}

// New writes simulated email and SMS deliveries to out, or to stdout when
// out is nil.
func New(out io.Writer, logger *zap.Logger) *Notifier {
	if out == nil {
		out = os.Stdout
	}
	return &Notifier{out: out, logger: logger}
}

// NewRouter registers the order placed handler.
func (n *Notifier) NewRouter() *events.Router {
	router := events.NewRouter(n.logger)
	router.Handle(events.RoutingKeyOrderPlaced, func(ctx context.Context, env events.Envelope) error {
		var orderID int64
		if err := env.Decode(&orderID); err != nil {
			return err
		}
		return n.OrderPlaced(ctx, orderID)
	})
	return router
}

func (n *Notifier) OrderPlaced(ctx context.Context, orderID int64) error {
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int64("order.id", orderID))

	message := OrderPlacedMessage(orderID)
	n.logger.Info("Order placed notification sent",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int64("order_id", orderID),
	)

	// Simulate email and SMS sending
	if _, err := fmt.Fprintf(n.out, "%s[EMAIL] Sent to customer\n[SMS] Sent to restaurant owner\n\n", message); err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}
	middleware.RecordNotificationSent(events.RoutingKeyOrderPlaced)
	return nil
}

func OrderPlacedMessage(orderID int64) string {
	return fmt.Sprintf(`=======================================
NEW ORDER NOTIFICATION
=======================================
Order ID: %d
Status: Order has been placed
Action Required: Restaurant should accept the order
=======================================
`, orderID)
}
