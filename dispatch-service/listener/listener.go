// Package listener binds the dispatch queue to the order status events the
// coordinator reacts to.
package listener

import (
	"context"

	"github.com/Ammar797/treatz-backend/dispatch-service/models"
	"github.com/Ammar797/treatz-backend/events"

	"go.uber.org/zap"
)

const Queue = "dispatch_queue"

type Coordinator interface {
	AssignRider(ctx context.Context, order events.OrderSnapshot) (models.Rider, error)
	ReleaseRider(ctx context.Context, order events.OrderSnapshot) error
}

// NewRouter registers the ready and delivered handlers. Handler errors are
// logged by the router, and the message is acknowledged either way.
func NewRouter(coord Coordinator, logger *zap.Logger) *events.Router {
	router := events.NewRouter(logger)

	router.Handle(events.RoutingKeyReadyForPickup, func(ctx context.Context, env events.Envelope) error {
		var order events.OrderSnapshot
		if err := env.Decode(&order); err != nil {
			return err
		}
		logger.Info("Order ready for pickup", zap.Int64("order_id", order.ID), zap.String("event_id", env.ID))
		_, err := coord.AssignRider(ctx, order)
		return err
	})

	router.Handle(events.RoutingKeyDelivered, func(ctx context.Context, env events.Envelope) error {
		var order events.OrderSnapshot
		if err := env.Decode(&order); err != nil {
			return err
		}
		logger.Info("Order delivered", zap.Int64("order_id", order.ID), zap.String("event_id", env.ID))
		return coord.ReleaseRider(ctx, order)
	})

	return router
}
