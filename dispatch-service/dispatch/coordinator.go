// Package dispatch assigns riders to ready orders and frees them on
// delivery.
//
// Rider availability is the only state shared between the event consumers
// and the reconciliation pass, and every change to it is a compare-and-swap
// in the rider store. An assignment either ends with the order DISPATCHED
// and the rider unavailable, or with the rider flipped back to available.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/Ammar797/treatz-backend/apperr"
	"github.com/Ammar797/treatz-backend/dispatch-service/models"
	"github.com/Ammar797/treatz-backend/events"
	"github.com/Ammar797/treatz-backend/middleware"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	statusDispatched = "DISPATCHED"

	// maxClaimAttempts bounds how often a lost compare-and-swap is retried
	// with a freshly found rider.
	maxClaimAttempts = 3

	compensationTimeout = 5 * time.Second
)

type RiderStore interface {
	FindAvailable(ctx context.Context) (models.Rider, bool, error)
	FindByUserID(ctx context.Context, userID int64) (models.Rider, bool, error)
	Claim(ctx context.Context, riderID, orderID int64) (bool, error)
	Release(ctx context.Context, riderID, orderID int64) (bool, error)
}

// OrderOwner is the order service's status call. Implemented by
// orderclient.Client.
type OrderOwner interface {
	UpdateStatus(ctx context.Context, orderID int64, status string, riderID *int64) (events.OrderSnapshot, error)
}

type Coordinator struct {
	riders RiderStore
	owner  OrderOwner
	logger *zap.Logger
}

func NewCoordinator(riders RiderStore, owner OrderOwner, logger *zap.Logger) *Coordinator {
	return &Coordinator{riders: riders, owner: owner, logger: logger}
}

// AssignRider claims an available rider for order and asks the order owner
// to mark it DISPATCHED. If the owner call fails the rider is released
// before returning.
//
// Errors: apperr.ErrNoRiderAvailable when nobody is free,
// apperr.ErrAssignmentConflict when every claim lost a race, and
// apperr.ErrUpstreamCall when the owner call failed.
func (c *Coordinator) AssignRider(ctx context.Context, order events.OrderSnapshot) (models.Rider, error) {
	ctx, span := otel.Tracer("dispatch-service").Start(ctx, "AssignRider")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", order.ID))

	for attempt := 1; attempt <= maxClaimAttempts; attempt++ {
		rider, ok, err := c.riders.FindAvailable(ctx)
		if err != nil {
			middleware.RecordAssignment("error")
			return models.Rider{}, fmt.Errorf("%w: find available rider: %v", apperr.ErrUnexpected, err)
		}
		if !ok {
			middleware.RecordAssignment("no_rider")
			return models.Rider{}, fmt.Errorf("%w for order %d", apperr.ErrNoRiderAvailable, order.ID)
		}

		claimed, err := c.riders.Claim(ctx, rider.ID, order.ID)
		if err != nil {
			middleware.RecordAssignment("error")
			return models.Rider{}, fmt.Errorf("%w: claim rider %d: %v", apperr.ErrUnexpected, rider.ID, err)
		}
		if !claimed {
			c.logger.Debug("Rider claimed concurrently, retrying",
				zap.Int64("order_id", order.ID),
				zap.Int64("rider_id", rider.ID),
				zap.Int("attempt", attempt),
			)
			continue
		}

		span.SetAttributes(attribute.Int64("rider.id", rider.ID))
		riderUserID := rider.UserID
		if _, err := c.owner.UpdateStatus(ctx, order.ID, statusDispatched, &riderUserID); err != nil {
			span.RecordError(err)
			c.compensate(ctx, order.ID, rider)
			middleware.RecordAssignment("compensated")
			return models.Rider{}, err
		}

		middleware.RecordAssignment("dispatched")
		c.logger.Info("Rider assigned",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.Int64("order_id", order.ID),
			zap.Int64("rider_id", rider.ID),
			zap.Int64("rider_user_id", rider.UserID),
		)
		return rider, nil
	}

	middleware.RecordAssignment("conflict")
	return models.Rider{}, fmt.Errorf("%w: order %d lost %d rider claims", apperr.ErrAssignmentConflict, order.ID, maxClaimAttempts)
}

// compensate puts a claimed rider back. It runs on its own deadline so that
// an expired request context cannot leave the rider stuck.
func (c *Coordinator) compensate(ctx context.Context, orderID int64, rider models.Rider) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	restored, err := c.riders.Release(ctx, rider.ID, orderID)
	if err != nil || !restored {
		// Rider state now needs manual repair.
		c.logger.Error("Compensation failed, rider may be stuck unavailable",
			zap.String("kind", "unexpected"),
			zap.Int64("order_id", orderID),
			zap.Int64("rider_id", rider.ID),
			zap.Bool("restored", restored),
			zap.Error(err),
		)
		return
	}
	c.logger.Error("Order owner call failed, rider released",
		zap.Int64("order_id", orderID),
		zap.Int64("rider_id", rider.ID),
		zap.Bool("compensated", true),
	)
}

// ReleaseRider makes the order's rider available again. Orders without a
// rider, riders that are already available and riders now held for a
// different order are left alone, so duplicate or late delivery events are
// harmless.
func (c *Coordinator) ReleaseRider(ctx context.Context, order events.OrderSnapshot) error {
	ctx, span := otel.Tracer("dispatch-service").Start(ctx, "ReleaseRider")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", order.ID))

	if order.RiderID == nil {
		middleware.RecordRelease("noop")
		return nil
	}

	rider, ok, err := c.riders.FindByUserID(ctx, *order.RiderID)
	if err != nil {
		middleware.RecordRelease("error")
		return fmt.Errorf("%w: find rider %d: %v", apperr.ErrUnexpected, *order.RiderID, err)
	}
	if !ok {
		middleware.RecordRelease("error")
		return fmt.Errorf("%w: rider with user id %d", apperr.ErrNotFound, *order.RiderID)
	}
	if rider.Available {
		middleware.RecordRelease("noop")
		return nil
	}
	if rider.OrderID != nil && *rider.OrderID != order.ID {
		middleware.RecordRelease("stale")
		c.logger.Warn("Ignoring delivery for a rider already on another order",
			zap.Int64("order_id", order.ID),
			zap.Int64("rider_id", rider.ID),
			zap.Int64("current_order_id", *rider.OrderID),
		)
		return nil
	}

	released, err := c.riders.Release(ctx, rider.ID, order.ID)
	if err != nil {
		middleware.RecordRelease("error")
		return fmt.Errorf("%w: release rider %d: %v", apperr.ErrUnexpected, rider.ID, err)
	}
	if !released {
		middleware.RecordRelease("noop")
		return nil
	}

	middleware.RecordRelease("released")
	c.logger.Info("Rider released",
		zap.Int64("order_id", order.ID),
		zap.Int64("rider_id", rider.ID),
	)
	return nil
}
