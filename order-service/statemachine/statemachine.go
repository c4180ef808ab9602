// Package statemachine decides whether a caller may move an order from its
// current status to a requested one. It performs no I/O: the caller's
// identity and the restaurant's owner are passed in explicitly.
package statemachine

import (
	"fmt"

	"github.com/Ammar797/treatz-backend/apperr"
	"github.com/Ammar797/treatz-backend/identity"
	"github.com/Ammar797/treatz-backend/order-service/models"
)

type edge struct {
	from models.OrderStatus
	to   models.OrderStatus
}

// transitions lists, per caller kind, every edge that caller may take.
// CANCELLED has no incoming edge and nothing leaves DELIVERED or CANCELLED.
var transitions = map[identity.Kind]map[edge]bool{
	identity.KindRestaurantOwner: {
		{models.OrderStatusPending, models.OrderStatusAccepted}:        true,
		{models.OrderStatusAccepted, models.OrderStatusPreparing}:      true,
		{models.OrderStatusPreparing, models.OrderStatusReadyForPickup}: true,
	},
	identity.KindRider: {
		{models.OrderStatusDispatched, models.OrderStatusDelivered}: true,
	},
	identity.KindInternal: {
		{models.OrderStatusReadyForPickup, models.OrderStatusDispatched}: true,
	},
}

// Request is everything the guard looks at.
type Request struct {
	Order  models.Order
	Target models.OrderStatus
	// RiderID is the rider user id carried by an internal dispatch call.
	RiderID *int64
	Caller  identity.Caller
	// RestaurantOwnerID is the owner of Order.RestaurantID. Only consulted
	// for restaurant owner callers.
	RestaurantOwnerID int64
}

// Decision is the outcome of an allowed request.
type Decision struct {
	From    models.OrderStatus
	To      models.OrderStatus
	RiderID *int64
	// Unchanged is set when the request repeats a dispatch that already
	// happened. Nothing is written and no event is published.
	Unchanged bool
}

// Decide applies the transition table. Identity failures return
// apperr.ErrUnauthorized; edges missing from the table return
// apperr.ErrInvalidTransition.
func Decide(req Request) (Decision, error) {
	current := req.Order.Status

	if err := authorize(req); err != nil {
		return Decision{}, err
	}

	if req.Caller.Kind == identity.KindInternal && req.Target == models.OrderStatusDispatched {
		if req.RiderID == nil {
			return Decision{}, fmt.Errorf("%w: riderId is required to dispatch order %d", apperr.ErrInvalidInput, req.Order.ID)
		}
		if *req.RiderID <= 0 {
			return Decision{}, fmt.Errorf("%w: invalid riderId %d for order %d", apperr.ErrInvalidInput, *req.RiderID, req.Order.ID)
		}
		if current == models.OrderStatusDispatched {
			if req.Order.RiderID != nil && *req.Order.RiderID == *req.RiderID {
				return Decision{From: current, To: current, RiderID: req.Order.RiderID, Unchanged: true}, nil
			}
			return Decision{}, invalid(req.Order.ID, current, req.Target)
		}
	}

	if !transitions[req.Caller.Kind][edge{current, req.Target}] {
		return Decision{}, invalid(req.Order.ID, current, req.Target)
	}

	d := Decision{From: current, To: req.Target}
	if req.Caller.Kind == identity.KindInternal {
		d.RiderID = req.RiderID
	}
	return d, nil
}

func authorize(req Request) error {
	switch req.Caller.Kind {
	case identity.KindInternal:
		return nil
	case identity.KindRestaurantOwner:
		if req.Caller.UserID != req.RestaurantOwnerID {
			return fmt.Errorf("%w: user %d does not own restaurant %d", apperr.ErrUnauthorized, req.Caller.UserID, req.Order.RestaurantID)
		}
		return nil
	case identity.KindRider:
		if req.Order.RiderID == nil || *req.Order.RiderID != req.Caller.UserID {
			return fmt.Errorf("%w: rider %d is not assigned to order %d", apperr.ErrUnauthorized, req.Caller.UserID, req.Order.ID)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s may not change order status", apperr.ErrUnauthorized, req.Caller.Kind)
	}
}

func invalid(orderID int64, from, to models.OrderStatus) error {
	return fmt.Errorf("%w: order %d cannot move from %s to %s", apperr.ErrInvalidTransition, orderID, from, to)
}
