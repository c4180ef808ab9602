package statemachine

import (
	"errors"
	"testing"

	"github.com/Ammar797/treatz-backend/apperr"
	"github.com/Ammar797/treatz-backend/identity"
	"github.com/Ammar797/treatz-backend/order-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ownerID      int64 = 11
	restaurantID int64 = 9
	riderUserID  int64 = 501
)

var statuses = []models.OrderStatus{
	models.OrderStatusPending,
	models.OrderStatusAccepted,
	models.OrderStatusPreparing,
	models.OrderStatusReadyForPickup,
	models.OrderStatusDispatched,
	models.OrderStatusDelivered,
	models.OrderStatusCancelled,
}

func int64Ptr(v int64) *int64 { return &v }

func order(status models.OrderStatus) models.Order {
	o := models.Order{ID: 42, CustomerID: 3, RestaurantID: restaurantID, Status: status}
	if status == models.OrderStatusDispatched || status == models.OrderStatusDelivered {
		o.RiderID = int64Ptr(riderUserID)
	}
	return o
}

func TestDecide_AllowedEdges(t *testing.T) {
	tests := []struct {
		name    string
		caller  identity.Caller
		from    models.OrderStatus
		to      models.OrderStatus
		riderID *int64
	}{
		{"owner accepts", identity.RestaurantOwner(ownerID), models.OrderStatusPending, models.OrderStatusAccepted, nil},
		{"owner prepares", identity.RestaurantOwner(ownerID), models.OrderStatusAccepted, models.OrderStatusPreparing, nil},
		{"owner marks ready", identity.RestaurantOwner(ownerID), models.OrderStatusPreparing, models.OrderStatusReadyForPickup, nil},
		{"rider delivers", identity.Rider(riderUserID), models.OrderStatusDispatched, models.OrderStatusDelivered, nil},
		{"internal dispatches", identity.Internal(), models.OrderStatusReadyForPickup, models.OrderStatusDispatched, int64Ptr(riderUserID)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Decide(Request{
				Order:             order(tt.from),
				Target:            tt.to,
				RiderID:           tt.riderID,
				Caller:            tt.caller,
				RestaurantOwnerID: ownerID,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.from, d.From)
			assert.Equal(t, tt.to, d.To)
			assert.False(t, d.Unchanged)
		})
	}
}

func TestDecide_InternalDispatchAttachesRider(t *testing.T) {
	d, err := Decide(Request{
		Order:   order(models.OrderStatusReadyForPickup),
		Target:  models.OrderStatusDispatched,
		RiderID: int64Ptr(riderUserID),
		Caller:  identity.Internal(),
	})
	require.NoError(t, err)
	require.NotNil(t, d.RiderID)
	assert.Equal(t, riderUserID, *d.RiderID)
}

// Every (kind, from, to) that is not a table edge is rejected, and nothing
// off the table is ever allowed.
func TestDecide_OffGraphIsInvalidTransition(t *testing.T) {
	callers := []identity.Caller{
		identity.RestaurantOwner(ownerID),
		identity.Rider(riderUserID),
		identity.Internal(),
	}

	for _, caller := range callers {
		for _, from := range statuses {
			for _, to := range statuses {
				if transitions[caller.Kind][edge{from, to}] {
					continue
				}
				if caller.Kind == identity.KindInternal && from == models.OrderStatusDispatched && to == models.OrderStatusDispatched {
					continue // idempotent repeat, covered below
				}
				if caller.Kind == identity.KindRider && from != models.OrderStatusDispatched && from != models.OrderStatusDelivered {
					continue // no rider assigned yet, so identity fails first
				}

				_, err := Decide(Request{
					Order:             order(from),
					Target:            to,
					RiderID:           int64Ptr(riderUserID),
					Caller:            caller,
					RestaurantOwnerID: ownerID,
				})
				assert.Truef(t, errors.Is(err, apperr.ErrInvalidTransition),
					"%s %s -> %s: expected invalid transition, got %v", caller.Kind, from, to, err)
			}
		}
	}
}

func TestDecide_ForeignOwnerIsUnauthorized(t *testing.T) {
	for _, from := range statuses {
		for _, to := range statuses {
			_, err := Decide(Request{
				Order:             order(from),
				Target:            to,
				Caller:            identity.RestaurantOwner(ownerID + 1),
				RestaurantOwnerID: ownerID,
			})
			assert.Truef(t, errors.Is(err, apperr.ErrUnauthorized), "%s -> %s: got %v", from, to, err)
		}
	}
}

func TestDecide_WrongRiderIsUnauthorized(t *testing.T) {
	_, err := Decide(Request{
		Order:  order(models.OrderStatusDispatched),
		Target: models.OrderStatusDelivered,
		Caller: identity.Rider(riderUserID + 1),
	})
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	_, err = Decide(Request{
		Order:  order(models.OrderStatusReadyForPickup),
		Target: models.OrderStatusDelivered,
		Caller: identity.Rider(riderUserID),
	})
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))
}

func TestDecide_CustomerCannotChangeStatus(t *testing.T) {
	_, err := Decide(Request{
		Order:  order(models.OrderStatusPending),
		Target: models.OrderStatusCancelled,
		Caller: identity.Customer(3),
	})
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))
}

func TestDecide_RepeatedInternalDispatch(t *testing.T) {
	t.Run("same rider is unchanged", func(t *testing.T) {
		d, err := Decide(Request{
			Order:   order(models.OrderStatusDispatched),
			Target:  models.OrderStatusDispatched,
			RiderID: int64Ptr(riderUserID),
			Caller:  identity.Internal(),
		})
		require.NoError(t, err)
		assert.True(t, d.Unchanged)
		assert.Equal(t, models.OrderStatusDispatched, d.To)
	})

	t.Run("different rider is rejected", func(t *testing.T) {
		_, err := Decide(Request{
			Order:   order(models.OrderStatusDispatched),
			Target:  models.OrderStatusDispatched,
			RiderID: int64Ptr(riderUserID + 1),
			Caller:  identity.Internal(),
		})
		assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))
	})
}

func TestDecide_InternalDispatchRequiresRider(t *testing.T) {
	_, err := Decide(Request{
		Order:  order(models.OrderStatusReadyForPickup),
		Target: models.OrderStatusDispatched,
		Caller: identity.Internal(),
	})
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}

func TestDecide_InternalDispatchRejectsNonPositiveRider(t *testing.T) {
	for _, id := range []int64{0, -5} {
		_, err := Decide(Request{
			Order:   order(models.OrderStatusReadyForPickup),
			Target:  models.OrderStatusDispatched,
			RiderID: int64Ptr(id),
			Caller:  identity.Internal(),
		})
		assert.True(t, errors.Is(err, apperr.ErrInvalidInput), "rider id %d", id)
	}
}
