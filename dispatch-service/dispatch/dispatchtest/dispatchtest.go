// Package dispatchtest provides in-memory rider stores and order owners for
// testing the dispatch path.
package dispatchtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Ammar797/treatz-backend/apperr"
	"github.com/Ammar797/treatz-backend/dispatch-service/models"
	"github.com/Ammar797/treatz-backend/events"
)

// Riders is a rider store whose Claim and Release are atomic
// compare-and-swaps, matching the SQL store.
type Riders struct {
	mu     sync.Mutex
	riders map[int64]models.Rider
}

func NewRiders(riders ...models.Rider) *Riders {
	r := &Riders{riders: map[int64]models.Rider{}}
	for _, rd := range riders {
		r.riders[rd.ID] = rd
	}
	return r
}

func (r *Riders) FindAvailable(ctx context.Context) (models.Rider, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.riders))
	for id := range r.riders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if r.riders[id].Available {
			return r.riders[id], true, nil
		}
	}
	return models.Rider{}, false, nil
}

func (r *Riders) FindByUserID(ctx context.Context, userID int64) (models.Rider, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rd := range r.riders {
		if rd.UserID == userID {
			return rd, true, nil
		}
	}
	return models.Rider{}, false, nil
}

func (r *Riders) Claim(ctx context.Context, riderID, orderID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rd, ok := r.riders[riderID]
	if !ok || !rd.Available {
		return false, nil
	}
	rd.Available = false
	rd.OrderID = &orderID
	r.riders[riderID] = rd
	return true, nil
}

func (r *Riders) Release(ctx context.Context, riderID, orderID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rd, ok := r.riders[riderID]
	if !ok || rd.Available || (rd.OrderID != nil && *rd.OrderID != orderID) {
		return false, nil
	}
	rd.Available = true
	rd.OrderID = nil
	r.riders[riderID] = rd
	return true, nil
}

// Available reports the current flag of riderID.
func (r *Riders) Available(riderID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.riders[riderID].Available
}

// OrderOf returns the order riderID is held for, or zero when free.
func (r *Riders) OrderOf(riderID int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id := r.riders[riderID].OrderID; id != nil {
		return *id
	}
	return 0
}

// Owner is an order owner holding order snapshots in memory. It accepts
// DISPATCHED only from READY_FOR_PICKUP, or as a repeat for the same rider.
type Owner struct {
	mu     sync.Mutex
	orders map[int64]events.OrderSnapshot
	calls  int
	// Fail, when set, is returned by UpdateStatus before any change.
	Fail error
}

func NewOwner(orders ...events.OrderSnapshot) *Owner {
	o := &Owner{orders: map[int64]events.OrderSnapshot{}}
	for _, snap := range orders {
		o.orders[snap.ID] = snap
	}
	return o
}

func (o *Owner) UpdateStatus(ctx context.Context, orderID int64, status string, riderID *int64) (events.OrderSnapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++

	if o.Fail != nil {
		return events.OrderSnapshot{}, fmt.Errorf("%w: %v", apperr.ErrUpstreamCall, o.Fail)
	}
	if err := ctx.Err(); err != nil {
		return events.OrderSnapshot{}, fmt.Errorf("%w: %v", apperr.ErrUpstreamCall, err)
	}

	snap, ok := o.orders[orderID]
	if !ok {
		return events.OrderSnapshot{}, fmt.Errorf("%w: order %d not found", apperr.ErrUpstreamCall, orderID)
	}
	repeat := snap.Status == status && snap.RiderID != nil && riderID != nil && *snap.RiderID == *riderID
	if status != "DISPATCHED" || (snap.Status != "READY_FOR_PICKUP" && !repeat) {
		return events.OrderSnapshot{}, fmt.Errorf("%w: order %d cannot move from %s to %s",
			apperr.ErrUpstreamCall, orderID, snap.Status, status)
	}

	snap.Status = status
	snap.RiderID = riderID
	o.orders[orderID] = snap
	return snap, nil
}

// ListByStatus returns orders in status ordered by id.
func (o *Owner) ListByStatus(ctx context.Context, status string) ([]events.OrderSnapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Fail != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstreamCall, o.Fail)
	}
	out := []events.OrderSnapshot{}
	for _, snap := range o.orders {
		if snap.Status == status {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Put stores or replaces an order.
func (o *Owner) Put(snap events.OrderSnapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.orders[snap.ID] = snap
}

func (o *Owner) Order(id int64) events.OrderSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.orders[id]
}

func (o *Owner) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

// ErrOwnerDown simulates an unreachable order service.
var ErrOwnerDown = errors.New("connection refused")
