// Package scheduler periodically re-drives dispatch for orders that are
// ready for pickup but were never assigned, which heals dropped or lost
// ready events.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Ammar797/treatz-backend/apperr"
	"github.com/Ammar797/treatz-backend/dispatch-service/models"
	"github.com/Ammar797/treatz-backend/events"
	"github.com/Ammar797/treatz-backend/middleware"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const statusReadyForPickup = "READY_FOR_PICKUP"

type OrderLister interface {
	ListByStatus(ctx context.Context, status string) ([]events.OrderSnapshot, error)
}

// Assigner is implemented by dispatch.Coordinator.
type Assigner interface {
	AssignRider(ctx context.Context, order events.OrderSnapshot) (models.Rider, error)
}

type Reconciler struct {
	orders      OrderLister
	assigner    Assigner
	interval    time.Duration
	concurrency int
	perOrder    time.Duration
	logger      *zap.Logger
}

// NewReconciler runs a pass every interval, dispatching at most concurrency
// orders at once and giving each order perOrder to complete.
func NewReconciler(orders OrderLister, assigner Assigner, interval time.Duration, concurrency int, perOrder time.Duration, logger *zap.Logger) *Reconciler {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Reconciler{
		orders:      orders,
		assigner:    assigner,
		interval:    interval,
		concurrency: concurrency,
		perOrder:    perOrder,
		logger:      logger,
	}
}

// Start runs passes until ctx is canceled.
func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("Reconciliation scheduler started", zap.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reconciliation scheduler stopped")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("Reconciliation pass failed", zap.Error(err))
			}
		}
	}
}

// Result counts the outcomes of one pass.
type Result struct {
	Found      int
	Dispatched int
	Deferred   int
	Failed     int
}

// RunOnce dispatches every order currently ready for pickup. A failure on
// one order never stops the others; only a failed listing is returned.
func (r *Reconciler) RunOnce(ctx context.Context) (Result, error) {
	ctx, span := otel.Tracer("dispatch-service").Start(ctx, "Reconcile")
	defer span.End()
	middleware.RecordReconciliationRun()

	ready, err := r.orders.ListByStatus(ctx, statusReadyForPickup)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	span.SetAttributes(attribute.Int("orders.ready", len(ready)))
	if len(ready) == 0 {
		return Result{}, nil
	}

	r.logger.Info("Found orders stuck in READY_FOR_PICKUP", zap.Int("count", len(ready)))

	var (
		mu  sync.Mutex
		res = Result{Found: len(ready)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, order := range ready {
		g.Go(func() error {
			outcome := r.dispatchOne(gctx, order)
			middleware.RecordReconciledOrder(outcome)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case "dispatched":
				res.Dispatched++
			case "deferred":
				res.Deferred++
			default:
				res.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	r.logger.Info("Reconciliation pass finished",
		zap.Int("found", res.Found),
		zap.Int("dispatched", res.Dispatched),
		zap.Int("deferred", res.Deferred),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (r *Reconciler) dispatchOne(ctx context.Context, order events.OrderSnapshot) string {
	ctx, cancel := context.WithTimeout(ctx, r.perOrder)
	defer cancel()

	rider, err := r.assigner.AssignRider(ctx, order)
	switch {
	case err == nil:
		r.logger.Info("Reconciled order dispatched", zap.Int64("order_id", order.ID), zap.Int64("rider_id", rider.ID))
		return "dispatched"
	case apperr.Recoverable(err):
		r.logger.Warn("Reconciled order left for next pass", zap.Int64("order_id", order.ID), zap.Error(err))
		return "deferred"
	case errors.Is(err, apperr.ErrUpstreamCall):
		r.logger.Error("Reconciled order dispatch failed", zap.Int64("order_id", order.ID), zap.Error(err))
		return "failed"
	default:
		r.logger.Error("Reconciled order dispatch failed",
			zap.String("kind", "unexpected"),
			zap.Int64("order_id", order.ID),
			zap.Error(err),
		)
		return "failed"
	}
}
