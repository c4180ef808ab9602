// Package payment settles an order's payment before it is persisted. Cash
// on delivery settles immediately; card and UPI go through a Gateway.
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/Ammar797/treatz-backend/apperr"
	"github.com/Ammar797/treatz-backend/order-service/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Gateway charges an amount for an order.
type Gateway interface {
	Charge(ctx context.Context, order models.Order) (bool, error)
}

// SimulatedGateway accepts every charge.
type SimulatedGateway struct {
	logger *zap.Logger
}

func NewSimulatedGateway(logger *zap.Logger) *SimulatedGateway {
	return &SimulatedGateway{logger: logger}
}

func (g *SimulatedGateway) Charge(ctx context.Context, order models.Order) (bool, error) {
	g.logger.Info("Simulating payment gateway call",
		zap.String("method", string(order.PaymentMethod)),
		zap.String("amount", order.TotalPrice.StringFixed(2)),
	)
	return true, nil
}

type Processor struct {
	gateway Gateway
	now     func() time.Time
	logger  *zap.Logger
}

func NewProcessor(gateway Gateway, logger *zap.Logger) *Processor {
	return &Processor{gateway: gateway, now: time.Now, logger: logger}
}

// Process sets the payment status and transaction id on order. A declined
// charge marks the payment FAILED and returns apperr.ErrInvalidInput.
func (p *Processor) Process(ctx context.Context, order *models.Order) error {
	ctx, span := otel.Tracer("order-service").Start(ctx, "ProcessPayment")
	defer span.End()
	span.SetAttributes(attribute.String("payment.method", string(order.PaymentMethod)))

	txID := fmt.Sprintf("%s-%d", order.PaymentMethod, p.now().UnixMilli())

	if order.PaymentMethod == models.PaymentMethodCashOnDelivery {
		order.PaymentStatus = models.PaymentStatusCompleted
		order.PaymentTransactionID = fmt.Sprintf("COD-%d", p.now().UnixMilli())
		p.logger.Info("Cash on delivery, no verification needed")
		return nil
	}

	ok, err := p.gateway.Charge(ctx, *order)
	if err != nil {
		span.RecordError(err)
		order.PaymentStatus = models.PaymentStatusFailed
		return fmt.Errorf("%w: payment gateway: %v", apperr.ErrUpstreamCall, err)
	}
	if !ok {
		order.PaymentStatus = models.PaymentStatusFailed
		return fmt.Errorf("%w: payment failed, check your payment details and try again", apperr.ErrInvalidInput)
	}

	order.PaymentStatus = models.PaymentStatusCompleted
	order.PaymentTransactionID = txID
	span.SetAttributes(attribute.String("payment.transaction_id", txID))
	p.logger.Info("Payment successful",
		zap.String("method", string(order.PaymentMethod)),
		zap.String("transaction_id", txID),
	)
	return nil
}
