package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Ammar797/treatz-backend/apperr"
	"github.com/Ammar797/treatz-backend/events"
	"github.com/Ammar797/treatz-backend/identity"
	"github.com/Ammar797/treatz-backend/order-service/models"
	"github.com/Ammar797/treatz-backend/order-service/statemachine"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

type Store interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id int64) (models.Order, error)
	ListByStatus(ctx context.Context, status models.OrderStatus) ([]models.Order, error)
	ListByCustomer(ctx context.Context, customerID int64) ([]models.Order, error)
	ListByRestaurant(ctx context.Context, restaurantID int64, status models.OrderStatus) ([]models.Order, error)
	UpdateStatus(ctx context.Context, id int64, from, to models.OrderStatus, riderID *int64) (models.Order, error)
}

type Catalog interface {
	OwnerID(ctx context.Context, restaurantID int64) (int64, error)
	MenuItems(ctx context.Context, ids []int64) (map[int64]models.MenuItem, error)
}

type Payments interface {
	Process(ctx context.Context, order *models.Order) error
}

type OrderService struct {
	store     Store
	catalog   Catalog
	payments  Payments
	publisher events.Publisher
	logger    *zap.Logger
}

func NewOrderService(store Store, catalog Catalog, payments Payments, publisher events.Publisher, logger *zap.Logger) *OrderService {
	return &OrderService{
		store:     store,
		catalog:   catalog,
		payments:  payments,
		publisher: publisher,
		logger:    logger,
	}
}

// Create prices the items from the catalog, settles payment, stores the
// order as PENDING and announces it on order.placed.
func (s *OrderService) Create(ctx context.Context, caller identity.Caller, req models.CreateOrderRequest) (models.Order, error) {
	ctx, span := otel.Tracer("order-service").Start(ctx, "CreateOrder")
	defer span.End()

	if caller.Kind != identity.KindCustomer {
		return models.Order{}, fmt.Errorf("%w: only customers can place orders", apperr.ErrUnauthorized)
	}
	if err := validateCreate(req); err != nil {
		return models.Order{}, err
	}

	span.SetAttributes(
		attribute.Int64("customer.id", caller.UserID),
		attribute.Int64("restaurant.id", req.RestaurantID),
		attribute.Int("items", len(req.Items)),
	)

	ids := make([]int64, 0, len(req.Items))
	seen := make(map[int64]bool, len(req.Items))
	for _, it := range req.Items {
		if !seen[it.MenuItemID] {
			seen[it.MenuItemID] = true
			ids = append(ids, it.MenuItemID)
		}
	}
	menu, err := s.catalog.MenuItems(ctx, ids)
	if err != nil {
		span.RecordError(err)
		return models.Order{}, err
	}

	order := models.Order{
		CustomerID:           caller.UserID,
		RestaurantID:         req.RestaurantID,
		Status:               models.OrderStatusPending,
		PaymentStatus:        models.PaymentStatusPending,
		PaymentMethod:        req.PaymentMethod,
		DeliveryAddress:      req.DeliveryAddress,
		CustomerPhone:        req.CustomerPhone,
		DeliveryInstructions: req.DeliveryInstructions,
	}
	for _, it := range req.Items {
		order.Items = append(order.Items, models.OrderItem{
			MenuItemID:   it.MenuItemID,
			Quantity:     it.Quantity,
			PricePerItem: menu[it.MenuItemID].Price,
		})
	}
	order.TotalPrice = models.TotalOf(order.Items)

	if err := s.payments.Process(ctx, &order); err != nil {
		span.RecordError(err)
		return models.Order{}, err
	}

	if err := s.store.Create(ctx, &order); err != nil {
		span.RecordError(err)
		return models.Order{}, err
	}
	span.SetAttributes(attribute.Int64("order.id", order.ID))

	if err := s.publisher.Publish(ctx, events.RoutingKeyOrderPlaced, order.ID); err != nil {
		// The order is stored; placement notifications are best effort.
		s.logger.Error("Failed to publish order placed event", zap.Int64("order_id", order.ID), zap.Error(err))
	}

	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("customer_id", order.CustomerID),
		zap.String("total_price", order.TotalPrice.StringFixed(2)),
	)
	return order, nil
}

// UpdateStatus runs the transition guard for caller and, when allowed,
// writes the new status and publishes order.status.<status>.
func (s *OrderService) UpdateStatus(ctx context.Context, caller identity.Caller, orderID int64, req models.UpdateStatusRequest) (models.Order, error) {
	ctx, span := otel.Tracer("order-service").Start(ctx, "UpdateOrderStatus")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("order.id", orderID),
		attribute.String("caller.kind", string(caller.Kind)),
		attribute.String("status.requested", req.Status),
	)

	target, ok := models.ParseOrderStatus(req.Status)
	if !ok {
		return models.Order{}, fmt.Errorf("%w: unknown status %q", apperr.ErrInvalidInput, req.Status)
	}

	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}

	guard := statemachine.Request{
		Order:   order,
		Target:  target,
		RiderID: req.RiderID,
		Caller:  caller,
	}
	if caller.Kind == identity.KindRestaurantOwner {
		guard.RestaurantOwnerID, err = s.catalog.OwnerID(ctx, order.RestaurantID)
		if err != nil {
			return models.Order{}, err
		}
	}

	decision, err := statemachine.Decide(guard)
	if err != nil {
		span.RecordError(err)
		return models.Order{}, err
	}
	if decision.Unchanged {
		s.logger.Info("Repeated dispatch ignored", zap.Int64("order_id", orderID), zap.Int64p("rider_id", order.RiderID))
		return order, nil
	}

	updated, err := s.store.UpdateStatus(ctx, orderID, decision.From, decision.To, decision.RiderID)
	if err != nil {
		span.RecordError(err)
		return models.Order{}, err
	}

	routingKey := events.StatusRoutingKey(string(updated.Status))
	if err := s.publisher.Publish(ctx, routingKey, updated.Snapshot()); err != nil {
		s.logger.Error("Failed to publish status event",
			zap.Int64("order_id", orderID),
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
	}

	s.logger.Info("Order status updated",
		zap.Int64("order_id", orderID),
		zap.String("from", string(decision.From)),
		zap.String("to", string(decision.To)),
		zap.String("caller", string(caller.Kind)),
	)
	return updated, nil
}

// Get returns an order to the customer who placed it.
func (s *OrderService) Get(ctx context.Context, caller identity.Caller, orderID int64) (models.Order, error) {
	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if caller.Kind != identity.KindCustomer || order.CustomerID != caller.UserID {
		return models.Order{}, fmt.Errorf("%w: not authorized to view order %d", apperr.ErrUnauthorized, orderID)
	}
	return order, nil
}

func (s *OrderService) MyOrders(ctx context.Context, caller identity.Caller) ([]models.Order, error) {
	if caller.Kind != identity.KindCustomer {
		return nil, fmt.Errorf("%w: only customers have orders", apperr.ErrUnauthorized)
	}
	return s.store.ListByCustomer(ctx, caller.UserID)
}

// RestaurantOrders lists a restaurant's orders for its owner, optionally
// filtered by status.
func (s *OrderService) RestaurantOrders(ctx context.Context, caller identity.Caller, restaurantID int64, status string) ([]models.Order, error) {
	if caller.Kind != identity.KindRestaurantOwner {
		return nil, fmt.Errorf("%w: only restaurant owners can list restaurant orders", apperr.ErrUnauthorized)
	}

	var filter models.OrderStatus
	if status != "" {
		st, ok := models.ParseOrderStatus(status)
		if !ok {
			return nil, fmt.Errorf("%w: unknown status %q", apperr.ErrInvalidInput, status)
		}
		filter = st
	}

	ownerID, err := s.catalog.OwnerID(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	if ownerID != caller.UserID {
		return nil, fmt.Errorf("%w: user %d does not own restaurant %d", apperr.ErrUnauthorized, caller.UserID, restaurantID)
	}
	return s.store.ListByRestaurant(ctx, restaurantID, filter)
}

// ListByStatus backs the internal reconciliation query.
func (s *OrderService) ListByStatus(ctx context.Context, status string) ([]models.Order, error) {
	st, ok := models.ParseOrderStatus(status)
	if !ok {
		return nil, fmt.Errorf("%w: unknown status %q", apperr.ErrInvalidInput, status)
	}
	return s.store.ListByStatus(ctx, st)
}

func validateCreate(req models.CreateOrderRequest) error {
	var problems []string
	if len(req.Items) == 0 {
		problems = append(problems, "order must contain at least one item")
	}
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			problems = append(problems, fmt.Sprintf("quantity for menu item %d must be positive", it.MenuItemID))
		}
	}
	if !req.PaymentMethod.Valid() {
		problems = append(problems, fmt.Sprintf("unsupported payment method %q", req.PaymentMethod))
	}
	if n := len(strings.TrimSpace(req.DeliveryAddress)); n < 10 || n > 500 {
		problems = append(problems, "delivery address must be between 10 and 500 characters")
	}
	if !phonePattern.MatchString(req.CustomerPhone) {
		problems = append(problems, "customer phone must be 10 to 15 digits")
	}
	if len(req.DeliveryInstructions) > 500 {
		problems = append(problems, "delivery instructions must be at most 500 characters")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", apperr.ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}
