package models

import (
	"strings"
	"time"

	"github.com/Ammar797/treatz-backend/events"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "PENDING"
	OrderStatusAccepted       OrderStatus = "ACCEPTED"
	OrderStatusPreparing      OrderStatus = "PREPARING"
	OrderStatusReadyForPickup OrderStatus = "READY_FOR_PICKUP"
	OrderStatusDispatched     OrderStatus = "DISPATCHED"
	OrderStatusDelivered      OrderStatus = "DELIVERED"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
)

var allStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusAccepted,
	OrderStatusPreparing,
	OrderStatusReadyForPickup,
	OrderStatusDispatched,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// ParseOrderStatus is case-insensitive.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	upper := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range allStatuses {
		if st == upper {
			return st, true
		}
	}
	return "", false
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

type PaymentMethod string

const (
	PaymentMethodCashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
	PaymentMethodCard           PaymentMethod = "CARD"
	PaymentMethodUPI            PaymentMethod = "UPI"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCashOnDelivery, PaymentMethodCard, PaymentMethodUPI:
		return true
	}
	return false
}

type OrderItem struct {
	MenuItemID   int64           `json:"menuItemId"`
	Quantity     int             `json:"quantity"`
	PricePerItem decimal.Decimal `json:"pricePerItem"`
}

// LineTotal is quantity × unit price.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.PricePerItem.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID                   int64           `json:"id"`
	CustomerID           int64           `json:"customerId"`
	RestaurantID         int64           `json:"restaurantId"`
	RiderID              *int64          `json:"riderId"`
	Items                []OrderItem     `json:"items"`
	TotalPrice           decimal.Decimal `json:"totalPrice"`
	Status               OrderStatus     `json:"status"`
	PaymentStatus        PaymentStatus   `json:"paymentStatus"`
	PaymentMethod        PaymentMethod   `json:"paymentMethod"`
	PaymentTransactionID string          `json:"paymentTransactionId"`
	DeliveryAddress      string          `json:"deliveryAddress"`
	CustomerPhone        string          `json:"customerPhone"`
	DeliveryInstructions string          `json:"deliveryInstructions"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// TotalOf sums the line totals with decimal arithmetic.
func TotalOf(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}

func (o Order) Snapshot() events.OrderSnapshot {
	return events.OrderSnapshot{
		ID:           o.ID,
		CustomerID:   o.CustomerID,
		RestaurantID: o.RestaurantID,
		RiderID:      o.RiderID,
		TotalPrice:   o.TotalPrice,
		Status:       string(o.Status),
	}
}

type OrderItemRequest struct {
	MenuItemID int64 `json:"menuItemId" binding:"required"`
	Quantity   int   `json:"quantity" binding:"required,gt=0"`
}

type CreateOrderRequest struct {
	RestaurantID         int64              `json:"restaurantId" binding:"required"`
	Items                []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	PaymentMethod        PaymentMethod      `json:"paymentMethod" binding:"required"`
	DeliveryAddress      string             `json:"deliveryAddress" binding:"required,min=10,max=500"`
	CustomerPhone        string             `json:"customerPhone" binding:"required"`
	DeliveryInstructions string             `json:"deliveryInstructions" binding:"max=500"`
}

type UpdateStatusRequest struct {
	Status  string `json:"status" binding:"required"`
	RiderID *int64 `json:"riderId"`
}

// MenuItem is the catalog view of an item as returned by the restaurant service.
type MenuItem struct {
	ID           int64           `json:"id"`
	RestaurantID int64           `json:"restaurantId"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
}
