package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Ammar797/treatz-backend/apperr"
	"github.com/Ammar797/treatz-backend/order-service/models"

	"github.com/lib/pq"
)

const orderColumns = `id, customer_id, restaurant_id, rider_id, total_price, status, payment_status,
	payment_method, payment_transaction_id, delivery_address, customer_phone,
	delivery_instructions, created_at, updated_at`

// OrderRepository is the order store. It is the only writer of orders.status.
type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts the order and its items in one transaction and fills in the
// generated id and timestamps.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO orders (customer_id, restaurant_id, total_price, status, payment_status, payment_method,
			payment_transaction_id, delivery_address, customer_phone, delivery_instructions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`,
		order.CustomerID,
		order.RestaurantID,
		order.TotalPrice,
		order.Status,
		order.PaymentStatus,
		order.PaymentMethod,
		order.PaymentTransactionID,
		order.DeliveryAddress,
		order.CustomerPhone,
		order.DeliveryInstructions,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, item := range order.Items {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO order_items (order_id, menu_item_id, quantity, price_per_item) VALUES ($1, $2, $3, $4)",
			order.ID, item.MenuItemID, item.Quantity, item.PricePerItem,
		); err != nil {
			return fmt.Errorf("failed to insert item %d of order %d: %w", item.MenuItemID, order.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64) (models.Order, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, fmt.Errorf("%w: order %d", apperr.ErrNotFound, id)
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to get order %d: %w", id, err)
	}

	orders := []models.Order{order}
	if err := r.loadItems(ctx, orders); err != nil {
		return models.Order{}, err
	}
	return orders[0], nil
}

func (r *OrderRepository) ListByStatus(ctx context.Context, status models.OrderStatus) ([]models.Order, error) {
	return r.list(ctx, "SELECT "+orderColumns+" FROM orders WHERE status = $1 ORDER BY id", status)
}

// ListByCustomer returns the customer's orders, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID int64) ([]models.Order, error) {
	return r.list(ctx, "SELECT "+orderColumns+" FROM orders WHERE customer_id = $1 ORDER BY created_at DESC, id DESC", customerID)
}

// ListByRestaurant filters by status when status is non-empty.
func (r *OrderRepository) ListByRestaurant(ctx context.Context, restaurantID int64, status models.OrderStatus) ([]models.Order, error) {
	if status == "" {
		return r.list(ctx, "SELECT "+orderColumns+" FROM orders WHERE restaurant_id = $1 ORDER BY created_at DESC, id DESC", restaurantID)
	}
	return r.list(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE restaurant_id = $1 AND status = $2 ORDER BY created_at DESC, id DESC",
		restaurantID, status)
}

// UpdateStatus moves the order from one status to another only if it is
// still in from. A nil riderID leaves rider_id untouched. Losing the race to
// another writer yields apperr.ErrInvalidTransition.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, from, to models.OrderStatus, riderID *int64) (models.Order, error) {
	var rider sql.NullInt64
	if riderID != nil {
		rider = sql.NullInt64{Int64: *riderID, Valid: true}
	}

	row := r.db.QueryRowContext(ctx,
		`UPDATE orders SET status = $1, rider_id = COALESCE($2, rider_id), updated_at = NOW()
		WHERE id = $3 AND status = $4
		RETURNING `+orderColumns,
		to, rider, id, from,
	)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, fmt.Errorf("%w: order %d is no longer %s", apperr.ErrInvalidTransition, id, from)
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to update order %d: %w", id, err)
	}

	orders := []models.Order{order}
	if err := r.loadItems(ctx, orders); err != nil {
		return models.Order{}, err
	}
	return orders[0], nil
}

func (r *OrderRepository) list(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}

	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// loadItems fetches the items of every order in one query.
func (r *OrderRepository) loadItems(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
		orders[i].Items = []models.OrderItem{}
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT order_id, menu_item_id, quantity, price_per_item FROM order_items WHERE order_id = ANY($1) ORDER BY id",
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID int64
		var item models.OrderItem
		if err := rows.Scan(&orderID, &item.MenuItemID, &item.Quantity, &item.PricePerItem); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if i, ok := index[orderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (models.Order, error) {
	var (
		order models.Order
		rider sql.NullInt64
		txID  sql.NullString
	)
	err := s.Scan(
		&order.ID,
		&order.CustomerID,
		&order.RestaurantID,
		&rider,
		&order.TotalPrice,
		&order.Status,
		&order.PaymentStatus,
		&order.PaymentMethod,
		&txID,
		&order.DeliveryAddress,
		&order.CustomerPhone,
		&order.DeliveryInstructions,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return models.Order{}, err
	}
	if rider.Valid {
		order.RiderID = &rider.Int64
	}
	order.PaymentTransactionID = txID.String
	return order, nil
}
