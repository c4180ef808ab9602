package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Ammar797/treatz-backend/dispatch-service/models"

	"go.uber.org/zap"
)

const riderColumns = "id, user_id, name, available, current_order_id, updated_at"

// RiderRepository is the rider store. Availability only changes through
// Claim and Release, both compare-and-swaps on the rider row.
type RiderRepository struct {
	db *sql.DB
}

func NewRiderRepository(db *sql.DB) *RiderRepository {
	return &RiderRepository{db: db}
}

// FindAvailable returns any available rider, or false when none is.
func (r *RiderRepository) FindAvailable(ctx context.Context) (models.Rider, bool, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+riderColumns+" FROM riders WHERE available = TRUE ORDER BY id LIMIT 1")
	return scanRider(row)
}

func (r *RiderRepository) FindByUserID(ctx context.Context, userID int64) (models.Rider, bool, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+riderColumns+" FROM riders WHERE user_id = $1", userID)
	return scanRider(row)
}

// Claim marks an available rider busy with orderID. It reports whether this
// call made the change.
func (r *RiderRepository) Claim(ctx context.Context, riderID, orderID int64) (bool, error) {
	return r.swap(ctx, riderID,
		"UPDATE riders SET available = FALSE, current_order_id = $1, updated_at = NOW() WHERE id = $2 AND available = TRUE",
		orderID, riderID,
	)
}

// Release frees a rider only while it is still held for orderID, so a late
// event for an earlier order cannot free a rider on its next trip. Busy
// rows without an order id predate order tracking and are released too.
func (r *RiderRepository) Release(ctx context.Context, riderID, orderID int64) (bool, error) {
	return r.swap(ctx, riderID,
		"UPDATE riders SET available = TRUE, current_order_id = NULL, updated_at = NOW() WHERE id = $1 AND available = FALSE AND (current_order_id = $2 OR current_order_id IS NULL)",
		riderID, orderID,
	)
}

func (r *RiderRepository) swap(ctx context.Context, riderID int64, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update rider %d: %w", riderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected for rider %d: %w", riderID, err)
	}
	return n == 1, nil
}

func (r *RiderRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM riders").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count riders: %w", err)
	}
	return n, nil
}

// SeedIfEmpty inserts riders when the table has none.
func (r *RiderRepository) SeedIfEmpty(ctx context.Context, riders []models.Rider, logger *zap.Logger) error {
	n, err := r.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	logger.Info("No riders found, creating sample riders", zap.Int("count", len(riders)))
	for _, rd := range riders {
		if _, err := r.db.ExecContext(ctx,
			"INSERT INTO riders (user_id, name, available) VALUES ($1, $2, $3) ON CONFLICT (user_id) DO NOTHING",
			rd.UserID, rd.Name, rd.Available,
		); err != nil {
			return fmt.Errorf("failed to seed rider %d: %w", rd.UserID, err)
		}
	}
	return nil
}

// SampleRiders match the first rider accounts created by the auth service.
var SampleRiders = []models.Rider{
	{UserID: 1, Name: "Ravi Kumar", Available: true},
	{UserID: 2, Name: "Rohit Sharma", Available: true},
}

func scanRider(row *sql.Row) (models.Rider, bool, error) {
	var (
		rd      models.Rider
		orderID sql.NullInt64
	)
	err := row.Scan(&rd.ID, &rd.UserID, &rd.Name, &rd.Available, &orderID, &rd.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Rider{}, false, nil
	}
	if err != nil {
		return models.Rider{}, false, fmt.Errorf("failed to scan rider: %w", err)
	}
	if orderID.Valid {
		rd.OrderID = &orderID.Int64
	}
	return rd, true, nil
}
