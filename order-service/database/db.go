package database

import (
	"database/sql"
	"fmt"

	"github.com/Ammar797/treatz-backend/config"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id BIGSERIAL PRIMARY KEY,
	customer_id BIGINT NOT NULL,
	restaurant_id BIGINT NOT NULL,
	rider_id BIGINT,
	total_price DECIMAL(10, 2) NOT NULL,
	status VARCHAR(32) NOT NULL DEFAULT 'PENDING',
	payment_status VARCHAR(32) NOT NULL DEFAULT 'PENDING',
	payment_method VARCHAR(32) NOT NULL,
	payment_transaction_id VARCHAR(64),
	delivery_address VARCHAR(500) NOT NULL,
	customer_phone VARCHAR(20) NOT NULL,
	delivery_instructions VARCHAR(500) NOT NULL DEFAULT '',
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS order_items (
	id BIGSERIAL PRIMARY KEY,
	order_id BIGINT NOT NULL REFERENCES orders(id),
	menu_item_id BIGINT NOT NULL,
	quantity INTEGER NOT NULL CHECK (quantity > 0),
	price_per_item DECIMAL(10, 2) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_status ON orders (status);
CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders (customer_id);
CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items (order_id);
`

func InitDB(cfg config.DatabaseConfig, logger *zap.Logger) (*sql.DB, error) {
	psqlInfo := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info("Database connection established", zap.String("database", cfg.Name))
	return db, nil
}
