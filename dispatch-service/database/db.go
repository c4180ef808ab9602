package database

import (
	"database/sql"
	"fmt"

	"github.com/Ammar797/treatz-backend/config"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

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

	// user_id is the rider's account id in the user service.
	createTableQuery := `
	CREATE TABLE IF NOT EXISTS riders (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		available BOOLEAN NOT NULL DEFAULT TRUE,
		current_order_id BIGINT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	ALTER TABLE riders ADD COLUMN IF NOT EXISTS current_order_id BIGINT;
	`

	if _, err := db.Exec(createTableQuery); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	logger.Info("Database connection established", zap.String("database", cfg.Name))
	return db, nil
}
