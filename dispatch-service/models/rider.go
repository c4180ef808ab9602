package models

import "time"

// Rider is a delivery rider. UserID is the rider's account id and is what
// orders carry as their rider id. OrderID is the order a busy rider was
// claimed for.
type Rider struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Name      string    `json:"name"`
	Available bool      `json:"available"`
	OrderID   *int64    `json:"orderId,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}
