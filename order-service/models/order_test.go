package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestTotalOf_DecimalExact(t *testing.T) {
	items := []OrderItem{
		{MenuItemID: 1, Quantity: 2, PricePerItem: decimal.RequireFromString("5.00")},
		{MenuItemID: 2, Quantity: 1, PricePerItem: decimal.RequireFromString("3.50")},
	}

	total := TotalOf(items)
	if !total.Equal(decimal.RequireFromString("13.50")) {
		t.Errorf("Expected total 13.50, got %s", total.StringFixed(2))
	}
}

func TestTotalOf_NoFloatDrift(t *testing.T) {
	// 0.1 × 3 drifts in float64.
	items := []OrderItem{{MenuItemID: 1, Quantity: 3, PricePerItem: decimal.RequireFromString("0.10")}}

	if got := TotalOf(items).StringFixed(2); got != "0.30" {
		t.Errorf("Expected 0.30, got %s", got)
	}
}

func TestParseOrderStatus(t *testing.T) {
	if st, ok := ParseOrderStatus("ready_for_pickup"); !ok || st != OrderStatusReadyForPickup {
		t.Errorf("Expected READY_FOR_PICKUP, got %q ok=%v", st, ok)
	}
	if _, ok := ParseOrderStatus("SHIPPED"); ok {
		t.Error("Expected SHIPPED to be rejected")
	}
}
