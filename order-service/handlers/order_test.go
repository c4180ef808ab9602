package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Ammar797/treatz-backend/apperr"
	"github.com/Ammar797/treatz-backend/events"
	"github.com/Ammar797/treatz-backend/identity"
	"github.com/Ammar797/treatz-backend/middleware"
	"github.com/Ammar797/treatz-backend/order-service/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var testSecret = []byte("test-secret-that-is-at-least-32-bytes")

// stubOrders lets each test script the service answer.
type stubOrders struct {
	updateFunc func(caller identity.Caller, orderID int64, req models.UpdateStatusRequest) (models.Order, error)
	getFunc    func(caller identity.Caller, orderID int64) (models.Order, error)
	listFunc   func(status string) ([]models.Order, error)
}

func (s *stubOrders) Create(ctx context.Context, caller identity.Caller, req models.CreateOrderRequest) (models.Order, error) {
	return models.Order{ID: 42, CustomerID: caller.UserID, Status: models.OrderStatusPending}, nil
}

func (s *stubOrders) UpdateStatus(ctx context.Context, caller identity.Caller, orderID int64, req models.UpdateStatusRequest) (models.Order, error) {
	return s.updateFunc(caller, orderID, req)
}

func (s *stubOrders) Get(ctx context.Context, caller identity.Caller, orderID int64) (models.Order, error) {
	return s.getFunc(caller, orderID)
}

func (s *stubOrders) MyOrders(ctx context.Context, caller identity.Caller) ([]models.Order, error) {
	return []models.Order{}, nil
}

func (s *stubOrders) RestaurantOrders(ctx context.Context, caller identity.Caller, restaurantID int64, status string) ([]models.Order, error) {
	return []models.Order{}, nil
}

func (s *stubOrders) ListByStatus(ctx context.Context, status string) ([]models.Order, error) {
	return s.listFunc(status)
}

func setupOrderTest(t *testing.T, orders Orders) *gin.Engine {
	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	handler := NewOrderHandler(orders, logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.AuthMiddleware(testSecret))
	handler.Register(router.Group("/orders"))
	return router
}

func bearer(t *testing.T, userID int64, role string) string {
	token, err := identity.NewToken(userID, role, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return "Bearer " + token
}

func TestOrderHandler_UpdateStatus_InternalDispatch(t *testing.T) {
	var gotCaller identity.Caller
	orders := &stubOrders{
		updateFunc: func(caller identity.Caller, orderID int64, req models.UpdateStatusRequest) (models.Order, error) {
			gotCaller = caller
			if orderID != 42 || req.Status != "DISPATCHED" || req.RiderID == nil || *req.RiderID != 501 {
				t.Errorf("Unexpected request: order=%d status=%s rider=%v", orderID, req.Status, req.RiderID)
			}
			return models.Order{ID: 42, Status: models.OrderStatusDispatched, RiderID: req.RiderID, TotalPrice: decimal.RequireFromString("13.50")}, nil
		},
	}
	router := setupOrderTest(t, orders)

	body := bytes.NewBufferString(`{"status":"DISPATCHED","riderId":501}`)
	req := httptest.NewRequest(http.MethodPut, "/orders/42/status", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if !gotCaller.IsInternal() {
		t.Errorf("Expected internal caller, got %s", gotCaller.Kind)
	}

	var snap events.OrderSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if snap.Status != "DISPATCHED" || snap.RiderID == nil || *snap.RiderID != 501 {
		t.Errorf("Unexpected snapshot %+v", snap)
	}
}

func TestOrderHandler_UpdateStatus_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unauthorized", fmt.Errorf("%w: not owner", apperr.ErrUnauthorized), http.StatusForbidden, "ACCESS_DENIED"},
		{"invalid transition", fmt.Errorf("%w: PENDING to DELIVERED", apperr.ErrInvalidTransition), http.StatusBadRequest, "INVALID_STATUS_TRANSITION"},
		{"not found", fmt.Errorf("%w: order 42", apperr.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"unexpected", fmt.Errorf("connection reset"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupOrderTest(t, &stubOrders{
				updateFunc: func(identity.Caller, int64, models.UpdateStatusRequest) (models.Order, error) {
					return models.Order{}, tt.err
				},
			})

			req := httptest.NewRequest(http.MethodPut, "/orders/42/status", bytes.NewBufferString(`{"status":"ACCEPTED"}`))
			req.Header.Set("Authorization", bearer(t, 11, "ROLE_RESTAURANT_OWNER"))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("Failed to decode body: %v", err)
			}
			if body["error"] != tt.wantCode {
				t.Errorf("Expected code %s, got %s", tt.wantCode, body["error"])
			}
		})
	}
}

func TestOrderHandler_UpdateStatus_CustomerForbidden(t *testing.T) {
	router := setupOrderTest(t, &stubOrders{
		updateFunc: func(identity.Caller, int64, models.UpdateStatusRequest) (models.Order, error) {
			t.Error("Service should not be reached")
			return models.Order{}, nil
		},
	})

	req := httptest.NewRequest(http.MethodPut, "/orders/42/status", bytes.NewBufferString(`{"status":"CANCELLED"}`))
	req.Header.Set("Authorization", bearer(t, 3, "ROLE_CUSTOMER"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status %d, got %d", http.StatusForbidden, w.Code)
	}
}

func TestOrderHandler_GetOrder_Success(t *testing.T) {
	router := setupOrderTest(t, &stubOrders{
		getFunc: func(caller identity.Caller, orderID int64) (models.Order, error) {
			return models.Order{ID: orderID, CustomerID: caller.UserID, Status: models.OrderStatusPending}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/orders/1", nil)
	req.Header.Set("Authorization", bearer(t, 3, "ROLE_CUSTOMER"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
}

func TestOrderHandler_GetOrder_InvalidID(t *testing.T) {
	router := setupOrderTest(t, &stubOrders{})

	req := httptest.NewRequest(http.MethodGet, "/orders/abc", nil)
	req.Header.Set("Authorization", bearer(t, 3, "ROLE_CUSTOMER"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestOrderHandler_ListByStatus_InternalOnly(t *testing.T) {
	router := setupOrderTest(t, &stubOrders{
		listFunc: func(status string) ([]models.Order, error) {
			return []models.Order{{ID: 43, Status: models.OrderStatusReadyForPickup}}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/orders/internal/status/READY_FOR_PICKUP", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	var snaps []events.OrderSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snaps); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if len(snaps) != 1 || snaps[0].ID != 43 {
		t.Errorf("Unexpected snapshots %+v", snaps)
	}

	req = httptest.NewRequest(http.MethodGet, "/orders/internal/status/READY_FOR_PICKUP", nil)
	req.Header.Set("Authorization", bearer(t, 11, "ROLE_RESTAURANT_OWNER"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status %d, got %d", http.StatusForbidden, w.Code)
	}
}

func TestOrderHandler_CreateOrder_BindingError(t *testing.T) {
	router := setupOrderTest(t, &stubOrders{})

	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(`{"restaurantId":9,"items":[]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, 3, "ROLE_CUSTOMER"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}
