package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Ammar797/treatz-backend/apperr"
	"github.com/Ammar797/treatz-backend/events"
	"github.com/Ammar797/treatz-backend/identity"
	"github.com/Ammar797/treatz-backend/middleware"
	"github.com/Ammar797/treatz-backend/order-service/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Orders is implemented by service.OrderService.
type Orders interface {
	Create(ctx context.Context, caller identity.Caller, req models.CreateOrderRequest) (models.Order, error)
	UpdateStatus(ctx context.Context, caller identity.Caller, orderID int64, req models.UpdateStatusRequest) (models.Order, error)
	Get(ctx context.Context, caller identity.Caller, orderID int64) (models.Order, error)
	MyOrders(ctx context.Context, caller identity.Caller) ([]models.Order, error)
	RestaurantOrders(ctx context.Context, caller identity.Caller, restaurantID int64, status string) ([]models.Order, error)
	ListByStatus(ctx context.Context, status string) ([]models.Order, error)
}

type OrderHandler struct {
	orders Orders
	logger *zap.Logger
}

func NewOrderHandler(orders Orders, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

// Register mounts the order routes on rg. rg must already run
// middleware.AuthMiddleware.
func (h *OrderHandler) Register(rg *gin.RouterGroup) {
	customer := middleware.RequireKind(identity.KindCustomer)

	rg.POST("", customer, h.CreateOrder)
	rg.GET("/my-orders", customer, h.MyOrders)
	rg.GET("/restaurant/:restaurantId", middleware.RequireKind(identity.KindRestaurantOwner), h.RestaurantOrders)
	rg.GET("/internal/status/:status", middleware.RequireKind(identity.KindInternal), h.ListByStatus)
	rg.PUT("/:id/status", middleware.RequireKind(identity.KindRestaurantOwner, identity.KindRider, identity.KindInternal), h.UpdateStatus)
	rg.GET("/:id", customer, h.GetOrder)
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": apperr.Code(apperr.ErrInvalidInput), "message": err.Error()})
		return
	}

	order, err := h.orders.Create(c.Request.Context(), middleware.CallerFrom(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	orderID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req models.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": apperr.Code(apperr.ErrInvalidInput), "message": err.Error()})
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), middleware.CallerFrom(c), orderID, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order.Snapshot())
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.Get(c.Request.Context(), middleware.CallerFrom(c), orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) MyOrders(c *gin.Context) {
	orders, err := h.orders.MyOrders(c.Request.Context(), middleware.CallerFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) RestaurantOrders(c *gin.Context) {
	restaurantID, ok := h.pathID(c, "restaurantId")
	if !ok {
		return
	}

	orders, err := h.orders.RestaurantOrders(c.Request.Context(), middleware.CallerFrom(c), restaurantID, c.Query("status"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// ListByStatus answers the reconciliation query with order snapshots.
func (h *OrderHandler) ListByStatus(c *gin.Context) {
	orders, err := h.orders.ListByStatus(c.Request.Context(), c.Param("status"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	snapshots := make([]events.OrderSnapshot, len(orders))
	for i, o := range orders {
		snapshots[i] = o.Snapshot()
	}
	c.JSON(http.StatusOK, snapshots)
}

func (h *OrderHandler) pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": apperr.Code(apperr.ErrInvalidInput), "message": "Invalid " + name})
		return 0, false
	}
	return id, true
}

func (h *OrderHandler) writeError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Order request failed",
			zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": apperr.Code(err), "message": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": apperr.Code(err), "message": err.Error()})
}
