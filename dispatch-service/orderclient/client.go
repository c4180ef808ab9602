// Package orderclient is the dispatch side of the order service's call
// surface. The dispatch service never writes order status itself; it asks
// the order service through this client.
package orderclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Ammar797/treatz-backend/apperr"
	"github.com/Ammar797/treatz-backend/circuitbreaker"
	"github.com/Ammar797/treatz-backend/events"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

type Client struct {
	baseURL        string
	timeout        time.Duration
	httpClient     *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	logger         *zap.Logger
}

// NewClient builds a client whose every call is bounded by timeout.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		timeout:        timeout,
		httpClient:     &http.Client{Timeout: timeout},
		circuitBreaker: circuitbreaker.NewCircuitBreaker(5, 30*time.Second),
		logger:         logger,
	}
}

type statusRequest struct {
	Status  string `json:"status"`
	RiderID *int64 `json:"riderId,omitempty"`
}

// UpdateStatus calls PUT /orders/{id}/status as an internal caller. Every
// failure, including a rejection by the order's transition guard, is
// returned wrapped in apperr.ErrUpstreamCall.
func (c *Client) UpdateStatus(ctx context.Context, orderID int64, status string, riderID *int64) (events.OrderSnapshot, error) {
	body, err := json.Marshal(statusRequest{Status: status, RiderID: riderID})
	if err != nil {
		return events.OrderSnapshot{}, err
	}

	var snap events.OrderSnapshot
	endpoint := fmt.Sprintf("%s/orders/%d/status", c.baseURL, orderID)
	err = c.call(ctx, http.MethodPut, endpoint, body, &snap)
	if err != nil {
		return events.OrderSnapshot{}, fmt.Errorf("%w: set order %d to %s: %v", apperr.ErrUpstreamCall, orderID, status, err)
	}
	return snap, nil
}

// ListByStatus calls GET /orders/internal/status/{status}.
func (c *Client) ListByStatus(ctx context.Context, status string) ([]events.OrderSnapshot, error) {
	var snaps []events.OrderSnapshot
	endpoint := c.baseURL + "/orders/internal/status/" + url.PathEscape(status)
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &snaps); err != nil {
		return nil, fmt.Errorf("%w: list %s orders: %v", apperr.ErrUpstreamCall, status, err)
	}
	return snaps, nil
}

type responseError struct {
	status int
	code   string
	msg    string
}

func (e *responseError) Error() string {
	if e.code == "" {
		return fmt.Sprintf("order service returned %d", e.status)
	}
	return fmt.Sprintf("order service returned %d %s: %s", e.status, e.code, e.msg)
}

// countable keeps guard rejections from opening the breaker.
func countable(err error) bool {
	if re, ok := err.(*responseError); ok {
		return re.status >= http.StatusInternalServerError
	}
	return true
}

func (c *Client) call(ctx context.Context, method, endpoint string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.circuitBreaker.Execute(ctx, func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			re := &responseError{status: resp.StatusCode}
			var payload struct {
				Error   string `json:"error"`
				Message string `json:"message"`
			}
			if json.NewDecoder(resp.Body).Decode(&payload) == nil {
				re.code, re.msg = payload.Error, payload.Message
			}
			return re
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}, countable)
}
