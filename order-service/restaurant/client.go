// Package restaurant calls the restaurant catalog service for menu prices and
// restaurant ownership.
package restaurant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Ammar797/treatz-backend/apperr"
	"github.com/Ammar797/treatz-backend/circuitbreaker"
	"github.com/Ammar797/treatz-backend/order-service/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// OwnerCache is satisfied by cache.OwnerCache.
type OwnerCache interface {
	GetOwner(ctx context.Context, restaurantID int64) (int64, bool, error)
	SetOwner(ctx context.Context, restaurantID, ownerID int64) error
}

type Client struct {
	baseURL        string
	httpClient     *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	cache          OwnerCache
	logger         *zap.Logger
}

// NewClient builds a client for baseURL. cache may be nil.
func NewClient(baseURL string, timeout time.Duration, cache OwnerCache, logger *zap.Logger) *Client {
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{Timeout: timeout},
		circuitBreaker: circuitbreaker.NewCircuitBreaker(5, 30*time.Second),
		cache:          cache,
		logger:         logger,
	}
}

// OwnerID returns the user id owning restaurantID, consulting the cache
// first. A cache failure falls through to the restaurant service.
func (c *Client) OwnerID(ctx context.Context, restaurantID int64) (int64, error) {
	if c.cache != nil {
		ownerID, ok, err := c.cache.GetOwner(ctx, restaurantID)
		if err != nil {
			c.logger.Warn("Owner cache read failed", zap.Int64("restaurant_id", restaurantID), zap.Error(err))
		} else if ok {
			return ownerID, nil
		}
	}

	var ownerID int64
	url := fmt.Sprintf("%s/api/restaurants/%d/owner", c.baseURL, restaurantID)
	err := c.circuitBreaker.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		return c.do(req, &ownerID)
	}, countable)
	if err != nil {
		return 0, c.wrap(err, "restaurant owner lookup")
	}

	if c.cache != nil {
		if err := c.cache.SetOwner(ctx, restaurantID, ownerID); err != nil {
			c.logger.Warn("Owner cache write failed", zap.Int64("restaurant_id", restaurantID), zap.Error(err))
		}
	}
	return ownerID, nil
}

// MenuItems fetches the catalog entries for ids. Every id must be known to
// the restaurant service, otherwise apperr.ErrInvalidInput is returned.
func (c *Client) MenuItems(ctx context.Context, ids []int64) (map[int64]models.MenuItem, error) {
	body, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}

	var items []models.MenuItem
	err = c.circuitBreaker.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/menu-items/details", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		return c.do(req, &items)
	}, countable)
	if err != nil {
		return nil, c.wrap(err, "menu item lookup")
	}

	byID := make(map[int64]models.MenuItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("%w: menu item %d could not be found", apperr.ErrInvalidInput, id)
		}
	}
	return byID, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return "restaurant service returned " + strconv.Itoa(e.code)
}

// countable keeps 4xx answers from opening the breaker.
func countable(err error) bool {
	if se, ok := err.(*statusError); ok {
		return se.code >= http.StatusInternalServerError
	}
	return true
}

func (c *Client) do(req *http.Request, out any) error {
	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{code: resp.StatusCode}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) wrap(err error, op string) error {
	if se, ok := err.(*statusError); ok && se.code == http.StatusNotFound {
		return fmt.Errorf("%w: %s: %v", apperr.ErrNotFound, op, err)
	}
	c.logger.Error("Restaurant service call failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %s: %v", apperr.ErrUpstreamCall, op, err)
}
