package restaurant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Ammar797/treatz-backend/apperr"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mapCache struct {
	mu     sync.Mutex
	owners map[int64]int64
}

func (m *mapCache) GetOwner(ctx context.Context, restaurantID int64) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.owners[restaurantID]
	return id, ok, nil
}

func (m *mapCache) SetOwner(ctx context.Context, restaurantID, ownerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[restaurantID] = ownerID
	return nil
}

func TestClient_OwnerIDIsCached(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/restaurants/9/owner", r.URL.Path)
		w.Write([]byte("11"))
	}))
	defer srv.Close()

	cache := &mapCache{owners: map[int64]int64{}}
	client := NewClient(srv.URL, time.Second, cache, zaptest.NewLogger(t))

	for i := 0; i < 3; i++ {
		owner, err := client.OwnerID(context.Background(), 9)
		require.NoError(t, err)
		assert.Equal(t, int64(11), owner)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_OwnerIDNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, nil, zaptest.NewLogger(t))
	_, err := client.OwnerID(context.Background(), 9)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestClient_MenuItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/menu-items/details", r.URL.Path)

		var ids []int64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ids))
		assert.ElementsMatch(t, []int64{1, 2}, ids)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":1,"name":"Margherita","price":5.00},{"id":2,"name":"Garlic bread","price":3.50}]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, nil, zaptest.NewLogger(t))
	items, err := client.MenuItems(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[2].Price.Equal(decimal.RequireFromString("3.50")))
}

func TestClient_MenuItemsMissingItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":1,"name":"Margherita","price":5.00}]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, nil, zaptest.NewLogger(t))
	_, err := client.MenuItems(context.Background(), []int64{1, 99})
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}

func TestClient_ServerErrorIsUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, nil, zaptest.NewLogger(t))
	_, err := client.MenuItems(context.Background(), []int64{1})
	assert.True(t, errors.Is(err, apperr.ErrUpstreamCall))
}
