package orderclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Ammar797/treatz-backend/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestUpdateStatus_SendsInternalDispatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/orders/42/status", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "DISPATCHED", body["status"])
		assert.EqualValues(t, 501, body["riderId"])

		w.Write([]byte(`{"id":42,"customerId":3,"restaurantId":9,"riderId":501,"totalPrice":"13.50","status":"DISPATCHED"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, zaptest.NewLogger(t))
	rider := int64(501)
	snap, err := client.UpdateStatus(context.Background(), 42, "DISPATCHED", &rider)
	require.NoError(t, err)
	assert.Equal(t, "DISPATCHED", snap.Status)
	assert.Equal(t, "13.50", snap.TotalPrice.StringFixed(2))
}

func TestUpdateStatus_RejectionIsUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"INVALID_STATUS_TRANSITION","message":"order 42 cannot move from PENDING to DISPATCHED"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, zaptest.NewLogger(t))
	rider := int64(501)
	_, err := client.UpdateStatus(context.Background(), 42, "DISPATCHED", &rider)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrUpstreamCall))
	assert.Contains(t, err.Error(), "INVALID_STATUS_TRANSITION")
}

func TestUpdateStatus_TimeoutIsUpstreamFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(srv.URL, 50*time.Millisecond, zaptest.NewLogger(t))
	rider := int64(501)
	_, err := client.UpdateStatus(context.Background(), 42, "DISPATCHED", &rider)
	assert.True(t, errors.Is(err, apperr.ErrUpstreamCall))
}

func TestListByStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/internal/status/READY_FOR_PICKUP", r.URL.Path)
		w.Write([]byte(`[{"id":43,"customerId":3,"restaurantId":9,"riderId":null,"totalPrice":"10.00","status":"READY_FOR_PICKUP"}]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, zaptest.NewLogger(t))
	snaps, err := client.ListByStatus(context.Background(), "READY_FOR_PICKUP")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, int64(43), snaps[0].ID)
	assert.Nil(t, snaps[0].RiderID)
}
