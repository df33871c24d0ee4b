package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/driftware/drip/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient("key-id", "secret-key", true)
	c.baseURL = srv.URL
	return c
}

func requireAuthHeaders(t *testing.T, r *http.Request) {
	t.Helper()
	require.Equal(t, "key-id", r.Header.Get("APCA-API-KEY-ID"))
	require.Equal(t, "secret-key", r.Header.Get("APCA-API-SECRET-KEY"))
}

func TestGetPositions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requireAuthHeaders(t, r)
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v2/positions", r.URL.Path)

		w.Write([]byte(`[
			{"symbol":"VOO","qty":"12","avg_entry_price":"350.25"},
			{"symbol":"VTI","qty":"3","avg_entry_price":"210.10"}
		]`))
	})

	positions, err := client.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)
	require.Equal(t, "VOO", positions[0].Symbol)
	require.True(t, positions[0].Qty.Equal(decimal.NewFromInt(12)))
	require.True(t, positions[0].AvgEntryPrice.Equal(decimal.NewFromFloat(350.25)))
}

func TestGetOrders_FilterEncoding(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requireAuthHeaders(t, r)
		require.Equal(t, "/v2/orders", r.URL.Path)

		q := r.URL.Query()
		require.Equal(t, "closed", q.Get("status"))
		require.Equal(t, "buy", q.Get("side"))
		require.Equal(t, "VOO", q.Get("symbols"))
		require.Equal(t, "20", q.Get("limit"))
		require.Equal(t, "desc", q.Get("direction"))

		w.Write([]byte(`[
			{"id":"abc","symbol":"VOO","side":"buy","status":"filled","filled_avg_price":"349.90"}
		]`))
	})

	orders, err := client.GetOrders(context.Background(), domain.OrderFilter{
		Status:  "closed",
		Side:    domain.SideBuy,
		Symbols: []string{"VOO"},
		Limit:   20,
	})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, domain.OrderStatusFilled, orders[0].Status)
	require.True(t, orders[0].FilledAvgPrice.Equal(decimal.NewFromFloat(349.90)))
}

func TestCreateOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requireAuthHeaders(t, r)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v2/orders", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, map[string]string{
			"symbol":          "VOO",
			"notional":        "10",
			"side":            "buy",
			"type":            "market",
			"time_in_force":   "day",
			"client_order_id": "drip-1",
		}, body)

		w.Write([]byte(`{"id":"o-1","client_order_id":"drip-1","symbol":"VOO","side":"buy","status":"new","notional":"10"}`))
	})

	order, err := client.CreateOrder(context.Background(), domain.OrderRequest{
		Symbol:        "VOO",
		Notional:      decimal.NewFromInt(10),
		Side:          domain.SideBuy,
		Type:          domain.OrderTypeMarket,
		TimeInForce:   domain.TimeInForceDay,
		ClientOrderID: "drip-1",
	})
	require.NoError(t, err)
	require.Equal(t, "o-1", order.ID)
	require.Equal(t, domain.OrderStatus("new"), order.Status)
}

func TestCreateOrder_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"code":40310000,"message":"insufficient buying power"}`))
	})

	_, err := client.CreateOrder(context.Background(), domain.OrderRequest{
		Symbol:   "VOO",
		Notional: decimal.NewFromInt(10),
		Side:     domain.SideBuy,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "insufficient buying power")
}

func TestGetClock(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/clock", r.URL.Path)
		w.Write([]byte(`{"is_open":true,"next_open":"2026-08-28T09:30:00-04:00","next_close":"2026-08-28T16:00:00-04:00"}`))
	})

	clock, err := client.GetClock(context.Background())
	require.NoError(t, err)
	require.True(t, clock.IsOpen)
	require.False(t, clock.NextClose.IsZero())
}

func TestCancelAllOrders_MultiStatusIsSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/v2/orders", r.URL.Path)
		w.WriteHeader(http.StatusMultiStatus)
		w.Write([]byte(`[{"id":"o-1","status":200}]`))
	})

	require.NoError(t, client.CancelAllOrders(context.Background()))
}

func TestUnexpectedStatusWithoutBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.GetPositions(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected status 502")
}

func TestNewClient_BaseURLSelection(t *testing.T) {
	require.Equal(t, paperBaseURL, NewClient("k", "s", true).baseURL)
	require.Equal(t, liveBaseURL, NewClient("k", "s", false).baseURL)
}
