// Package broker provides access to the Alpaca trading REST API.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/driftware/drip/internal/domain"
)

const (
	liveBaseURL  = "https://api.alpaca.markets"
	paperBaseURL = "https://paper-api.alpaca.markets"

	requestTimeout = 15 * time.Second
)

// Client is a thin client for the Alpaca trading API v2. All prices and
// amounts cross the wire as string-encoded decimals.
type Client struct {
	httpc     *http.Client
	baseURL   string
	apiKey    string
	apiSecret string
}

// NewClient returns a trading API client. When paper is true the paper-trading
// endpoint is used.
func NewClient(apiKey, apiSecret string, paper bool) *Client {
	baseURL := liveBaseURL
	if paper {
		baseURL = paperBaseURL
	}

	return &Client{
		httpc:     &http.Client{Timeout: requestTimeout},
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
	}
}

type positionPayload struct {
	Symbol        string          `json:"symbol"`
	Qty           decimal.Decimal `json:"qty"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
}

type orderPayload struct {
	ID             string          `json:"id"`
	ClientOrderID  string          `json:"client_order_id"`
	Symbol         string          `json:"symbol"`
	Side           string          `json:"side"`
	Status         string          `json:"status"`
	Notional       decimal.Decimal `json:"notional"`
	FilledAvgPrice decimal.Decimal `json:"filled_avg_price"`
	FilledAt       *time.Time      `json:"filled_at"`
}

func (p orderPayload) toDomain() domain.Order {
	o := domain.Order{
		ID:             p.ID,
		ClientOrderID:  p.ClientOrderID,
		Symbol:         p.Symbol,
		Side:           domain.OrderSide(p.Side),
		Status:         domain.OrderStatus(p.Status),
		Notional:       p.Notional,
		FilledAvgPrice: p.FilledAvgPrice,
	}
	if p.FilledAt != nil {
		o.FilledAt = *p.FilledAt
	}
	return o
}

type clockPayload struct {
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

type createOrderPayload struct {
	Symbol        string `json:"symbol"`
	Notional      string `json:"notional"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

// GetPositions lists all open positions on the account.
func (c *Client) GetPositions(ctx context.Context) ([]domain.Position, error) {
	var payload []positionPayload
	if err := c.do(ctx, http.MethodGet, "/v2/positions", nil, nil, &payload); err != nil {
		return nil, err
	}

	positions := make([]domain.Position, 0, len(payload))
	for _, p := range payload {
		positions = append(positions, domain.Position{
			Symbol:        p.Symbol,
			Qty:           p.Qty,
			AvgEntryPrice: p.AvgEntryPrice,
		})
	}
	return positions, nil
}

// GetOrders lists orders matching the filter, newest first.
func (c *Client) GetOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	query := url.Values{}
	if filter.Status != "" {
		query.Set("status", filter.Status)
	}
	if filter.Side != "" {
		query.Set("side", string(filter.Side))
	}
	if len(filter.Symbols) > 0 {
		query.Set("symbols", strings.Join(filter.Symbols, ","))
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}
	query.Set("direction", "desc")

	var payload []orderPayload
	if err := c.do(ctx, http.MethodGet, "/v2/orders", query, nil, &payload); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(payload))
	for _, p := range payload {
		orders = append(orders, p.toDomain())
	}
	return orders, nil
}

// CreateOrder submits a new order and returns the accepted order.
func (c *Client) CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	body := createOrderPayload{
		Symbol:        req.Symbol,
		Notional:      req.Notional.String(),
		Side:          string(req.Side),
		Type:          string(req.Type),
		TimeInForce:   string(req.TimeInForce),
		ClientOrderID: req.ClientOrderID,
	}

	var payload orderPayload
	if err := c.do(ctx, http.MethodPost, "/v2/orders", nil, body, &payload); err != nil {
		return domain.Order{}, err
	}
	return payload.toDomain(), nil
}

// GetClock fetches the brokerage market clock.
func (c *Client) GetClock(ctx context.Context) (domain.Clock, error) {
	var payload clockPayload
	if err := c.do(ctx, http.MethodGet, "/v2/clock", nil, nil, &payload); err != nil {
		return domain.Clock{}, err
	}
	return domain.Clock{
		IsOpen:    payload.IsOpen,
		NextOpen:  payload.NextOpen,
		NextClose: payload.NextClose,
	}, nil
}

// CancelAllOrders cancels every open order on the account.
func (c *Client) CancelAllOrders(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/v2/orders", nil, nil, nil)
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("alpaca api error %d: %s", e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request body")
		}
		reader = bytes.NewReader(data)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return errors.Wrapf(err, "failed to build %s %s request", method, path)
	}
	req.Header.Set("APCA-API-KEY-ID", c.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.apiSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s failed", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s %s response", method, path)
	}

	// cancel-all returns 207 with per-order statuses; any 2xx is success here
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return errors.Wrapf(&apiErr, "%s %s", method, path)
		}
		return errors.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "failed to decode %s %s response", method, path)
	}
	return nil
}
