// Package stream implements the Alpaca market-data websocket feed (v2).
//
// The client performs the connect/auth/subscribe handshake and then delivers
// every quote for the subscribed symbols to a single handler. It does not
// reconnect on its own; the daily schedule coordinator re-dials before market
// open when the last known status is not connected.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/driftware/drip/internal/domain"
)

// Status is the last known lifecycle state of the stream connection.
type Status string

const (
	StatusDisconnected  Status = "disconnected"
	StatusConnected     Status = "connected"
	StatusAuthenticated Status = "authenticated"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

// URL returns the data-stream endpoint for a feed ("iex", "sip").
func URL(feed string) string {
	return fmt.Sprintf("wss://stream.data.alpaca.markets/v2/%s", feed)
}

// QuoteHandler receives every quote delivered by the stream.
type QuoteHandler func(domain.Quote)

// Client is a websocket client for one feed and a fixed symbol subscription.
type Client struct {
	url       string
	apiKey    string
	apiSecret string
	symbols   []string
	handler   QuoteHandler
	logger    *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	status Status
}

// New returns a stream client. Connect must be called before quotes flow.
func New(url, apiKey, apiSecret string, symbols []string, handler QuoteHandler, logger *zap.Logger) *Client {
	return &Client{
		url:       url,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		symbols:   symbols,
		handler:   handler,
		logger:    logger.With(zap.String("component", "stream")),
		status:    StatusDisconnected,
	}
}

// wsMessage covers every server frame the client cares about: control
// messages ("success", "error", "subscription") and quotes ("q").
type wsMessage struct {
	Type      string          `json:"T"`
	Msg       string          `json:"msg,omitempty"`
	Code      int             `json:"code,omitempty"`
	Symbol    string          `json:"S,omitempty"`
	BidPrice  decimal.Decimal `json:"bp,omitempty"`
	AskPrice  decimal.Decimal `json:"ap,omitempty"`
	Timestamp time.Time       `json:"t,omitempty"`
}

type wsRequest struct {
	Action string   `json:"action"`
	Key    string   `json:"key,omitempty"`
	Secret string   `json:"secret,omitempty"`
	Quotes []string `json:"quotes,omitempty"`
}

// Status reports the last known connection state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
	c.logger.Info("stream status changed", zap.String("status", string(s)))
}

// Connect dials the feed, authenticates, subscribes to quotes for the
// configured symbols and starts the read loop. Calling Connect while already
// connected is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to dial %s", c.url)
	}
	c.setStatus(StatusConnected)

	if err := c.handshake(conn); err != nil {
		conn.Close()
		c.setStatus(StatusDisconnected)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setStatus(StatusAuthenticated)

	go c.readLoop(conn)
	return nil
}

// handshake consumes the server greeting, authenticates and subscribes.
func (c *Client) handshake(conn *websocket.Conn) error {
	if err := awaitSuccess(conn, "connected"); err != nil {
		return err
	}

	auth := wsRequest{Action: "auth", Key: c.apiKey, Secret: c.apiSecret}
	if err := writeJSON(conn, auth); err != nil {
		return errors.Wrap(err, "failed to send auth request")
	}
	if err := awaitSuccess(conn, "authenticated"); err != nil {
		return err
	}

	sub := wsRequest{Action: "subscribe", Quotes: c.symbols}
	if err := writeJSON(conn, sub); err != nil {
		return errors.Wrap(err, "failed to send subscribe request")
	}
	return nil
}

// Disconnect closes the connection. Safe to call when not connected.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	c.setStatus(StatusDisconnected)
	return err
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			current := c.conn
			if current == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			if current == conn {
				c.logger.Warn("stream read failed", zap.Error(err))
				c.setStatus(StatusDisconnected)
			}
			return
		}

		var msgs []wsMessage
		if err := json.Unmarshal(data, &msgs); err != nil {
			c.logger.Warn("failed to decode stream frame", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			c.dispatch(msg)
		}
	}
}

func (c *Client) dispatch(msg wsMessage) {
	switch msg.Type {
	case "q":
		c.handler(domain.Quote{
			Symbol:    msg.Symbol,
			BidPrice:  msg.BidPrice,
			AskPrice:  msg.AskPrice,
			Timestamp: msg.Timestamp,
		})
	case "error":
		c.logger.Error("stream error message",
			zap.Int("code", msg.Code),
			zap.String("msg", msg.Msg))
	case "subscription":
		c.logger.Info("subscription confirmed")
	case "success":
		// handshake acks outside Connect are informational only
		c.logger.Debug("stream success message", zap.String("msg", msg.Msg))
	default:
		c.logger.Debug("ignoring stream message", zap.String("type", msg.Type))
	}
}

// awaitSuccess reads frames until a success message with the wanted text
// arrives, failing fast on an error frame.
func awaitSuccess(conn *websocket.Conn, want string) error {
	deadline := time.Now().Add(handshakeTimeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return errors.Wrap(err, "failed to set read deadline")
	}
	defer conn.SetReadDeadline(time.Time{})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrapf(err, "waiting for %q", want)
		}

		var msgs []wsMessage
		if err := json.Unmarshal(data, &msgs); err != nil {
			return errors.Wrap(err, "failed to decode handshake frame")
		}
		for _, msg := range msgs {
			if msg.Type == "error" {
				return errors.Errorf("stream error %d: %s", msg.Code, msg.Msg)
			}
			if msg.Type == "success" && msg.Msg == want {
				return nil
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}
