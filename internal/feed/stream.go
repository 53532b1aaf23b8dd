package feed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"llm-trading-dashboard/internal/interfaces"
)

const defaultHandshakeTimeout = 10 * time.Second

// Dialer opens push connections over websocket.
type Dialer struct {
	dialer websocket.Dialer
	header http.Header
}

var _ interfaces.StreamDialer = (*Dialer)(nil)

type DialerOption func(*Dialer)

func WithHandshakeTimeout(d time.Duration) DialerOption {
	return func(wd *Dialer) { wd.dialer.HandshakeTimeout = d }
}

func WithDialHeader(key, value string) DialerOption {
	return func(wd *Dialer) { wd.header.Set(key, value) }
}

func NewDialer(opts ...DialerOption) *Dialer {
	d := &Dialer{
		dialer: websocket.Dialer{
			Proxy:             http.ProxyFromEnvironment,
			HandshakeTimeout:  defaultHandshakeTimeout,
			EnableCompression: true,
		},
		header: http.Header{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dialer) Dial(ctx context.Context, url string) (interfaces.StreamConn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: HTTP %d: %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.conn.Close()
}

// IsCleanClose reports whether a read error is the peer closing the
// connection normally rather than a transport failure.
func IsCleanClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}
