package push

import (
	"context"
	"net/http"
	"net/url"

	"github.com/coder/websocket"
)

// Conn is one open push channel: frame-oriented reads and writes plus close.
// The websocket implementation below is the production transport; tests use
// an in-memory fake.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens a push channel for a user session.
type Dialer interface {
	Dial(ctx context.Context, userID string) (Conn, error)
}

// WebsocketDialer dials the backend's websocket push endpoint, identifying
// the session user by query parameter.
type WebsocketDialer struct {
	URL        string
	HTTPClient *http.Client
}

// NewWebsocketDialer creates a dialer for the given ws:// endpoint.
func NewWebsocketDialer(endpoint string) *WebsocketDialer {
	return &WebsocketDialer{URL: endpoint}
}

func (d *WebsocketDialer) Dial(ctx context.Context, userID string) (Conn, error) {
	endpoint := d.URL + "?userId=" + url.QueryEscape(userID)
	c, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{
		HTTPClient: d.HTTPClient,
	})
	if err != nil {
		return nil, err
	}
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	return data, err
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "")
}
