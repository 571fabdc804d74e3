package connpool

import (
	"context"
	"fmt"
	"net/url"

	"github.com/coder/websocket"
)

// Conn is one established duplex connection. Implementations must allow
// concurrent Write calls with one reader.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens a connection for the given connection id. The pool calls it
// for the initial connect and for every reconnection attempt.
type Dialer func(ctx context.Context, id string) (Conn, error)

// wsConn adapts a coder/websocket connection to the Conn interface.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// WebsocketDialer returns a Dialer that connects to the control endpoint,
// identifying the account by its secondary id in the query string.
func WebsocketDialer(endpoint string) Dialer {
	return func(ctx context.Context, id string) (Conn, error) {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse control endpoint: %w", err)
		}
		q := u.Query()
		q.Set("red_id", id)
		u.RawQuery = q.Encode()

		ws, _, err := websocket.Dial(ctx, u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("websocket dial %s: %w", u.Host, err)
		}
		return &wsConn{conn: ws}, nil
	}
}
