package editing

import (
	"context"
	"fmt"
	"time"

	"api-studio/internal/models"

	"github.com/gorilla/websocket"
)

// Transport is the persistent bidirectional connection to the hub.
// Implementations must deliver messages in order in both directions;
// the whole reconciliation pipeline leans on that guarantee.
type Transport interface {
	// Connect performs the handshake. Blocking; honors ctx.
	Connect(ctx context.Context) error
	// Send transmits one message. Sends from the session are already
	// serialized through its dispatch loop.
	Send(msg *models.Message) error
	// Receive blocks for the next inbound message. Returns an error
	// once the connection is closed or dropped.
	Receive() (*models.Message, error)
	// Close shuts the connection down gracefully.
	Close() error
}

// DisconnectError reports an unexpected transport drop with the
// close code, when one is known.
type DisconnectError struct {
	Code   int
	Reason string
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf("transport dropped (code %d): %s", e.Code, e.Reason)
}

const wsWriteTimeout = 10 * time.Second

// WebSocketTransport connects to the hub's editing endpoint
type WebSocketTransport struct {
	url  string
	conn *websocket.Conn
}

func NewWebSocketTransport(url string) *WebSocketTransport {
	return &WebSocketTransport{url: url}
}

func (t *WebSocketTransport) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", t.url, err)
	}
	t.conn = conn
	return nil
}

func (t *WebSocketTransport) Send(msg *models.Message) error {
	if t.conn == nil {
		return fmt.Errorf("transport is not connected")
	}
	t.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return t.conn.WriteJSON(msg)
}

func (t *WebSocketTransport) Receive() (*models.Message, error) {
	if t.conn == nil {
		return nil, fmt.Errorf("transport is not connected")
	}
	var msg models.Message
	if err := t.conn.ReadJSON(&msg); err != nil {
		if closeErr, ok := err.(*websocket.CloseError); ok &&
			closeErr.Code != websocket.CloseNormalClosure &&
			closeErr.Code != websocket.CloseGoingAway {
			return nil, &DisconnectError{Code: closeErr.Code, Reason: closeErr.Text}
		}
		return nil, err
	}
	return &msg, nil
}

func (t *WebSocketTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	t.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return t.conn.Close()
}
