package server

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketClient wraps a WebSocket connection. Writes are serialized so
// command replies and hub events can share the connection.
type WebSocketClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewWebSocketClient creates a new WebSocketClient from a WebSocket connection.
func NewWebSocketClient(conn *websocket.Conn) *WebSocketClient {
	return &WebSocketClient{conn: conn}
}

// ReadCommand blocks until the next non-empty message arrives and decodes it.
// A decode failure returns errMalformed wrapped with the cause; the
// connection stays usable.
func (c *WebSocketClient) ReadCommand() (*Command, error) {
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		message = bytes.TrimSpace(message)
		if len(message) == 0 {
			continue
		}

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			return nil, &malformedError{err: err}
		}
		return &cmd, nil
	}
}

// Send encodes v as JSON and writes it as one text message.
func (c *WebSocketClient) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, data)
}

// WriteMessage writes one message. Safe for concurrent use.
func (c *WebSocketClient) WriteMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the deadline for future writes.
func (c *WebSocketClient) SetWriteDeadline(t time.Time) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.SetWriteDeadline(t)
}

// Close closes the WebSocket connection.
func (c *WebSocketClient) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the remote address as a string.
func (c *WebSocketClient) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
