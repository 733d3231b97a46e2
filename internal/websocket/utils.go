package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	readTimeout  = 5 * time.Minute
)

// Conn serializes writes to a gorilla connection. The reader and the server
// ticker write from different goroutines; gorilla allows one writer at a time.
type Conn struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	closeOnce sync.Once
}

// NewConn wraps conn.
func NewConn(conn *websocket.Conn) *Conn {
	return &Conn{conn: conn}
}

// WriteTyped sends a strongly-typed payload.
func (c *Conn) WriteTyped(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse.
func (c *Conn) WriteError(code, msg string) error {
	return c.WriteTyped(ErrorResponse{Event: EventError, Code: code, Error: msg})
}

// ReadJSON reads and decodes the next message. A silent client is dropped
// after readTimeout.
func (c *Conn) ReadJSON(v any) error {
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	return c.conn.ReadJSON(v)
}

// Close sends a normal close frame and closes the connection once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		err = c.conn.Close()
	})
	return err
}
