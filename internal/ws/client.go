package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatty/internal/realtime"
)

const (
	writeWait      = 10 * time.Second
	maxInboundSize = 4096
)

// ErrSendBufferFull means the peer is not draining its socket fast enough.
var ErrSendBufferFull = errors.New("ws: send buffer full")

// Client adapts a websocket to realtime.Conn. A single write pump owns all writes,
// so events reach the socket in the order Send accepted them.
type Client struct {
	conn         *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	pingInterval time.Duration
	logger       *zap.Logger
}

func NewClient(conn *websocket.Conn, sendBuffer int, pingInterval time.Duration, logger *zap.Logger) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		conn:         conn,
		send:         make(chan []byte, sendBuffer),
		done:         make(chan struct{}),
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// Send queues evt without blocking.
func (c *Client) Send(evt realtime.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return realtime.ErrConnClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return realtime.ErrConnClosed
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which sends a close frame and releases the socket.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Done is closed once Close has been called.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("websocket ping failed", zap.Error(err))
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			return
		}
	}
}

// readLoop consumes inbound frames until the peer goes away. Clients only talk to
// the server over HTTP, so frames are discarded; reading keeps pongs and close
// frames flowing.
func (c *Client) readLoop() error {
	c.conn.SetReadLimit(maxInboundSize)
	deadline := 2 * c.pingInterval
	_ = c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(deadline))
	}
}
