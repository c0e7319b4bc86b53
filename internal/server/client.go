// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	pongWait      = 60 * time.Second
	pingInterval  = 54 * time.Second
	writeDeadline = 10 * time.Second
	sendBuffer    = 256
)

// Client is one live WebSocket connection. The connection handle is owned
// exclusively by this struct; everything else talks to the client through
// its buffered send channel. The closed flag is guarded by the hub mutex.
type Client struct {
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	gateway        *Gateway
	addr           string
	closed         bool
	maxMessageSize int64
	limiter        *tokenBucket
	rateLimit      RateLimitConfig
	log            zerolog.Logger
}

// NewClient creates a Client for an upgraded connection. The hub launches
// the pump goroutines when the client is started.
func NewClient(conn *websocket.Conn, hub *Hub, gateway *Gateway, addr string, cfg Config, logger zerolog.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	return &Client{
		conn:           conn,
		send:           make(chan []byte, sendBuffer),
		hub:            hub,
		gateway:        gateway,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newTokenBucket(cfg.RateLimit),
		rateLimit:      cfg.RateLimit,
		log:            logger.With().Str("addr", addr).Logger(),
	}
}

// trySend queues a payload without blocking. Returns false when the client
// is closed or its buffer is full; the caller treats that as an unwritable
// peer and moves on.
func (c *Client) trySend(payload []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn().Err(err).Msg("failed to set initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn().Err(err).Msg("failed to set read deadline in pong handler")
		}
		return nil
	})
}

// handleReadError logs the read failure and reports whether the pump should
// stop. Every read error ends the connection.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().Int64("limit", c.maxMessageSize).Msg("message exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Debug().Err(err).Msg("client disconnected")
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.log.Debug().Err(err).Msg("connection closed")
	default:
		c.log.Warn().Err(err).Msg("websocket read error")
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error closing connection in read pump")
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if c.handleReadError(err) {
			break
		}

		if c.limiter != nil && !c.limiter.allow() {
			c.log.Warn().
				Int("burst", c.rateLimit.Burst).
				Dur("interval", c.rateLimit.RefillInterval).
				Uint64("dropped", c.limiter.dropCount()).
				Msg("rate limit exceeded; discarding message")
			continue
		}

		c.gateway.Dispatch(c, raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeMessage(message, ok) {
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				return
			}
		}
	}
}

func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn().Err(err).Msg("error closing connection")
	}
}

// writeMessage writes one outbound frame plus anything queued behind it.
// Returns false when the pump should stop.
func (c *Client) writeMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		c.log.Warn().Err(err).Msg("failed to set write deadline")
		return false
	}

	if !ok {
		// Hub closed the send channel; tell the peer goodbye.
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			c.log.Debug().Err(err).Msg("error writing close message")
		}
		return false
	}

	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		c.log.Debug().Err(err).Msg("error creating writer")
		return false
	}
	if _, err := w.Write(message); err != nil {
		c.log.Debug().Err(err).Msg("error writing message")
		return false
	}

	// Drain whatever queued up while we were writing, one frame each.
	n := len(c.send)
	for i := 0; i < n; i++ {
		if err := w.Close(); err != nil {
			c.log.Debug().Err(err).Msg("error closing writer")
			return false
		}
		w, err = c.conn.NextWriter(websocket.TextMessage)
		if err != nil {
			c.log.Debug().Err(err).Msg("error creating writer")
			return false
		}
		if _, err := w.Write(<-c.send); err != nil {
			c.log.Debug().Err(err).Msg("error writing queued message")
			return false
		}
	}

	if err := w.Close(); err != nil {
		c.log.Debug().Err(err).Msg("error closing writer")
		return false
	}
	return true
}

// isExpectedCloseError reports whether an error is part of normal
// connection teardown and not worth surfacing.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}

func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		c.log.Warn().Err(err).Msg("failed to set write deadline for ping")
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Debug().Err(err).Msg("error writing ping")
		return false
	}
	return true
}
