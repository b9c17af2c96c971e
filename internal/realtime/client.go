package realtime

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// MessageHandler processes one inbound frame of a client.
type MessageHandler func(ctx context.Context, c *Client, message []byte)

// Client is one websocket connection. All writes go through Send and are
// performed by WritePump, so the socket never sees concurrent writers.
type Client struct {
	ID   string
	Send chan []byte

	conn *websocket.Conn
	hub  *Hub

	// guarded by hub.mu
	rooms  map[string]struct{}
	closed bool
}

// WritePump drains Send to the socket and keeps the connection alive with
// pings. It returns when Send is closed or a write fails.
func (c *Client) WritePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("ws write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("ws ping failed")
				return
			}
		}
	}
}

// ReadPump reads frames until the connection fails and hands each one to
// handle. It blocks; the caller is expected to Leave afterwards.
func (c *Client) ReadPump(ctx context.Context, handle MessageHandler) {
	cfg := c.hub.cfg
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.hub.touch(ctx, c.ID)
		return c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		if handle != nil {
			handle(ctx, c, message)
		}
	}
}
