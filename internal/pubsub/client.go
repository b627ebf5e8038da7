package pubsub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/Guizzs26/live_polling_system/internal/model"
)

// Client is one participant connected via websocket.
type Client struct {
	id            string
	conn          *websocket.Conn
	send          chan []byte
	groupCode     string
	participantID string
	role          model.Role
	logger        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	closeMu sync.Mutex
	closed  bool

	rateMu       sync.Mutex
	messageCount int
	windowStart  time.Time
}

func NewClient(conn *websocket.Conn, groupCode, participantID string, role model.Role, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	conn.SetReadLimit(ReadLimit)

	return &Client{
		id:            id,
		conn:          conn,
		send:          make(chan []byte, SendBufferSize),
		groupCode:     groupCode,
		participantID: participantID,
		role:          role,
		logger:        logger.With("group", groupCode, "participant", participantID, "conn", id),
		ctx:           ctx,
		cancel:        cancel,
		windowStart:   time.Now(),
	}
}

func (c *Client) ID() string            { return c.id }
func (c *Client) ParticipantID() string { return c.participantID }
func (c *Client) Role() model.Role      { return c.role }
func (c *Client) GroupCode() string     { return c.groupCode }

// Send queues a message. A client whose buffer is full is too slow to keep
// up with the group and gets disconnected instead of stalling the sender.
func (c *Client) Send(msg []byte) bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- msg:
		return true
	default:
		c.logger.Warn("send buffer full, closing slow client")
		go c.Close()
		return false
	}
}

// Close stops the pumps. The close handshake runs in the background so a
// broadcaster closing many clients never waits on a peer.
func (c *Client) Close() {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.closeMu.Unlock()

	go func() {
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
		c.cancel()
	}()
}

// WritePump sends queued messages to the websocket connection and keeps it
// alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case m, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(c.ctx, WriteTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, m)
			cancel()
			if err != nil {
				c.logger.Info("write failed", "error", err)
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, PongTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.logger.Info("ping failed", "error", err)
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// ReadPump reads frames until the connection ends and hands each decoded
// envelope to handle, in receive order. onClose runs once when reading stops.
func (c *Client) ReadPump(handle func(*Client, Envelope), onClose func(*Client)) {
	defer func() {
		onClose(c)
		c.Close()
	}()

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				c.logger.Info("client disconnected")
			} else {
				c.logger.Warn("read failed", "error", err)
			}
			return
		}

		if !c.allow() {
			c.logger.Warn("rate limit exceeded")
			c.sendError("rate_limited", "Too many messages, slow down.")
			continue
		}

		env, err := Decode(data)
		if err != nil {
			c.logger.Warn("malformed frame", "error", err)
			c.sendError("invalid_payload", err.Error())
			continue
		}
		handle(c, env)
	}
}

func (c *Client) allow() bool {
	c.rateMu.Lock()
	defer c.rateMu.Unlock()

	now := time.Now()
	if now.Sub(c.windowStart) > RateLimitWindow {
		c.messageCount = 0
		c.windowStart = now
	}
	c.messageCount++
	return c.messageCount <= MaxMessagesPerWindow
}

func (c *Client) sendError(code, message string) {
	msg, err := Encode(EventError, ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	c.Send(msg)
}
