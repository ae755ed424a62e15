package realtime

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	maxFrameSize = 64 << 10
)

// EventPong answers a client "ping" action.
const EventPong = "pong"

// control is the only frame clients send: {"action": "...", "streams": [...]}.
type control struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

type client struct {
	hub     *Hub
	socket  *websocket.Conn
	userID  string
	streams map[string]struct{} // guarded by hub.mu
	send    chan Message
	once    sync.Once
}

func (c *client) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxFrameSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame control
		if err := c.socket.ReadJSON(&frame); err != nil {
			if isMalformedFrame(err) {
				c.hub.log.Debug("ignoring malformed control frame", zap.String("user_id", c.userID), zap.Error(err))
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("websocket closed unexpectedly", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
		c.handle(frame)
	}
}

func (c *client) handle(frame control) {
	switch strings.ToLower(strings.TrimSpace(frame.Action)) {
	case "subscribe":
		c.hub.subscribe(c, frame.Streams)
	case "unsubscribe":
		c.hub.unsubscribe(c, frame.Streams)
	case "ping":
		select {
		case c.send <- Message{Event: EventPong}:
		default:
		}
	default:
		c.hub.log.Debug("unsupported control action", zap.String("action", frame.Action), zap.String("user_id", c.userID))
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, open := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !open {
				_ = c.socket.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.socket.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		close(c.send)
		_ = c.socket.Close()
	})
}

// isMalformedFrame separates bad client JSON from transport failures. Read
// errors on the socket are sticky, so skipping a frame never hides a close.
func isMalformedFrame(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF)
}
