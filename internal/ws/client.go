package ws

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/manpreetbhatti/inkboard/internal/protocol"
)

const (
	writeWait             = 10 * time.Second
	pongWait              = 60 * time.Second
	pingPeriod            = (pongWait * 9) / 10
	defaultMaxMessageSize = 1024 * 1024
	defaultSendBuffer     = 512
	defaultRoom           = "default"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one participant connection
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	roomID     string
	id         string
	remoteAddr string
	logger     *zap.Logger
}

func (c *Client) ID() string { return c.id }

func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		roomID = defaultRoom
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	id := uuid.NewString()
	client := &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, hub.opts.SendBuffer),
		roomID:     roomID,
		id:         id,
		remoteAddr: conn.RemoteAddr().String(),
		logger:     hub.logger.With(zap.String("participant", id), zap.String("room", roomID)),
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				c.logger.Warn("dropping connection: frame over size limit", zap.Int64("limit", c.hub.opts.MaxMessageSize))
			case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure):
				c.logger.Warn("websocket error", zap.Error(err))
			}
			return
		}

		data, err := c.relayFrame(message)
		if err != nil {
			c.logger.Debug("ignoring frame", zap.Error(err))
			continue
		}

		select {
		case c.hub.broadcast <- &Message{RoomID: c.roomID, Data: data, Sender: c}:
		case <-c.hub.done:
			return
		}
	}
}

// relayFrame turns an inbound frame into what the rest of the room receives.
// Shape snapshots go out byte for byte; cursors get the sender's id attached.
func (c *Client) relayFrame(message []byte) ([]byte, error) {
	env, err := protocol.Decode(message)
	if err != nil {
		return nil, err
	}
	if err := protocol.ValidateInbound(env); err != nil {
		return nil, err
	}

	switch env.Event {
	case protocol.EventCursorUpdate:
		cursor, err := env.Cursor()
		if err != nil {
			return nil, fmt.Errorf("cursor payload: %w", err)
		}
		cursor.ID = c.id
		return protocol.Encode(protocol.EventCursorUpdate, cursor)
	default:
		return message, nil
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
