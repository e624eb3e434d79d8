package ws

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/manpreetbhatti/inkboard/internal/presence"
	"github.com/manpreetbhatti/inkboard/internal/protocol"
)

// SessionRecorder keeps an audit trail of connections. *db.Database satisfies it.
type SessionRecorder interface {
	RecordJoin(roomID, participantID, remoteAddr string) error
	RecordLeave(participantID string) error
}

type Options struct {
	// Frames larger than this close the connection
	MaxMessageSize int64

	// Outbound frames buffered per connection before it counts as slow
	SendBuffer int

	Sessions SessionRecorder
	Logger   *zap.Logger
}

// Hub relays frames between the participants of each room. All room
// membership changes and fan-out happen on the Run goroutine.
type Hub struct {
	// Registered clients by room
	rooms map[string]map[*Client]bool

	// Inbound frames from clients, already validated
	broadcast chan *Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	presence presence.Registry
	sessions SessionRecorder
	logger   *zap.Logger
	opts     Options

	// Guards rooms for the operator accessors; only Run writes
	mu sync.RWMutex
}

type Message struct {
	RoomID string
	Data   []byte
	Sender *Client
}

func NewHub(registry presence.Registry, opts Options) *Hub {
	if registry == nil {
		registry = presence.NewMemoryRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaultMaxMessageSize
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan *Message),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		presence:   registry,
		sessions:   opts.Sessions,
		logger:     opts.Logger,
		opts:       opts,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.rooms[client.roomID]; !ok {
				h.rooms[client.roomID] = make(map[*Client]bool)
			}
			h.rooms[client.roomID][client] = true
			local := len(h.rooms[client.roomID])
			h.mu.Unlock()

			count, err := h.presence.Register(ctx, client.roomID, client.id)
			if err != nil {
				h.logger.Warn("presence register failed", zap.String("participant", client.id), zap.Error(err))
				count = local
			}
			if h.sessions != nil {
				if err := h.sessions.RecordJoin(client.roomID, client.id, client.remoteAddr); err != nil {
					h.logger.Warn("session join not recorded", zap.String("participant", client.id), zap.Error(err))
				}
			}
			h.logger.Info("participant joined",
				zap.String("room", client.roomID),
				zap.String("participant", client.id),
				zap.Int("total", count))

			frame, _ := protocol.Encode(protocol.EventParticipantCount, count)
			h.departed(ctx, h.fanOut(client.roomID, frame, nil))

		case client := <-h.unregister:
			if h.remove(client) {
				h.departed(ctx, []*Client{client})
			}

		case message := <-h.broadcast:
			// frames still draining from a dropped client must not reach
			// peers that were already told it left
			if message.Sender != nil && !h.member(message.Sender) {
				continue
			}
			h.departed(ctx, h.fanOut(message.RoomID, message.Data, message.Sender))
		}
	}
}

// remove takes a client out of its room and closes its send channel. It
// reports false if the client was already gone.
func (h *Hub) remove(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.rooms[client.roomID]
	if !ok || !clients[client] {
		return false
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.roomID)
	}
	return true
}

// fanOut queues data on every client of the room except sender. Clients
// whose buffer is full are removed and returned.
func (h *Hub) fanOut(roomID string, data []byte, sender *Client) []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	var dropped []*Client
	clients := h.rooms[roomID]
	for client := range clients {
		if client == sender {
			continue
		}
		select {
		case client.send <- data:
		default:
			close(client.send)
			delete(clients, client)
			if client.conn != nil {
				client.conn.Close()
			}
			dropped = append(dropped, client)
		}
	}
	if clients != nil && len(clients) == 0 {
		delete(h.rooms, roomID)
	}
	return dropped
}

// departed tells the rest of each room that clients are gone. Telling them
// may itself drop slow clients, which are handled in the same pass.
func (h *Hub) departed(ctx context.Context, gone []*Client) {
	for len(gone) > 0 {
		client := gone[0]
		gone = gone[1:]

		count, err := h.presence.Unregister(ctx, client.roomID, client.id)
		if err != nil {
			h.logger.Warn("presence unregister failed", zap.String("participant", client.id), zap.Error(err))
			count = h.localCount(client.roomID)
		}
		if h.sessions != nil {
			if err := h.sessions.RecordLeave(client.id); err != nil {
				h.logger.Warn("session leave not recorded", zap.String("participant", client.id), zap.Error(err))
			}
		}
		h.logger.Info("participant left",
			zap.String("room", client.roomID),
			zap.String("participant", client.id),
			zap.Int("remaining", count))

		countFrame, _ := protocol.Encode(protocol.EventParticipantCount, count)
		leftFrame, _ := protocol.Encode(protocol.EventParticipantLeft, client.id)
		gone = append(gone, h.fanOut(client.roomID, countFrame, nil)...)
		gone = append(gone, h.fanOut(client.roomID, leftFrame, nil)...)
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID, clients := range h.rooms {
		for client := range clients {
			close(client.send)
			if _, err := h.presence.Unregister(context.Background(), roomID, client.id); err != nil {
				h.logger.Warn("presence unregister failed", zap.String("participant", client.id), zap.Error(err))
			}
			if h.sessions != nil {
				_ = h.sessions.RecordLeave(client.id)
			}
		}
		delete(h.rooms, roomID)
	}
	h.logger.Info("hub stopped")
}

func (h *Hub) member(client *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[client.roomID][client]
}

func (h *Hub) localCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// GetRoomCount returns the number of rooms with at least one client
func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, clients := range h.rooms {
		total += len(clients)
	}
	return total
}

// GetActiveRooms maps room id to connected clients
func (h *Hub) GetActiveRooms() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int, len(h.rooms))
	for id, clients := range h.rooms {
		out[id] = len(clients)
	}
	return out
}

// Presence exposes the registry backing this hub.
func (h *Hub) Presence() presence.Registry { return h.presence }
