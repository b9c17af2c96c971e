package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Event is the wire envelope of every server message.
type Event struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Bus carries marshalled events between instances. When a Hub has a bus,
// room traffic is published on it and delivered back through Deliver and
// CloseLocal by the bus subscription, including on the publishing instance.
type Bus interface {
	Publish(ctx context.Context, room string, data []byte) error
	PublishClose(ctx context.Context, room string) error
}

// DisconnectFunc reconciles a session roster after a player's connection left.
type DisconnectFunc func(ctx context.Context, sessionID, playerID string) error

// Config holds websocket connection settings.
type Config struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

// DefaultConfig returns the default connection settings.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     256,
	}
}

// Hub groups live connections into rooms keyed by session id (and host
// rooms) and fans events out to them. Delivery is at-most-once: a client
// whose buffer is full misses the event.
type Hub struct {
	cfg      Config
	registry Registry
	clock    clockwork.Clock

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}

	disconnect DisconnectFunc
	bus        Bus
}

// NewHub builds a hub. A nil registry selects the in-memory one.
func NewHub(cfg Config, registry Registry, clock clockwork.Clock) *Hub {
	def := DefaultConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if registry == nil {
		registry = NewMemoryRegistry()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Hub{
		cfg:      cfg,
		registry: registry,
		clock:    clock,
		rooms:    make(map[string]map[*Client]struct{}),
	}
}

// SetDisconnectHandler installs the roster reconciliation callback.
func (h *Hub) SetDisconnectHandler(fn DisconnectFunc) { h.disconnect = fn }

// SetBus routes room traffic through a cross-instance bus.
func (h *Hub) SetBus(bus Bus) { h.bus = bus }

// refresher is implemented by registries whose entries expire.
type refresher interface {
	Refresh(ctx context.Context, connectionID string) error
}

func (h *Hub) touch(ctx context.Context, connectionID string) {
	r, ok := h.registry.(refresher)
	if !ok {
		return
	}
	if err := r.Refresh(ctx, connectionID); err != nil {
		log.Debug().Err(err).Str("connection_id", connectionID).Msg("presence refresh failed")
	}
}

// Registry returns the hub's connection registry.
func (h *Hub) Registry() Registry { return h.registry }

// NewClient wraps an upgraded connection. The client belongs to no room yet.
func (h *Hub) NewClient(conn *websocket.Conn) *Client {
	return &Client{
		ID:    uuid.NewString(),
		Send:  make(chan []byte, h.cfg.SendBuffer),
		conn:  conn,
		hub:   h,
		rooms: make(map[string]struct{}),
	}
}

// JoinRoom registers the connection and adds it to the session's room.
func (h *Hub) JoinRoom(ctx context.Context, c *Client, reg domain.Registration) error {
	if reg.SessionID == "" {
		return domain.ErrMissingIdentifier
	}
	reg.ConnectionID = c.ID
	if reg.ConnectedAt.IsZero() {
		reg.ConnectedAt = h.clock.Now().UTC()
	}
	if err := h.registry.Register(ctx, reg); err != nil {
		return fmt.Errorf("register connection: %w", err)
	}
	h.Subscribe(c, reg.SessionID)
	log.Info().
		Str("connection_id", c.ID).
		Str("session_id", reg.SessionID).
		Str("player_id", reg.PlayerID).
		Str("host_id", reg.HostID).
		Msg("connection joined room")
	return nil
}

// Subscribe adds the client to an additional room (for example its host room).
func (h *Hub) Subscribe(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// Leave detaches the client from every room, drops its registration and
// reports the departure to the disconnect handler once the player has no
// other live connection to the session. Calling it twice is safe.
func (h *Hub) Leave(ctx context.Context, c *Client) {
	h.mu.Lock()
	h.detachLocked(c)
	h.mu.Unlock()

	reg, err := h.registry.Lookup(ctx, c.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return
	}
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("registration lookup failed")
		return
	}
	if err := h.registry.Remove(ctx, c.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("registration remove failed")
	}
	if reg.PlayerID == "" || h.disconnect == nil {
		return
	}
	n, err := h.registry.PlayerConnections(ctx, reg.SessionID, reg.PlayerID)
	if err != nil {
		log.Error().Err(err).Str("session_id", reg.SessionID).Str("player_id", reg.PlayerID).Msg("connection count failed")
	}
	if n > 0 {
		log.Debug().Str("session_id", reg.SessionID).Str("player_id", reg.PlayerID).Int("connections", n).Msg("player still connected")
		return
	}
	if err := h.disconnect(ctx, reg.SessionID, reg.PlayerID); err != nil {
		log.Error().Err(err).Str("session_id", reg.SessionID).Str("player_id", reg.PlayerID).Msg("disconnect reconciliation failed")
	}
}

// Send delivers an event to a single client.
func (h *Hub) Send(c *Client, sessionID, event string, payload any) {
	data, err := h.marshal(sessionID, event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("marshal event failed")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.offerLocked(c, data, event)
}

// Broadcast marshals the event once and delivers it to every member of room.
func (h *Hub) Broadcast(ctx context.Context, room, event string, payload any) {
	data, err := h.marshal(sessionOf(room), event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Str("room", room).Msg("marshal event failed")
		return
	}
	if h.bus != nil {
		if err := h.bus.Publish(ctx, room, data); err != nil {
			log.Warn().Err(err).Str("room", room).Str("event", event).Msg("bus publish failed, delivering locally")
			h.Deliver(room, data)
		}
		return
	}
	h.Deliver(room, data)
}

// TimerTick broadcasts the remaining seconds of the session's current item.
func (h *Hub) TimerTick(ctx context.Context, sessionID, itemID string, secondsRemaining int) {
	h.Broadcast(ctx, sessionID, domain.EventTimerTick, domain.TimerTickPayload{
		ItemID:           itemID,
		SecondsRemaining: secondsRemaining,
	})
}

// CloseRoom disconnects every client of room.
func (h *Hub) CloseRoom(room string) {
	if h.bus != nil {
		if err := h.bus.PublishClose(context.Background(), room); err == nil {
			return
		}
		log.Warn().Str("room", room).Msg("bus close failed, closing locally")
	}
	h.CloseLocal(room)
}

// Deliver hands an already marshalled event to the local members of room.
func (h *Hub) Deliver(room string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		h.offerLocked(c, data, room)
	}
}

// CloseLocal closes the local members of room.
func (h *Hub) CloseLocal(room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[room]
	count := len(members)
	for c := range members {
		h.detachLocked(c)
	}
	delete(h.rooms, room)
	log.Debug().Str("room", room).Int("connections", count).Msg("room closed")
}

// RoomSize returns the number of local members of room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) offerLocked(c *Client, data []byte, label string) {
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Warn().Str("connection_id", c.ID).Str("event", label).Msg("send buffer full, dropping event")
	}
}

// detachLocked removes c from all rooms and closes its send channel once.
func (h *Hub) detachLocked(c *Client) {
	if c.closed {
		return
	}
	for room := range c.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	c.rooms = map[string]struct{}{}
	c.closed = true
	close(c.Send)
}

func (h *Hub) marshal(sessionID, event string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{
		Type:      event,
		SessionID: sessionID,
		Timestamp: h.clock.Now().UTC(),
		Payload:   body,
	})
}

// sessionOf returns the session id carried by a room name; host rooms have none.
func sessionOf(room string) string {
	if strings.HasPrefix(room, "host:") {
		return ""
	}
	return room
}
