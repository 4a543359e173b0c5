package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Live feed events.
const (
	EventObservationCreated = "observation_created"
	EventAudienceCount      = "audience_count"
	EventPong               = "pong"
)

// Hub maintains ICAO -> set of connections and broadcasts messages.
// Uses Redis pub/sub for horizontal scaling.
type Hub struct {
	// icao -> map[clientID]*Client
	rooms    map[string]map[string]*Client
	subs     map[string]func() // cancel Redis subscription per aerodrome
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher publishes aerodrome events for cross-instance broadcast.
type RedisPublisher interface {
	PublishAerodromeEvent(icao, event string, payload []byte, restricted bool) error
}

// RedisSubscriber subscribes to aerodrome channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeAerodrome(icao string, handler func(event string, payload []byte, restricted bool)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. redisPub and redisSub may be nil for a single instance.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:    make(map[string]map[string]*Client),
		subs:     make(map[string]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to an aerodrome room. Starts the Redis subscription for the first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.ICAO] == nil {
		h.rooms[c.ICAO] = make(map[string]*Client)
		if h.redisSub != nil {
			icao := c.ICAO
			cancel, err := h.redisSub.SubscribeAerodrome(icao, func(event string, payload []byte, restricted bool) {
				h.BroadcastToAerodrome(icao, event, json.RawMessage(payload), restricted)
			})
			if err != nil {
				h.logger.Warn("redis subscribe failed", zap.String("icao", icao), zap.Error(err))
			} else {
				h.subs[icao] = cancel
			}
		}
	}
	h.rooms[c.ICAO][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined aerodrome", zap.String("client_id", c.ID), zap.String("icao", c.ICAO))
}

// Unregister removes a client. Cancels the Redis subscription when the last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.rooms[c.ICAO]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.rooms, c.ICAO)
			if cancel, ok := h.subs[c.ICAO]; ok {
				cancel()
				delete(h.subs, c.ICAO)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left aerodrome", zap.String("client_id", c.ID), zap.String("icao", c.ICAO))
}

func encode(payload interface{}) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(payload)
	}
}

// BroadcastToAerodrome sends a message to local clients of an aerodrome. Restricted
// messages only reach clients allowed to read collaborator content. Sends happen
// under the read lock so Unregister can safely close a client's channel.
func (h *Hub) BroadcastToAerodrome(icao, event string, payload interface{}, restricted bool) {
	data, err := encode(payload)
	if err != nil {
		h.logger.Warn("encode broadcast", zap.String("event", event), zap.Error(err))
		return
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[icao] {
		if restricted && !c.Restricted {
			continue
		}
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Publish delivers an event to every instance. With Redis configured it publishes only,
// so the subscriber callback performs the single local delivery.
func (h *Hub) Publish(icao, event string, payload interface{}, restricted bool) {
	if h.redis == nil {
		h.BroadcastToAerodrome(icao, event, payload, restricted)
		return
	}
	data, err := encode(payload)
	if err != nil {
		h.logger.Warn("encode publish", zap.String("event", event), zap.Error(err))
		return
	}
	if err := h.redis.PublishAerodromeEvent(icao, event, data, restricted); err != nil {
		h.logger.Warn("redis publish failed, delivering locally", zap.String("icao", icao), zap.Error(err))
		h.BroadcastToAerodrome(icao, event, json.RawMessage(data), restricted)
	}
}

// AudienceCount returns the number of local clients watching an aerodrome.
func (h *Hub) AudienceCount(icao string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[icao])
}

// SendToClient sends a message to a single client.
func (h *Hub) SendToClient(icao, clientID, event string, payload interface{}) {
	data, err := encode(payload)
	if err != nil {
		return
	}
	msg := WSMessage{Event: event, Data: data}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.rooms[icao][clientID]
	if !ok || c == nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}
