package locker

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event is a status report from the native phone-lock service.
type Event struct {
	Status         string `json:"status"`
	SessionID      string `json:"session_id"`
	ElapsedSeconds int64  `json:"elapsed_seconds"`
}

const (
	StatusStarted   = "started"
	StatusPaused    = "paused"
	StatusResumed   = "resumed"
	StatusStopped   = "stopped"
	StatusHeartbeat = "heartbeat"
)

// Command is an instruction the agent issues to the lock service.
type Command struct {
	Action       string `json:"action"`
	SessionID    string `json:"session_id,omitempty"`
	DisplayTitle string `json:"display_title,omitempty"`
}

const (
	ActionStart  = "start"
	ActionPause  = "pause"
	ActionResume = "resume"
	ActionStop   = "stop"
)

// Hub bridges the agent and the native lock service. Outbound commands are
// broadcast to every connected lock client; inbound status events are exposed
// on a single channel consumed by the session service.
type Hub struct {
	redis   *redis.Client
	log     *zap.Logger
	clients map[*Client]struct{}
	events  chan Event
	mu      sync.RWMutex
}

type Client struct {
	Send chan []byte
}

func NewHub(redisClient *redis.Client, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		redis:   redisClient,
		log:     log,
		clients: map[*Client]struct{}{},
		events:  make(chan Event, 64),
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register() *Client {
	client := &Client{Send: make(chan []byte, 64)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
	}
}

// Events returns the inbound status stream. Events are dropped when the
// consumer falls behind; the stream is advisory, never authoritative.
func (h *Hub) Events() <-chan Event {
	return h.events
}

// Dispatch feeds a status event to the consumer without blocking.
func (h *Hub) Dispatch(ev Event) {
	select {
	case h.events <- ev:
	default:
		h.log.Warn("locker event dropped", zap.String("status", ev.Status))
	}
}

func (h *Hub) Start(sessionID, displayTitle string) {
	h.send(Command{Action: ActionStart, SessionID: sessionID, DisplayTitle: displayTitle})
}

func (h *Hub) Pause() {
	h.send(Command{Action: ActionPause})
}

func (h *Hub) Resume() {
	h.send(Command{Action: ActionResume})
}

func (h *Hub) Stop() {
	h.send(Command{Action: ActionStop})
}

func (h *Hub) send(cmd Command) {
	payload, _ := json.Marshal(cmd)

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.Send <- payload:
		default:
		}
	}

	if h.redis != nil {
		if err := h.redis.Publish(context.Background(), commandChannel, payload).Err(); err != nil {
			h.log.Warn("redis publish error", zap.Error(err))
		}
	}
}

const (
	commandChannel = "locker:commands"
	eventChannel   = "locker:events"
)

// subscribeRedis lets an out-of-process shim inject lock events when the
// native service cannot hold a websocket to the agent.
func (h *Hub) subscribeRedis() {
	pubsub := h.redis.Subscribe(context.Background(), eventChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			h.log.Warn("bad locker event payload", zap.Error(err))
			continue
		}
		h.Dispatch(ev)
	}
}
