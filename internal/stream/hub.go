package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/Abhinavchoudhary2005/AlertIQ/internal/logging"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const clientBuffer = 64

type EventType string

const (
	EventInit   EventType = "init"
	EventUpdate EventType = "update"
	EventEnded  EventType = "ended"
)

// Event is a message for viewers. Data is the JSON body sent on the wire and
// carries its own "type" field.
type Event struct {
	Type EventType `json:"type"`
	Data []byte    `json:"data"`
}

func (e Event) Payload() []byte {
	if len(e.Data) > 0 {
		return e.Data
	}
	return []byte(`{"type":"` + string(e.Type) + `"}`)
}

// Client is one subscriber of a session. Send carries init and update events
// and is closed on Unregister. Ended is closed exactly once when the session
// ends; it is never dropped, unlike updates to a full Send buffer.
type Client struct {
	SessionID string
	Send      chan Event
	Ended     chan struct{}

	endOnce    sync.Once
	unregister sync.Once
}

func (c *Client) finish() {
	c.endOnce.Do(func() { close(c.Ended) })
}

type Hub struct {
	redis   *redis.Client
	origin  string
	log     *slog.Logger
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
	cancel  context.CancelFunc
	done    chan struct{}
}

// envelope is the relay format on Redis; origin lets an instance skip its own messages.
type envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

func NewHub(redisClient *redis.Client, log *slog.Logger) *Hub {
	if log == nil {
		log = logging.Discard()
	}
	h := &Hub{
		redis:   redisClient,
		origin:  uuid.NewString(),
		log:     log,
		clients: map[string]map[*Client]struct{}{},
		done:    make(chan struct{}),
	}

	if redisClient == nil {
		close(h.done)
		return h
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	pubsub := redisClient.PSubscribe(ctx, redisPattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		h.log.Warn("redis relay unavailable", "error", err)
	}
	go h.subscribeRedis(ctx, pubsub)
	return h
}

// Close stops the Redis relay. Local delivery keeps working.
func (h *Hub) Close() {
	if h.cancel != nil {
		h.cancel()
	}
	<-h.done
}

func newClient(sessionID string) *Client {
	return &Client{
		SessionID: sessionID,
		Send:      make(chan Event, clientBuffer),
		Ended:     make(chan struct{}),
	}
}

func (h *Hub) Register(sessionID string) *Client {
	client := newClient(sessionID)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.add(client)
	return client
}

// Attach registers a client whose first event comes from first. first runs
// with the hub locked, so no relayed or local update can be queued ahead of
// it. When first reports ended the client's Ended channel is closed as well.
func (h *Hub) Attach(sessionID string, first func() (Event, bool, error)) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	event, ended, err := first()
	if err != nil {
		return nil, err
	}
	client := newClient(sessionID)
	h.add(client)
	client.Send <- event
	if ended {
		client.finish()
	}
	return client, nil
}

// add must be called with h.mu held.
func (h *Hub) add(client *Client) {
	if h.clients[client.SessionID] == nil {
		h.clients[client.SessionID] = map[*Client]struct{}{}
	}
	h.clients[client.SessionID][client] = struct{}{}
}

// Unregister removes the client and closes Send. It reports whether this call
// did the removal, so callers can account for a viewer exactly once.
func (h *Hub) Unregister(client *Client) bool {
	removed := false
	client.unregister.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		if sessionClients, ok := h.clients[client.SessionID]; ok {
			delete(sessionClients, client)
			if len(sessionClients) == 0 {
				delete(h.clients, client.SessionID)
			}
		}
		close(client.Send)
		removed = true
	})
	return removed
}

// Deliver queues an event for a single client, used for the initial snapshot.
func (h *Hub) Deliver(client *Client, event Event) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client.SessionID][client]; !ok {
		return false
	}
	select {
	case client.Send <- event:
		return true
	default:
		return false
	}
}

// Broadcast fans an update out to every local client without blocking and
// relays it to other instances.
func (h *Hub) Broadcast(sessionID string, event Event) {
	h.deliverLocal(sessionID, event)
	h.publish(sessionID, event)
}

// Finish signals the end of a session to every current subscriber.
func (h *Hub) Finish(sessionID string) {
	h.finishLocal(sessionID)
	h.publish(sessionID, Event{Type: EventEnded})
}

// FinishClient signals the end to a single subscriber, for late joiners.
func (h *Hub) FinishClient(client *Client) {
	client.finish()
}

func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

func (h *Hub) deliverLocal(sessionID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[sessionID] {
		select {
		case client.Send <- event:
		default:
			h.log.Debug("subscriber queue full, dropping update", "session_id", sessionID)
		}
	}
}

func (h *Hub) finishLocal(sessionID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[sessionID] {
		client.finish()
	}
}

func (h *Hub) publish(sessionID string, event Event) {
	if h.redis == nil {
		return
	}
	payload, err := json.Marshal(envelope{Origin: h.origin, Event: event})
	if err != nil {
		return
	}
	if err := h.redis.Publish(context.Background(), redisChannel(sessionID), payload).Err(); err != nil {
		h.log.Warn("redis publish error", "session_id", sessionID, "error", err)
	}
}

func (h *Hub) subscribeRedis(ctx context.Context, pubsub *redis.PubSub) {
	defer close(h.done)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.relay(msg.Channel, msg.Payload)
		}
	}
}

func (h *Hub) relay(channel, payload string) {
	sessionID := sessionIDFromChannel(channel)
	if sessionID == "" {
		return
	}
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		h.log.Warn("malformed relay message", "channel", channel, "error", err)
		return
	}
	if env.Origin == h.origin {
		return
	}
	if env.Event.Type == EventEnded {
		h.finishLocal(sessionID)
		return
	}
	h.deliverLocal(sessionID, env.Event)
}

const redisPattern = "tracking:*:broadcast"

func redisChannel(sessionID string) string {
	return "tracking:" + sessionID + ":broadcast"
}

func sessionIDFromChannel(ch string) string {
	// tracking:{session}:broadcast
	const prefix = "tracking:"
	const suffix = ":broadcast"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
