package hub

import (
	"encoding/json"
	"sync"
	"time"

	"qms/internal/models"
	"qms/internal/telemetry"

	"github.com/rs/zerolog"
)

const (
	EventTokenIssued   = "token.issued"
	EventTokenUpdated  = "token.updated"
	EventCounterStatus = "counter.status"
	EventCatalog       = "catalog.updated"
	EventReset         = "system.reset"
	EventSnapshot      = "system.snapshot"
)

// Event carries the full committed state. ServiceID and CounterID are
// routing metadata only; an empty value matches every subscription.
type Event struct {
	Type      string             `json:"type"`
	Origin    string             `json:"origin,omitempty"`
	ServiceID string             `json:"serviceId,omitempty"`
	CounterID string             `json:"counterId,omitempty"`
	TokenID   string             `json:"tokenId,omitempty"`
	State     models.SystemState `json:"state"`
	CreatedAt time.Time          `json:"createdAt"`
}

type Publisher interface {
	Publish(event Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

func (f PublisherFunc) Publish(event Event) {
	f(event)
}

// Tee publishes every event to each publisher in order.
type Tee []Publisher

func (t Tee) Publish(event Event) {
	for _, p := range t {
		p.Publish(event)
	}
}

type Subscription struct {
	ServiceID string
	CounterID string
}

type Client struct {
	ID           string
	Send         chan Event
	Subscription Subscription

	mu      sync.Mutex
	dropped int
}

// Dropped reports how many superseded events were discarded for this
// client.
func (c *Client) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	buffer  int
	logger  zerolog.Logger
}

type Options struct {
	Buffer int
	Logger zerolog.Logger
}

type SubscribeMessage struct {
	Action    string `json:"action"`
	ServiceID string `json:"serviceId"`
	CounterID string `json:"counterId"`
}

func New(options Options) *Hub {
	buffer := options.Buffer
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		clients: make(map[string]*Client),
		buffer:  buffer,
		logger:  options.Logger,
	}
}

// Subscribe registers a client with the hub's buffer size.
func (h *Hub) Subscribe(id string, sub Subscription) *Client {
	client := &Client{ID: id, Send: make(chan Event, h.buffer), Subscription: sub}
	h.Register(client)
	return client
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	telemetry.SubscribersActive.Set(float64(len(h.clients)))
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
	telemetry.SubscribersActive.Set(float64(len(h.clients)))
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish never blocks. A client whose buffer is full loses its oldest
// queued event so the newest state is always enqueued.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !match(client.Subscription, event) {
			continue
		}
		if h.deliver(client, event) {
			telemetry.EventsDropped.Inc()
			h.logger.Debug().Str("client", client.ID).Str("type", event.Type).Msg("dropped superseded event")
		}
	}
}

func (h *Hub) deliver(client *Client, event Event) bool {
	client.mu.Lock()
	defer client.mu.Unlock()
	dropped := false
	for {
		select {
		case client.Send <- event:
			return dropped
		default:
		}
		select {
		case <-client.Send:
			client.dropped++
			dropped = true
		default:
		}
	}
}

func match(sub Subscription, event Event) bool {
	if sub.ServiceID != "" && event.ServiceID != "" && event.ServiceID != sub.ServiceID {
		return false
	}
	if sub.CounterID != "" && event.CounterID != "" && event.CounterID != sub.CounterID {
		return false
	}
	return true
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
