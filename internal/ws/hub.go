package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub fans frames out to the clients of one topic.
type Hub struct {
	topic string

	mu      sync.RWMutex
	members map[*Client]struct{}

	// onEmpty runs after the last member leaves.
	onEmpty func()
}

// NewHub creates an empty hub for topic.
func NewHub(topic string) *Hub {
	return &Hub{
		topic:   topic,
		members: make(map[*Client]struct{}),
	}
}

// Topic returns the hub's topic.
func (h *Hub) Topic() string {
	return h.topic
}

// Add makes client a member.
func (h *Hub) Add(client *Client) {
	h.mu.Lock()
	h.members[client] = struct{}{}
	h.mu.Unlock()
}

// Leave removes client and closes it.
func (h *Hub) Leave(client *Client) {
	h.mu.Lock()
	_, member := h.members[client]
	delete(h.members, client)
	empty := len(h.members) == 0
	onEmpty := h.onEmpty
	h.mu.Unlock()

	client.Close()

	if member && empty && onEmpty != nil {
		onEmpty()
	}
}

// Broadcast queues data for every member and returns how many accepted it.
func (h *Hub) Broadcast(data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.members {
		if client.Send(data) {
			delivered++
		}
	}
	return delivered
}

// Len returns the number of members.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

// Close closes every member and empties the hub.
func (h *Hub) Close() {
	h.mu.Lock()
	members := h.members
	h.members = make(map[*Client]struct{})
	h.mu.Unlock()

	for client := range members {
		client.Close()
	}
}

// HubManager keeps one hub per topic and implements pty.Publisher.
// Publishing to a topic without listeners is a no-op.
type HubManager struct {
	mu   sync.RWMutex
	hubs map[string]*Hub
}

// NewHubManager creates an empty HubManager.
func NewHubManager() *HubManager {
	return &HubManager{
		hubs: make(map[string]*Hub),
	}
}

// Publish sends payload as an output frame to the topic's clients.
func (m *HubManager) Publish(topic string, payload []byte) {
	hub := m.Get(topic)
	if hub == nil {
		return
	}
	frame, err := json.Marshal(&Message{
		Type:  MessageTypeOutput,
		Topic: topic,
		Data:  string(payload),
	})
	if err != nil {
		return
	}
	hub.Broadcast(frame)
}

// Join adds a client for conn to the topic's hub, creating the hub if
// needed. The lookup and the add happen under one lock so a hub being
// emptied concurrently is never joined after it was dropped.
func (m *HubManager) Join(topic string, conn *websocket.Conn) *Client {
	m.mu.Lock()
	defer m.mu.Unlock()

	hub, ok := m.hubs[topic]
	if !ok {
		hub = NewHub(topic)
		hub.onEmpty = func() { m.dropIfEmpty(topic, hub) }
		m.hubs[topic] = hub
	}

	client := NewClient(hub, conn, topic)
	hub.Add(client)
	return client
}

// Get returns the topic's hub, or nil.
func (m *HubManager) Get(topic string) *Hub {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hubs[topic]
}

func (m *HubManager) dropIfEmpty(topic string, hub *Hub) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hubs[topic] == hub && hub.Len() == 0 {
		delete(m.hubs, topic)
	}
}

// Close disconnects every client.
func (m *HubManager) Close() {
	m.mu.Lock()
	hubs := m.hubs
	m.hubs = make(map[string]*Hub)
	m.mu.Unlock()

	for _, hub := range hubs {
		hub.Close()
	}
}
