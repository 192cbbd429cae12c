// Package emit provides subscriber fan-out (Hub) and batched delivery
// (Queue) for decoded records leaving one device's PacketBuffer. Hub is
// internal/hub/hub.go generalized from can.Frame to any payload type T via
// generics; the client bookkeeping, snapshot-then-broadcast pattern, and
// Drop/Kick backpressure policy are unchanged.
package emit

import "sync"

// BackpressurePolicy selects what happens when a subscriber's buffered
// channel is full.
type BackpressurePolicy int

const (
	// PolicyDrop silently drops the batch for that one slow subscriber.
	PolicyDrop BackpressurePolicy = iota
	// PolicyKick closes the subscriber so its reader unregisters.
	PolicyKick
)

// Client is one registered subscriber.
type Client[T any] struct {
	Out       chan T
	Closed    chan struct{}
	closeOnce sync.Once
}

// NewClient builds a Client with a buffered output channel of the given
// size.
func NewClient[T any](bufSize int) *Client[T] {
	return &Client[T]{Out: make(chan T, bufSize), Closed: make(chan struct{})}
}

// Close signals the client is closed (idempotent).
func (c *Client[T]) Close() {
	c.closeOnce.Do(func() { close(c.Closed) })
}

// Hub fans batches of T out to every registered subscriber.
type Hub[T any] struct {
	mu      sync.RWMutex
	clients map[*Client[T]]struct{}
	Policy  BackpressurePolicy
}

// NewHub creates a Hub with default (Drop) backpressure policy.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{clients: make(map[*Client[T]]struct{})}
}

// Add registers a client with the hub.
func (h *Hub[T]) Add(c *Client[T]) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Remove unregisters a client; safe to call multiple times.
func (h *Hub[T]) Remove(c *Client[T]) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	select {
	case <-c.Closed:
	default:
		c.Close()
	}
}

// Broadcast sends batch to every connected client, honoring the
// backpressure policy for any subscriber whose buffer is full.
func (h *Hub[T]) Broadcast(batch T, onDrop, onKick func()) {
	for _, c := range h.snapshot() {
		select {
		case c.Out <- batch:
		default:
			if h.Policy == PolicyKick {
				if onKick != nil {
					onKick()
				}
				c.Close()
			} else if onDrop != nil {
				onDrop()
			}
		}
	}
}

func (h *Hub[T]) snapshot() []*Client[T] {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*Client[T], 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// Count returns the number of active clients.
func (h *Hub[T]) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
