// Package stream fans tracker events out to event-stream subscribers
// (the map surface listens on an SSE endpoint).
package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mr1hm/go-arrival-alert/internal/geo"
)

type EventType string

const (
	EventDestination EventType = "destination"
	EventCleared     EventType = "cleared"
	EventDistance    EventType = "distance"
	EventAlert       EventType = "alert"
	EventTracking    EventType = "tracking"
)

// Event is one observable change in the alert session.
type Event struct {
	Type       EventType       `json:"type"`
	State      string          `json:"state"`
	Position   *geo.Coordinate `json:"position,omitempty"`
	DistanceKm *float64        `json:"distance_km,omitempty"`
	Message    string          `json:"message,omitempty"`
	Pattern    []int           `json:"vibrate_pattern,omitempty"`
	Tracking   bool            `json:"tracking"`
	Timestamp  time.Time       `json:"timestamp"`
}

type Broadcaster struct {
	subscribers map[uint64]chan Event
	nextID      atomic.Uint64
	mu          sync.RWMutex
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]chan Event),
	}
}

func (b *Broadcaster) Subscribe() (uint64, chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, 16) // Buffer smooths bursts around an alert

	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()

	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) Broadcast(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			// Skip slow subscribers
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels, causing streams to exit gracefully
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
