package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/oggyb/event-network/internal/db"
	"github.com/oggyb/event-network/internal/metrics"
)

type Kind string

const (
	KindMessageCreated Kind = "message.created"
	KindMessageRead    Kind = "message.read"
)

// Event is a message change pushed to both parties of the message.
type Event struct {
	Kind    Kind       `json:"kind"`
	Message db.Message `json:"message"`
	// Origin names the instance that produced the event; set by the Kafka producer.
	Origin string `json:"origin,omitempty"`
}

// Publisher accepts message change events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// DefaultBuffer is used when NewHub gets a non-positive buffer.
const DefaultBuffer = 64

// Hub fans message events out to per-user subscriptions.
// Publishing never blocks: a full subscription loses the event and is told
// to resync instead.
type Hub struct {
	buffer int
	log    *slog.Logger

	mu   sync.Mutex
	subs map[uint64]map[*Subscription]struct{}
}

func NewHub(buffer int, log *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		buffer: buffer,
		log:    log.With("component", "feed_hub"),
		subs:   make(map[uint64]map[*Subscription]struct{}),
	}
}

// Subscription is a cancellable handle on one user's events.
type Subscription struct {
	UserID uint64

	hub    *Hub
	events chan Event
	resync chan struct{}
	closed bool
}

// Events is closed after Cancel.
func (s *Subscription) Events() <-chan Event { return s.events }

// Resync fires when at least one event was dropped since the last receive.
func (s *Subscription) Resync() <-chan struct{} { return s.resync }

// Cancel removes the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if set, ok := h.subs[s.UserID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.UserID)
		}
	}
	close(s.events)
}

func (h *Hub) Subscribe(userID uint64) *Subscription {
	s := &Subscription{
		UserID: userID,
		hub:    h,
		events: make(chan Event, h.buffer),
		resync: make(chan struct{}, 1),
	}

	h.mu.Lock()
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[userID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	return s
}

// Subscribers returns the number of live subscriptions of userID.
func (h *Hub) Subscribers(userID uint64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

// Publish delivers e to the sender's and the receiver's subscriptions.
func (h *Hub) Publish(_ context.Context, e Event) error {
	targets := []uint64{e.Message.SenderID}
	if e.Message.ReceiverID != e.Message.SenderID {
		targets = append(targets, e.Message.ReceiverID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, userID := range targets {
		for s := range h.subs[userID] {
			select {
			case s.events <- e:
			default:
				metrics.IncFeedDropped()
				h.log.Warn("subscriber queue full, dropping event",
					"user_id", userID, "kind", e.Kind, "message_id", e.Message.ID)
				select {
				case s.resync <- struct{}{}:
				default:
				}
			}
		}
	}
	return nil
}
