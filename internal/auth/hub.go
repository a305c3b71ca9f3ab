package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// EventKind names a session change.
type EventKind string

const (
	EventInitialSession EventKind = "INITIAL_SESSION"
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventUserUpdated    EventKind = "USER_UPDATED"
)

// Event is delivered to session change subscribers. Session is nil when signed out.
type Event struct {
	Kind    EventKind
	Session *Session
}

// EventMirror receives a copy of every session change, e.g. a Kafka topic.
type EventMirror interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}

const mirrorTimeout = 5 * time.Second

// Hub fans session changes out to in-process subscribers.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
	mirror EventMirror
	logger *slog.Logger
}

// NewHub creates a Hub. mirror may be nil.
func NewHub(mirror EventMirror, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: make(map[int]func(Event)), mirror: mirror, logger: logger}
}

// Subscribe registers fn and returns a function that removes it.
func (h *Hub) Subscribe(fn func(Event)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Publish delivers ev to every subscriber in the calling goroutine and
// mirrors it in the background.
func (h *Hub) Publish(ctx context.Context, ev Event) {
	h.mu.RLock()
	handlers := make([]func(Event), 0, len(h.subs))
	for _, fn := range h.subs {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}

	if h.mirror != nil {
		go h.forward(context.WithoutCancel(ctx), ev)
	}
}

type mirroredEvent struct {
	Kind       EventKind `json:"kind"`
	UserID     string    `json:"user_id,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (h *Hub) forward(ctx context.Context, ev Event) {
	ctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()

	msg := mirroredEvent{Kind: ev.Kind, OccurredAt: time.Now().UTC()}
	key := string(ev.Kind)
	if ev.Session != nil {
		msg.UserID = ev.Session.UserID.String()
		msg.SessionID = ev.Session.ID.String()
		key = msg.UserID
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode session event", "error", err)
		return
	}
	if err := h.mirror.Publish(ctx, "auth.session."+string(ev.Kind), payload, key); err != nil {
		h.logger.Warn("mirror session event", "kind", ev.Kind, "error", err)
	}
}
