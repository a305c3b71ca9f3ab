package auth

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

type mirrorStub struct {
	published chan mirrorCall
}

type mirrorCall struct {
	eventType string
	payload   []byte
	key       string
}

func (m *mirrorStub) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	m.published <- mirrorCall{eventType: eventType, payload: payload, key: partitionKey}
	return nil
}

func TestHubSubscribeAndUnsubscribe(t *testing.T) {
	hub := NewHub(nil, nil)
	var got []EventKind
	unsubscribe := hub.Subscribe(func(ev Event) { got = append(got, ev.Kind) })

	hub.Publish(context.Background(), Event{Kind: EventSignedIn})
	unsubscribe()
	unsubscribe()
	hub.Publish(context.Background(), Event{Kind: EventSignedOut})

	if len(got) != 1 || got[0] != EventSignedIn {
		t.Fatalf("expected only SIGNED_IN before unsubscribe, got %v", got)
	}
}

func TestHubMirrorsEvents(t *testing.T) {
	mirror := &mirrorStub{published: make(chan mirrorCall, 1)}
	hub := NewHub(mirror, nil)
	userID := uuid.New()

	hub.Publish(context.Background(), Event{Kind: EventSignedIn, Session: &Session{ID: uuid.New(), UserID: userID}})

	select {
	case call := <-mirror.published:
		if call.eventType != "auth.session.SIGNED_IN" {
			t.Fatalf("unexpected event type %s", call.eventType)
		}
		if call.key != userID.String() {
			t.Fatalf("expected user id partition key, got %s", call.key)
		}
		var body map[string]any
		if err := json.Unmarshal(call.payload, &body); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if body["user_id"] != userID.String() || body["kind"] != "SIGNED_IN" {
			t.Fatalf("unexpected payload %v", body)
		}
	case <-time.After(time.Second):
		t.Fatal("expected event to be mirrored")
	}
}

func TestTokenSignerRejectsForeignSecret(t *testing.T) {
	session := Session{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Email:     "a@b.com",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	token, err := NewTokenSigner("one").Sign(session)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	userID, sessionID, err := NewTokenSigner("one").Verify(token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if userID != session.UserID || sessionID != session.ID {
		t.Fatalf("unexpected ids %s %s", userID, sessionID)
	}

	if _, _, err := NewTokenSigner("two").Verify(token); err == nil {
		t.Fatal("expected verification with another secret to fail")
	}
}
