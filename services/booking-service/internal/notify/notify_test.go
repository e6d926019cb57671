package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clinicazen/platform/libs/auth"
	"github.com/clinicazen/platform/services/booking-service/internal/model"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

type memStore struct {
	saved []model.Notification
	err   error
}

func (m *memStore) InsertNotification(_ context.Context, n model.Notification) (model.Notification, error) {
	if m.err != nil {
		return model.Notification{}, m.err
	}
	n.ID = "n-1"
	n.CreatedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m.saved = append(m.saved, n)
	return n, nil
}

func TestNotifierStoresAndPublishes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := NewLocalBroker()
	msgs, stop, err := broker.Subscribe(ctx, "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	store := &memStore{}
	n := NewNotifier(store, broker)
	if err := n.Notify(ctx, model.Notification{UserID: "u1", Kind: model.NotificationConfirmed, Title: "Cita confirmada"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected one stored notification, got %d", len(store.saved))
	}

	select {
	case raw := <-msgs:
		var v View
		if err := json.Unmarshal(raw, &v); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if v.ID != "n-1" || v.Kind != "APPOINTMENT_CONFIRMED" {
			t.Fatalf("unexpected payload %+v", v)
		}
	case <-time.After(time.Second):
		t.Fatal("no message published")
	}
}

func TestNotifierReturnsStoreError(t *testing.T) {
	n := NewNotifier(&memStore{err: errors.New("db down")}, NewLocalBroker())
	if err := n.Notify(context.Background(), model.Notification{UserID: "u1"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestLocalBrokerIsolatesUsers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	broker := NewLocalBroker()
	msgs, _, _ := broker.Subscribe(ctx, "u1")

	_ = broker.Publish(ctx, "u2", []byte("other"))
	select {
	case m := <-msgs:
		t.Fatalf("received message for another user: %s", m)
	default:
	}

	cancel()
	select {
	case _, ok := <-msgs:
		if ok {
			t.Fatal("expected channel to close")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"https://clinicazen.es"}
	if !originAllowed("https://clinicazen.es", "api.clinicazen.es", allowed) {
		t.Fatal("listed origin rejected")
	}
	if originAllowed("https://evil.example", "api.clinicazen.es", allowed) {
		t.Fatal("foreign origin accepted")
	}
	if !originAllowed("https://api.clinicazen.es", "api.clinicazen.es", allowed) {
		t.Fatal("same host origin rejected")
	}
}

func TestStreamDeliversNotifications(t *testing.T) {
	broker := NewLocalBroker()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stream := NewStreamHandler(broker, logger, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.WithPrincipal(r.Context(), auth.Principal{UserID: "u1", Role: auth.RoleClient})
		stream.ServeHTTP(w, r.WithContext(ctx))
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The subscription is registered before the upgrade completes.
	if err := broker.Publish(context.Background(), "u1", []byte(`{"id":"n-9"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"id":"n-9"}` {
		t.Fatalf("unexpected frame %s", data)
	}
}

func TestStreamRequiresSession(t *testing.T) {
	stream := NewStreamHandler(NewLocalBroker(), slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	rec := httptest.NewRecorder()
	stream.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notifications/ws", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
