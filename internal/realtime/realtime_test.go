package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"therapymeet/pkg/types"
)

func newConnPair(t *testing.T) (*Connection, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *Connection, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		connCh <- NewConnection(ws, 8, time.Second)
	}))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	select {
	case conn := <-connCh:
		t.Cleanup(func() { _ = conn.Close() })
		return conn, client
	case <-time.After(2 * time.Second):
		t.Fatal("Server never saw the connection")
		return nil, nil
	}
}

func TestConnection_WriteEventDelivers(t *testing.T) {
	conn, client := newConnPair(t)

	for _, emotion := range []string{"happy", "sad", "neutral"} {
		err := conn.WriteEvent(&types.Event{
			Type: types.EventRealTimeEmotion,
			Data: map[string]any{"emotion": emotion},
		})
		if err != nil {
			t.Fatalf("WriteEvent failed: %v", err)
		}
	}

	// Frames arrive in write order.
	for _, want := range []string{"happy", "sad", "neutral"} {
		var evt types.Event
		if err := client.ReadJSON(&evt); err != nil {
			t.Fatalf("ReadJSON failed: %v", err)
		}
		if evt.Type != types.EventRealTimeEmotion || evt.Data["emotion"] != want {
			t.Errorf("Expected %s, got %+v", want, evt)
		}
	}
}

func TestConnection_CloseIsIdempotent(t *testing.T) {
	conn, _ := newConnPair(t)

	if err := conn.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}

	if err := conn.WriteEvent(&types.Event{Type: types.EventConnected}); err != ErrConnectionClosed {
		t.Errorf("Expected ErrConnectionClosed after close, got %v", err)
	}

	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Error("Done channel should be closed after Close")
	}
}

func TestRegistry_Membership(t *testing.T) {
	registry := NewRegistry()
	first, _ := newConnPair(t)
	second, _ := newConnPair(t)

	if err := registry.Register(first); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := registry.Register(second); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	registry.JoinRoom("ABC12345", first.ID())
	registry.JoinRoom("ABC12345", second.ID())
	registry.JoinRoom("XYZ00000", first.ID())

	if got := len(registry.RoomConnections("ABC12345")); got != 2 {
		t.Errorf("Expected 2 members, got %d", got)
	}
	if got := len(registry.RoomConnections("XYZ00000")); got != 1 {
		t.Errorf("Expected 1 member, got %d", got)
	}
	if got := len(registry.RoomConnections("UNKNOWN1")); got != 0 {
		t.Errorf("Expected no members for unknown room, got %d", got)
	}

	registry.LeaveRoom("ABC12345", second.ID())
	if got := len(registry.RoomConnections("ABC12345")); got != 1 {
		t.Errorf("Expected 1 member after leave, got %d", got)
	}

	// Deregister reports every room the connection had joined.
	codes := registry.Deregister(first.ID())
	if len(codes) != 2 {
		t.Errorf("Expected 2 joined rooms, got %v", codes)
	}
	if got := len(registry.RoomConnections("ABC12345")); got != 0 {
		t.Errorf("Expected empty room after deregister, got %d", got)
	}
	if _, ok := registry.Get(first.ID()); ok {
		t.Error("Deregistered connection still resolvable")
	}

	// Second deregister is a no-op.
	if codes := registry.Deregister(first.ID()); len(codes) != 0 {
		t.Errorf("Expected no rooms on repeat deregister, got %v", codes)
	}
}

func TestRegistry_RejectsNilAndDuplicate(t *testing.T) {
	registry := NewRegistry()
	conn, _ := newConnPair(t)

	if err := registry.Register(nil); err != ErrNilConnection {
		t.Errorf("Expected ErrNilConnection, got %v", err)
	}
	if err := registry.Register(conn); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := registry.Register(conn); err == nil {
		t.Error("Expected error on duplicate registration")
	}
}
