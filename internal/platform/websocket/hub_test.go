package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/apperr"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/auth"
)

func TestHub_RegisterClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	userID := uuid.New()
	client := NewClient(userID, auth.RolePatient, UserTopic(userID))

	hub.Register(client)

	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	if hub.TopicCount(UserTopic(userID)) != 1 {
		t.Fatalf("expected 1 client on user topic, got %d", hub.TopicCount(UserTopic(userID)))
	}
}

func TestHub_UnregisterClosesClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	userID := uuid.New()
	client := NewClient(userID, auth.RolePatient, UserTopic(userID))

	hub.Register(client)
	hub.Unregister(client)
	hub.Unregister(client)

	if hub.ClientCount() != 0 || hub.TopicCount(UserTopic(userID)) != 0 {
		t.Fatal("expected client to be fully removed")
	}
	select {
	case <-client.Done():
	default:
		t.Fatal("expected client to be closed")
	}
	if client.Enqueue([]byte("x")) {
		t.Error("expected enqueue on closed client to fail")
	}
}

func TestHub_NotifyOnlyTargetUser(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	patient, other := uuid.New(), uuid.New()
	c1 := NewClient(patient, auth.RolePatient, UserTopic(patient))
	c2 := NewClient(patient, auth.RolePatient, UserTopic(patient))
	c3 := NewClient(other, auth.RolePatient, UserTopic(other))
	hub.Register(c1)
	hub.Register(c2)
	hub.Register(c3)

	payload := map[string]string{"appointment_id": "a-1"}
	if err := hub.Notify(context.Background(), patient, "meeting_started", payload); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	for _, c := range []*Client{c1, c2} {
		select {
		case msg := <-c.Send:
			var evt Event
			if err := json.Unmarshal(msg, &evt); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if evt.Type != "meeting_started" {
				t.Errorf("expected meeting_started, got %s", evt.Type)
			}
			if !strings.Contains(string(evt.Data), "a-1") {
				t.Errorf("expected payload in data, got %s", evt.Data)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}

	select {
	case <-c3.Send:
		t.Fatal("other user must not receive the event")
	default:
	}
}

func TestHub_NotifyWithoutConnectionsIsNotAnError(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	if err := hub.Notify(context.Background(), uuid.New(), "meeting_ended", nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestHub_BroadcastSkipsFullBuffer(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	userID := uuid.New()
	client := NewClient(userID, auth.RolePatient, UserTopic(userID))
	hub.Register(client)

	for i := 0; i < sendBuffer; i++ {
		client.Send <- []byte("filler")
	}
	if n := hub.Broadcast(UserTopic(userID), Event{Type: "x"}); n != 0 {
		t.Errorf("expected 0 deliveries to a full client, got %d", n)
	}
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	userID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := NewClient(userID, auth.RolePatient, UserTopic(userID))
			hub.Register(c)
			hub.Broadcast(UserTopic(userID), Event{Type: "tick"})
			hub.Unregister(c)
		}()
	}
	wg.Wait()

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestNewUpgrader_CheckOrigin(t *testing.T) {
	up := NewUpgrader([]string{"http://localhost:3000/"})
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://evil.example", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := up.CheckOrigin(req); got != tt.want {
			t.Errorf("origin %q: got %v, want %v", tt.origin, got, tt.want)
		}
	}

	if !NewUpgrader([]string{"*"}).CheckOrigin(httptest.NewRequest(http.MethodGet, "/", nil)) {
		t.Error("expected wildcard to accept")
	}
}

func withIdentity(id auth.Identity) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(auth.WithIdentity(c.Request().Context(), id)))
			return next(c)
		}
	}
}

func TestHandler_RequiresSession(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(zerolog.Nop())
	NewHandler(hub, NewUpgrader(nil), zerolog.Nop()).RegisterRoutes(e.Group(""))

	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/notifications"
	_, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail without a session")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}
}

func TestHandler_FullUpgradeReceivesNotification(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	userID := uuid.New()

	e := echo.New()
	e.Use(withIdentity(auth.Identity{UserID: userID, Role: auth.RolePatient}))
	NewHandler(hub, NewUpgrader(nil), zerolog.Nop()).RegisterRoutes(e.Group(""))

	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/notifications"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount(UserTopic(userID)) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.TopicCount(UserTopic(userID)) != 1 {
		t.Fatal("expected the connection to be subscribed to the user topic")
	}

	hub.Notify(context.Background(), userID, "meeting_started", map[string]string{"room_id": "r-1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received Event
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if received.Type != "meeting_started" {
		t.Fatalf("expected meeting_started, got %s", received.Type)
	}

	if err := conn.WriteJSON(map[string]string{"action": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read pong: %v", err)
	}
	if received.Type != "pong" {
		t.Fatalf("expected pong, got %s", received.Type)
	}
}
