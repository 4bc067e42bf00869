package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/CodePlayData/fhir/internal/platform/events"
)

func newTestClient(topics ...string) *Client {
	return NewClient(nil, topics...)
}

func receive(t *testing.T, c *Client) events.Event {
	t.Helper()
	select {
	case msg := <-c.Send:
		var e events.Event
		if err := json.Unmarshal(msg, &e); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		return e
	case <-time.After(time.Second):
		t.Fatalf("client %s did not receive an event", c.ID)
	}
	return events.Event{}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.Send:
		t.Fatalf("client %s got unexpected message %s", c.ID, msg)
	default:
	}
}

func TestHub_RegisterClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hub.Register(newTestClient("Schedule/123"))

	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	if hub.TopicCount("Schedule/123") != 1 {
		t.Fatalf("expected 1 client on Schedule/123, got %d", hub.TopicCount("Schedule/123"))
	}
}

func TestHub_UnregisterClosesChannel(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient("Schedule/456")
	hub.Register(client)
	hub.Unregister(client)

	if hub.ClientCount() != 0 || hub.TopicCount("Schedule/456") != 0 {
		t.Fatalf("expected hub to be empty, got %d clients", hub.ClientCount())
	}
	if _, ok := <-client.Send; ok {
		t.Fatal("expected Send channel to be closed")
	}

	// Second unregister is a no-op.
	hub.Unregister(client)
}

func TestTopics(t *testing.T) {
	e := events.New(events.ScheduleExtended, "Schedule", "new", map[string]interface{}{"replaces": "old"})
	got := Topics(e)
	want := []string{"schedule.extended", "Schedule", "Schedule/new", "Schedule/old"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Topics = %v, want %v", got, want)
	}

	got = Topics(events.New(events.ScheduleDeactivated, "Schedule", "x", nil))
	if len(got) != 3 {
		t.Fatalf("expected 3 topics without replaces, got %v", got)
	}
}

func TestHub_PublishRoutesByTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	byID := newTestClient("Schedule/200")
	byPrior := newTestClient("Schedule/100")
	byType := newTestClient(events.ScheduleExtended)
	everything := newTestClient("Schedule", "Schedule/200")
	other := newTestClient("Schedule/999", events.ScheduleOpened)
	for _, c := range []*Client{byID, byPrior, byType, everything, other} {
		hub.Register(c)
	}

	var publisher events.Publisher = hub
	e := events.New(events.ScheduleExtended, "Schedule", "200", map[string]interface{}{"replaces": "100"})
	if err := publisher.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for _, c := range []*Client{byID, byPrior, byType, everything} {
		if got := receive(t, c); got.ID != e.ID || got.ResourceID != "200" {
			t.Fatalf("client %s: unexpected event %+v", c.ID, got)
		}
	}
	// Subscribed twice, delivered once.
	expectNothing(t, everything)
	expectNothing(t, other)
}

func TestHub_PublishSkipsFullClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := &Client{ID: "slow", Topics: []string{"Schedule"}, Send: make(chan []byte, 1)}
	hub.Register(client)

	e := events.New(events.ScheduleOpened, "Schedule", "a", nil)
	for i := 0; i < 3; i++ {
		if err := hub.Publish(context.Background(), e); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}
	if len(client.Send) != 1 {
		t.Fatalf("expected exactly one buffered message, got %d", len(client.Send))
	}
}

func TestHub_SubscribeAndUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient()
	hub.Register(client)

	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{"Schedule/1", "Schedule/2", "Schedule/1"}})
	if hub.TopicCount("Schedule/1") != 1 || hub.TopicCount("Schedule/2") != 1 {
		t.Fatalf("expected both topics subscribed")
	}
	if len(client.Topics) != 2 {
		t.Fatalf("expected 2 topics on client, got %v", client.Topics)
	}

	hub.ProcessMessage(client, ClientMessage{Action: "unsubscribe", Topics: []string{"Schedule/1"}})
	if hub.TopicCount("Schedule/1") != 0 || hub.TopicCount("Schedule/2") != 1 {
		t.Fatalf("unexpected topic counts after unsubscribe")
	}
	if len(client.Topics) != 1 || client.Topics[0] != "Schedule/2" {
		t.Fatalf("expected only Schedule/2 to remain, got %v", client.Topics)
	}

	hub.ProcessMessage(client, ClientMessage{Action: "shout", Topics: []string{"Schedule/3"}})
	if hub.TopicCount("Schedule/3") != 0 {
		t.Fatal("unknown actions must be ignored")
	}
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newTestClient("Schedule")
			hub.Register(c)
			_ = hub.Publish(context.Background(), events.New(events.ScheduleOpened, "Schedule", "x", nil))
			hub.Unregister(c)
		}()
	}
	wg.Wait()

	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestHandler_ConnectRequiresWebSocket(t *testing.T) {
	handler := NewHandler(NewHub(zerolog.Nop()), nil)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()
	err := handler.Connect(e.NewContext(req, rec))

	if err == nil && rec.Code == http.StatusSwitchingProtocols {
		t.Fatal("expected upgrade to fail for non-websocket request")
	}
}

func TestHandler_CheckOrigin(t *testing.T) {
	check := NewHandler(NewHub(zerolog.Nop()), []string{"https://app.example"}).upgrader.CheckOrigin
	req := httptest.NewRequest(http.MethodGet, "/events", nil)

	if !check(req) {
		t.Error("requests without Origin should pass")
	}
	req.Header.Set("Origin", "https://app.example")
	if !check(req) {
		t.Error("listed origin should pass")
	}
	req.Header.Set("Origin", "https://evil.example")
	if check(req) {
		t.Error("unlisted origin should be rejected")
	}
}

func TestHandler_StreamsEvents(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	NewHandler(hub, []string{"*"}).RegisterRoutes(e.Group("/fhir"))

	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/fhir/events?topic=Schedule/a"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	waitFor := func(cond func() bool) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for !cond() {
			if time.Now().After(deadline) {
				t.Fatal("condition not met in time")
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
	waitFor(func() bool { return hub.TopicCount("Schedule/a") == 1 })

	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{events.ScheduleDeactivated}}); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}
	waitFor(func() bool { return hub.TopicCount(events.ScheduleDeactivated) == 1 })

	sent := events.New(events.ScheduleDeactivated, "Schedule", "b", nil)
	if err := hub.Publish(context.Background(), sent); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received events.Event
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if received.ID != sent.ID || received.Type != events.ScheduleDeactivated {
		t.Fatalf("unexpected event %+v", received)
	}

	conn.Close()
	waitFor(func() bool { return hub.ClientCount() == 0 })
}
