package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rohanchauhan123/appointment-system/internal/platform/auth"
)

var testSecret = []byte("websocket-test-secret")

type fakeUsers map[uuid.UUID]auth.Actor

func (f fakeUsers) VerifyActor(_ context.Context, _ string, id uuid.UUID) (auth.Actor, error) {
	a, ok := f[id]
	if !ok {
		return auth.Actor{}, errors.New("not found")
	}
	return a, nil
}

type wsFixture struct {
	hub    *Hub
	tokens *auth.TokenIssuer
	server *httptest.Server
	active uuid.UUID
	off    uuid.UUID
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	f := &wsFixture{
		hub:    NewHub(zerolog.Nop()),
		tokens: auth.NewTokenIssuer(testSecret, time.Hour),
		active: uuid.New(),
		off:    uuid.New(),
	}
	users := fakeUsers{
		f.active: {ID: f.active, Role: auth.RoleAgent, Active: true},
		f.off:    {ID: f.off, Role: auth.RoleAgent, Active: false},
	}
	h := NewWebSocketHandler(f.hub, HandlerConfig{
		Tokens:        f.tokens,
		Verifier:      users,
		DefaultTenant: "default",
		Logger:        zerolog.Nop(),
	})
	e := echo.New()
	h.RegisterRoutes(e)
	f.server = httptest.NewServer(e)
	t.Cleanup(f.server.Close)
	return f
}

func (f *wsFixture) token(t *testing.T, id uuid.UUID, tenant string) string {
	t.Helper()
	tok, _, err := f.tokens.Issue(id, "agent@example.com", auth.RoleAgent, tenant)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (f *wsFixture) url(query string) string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws" + query
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocketHandler_RegisterRoutes(t *testing.T) {
	h := NewWebSocketHandler(NewHub(zerolog.Nop()), HandlerConfig{})
	e := echo.New()
	h.RegisterRoutes(e)

	for _, r := range e.Routes() {
		if r.Path == "/ws" && r.Method == http.MethodGet {
			return
		}
	}
	t.Fatal("expected GET /ws route to be registered")
}

func TestWebSocketHandler_RejectsMissingToken(t *testing.T) {
	f := newWSFixture(t)
	_, resp, err := gorillawebsocket.DefaultDialer.Dial(f.url(""), nil)
	if err == nil {
		t.Fatal("expected dial to fail without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}
}

func TestWebSocketHandler_RejectsInactiveUser(t *testing.T) {
	f := newWSFixture(t)
	_, resp, err := gorillawebsocket.DefaultDialer.Dial(f.url("?token="+f.token(t, f.off, "acme")), nil)
	if err == nil {
		t.Fatal("expected dial to fail for inactive user")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}
}

func TestWebSocketHandler_RejectsTenantMismatch(t *testing.T) {
	f := newWSFixture(t)
	q := "?token=" + f.token(t, f.active, "acme") + "&tenant_id=globex"
	_, resp, err := gorillawebsocket.DefaultDialer.Dial(f.url(q), nil)
	if err == nil {
		t.Fatal("expected dial to fail for foreign tenant")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}
}

func TestWebSocketHandler_ReceivesTenantEvents(t *testing.T) {
	f := newWSFixture(t)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+f.token(t, f.active, "acme"))
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(f.url(""), header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	waitFor(t, func() bool { return f.hub.TopicCount(TenantTopic("acme")) == 1 })

	f.hub.Broadcast(TenantTopic("globex"), testEvent("appointment_deleted"))
	f.hub.Broadcast(TenantTopic("acme"), testEvent("appointment_created"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Event != "appointment_created" {
		t.Fatalf("expected the acme event first, got %s", got.Event)
	}
}

func TestWebSocketHandler_DisconnectUnregisters(t *testing.T) {
	f := newWSFixture(t)
	conn, _, err := gorillawebsocket.DefaultDialer.Dial(f.url("?token="+f.token(t, f.active, "")), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitFor(t, func() bool { return f.hub.TopicCount(TenantTopic("default")) == 1 })

	conn.Close()
	waitFor(t, func() bool { return f.hub.ClientCount() == 0 })
}

func TestWebSocketHandler_IgnoresInboundFrames(t *testing.T) {
	f := newWSFixture(t)
	conn, _, err := gorillawebsocket.DefaultDialer.Dial(f.url("?token="+f.token(t, f.active, "acme")), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitFor(t, func() bool { return f.hub.TopicCount(TenantTopic("acme")) == 1 })

	frames := []string{`{"action":"subscribe","topics":["tenant:globex"]}`, `not json`}
	for _, frame := range frames {
		if err := conn.WriteMessage(gorillawebsocket.TextMessage, []byte(frame)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	f.hub.Broadcast(TenantTopic("globex"), testEvent("appointment_deleted"))
	f.hub.Broadcast(TenantTopic("acme"), testEvent("appointment_updated"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Event != "appointment_updated" {
		t.Errorf("expected only the acme event, got %s", got.Event)
	}
	if f.hub.TopicCount(TenantTopic("globex")) != 0 || f.hub.ClientCount() != 1 {
		t.Error("inbound frames must not change subscriptions")
	}
}
