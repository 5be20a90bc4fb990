package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/rohanchauhan123/appointment-system/internal/platform/telemetry"
	"github.com/rohanchauhan123/appointment-system/internal/platform/websocket"
)

type recordedBroadcast struct {
	topic string
	event websocket.Event
}

type fakeHub struct {
	mu   sync.Mutex
	sent []recordedBroadcast
}

func (h *fakeHub) Broadcast(topic string, event websocket.Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, recordedBroadcast{topic: topic, event: event})
	return 1
}

type fakeRelay struct {
	mu     sync.Mutex
	name   string
	msgs   []Message
	err    error
	closed bool
}

func (r *fakeRelay) Name() string { return r.name }

func (r *fakeRelay) Publish(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *fakeRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeRelay) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func TestEventName(t *testing.T) {
	cases := map[string]string{
		ActionCreate: "appointment_created",
		ActionUpdate: "appointment_updated",
		ActionDelete: "appointment_deleted",
		"PATCH":      "",
	}
	for action, want := range cases {
		if got := EventName(action); got != want {
			t.Errorf("EventName(%q) = %q, want %q", action, got, want)
		}
	}
}

func TestNotify_BroadcastsToTenantTopic(t *testing.T) {
	hub := &fakeHub{}
	n := NewNotifier(hub, Config{}, zerolog.Nop(), nil)

	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	n.Notify(context.Background(), Change{
		TenantID: "acme",
		Action:   ActionDelete,
		Data:     map[string]string{"id": "a1"},
		At:       at,
	})

	if len(hub.sent) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(hub.sent))
	}
	got := hub.sent[0]
	if got.topic != websocket.TenantTopic("acme") {
		t.Errorf("topic = %s", got.topic)
	}
	if got.event.Event != "appointment_deleted" || got.event.Type != "DELETE" {
		t.Errorf("unexpected event %+v", got.event)
	}
	if string(got.event.Data) != `{"id":"a1"}` {
		t.Errorf("unexpected data %s", got.event.Data)
	}
	if !got.event.Timestamp.Equal(at) {
		t.Errorf("timestamp = %v, want %v", got.event.Timestamp, at)
	}
}

func TestNotify_UnknownActionIgnored(t *testing.T) {
	hub := &fakeHub{}
	n := NewNotifier(hub, Config{}, zerolog.Nop(), nil)
	n.Notify(context.Background(), Change{TenantID: "acme", Action: "MERGE"})
	if len(hub.sent) != 0 {
		t.Fatal("unknown action must not be broadcast")
	}
}

func TestRun_DeliversToRelays(t *testing.T) {
	relay := &fakeRelay{name: "fake"}
	n := NewNotifier(&fakeHub{}, Config{}, zerolog.Nop(), nil, relay)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx)
		close(done)
	}()

	n.Notify(context.Background(), Change{TenantID: "acme", Action: ActionCreate, Data: map[string]string{"id": "a1"}})

	deadline := time.Now().Add(2 * time.Second)
	for relay.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if relay.count() != 1 {
		t.Fatalf("expected 1 relayed message, got %d", relay.count())
	}
	if !relay.closed {
		t.Error("expected relay to be closed when Run returns")
	}

	var env Envelope
	if err := json.Unmarshal(relay.msgs[0].Body, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Event != "appointment_created" || env.TenantID != "acme" || relay.msgs[0].Key != "acme" {
		t.Errorf("unexpected envelope %+v key %s", env, relay.msgs[0].Key)
	}
}

func TestRun_FlushesQueueOnShutdown(t *testing.T) {
	relay := &fakeRelay{name: "fake"}
	n := NewNotifier(nil, Config{}, zerolog.Nop(), nil, relay)

	for i := 0; i < 3; i++ {
		n.Notify(context.Background(), Change{TenantID: "acme", Action: ActionUpdate, Data: i})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Run(ctx)

	if relay.count() != 3 {
		t.Fatalf("expected queued messages to be flushed, got %d", relay.count())
	}
}

func TestRelayFailureIsCountedNotReturned(t *testing.T) {
	metrics := telemetry.New(telemetry.Config{})
	relay := &fakeRelay{name: "broken", err: errors.New("broker down")}
	n := NewNotifier(nil, Config{}, zerolog.Nop(), metrics, relay)

	n.Notify(context.Background(), Change{TenantID: "acme", Action: ActionCreate, Data: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Run(ctx)

	families, err := metrics.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "appointments_events_dropped_total" {
			found = true
		}
	}
	if !found {
		t.Error("expected dropped events metric to be recorded")
	}
}

func TestNotify_QueueFullDrops(t *testing.T) {
	metrics := telemetry.New(telemetry.Config{})
	relay := &fakeRelay{name: "fake"}
	n := NewNotifier(nil, Config{QueueSize: 1}, zerolog.Nop(), metrics, relay)

	n.Notify(context.Background(), Change{TenantID: "acme", Action: ActionCreate, Data: 1})
	n.Notify(context.Background(), Change{TenantID: "acme", Action: ActionCreate, Data: 2})

	got, err := testutil.GatherAndCount(metrics.Registry(), "appointments_events_dropped_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got != 1 {
		t.Errorf("expected one dropped series, got %d", got)
	}
}
