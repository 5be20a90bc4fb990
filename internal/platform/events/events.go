// Package events delivers appointment change notifications after commit.
// The websocket hub is fed synchronously; external relays (Kafka, SQS) are
// fed from a bounded queue drained by Run. Delivery is best-effort: failures
// are logged and counted, never returned to the mutation that caused them.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/rohanchauhan123/appointment-system/internal/platform/telemetry"
	"github.com/rohanchauhan123/appointment-system/internal/platform/websocket"
)

const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// EventName maps an audit action to the live-update event name.
func EventName(action string) string {
	switch action {
	case ActionCreate:
		return "appointment_created"
	case ActionUpdate:
		return "appointment_updated"
	case ActionDelete:
		return "appointment_deleted"
	default:
		return ""
	}
}

// Change describes one committed appointment mutation.
type Change struct {
	TenantID string
	Action   string
	// Data is the saved appointment for CREATE/UPDATE and {"id": ...} for DELETE.
	Data interface{}
	At   time.Time
}

// Envelope is the JSON body sent to external relays.
type Envelope struct {
	Event     string          `json:"event"`
	Type      string          `json:"type"`
	TenantID  string          `json:"tenant_id"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Message is one relay delivery.
type Message struct {
	Key  string
	Body []byte
}

// Relay forwards change messages to an external system.
type Relay interface {
	Name() string
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Broadcaster is satisfied by *websocket.Hub.
type Broadcaster interface {
	Broadcast(topic string, event websocket.Event) int
}

type Config struct {
	QueueSize      int
	PublishTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
}

type Notifier struct {
	hub     Broadcaster
	relays  []Relay
	queue   chan Message
	cfg     Config
	logger  zerolog.Logger
	metrics *telemetry.Metrics
}

func NewNotifier(hub Broadcaster, cfg Config, logger zerolog.Logger, metrics *telemetry.Metrics, relays ...Relay) *Notifier {
	cfg.applyDefaults()
	return &Notifier{
		hub:     hub,
		relays:  relays,
		queue:   make(chan Message, cfg.QueueSize),
		cfg:     cfg,
		logger:  logger.With().Str("component", "events").Logger(),
		metrics: metrics,
	}
}

// Notify broadcasts ch to the tenant's live-update clients and queues it for
// the relays. It never blocks on slow consumers.
func (n *Notifier) Notify(_ context.Context, ch Change) {
	name := EventName(ch.Action)
	if name == "" {
		n.logger.Error().Str("action", ch.Action).Msg("unknown change action")
		return
	}
	if ch.At.IsZero() {
		ch.At = time.Now().UTC()
	}

	data, err := json.Marshal(ch.Data)
	if err != nil {
		n.logger.Error().Err(err).Str("event", name).Msg("failed to encode change payload")
		n.metrics.RecordEventDropped("encode")
		return
	}

	if n.hub != nil {
		n.hub.Broadcast(websocket.TenantTopic(ch.TenantID), websocket.Event{
			Event:     name,
			Type:      ch.Action,
			Data:      data,
			Timestamp: ch.At,
		})
	}

	if len(n.relays) == 0 {
		return
	}

	body, err := json.Marshal(Envelope{
		Event:     name,
		Type:      ch.Action,
		TenantID:  ch.TenantID,
		Data:      data,
		Timestamp: ch.At,
	})
	if err != nil {
		n.logger.Error().Err(err).Msg("failed to encode relay envelope")
		return
	}

	select {
	case n.queue <- Message{Key: ch.TenantID, Body: body}:
	default:
		n.logger.Warn().Str("event", name).Str("tenant_id", ch.TenantID).Msg("relay queue full, event dropped")
		n.metrics.RecordEventDropped("queue")
	}
}

// Run drains the relay queue until ctx is cancelled, then flushes what is
// already queued and closes the relays.
func (n *Notifier) Run(ctx context.Context) {
	defer n.closeRelays()
	for {
		select {
		case msg := <-n.queue:
			n.deliver(msg)
		case <-ctx.Done():
			for {
				select {
				case msg := <-n.queue:
					n.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (n *Notifier) deliver(msg Message) {
	for _, r := range n.relays {
		ctx, cancel := context.WithTimeout(context.Background(), n.cfg.PublishTimeout)
		err := r.Publish(ctx, msg)
		cancel()
		if err != nil {
			n.logger.Error().Err(err).Str("relay", r.Name()).Str("tenant_id", msg.Key).Msg("relay publish failed")
			n.metrics.RecordEventDropped(r.Name())
		}
	}
}

func (n *Notifier) closeRelays() {
	for _, r := range n.relays {
		if err := r.Close(); err != nil {
			n.logger.Warn().Err(err).Str("relay", r.Name()).Msg("relay close failed")
		}
	}
}
