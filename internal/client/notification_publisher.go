package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NotificationPublisher publishes invoice lifecycle events to NATS.
//
// Subject convention: <prefix>.<event_type>
// Event types: created, approved, rejected, paid, cancelled, duplicate_detected
//
// All publish operations are non-fatal — errors are logged but never
// propagated, so notification failures never interrupt the pipeline or a
// lifecycle transition.
type NotificationPublisher struct {
	nc            *nats.Conn
	subjectPrefix string
	log           zerolog.Logger
}

// LifecycleEvent is the JSON payload published per event.
type LifecycleEvent struct {
	EventType     string    `json:"event_type"`
	InvoiceID     string    `json:"invoice_id"`
	OwnerIdentity string    `json:"owner_identity"`
	ActorID       string    `json:"actor_id,omitempty"`
	VendorID      string    `json:"vendor_id,omitempty"`
	Amount        float64   `json:"amount,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// connection. A nil connection disables publishing.
func NewNotificationPublisher(nc *nats.Conn, subjectPrefix string, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nc: nc, subjectPrefix: subjectPrefix, log: log}
}

// PublishInvoiceEvent publishes a lifecycle event. Never returns an error.
func (p *NotificationPublisher) PublishInvoiceEvent(eventType string, event LifecycleEvent) {
	if p == nil || p.nc == nil {
		return
	}

	event.EventType = eventType
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("%s.%s", p.subjectPrefix, eventType)
	if err := p.nc.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("invoice_id", event.InvoiceID).
			Msg("notification: failed to publish event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("invoice_id", event.InvoiceID).
		Msg("notification: event published")
}
