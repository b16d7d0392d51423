// Package notify delivers engine events to a notification sink. The
// shipped sink writes structured log lines; the interface exists so a
// push or webhook sink can be dropped in without touching the engine
// packages.
package notify

import (
	"context"

	"github.com/shopspring/decimal"

	"expense-reconciliation-engine/pkg/logger"
)

// EventType identifies what happened.
type EventType string

const (
	// EventNewBill fires when the generator creates a bill instance.
	EventNewBill EventType = "new_bill"
	// EventPaymentConfirmed fires when a ledger transaction settles an
	// instance.
	EventPaymentConfirmed EventType = "payment_confirmed"
)

// Event is one notification payload.
type Event struct {
	Type          EventType       `json:"type"`
	Vendor        string          `json:"vendor"`
	PeriodKey     string          `json:"periodKey"`
	Amount        decimal.Decimal `json:"amount"`
	InstanceID    string          `json:"instanceId"`
	TransactionID string          `json:"transactionId,omitempty"`
}

// Sink receives engine events. Delivery is best effort; the engine
// never fails an operation because a notification could not be sent.
type Sink interface {
	Notify(ctx context.Context, event Event)
}

// LogSink writes events as structured log lines.
type LogSink struct {
	logger logger.Logger
}

// NewLogSink creates a sink backed by the given logger.
func NewLogSink(log logger.Logger) *LogSink {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &LogSink{logger: log.WithComponent("notify")}
}

// Notify implements Sink.
func (s *LogSink) Notify(_ context.Context, event Event) {
	s.logger.WithFields(logger.Fields{
		"event":       event.Type,
		"vendor":      event.Vendor,
		"period_key":  event.PeriodKey,
		"amount":      event.Amount.String(),
		"instance_id": event.InstanceID,
	}).Info("notification")
}

// Discard is a sink that drops every event, for tests and for runs
// with notifications disabled.
type Discard struct{}

// Notify implements Sink.
func (Discard) Notify(context.Context, Event) {}
