package models

import (
	// Go Internal Packages
	"time"

	// External Packages
	"github.com/shopspring/decimal"
)

// MongoTransaction mirrors Transaction for persistence. Amounts are stored
// as float64; the rolling daily-limit aggregation sums them server-side.
type MongoTransaction struct {
	ID                  string            `bson:"_id"`
	SenderID            string            `bson:"sender_id"`
	SourceAmount        float64           `bson:"source_amount"`
	SourceCurrency      string            `bson:"source_currency"`
	DestinationAmount   *float64          `bson:"destination_amount,omitempty"`
	DestinationCurrency string            `bson:"destination_currency"`
	ExchangeRate        float64           `bson:"exchange_rate"`
	Fee                 float64           `bson:"fee"`
	Recipient           RecipientDetails  `bson:"recipient"`
	Status              Status            `bson:"status"`
	LegReferences       map[string]string `bson:"leg_references,omitempty"`
	FailureReason       string            `bson:"failure_reason,omitempty"`
	FailureCode         string            `bson:"failure_code,omitempty"`
	CreatedAt           time.Time         `bson:"created_at"`
	UpdatedAt           time.Time         `bson:"updated_at"`
	CompletedAt         *time.Time        `bson:"completed_at,omitempty"`
	Version             int64             `bson:"version"`
}

// Transform converts the domain transaction into its persisted shape.
func (t *Transaction) Transform() MongoTransaction {
	m := MongoTransaction{
		ID:                  t.ID,
		SenderID:            t.SenderID,
		SourceAmount:        t.SourceAmount.InexactFloat64(),
		SourceCurrency:      t.SourceCurrency,
		DestinationCurrency: t.DestinationCurrency,
		ExchangeRate:        t.ExchangeRate.InexactFloat64(),
		Fee:                 t.Fee.InexactFloat64(),
		Recipient:           t.Recipient,
		Status:              t.Status,
		FailureReason:       t.FailureReason,
		FailureCode:         t.FailureCode,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
		CompletedAt:         t.CompletedAt,
		Version:             t.Version,
	}
	if t.DestinationAmount != nil {
		v := t.DestinationAmount.InexactFloat64()
		m.DestinationAmount = &v
	}
	if len(t.LegReferences) > 0 {
		m.LegReferences = make(map[string]string, len(t.LegReferences))
		for leg, ref := range t.LegReferences {
			m.LegReferences[string(leg)] = ref
		}
	}
	return m
}

// ToDomain converts a persisted transaction back into its domain shape.
func (m *MongoTransaction) ToDomain() *Transaction {
	t := &Transaction{
		ID:                  m.ID,
		SenderID:            m.SenderID,
		SourceAmount:        decimal.NewFromFloat(m.SourceAmount),
		SourceCurrency:      m.SourceCurrency,
		DestinationCurrency: m.DestinationCurrency,
		ExchangeRate:        decimal.NewFromFloat(m.ExchangeRate),
		Fee:                 decimal.NewFromFloat(m.Fee),
		Recipient:           m.Recipient,
		Status:              m.Status,
		FailureReason:       m.FailureReason,
		FailureCode:         m.FailureCode,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
		CompletedAt:         m.CompletedAt,
		Version:             m.Version,
	}
	if m.DestinationAmount != nil {
		v := decimal.NewFromFloat(*m.DestinationAmount)
		t.DestinationAmount = &v
	}
	if len(m.LegReferences) > 0 {
		t.LegReferences = make(map[Leg]string, len(m.LegReferences))
		for leg, ref := range m.LegReferences {
			t.LegReferences[Leg(leg)] = ref
		}
	}
	return t
}

// MongoAuditEvent mirrors AuditEvent for persistence.
type MongoAuditEvent struct {
	TransactionID  string            `bson:"transaction_id"`
	Timestamp      time.Time         `bson:"timestamp"`
	EventType      string            `bson:"event_type"`
	PreviousStatus Status            `bson:"previous_status,omitempty"`
	NewStatus      Status            `bson:"new_status,omitempty"`
	Actor          string            `bson:"actor"`
	Detail         map[string]string `bson:"detail,omitempty"`
}

// Transform converts the domain audit event into its persisted shape.
func (e *AuditEvent) Transform() MongoAuditEvent {
	return MongoAuditEvent{
		TransactionID:  e.TransactionID,
		Timestamp:      e.Timestamp,
		EventType:      e.EventType,
		PreviousStatus: e.PreviousStatus,
		NewStatus:      e.NewStatus,
		Actor:          e.Actor,
		Detail:         e.Detail,
	}
}

// ToDomain converts a persisted audit event back into its domain shape.
func (e *MongoAuditEvent) ToDomain() AuditEvent {
	return AuditEvent{
		TransactionID:  e.TransactionID,
		Timestamp:      e.Timestamp,
		EventType:      e.EventType,
		PreviousStatus: e.PreviousStatus,
		NewStatus:      e.NewStatus,
		Actor:          e.Actor,
		Detail:         e.Detail,
	}
}
