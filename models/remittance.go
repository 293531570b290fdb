package models

import (
	// Go Internal Packages
	"time"

	// External Packages
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a remittance transaction.
type Status string

const (
	StatusInitiated              Status = "INITIATED"
	StatusFundsCollected         Status = "FUNDS_COLLECTED"
	StatusConversionInProgress   Status = "CONVERSION_IN_PROGRESS"
	StatusConversionCompleted    Status = "CONVERSION_COMPLETED"
	StatusTransmissionInProgress Status = "TRANSMISSION_IN_PROGRESS"
	StatusCompleted              Status = "COMPLETED"
	StatusFailed                 Status = "FAILED"
)

// legalTransitions is the only set of status edges a transaction may follow.
var legalTransitions = map[Status][]Status{
	StatusInitiated:              {StatusFundsCollected, StatusFailed},
	StatusFundsCollected:         {StatusConversionInProgress, StatusFailed},
	StatusConversionInProgress:   {StatusConversionCompleted, StatusFailed},
	StatusConversionCompleted:    {StatusTransmissionInProgress, StatusFailed},
	StatusTransmissionInProgress: {StatusCompleted, StatusFailed},
}

// statusRank orders the non-failed states along the happy path.
var statusRank = map[Status]int{
	StatusInitiated:              0,
	StatusFundsCollected:         1,
	StatusConversionInProgress:   2,
	StatusConversionCompleted:    3,
	StatusTransmissionInProgress: 4,
	StatusCompleted:              5,
}

// IsTerminal reports whether no further transitions are permitted.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether the edge s -> next is legal.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Rank returns the position of s on the happy path, -1 for FAILED.
func (s Status) Rank() int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

// Leg names one of the three external operations composing a transaction.
type Leg string

const (
	LegCollection   Leg = "collection"
	LegConversion   Leg = "conversion"
	LegDisbursement Leg = "disbursement"
)

// OutcomeStatus is a partner's report about a leg.
type OutcomeStatus string

const (
	OutcomePending   OutcomeStatus = "pending"
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
)

// LegOutcome is a definitive or still-pending report about a leg, arriving
// via partner callback or scheduled poll.
type LegOutcome struct {
	Status      OutcomeStatus
	Detail      string
	FailureCode string

	// Conversion success only
	ConvertedAmount decimal.Decimal
	Rate            decimal.Decimal

	// Disbursement success only
	DeliveredAt *time.Time
}

// RecipientDetails is the bank-payable reference for the payout. The
// orchestrator treats it as opaque beyond non-empty validation.
type RecipientDetails struct {
	Name        string `json:"name" bson:"name"`
	BankAccount string `json:"bank_account" bson:"bank_account"`
	BankCode    string `json:"bank_code" bson:"bank_code"`
}

// Transaction is the aggregate root of a remittance. It is mutated only via
// version-checked conditional writes.
type Transaction struct {
	ID                  string
	SenderID            string
	SourceAmount        decimal.Decimal
	SourceCurrency      string
	DestinationAmount   *decimal.Decimal
	DestinationCurrency string
	ExchangeRate        decimal.Decimal
	Fee                 decimal.Decimal
	Recipient           RecipientDetails
	Status              Status
	LegReferences       map[Leg]string
	FailureReason       string
	FailureCode         string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	CompletedAt         *time.Time
	Version             int64
}

// LegReference returns the partner-issued reference for a leg, if the leg's
// initiate call has been accepted.
func (t *Transaction) LegReference(leg Leg) (string, bool) {
	ref, ok := t.LegReferences[leg]
	return ref, ok
}

// SetLegReference records the partner-issued reference for an accepted leg.
func (t *Transaction) SetLegReference(leg Leg, ref string) {
	if t.LegReferences == nil {
		t.LegReferences = make(map[Leg]string)
	}
	t.LegReferences[leg] = ref
}

// NetAmount is the source amount with the fee deducted, the amount actually
// converted and disbursed.
func (t *Transaction) NetAmount() decimal.Decimal {
	return t.SourceAmount.Sub(t.Fee)
}

// Audit event types.
const (
	EventCreated           = "created"
	EventStatusChanged     = "status_changed"
	EventLegInitiated      = "leg_initiated"
	EventInvalidTransition = "invalid_transition"
)

// AuditEvent is one append-only row per state transition or partner
// interaction. It is never consulted for control decisions.
type AuditEvent struct {
	TransactionID  string
	Timestamp      time.Time
	EventType      string
	PreviousStatus Status
	NewStatus      Status
	Actor          string
	Detail         map[string]string
}
