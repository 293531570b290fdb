package models

import (
	// Go Internal Packages
	"time"
)

type Record struct {
	Key   []byte
	Value []byte
	Topic string
}

// CallbackEvent is the wire shape of a partner webhook notification relayed
// onto the callbacks topic by the (out-of-scope) API layer.
type CallbackEvent struct {
	Leg          string     `json:"leg"`
	LegReference string     `json:"leg_reference"`
	Status       string     `json:"status"`
	Detail       string     `json:"detail,omitempty"`
	FailureCode  string     `json:"failure_code,omitempty"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
}

// ToOutcome maps the wire event onto a leg outcome.
func (e *CallbackEvent) ToOutcome() LegOutcome {
	return LegOutcome{
		Status:      OutcomeStatus(e.Status),
		Detail:      e.Detail,
		FailureCode: e.FailureCode,
		DeliveredAt: e.DeliveredAt,
	}
}
