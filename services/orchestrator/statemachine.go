package orchestrator

import (
	// Local Packages
	models "remit-orchestrator/models"
)

// transitionKind classifies what an incoming leg outcome means against the
// transaction's current status.
type transitionKind int

const (
	// transitionApply advances the transaction to the derived status.
	transitionApply transitionKind = iota
	// transitionPending means the leg is still in flight; nothing to do.
	transitionPending
	// transitionDuplicate means the outcome was already applied; no-op.
	transitionDuplicate
	// transitionStale means the outcome can no longer legally apply and is
	// discarded; a transaction is never moved backward or resurrected.
	transitionStale
)

func (k transitionKind) String() string {
	switch k {
	case transitionApply:
		return "apply"
	case transitionPending:
		return "pending"
	case transitionDuplicate:
		return "duplicate"
	}
	return "stale"
}

// deriveTransition maps (current status, leg, outcome) onto the implied
// status edge. Only edges in the legal transition table are ever returned
// with transitionApply.
func deriveTransition(current models.Status, leg models.Leg, outcome models.LegOutcome) (models.Status, transitionKind) {
	if outcome.Status == models.OutcomePending {
		return current, transitionPending
	}
	succeeded := outcome.Status == models.OutcomeSucceeded

	switch leg {
	case models.LegCollection:
		if succeeded {
			if current == models.StatusInitiated {
				return models.StatusFundsCollected, transitionApply
			}
			if current.Rank() >= models.StatusFundsCollected.Rank() {
				return current, transitionDuplicate
			}
			return current, transitionStale
		}
		if current == models.StatusInitiated {
			return models.StatusFailed, transitionApply
		}

	case models.LegConversion:
		if succeeded {
			if current == models.StatusConversionInProgress {
				return models.StatusConversionCompleted, transitionApply
			}
			if current.Rank() >= models.StatusConversionCompleted.Rank() {
				return current, transitionDuplicate
			}
			return current, transitionStale
		}
		if current == models.StatusFundsCollected || current == models.StatusConversionInProgress {
			return models.StatusFailed, transitionApply
		}

	case models.LegDisbursement:
		if succeeded {
			if current == models.StatusTransmissionInProgress {
				return models.StatusCompleted, transitionApply
			}
			if current == models.StatusCompleted {
				return current, transitionDuplicate
			}
			return current, transitionStale
		}
		if current == models.StatusConversionCompleted || current == models.StatusTransmissionInProgress {
			return models.StatusFailed, transitionApply
		}
	}

	// Failure outcomes land here: a repeated failure report on an already
	// FAILED transaction is a duplicate, anything else is stale.
	if current == models.StatusFailed {
		return current, transitionDuplicate
	}
	return current, transitionStale
}

// pendingLegFor names the leg awaiting resolution in a non-terminal status.
func pendingLegFor(status models.Status) models.Leg {
	switch status {
	case models.StatusInitiated:
		return models.LegCollection
	case models.StatusFundsCollected, models.StatusConversionInProgress:
		return models.LegConversion
	default:
		return models.LegDisbursement
	}
}
