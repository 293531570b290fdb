// Package orchestrator drives a remittance transaction through its three
// partner legs. All mutation funnels through version-checked conditional
// writes; correctness under concurrent callbacks, polls and retries relies
// on that plus the legality check in deriveTransition.
package orchestrator

import (
	// Go Internal Packages
	"context"
	"time"

	// Local Packages
	errors "remit-orchestrator/errors"
	models "remit-orchestrator/models"
	policy "remit-orchestrator/services/policy"

	// External Packages
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	actorSystem = "system"

	maxConflictRetries = 5
)

// Leg-specific failure codes for rejected initiate calls.
const (
	CodeCollectionInitiationFailed   = "collection_initiation_failed"
	CodeConversionInitiationFailed   = "conversion_initiation_failed"
	CodeDisbursementInitiationFailed = "disbursement_initiation_failed"
)

type TransactionStore interface {
	Insert(ctx context.Context, tx *models.Transaction) error
	Get(ctx context.Context, id string) (*models.Transaction, error)
	GetByLegReference(ctx context.Context, leg models.Leg, ref string) (*models.Transaction, error)
	Update(ctx context.Context, tx *models.Transaction) error
	SumBySenderSince(ctx context.Context, senderID string, since time.Time) (decimal.Decimal, error)
	ListBySender(ctx context.Context, senderID string, limit int) ([]*models.Transaction, error)
	ListByRecipient(ctx context.Context, bankAccount string, limit int) ([]*models.Transaction, error)
	ListUnresolved(ctx context.Context) ([]*models.Transaction, error)
}

type AuditStore interface {
	Append(ctx context.Context, event models.AuditEvent) error
	ListByTransaction(ctx context.Context, transactionID string) ([]models.AuditEvent, error)
}

type CollectionGateway interface {
	Initiate(ctx context.Context, txID string, amount decimal.Decimal) (string, error)
	PollStatus(ctx context.Context, legReference string) (models.LegOutcome, error)
}

type ConversionGateway interface {
	QuoteRate(ctx context.Context, sourceCurrency, targetCurrency string) (decimal.Decimal, error)
	Initiate(ctx context.Context, txID string, amount decimal.Decimal, sourceCurrency, targetCurrency string) (string, error)
	PollStatus(ctx context.Context, legReference string) (models.LegOutcome, error)
}

type DisbursementGateway interface {
	Initiate(ctx context.Context, txID string, amount decimal.Decimal, targetCurrency string, recipient models.RecipientDetails) (string, error)
	PollStatus(ctx context.Context, legReference string) (models.LegOutcome, error)
}

// Tracker is notified whenever a leg goes in flight, so the reconciliation
// scheduler can re-poll it.
type Tracker interface {
	Track(txID string, leg models.Leg)
}

type Config struct {
	Policy         policy.Config
	SourceCurrency string
	TargetCurrency string
	// RateTolerance bounds how far the partner's authoritative rate may
	// drift from the estimate locked at creation before it is flagged.
	RateTolerance decimal.Decimal
}

type Orchestrator struct {
	logger       *zap.Logger
	store        TransactionStore
	audit        AuditStore
	collection   CollectionGateway
	conversion   ConversionGateway
	disbursement DisbursementGateway
	tracker      Tracker
	cfg          Config
}

func New(logger *zap.Logger, store TransactionStore, audit AuditStore,
	collection CollectionGateway, conversion ConversionGateway, disbursement DisbursementGateway,
	cfg Config) *Orchestrator {
	return &Orchestrator{
		logger:       logger,
		store:        store,
		audit:        audit,
		collection:   collection,
		conversion:   conversion,
		disbursement: disbursement,
		cfg:          cfg,
	}
}

// SetTracker wires the reconciliation scheduler in after construction; the
// scheduler needs the orchestrator and vice versa.
func (o *Orchestrator) SetTracker(t Tracker) {
	o.tracker = t
}

// Create validates the request, persists an INITIATED transaction and asks
// the collection partner to begin collecting funds. A rejected initiate
// call yields a FAILED transaction, not an error.
func (o *Orchestrator) Create(ctx context.Context, senderID string, amount decimal.Decimal, recipient models.RecipientDetails) (*models.Transaction, error) {
	if senderID == "" {
		return nil, errors.EmptyParamErr("senderId")
	}
	if err := validateRecipient(recipient); err != nil {
		return nil, err
	}
	if err := policy.ValidateAmount(amount, o.cfg.Policy); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	priorTotal, err := o.store.SumBySenderSince(ctx, senderID, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	if err := policy.ValidateDailyLimit(priorTotal, amount, o.cfg.Policy); err != nil {
		return nil, err
	}

	// Point-in-time estimate; the authoritative rate arrives with the
	// conversion leg's outcome.
	rate, err := o.conversion.QuoteRate(ctx, o.cfg.SourceCurrency, o.cfg.TargetCurrency)
	if err != nil {
		return nil, errors.E(errors.Unavailable, "exchange rate unavailable", err)
	}

	fee := policy.ComputeFee(amount, o.cfg.Policy)
	tx := &models.Transaction{
		ID:                  uuid.NewString(),
		SenderID:            senderID,
		SourceAmount:        amount,
		SourceCurrency:      o.cfg.SourceCurrency,
		DestinationCurrency: o.cfg.TargetCurrency,
		ExchangeRate:        rate,
		Fee:                 fee,
		Recipient:           recipient,
		Status:              models.StatusInitiated,
		CreatedAt:           now,
		UpdatedAt:           now,
		Version:             0,
	}
	if err := o.store.Insert(ctx, tx); err != nil {
		return nil, err
	}
	o.emitAudit(ctx, models.AuditEvent{
		TransactionID: tx.ID,
		Timestamp:     time.Now().UTC(),
		EventType:     models.EventCreated,
		NewStatus:     models.StatusInitiated,
		Actor:         actorSystem,
		Detail: map[string]string{
			"source_amount": amount.String(),
			"fee":           fee.String(),
			"exchange_rate": rate.String(),
		},
	})

	ref, err := o.collection.Initiate(ctx, tx.ID, amount)
	if err != nil {
		o.failTransaction(ctx, tx, models.LegCollection, CodeCollectionInitiationFailed, err.Error())
		return tx, nil
	}
	tx.SetLegReference(models.LegCollection, ref)
	if err := o.store.Update(ctx, tx); err != nil {
		return tx, err
	}
	o.emitLegInitiated(ctx, tx, models.LegCollection, ref)
	o.track(tx.ID, models.LegCollection)
	return tx, nil
}

// Get returns a transaction by id.
func (o *Orchestrator) Get(ctx context.Context, id string) (*models.Transaction, error) {
	return o.store.Get(ctx, id)
}

// ListBySender returns the sender's most recent transactions.
func (o *Orchestrator) ListBySender(ctx context.Context, senderID string, limit int) ([]*models.Transaction, error) {
	return o.store.ListBySender(ctx, senderID, limit)
}

// ListByRecipient returns the most recent transactions payable to a bank
// account reference.
func (o *Orchestrator) ListByRecipient(ctx context.Context, bankAccount string, limit int) ([]*models.Transaction, error) {
	return o.store.ListByRecipient(ctx, bankAccount, limit)
}

// ListAuditEvents returns a transaction's audit trail.
func (o *Orchestrator) ListAuditEvents(ctx context.Context, transactionID string) ([]models.AuditEvent, error) {
	return o.audit.ListByTransaction(ctx, transactionID)
}

// IngestCallback resolves a partner's leg reference to a transaction and
// ingests the reported outcome. Webhook handlers land here.
func (o *Orchestrator) IngestCallback(ctx context.Context, leg models.Leg, legReference string, outcome models.LegOutcome) error {
	tx, err := o.store.GetByLegReference(ctx, leg, legReference)
	if err != nil {
		return err
	}
	return o.IngestLegOutcome(ctx, tx.ID, leg, outcome)
}

// IngestLegOutcome applies a leg outcome to a transaction. Duplicate and
// stale outcomes are no-ops; a lost conditional write re-derives the
// transition against fresh state and retries. On a successful non-terminal
// advancement the next leg's initiate call is made in the same step.
func (o *Orchestrator) IngestLegOutcome(ctx context.Context, txID string, leg models.Leg, outcome models.LegOutcome) error {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		tx, err := o.store.Get(ctx, txID)
		if err != nil {
			return err
		}

		next, kind := deriveTransition(tx.Status, leg, outcome)
		switch kind {
		case transitionPending:
			return nil
		case transitionDuplicate:
			o.logger.Info("duplicate leg outcome ignored",
				zap.String("transaction_id", txID), zap.String("leg", string(leg)),
				zap.String("outcome", string(outcome.Status)), zap.String("status", string(tx.Status)))
			return nil
		case transitionStale:
			o.logger.Warn("stale leg outcome discarded",
				zap.String("transaction_id", txID), zap.String("leg", string(leg)),
				zap.String("outcome", string(outcome.Status)), zap.String("status", string(tx.Status)))
			o.emitAudit(ctx, models.AuditEvent{
				TransactionID:  txID,
				Timestamp:      time.Now().UTC(),
				EventType:      models.EventInvalidTransition,
				PreviousStatus: tx.Status,
				Actor:          string(leg),
				Detail: map[string]string{
					"leg":     string(leg),
					"outcome": string(outcome.Status),
				},
			})
			return nil
		}

		previous := tx.Status
		o.applyOutcome(tx, next, leg, outcome)
		err = o.store.Update(ctx, tx)
		if errors.Is(errors.Conflict, err) {
			continue
		}
		if err != nil {
			return err
		}

		o.emitAudit(ctx, models.AuditEvent{
			TransactionID:  tx.ID,
			Timestamp:      time.Now().UTC(),
			EventType:      models.EventStatusChanged,
			PreviousStatus: previous,
			NewStatus:      next,
			Actor:          string(leg),
			Detail:         outcomeDetail(leg, outcome),
		})

		switch next {
		case models.StatusFundsCollected:
			return o.initiateConversion(ctx, tx)
		case models.StatusConversionCompleted:
			return o.initiateDisbursement(ctx, tx)
		}
		return nil
	}
	return errors.E(errors.Conflict, "giving up applying leg outcome for "+txID, nil)
}

// Resolve re-drives whatever is pending for a transaction: it re-initiates
// a leg whose initiate call was never confirmed, or polls the partner for
// an in-flight leg and ingests the result. The returned status is the
// transaction's status after the attempt.
func (o *Orchestrator) Resolve(ctx context.Context, txID string) (models.Status, error) {
	tx, err := o.store.Get(ctx, txID)
	if err != nil {
		return "", err
	}
	if tx.Status.IsTerminal() {
		return tx.Status, nil
	}

	switch tx.Status {
	case models.StatusInitiated:
		ref, ok := tx.LegReference(models.LegCollection)
		if !ok {
			return o.reinitiateCollection(ctx, tx)
		}
		return o.pollAndIngest(ctx, tx, models.LegCollection, o.collection.PollStatus, ref)

	case models.StatusFundsCollected:
		if err := o.initiateConversion(ctx, tx); err != nil {
			return tx.Status, err
		}
		return o.currentStatus(ctx, txID)

	case models.StatusConversionInProgress:
		ref, _ := tx.LegReference(models.LegConversion)
		return o.pollAndIngest(ctx, tx, models.LegConversion, o.conversion.PollStatus, ref)

	case models.StatusConversionCompleted:
		if err := o.initiateDisbursement(ctx, tx); err != nil {
			return tx.Status, err
		}
		return o.currentStatus(ctx, txID)

	default: // TRANSMISSION_IN_PROGRESS
		ref, _ := tx.LegReference(models.LegDisbursement)
		return o.pollAndIngest(ctx, tx, models.LegDisbursement, o.disbursement.PollStatus, ref)
	}
}

// Expire converts a leg that exhausted its reconciliation budget into a
// terminal failure with code "<leg>_timeout".
func (o *Orchestrator) Expire(ctx context.Context, txID string) error {
	tx, err := o.store.Get(ctx, txID)
	if err != nil {
		return err
	}
	if tx.Status.IsTerminal() {
		return nil
	}
	leg := pendingLegFor(tx.Status)
	return o.IngestLegOutcome(ctx, txID, leg, models.LegOutcome{
		Status:      models.OutcomeFailed,
		FailureCode: string(leg) + "_timeout",
		Detail:      "leg unresolved past the reconciliation budget",
	})
}

func (o *Orchestrator) applyOutcome(tx *models.Transaction, next models.Status, leg models.Leg, outcome models.LegOutcome) {
	tx.Status = next
	switch next {
	case models.StatusConversionCompleted:
		rate := outcome.Rate
		if rate.IsZero() {
			rate = tx.ExchangeRate
		} else if o.rateDrifted(tx.ExchangeRate, rate) {
			o.logger.Warn("authoritative rate drifted from locked estimate",
				zap.String("transaction_id", tx.ID),
				zap.String("locked_rate", tx.ExchangeRate.String()),
				zap.String("partner_rate", rate.String()))
		}
		amount := outcome.ConvertedAmount
		if amount.IsZero() {
			amount = tx.NetAmount().Mul(rate)
		}
		tx.ExchangeRate = rate
		tx.DestinationAmount = &amount
	case models.StatusCompleted:
		now := time.Now().UTC()
		if outcome.DeliveredAt != nil {
			tx.CompletedAt = outcome.DeliveredAt
		} else {
			tx.CompletedAt = &now
		}
	case models.StatusFailed:
		tx.FailureCode = outcome.FailureCode
		if tx.FailureCode == "" {
			tx.FailureCode = string(leg) + "_failed"
		}
		tx.FailureReason = outcome.Detail
		if tx.FailureReason == "" {
			tx.FailureReason = tx.FailureCode
		}
	}
}

func (o *Orchestrator) initiateConversion(ctx context.Context, tx *models.Transaction) error {
	if _, ok := tx.LegReference(models.LegConversion); ok {
		return nil
	}
	ref, err := o.conversion.Initiate(ctx, tx.ID, tx.NetAmount(), tx.SourceCurrency, tx.DestinationCurrency)
	if err != nil {
		o.failTransaction(ctx, tx, models.LegConversion, CodeConversionInitiationFailed, err.Error())
		return nil
	}
	tx.SetLegReference(models.LegConversion, ref)
	tx.Status = models.StatusConversionInProgress
	if err := o.advanceAfterInitiate(ctx, tx, models.LegConversion, ref, models.StatusFundsCollected); err != nil {
		return err
	}
	o.track(tx.ID, models.LegConversion)
	return nil
}

func (o *Orchestrator) initiateDisbursement(ctx context.Context, tx *models.Transaction) error {
	if _, ok := tx.LegReference(models.LegDisbursement); ok {
		return nil
	}
	amount := tx.NetAmount()
	if tx.DestinationAmount != nil {
		amount = *tx.DestinationAmount
	}
	ref, err := o.disbursement.Initiate(ctx, tx.ID, amount, tx.DestinationCurrency, tx.Recipient)
	if err != nil {
		o.failTransaction(ctx, tx, models.LegDisbursement, CodeDisbursementInitiationFailed, err.Error())
		return nil
	}
	tx.SetLegReference(models.LegDisbursement, ref)
	tx.Status = models.StatusTransmissionInProgress
	if err := o.advanceAfterInitiate(ctx, tx, models.LegDisbursement, ref, models.StatusConversionCompleted); err != nil {
		return err
	}
	o.track(tx.ID, models.LegDisbursement)
	return nil
}

// advanceAfterInitiate records an accepted initiate call: leg reference and
// the in-progress status in one conditional write. Losing the write to a
// concurrent actor that made the same advancement is not an error.
func (o *Orchestrator) advanceAfterInitiate(ctx context.Context, tx *models.Transaction, leg models.Leg, ref string, previous models.Status) error {
	err := o.store.Update(ctx, tx)
	if errors.Is(errors.Conflict, err) {
		o.logger.Info("lost initiate write to a concurrent actor",
			zap.String("transaction_id", tx.ID), zap.String("leg", string(leg)))
		return nil
	}
	if err != nil {
		return err
	}
	o.emitAudit(ctx, models.AuditEvent{
		TransactionID:  tx.ID,
		Timestamp:      time.Now().UTC(),
		EventType:      models.EventLegInitiated,
		PreviousStatus: previous,
		NewStatus:      tx.Status,
		Actor:          string(leg),
		Detail:         map[string]string{"leg": string(leg), "reference": ref},
	})
	return nil
}

// failTransaction moves a transaction to FAILED after a rejected initiate
// call, re-deriving legality on version conflicts.
func (o *Orchestrator) failTransaction(ctx context.Context, tx *models.Transaction, leg models.Leg, code, reason string) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if tx.Status.IsTerminal() || !tx.Status.CanTransitionTo(models.StatusFailed) {
			return
		}
		previous := tx.Status
		tx.Status = models.StatusFailed
		tx.FailureCode = code
		tx.FailureReason = reason

		err := o.store.Update(ctx, tx)
		if errors.Is(errors.Conflict, err) {
			fresh, getErr := o.store.Get(ctx, tx.ID)
			if getErr != nil {
				o.logger.Error("failed to reload transaction", zap.String("transaction_id", tx.ID), zap.Error(getErr))
				return
			}
			*tx = *fresh
			continue
		}
		if err != nil {
			o.logger.Error("failed to mark transaction failed", zap.String("transaction_id", tx.ID), zap.Error(err))
			return
		}
		o.emitAudit(ctx, models.AuditEvent{
			TransactionID:  tx.ID,
			Timestamp:      time.Now().UTC(),
			EventType:      models.EventStatusChanged,
			PreviousStatus: previous,
			NewStatus:      models.StatusFailed,
			Actor:          string(leg),
			Detail:         map[string]string{"failure_code": code, "failure_reason": reason},
		})
		return
	}
}

func (o *Orchestrator) reinitiateCollection(ctx context.Context, tx *models.Transaction) (models.Status, error) {
	ref, err := o.collection.Initiate(ctx, tx.ID, tx.SourceAmount)
	if err != nil {
		return tx.Status, errors.E(errors.Unavailable, "collection initiate failed", err)
	}
	tx.SetLegReference(models.LegCollection, ref)
	if err := o.store.Update(ctx, tx); err != nil {
		if errors.Is(errors.Conflict, err) {
			return o.currentStatus(ctx, tx.ID)
		}
		return tx.Status, err
	}
	o.emitLegInitiated(ctx, tx, models.LegCollection, ref)
	return tx.Status, nil
}

type pollFunc func(ctx context.Context, legReference string) (models.LegOutcome, error)

func (o *Orchestrator) pollAndIngest(ctx context.Context, tx *models.Transaction, leg models.Leg, poll pollFunc, ref string) (models.Status, error) {
	outcome, err := poll(ctx, ref)
	if err != nil {
		return tx.Status, errors.E(errors.Unavailable, "poll failed for "+string(leg), err)
	}
	if outcome.Status == models.OutcomePending {
		return tx.Status, nil
	}
	if err := o.IngestLegOutcome(ctx, tx.ID, leg, outcome); err != nil {
		return tx.Status, err
	}
	return o.currentStatus(ctx, tx.ID)
}

func (o *Orchestrator) currentStatus(ctx context.Context, txID string) (models.Status, error) {
	tx, err := o.store.Get(ctx, txID)
	if err != nil {
		return "", err
	}
	return tx.Status, nil
}

func (o *Orchestrator) emitLegInitiated(ctx context.Context, tx *models.Transaction, leg models.Leg, ref string) {
	o.emitAudit(ctx, models.AuditEvent{
		TransactionID:  tx.ID,
		Timestamp:      time.Now().UTC(),
		EventType:      models.EventLegInitiated,
		PreviousStatus: tx.Status,
		NewStatus:      tx.Status,
		Actor:          string(leg),
		Detail:         map[string]string{"leg": string(leg), "reference": ref},
	})
}

// emitAudit appends after the corresponding mutation is durable; an append
// failure is logged, never propagated, since the trail is not consulted
// for control flow.
func (o *Orchestrator) emitAudit(ctx context.Context, event models.AuditEvent) {
	if err := o.audit.Append(ctx, event); err != nil {
		o.logger.Error("failed to append audit event",
			zap.String("transaction_id", event.TransactionID),
			zap.String("event_type", event.EventType), zap.Error(err))
	}
}

func (o *Orchestrator) track(txID string, leg models.Leg) {
	if o.tracker != nil {
		o.tracker.Track(txID, leg)
	}
}

func (o *Orchestrator) rateDrifted(locked, partner decimal.Decimal) bool {
	if locked.IsZero() || o.cfg.RateTolerance.IsZero() {
		return false
	}
	drift := partner.Sub(locked).Abs().Div(locked)
	return drift.GreaterThan(o.cfg.RateTolerance)
}

func outcomeDetail(leg models.Leg, outcome models.LegOutcome) map[string]string {
	detail := map[string]string{
		"leg":     string(leg),
		"outcome": string(outcome.Status),
	}
	if outcome.Detail != "" {
		detail["partner_detail"] = outcome.Detail
	}
	if outcome.FailureCode != "" {
		detail["failure_code"] = outcome.FailureCode
	}
	if !outcome.Rate.IsZero() {
		detail["rate"] = outcome.Rate.String()
	}
	if !outcome.ConvertedAmount.IsZero() {
		detail["converted_amount"] = outcome.ConvertedAmount.String()
	}
	return detail
}

func validateRecipient(r models.RecipientDetails) error {
	ve := errors.ValidationErrs()
	if r.Name == "" {
		ve.Add("recipient.name", "cannot be empty")
	}
	if r.BankAccount == "" {
		ve.Add("recipient.bank_account", "cannot be empty")
	}
	if r.BankCode == "" {
		ve.Add("recipient.bank_code", "cannot be empty")
	}
	if err := ve.Err(); err != nil {
		return errors.ValidationFailedErr(err)
	}
	return nil
}
