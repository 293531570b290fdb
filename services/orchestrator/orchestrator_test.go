package orchestrator

import (
	// Go Internal Packages
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	// Local Packages
	errors "remit-orchestrator/errors"
	models "remit-orchestrator/models"
	policy "remit-orchestrator/services/policy"

	// External Packages
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// memStore is an in-memory TransactionStore with the same version-checked
// conditional-write semantics as the Mongo repository.
type memStore struct {
	mu  sync.Mutex
	txs map[string]*models.Transaction
}

func newMemStore() *memStore {
	return &memStore{txs: make(map[string]*models.Transaction)}
}

func copyTx(tx *models.Transaction) *models.Transaction {
	cp := *tx
	if tx.LegReferences != nil {
		cp.LegReferences = make(map[models.Leg]string, len(tx.LegReferences))
		for k, v := range tx.LegReferences {
			cp.LegReferences[k] = v
		}
	}
	if tx.DestinationAmount != nil {
		v := *tx.DestinationAmount
		cp.DestinationAmount = &v
	}
	if tx.CompletedAt != nil {
		v := *tx.CompletedAt
		cp.CompletedAt = &v
	}
	return &cp
}

func (s *memStore) Insert(_ context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[tx.ID] = copyTx(tx)
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return nil, errors.TxNotFoundErr(id)
	}
	return copyTx(tx), nil
}

func (s *memStore) GetByLegReference(_ context.Context, leg models.Leg, ref string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.txs {
		if r, ok := tx.LegReferences[leg]; ok && r == ref {
			return copyTx(tx), nil
		}
	}
	return nil, errors.E(errors.NotFound, "no transaction for leg reference "+ref, nil)
}

func (s *memStore) Update(_ context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.txs[tx.ID]
	if !ok {
		return errors.TxNotFoundErr(tx.ID)
	}
	if current.Version != tx.Version {
		return errors.VersionConflictErr(tx.ID, tx.Version)
	}
	tx.Version++
	tx.UpdatedAt = time.Now().UTC()
	s.txs[tx.ID] = copyTx(tx)
	return nil
}

func (s *memStore) SumBySenderSince(_ context.Context, senderID string, since time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, tx := range s.txs {
		if tx.SenderID == senderID && tx.Status != models.StatusFailed && tx.CreatedAt.After(since) {
			total = total.Add(tx.SourceAmount)
		}
	}
	return total, nil
}

func (s *memStore) ListBySender(_ context.Context, senderID string, limit int) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var txs []*models.Transaction
	for _, tx := range s.txs {
		if tx.SenderID == senderID {
			txs = append(txs, copyTx(tx))
		}
		if limit > 0 && len(txs) == limit {
			break
		}
	}
	return txs, nil
}

func (s *memStore) ListByRecipient(_ context.Context, bankAccount string, limit int) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var txs []*models.Transaction
	for _, tx := range s.txs {
		if tx.Recipient.BankAccount == bankAccount {
			txs = append(txs, copyTx(tx))
		}
		if limit > 0 && len(txs) == limit {
			break
		}
	}
	return txs, nil
}

func (s *memStore) ListUnresolved(_ context.Context) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var txs []*models.Transaction
	for _, tx := range s.txs {
		if !tx.Status.IsTerminal() {
			txs = append(txs, copyTx(tx))
		}
	}
	return txs, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txs)
}

type memAudit struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (a *memAudit) Append(_ context.Context, event models.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) ListByTransaction(_ context.Context, transactionID string) ([]models.AuditEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var events []models.AuditEvent
	for _, e := range a.events {
		if e.TransactionID == transactionID {
			events = append(events, e)
		}
	}
	return events, nil
}

func (a *memAudit) countType(eventType string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

type stubCollection struct {
	mu          sync.Mutex
	initiateErr error
	initiated   []string
	outcome     models.LegOutcome
	pollErr     error
}

func (s *stubCollection) Initiate(_ context.Context, txID string, _ decimal.Decimal) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initiateErr != nil {
		return "", s.initiateErr
	}
	s.initiated = append(s.initiated, txID)
	return "UPI-" + txID, nil
}

func (s *stubCollection) PollStatus(_ context.Context, _ string) (models.LegOutcome, error) {
	return s.outcome, s.pollErr
}

func (s *stubCollection) initiations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.initiated)
}

type stubConversion struct {
	mu          sync.Mutex
	rate        decimal.Decimal
	quoteErr    error
	initiateErr error
	initiated   []string
	outcome     models.LegOutcome
	pollErr     error
}

func (s *stubConversion) QuoteRate(_ context.Context, _, _ string) (decimal.Decimal, error) {
	if s.quoteErr != nil {
		return decimal.Zero, s.quoteErr
	}
	return s.rate, nil
}

func (s *stubConversion) Initiate(_ context.Context, txID string, _ decimal.Decimal, _, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initiateErr != nil {
		return "", s.initiateErr
	}
	s.initiated = append(s.initiated, txID)
	return "FX-" + txID, nil
}

func (s *stubConversion) PollStatus(_ context.Context, _ string) (models.LegOutcome, error) {
	return s.outcome, s.pollErr
}

func (s *stubConversion) initiations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.initiated)
}

type stubDisbursement struct {
	mu          sync.Mutex
	initiateErr error
	initiated   []string
	outcome     models.LegOutcome
	pollErr     error
}

func (s *stubDisbursement) Initiate(_ context.Context, txID string, _ decimal.Decimal, _ string, _ models.RecipientDetails) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initiateErr != nil {
		return "", s.initiateErr
	}
	s.initiated = append(s.initiated, txID)
	return "TR-" + txID, nil
}

func (s *stubDisbursement) PollStatus(_ context.Context, _ string) (models.LegOutcome, error) {
	return s.outcome, s.pollErr
}

func (s *stubDisbursement) initiations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.initiated)
}

type fixture struct {
	orch         *Orchestrator
	store        *memStore
	audit        *memAudit
	collection   *stubCollection
	conversion   *stubConversion
	disbursement *stubDisbursement
}

func newFixture() *fixture {
	store := newMemStore()
	audit := &memAudit{}
	collection := &stubCollection{}
	conversion := &stubConversion{rate: decimal.NewFromFloat(0.016)}
	disbursement := &stubDisbursement{}

	cfg := Config{
		Policy: policy.Config{
			FeeRate:    decimal.NewFromFloat(0.005),
			MinFee:     decimal.NewFromInt(50),
			MaxFee:     decimal.NewFromInt(5000),
			MinAmount:  decimal.NewFromInt(100),
			MaxAmount:  decimal.NewFromInt(100000),
			DailyLimit: decimal.NewFromInt(200000),
		},
		SourceCurrency: "INR",
		TargetCurrency: "CAD",
		RateTolerance:  decimal.NewFromFloat(0.05),
	}
	orch := New(zap.NewNop(), store, audit, collection, conversion, disbursement, cfg)
	return &fixture{orch: orch, store: store, audit: audit, collection: collection, conversion: conversion, disbursement: disbursement}
}

func recipient() models.RecipientDetails {
	return models.RecipientDetails{Name: "R Singh", BankAccount: "12345678", BankCode: "TD004"}
}

func TestCreateComputesFeeAndInitiatesCollection(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tx, err := f.orch.Create(ctx, "sender-1", decimal.NewFromInt(10000), recipient())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tx.Status != models.StatusInitiated {
		t.Errorf("status = %s, want INITIATED", tx.Status)
	}
	if !tx.Fee.Equal(decimal.NewFromInt(50)) {
		t.Errorf("fee = %s, want 50", tx.Fee)
	}
	if !tx.ExchangeRate.Equal(decimal.NewFromFloat(0.016)) {
		t.Errorf("exchange rate = %s, want 0.016", tx.ExchangeRate)
	}
	if ref, ok := tx.LegReference(models.LegCollection); !ok || ref == "" {
		t.Error("collection leg reference not recorded")
	}
	if f.collection.initiations() != 1 {
		t.Errorf("collection initiations = %d, want 1", f.collection.initiations())
	}
	if f.conversion.initiations() != 0 || f.disbursement.initiations() != 0 {
		t.Error("later legs must not be initiated at create")
	}
}

func TestCreateRejectsAmountOutOfBounds(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for _, amount := range []int64{99, 100001} {
		if _, err := f.orch.Create(ctx, "sender-1", decimal.NewFromInt(amount), recipient()); err == nil {
			t.Errorf("amount %d accepted", amount)
		}
	}
	if f.store.count() != 0 {
		t.Error("rejected create must not persist a transaction")
	}
}

func TestCreateRejectsBadRecipient(t *testing.T) {
	f := newFixture()

	_, err := f.orch.Create(context.Background(), "sender-1", decimal.NewFromInt(10000), models.RecipientDetails{Name: "X"})
	if !errors.Is(errors.Invalid, err) {
		t.Fatalf("want Invalid error, got %v", err)
	}
	if f.store.count() != 0 {
		t.Error("rejected create must not persist a transaction")
	}
}

func TestCreateRejectsDailyLimit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.orch.Create(ctx, "sender-1", decimal.NewFromInt(100000), recipient()); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := f.orch.Create(ctx, "sender-1", decimal.NewFromInt(100000), recipient()); err != nil {
		t.Fatalf("second create: %v", err)
	}
	if _, err := f.orch.Create(ctx, "sender-1", decimal.NewFromInt(100), recipient()); err == nil {
		t.Error("create past the rolling daily limit accepted")
	}
	// A different sender is unaffected.
	if _, err := f.orch.Create(ctx, "sender-2", decimal.NewFromInt(100), recipient()); err != nil {
		t.Errorf("unrelated sender rejected: %v", err)
	}
}

func TestCreateCollectionInitiateRejected(t *testing.T) {
	f := newFixture()
	f.collection.initiateErr = errors.E(errors.Unavailable, "partner rejected", nil)

	tx, err := f.orch.Create(context.Background(), "sender-1", decimal.NewFromInt(10000), recipient())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tx.Status != models.StatusFailed {
		t.Fatalf("status = %s, want FAILED", tx.Status)
	}
	if tx.FailureCode != CodeCollectionInitiationFailed {
		t.Errorf("failure code = %s, want %s", tx.FailureCode, CodeCollectionInitiationFailed)
	}
}

func TestHappyPathEndToEnd(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tx, err := f.orch.Create(ctx, "sender-1", decimal.NewFromInt(10000), recipient())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := f.orch.IngestLegOutcome(ctx, tx.ID, models.LegCollection, models.LegOutcome{Status: models.OutcomeSucceeded}); err != nil {
		t.Fatalf("collection ingest: %v", err)
	}
	got, _ := f.orch.Get(ctx, tx.ID)
	if got.Status != models.StatusConversionInProgress {
		t.Fatalf("status = %s, want CONVERSION_IN_PROGRESS", got.Status)
	}
	if f.conversion.initiations() != 1 {
		t.Fatalf("conversion initiations = %d, want 1", f.conversion.initiations())
	}

	outcome := models.LegOutcome{Status: models.OutcomeSucceeded, Rate: decimal.NewFromFloat(0.016)}
	if err := f.orch.IngestLegOutcome(ctx, tx.ID, models.LegConversion, outcome); err != nil {
		t.Fatalf("conversion ingest: %v", err)
	}
	got, _ = f.orch.Get(ctx, tx.ID)
	if got.Status != models.StatusTransmissionInProgress {
		t.Fatalf("status = %s, want TRANSMISSION_IN_PROGRESS", got.Status)
	}
	if got.DestinationAmount == nil {
		t.Fatal("destination amount not set after conversion")
	}
	want := decimal.RequireFromString("159.2") // (10000-50)*0.016
	if !got.DestinationAmount.Equal(want) {
		t.Fatalf("destination amount = %s, want %s", got.DestinationAmount, want)
	}
	if f.disbursement.initiations() != 1 {
		t.Fatalf("disbursement initiations = %d, want 1", f.disbursement.initiations())
	}

	if err := f.orch.IngestLegOutcome(ctx, tx.ID, models.LegDisbursement, models.LegOutcome{Status: models.OutcomeSucceeded}); err != nil {
		t.Fatalf("disbursement ingest: %v", err)
	}
	got, _ = f.orch.Get(ctx, tx.ID)
	if got.Status != models.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("completedAt not set on completion")
	}
}

func TestCollectionFailureStopsPipeline(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tx, _ := f.orch.Create(ctx, "sender-1", decimal.NewFromInt(10000), recipient())
	outcome := models.LegOutcome{Status: models.OutcomeFailed, Detail: "user_cancelled", FailureCode: "payment_rejected"}
	if err := f.orch.IngestLegOutcome(ctx, tx.ID, models.LegCollection, outcome); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	got, _ := f.orch.Get(ctx, tx.ID)
	if got.Status != models.StatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
	if !strings.Contains(got.FailureReason, "user_cancelled") {
		t.Errorf("failure reason = %q, want it to contain user_cancelled", got.FailureReason)
	}
	if f.conversion.initiations() != 0 || f.disbursement.initiations() != 0 {
		t.Error("no further legs may be initiated after failure")
	}
}

func TestDuplicateOutcomeIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tx, _ := f.orch.Create(ctx, "sender-1", decimal.NewFromInt(10000), recipient())
	success := models.LegOutcome{Status: models.OutcomeSucceeded}

	if err := f.orch.IngestLegOutcome(ctx, tx.ID, models.LegCollection, success); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	before, _ := f.orch.Get(ctx, tx.ID)

	if err := f.orch.IngestLegOutcome(ctx, tx.ID, models.LegCollection, success); err != nil {
		t.Fatalf("duplicate ingest returned error: %v", err)
	}
	after, _ := f.orch.Get(ctx, tx.ID)

	if after.Status != before.Status || after.Version != before.Version {
		t.Error("duplicate ingestion mutated the transaction")
	}
	if f.conversion.initiations() != 1 {
		t.Errorf("conversion initiations = %d, want 1", f.conversion.initiations())
	}
}

func TestStaleFailureIsDiscarded(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tx, _ := f.orch.Create(ctx, "sender-1", decimal.NewFromInt(10000), recipient())
	f.orch.IngestLegOutcome(ctx, tx.ID, models.LegCollection, models.LegOutcome{Status: models.OutcomeSucceeded})
	f.orch.IngestLegOutcome(ctx, tx.ID, models.LegConversion, models.LegOutcome{Status: models.OutcomeSucceeded, Rate: decimal.NewFromFloat(0.016)})

	before, _ := f.orch.Get(ctx, tx.ID)
	stale := models.LegOutcome{Status: models.OutcomeFailed, Detail: "late cancellation"}
	if err := f.orch.IngestLegOutcome(ctx, tx.ID, models.LegCollection, stale); err != nil {
		t.Fatalf("stale ingest returned error: %v", err)
	}
	after, _ := f.orch.Get(ctx, tx.ID)

	if after.Status != before.Status || after.Version != before.Version {
		t.Error("stale outcome mutated the transaction")
	}
	if f.audit.countType(models.EventInvalidTransition) == 0 {
		t.Error("stale outcome should be recorded as invalid_transition")
	}
}

func TestConcurrentIngestSingleAdvance(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tx, _ := f.orch.Create(ctx, "sender-1", decimal.NewFromInt(10000), recipient())
	success := models.LegOutcome{Status: models.OutcomeSucceeded}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.orch.IngestLegOutcome(ctx, tx.ID, models.LegCollection, success); err != nil {
				t.Errorf("concurrent ingest: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := f.orch.Get(ctx, tx.ID)
	if got.Status != models.StatusConversionInProgress {
		t.Fatalf("status = %s, want CONVERSION_IN_PROGRESS", got.Status)
	}
	if f.conversion.initiations() != 1 {
		t.Fatalf("conversion initiations = %d, want exactly 1", f.conversion.initiations())
	}
}

func TestConversionInitiateRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.conversion.initiateErr = errors.E(errors.Unavailable, "partner rejected", nil)

	tx, _ := f.orch.Create(ctx, "sender-1", decimal.NewFromInt(10000), recipient())
	if err := f.orch.IngestLegOutcome(ctx, tx.ID, models.LegCollection, models.LegOutcome{Status: models.OutcomeSucceeded}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	got, _ := f.orch.Get(ctx, tx.ID)
	if got.Status != models.StatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
	if got.FailureCode != CodeConversionInitiationFailed {
		t.Errorf("failure code = %s, want %s", got.FailureCode, CodeConversionInitiationFailed)
	}
}

func TestIngestCallbackResolvesLegReference(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tx, _ := f.orch.Create(ctx, "sender-1", decimal.NewFromInt(10000), recipient())
	ref, _ := tx.LegReference(models.LegCollection)

	if err := f.orch.IngestCallback(ctx, models.LegCollection, ref, models.LegOutcome{Status: models.OutcomeSucceeded}); err != nil {
		t.Fatalf("IngestCallback: %v", err)
	}
	got, _ := f.orch.Get(ctx, tx.ID)
	if got.Status != models.StatusConversionInProgress {
		t.Fatalf("status = %s, want CONVERSION_IN_PROGRESS", got.Status)
	}

	if err := f.orch.IngestCallback(ctx, models.LegCollection, "unknown-ref", models.LegOutcome{Status: models.OutcomeSucceeded}); !errors.Is(errors.NotFound, err) {
		t.Errorf("unknown reference: want NotFound, got %v", err)
	}
}

func TestResolvePollsAndAdvances(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.collection.outcome = models.LegOutcome{Status: models.OutcomeSucceeded}

	tx, _ := f.orch.Create(ctx, "sender-1", decimal.NewFromInt(10000), recipient())
	status, err := f.orch.Resolve(ctx, tx.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if status != models.StatusConversionInProgress {
		t.Fatalf("status = %s, want CONVERSION_IN_PROGRESS", status)
	}
}

func TestResolvePendingIsNoOp(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.collection.outcome = models.LegOutcome{Status: models.OutcomePending}

	tx, _ := f.orch.Create(ctx, "sender-1", decimal.NewFromInt(10000), recipient())
	status, err := f.orch.Resolve(ctx, tx.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if status != models.StatusInitiated {
		t.Fatalf("status = %s, want INITIATED", status)
	}
}

func TestExpireFailsPendingLeg(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tx, _ := f.orch.Create(ctx, "sender-1", decimal.NewFromInt(10000), recipient())
	if err := f.orch.Expire(ctx, tx.ID); err != nil {
		t.Fatalf("Expire: %v", err)
	}

	got, _ := f.orch.Get(ctx, tx.ID)
	if got.Status != models.StatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
	if got.FailureCode != "collection_timeout" {
		t.Errorf("failure code = %s, want collection_timeout", got.FailureCode)
	}

	// Expiring a terminal transaction is a no-op.
	if err := f.orch.Expire(ctx, tx.ID); err != nil {
		t.Errorf("Expire on terminal transaction: %v", err)
	}
}

func TestAuditTrailOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tx, _ := f.orch.Create(ctx, "sender-1", decimal.NewFromInt(10000), recipient())
	f.orch.IngestLegOutcome(ctx, tx.ID, models.LegCollection, models.LegOutcome{Status: models.OutcomeSucceeded})

	events, err := f.orch.ListAuditEvents(ctx, tx.ID)
	if err != nil {
		t.Fatalf("ListAuditEvents: %v", err)
	}
	var types []string
	for _, e := range events {
		types = append(types, e.EventType)
	}
	want := []string{models.EventCreated, models.EventLegInitiated, models.EventStatusChanged, models.EventLegInitiated}
	if len(types) != len(want) {
		t.Fatalf("audit events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("audit events = %v, want %v", types, want)
		}
	}
}
