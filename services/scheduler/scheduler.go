// Package scheduler re-drives in-flight legs until they resolve. It holds
// no durable state of its own: the tracking set is rebuilt from the
// transaction store's non-terminal transactions at startup.
package scheduler

import (
	// Go Internal Packages
	"context"
	"sync"
	"time"

	// Local Packages
	errors "remit-orchestrator/errors"
	models "remit-orchestrator/models"

	// External Packages
	"go.uber.org/zap"
)

// Resolver re-drives whatever is pending for a transaction and reports its
// status afterwards. The orchestrator implements it.
type Resolver interface {
	Resolve(ctx context.Context, txID string) (models.Status, error)
	Expire(ctx context.Context, txID string) error
}

// Store is the slice of the transaction store the scheduler needs.
type Store interface {
	ListUnresolved(ctx context.Context) ([]*models.Transaction, error)
}

type Config struct {
	Tick          time.Duration
	InitialDelay  time.Duration
	FixedAttempts int
	Multiplier    float64
	MaxDelay      time.Duration
	MaxAttempts   int
	MaxInFlight   time.Duration
}

type entry struct {
	txID       string
	leg        models.Leg
	lastStatus models.Status
	attempts   int
	nextDue    time.Time
	trackedAt  time.Time
}

type Scheduler struct {
	logger   *zap.Logger
	store    Store
	cfg      Config
	resolver Resolver

	mu      sync.Mutex
	entries map[string]*entry
}

func New(logger *zap.Logger, store Store, cfg Config) *Scheduler {
	return &Scheduler{
		logger:  logger,
		store:   store,
		cfg:     cfg,
		entries: make(map[string]*entry),
	}
}

// SetResolver must be called before Track, Resync or Run.
func (s *Scheduler) SetResolver(r Resolver) {
	s.resolver = r
}

// Track registers a leg that just went in flight. Re-tracking a transaction
// resets its attempt budget; the leg changed.
func (s *Scheduler) Track(txID string, leg models.Leg) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[txID] = &entry{
		txID:      txID,
		leg:       leg,
		nextDue:   now.Add(s.cfg.InitialDelay),
		trackedAt: now,
	}
}

// Resync rebuilds the tracking set from the store's non-terminal
// transactions. In-flight age is measured from each transaction's last
// update so the max-in-flight bound survives restarts.
func (s *Scheduler) Resync(ctx context.Context) error {
	txs, err := s.store.ListUnresolved(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range txs {
		if tx.Status.IsTerminal() {
			continue
		}
		s.entries[tx.ID] = &entry{
			txID:       tx.ID,
			leg:        legFor(tx.Status),
			lastStatus: tx.Status,
			nextDue:    now.Add(s.cfg.InitialDelay),
			trackedAt:  tx.UpdatedAt,
		}
	}
	s.logger.Info("resynced unresolved transactions", zap.Int("count", len(txs)))
	return nil
}

// Run drives the reconciliation loop until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep resolves every entry that has come due.
func (s *Scheduler) sweep(ctx context.Context) {
	now := time.Now()
	s.mu.Lock()
	var due []*entry
	for _, e := range s.entries {
		if !e.nextDue.After(now) {
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		s.resolve(ctx, e)
	}
}

func (s *Scheduler) resolve(ctx context.Context, e *entry) {
	status, err := s.resolver.Resolve(ctx, e.txID)

	s.mu.Lock()
	current, ok := s.entries[e.txID]
	if !ok || current != e {
		// Replaced by a Track call while we were resolving.
		s.mu.Unlock()
		return
	}

	switch {
	case errors.Is(errors.NotFound, err):
		delete(s.entries, e.txID)
		s.mu.Unlock()
		return
	case err != nil:
		e.attempts++
		s.logger.Warn("reconciliation attempt failed",
			zap.String("transaction_id", e.txID), zap.String("leg", string(e.leg)),
			zap.Int("attempts", e.attempts), zap.Error(err))
	case status.IsTerminal():
		delete(s.entries, e.txID)
		s.mu.Unlock()
		return
	case status != e.lastStatus:
		e.lastStatus = status
		e.leg = legFor(status)
		e.attempts = 0
	default:
		e.attempts++
	}

	expired := e.attempts >= s.cfg.MaxAttempts || time.Since(e.trackedAt) >= s.cfg.MaxInFlight
	if expired {
		delete(s.entries, e.txID)
	} else {
		e.nextDue = time.Now().Add(s.backoff(e.attempts))
	}
	s.mu.Unlock()

	if expired {
		if err := s.resolver.Expire(ctx, e.txID); err != nil {
			s.logger.Error("failed to expire transaction",
				zap.String("transaction_id", e.txID), zap.Error(err))
		}
	}
}

// backoff keeps the first FixedAttempts re-checks at the initial delay,
// then grows exponentially up to the ceiling.
func (s *Scheduler) backoff(attempts int) time.Duration {
	if attempts <= s.cfg.FixedAttempts {
		return s.cfg.InitialDelay
	}
	delay := s.cfg.InitialDelay
	for i := s.cfg.FixedAttempts; i < attempts; i++ {
		delay = time.Duration(float64(delay) * s.cfg.Multiplier)
		if delay >= s.cfg.MaxDelay {
			return s.cfg.MaxDelay
		}
	}
	return delay
}

func legFor(status models.Status) models.Leg {
	switch status {
	case models.StatusInitiated:
		return models.LegCollection
	case models.StatusFundsCollected, models.StatusConversionInProgress:
		return models.LegConversion
	default:
		return models.LegDisbursement
	}
}
