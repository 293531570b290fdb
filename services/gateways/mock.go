// Package gateways provides the partner gateway implementations, one mock
// and one HTTP variant per partner. The variant is chosen once at process
// start from configuration.
package gateways

import (
	// Go Internal Packages
	"context"
	"fmt"
	"time"

	// Local Packages
	models "remit-orchestrator/models"

	// External Packages
	"github.com/shopspring/decimal"
)

// mockRate mirrors the sandbox INR->CAD rate of the partner sandboxes.
var mockRate = decimal.NewFromFloat(0.016)

// MockCollection is a deterministic stand-in for the domestic collection
// partner. Every initiated collection succeeds on the first poll.
type MockCollection struct{}

func NewMockCollection() *MockCollection { return &MockCollection{} }

func (m *MockCollection) Initiate(ctx context.Context, txID string, amount decimal.Decimal) (string, error) {
	return "UPI-" + txID, nil
}

func (m *MockCollection) PollStatus(ctx context.Context, legReference string) (models.LegOutcome, error) {
	return models.LegOutcome{Status: models.OutcomeSucceeded}, nil
}

// MockConversion quotes a fixed rate and completes every conversion.
type MockConversion struct{}

func NewMockConversion() *MockConversion { return &MockConversion{} }

func (m *MockConversion) QuoteRate(ctx context.Context, sourceCurrency, targetCurrency string) (decimal.Decimal, error) {
	return mockRate, nil
}

func (m *MockConversion) Initiate(ctx context.Context, txID string, amount decimal.Decimal, sourceCurrency, targetCurrency string) (string, error) {
	return "FX-" + txID, nil
}

func (m *MockConversion) PollStatus(ctx context.Context, legReference string) (models.LegOutcome, error) {
	return models.LegOutcome{Status: models.OutcomeSucceeded, Rate: mockRate}, nil
}

// MockDisbursement accepts every transfer and reports immediate delivery.
type MockDisbursement struct{}

func NewMockDisbursement() *MockDisbursement { return &MockDisbursement{} }

func (m *MockDisbursement) Initiate(ctx context.Context, txID string, amount decimal.Decimal, targetCurrency string, recipient models.RecipientDetails) (string, error) {
	return fmt.Sprintf("TR-%s", txID), nil
}

func (m *MockDisbursement) PollStatus(ctx context.Context, legReference string) (models.LegOutcome, error) {
	now := time.Now().UTC()
	return models.LegOutcome{Status: models.OutcomeSucceeded, DeliveredAt: &now}, nil
}
