// Package policy holds the pure fee and limit rules for the remittance
// corridor. Nothing here touches a store or gateway.
package policy

import (
	// Go Internal Packages
	"fmt"

	// Local Packages
	errors "remit-orchestrator/errors"

	// External Packages
	"github.com/shopspring/decimal"
)

type Config struct {
	FeeRate    decimal.Decimal
	MinFee     decimal.Decimal
	MaxFee     decimal.Decimal // zero means no cap
	MinAmount  decimal.Decimal
	MaxAmount  decimal.Decimal
	DailyLimit decimal.Decimal
}

// ComputeFee returns max(minFee, amount*feeRate), capped at MaxFee when set.
func ComputeFee(amount decimal.Decimal, cfg Config) decimal.Decimal {
	fee := amount.Mul(cfg.FeeRate)
	if fee.LessThan(cfg.MinFee) {
		fee = cfg.MinFee
	}
	if cfg.MaxFee.IsPositive() && fee.GreaterThan(cfg.MaxFee) {
		fee = cfg.MaxFee
	}
	return fee
}

// ValidateAmount checks the amount against the configured min/max bounds.
func ValidateAmount(amount decimal.Decimal, cfg Config) error {
	ve := errors.ValidationErrs()
	if amount.LessThan(cfg.MinAmount) {
		ve.Add("amount", fmt.Sprintf("below minimum %s", cfg.MinAmount))
	}
	if amount.GreaterThan(cfg.MaxAmount) {
		ve.Add("amount", fmt.Sprintf("above maximum %s", cfg.MaxAmount))
	}
	if err := ve.Err(); err != nil {
		return errors.ValidationFailedErr(err)
	}
	return nil
}

// ValidateDailyLimit checks the sender's rolling-24h total plus the new
// amount against the daily limit. The prior total is a read-then-decide
// approximation, not a serializable constraint.
func ValidateDailyLimit(priorTotal, amount decimal.Decimal, cfg Config) error {
	if priorTotal.Add(amount).GreaterThan(cfg.DailyLimit) {
		ve := errors.ValidationErrs()
		ve.Add("amount", fmt.Sprintf("daily limit %s exceeded", cfg.DailyLimit))
		return errors.ValidationFailedErr(ve.Err())
	}
	return nil
}
