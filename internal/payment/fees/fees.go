// Package fees computes processor and platform fee breakdowns for donations.
// All amounts are integer minor units (cents). Rates apply to the gross
// donation amount and round down, so the platform never over-collects.
package fees

import (
	"errors"

	"github.com/classfund/classfund/internal/config"
)

const bpsDenominator = 10_000

var (
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrAmountBelowMinimum = errors.New("amount_below_minimum")
)

// Breakdown is the fee split for a single donation.
type Breakdown struct {
	Gross        int64 `json:"gross"`
	ProcessorFee int64 `json:"processor_fee"`
	PlatformFee  int64 `json:"platform_fee"`
	Net          int64 `json:"net"`
	TotalCharge  int64 `json:"total_charge"`
	CoverFees    bool  `json:"cover_fees"`
}

// Calculate derives the fee breakdown for a gross donation amount.
//
// With coverFees the donor is charged gross plus both fees and the campaign
// receives the full gross. Without it the donor is charged exactly gross and
// the campaign receives gross minus both fees; amounts too small to absorb
// the fees are rejected with ErrAmountBelowMinimum.
func Calculate(schedule config.FeeSchedule, gross int64, coverFees bool) (Breakdown, error) {
	if gross <= 0 {
		return Breakdown{}, ErrInvalidAmount
	}

	// Both rates are floored in one pass. Flooring each fee on its own lets
	// both floors step on the same cent, which would make the net amount
	// non-monotone in gross.
	totalFees := schedule.ProcessorFlat + gross*(schedule.ProcessorRateBps+schedule.PlatformRateBps)/bpsDenominator
	platformFee := gross * schedule.PlatformRateBps / bpsDenominator
	processorFee := totalFees - platformFee

	b := Breakdown{
		Gross:        gross,
		ProcessorFee: processorFee,
		PlatformFee:  platformFee,
		CoverFees:    coverFees,
	}
	if coverFees {
		b.Net = gross
		b.TotalCharge = gross + totalFees
	} else {
		b.Net = gross - totalFees
		b.TotalCharge = gross
	}
	if b.Net < 0 {
		return Breakdown{}, ErrAmountBelowMinimum
	}
	return b, nil
}
