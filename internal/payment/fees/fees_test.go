package fees

import (
	"errors"
	"testing"

	"github.com/classfund/classfund/internal/config"
)

func TestCalculateStandardSchedule(t *testing.T) {
	schedule := config.DefaultFeeSchedule()

	b, err := Calculate(schedule, 5000, false)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if b.ProcessorFee != 175 {
		t.Fatalf("expected processor fee 175, got %d", b.ProcessorFee)
	}
	if b.PlatformFee != 250 {
		t.Fatalf("expected platform fee 250, got %d", b.PlatformFee)
	}
	if b.Net != 4575 {
		t.Fatalf("expected net 4575, got %d", b.Net)
	}
	if b.TotalCharge != 5000 {
		t.Fatalf("expected total charge 5000, got %d", b.TotalCharge)
	}
}

func TestCalculateCoverFees(t *testing.T) {
	schedule := config.DefaultFeeSchedule()

	b, err := Calculate(schedule, 5000, true)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if b.Net != 5000 {
		t.Fatalf("expected net 5000, got %d", b.Net)
	}
	if b.TotalCharge != 5425 {
		t.Fatalf("expected total charge 5425, got %d", b.TotalCharge)
	}
}

func TestCalculateRejectsNonPositiveGross(t *testing.T) {
	schedule := config.DefaultFeeSchedule()

	for _, gross := range []int64{0, -1, -5000} {
		if _, err := Calculate(schedule, gross, false); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("gross %d: expected invalid amount, got %v", gross, err)
		}
	}
}

func TestCalculateRoundsDown(t *testing.T) {
	schedule := config.DefaultFeeSchedule()

	// 999 * 790 / 10000 = 78.921 total rate, 999 * 500 / 10000 = 49.95
	b, err := Calculate(schedule, 999, false)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if b.PlatformFee != 49 {
		t.Fatalf("expected platform fee 49, got %d", b.PlatformFee)
	}
	if b.ProcessorFee != 59 {
		t.Fatalf("expected processor fee 59, got %d", b.ProcessorFee)
	}
	if b.Net != 891 {
		t.Fatalf("expected net 891, got %d", b.Net)
	}
}

func TestCalculateRejectsBelowMinimum(t *testing.T) {
	schedule := config.DefaultFeeSchedule()

	// Up to 31 cents the flat fee alone exceeds the gross amount.
	for _, gross := range []int64{1, 30, 31} {
		if _, err := Calculate(schedule, gross, false); !errors.Is(err, ErrAmountBelowMinimum) {
			t.Fatalf("gross %d: expected below minimum, got %v", gross, err)
		}
	}

	// With fees on top the donor absorbs the flat fee, so tiny amounts pass.
	if _, err := Calculate(schedule, 1, true); err != nil {
		t.Fatalf("gross 1 with fees on top: %v", err)
	}
}

func TestCalculateNetNeverDecreasesWithGross(t *testing.T) {
	schedule := config.DefaultFeeSchedule()

	var prevNet int64
	for gross := int64(32); gross <= 20_000; gross++ {
		b, err := Calculate(schedule, gross, false)
		if err != nil {
			t.Fatalf("gross %d: %v", gross, err)
		}
		if b.Net < prevNet {
			t.Fatalf("net decreased at gross %d: %d -> %d", gross, prevNet, b.Net)
		}
		if b.Gross != b.Net+b.ProcessorFee+b.PlatformFee {
			t.Fatalf("gross %d: breakdown does not sum: %+v", gross, b)
		}
		prevNet = b.Net
	}
}
