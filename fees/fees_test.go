package fees

import (
	"errors"
	"testing"
)

func TestNewScheduleRejectsRatesAboveCaps(t *testing.T) {
	if _, err := NewSchedule(6, 1); !errors.Is(err, ErrPlatformFeeOutOfRange) {
		t.Fatalf("expected ErrPlatformFeeOutOfRange, got %v", err)
	}
	if _, err := NewSchedule(2, 4); !errors.Is(err, ErrRentFeeOutOfRange) {
		t.Fatalf("expected ErrRentFeeOutOfRange, got %v", err)
	}
	if _, err := NewSchedule(-1, 1); !errors.Is(err, ErrPlatformFeeOutOfRange) {
		t.Fatalf("expected ErrPlatformFeeOutOfRange for negative rate, got %v", err)
	}
}

func TestSettersEnforceCaps(t *testing.T) {
	s, err := NewSchedule(2, 1)
	if err != nil {
		t.Fatalf("NewSchedule: %v", err)
	}

	if err := s.SetPlatformFeePercent(MaxPlatformFeePercent); err != nil {
		t.Fatalf("set platform fee at cap: %v", err)
	}
	if err := s.SetPlatformFeePercent(MaxPlatformFeePercent + 1); !errors.Is(err, ErrPlatformFeeOutOfRange) {
		t.Fatalf("expected ErrPlatformFeeOutOfRange, got %v", err)
	}
	if got := s.PlatformFeePercent(); got != MaxPlatformFeePercent {
		t.Fatalf("rejected update must not change the rate: got %d", got)
	}

	if err := s.SetRentProcessingFeePercent(MaxRentFeePercent); err != nil {
		t.Fatalf("set rent fee at cap: %v", err)
	}
	if err := s.SetRentProcessingFeePercent(MaxRentFeePercent + 1); !errors.Is(err, ErrRentFeeOutOfRange) {
		t.Fatalf("expected ErrRentFeeOutOfRange, got %v", err)
	}
}

func TestFeeTruncatesTowardZero(t *testing.T) {
	s, err := NewSchedule(3, 1)
	if err != nil {
		t.Fatalf("NewSchedule: %v", err)
	}

	cases := []struct {
		name    string
		deposit int64
		want    int64
	}{
		{"exact multiple", 1000, 30},
		{"sub-unit remainder dropped", 1033, 30},
		{"below one unit", 33, 0},
		{"one unit boundary", 34, 1},
		{"zero deposit", 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.DepositFee(tc.deposit); got != tc.want {
				t.Fatalf("DepositFee(%d) = %d, want %d", tc.deposit, got, tc.want)
			}
		})
	}

	if got := s.RentFee(150); got != 1 {
		t.Fatalf("RentFee(150) at 1%% = %d, want 1", got)
	}
	if got := s.RentFee(99); got != 0 {
		t.Fatalf("RentFee(99) at 1%% = %d, want 0", got)
	}
}

// The ledger never reconciles truncation dust explicitly, so the breakdown
// identities must hold for every rate the caps admit.
func TestBreakdownReconcilesAcrossAllCappedRates(t *testing.T) {
	amounts := []int64{0, 1, 7, 99, 100, 101, 999, 1000, 12345, 1<<40 + 7}

	for platformPct := int64(0); platformPct <= MaxPlatformFeePercent; platformPct++ {
		for rentPct := int64(0); rentPct <= MaxRentFeePercent; rentPct++ {
			s, err := NewSchedule(platformPct, rentPct)
			if err != nil {
				t.Fatalf("NewSchedule(%d, %d): %v", platformPct, rentPct, err)
			}
			for _, deposit := range amounts {
				for _, rent := range amounts {
					b := s.ComputeBreakdown(deposit, rent)
					if (deposit-b.DepositFee)+b.DepositFee != deposit {
						t.Fatalf("deposit split does not reconcile: pct=%d deposit=%d breakdown=%+v", platformPct, deposit, b)
					}
					if b.RentFee+(rent-b.RentFee) != rent {
						t.Fatalf("rent split does not reconcile: pct=%d rent=%d breakdown=%+v", rentPct, rent, b)
					}
					if b.LandlordNet != (deposit-b.DepositFee)+(rent-b.RentFee) {
						t.Fatalf("landlord net mismatch: %+v", b)
					}
					if b.DepositFee < 0 || b.RentFee < 0 {
						t.Fatalf("fee went negative: %+v", b)
					}
					if b.DepositFee > deposit || b.RentFee > rent {
						t.Fatalf("fee exceeds principal: %+v", b)
					}
				}
			}
		}
	}
}

func TestBreakdownUsesCurrentRates(t *testing.T) {
	s, err := NewSchedule(2, 1)
	if err != nil {
		t.Fatalf("NewSchedule: %v", err)
	}
	before := s.ComputeBreakdown(1000, 500)
	if before.DepositFee != 20 || before.RentFee != 5 {
		t.Fatalf("unexpected breakdown before update: %+v", before)
	}

	if err := s.SetPlatformFeePercent(5); err != nil {
		t.Fatalf("SetPlatformFeePercent: %v", err)
	}
	after := s.ComputeBreakdown(1000, 500)
	if after.DepositFee != 50 {
		t.Fatalf("breakdown must follow rate updates: %+v", after)
	}
	if after.LandlordNet != (1000-50)+(500-5) {
		t.Fatalf("landlord net mismatch after update: %+v", after)
	}
}
