package fees

import (
	"errors"
	"sync"
)

// Fee percentages are bounded so an operator cannot quietly raise them past
// the advertised ceilings.
const (
	MaxPlatformFeePercent = 5
	MaxRentFeePercent     = 3
)

var (
	// ErrPlatformFeeOutOfRange is returned when a platform fee update falls outside [0, MaxPlatformFeePercent].
	ErrPlatformFeeOutOfRange = errors.New("fees: platform fee percent out of range")
	// ErrRentFeeOutOfRange is returned when a rent processing fee update falls outside [0, MaxRentFeePercent].
	ErrRentFeeOutOfRange = errors.New("fees: rent processing fee percent out of range")
)

// Schedule holds the current global fee percentages. Reads and updates are
// safe for concurrent use.
type Schedule struct {
	mu             sync.RWMutex
	platformPct    int64
	rentProcessPct int64
}

// NewSchedule validates the initial percentages against the caps. A bad
// initial rate is a construction failure, not a runtime one.
func NewSchedule(platformPct, rentProcessPct int64) (*Schedule, error) {
	s := &Schedule{}
	if err := s.SetPlatformFeePercent(platformPct); err != nil {
		return nil, err
	}
	if err := s.SetRentProcessingFeePercent(rentProcessPct); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Schedule) SetPlatformFeePercent(pct int64) error {
	if pct < 0 || pct > MaxPlatformFeePercent {
		return ErrPlatformFeeOutOfRange
	}
	s.mu.Lock()
	s.platformPct = pct
	s.mu.Unlock()
	return nil
}

func (s *Schedule) SetRentProcessingFeePercent(pct int64) error {
	if pct < 0 || pct > MaxRentFeePercent {
		return ErrRentFeeOutOfRange
	}
	s.mu.Lock()
	s.rentProcessPct = pct
	s.mu.Unlock()
	return nil
}

func (s *Schedule) PlatformFeePercent() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.platformPct
}

func (s *Schedule) RentProcessingFeePercent() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rentProcessPct
}

// DepositFee computes the platform cut of a deposit amount. Integer division
// truncates toward zero; the sub-unit remainder stays with the platform.
func (s *Schedule) DepositFee(deposit int64) int64 {
	return deposit * s.PlatformFeePercent() / 100
}

// RentFee computes the processing cut of a rent payment amount with the same
// truncation rule as DepositFee.
func (s *Schedule) RentFee(amount int64) int64 {
	return amount * s.RentProcessingFeePercent() / 100
}

// Breakdown is derived on demand and never persisted.
type Breakdown struct {
	DepositFee  int64 `json:"deposit_fee"`
	RentFee     int64 `json:"rent_fee"`
	LandlordNet int64 `json:"landlord_net"`
}

// ComputeBreakdown splits a deposit and cumulative rent figure into the
// platform and landlord shares at the current rates.
func (s *Schedule) ComputeBreakdown(deposit, totalRentPaid int64) Breakdown {
	depositFee := s.DepositFee(deposit)
	rentFee := s.RentFee(totalRentPaid)
	return Breakdown{
		DepositFee:  depositFee,
		RentFee:     rentFee,
		LandlordNet: (deposit - depositFee) + (totalRentPaid - rentFee),
	}
}
