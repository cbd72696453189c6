package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"rentledger/fees"
	"rentledger/metrics"
)

var (
	// ErrInvalidTerms covers malformed creation or payment input.
	ErrInvalidTerms = errors.New("escrow: invalid terms")
	// ErrPropertyNotEligible is returned when the registry reports the property as not rentable.
	ErrPropertyNotEligible = errors.New("escrow: property not eligible")
	// ErrLandlordMismatch is returned when the named landlord does not own the property.
	ErrLandlordMismatch = errors.New("escrow: landlord does not own property")
	// ErrNotTenant is returned when a tenant-only operation is called by anyone else.
	ErrNotTenant = errors.New("escrow: caller is not the tenant")
	// ErrNotLandlord is returned when a landlord-only confirmation is called by anyone else.
	ErrNotLandlord = errors.New("escrow: caller is not the landlord")
	// ErrNotParty is returned when the caller is neither a party to the agreement nor an admin.
	ErrNotParty = errors.New("escrow: caller is not a party to the agreement")
	// ErrNotAdmin is returned for admin-only operations.
	ErrNotAdmin = errors.New("escrow: admin role required")
	// ErrAlreadyConfirmed is returned on a repeated confirmation by the same party.
	ErrAlreadyConfirmed = errors.New("escrow: already confirmed")
	// ErrAgreementNotPending is returned when confirmation or cancellation hits a non-pending agreement.
	ErrAgreementNotPending = errors.New("escrow: agreement not pending")
	// ErrAgreementNotActive is returned when an operation requires a live agreement.
	ErrAgreementNotActive = errors.New("escrow: agreement not active")
	// ErrInsufficientRent is returned when a payment is below the monthly rent.
	ErrInsufficientRent = errors.New("escrow: payment below monthly rent")
	// ErrLeaseEnded is returned when rent is offered past the lease end date.
	ErrLeaseEnded = errors.New("escrow: lease period has ended")
	// ErrCooldownActive is returned when an overdue check repeats within the cooldown window.
	ErrCooldownActive = errors.New("escrow: overdue check cooldown active")
	// ErrRentNotOverdue is returned when the grace period has not elapsed.
	ErrRentNotOverdue = errors.New("escrow: rent not overdue")
	// ErrDepositLocked is returned when release is attempted before the dispute window and lease have run out.
	ErrDepositLocked = errors.New("escrow: dispute window or lease period still open")
	// ErrRefundTooLarge is returned when a termination refund exceeds deposit plus rent paid.
	ErrRefundTooLarge = errors.New("escrow: refund exceeds recoverable total")
)

// Rent must be overdue by at least this many whole days past the grace period
// before an overdue check escalates to a dispute.
const overdueDisputeDays = 3

const rentOverdueReason = "rent overdue beyond grace period"

// PropertyOracle is the registry's eligibility and ownership view, consulted
// synchronously during agreement creation.
type PropertyOracle interface {
	IsEligible(ctx context.Context, id PropertyID) (bool, error)
	OwnerOf(ctx context.Context, id PropertyID) (Actor, error)
	ListingFee(ctx context.Context) (int64, error)
}

// Bank is the atomic value-transfer primitive. A failed Pay aborts the whole
// enclosing operation.
type Bank interface {
	Pay(ctx context.Context, to Actor, amount int64) error
}

// AgreementProof is the payload recorded with the receipt ledger at creation
// and completion.
type AgreementProof struct {
	Tenant        Actor
	Landlord      Actor
	PropertyID    PropertyID
	DepositAmount int64
	RentAmount    int64
	StartDate     time.Time
	EndDate       time.Time
	MetadataHash  string
}

// PaymentProof is the payload recorded with the receipt ledger per rent payment.
type PaymentProof struct {
	Tenant       Actor
	Landlord     Actor
	AgreementID  AgreementID
	Amount       int64
	PaidDate     time.Time
	PeriodStart  time.Time
	PeriodEnd    time.Time
	MetadataHash string
}

// ProofRecorder is the receipt ledger sink. Implementations must reject any
// issuer other than the single authorized one.
type ProofRecorder interface {
	RecordAgreementProof(ctx context.Context, issuer Actor, proof AgreementProof) (string, error)
	RecordPaymentProof(ctx context.Context, issuer Actor, proof PaymentProof) (string, error)
}

// SubsidyDrawer reimburses execution costs for eligible tenants out of a
// shared pool. DrawFor returns the amount actually drawn, zero when the
// tenant is ineligible or the pool is empty.
type SubsidyDrawer interface {
	DrawFor(ctx context.Context, tenant Actor, limit int64) (int64, error)
}

// Policy carries the deployment-tunable knobs of the escrow service.
type Policy struct {
	// DisputePeriod is the window after activation during which funds stay locked.
	DisputePeriod time.Duration
	// DefaultGracePeriod is stamped on new agreements as OverdueGracePeriod.
	DefaultGracePeriod time.Duration
	// OverdueCheckCooldown bounds how often overdue checks may run per agreement.
	OverdueCheckCooldown time.Duration
	// SubsidyAllowance is the per-payment execution cost cap refunded from the pool.
	SubsidyAllowance int64
	// Issuer is this service's identity towards the receipt ledger.
	Issuer Actor
	// PlatformAccount receives every fee cut.
	PlatformAccount Actor
}

func DefaultPolicy() Policy {
	return Policy{
		DisputePeriod:        7 * 24 * time.Hour,
		DefaultGracePeriod:   3 * 24 * time.Hour,
		OverdueCheckCooldown: 24 * time.Hour,
		SubsidyAllowance:     2,
		Issuer:               "escrow-service",
		PlatformAccount:      "platform",
	}
}

// Service owns every lifecycle operation on rental agreements. All mutations
// run through the store's per-agreement transactional closure; value
// transfers are the last effects inside it.
type Service struct {
	store    Store
	oracle   PropertyOracle
	bank     Bank
	proofs   ProofRecorder
	subsidy  SubsidyDrawer
	schedule *fees.Schedule
	policy   Policy
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(store Store, oracle PropertyOracle, bank Bank, proofs ProofRecorder, schedule *fees.Schedule) *Service {
	return &Service{
		store:    store,
		oracle:   oracle,
		bank:     bank,
		proofs:   proofs,
		schedule: schedule,
		policy:   DefaultPolicy(),
		log:      zap.NewNop(),
		now:      time.Now,
	}
}

func (s *Service) WithPolicy(p Policy) *Service {
	s.policy = p
	return s
}

func (s *Service) WithSubsidy(pool SubsidyDrawer) *Service {
	s.subsidy = pool
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithLogger(log *zap.Logger) *Service {
	s.log = log
	return s
}

func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

// CreateParams are the caller-supplied agreement terms. The caller becomes
// the tenant.
type CreateParams struct {
	PropertyID    PropertyID
	Landlord      Actor
	DepositAmount int64
	MonthlyRent   int64
	RentInterval  time.Duration
	StartDate     time.Time
	EndDate       time.Time
	MetadataHash  string
}

// CreateAgreement validates the terms against the property registry, persists
// a Pending agreement and records the agreement proof.
func (s *Service) CreateAgreement(ctx context.Context, tenant Actor, p CreateParams) (RentalAgreement, error) {
	now := s.now()
	if tenant == "" {
		return RentalAgreement{}, fmt.Errorf("%w: missing tenant", ErrInvalidTerms)
	}
	if p.DepositAmount <= 0 {
		return RentalAgreement{}, fmt.Errorf("%w: deposit must be positive", ErrInvalidTerms)
	}
	if p.MonthlyRent <= 0 {
		return RentalAgreement{}, fmt.Errorf("%w: monthly rent must be positive", ErrInvalidTerms)
	}
	if p.RentInterval < MinRentInterval || p.RentInterval > MaxRentInterval {
		return RentalAgreement{}, fmt.Errorf("%w: rent interval out of bounds", ErrInvalidTerms)
	}
	if p.MetadataHash == "" {
		return RentalAgreement{}, fmt.Errorf("%w: missing metadata hash", ErrInvalidTerms)
	}
	if !p.EndDate.After(p.StartDate) {
		return RentalAgreement{}, fmt.Errorf("%w: end date must be after start date", ErrInvalidTerms)
	}
	if p.StartDate.Before(now) {
		return RentalAgreement{}, fmt.Errorf("%w: start date in the past", ErrInvalidTerms)
	}
	if p.Landlord == "" || p.Landlord == tenant {
		return RentalAgreement{}, fmt.Errorf("%w: landlord and tenant must differ", ErrInvalidTerms)
	}

	eligible, err := s.oracle.IsEligible(ctx, p.PropertyID)
	if err != nil {
		return RentalAgreement{}, fmt.Errorf("escrow: check eligibility: %w", err)
	}
	if !eligible {
		return RentalAgreement{}, ErrPropertyNotEligible
	}
	owner, err := s.oracle.OwnerOf(ctx, p.PropertyID)
	if err != nil {
		return RentalAgreement{}, fmt.Errorf("escrow: resolve owner: %w", err)
	}
	if owner != p.Landlord {
		return RentalAgreement{}, ErrLandlordMismatch
	}

	a := &RentalAgreement{
		PropertyID:         p.PropertyID,
		Tenant:             tenant,
		Landlord:           p.Landlord,
		DepositAmount:      p.DepositAmount,
		MonthlyRent:        p.MonthlyRent,
		RentInterval:       p.RentInterval,
		StartDate:          p.StartDate,
		EndDate:            p.EndDate,
		CreatedAt:          now,
		Status:             StatusPending,
		MetadataHash:       p.MetadataHash,
		NextRentDueDate:    p.StartDate.Add(p.RentInterval),
		OverdueGracePeriod: s.policy.DefaultGracePeriod,
	}
	if _, err := s.store.CreateAgreement(ctx, a); err != nil {
		return RentalAgreement{}, err
	}

	receiptID, err := s.proofs.RecordAgreementProof(ctx, s.policy.Issuer, AgreementProof{
		Tenant:        a.Tenant,
		Landlord:      a.Landlord,
		PropertyID:    a.PropertyID,
		DepositAmount: a.DepositAmount,
		RentAmount:    a.MonthlyRent,
		StartDate:     a.StartDate,
		EndDate:       a.EndDate,
		MetadataHash:  a.MetadataHash,
	})
	if err != nil {
		return RentalAgreement{}, fmt.Errorf("escrow: record agreement proof: %w", err)
	}

	s.metrics.AgreementCreated()
	s.log.Info("agreement created",
		zap.Int64("agreement_id", int64(a.ID)),
		zap.Int64("property_id", int64(a.PropertyID)),
		zap.Int64("deposit", a.DepositAmount),
		zap.String("receipt_id", receiptID),
	)
	return *a.clone(), nil
}

// TenantConfirm marks the tenant's acceptance of a pending agreement.
func (s *Service) TenantConfirm(ctx context.Context, id AgreementID, caller Actor) (RentalAgreement, error) {
	return s.confirm(ctx, id, caller, RoleTenant)
}

// LandlordConfirm marks the landlord's acceptance of a pending agreement.
func (s *Service) LandlordConfirm(ctx context.Context, id AgreementID, caller Actor) (RentalAgreement, error) {
	return s.confirm(ctx, id, caller, RoleLandlord)
}

func (s *Service) confirm(ctx context.Context, id AgreementID, caller Actor, side Role) (RentalAgreement, error) {
	var out RentalAgreement
	err := s.store.WithAgreement(ctx, id, func(ctx context.Context, txn *Txn) error {
		a := txn.Agreement
		if a.Status != StatusPending {
			return ErrAgreementNotPending
		}
		switch side {
		case RoleTenant:
			if caller != a.Tenant {
				return ErrNotTenant
			}
			if a.TenantConfirmed {
				return ErrAlreadyConfirmed
			}
			a.TenantConfirmed = true
		case RoleLandlord:
			if caller != a.Landlord {
				return ErrNotLandlord
			}
			if a.LandlordConfirmed {
				return ErrAlreadyConfirmed
			}
			a.LandlordConfirmed = true
		}

		if a.TenantConfirmed && a.LandlordConfirmed {
			if err := a.TransitionTo(StatusActive); err != nil {
				return err
			}
			a.DisputeDeadline = s.now().Add(s.policy.DisputePeriod)
		}
		out = *a.clone()
		return nil
	})
	if err != nil {
		return RentalAgreement{}, err
	}

	if out.Status == StatusActive {
		s.metrics.AgreementActivated()
		s.log.Info("agreement active",
			zap.Int64("agreement_id", int64(id)),
			zap.Time("dispute_deadline", out.DisputeDeadline),
		)
	}
	return out, nil
}
