package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"rentledger/escrow"
	"rentledger/fees"
	"rentledger/metrics"
)

var (
	// ErrNotParty is returned when the caller is neither tenant nor landlord.
	ErrNotParty = errors.New("dispute: caller is not a party to the agreement")
	// ErrNotAdmin is returned when resolution is attempted without the admin role.
	ErrNotAdmin = errors.New("dispute: admin role required")
	// ErrEmptyReason is returned when a dispute is raised without a reason.
	ErrEmptyReason = errors.New("dispute: reason required")
	// ErrEmptyEvidence is returned when an evidence submission carries no reference.
	ErrEmptyEvidence = errors.New("dispute: evidence reference required")
	// ErrWrongState is returned when a dispute is raised outside Pending or Active.
	ErrWrongState = errors.New("dispute: agreement not open to disputes")
	// ErrNotDisputed is returned when evidence or resolution targets a non-disputed agreement.
	ErrNotDisputed = errors.New("dispute: agreement not disputed")
	// ErrAlreadyResolved is returned on a second resolution attempt.
	ErrAlreadyResolved = errors.New("dispute: already resolved")
)

// Arbitrator runs the dispute lifecycle over the shared agreement store:
// parties raise and document disputes, admins rule on them, and the ruling
// settles the deposit.
type Arbitrator struct {
	store           escrow.Store
	bank            escrow.Bank
	schedule        *fees.Schedule
	platformAccount escrow.Actor
	log             *zap.Logger
	metrics         *metrics.Metrics
	now             func() time.Time
}

func NewArbitrator(store escrow.Store, bank escrow.Bank, schedule *fees.Schedule) *Arbitrator {
	return &Arbitrator{
		store:           store,
		bank:            bank,
		schedule:        schedule,
		platformAccount: "platform",
		log:             zap.NewNop(),
		now:             time.Now,
	}
}

func (a *Arbitrator) WithPlatformAccount(account escrow.Actor) *Arbitrator {
	a.platformAccount = account
	return a
}

func (a *Arbitrator) WithClock(now func() time.Time) *Arbitrator {
	a.now = now
	return a
}

func (a *Arbitrator) WithLogger(log *zap.Logger) *Arbitrator {
	a.log = log
	return a
}

func (a *Arbitrator) WithMetrics(m *metrics.Metrics) *Arbitrator {
	a.metrics = m
	return a
}

// Raise opens a dispute on a pending or active agreement. The evidence list
// starts with evidenceRef when one is given.
func (a *Arbitrator) Raise(ctx context.Context, id escrow.AgreementID, caller escrow.Actor, reason, evidenceRef string) (escrow.Dispute, error) {
	var out escrow.Dispute
	err := a.store.WithAgreement(ctx, id, func(ctx context.Context, txn *escrow.Txn) error {
		ag := txn.Agreement
		if caller != ag.Tenant && caller != ag.Landlord {
			return ErrNotParty
		}
		if ag.Status != escrow.StatusPending && ag.Status != escrow.StatusActive {
			return ErrWrongState
		}
		if reason == "" {
			return ErrEmptyReason
		}
		if err := ag.TransitionTo(escrow.StatusDisputed); err != nil {
			return err
		}

		d := &escrow.Dispute{
			AgreementID: id,
			Initiator:   caller,
			Reason:      reason,
			CreatedAt:   a.now(),
		}
		if evidenceRef != "" {
			d.Evidence = []string{evidenceRef}
		}
		txn.Dispute = d
		out = *d
		out.Evidence = append([]string(nil), d.Evidence...)
		return nil
	})
	if err != nil {
		return escrow.Dispute{}, err
	}

	a.metrics.DisputeOpened("party")
	a.log.Info("dispute raised",
		zap.Int64("agreement_id", int64(id)),
		zap.String("initiator", string(caller)),
	)
	return out, nil
}

// SubmitEvidence appends one reference to an open dispute.
func (a *Arbitrator) SubmitEvidence(ctx context.Context, id escrow.AgreementID, caller escrow.Actor, evidenceRef string) (escrow.Dispute, error) {
	var out escrow.Dispute
	err := a.store.WithAgreement(ctx, id, func(ctx context.Context, txn *escrow.Txn) error {
		ag := txn.Agreement
		if caller != ag.Tenant && caller != ag.Landlord {
			return ErrNotParty
		}
		if ag.Status != escrow.StatusDisputed {
			return ErrNotDisputed
		}
		d := txn.Dispute
		if d == nil {
			return escrow.ErrDisputeNotFound
		}
		if d.Resolved() {
			return ErrAlreadyResolved
		}
		if evidenceRef == "" {
			return ErrEmptyEvidence
		}

		d.Evidence = append(d.Evidence, evidenceRef)
		out = *d
		out.Evidence = append([]string(nil), d.Evidence...)
		return nil
	})
	if err != nil {
		return escrow.Dispute{}, err
	}
	return out, nil
}

// Ruling reports how a resolved dispute settled the deposit.
type Ruling struct {
	Winner        escrow.Actor
	Status        escrow.Status
	TenantRefund  int64
	LandlordShare int64
	PlatformFee   int64
}

// Resolve rules on an open dispute exactly once. A tenant refund returns the
// full deposit with no fee taken; a landlord release deducts the platform fee
// as in a normal completion.
func (a *Arbitrator) Resolve(ctx context.Context, id escrow.AgreementID, caller escrow.Actor, role escrow.Role, refundTenant bool) (Ruling, error) {
	var out Ruling
	err := a.store.WithAgreement(ctx, id, func(ctx context.Context, txn *escrow.Txn) error {
		ag := txn.Agreement
		if role != escrow.RoleAdmin {
			return ErrNotAdmin
		}
		d := txn.Dispute
		if d.Resolved() {
			return ErrAlreadyResolved
		}
		if ag.Status != escrow.StatusDisputed {
			return ErrNotDisputed
		}
		if d == nil {
			return escrow.ErrDisputeNotFound
		}

		if refundTenant {
			if err := ag.TransitionTo(escrow.StatusTerminated); err != nil {
				return err
			}
			d.Resolution = &escrow.Resolution{
				Winner:       ag.Tenant,
				RefundTenant: true,
				ResolvedAt:   a.now(),
			}
			if err := a.bank.Pay(ctx, ag.Tenant, ag.DepositAmount); err != nil {
				return fmt.Errorf("dispute: refund tenant: %w", err)
			}
			out = Ruling{
				Winner:       ag.Tenant,
				Status:       ag.Status,
				TenantRefund: ag.DepositAmount,
			}
			return nil
		}

		if err := ag.TransitionTo(escrow.StatusCompleted); err != nil {
			return err
		}
		d.Resolution = &escrow.Resolution{
			Winner:     ag.Landlord,
			ResolvedAt: a.now(),
		}
		fee := a.schedule.DepositFee(ag.DepositAmount)
		share := ag.DepositAmount - fee
		if fee > 0 {
			if err := a.bank.Pay(ctx, a.platformAccount, fee); err != nil {
				return fmt.Errorf("dispute: pay platform fee: %w", err)
			}
		}
		if share > 0 {
			if err := a.bank.Pay(ctx, ag.Landlord, share); err != nil {
				return fmt.Errorf("dispute: pay landlord: %w", err)
			}
		}
		out = Ruling{
			Winner:        ag.Landlord,
			Status:        ag.Status,
			LandlordShare: share,
			PlatformFee:   fee,
		}
		return nil
	})
	if err != nil {
		return Ruling{}, err
	}

	outcome := "landlord_release"
	if refundTenant {
		outcome = "tenant_refund"
	}
	a.metrics.DisputeResolved(outcome)
	a.log.Info("dispute resolved",
		zap.Int64("agreement_id", int64(id)),
		zap.String("winner", string(out.Winner)),
		zap.String("outcome", outcome),
	)
	return out, nil
}

// Get returns the dispute record for an agreement.
func (a *Arbitrator) Get(ctx context.Context, id escrow.AgreementID) (escrow.Dispute, error) {
	return a.store.GetDispute(ctx, id)
}
