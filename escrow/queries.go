package escrow

import (
	"context"
	"fmt"

	"rentledger/fees"
)

// GetAgreement returns a copy of the agreement record.
func (s *Service) GetAgreement(ctx context.Context, id AgreementID) (RentalAgreement, error) {
	return s.store.GetAgreement(ctx, id)
}

// GetDispute returns the agreement's dispute record if one exists.
func (s *Service) GetDispute(ctx context.Context, id AgreementID) (Dispute, error) {
	return s.store.GetDispute(ctx, id)
}

// ListAgreements returns the agreements indexed under the actor for the given
// party role.
func (s *Service) ListAgreements(ctx context.Context, actor Actor, role Role) ([]RentalAgreement, error) {
	return s.store.ListByActor(ctx, actor, role)
}

// ListPayments returns the agreement's rent ledger in sequence order.
func (s *Service) ListPayments(ctx context.Context, id AgreementID) ([]RentPayment, error) {
	return s.store.ListPayments(ctx, id)
}

// FeePreview computes the current fee breakdown for an agreement without
// touching any state.
func (s *Service) FeePreview(ctx context.Context, id AgreementID) (fees.Breakdown, error) {
	a, err := s.store.GetAgreement(ctx, id)
	if err != nil {
		return fees.Breakdown{}, err
	}
	return s.schedule.ComputeBreakdown(a.DepositAmount, a.TotalRentPaid), nil
}

// CreationQuote is what a prospective tenant learns about a property before
// committing a deposit.
type CreationQuote struct {
	PropertyID PropertyID
	Eligible   bool
	Owner      Actor
	ListingFee int64
}

// Quote resolves a property's eligibility, owner and the registry listing fee
// in one round.
func (s *Service) Quote(ctx context.Context, id PropertyID) (CreationQuote, error) {
	eligible, err := s.oracle.IsEligible(ctx, id)
	if err != nil {
		return CreationQuote{}, fmt.Errorf("escrow: check eligibility: %w", err)
	}
	q := CreationQuote{PropertyID: id, Eligible: eligible}
	if !eligible {
		return q, nil
	}

	owner, err := s.oracle.OwnerOf(ctx, id)
	if err != nil {
		return CreationQuote{}, fmt.Errorf("escrow: resolve owner: %w", err)
	}
	fee, err := s.oracle.ListingFee(ctx)
	if err != nil {
		return CreationQuote{}, fmt.Errorf("escrow: resolve listing fee: %w", err)
	}
	q.Owner = owner
	q.ListingFee = fee
	return q, nil
}
