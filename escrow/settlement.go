package escrow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"rentledger/fees"
)

// SettlementResult reports how escrowed funds were distributed when an
// agreement reached a terminal state.
type SettlementResult struct {
	Status        Status
	TenantRefund  int64
	LandlordShare int64
	PlatformFee   int64
	Breakdown     fees.Breakdown
	ReceiptID     string
}

// ReleaseDeposit settles an agreement whose lease and dispute window have both
// run out: the deposit goes to the landlord minus the platform fee and the
// agreement completes. A second release fails the lifecycle check.
func (s *Service) ReleaseDeposit(ctx context.Context, id AgreementID, caller Actor, role Role) (SettlementResult, error) {
	var res SettlementResult
	err := s.store.WithAgreement(ctx, id, func(ctx context.Context, txn *Txn) error {
		a := txn.Agreement
		if role != RoleAdmin && caller != a.Tenant && caller != a.Landlord {
			return ErrNotParty
		}
		if a.Status != StatusActive && a.Status != StatusCompleted {
			return ErrAgreementNotActive
		}
		now := s.now()
		if now.Before(a.DisputeDeadline) || now.Before(a.EndDate) {
			return ErrDepositLocked
		}
		if err := a.TransitionTo(StatusCompleted); err != nil {
			return err
		}

		fee := s.schedule.DepositFee(a.DepositAmount)
		landlordShare := a.DepositAmount - fee

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
			return fmt.Errorf("escrow: record completion proof: %w", err)
		}

		if fee > 0 {
			if err := s.bank.Pay(ctx, s.policy.PlatformAccount, fee); err != nil {
				return fmt.Errorf("escrow: pay platform fee: %w", err)
			}
		}
		if landlordShare > 0 {
			if err := s.bank.Pay(ctx, a.Landlord, landlordShare); err != nil {
				return fmt.Errorf("escrow: pay landlord: %w", err)
			}
		}

		res = SettlementResult{
			Status:        a.Status,
			LandlordShare: landlordShare,
			PlatformFee:   fee,
			Breakdown:     s.schedule.ComputeBreakdown(a.DepositAmount, a.TotalRentPaid),
			ReceiptID:     receiptID,
		}
		return nil
	})
	if err != nil {
		return SettlementResult{}, err
	}

	s.metrics.DepositReleased()
	s.log.Info("deposit released",
		zap.Int64("agreement_id", int64(id)),
		zap.Int64("landlord_share", res.LandlordShare),
		zap.Int64("platform_fee", res.PlatformFee),
		zap.Int64("breakdown_deposit_fee", res.Breakdown.DepositFee),
		zap.Int64("breakdown_rent_fee", res.Breakdown.RentFee),
		zap.Int64("breakdown_landlord_net", res.Breakdown.LandlordNet),
	)
	return res, nil
}

// CancelAgreement lets the tenant back out of an agreement the parties never
// both confirmed. The full deposit returns to the tenant.
func (s *Service) CancelAgreement(ctx context.Context, id AgreementID, caller Actor) (SettlementResult, error) {
	var res SettlementResult
	err := s.store.WithAgreement(ctx, id, func(ctx context.Context, txn *Txn) error {
		a := txn.Agreement
		if caller != a.Tenant {
			return ErrNotTenant
		}
		if a.Status != StatusPending {
			return ErrAgreementNotPending
		}
		if err := a.TransitionTo(StatusCancelled); err != nil {
			return err
		}

		if err := s.bank.Pay(ctx, a.Tenant, a.DepositAmount); err != nil {
			return fmt.Errorf("escrow: refund deposit: %w", err)
		}
		res = SettlementResult{
			Status:       a.Status,
			TenantRefund: a.DepositAmount,
		}
		return nil
	})
	if err != nil {
		return SettlementResult{}, err
	}

	s.metrics.AgreementCancelled()
	s.log.Info("agreement cancelled",
		zap.Int64("agreement_id", int64(id)),
		zap.Int64("refund", res.TenantRefund),
	)
	return res, nil
}

// TerminateAgreement is the admin lever for ending a live or disputed
// agreement early. The refund figure is computed off-ledger and trusted here
// up to the recoverable total; the deposit remainder goes to the landlord
// minus the platform fee.
func (s *Service) TerminateAgreement(ctx context.Context, id AgreementID, caller Actor, role Role, proRatedRefund int64) (SettlementResult, error) {
	var res SettlementResult
	err := s.store.WithAgreement(ctx, id, func(ctx context.Context, txn *Txn) error {
		a := txn.Agreement
		if role != RoleAdmin {
			return ErrNotAdmin
		}
		if proRatedRefund < 0 {
			return fmt.Errorf("%w: refund must not be negative", ErrInvalidTerms)
		}
		if proRatedRefund > a.DepositAmount+a.TotalRentPaid {
			return ErrRefundTooLarge
		}
		if err := a.TransitionTo(StatusTerminated); err != nil {
			return err
		}

		remainder := a.DepositAmount - proRatedRefund
		if remainder < 0 {
			remainder = 0
		}
		fee := s.schedule.DepositFee(remainder)
		landlordShare := remainder - fee

		if proRatedRefund > 0 {
			if err := s.bank.Pay(ctx, a.Tenant, proRatedRefund); err != nil {
				return fmt.Errorf("escrow: refund tenant: %w", err)
			}
		}
		if fee > 0 {
			if err := s.bank.Pay(ctx, s.policy.PlatformAccount, fee); err != nil {
				return fmt.Errorf("escrow: pay platform fee: %w", err)
			}
		}
		if landlordShare > 0 {
			if err := s.bank.Pay(ctx, a.Landlord, landlordShare); err != nil {
				return fmt.Errorf("escrow: pay landlord: %w", err)
			}
		}

		res = SettlementResult{
			Status:        a.Status,
			TenantRefund:  proRatedRefund,
			LandlordShare: landlordShare,
			PlatformFee:   fee,
		}
		return nil
	})
	if err != nil {
		return SettlementResult{}, err
	}

	s.metrics.AgreementTerminated()
	s.log.Info("agreement terminated",
		zap.Int64("agreement_id", int64(id)),
		zap.String("admin", string(caller)),
		zap.Int64("tenant_refund", res.TenantRefund),
		zap.Int64("landlord_share", res.LandlordShare),
	)
	return res, nil
}
