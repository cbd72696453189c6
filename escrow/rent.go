package escrow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PayRentResult reports how a payment was split and what the pool
// reimbursed.
type PayRentResult struct {
	Payment        RentPayment
	LandlordShare  int64
	PlatformFee    int64
	RefundToTenant int64
	SubsidyPaid    int64
	ReceiptID      string
}

// PayRent appends a rent ledger entry, advances the due date by exactly one
// interval and distributes the payment. Anything above the monthly rent goes
// back to the tenant in the same operation. The processing fee is computed on
// the full payment value.
func (s *Service) PayRent(ctx context.Context, id AgreementID, caller Actor, amount int64, metadataHash string) (PayRentResult, error) {
	var res PayRentResult
	err := s.store.WithAgreement(ctx, id, func(ctx context.Context, txn *Txn) error {
		a := txn.Agreement
		if a.Status != StatusActive {
			return ErrAgreementNotActive
		}
		if caller != a.Tenant {
			return ErrNotTenant
		}
		if amount < a.MonthlyRent {
			return fmt.Errorf("%w: offered %d, monthly rent %d", ErrInsufficientRent, amount, a.MonthlyRent)
		}
		now := s.now()
		if now.After(a.EndDate) {
			return ErrLeaseEnded
		}

		fee := s.schedule.RentFee(amount)
		refund := amount - a.MonthlyRent
		landlordShare := amount - fee - refund
		if landlordShare < 0 {
			return fmt.Errorf("%w: overpayment too large for fee schedule", ErrInvalidTerms)
		}

		periodEnd := a.NextRentDueDate
		payment := RentPayment{
			AgreementID: id,
			Seq:         txn.PaymentCount + 1,
			Amount:      amount,
			PaidDate:    now,
			PeriodStart: periodEnd.Add(-a.RentInterval),
			PeriodEnd:   periodEnd,
			Status:      PaymentPaid,
		}
		txn.AppendPayment(payment)
		a.TotalRentPaid += amount
		a.NextRentDueDate = a.NextRentDueDate.Add(a.RentInterval)

		receiptID, err := s.proofs.RecordPaymentProof(ctx, s.policy.Issuer, PaymentProof{
			Tenant:       a.Tenant,
			Landlord:     a.Landlord,
			AgreementID:  id,
			Amount:       amount,
			PaidDate:     now,
			PeriodStart:  payment.PeriodStart,
			PeriodEnd:    payment.PeriodEnd,
			MetadataHash: metadataHash,
		})
		if err != nil {
			return fmt.Errorf("escrow: record payment proof: %w", err)
		}

		// Transfers run last, subsidy ahead of the rent splits.
		var subsidyPaid int64
		if s.subsidy != nil {
			subsidyPaid, err = s.subsidy.DrawFor(ctx, a.Tenant, s.policy.SubsidyAllowance)
			if err != nil {
				return fmt.Errorf("escrow: draw subsidy: %w", err)
			}
			if subsidyPaid > 0 {
				if err := s.bank.Pay(ctx, a.Tenant, subsidyPaid); err != nil {
					return fmt.Errorf("escrow: pay subsidy: %w", err)
				}
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
		if refund > 0 {
			if err := s.bank.Pay(ctx, a.Tenant, refund); err != nil {
				return fmt.Errorf("escrow: refund overpayment: %w", err)
			}
		}

		res = PayRentResult{
			Payment:        payment,
			LandlordShare:  landlordShare,
			PlatformFee:    fee,
			RefundToTenant: refund,
			SubsidyPaid:    subsidyPaid,
			ReceiptID:      receiptID,
		}
		return nil
	})
	if err != nil {
		return PayRentResult{}, err
	}

	s.metrics.RentPaymentRecorded()
	if res.SubsidyPaid > 0 {
		s.metrics.SubsidyPaid(res.SubsidyPaid)
	}
	s.log.Info("rent paid",
		zap.Int64("agreement_id", int64(id)),
		zap.Int64("amount", res.Payment.Amount),
		zap.Int64("landlord_share", res.LandlordShare),
		zap.Int64("platform_fee", res.PlatformFee),
		zap.Int64("refund", res.RefundToTenant),
		zap.String("receipt_id", res.ReceiptID),
	)
	return res, nil
}

// OverdueResult reports what an overdue check concluded.
type OverdueResult struct {
	DaysOverdue   int
	DisputeRaised bool
}

// CheckRentOverdue probes whether the current rent period has lapsed past the
// grace period. Checks are rate-limited per agreement; three or more whole
// days overdue escalates to a system-raised rent dispute. The cooldown stamp
// is recorded on every successful check whether or not a dispute fired.
func (s *Service) CheckRentOverdue(ctx context.Context, id AgreementID, caller Actor, role Role) (OverdueResult, error) {
	var res OverdueResult
	err := s.store.WithAgreement(ctx, id, func(ctx context.Context, txn *Txn) error {
		a := txn.Agreement
		if role != RoleAdmin && caller != a.Tenant && caller != a.Landlord {
			return ErrNotParty
		}
		if a.Status != StatusActive && a.Status != StatusDisputed {
			return ErrAgreementNotActive
		}
		now := s.now()
		if !txn.LastOverdueCheck.IsZero() && now.Sub(txn.LastOverdueCheck) < s.policy.OverdueCheckCooldown {
			return ErrCooldownActive
		}
		overdueAt := a.NextRentDueDate.Add(a.OverdueGracePeriod)
		if !now.After(overdueAt) {
			return ErrRentNotOverdue
		}

		txn.StampOverdueCheck(now)
		res.DaysOverdue = int(now.Sub(overdueAt) / (24 * time.Hour))
		if res.DaysOverdue >= overdueDisputeDays && a.Status != StatusDisputed {
			if err := a.TransitionTo(StatusDisputed); err != nil {
				return err
			}
			txn.Dispute = &Dispute{
				AgreementID:   id,
				Initiator:     SystemActor,
				Reason:        rentOverdueReason,
				CreatedAt:     now,
				IsRentDispute: true,
			}
			res.DisputeRaised = true
		}
		return nil
	})
	if err != nil {
		return OverdueResult{}, err
	}

	if res.DisputeRaised {
		s.metrics.DisputeOpened("system")
		s.log.Warn("rent dispute auto-raised",
			zap.Int64("agreement_id", int64(id)),
			zap.Int("days_overdue", res.DaysOverdue),
		)
	}
	return res, nil
}
