package receipts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rentledger/escrow"
)

var (
	// ErrInvalidIssuer is returned when Authorize is called with an empty identity.
	ErrInvalidIssuer = errors.New("receipts: invalid issuer")
	// ErrIssuerAlreadySet is returned on a second Authorize call.
	ErrIssuerAlreadySet = errors.New("receipts: issuer already set")
	// ErrUnauthorizedIssuer is returned when anyone but the authorized issuer records a proof.
	ErrUnauthorizedIssuer = errors.New("receipts: unauthorized issuer")
)

// Ledger is the append-only proof log. Exactly one issuer identity, set once
// at bootstrap, may record proofs; everything else is rejected.
type Ledger struct {
	mu     sync.RWMutex
	issuer escrow.Actor

	store Store
	idgen func() string
	now   func() time.Time
	log   *zap.Logger
}

func NewLedger(store Store) *Ledger {
	return &Ledger{
		store: store,
		idgen: uuid.NewString,
		now:   time.Now,
		log:   zap.NewNop(),
	}
}

func (l *Ledger) WithIDGenerator(gen func() string) *Ledger {
	l.idgen = gen
	return l
}

func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) WithLogger(log *zap.Logger) *Ledger {
	l.log = log
	return l
}

// Authorize fixes the single identity allowed to record proofs. It succeeds
// exactly once per ledger.
func (l *Ledger) Authorize(issuer escrow.Actor) error {
	if issuer == "" {
		return ErrInvalidIssuer
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.issuer != "" {
		return ErrIssuerAlreadySet
	}
	l.issuer = issuer
	return nil
}

func (l *Ledger) checkIssuer(issuer escrow.Actor) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.issuer == "" || issuer != l.issuer {
		return ErrUnauthorizedIssuer
	}
	return nil
}

// RecordAgreementProof appends an agreement proof and returns the receipt id.
func (l *Ledger) RecordAgreementProof(ctx context.Context, issuer escrow.Actor, proof escrow.AgreementProof) (string, error) {
	if err := l.checkIssuer(issuer); err != nil {
		return "", err
	}

	r := Receipt{
		ID:           l.idgen(),
		Kind:         KindAgreement,
		Tenant:       proof.Tenant,
		Landlord:     proof.Landlord,
		PropertyID:   proof.PropertyID,
		Amount:       proof.DepositAmount,
		RentAmount:   proof.RentAmount,
		StartDate:    proof.StartDate,
		EndDate:      proof.EndDate,
		MetadataHash: proof.MetadataHash,
		IssuedAt:     l.now(),
	}
	if err := l.store.Append(ctx, r); err != nil {
		return "", fmt.Errorf("receipts: append agreement proof: %w", err)
	}
	l.log.Debug("agreement proof recorded", zap.String("receipt_id", r.ID))
	return r.ID, nil
}

// RecordPaymentProof appends a payment proof and returns the receipt id.
func (l *Ledger) RecordPaymentProof(ctx context.Context, issuer escrow.Actor, proof escrow.PaymentProof) (string, error) {
	if err := l.checkIssuer(issuer); err != nil {
		return "", err
	}

	r := Receipt{
		ID:           l.idgen(),
		Kind:         KindPayment,
		Tenant:       proof.Tenant,
		Landlord:     proof.Landlord,
		AgreementID:  proof.AgreementID,
		Amount:       proof.Amount,
		PaidDate:     proof.PaidDate,
		PeriodStart:  proof.PeriodStart,
		PeriodEnd:    proof.PeriodEnd,
		MetadataHash: proof.MetadataHash,
		IssuedAt:     l.now(),
	}
	if err := l.store.Append(ctx, r); err != nil {
		return "", fmt.Errorf("receipts: append payment proof: %w", err)
	}
	l.log.Debug("payment proof recorded", zap.String("receipt_id", r.ID))
	return r.ID, nil
}

// ListByTenant returns every receipt issued to the tenant, oldest first.
func (l *Ledger) ListByTenant(ctx context.Context, tenant escrow.Actor) ([]Receipt, error) {
	return l.store.ListByTenant(ctx, tenant)
}

// ListByAgreement returns every receipt recorded against the agreement,
// oldest first. Agreement-kind receipts predate the id assignment and are
// keyed by zero, so this lists payment proofs in practice.
func (l *Ledger) ListByAgreement(ctx context.Context, id escrow.AgreementID) ([]Receipt, error) {
	return l.store.ListByAgreement(ctx, id)
}
