package escrow

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAgreementNotFound is returned when no agreement exists for the id.
	ErrAgreementNotFound = errors.New("escrow: agreement not found")
	// ErrDisputeNotFound is returned when an agreement carries no dispute record.
	ErrDisputeNotFound = errors.New("escrow: dispute not found")
	// ErrOperationInProgress is returned when another mutating call already
	// holds the agreement. Callers retry; the store never queues.
	ErrOperationInProgress = errors.New("escrow: operation in progress for agreement")
	// ErrUnknownRole is returned for list queries with a role the index does not cover.
	ErrUnknownRole = errors.New("escrow: unknown role for listing")
)

// Txn is the staged view of a single agreement handed to a WithAgreement
// closure. Mutations apply to copies; nothing is visible to readers until the
// closure returns nil and the store commits the whole view atomically.
type Txn struct {
	// Agreement is a private copy the closure mutates directly.
	Agreement *RentalAgreement
	// Dispute is the agreement's dispute record, nil if none exists yet.
	// Setting or mutating it marks it for persistence.
	Dispute *Dispute
	// LastOverdueCheck is the previous overdue-check stamp, zero if never checked.
	LastOverdueCheck time.Time
	// PaymentCount is the number of rent payments already recorded.
	PaymentCount int

	newPayments  []RentPayment
	overdueStamp time.Time
	stamped      bool
}

// AppendPayment stages a rent ledger entry for commit.
func (t *Txn) AppendPayment(p RentPayment) {
	t.newPayments = append(t.newPayments, p)
}

// StampOverdueCheck stages the overdue-check cooldown timestamp.
func (t *Txn) StampOverdueCheck(at time.Time) {
	t.overdueStamp = at
	t.stamped = true
}

// Store is the authoritative agreement, rent ledger, and dispute state.
// Implementations must serialize mutations per agreement and reject, not
// queue, overlapping calls on the same id.
type Store interface {
	// CreateAgreement assigns the next monotonic id, persists the record and
	// indexes it under both parties. The assigned id is also written back to a.
	CreateAgreement(ctx context.Context, a *RentalAgreement) (AgreementID, error)

	// WithAgreement runs fn against a staged view of the agreement. A non-nil
	// error from fn discards every staged change. A concurrent call on the
	// same id fails with ErrOperationInProgress.
	WithAgreement(ctx context.Context, id AgreementID, fn func(ctx context.Context, txn *Txn) error) error

	GetAgreement(ctx context.Context, id AgreementID) (RentalAgreement, error)
	GetDispute(ctx context.Context, id AgreementID) (Dispute, error)
	ListByActor(ctx context.Context, actor Actor, role Role) ([]RentalAgreement, error)
	ListPayments(ctx context.Context, id AgreementID) ([]RentPayment, error)
}
