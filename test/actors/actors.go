package actors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"rentledger/dispute"
	"rentledger/escrow"
)

// benign reports whether err is an expected outcome under contention rather
// than a harness failure.
func benign(err error, expected ...error) bool {
	for _, e := range expected {
		if errors.Is(err, e) {
			return true
		}
	}
	return transient(err)
}

// transient matches connection-level failures injected by the chaos routine.
func transient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "57P01", "57P02", "57P03", "08000", "08003", "08006":
			return true
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "conn closed") || strings.Contains(msg, "broken pipe")
}

// Creator opens fresh pending agreements against the shared property and
// cancels a third of them straight away.
func Creator(ctx context.Context, svc *escrow.Service, propertyID escrow.PropertyID, landlord escrow.Actor, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tenant := escrow.Actor(fmt.Sprintf("churn-tenant-%d", rand.Int63()))
		start := time.Now().Add(time.Hour)
		a, err := svc.CreateAgreement(ctx, tenant, escrow.CreateParams{
			PropertyID:    propertyID,
			Landlord:      landlord,
			DepositAmount: 1000 + rand.Int63n(9000),
			MonthlyRent:   100 + rand.Int63n(900),
			RentInterval:  30 * 24 * time.Hour,
			StartDate:     start,
			EndDate:       start.Add(360 * 24 * time.Hour),
			MetadataHash:  fmt.Sprintf("ipfs://churn-%d", rand.Int63()),
		})
		if err != nil {
			if !benign(err, escrow.ErrPropertyNotEligible, escrow.ErrOperationInProgress) {
				return fmt.Errorf("creator: %w", err)
			}
		} else if rand.Intn(3) == 0 {
			if _, err := svc.CancelAgreement(ctx, a.ID, tenant); err != nil &&
				!benign(err, escrow.ErrAgreementNotPending, escrow.ErrOperationInProgress) {
				return fmt.Errorf("creator cancel: %w", err)
			}
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Confirmer keeps acknowledging one side of the shared pending agreement.
// However many goroutines race, exactly one flip to active may win.
func Confirmer(ctx context.Context, svc *escrow.Service, id escrow.AgreementID, caller escrow.Actor, side escrow.Role, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var err error
		if side == escrow.RoleLandlord {
			_, err = svc.LandlordConfirm(ctx, id, caller)
		} else {
			_, err = svc.TenantConfirm(ctx, id, caller)
		}
		if err != nil && !benign(err, escrow.ErrAlreadyConfirmed, escrow.ErrAgreementNotPending, escrow.ErrOperationInProgress) {
			return fmt.Errorf("confirmer %s: %w", side, err)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// RentPayer hammers PayRent on one agreement. Payments serialize on the row
// lock, so sequence numbers must come out gapless no matter how many payers
// collide.
func RentPayer(ctx context.Context, svc *escrow.Service, id escrow.AgreementID, tenant escrow.Actor, rent int64, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		// occasional overpayment exercises the refund split
		amount := rent + rand.Int63n(50)
		_, err := svc.PayRent(ctx, id, tenant, amount, fmt.Sprintf("ipfs://rent-%d", rand.Int63()))
		if err != nil && !benign(err, escrow.ErrAgreementNotActive, escrow.ErrOperationInProgress, escrow.ErrLeaseEnded) {
			return fmt.Errorf("rent payer: %w", err)
		}
		time.Sleep(time.Duration(15+rand.Intn(35)) * time.Millisecond)
	}
}

// OverdueWatcher probes the overdue path as the platform operator. The
// cooldown stamp and the system-raised rent dispute both land on the seeded
// overdue agreement.
func OverdueWatcher(ctx context.Context, svc *escrow.Service, id escrow.AgreementID, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := svc.CheckRentOverdue(ctx, id, "stress-admin", escrow.RoleAdmin)
		if err != nil && !benign(err, escrow.ErrCooldownActive, escrow.ErrRentNotOverdue, escrow.ErrAgreementNotActive, escrow.ErrOperationInProgress) {
			return fmt.Errorf("overdue watcher: %w", err)
		}
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}

// Disputer raises a dispute on the shared agreement once in a while and piles
// evidence onto whichever dispute is open.
func Disputer(ctx context.Context, arb *dispute.Arbitrator, id escrow.AgreementID, tenant escrow.Actor, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if rand.Intn(25) == 0 {
			_, err := arb.Raise(ctx, id, tenant, "deposit at risk", fmt.Sprintf("ipfs://ev-%d", rand.Int63()))
			if err != nil && !benign(err, dispute.ErrWrongState, escrow.ErrOperationInProgress) {
				return fmt.Errorf("disputer raise: %w", err)
			}
		}
		_, err := arb.SubmitEvidence(ctx, id, tenant, fmt.Sprintf("ipfs://ev-%d", rand.Int63()))
		if err != nil && !benign(err, dispute.ErrNotDisputed, dispute.ErrAlreadyResolved, escrow.ErrDisputeNotFound, escrow.ErrOperationInProgress) {
			return fmt.Errorf("disputer evidence: %w", err)
		}
		time.Sleep(time.Duration(100+rand.Intn(200)) * time.Millisecond)
	}
}

// Arbiter rules on whatever dispute is open on the agreement, flipping a coin
// between tenant refund and landlord release.
func Arbiter(ctx context.Context, arb *dispute.Arbitrator, id escrow.AgreementID, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if rand.Intn(10) == 0 {
			_, err := arb.Resolve(ctx, id, "stress-admin", escrow.RoleAdmin, rand.Intn(2) == 0)
			if err != nil && !benign(err, dispute.ErrNotDisputed, dispute.ErrAlreadyResolved, escrow.ErrDisputeNotFound, escrow.ErrOperationInProgress) {
				return fmt.Errorf("arbiter: %w", err)
			}
		}
		time.Sleep(time.Duration(150+rand.Intn(300)) * time.Millisecond)
	}
}

// Lifecycler runs whole agreement lifecycles end to end, one fresh agreement
// per iteration, so load keeps flowing even after the shared agreements reach
// a terminal status.
func Lifecycler(ctx context.Context, svc *escrow.Service, arb *dispute.Arbitrator, propertyID escrow.PropertyID, landlord escrow.Actor, stop <-chan struct{}) error {
	expected := []error{
		escrow.ErrPropertyNotEligible, escrow.ErrOperationInProgress,
		escrow.ErrAlreadyConfirmed, escrow.ErrAgreementNotPending,
		escrow.ErrAgreementNotActive, escrow.ErrLeaseEnded, escrow.ErrInvalidTransition,
		dispute.ErrWrongState, dispute.ErrNotDisputed, dispute.ErrAlreadyResolved,
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if err := runCycle(ctx, svc, arb, propertyID, landlord); err != nil && !benign(err, expected...) {
			return fmt.Errorf("lifecycler: %w", err)
		}
		time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)
	}
}

func runCycle(ctx context.Context, svc *escrow.Service, arb *dispute.Arbitrator, propertyID escrow.PropertyID, landlord escrow.Actor) error {
	tenant := escrow.Actor(fmt.Sprintf("cycle-tenant-%d", rand.Int63()))
	start := time.Now().Add(time.Hour)
	rent := 200 + rand.Int63n(800)

	a, err := svc.CreateAgreement(ctx, tenant, escrow.CreateParams{
		PropertyID:    propertyID,
		Landlord:      landlord,
		DepositAmount: 2 * rent,
		MonthlyRent:   rent,
		RentInterval:  30 * 24 * time.Hour,
		StartDate:     start,
		EndDate:       start.Add(360 * 24 * time.Hour),
		MetadataHash:  fmt.Sprintf("ipfs://cycle-%d", rand.Int63()),
	})
	if err != nil {
		return err
	}
	if _, err := svc.TenantConfirm(ctx, a.ID, tenant); err != nil {
		return err
	}
	if _, err := svc.LandlordConfirm(ctx, a.ID, landlord); err != nil {
		return err
	}
	for i := 0; i < 1+rand.Intn(3); i++ {
		if _, err := svc.PayRent(ctx, a.ID, tenant, rent, fmt.Sprintf("ipfs://cycle-rent-%d", rand.Int63())); err != nil {
			return err
		}
	}

	switch rand.Intn(3) {
	case 0:
		if _, err := arb.Raise(ctx, a.ID, tenant, "cycle dispute", "ipfs://cycle-ev"); err != nil {
			return err
		}
		_, err := arb.Resolve(ctx, a.ID, "stress-admin", escrow.RoleAdmin, rand.Intn(2) == 0)
		return err
	case 1:
		_, err := svc.TerminateAgreement(ctx, a.ID, "stress-admin", escrow.RoleAdmin, rand.Int63n(a.DepositAmount))
		return err
	default:
		// left active; the oracles keep watching it
		return nil
	}
}
