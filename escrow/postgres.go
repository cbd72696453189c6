package escrow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists the ledger in postgres. Row locks taken with NOWAIT give
// the same reject-on-overlap contract as the memory store's busy marker.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const agreementColumns = `id, property_id, tenant, landlord, deposit_amount, monthly_rent,
	rent_interval_seconds, start_date, end_date, created_at, status, metadata_hash,
	tenant_confirmed, landlord_confirmed, dispute_deadline, next_rent_due,
	grace_period_seconds, total_rent_paid`

func (s *PGStore) CreateAgreement(ctx context.Context, a *RentalAgreement) (AgreementID, error) {
	const insertSQL = `
INSERT INTO agreements (
	property_id, tenant, landlord, deposit_amount, monthly_rent,
	rent_interval_seconds, start_date, end_date, created_at, status, metadata_hash,
	tenant_confirmed, landlord_confirmed, next_rent_due, grace_period_seconds, total_rent_paid
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
RETURNING id;
`
	var id int64
	err := s.pool.QueryRow(ctx, insertSQL,
		int64(a.PropertyID), string(a.Tenant), string(a.Landlord), a.DepositAmount, a.MonthlyRent,
		int64(a.RentInterval/time.Second), a.StartDate, a.EndDate, a.CreatedAt, string(a.Status), a.MetadataHash,
		a.TenantConfirmed, a.LandlordConfirmed, a.NextRentDueDate, int64(a.OverdueGracePeriod/time.Second), a.TotalRentPaid,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("escrow: insert agreement: %w", err)
	}
	a.ID = AgreementID(id)
	return a.ID, nil
}

func (s *PGStore) WithAgreement(ctx context.Context, id AgreementID, fn func(ctx context.Context, txn *Txn) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("escrow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	lockSQL := `SELECT ` + agreementColumns + ` FROM agreements WHERE id = $1 FOR UPDATE NOWAIT`
	a, err := scanAgreement(tx.QueryRow(ctx, lockSQL, int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAgreementNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "55P03" {
			return ErrOperationInProgress
		}
		return fmt.Errorf("escrow: lock agreement: %w", err)
	}

	d, err := loadDispute(ctx, tx, id)
	if err != nil && !errors.Is(err, ErrDisputeNotFound) {
		return err
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM rent_payments WHERE agreement_id = $1`, int64(id)).Scan(&count); err != nil {
		return fmt.Errorf("escrow: count payments: %w", err)
	}

	var lastCheck sql.NullTime
	err = tx.QueryRow(ctx, `SELECT checked_at FROM overdue_checks WHERE agreement_id = $1`, int64(id)).Scan(&lastCheck)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("escrow: load overdue check: %w", err)
	}

	txn := &Txn{
		Agreement:    a,
		Dispute:      d,
		PaymentCount: count,
	}
	if lastCheck.Valid {
		txn.LastOverdueCheck = lastCheck.Time
	}

	if err := fn(ctx, txn); err != nil {
		return err
	}

	if err := persistTxn(ctx, tx, id, txn); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("escrow: commit: %w", err)
	}
	return nil
}

func persistTxn(ctx context.Context, tx pgx.Tx, id AgreementID, txn *Txn) error {
	const updateSQL = `
UPDATE agreements SET
	status = $2, metadata_hash = $3, tenant_confirmed = $4, landlord_confirmed = $5,
	dispute_deadline = $6, next_rent_due = $7, total_rent_paid = $8
WHERE id = $1;
`
	var deadline any
	if !txn.Agreement.DisputeDeadline.IsZero() {
		deadline = txn.Agreement.DisputeDeadline
	}
	if _, err := tx.Exec(ctx, updateSQL,
		int64(id), string(txn.Agreement.Status), txn.Agreement.MetadataHash,
		txn.Agreement.TenantConfirmed, txn.Agreement.LandlordConfirmed,
		deadline, txn.Agreement.NextRentDueDate, txn.Agreement.TotalRentPaid,
	); err != nil {
		return fmt.Errorf("escrow: update agreement: %w", err)
	}

	if txn.Dispute != nil {
		const upsertSQL = `
INSERT INTO disputes (agreement_id, initiator, reason, evidence, created_at, is_rent_dispute, winner, refund_tenant, resolved_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (agreement_id) DO UPDATE SET
	evidence = EXCLUDED.evidence,
	winner = EXCLUDED.winner,
	refund_tenant = EXCLUDED.refund_tenant,
	resolved_at = EXCLUDED.resolved_at;
`
		var winner, refund, resolvedAt any
		if r := txn.Dispute.Resolution; r != nil {
			winner = string(r.Winner)
			refund = r.RefundTenant
			resolvedAt = r.ResolvedAt
		}
		if _, err := tx.Exec(ctx, upsertSQL,
			int64(id), string(txn.Dispute.Initiator), txn.Dispute.Reason, txn.Dispute.Evidence,
			txn.Dispute.CreatedAt, txn.Dispute.IsRentDispute, winner, refund, resolvedAt,
		); err != nil {
			return fmt.Errorf("escrow: upsert dispute: %w", err)
		}
	}

	const paymentSQL = `
INSERT INTO rent_payments (agreement_id, seq, amount, paid_date, period_start, period_end, status)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
	for _, p := range txn.newPayments {
		if _, err := tx.Exec(ctx, paymentSQL,
			int64(p.AgreementID), p.Seq, p.Amount, p.PaidDate, p.PeriodStart, p.PeriodEnd, string(p.Status),
		); err != nil {
			return fmt.Errorf("escrow: insert rent payment: %w", err)
		}
	}

	if txn.stamped {
		const stampSQL = `
INSERT INTO overdue_checks (agreement_id, checked_at)
VALUES ($1, $2)
ON CONFLICT (agreement_id) DO UPDATE SET checked_at = EXCLUDED.checked_at;
`
		if _, err := tx.Exec(ctx, stampSQL, int64(id), txn.overdueStamp); err != nil {
			return fmt.Errorf("escrow: stamp overdue check: %w", err)
		}
	}
	return nil
}

func (s *PGStore) GetAgreement(ctx context.Context, id AgreementID) (RentalAgreement, error) {
	getSQL := `SELECT ` + agreementColumns + ` FROM agreements WHERE id = $1`
	a, err := scanAgreement(s.pool.QueryRow(ctx, getSQL, int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RentalAgreement{}, ErrAgreementNotFound
		}
		return RentalAgreement{}, fmt.Errorf("escrow: get agreement: %w", err)
	}
	return *a, nil
}

func (s *PGStore) GetDispute(ctx context.Context, id AgreementID) (Dispute, error) {
	if _, err := s.GetAgreement(ctx, id); err != nil {
		return Dispute{}, err
	}
	d, err := loadDispute(ctx, s.pool, id)
	if err != nil {
		return Dispute{}, err
	}
	return *d, nil
}

func (s *PGStore) ListByActor(ctx context.Context, actor Actor, role Role) ([]RentalAgreement, error) {
	var column string
	switch role {
	case RoleTenant:
		column = "tenant"
	case RoleLandlord:
		column = "landlord"
	default:
		return nil, ErrUnknownRole
	}

	listSQL := `SELECT ` + agreementColumns + ` FROM agreements WHERE ` + column + ` = $1 ORDER BY id`
	rows, err := s.pool.Query(ctx, listSQL, string(actor))
	if err != nil {
		return nil, fmt.Errorf("escrow: list agreements: %w", err)
	}
	defer rows.Close()

	out := make([]RentalAgreement, 0, 8)
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, fmt.Errorf("escrow: scan agreement: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("escrow: iterate agreements: %w", err)
	}
	return out, nil
}

func (s *PGStore) ListPayments(ctx context.Context, id AgreementID) ([]RentPayment, error) {
	if _, err := s.GetAgreement(ctx, id); err != nil {
		return nil, err
	}

	const listSQL = `
SELECT agreement_id, seq, amount, paid_date, period_start, period_end, status
FROM rent_payments WHERE agreement_id = $1 ORDER BY seq;
`
	rows, err := s.pool.Query(ctx, listSQL, int64(id))
	if err != nil {
		return nil, fmt.Errorf("escrow: list payments: %w", err)
	}
	defer rows.Close()

	out := make([]RentPayment, 0, 8)
	for rows.Next() {
		var (
			p           RentPayment
			agreementID int64
			status      string
		)
		if err := rows.Scan(&agreementID, &p.Seq, &p.Amount, &p.PaidDate, &p.PeriodStart, &p.PeriodEnd, &status); err != nil {
			return nil, fmt.Errorf("escrow: scan payment: %w", err)
		}
		p.AgreementID = AgreementID(agreementID)
		p.Status = PaymentStatus(status)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("escrow: iterate payments: %w", err)
	}
	return out, nil
}

// queryRower is satisfied by both *pgxpool.Pool and pgx.Tx.
type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadDispute(ctx context.Context, q queryRower, id AgreementID) (*Dispute, error) {
	const getSQL = `
SELECT agreement_id, initiator, reason, evidence, created_at, is_rent_dispute, winner, refund_tenant, resolved_at
FROM disputes WHERE agreement_id = $1;
`
	var (
		d           Dispute
		agreementID int64
		initiator   string
		winner      sql.NullString
		refund      sql.NullBool
		resolvedAt  sql.NullTime
	)
	err := q.QueryRow(ctx, getSQL, int64(id)).Scan(
		&agreementID, &initiator, &d.Reason, &d.Evidence, &d.CreatedAt, &d.IsRentDispute,
		&winner, &refund, &resolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDisputeNotFound
		}
		return nil, fmt.Errorf("escrow: load dispute: %w", err)
	}
	d.AgreementID = AgreementID(agreementID)
	d.Initiator = Actor(initiator)
	if resolvedAt.Valid {
		d.Resolution = &Resolution{
			Winner:       Actor(winner.String),
			RefundTenant: refund.Bool,
			ResolvedAt:   resolvedAt.Time,
		}
	}
	return &d, nil
}

func scanAgreement(row pgx.Row) (*RentalAgreement, error) {
	var (
		a            RentalAgreement
		id           int64
		propertyID   int64
		tenant       string
		landlord     string
		intervalSecs int64
		status       string
		deadline     sql.NullTime
		graceSecs    int64
	)
	err := row.Scan(
		&id, &propertyID, &tenant, &landlord, &a.DepositAmount, &a.MonthlyRent,
		&intervalSecs, &a.StartDate, &a.EndDate, &a.CreatedAt, &status, &a.MetadataHash,
		&a.TenantConfirmed, &a.LandlordConfirmed, &deadline, &a.NextRentDueDate,
		&graceSecs, &a.TotalRentPaid,
	)
	if err != nil {
		return nil, err
	}

	a.ID = AgreementID(id)
	a.PropertyID = PropertyID(propertyID)
	a.Tenant = Actor(tenant)
	a.Landlord = Actor(landlord)
	a.RentInterval = time.Duration(intervalSecs) * time.Second
	a.OverdueGracePeriod = time.Duration(graceSecs) * time.Second
	if deadline.Valid {
		a.DisputeDeadline = deadline.Time
	}
	parsed, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	a.Status = parsed
	return &a, nil
}
