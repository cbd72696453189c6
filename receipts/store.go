package receipts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rentledger/escrow"
)

// Store persists receipts. Entries are append-only; there is no update or
// delete path.
type Store interface {
	Append(ctx context.Context, r Receipt) error
	ListByTenant(ctx context.Context, tenant escrow.Actor) ([]Receipt, error)
	ListByAgreement(ctx context.Context, id escrow.AgreementID) ([]Receipt, error)
}

// MemoryStore keeps receipts in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	receipts []Receipt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(ctx context.Context, r Receipt) error {
	m.mu.Lock()
	m.receipts = append(m.receipts, r)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) ListByTenant(ctx context.Context, tenant escrow.Actor) ([]Receipt, error) {
	return m.filter(func(r Receipt) bool { return r.Tenant == tenant }), nil
}

func (m *MemoryStore) ListByAgreement(ctx context.Context, id escrow.AgreementID) ([]Receipt, error) {
	return m.filter(func(r Receipt) bool { return r.AgreementID == id }), nil
}

func (m *MemoryStore) filter(keep func(Receipt) bool) []Receipt {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Receipt, 0, 8)
	for _, r := range m.receipts {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// PGStore persists receipts in postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const receiptColumns = `id, kind, tenant, landlord, property_id, agreement_id, amount, rent_amount,
	start_date, end_date, paid_date, period_start, period_end, metadata_hash, issued_at`

func (s *PGStore) Append(ctx context.Context, r Receipt) error {
	const insertSQL = `
INSERT INTO receipts (` + receiptColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15);
`
	_, err := s.pool.Exec(ctx, insertSQL,
		r.ID, string(r.Kind), string(r.Tenant), string(r.Landlord), int64(r.PropertyID), int64(r.AgreementID),
		r.Amount, r.RentAmount, nullableTime(r.StartDate), nullableTime(r.EndDate), nullableTime(r.PaidDate),
		nullableTime(r.PeriodStart), nullableTime(r.PeriodEnd), r.MetadataHash, r.IssuedAt,
	)
	if err != nil {
		return fmt.Errorf("receipts: insert: %w", err)
	}
	return nil
}

func (s *PGStore) ListByTenant(ctx context.Context, tenant escrow.Actor) ([]Receipt, error) {
	const listSQL = `SELECT ` + receiptColumns + ` FROM receipts WHERE tenant = $1 ORDER BY issued_at, id;`
	return s.list(ctx, listSQL, string(tenant))
}

func (s *PGStore) ListByAgreement(ctx context.Context, id escrow.AgreementID) ([]Receipt, error) {
	const listSQL = `SELECT ` + receiptColumns + ` FROM receipts WHERE agreement_id = $1 ORDER BY issued_at, id;`
	return s.list(ctx, listSQL, int64(id))
}

func (s *PGStore) list(ctx context.Context, query string, arg any) ([]Receipt, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("receipts: list: %w", err)
	}
	defer rows.Close()

	out := make([]Receipt, 0, 8)
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("receipts: iterate: %w", err)
	}
	return out, nil
}

func scanReceipt(row pgx.Row) (Receipt, error) {
	var (
		r           Receipt
		kind        string
		tenant      string
		landlord    string
		propertyID  int64
		agreementID int64
		start       *time.Time
		end         *time.Time
		paid        *time.Time
		periodStart *time.Time
		periodEnd   *time.Time
	)
	if err := row.Scan(&r.ID, &kind, &tenant, &landlord, &propertyID, &agreementID,
		&r.Amount, &r.RentAmount, &start, &end, &paid, &periodStart, &periodEnd,
		&r.MetadataHash, &r.IssuedAt); err != nil {
		return Receipt{}, fmt.Errorf("receipts: scan: %w", err)
	}
	r.Kind = Kind(kind)
	r.Tenant = escrow.Actor(tenant)
	r.Landlord = escrow.Actor(landlord)
	r.PropertyID = escrow.PropertyID(propertyID)
	r.AgreementID = escrow.AgreementID(agreementID)
	r.StartDate = timeOrZero(start)
	r.EndDate = timeOrZero(end)
	r.PaidDate = timeOrZero(paid)
	r.PeriodStart = timeOrZero(periodStart)
	r.PeriodEnd = timeOrZero(periodEnd)
	return r, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
