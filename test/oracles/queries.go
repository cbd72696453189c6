package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the invariant queries. Each query selects VIOLATING rows, so an
// empty result means the invariant holds. Every invariant here is committed
// atomically by the store, which keeps the checks race-free against live actors.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_status_domain",
			SQL: `SELECT id, status FROM agreements
                  WHERE status NOT IN ('pending','active','completed','disputed','terminated','cancelled')`,
		},
		{
			Name: "O2_rent_seq_gapless",
			SQL: `WITH seqs AS (
                      SELECT agreement_id, seq,
                             LAG(seq) OVER (PARTITION BY agreement_id ORDER BY seq) AS prev
                      FROM rent_payments)
                  SELECT * FROM seqs WHERE seq <> COALESCE(prev, 0) + 1`,
		},
		{
			Name: "O3_rent_total_matches_ledger",
			SQL: `SELECT a.id, a.total_rent_paid, COALESCE(SUM(p.amount), 0) AS ledger_total
                  FROM agreements a
                  LEFT JOIN rent_payments p ON p.agreement_id = a.id
                  GROUP BY a.id
                  HAVING a.total_rent_paid <> COALESCE(SUM(p.amount), 0)`,
		},
		{
			Name: "O4_active_fully_confirmed",
			SQL: `SELECT id FROM agreements
                  WHERE status = 'active'
                    AND (tenant_confirmed = false OR landlord_confirmed = false OR dispute_deadline IS NULL)`,
		},
		{
			Name: "O5_resolution_implies_terminal",
			SQL: `SELECT d.agreement_id, a.status FROM disputes d
                  JOIN agreements a ON a.id = d.agreement_id
                  WHERE d.resolved_at IS NOT NULL AND a.status NOT IN ('completed','terminated')`,
		},
		{
			Name: "O6_disputed_has_open_dispute",
			SQL: `SELECT a.id FROM agreements a
                  LEFT JOIN disputes d ON d.agreement_id = a.id
                  WHERE a.status = 'disputed'
                    AND (d.agreement_id IS NULL OR d.resolved_at IS NOT NULL)`,
		},
		{
			Name: "O7_resolution_fields_all_or_none",
			SQL: `SELECT agreement_id FROM disputes
                  WHERE (resolved_at IS NULL) <> (winner IS NULL)
                     OR (resolved_at IS NULL) <> (refund_tenant IS NULL)`,
		},
		{
			Name: "O8_winner_is_party",
			SQL: `SELECT d.agreement_id, d.winner FROM disputes d
                  JOIN agreements a ON a.id = d.agreement_id
                  WHERE d.resolved_at IS NOT NULL AND d.winner NOT IN (a.tenant, a.landlord)`,
		},
		{
			// Receipts commit before the payment transaction, so payments may
			// never outnumber payment receipts. The reverse can happen when
			// chaos kills a backend between the two writes.
			Name: "O9_payment_never_without_receipt",
			SQL: `SELECT p.agreement_id, p.n AS payments, COALESCE(r.n, 0) AS receipts
                  FROM (SELECT agreement_id, COUNT(*) AS n FROM rent_payments GROUP BY agreement_id) p
                  LEFT JOIN (SELECT agreement_id, COUNT(*) AS n FROM receipts
                             WHERE kind = 'payment' GROUP BY agreement_id) r
                    ON r.agreement_id = p.agreement_id
                  WHERE p.n > COALESCE(r.n, 0)`,
		},
		{
			Name: "O10_payment_status_domain",
			SQL: `SELECT agreement_id, seq, status FROM rent_payments
                  WHERE status NOT IN ('paid','overdue','disputed')`,
		},
		{
			Name: "O11_cancelled_never_activated",
			SQL: `SELECT id FROM agreements
                  WHERE status = 'cancelled' AND tenant_confirmed AND landlord_confirmed`,
		},
		{
			Name: "O12_terms_sane",
			SQL: `SELECT id FROM agreements
                  WHERE deposit_amount <= 0 OR monthly_rent <= 0 OR end_date <= start_date`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
