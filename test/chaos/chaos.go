package chaos

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TerminateRandomBackend randomly kills one backend connection of the test
// database, simulating a dropped pool connection mid-operation.
func TerminateRandomBackend(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if rand.Intn(5) == 0 {
				// terminate some backend of this DB (heuristic: random active backend not our own PID)
				_, _ = pool.Exec(ctx, `SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = current_database() AND pid <> pg_backend_pid() ORDER BY random() LIMIT 1`)
			}
		}
	}
}

// HoldAgreementLock grabs a random agreement row lock and sits on it for a
// few hundred milliseconds. Concurrent service calls on that agreement must
// surface the NOWAIT rejection instead of queueing.
func HoldAgreementLock(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			holdOnce(ctx, pool, stop)
		}
	}
}

func holdOnce(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return
	}
	defer tx.Rollback(ctx)

	var id int64
	if err := tx.QueryRow(ctx, `SELECT id FROM agreements ORDER BY random() LIMIT 1 FOR UPDATE`).Scan(&id); err != nil {
		return
	}
	select {
	case <-ctx.Done():
	case <-stop:
	case <-time.After(time.Duration(100+rand.Intn(400)) * time.Millisecond):
	}
}
