package bank

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestPayCredits(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	if err := l.Pay(ctx, "landlord-1", 99); err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if err := l.Pay(ctx, "landlord-1", 1); err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if got := l.Balance("landlord-1"); got != 100 {
		t.Fatalf("balance = %d, want 100", got)
	}
	if got := l.Balance("tenant-1"); got != 0 {
		t.Fatalf("uncredited actor balance = %d, want 0", got)
	}
}

func TestPayZeroIsAllowed(t *testing.T) {
	l := NewLedger()
	if err := l.Pay(context.Background(), "platform", 0); err != nil {
		t.Fatalf("zero transfer must succeed: %v", err)
	}
	if got := l.Balance("platform"); got != 0 {
		t.Fatalf("balance = %d, want 0", got)
	}
}

func TestPayRejectsBadInput(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	if err := l.Pay(ctx, "", 10); !errors.Is(err, ErrInvalidPayee) {
		t.Fatalf("expected ErrInvalidPayee, got %v", err)
	}
	if err := l.Pay(ctx, "tenant-1", -1); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}
	if got := l.Balance("tenant-1"); got != 0 {
		t.Fatalf("rejected transfer must not credit, balance = %d", got)
	}
}

func TestConcurrentPays(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			return l.Pay(ctx, "platform", 2)
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent pay: %v", err)
	}
	if got := l.Balance("platform"); got != 100 {
		t.Fatalf("balance = %d, want 100", got)
	}
}
