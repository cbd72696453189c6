package subsidy

import (
	"context"
	"errors"
	"sync"

	"rentledger/escrow"
)

var (
	// ErrNotAdmin is returned when eligibility is changed without the admin role.
	ErrNotAdmin = errors.New("subsidy: admin role required")
	// ErrInvalidAmount is returned for non-positive pool contributions.
	ErrInvalidAmount = errors.New("subsidy: amount must be positive")
)

// Pool holds a shared balance used to reimburse execution costs for granted
// tenants. Draws never exceed the current balance.
type Pool struct {
	mu       sync.Mutex
	balance  int64
	eligible map[escrow.Actor]bool
}

func NewPool() *Pool {
	return &Pool{eligible: make(map[escrow.Actor]bool)}
}

// Grant flags an actor as subsidy-eligible. Admin only.
func (p *Pool) Grant(ctx context.Context, role escrow.Role, actor escrow.Actor) error {
	if role != escrow.RoleAdmin {
		return ErrNotAdmin
	}
	p.mu.Lock()
	p.eligible[actor] = true
	p.mu.Unlock()
	return nil
}

// Revoke clears an actor's eligibility. Admin only.
func (p *Pool) Revoke(ctx context.Context, role escrow.Role, actor escrow.Actor) error {
	if role != escrow.RoleAdmin {
		return ErrNotAdmin
	}
	p.mu.Lock()
	delete(p.eligible, actor)
	p.mu.Unlock()
	return nil
}

// Fund adds to the pool balance. Any caller may contribute.
func (p *Pool) Fund(ctx context.Context, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	p.mu.Lock()
	p.balance += amount
	p.mu.Unlock()
	return nil
}

// DrawFor pays out min(limit, balance) for an eligible tenant and decrements
// the pool by exactly that amount. Ineligible tenants and an empty pool both
// draw zero.
func (p *Pool) DrawFor(ctx context.Context, tenant escrow.Actor, limit int64) (int64, error) {
	if limit <= 0 {
		return 0, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.eligible[tenant] || p.balance == 0 {
		return 0, nil
	}
	draw := limit
	if draw > p.balance {
		draw = p.balance
	}
	p.balance -= draw
	return draw, nil
}

// Balance returns the current pool balance.
func (p *Pool) Balance() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance
}

// Eligible reports whether the actor currently holds a subsidy grant.
func (p *Pool) Eligible(actor escrow.Actor) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eligible[actor]
}
