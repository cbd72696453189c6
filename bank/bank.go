package bank

import (
	"context"
	"errors"
	"sync"

	"rentledger/escrow"
)

var (
	// ErrInvalidPayee is returned for transfers to an empty identity.
	ErrInvalidPayee = errors.New("bank: invalid payee")
	// ErrNegativeAmount is returned for transfers below zero.
	ErrNegativeAmount = errors.New("bank: negative amount")
)

// Ledger is the in-process value-transfer primitive. Escrowed funds enter as
// validated operation parameters; Pay credits the payee's outbound balance
// atomically. A Pay either succeeds completely or leaves no trace.
type Ledger struct {
	mu       sync.Mutex
	balances map[escrow.Actor]int64
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[escrow.Actor]int64)}
}

func (l *Ledger) Pay(ctx context.Context, to escrow.Actor, amount int64) error {
	if to == "" {
		return ErrInvalidPayee
	}
	if amount < 0 {
		return ErrNegativeAmount
	}
	l.mu.Lock()
	l.balances[to] += amount
	l.mu.Unlock()
	return nil
}

// Balance returns the total credited to an actor so far.
func (l *Ledger) Balance(actor escrow.Actor) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[actor]
}
