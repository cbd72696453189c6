package escrow

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the full ledger in process memory. It backs unit tests
// and single-node deployments; the postgres store is the durable twin.
type MemoryStore struct {
	mu            sync.Mutex
	nextID        AgreementID
	agreements    map[AgreementID]*RentalAgreement
	payments      map[AgreementID][]RentPayment
	disputes      map[AgreementID]*Dispute
	overdueChecks map[AgreementID]time.Time
	byTenant      map[Actor][]AgreementID
	byLandlord    map[Actor][]AgreementID
	busy          map[AgreementID]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agreements:    make(map[AgreementID]*RentalAgreement),
		payments:      make(map[AgreementID][]RentPayment),
		disputes:      make(map[AgreementID]*Dispute),
		overdueChecks: make(map[AgreementID]time.Time),
		byTenant:      make(map[Actor][]AgreementID),
		byLandlord:    make(map[Actor][]AgreementID),
		busy:          make(map[AgreementID]bool),
	}
}

func (m *MemoryStore) CreateAgreement(ctx context.Context, a *RentalAgreement) (AgreementID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	a.ID = m.nextID
	m.agreements[a.ID] = a.clone()
	m.byTenant[a.Tenant] = append(m.byTenant[a.Tenant], a.ID)
	m.byLandlord[a.Landlord] = append(m.byLandlord[a.Landlord], a.ID)
	return a.ID, nil
}

func (m *MemoryStore) WithAgreement(ctx context.Context, id AgreementID, fn func(ctx context.Context, txn *Txn) error) error {
	m.mu.Lock()
	current, ok := m.agreements[id]
	if !ok {
		m.mu.Unlock()
		return ErrAgreementNotFound
	}
	if m.busy[id] {
		m.mu.Unlock()
		return ErrOperationInProgress
	}
	m.busy[id] = true
	txn := &Txn{
		Agreement:        current.clone(),
		Dispute:          m.disputes[id].clone(),
		LastOverdueCheck: m.overdueChecks[id],
		PaymentCount:     len(m.payments[id]),
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.busy, id)
		m.mu.Unlock()
	}()

	if err := fn(ctx, txn); err != nil {
		return err
	}

	m.mu.Lock()
	m.agreements[id] = txn.Agreement
	if txn.Dispute != nil {
		m.disputes[id] = txn.Dispute
	}
	m.payments[id] = append(m.payments[id], txn.newPayments...)
	if txn.stamped {
		m.overdueChecks[id] = txn.overdueStamp
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetAgreement(ctx context.Context, id AgreementID) (RentalAgreement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agreements[id]
	if !ok {
		return RentalAgreement{}, ErrAgreementNotFound
	}
	return *a.clone(), nil
}

func (m *MemoryStore) GetDispute(ctx context.Context, id AgreementID) (Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agreements[id]; !ok {
		return Dispute{}, ErrAgreementNotFound
	}
	d, ok := m.disputes[id]
	if !ok {
		return Dispute{}, ErrDisputeNotFound
	}
	return *d.clone(), nil
}

func (m *MemoryStore) ListByActor(ctx context.Context, actor Actor, role Role) ([]RentalAgreement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []AgreementID
	switch role {
	case RoleTenant:
		ids = m.byTenant[actor]
	case RoleLandlord:
		ids = m.byLandlord[actor]
	default:
		return nil, ErrUnknownRole
	}

	out := make([]RentalAgreement, 0, len(ids))
	for _, id := range ids {
		out = append(out, *m.agreements[id].clone())
	}
	return out, nil
}

func (m *MemoryStore) ListPayments(ctx context.Context, id AgreementID) ([]RentPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agreements[id]; !ok {
		return nil, ErrAgreementNotFound
	}
	return append([]RentPayment(nil), m.payments[id]...), nil
}
