package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"rentledger/escrow"
)

var (
	// ErrPropertyNotFound is returned when no property is registered under the id.
	ErrPropertyNotFound = errors.New("registry: property not found")
	// ErrPropertyExists is returned when registering an id twice.
	ErrPropertyExists = errors.New("registry: property already registered")
	// ErrNotAdmin is returned when eligibility is changed without the admin role.
	ErrNotAdmin = errors.New("registry: admin role required")
	// ErrInvalidOwner is returned when a property is registered without an owner.
	ErrInvalidOwner = errors.New("registry: invalid owner")
)

// Property is one registered rental listing. Eligibility is the registry's
// boolean verdict; how it was reached (KYC, badges) is out of scope here.
type Property struct {
	ID           escrow.PropertyID
	Owner        escrow.Actor
	Eligible     bool
	MetadataHash string
	CreatedAt    time.Time
}

// Store persists property records.
type Store interface {
	Insert(ctx context.Context, p Property) error
	Get(ctx context.Context, id escrow.PropertyID) (Property, error)
	SetEligible(ctx context.Context, id escrow.PropertyID, eligible bool) error
}

// Registry is the eligibility oracle the escrow service consults at agreement
// creation.
type Registry struct {
	store Store

	mu         sync.RWMutex
	listingFee int64

	now func() time.Time
}

func NewRegistry(store Store, listingFee int64) *Registry {
	return &Registry{
		store:      store,
		listingFee: listingFee,
		now:        time.Now,
	}
}

func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Register records a new property owned by owner. Listings start ineligible
// until an admin approves them.
func (r *Registry) Register(ctx context.Context, owner escrow.Actor, id escrow.PropertyID, metadataHash string) (Property, error) {
	if owner == "" {
		return Property{}, ErrInvalidOwner
	}
	p := Property{
		ID:           id,
		Owner:        owner,
		MetadataHash: metadataHash,
		CreatedAt:    r.now(),
	}
	if err := r.store.Insert(ctx, p); err != nil {
		return Property{}, err
	}
	return p, nil
}

// SetEligibility flips a property's rentable flag. Admin only.
func (r *Registry) SetEligibility(ctx context.Context, role escrow.Role, id escrow.PropertyID, eligible bool) error {
	if role != escrow.RoleAdmin {
		return ErrNotAdmin
	}
	return r.store.SetEligible(ctx, id, eligible)
}

// SetListingFee updates the fee quoted to prospective listers. Admin only.
func (r *Registry) SetListingFee(role escrow.Role, fee int64) error {
	if role != escrow.RoleAdmin {
		return ErrNotAdmin
	}
	r.mu.Lock()
	r.listingFee = fee
	r.mu.Unlock()
	return nil
}

// Get returns the property record.
func (r *Registry) Get(ctx context.Context, id escrow.PropertyID) (Property, error) {
	return r.store.Get(ctx, id)
}

// IsEligible reports the registry's verdict for the property. Unknown
// properties are simply not eligible.
func (r *Registry) IsEligible(ctx context.Context, id escrow.PropertyID) (bool, error) {
	p, err := r.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPropertyNotFound) {
			return false, nil
		}
		return false, err
	}
	return p.Eligible, nil
}

// OwnerOf resolves the registered owner of the property.
func (r *Registry) OwnerOf(ctx context.Context, id escrow.PropertyID) (escrow.Actor, error) {
	p, err := r.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return p.Owner, nil
}

// ListingFee quotes the current listing fee.
func (r *Registry) ListingFee(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listingFee, nil
}
