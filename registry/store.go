package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"rentledger/escrow"
)

// MemoryStore keeps properties in process memory.
type MemoryStore struct {
	mu         sync.RWMutex
	properties map[escrow.PropertyID]Property
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{properties: make(map[escrow.PropertyID]Property)}
}

func (m *MemoryStore) Insert(ctx context.Context, p Property) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.properties[p.ID]; ok {
		return ErrPropertyExists
	}
	m.properties[p.ID] = p
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id escrow.PropertyID) (Property, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.properties[id]
	if !ok {
		return Property{}, ErrPropertyNotFound
	}
	return p, nil
}

func (m *MemoryStore) SetEligible(ctx context.Context, id escrow.PropertyID, eligible bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.properties[id]
	if !ok {
		return ErrPropertyNotFound
	}
	p.Eligible = eligible
	m.properties[id] = p
	return nil
}

// PGStore persists properties in postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Insert(ctx context.Context, p Property) error {
	const insertSQL = `
INSERT INTO properties (id, owner, eligible, metadata_hash, created_at)
VALUES ($1, $2, $3, $4, $5);
`
	_, err := s.pool.Exec(ctx, insertSQL, int64(p.ID), string(p.Owner), p.Eligible, p.MetadataHash, p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrPropertyExists
		}
		return fmt.Errorf("registry: insert property: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id escrow.PropertyID) (Property, error) {
	const getSQL = `
SELECT id, owner, eligible, metadata_hash, created_at FROM properties WHERE id = $1;
`
	var (
		p          Property
		propertyID int64
		owner      string
	)
	err := s.pool.QueryRow(ctx, getSQL, int64(id)).Scan(&propertyID, &owner, &p.Eligible, &p.MetadataHash, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Property{}, ErrPropertyNotFound
		}
		return Property{}, fmt.Errorf("registry: get property: %w", err)
	}
	p.ID = escrow.PropertyID(propertyID)
	p.Owner = escrow.Actor(owner)
	return p, nil
}

func (s *PGStore) SetEligible(ctx context.Context, id escrow.PropertyID, eligible bool) error {
	const updateSQL = `UPDATE properties SET eligible = $2 WHERE id = $1;`

	tag, err := s.pool.Exec(ctx, updateSQL, int64(id), eligible)
	if err != nil {
		return fmt.Errorf("registry: set eligible: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPropertyNotFound
	}
	return nil
}
