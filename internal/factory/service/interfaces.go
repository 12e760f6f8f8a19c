package service

import (
	"context"

	"hatchery/contracts/spawn"
	"hatchery/internal/entropy"
	"hatchery/internal/factory/models"
)

// StateStore persists the registry singletons: operating config, the
// entropy seed, and the single pending-registration slot.
type StateStore interface {
	SaveConfig(ctx context.Context, config *models.Config) error
	// LoadConfig returns sentinel.ErrNotFound before Init has run.
	LoadConfig(ctx context.Context) (*models.Config, error)

	SaveSeed(ctx context.Context, seed entropy.Seed) error
	// LoadSeed returns sentinel.ErrNotFound before Init has run.
	LoadSeed(ctx context.Context) (entropy.Seed, error)

	// SavePending fills the pending slot, overwriting any occupant.
	SavePending(ctx context.Context, pending *models.PendingRegistration) error
	// LoadPending returns sentinel.ErrNotFound when the slot is empty.
	LoadPending(ctx context.Context) (*models.PendingRegistration, error)
	// ClearPending empties the slot. Clearing an empty slot is a no-op.
	ClearPending(ctx context.Context) error
}

// RecordStore persists instance records keyed by address.
type RecordStore interface {
	// Create saves a new record. Returns sentinel.ErrConflict when the
	// address already holds one.
	Create(ctx context.Context, record *models.InstanceRecord) error
	// Find returns sentinel.ErrNotFound for unknown addresses.
	Find(ctx context.Context, addr spawn.Address) (*models.InstanceRecord, error)
	// FindMany returns records in input order; any missing address fails
	// the whole call with sentinel.ErrNotFound.
	FindMany(ctx context.Context, addrs []spawn.Address) ([]*models.InstanceRecord, error)
	// Execute runs a validate-then-mutate sequence on one record under
	// the store lock.
	Execute(ctx context.Context, addr spawn.Address, validate func(*models.InstanceRecord) error, mutate func(*models.InstanceRecord)) (*models.InstanceRecord, error)
}

// IndexStore persists the four ordered address indices.
type IndexStore interface {
	Insert(ctx context.Context, key models.IndexKey, addr spawn.Address) error
	Remove(ctx context.Context, key models.IndexKey, addr spawn.Address) error
	Contains(ctx context.Context, key models.IndexKey, addr spawn.Address) (bool, error)
	// Page returns the selected window in insertion order. Windows past
	// the end are empty, never an error.
	Page(ctx context.Context, key models.IndexKey, page models.Page) ([]spawn.Address, error)
}

// ViewingKeys is the viewing-key subsystem the registry exposes.
type ViewingKeys interface {
	Create(ctx context.Context, addr spawn.Address, secret entropy.Secret) (spawn.ViewingKey, error)
	Set(ctx context.Context, addr spawn.Address, key spawn.ViewingKey) error
	Check(ctx context.Context, addr spawn.Address, key spawn.ViewingKey) (bool, error)
}
