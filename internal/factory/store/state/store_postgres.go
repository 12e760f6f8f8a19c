package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hatchery/contracts/spawn"
	"hatchery/internal/entropy"
	"hatchery/internal/factory/models"
	"hatchery/pkg/platform/sentinel"
)

// PostgresStateStore persists the singleton state in PostgreSQL.
// Each singleton lives in a one-row table pinned by a boolean primary
// key, so writes are plain upserts.
//
// Expected schema (see pkg/testutil/containers for the test bootstrap):
//
//	CREATE TABLE registry_config (
//	    id          BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
//	    template_id BIGINT      NOT NULL,
//	    code_hash   TEXT        NOT NULL,
//	    admin       TEXT        NOT NULL,
//	    stopped     BOOLEAN     NOT NULL,
//	    updated_at  TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE registry_seed (
//	    id   BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
//	    seed BYTEA NOT NULL
//	);
//	CREATE TABLE pending_registration (
//	    id         BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
//	    password   TEXT        NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL
//	);
type PostgresStateStore struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a PostgreSQL-backed state store.
func NewPostgres(pool *pgxpool.Pool) *PostgresStateStore {
	return &PostgresStateStore{pool: pool}
}

func (s *PostgresStateStore) SaveConfig(ctx context.Context, config *models.Config) error {
	query := `
		INSERT INTO registry_config (id, template_id, code_hash, admin, stopped, updated_at)
		VALUES (TRUE, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			template_id = EXCLUDED.template_id,
			code_hash   = EXCLUDED.code_hash,
			admin       = EXCLUDED.admin,
			stopped     = EXCLUDED.stopped,
			updated_at  = EXCLUDED.updated_at
	`
	_, err := s.pool.Exec(ctx, query,
		config.Template.ID,
		config.Template.CodeHash,
		string(config.Admin),
		config.Stopped,
		config.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

func (s *PostgresStateStore) LoadConfig(ctx context.Context) (*models.Config, error) {
	query := `
		SELECT template_id, code_hash, admin, stopped, updated_at
		FROM registry_config
	`
	var (
		config   models.Config
		admin    string
		codeHash string
	)
	err := s.pool.QueryRow(ctx, query).Scan(
		&config.Template.ID,
		&codeHash,
		&admin,
		&config.Stopped,
		&config.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("config not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	config.Template.CodeHash = codeHash
	config.Admin = spawn.Address(admin)
	return &config, nil
}

func (s *PostgresStateStore) SaveSeed(ctx context.Context, seed entropy.Seed) error {
	query := `
		INSERT INTO registry_seed (id, seed)
		VALUES (TRUE, $1)
		ON CONFLICT (id) DO UPDATE SET seed = EXCLUDED.seed
	`
	if _, err := s.pool.Exec(ctx, query, seed[:]); err != nil {
		return fmt.Errorf("save seed: %w", err)
	}
	return nil
}

func (s *PostgresStateStore) LoadSeed(ctx context.Context) (entropy.Seed, error) {
	var seed entropy.Seed

	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT seed FROM registry_seed`).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return seed, fmt.Errorf("seed not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return seed, fmt.Errorf("load seed: %w", err)
	}
	if len(raw) != entropy.SeedLen {
		return seed, fmt.Errorf("corrupt seed: %d bytes", len(raw))
	}
	copy(seed[:], raw)
	return seed, nil
}

func (s *PostgresStateStore) SavePending(ctx context.Context, pending *models.PendingRegistration) error {
	query := `
		INSERT INTO pending_registration (id, password, created_at)
		VALUES (TRUE, $1, $2)
		ON CONFLICT (id) DO UPDATE SET
			password   = EXCLUDED.password,
			created_at = EXCLUDED.created_at
	`
	if _, err := s.pool.Exec(ctx, query, string(pending.Password), pending.CreatedAt); err != nil {
		return fmt.Errorf("save pending registration: %w", err)
	}
	return nil
}

func (s *PostgresStateStore) LoadPending(ctx context.Context) (*models.PendingRegistration, error) {
	query := `SELECT password, created_at FROM pending_registration`

	var (
		pending  models.PendingRegistration
		password string
	)
	err := s.pool.QueryRow(ctx, query).Scan(&password, &pending.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("pending registration not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load pending registration: %w", err)
	}
	pending.Password = spawn.Password(password)
	return &pending, nil
}

func (s *PostgresStateStore) ClearPending(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM pending_registration`); err != nil {
		return fmt.Errorf("clear pending registration: %w", err)
	}
	return nil
}
