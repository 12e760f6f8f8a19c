//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// schema is the registry's full table set, applied to every fresh
// container. The store packages document the same DDL next to the
// queries that depend on it.
const schema = `
CREATE TABLE instance_records (
    addr       TEXT PRIMARY KEY,
    code_hash  TEXT        NOT NULL,
    label      TEXT        NOT NULL,
    owner      TEXT        NOT NULL,
    status     TEXT        NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE instance_index (
    status TEXT   NOT NULL,
    owner  TEXT   NOT NULL DEFAULT '',
    addr   TEXT   NOT NULL,
    seq    BIGSERIAL,
    PRIMARY KEY (status, owner, addr)
);
CREATE INDEX instance_index_page ON instance_index (status, owner, seq);

CREATE TABLE registry_config (
    id          BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
    template_id BIGINT      NOT NULL,
    code_hash   TEXT        NOT NULL,
    admin       TEXT        NOT NULL,
    stopped     BOOLEAN     NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE registry_seed (
    id   BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
    seed BYTEA NOT NULL
);

CREATE TABLE pending_registration (
    id         BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
    password   TEXT        NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE audit_events (
    id      UUID PRIMARY KEY,
    ts      TIMESTAMPTZ NOT NULL,
    action  TEXT NOT NULL,
    actor   TEXT NOT NULL DEFAULT '',
    subject TEXT NOT NULL DEFAULT '',
    owner   TEXT NOT NULL DEFAULT '',
    label   TEXT NOT NULL DEFAULT '',
    detail  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX audit_events_subject ON audit_events (subject, ts);
`

// truncateAll resets every table between tests without re-running DDL.
const truncateAll = `
TRUNCATE instance_records, instance_index, registry_config, registry_seed, pending_registration, audit_events
`

// PostgresContainer wraps a testcontainers Postgres instance with the
// registry schema applied.
type PostgresContainer struct {
	Container testcontainers.Container
	URL       string
	Pool      *pgxpool.Pool
}

// NewPostgresContainer starts a Postgres container and bootstraps the
// registry schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("hatchery"),
		tcpostgres.WithUsername("hatchery"),
		tcpostgres.WithPassword("hatchery"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to create postgres pool: %v", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	return &PostgresContainer{
		Container: container,
		URL:       url,
		Pool:      pool,
	}
}

// Reset truncates every table. Use between tests to ensure isolation.
func (p *PostgresContainer) Reset(ctx context.Context) error {
	_, err := p.Pool.Exec(ctx, truncateAll)
	return err
}
