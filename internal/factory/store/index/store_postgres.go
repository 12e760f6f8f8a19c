package index

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"hatchery/contracts/spawn"
	"hatchery/internal/factory/models"
)

// PostgresIndexStore persists indices in PostgreSQL. Insertion order
// is materialized by a BIGSERIAL sequence column: rows keep their seq
// across deletions of neighbours, so Page stays stable without any
// renumbering.
//
// Expected schema (see pkg/testutil/containers for the test bootstrap):
//
//	CREATE TABLE instance_index (
//	    status TEXT   NOT NULL,
//	    owner  TEXT   NOT NULL DEFAULT '',
//	    addr   TEXT   NOT NULL,
//	    seq    BIGSERIAL,
//	    PRIMARY KEY (status, owner, addr)
//	);
//	CREATE INDEX instance_index_page ON instance_index (status, owner, seq);
type PostgresIndexStore struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a PostgreSQL-backed index store.
func NewPostgres(pool *pgxpool.Pool) *PostgresIndexStore {
	return &PostgresIndexStore{pool: pool}
}

// Insert adds addr to the index. Re-inserting a member keeps its
// original position: the conflict clause leaves the existing row and
// its seq untouched.
func (s *PostgresIndexStore) Insert(ctx context.Context, key models.IndexKey, addr spawn.Address) error {
	query := `
		INSERT INTO instance_index (status, owner, addr)
		VALUES ($1, $2, $3)
		ON CONFLICT (status, owner, addr) DO NOTHING
	`
	if _, err := s.pool.Exec(ctx, query, string(key.Status), string(key.Owner), string(addr)); err != nil {
		return fmt.Errorf("insert index member: %w", err)
	}
	return nil
}

// Remove deletes addr from the index. Removing a non-member is a no-op.
func (s *PostgresIndexStore) Remove(ctx context.Context, key models.IndexKey, addr spawn.Address) error {
	query := `
		DELETE FROM instance_index
		WHERE status = $1 AND owner = $2 AND addr = $3
	`
	if _, err := s.pool.Exec(ctx, query, string(key.Status), string(key.Owner), string(addr)); err != nil {
		return fmt.Errorf("remove index member: %w", err)
	}
	return nil
}

// Contains reports membership.
func (s *PostgresIndexStore) Contains(ctx context.Context, key models.IndexKey, addr spawn.Address) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM instance_index
			WHERE status = $1 AND owner = $2 AND addr = $3
		)
	`
	var exists bool
	if err := s.pool.QueryRow(ctx, query, string(key.Status), string(key.Owner), string(addr)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check index membership: %w", err)
	}
	return exists, nil
}

// Page returns the window of the index selected by page, in insertion
// order.
func (s *PostgresIndexStore) Page(ctx context.Context, key models.IndexKey, page models.Page) ([]spawn.Address, error) {
	if page.Limit() == 0 {
		return nil, nil
	}

	query := `
		SELECT addr FROM instance_index
		WHERE status = $1 AND owner = $2
		ORDER BY seq
		LIMIT $3 OFFSET $4
	`
	rows, err := s.pool.Query(ctx, query, string(key.Status), string(key.Owner), page.Limit(), page.Offset())
	if err != nil {
		return nil, fmt.Errorf("page index: %w", err)
	}
	defer rows.Close()

	var members []spawn.Address
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan index member: %w", err)
		}
		members = append(members, spawn.Address(addr))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("page index: %w", err)
	}
	return members, nil
}

// Count returns the number of members in the index.
func (s *PostgresIndexStore) Count(ctx context.Context, key models.IndexKey) (int, error) {
	query := `
		SELECT COUNT(*) FROM instance_index
		WHERE status = $1 AND owner = $2
	`
	var count int
	if err := s.pool.QueryRow(ctx, query, string(key.Status), string(key.Owner)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count index members: %w", err)
	}
	return count, nil
}
