package record

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hatchery/contracts/spawn"
	"hatchery/internal/factory/models"
	"hatchery/pkg/platform/sentinel"
)

// PostgresRecordStore persists instance records in PostgreSQL.
//
// Expected schema (see pkg/testutil/containers for the test bootstrap):
//
//	CREATE TABLE instance_records (
//	    addr       TEXT PRIMARY KEY,
//	    code_hash  TEXT        NOT NULL,
//	    label      TEXT        NOT NULL,
//	    owner      TEXT        NOT NULL,
//	    status     TEXT        NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
type PostgresRecordStore struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a PostgreSQL-backed record store.
func NewPostgres(pool *pgxpool.Pool) *PostgresRecordStore {
	return &PostgresRecordStore{pool: pool}
}

// Create saves a new record. The address must be unused.
func (s *PostgresRecordStore) Create(ctx context.Context, record *models.InstanceRecord) error {
	query := `
		INSERT INTO instance_records (addr, code_hash, label, owner, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (addr) DO NOTHING
	`
	tag, err := s.pool.Exec(ctx, query,
		string(record.Identity.Address),
		record.Identity.CodeHash,
		record.Label,
		string(record.Owner),
		string(record.Status),
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create instance record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("instance record %s exists: %w", record.Identity.Address, sentinel.ErrConflict)
	}
	return nil
}

// Find returns the record for an address.
func (s *PostgresRecordStore) Find(ctx context.Context, addr spawn.Address) (*models.InstanceRecord, error) {
	query := `
		SELECT addr, code_hash, label, owner, status, created_at, updated_at
		FROM instance_records
		WHERE addr = $1
	`
	record, err := scanRecord(s.pool.QueryRow(ctx, query, string(addr)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("instance record not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find instance record: %w", err)
	}
	return record, nil
}

// FindMany returns records for the given addresses, in input order.
// Any missing address fails the whole call.
func (s *PostgresRecordStore) FindMany(ctx context.Context, addrs []spawn.Address) ([]*models.InstanceRecord, error) {
	if len(addrs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(addrs))
	for i, addr := range addrs {
		keys[i] = string(addr)
	}

	query := `
		SELECT addr, code_hash, label, owner, status, created_at, updated_at
		FROM instance_records
		WHERE addr = ANY($1)
	`
	rows, err := s.pool.Query(ctx, query, keys)
	if err != nil {
		return nil, fmt.Errorf("find instance records: %w", err)
	}
	defer rows.Close()

	byAddr := make(map[spawn.Address]*models.InstanceRecord, len(addrs))
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instance record: %w", err)
		}
		byAddr[record.Identity.Address] = record
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find instance records: %w", err)
	}

	records := make([]*models.InstanceRecord, 0, len(addrs))
	for _, addr := range addrs {
		record, ok := byAddr[addr]
		if !ok {
			return nil, fmt.Errorf("instance record %s not found: %w", addr, sentinel.ErrNotFound)
		}
		records = append(records, record)
	}
	return records, nil
}

// Execute runs a validate-then-mutate sequence on one record inside a
// transaction, holding the row lock (SELECT FOR UPDATE) during both.
// The mutation is skipped and the transaction rolled back when
// validation fails.
func (s *PostgresRecordStore) Execute(
	ctx context.Context,
	addr spawn.Address,
	validate func(*models.InstanceRecord) error,
	mutate func(*models.InstanceRecord),
) (*models.InstanceRecord, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin record update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		SELECT addr, code_hash, label, owner, status, created_at, updated_at
		FROM instance_records
		WHERE addr = $1
		FOR UPDATE
	`
	record, err := scanRecord(tx.QueryRow(ctx, query, string(addr)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("instance record not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock instance record: %w", err)
	}

	if err := validate(record); err != nil {
		return nil, err
	}
	mutate(record)

	update := `
		UPDATE instance_records
		SET status = $2, updated_at = $3
		WHERE addr = $1
	`
	if _, err := tx.Exec(ctx, update, string(addr), string(record.Status), record.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update instance record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit record update: %w", err)
	}
	return record, nil
}

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.InstanceRecord, error) {
	var (
		record models.InstanceRecord
		addr   string
		owner  string
		status string
	)
	err := row.Scan(
		&addr,
		&record.Identity.CodeHash,
		&record.Label,
		&owner,
		&status,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.Identity.Address = spawn.Address(addr)
	record.Owner = spawn.Address(owner)
	record.Status = models.RecordStatus(status)
	return &record, nil
}
