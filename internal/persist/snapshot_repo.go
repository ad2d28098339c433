package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const snapshotColumns = `id, name, step_counter, iteration, object_count, digest, data, created_at`

// SnapshotRepo stores snapshots in PostgreSQL.
type SnapshotRepo struct {
	db *DB
}

func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// Save inserts s in a single transaction.
func (r *SnapshotRepo) Save(ctx context.Context, s *Snapshot) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("snapshot begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO snapshots (`+snapshotColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.Name, s.StepCounter, s.Iteration, s.ObjectCount, s.Digest, s.Data, s.CreatedAt,
	); err != nil {
		return fmt.Errorf("snapshot insert: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *SnapshotRepo) Latest(ctx context.Context, name string) (*Snapshot, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots
		 WHERE name = $1 ORDER BY seq DESC LIMIT 1`, name)
	s, err := scanSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %q: %w", name, err)
	}
	return s, nil
}

func (r *SnapshotRepo) List(ctx context.Context, name string, limit int) ([]*Snapshot, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots
		 WHERE name = $1 ORDER BY seq DESC LIMIT $2`, name, pgLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SnapshotRepo) Close() error {
	r.db.Close()
	return nil
}

func scanSnapshot(row pgx.Row) (*Snapshot, error) {
	var s Snapshot
	var count int32
	if err := row.Scan(
		&s.ID, &s.Name, &s.StepCounter, &s.Iteration, &count, &s.Digest, &s.Data, &s.CreatedAt,
	); err != nil {
		return nil, err
	}
	s.ObjectCount = int(count)
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}

// pgLimit maps "no limit" to NULL, which PostgreSQL reads as LIMIT ALL.
func pgLimit(limit int) *int64 {
	if limit <= 0 {
		return nil
	}
	n := int64(limit)
	return &n
}
