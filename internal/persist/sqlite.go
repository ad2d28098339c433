package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore stores snapshots in a local SQLite file.
type SQLiteStore struct {
	sqlDB *sql.DB
	log   *zap.Logger
}

// OpenSQLite opens (creating if needed) the SQLite database at path and
// applies the snapshot migrations.
func OpenSQLite(ctx context.Context, path string, log *zap.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := runSQLiteMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	log.Debug("opened sqlite snapshot store", zap.String("path", path))
	return &SQLiteStore{sqlDB: sqlDB, log: log}, nil
}

// DB returns the underlying sql.DB instance.
func (s *SQLiteStore) DB() *sql.DB { return s.sqlDB }

func (s *SQLiteStore) Save(ctx context.Context, snap *Snapshot) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("snapshot begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (`+snapshotColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID.String(), snap.Name, snap.StepCounter, snap.Iteration, snap.ObjectCount,
		snap.Digest, snap.Data, snap.CreatedAt.UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("snapshot insert: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) Latest(ctx context.Context, name string) (*Snapshot, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots
		 WHERE name = ? ORDER BY seq DESC LIMIT 1`, name)
	snap, err := scanSQLiteSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %q: %w", name, err)
	}
	return snap, nil
}

func (s *SQLiteStore) List(ctx context.Context, name string, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots
		 WHERE name = ? ORDER BY seq DESC LIMIT ?`, name, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		snap, err := scanSQLiteSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.sqlDB.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSnapshot(row rowScanner) (*Snapshot, error) {
	var (
		snap    Snapshot
		id      string
		created int64
	)
	if err := row.Scan(
		&id, &snap.Name, &snap.StepCounter, &snap.Iteration, &snap.ObjectCount,
		&snap.Digest, &snap.Data, &created,
	); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("snapshot id %q: %w", id, err)
	}
	snap.ID = parsed
	snap.CreatedAt = time.UnixMilli(created).UTC()
	return &snap, nil
}
