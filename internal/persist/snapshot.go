package persist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/hobgoblin/qao/internal/codec"
	"github.com/hobgoblin/qao/internal/config"
	"github.com/hobgoblin/qao/internal/core/qao"
)

var (
	ErrNotFound       = errors.New("snapshot not found")
	ErrDigestMismatch = errors.New("snapshot digest mismatch")
	ErrUnknownDriver  = errors.New("unknown database driver")
)

// Snapshot is one saved runtime state. Data is the output of qao.Save.
type Snapshot struct {
	ID          uuid.UUID
	Name        string
	StepCounter int64
	Iteration   int64
	ObjectCount int
	Digest      []byte
	Data        []byte
	CreatedAt   time.Time
}

// NewSnapshot wraps data saved from rt, stamping the counters and digest.
func NewSnapshot(name string, rt *qao.Runtime, data []byte) *Snapshot {
	sum := blake2b.Sum256(data)
	return &Snapshot{
		ID:          uuid.New(),
		Name:        name,
		StepCounter: rt.StepCounter(),
		Iteration:   rt.Iteration(),
		ObjectCount: rt.ObjectCount(),
		Digest:      sum[:],
		Data:        data,
		CreatedAt:   time.Now().UTC(),
	}
}

// Capture saves rt and wraps the result.
func Capture(name string, rt *qao.Runtime) (*Snapshot, error) {
	w := codec.NewWriter()
	if err := qao.Save(rt, w); err != nil {
		return nil, fmt.Errorf("capture %q: %w", name, err)
	}
	return NewSnapshot(name, rt, w.Bytes()), nil
}

// Verify checks Data against Digest.
func (s *Snapshot) Verify() error {
	sum := blake2b.Sum256(s.Data)
	if !bytes.Equal(sum[:], s.Digest) {
		return fmt.Errorf("%w: %s", ErrDigestMismatch, s.ID)
	}
	return nil
}

// Restore verifies s and loads it into rt.
func (s *Snapshot) Restore(rt *qao.Runtime, types *qao.TypeRegistry, ctx any) error {
	if err := s.Verify(); err != nil {
		return err
	}
	if err := qao.Load(rt, codec.NewReader(s.Data), types, ctx); err != nil {
		return fmt.Errorf("restore snapshot %s: %w", s.ID, err)
	}
	return nil
}

// Store persists snapshots grouped by name.
type Store interface {
	Save(ctx context.Context, s *Snapshot) error
	// Latest returns the most recently saved snapshot called name.
	Latest(ctx context.Context, name string) (*Snapshot, error)
	// List returns up to limit snapshots called name, newest first. A limit
	// of zero or less means no limit.
	List(ctx context.Context, name string, limit int) ([]*Snapshot, error)
	Close() error
}

// OpenStore opens the snapshot store selected by cfg.Driver and applies its
// migrations.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return OpenSQLite(ctx, cfg.DSN, log)
	case "postgres":
		db, err := NewDB(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		if err := RunMigrations(ctx, db.Pool); err != nil {
			db.Close()
			return nil, err
		}
		return NewSnapshotRepo(db), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
