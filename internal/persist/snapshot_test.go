package persist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hobgoblin/qao/internal/codec"
	"github.com/hobgoblin/qao/internal/config"
	"github.com/hobgoblin/qao/internal/core/qao"
)

const gaugeTag = "test.gauge"

type gauge struct {
	qao.Base
	level int32
}

func (g *gauge) Update1() { g.level++ }

func (g *gauge) TypeTag() string { return gaugeTag }

func (g *gauge) Persist(w *codec.Writer) error {
	w.WriteD(g.level)
	return nil
}

func gaugeFactory(r *codec.Reader, rt *qao.Runtime, _ any) error {
	h, err := qao.ReadObjectHeader(r)
	if err != nil {
		return err
	}
	g := &gauge{level: r.ReadD()}
	if err := r.Err(); err != nil {
		return err
	}
	return qao.RestoreObject(rt, g, h, true)
}

func gaugeTypes() *qao.TypeRegistry {
	types := qao.NewTypeRegistry()
	types.Register(gaugeTag, gaugeFactory)
	return types
}

func newGaugeRuntime(t *testing.T, frames int) (*qao.Runtime, *gauge) {
	t.Helper()
	rt := qao.NewRuntime()
	g := &gauge{Base: qao.NewBase("g", 1)}
	_, err := rt.AddObject(g)
	require.NoError(t, err)
	for i := 0; i < frames; i++ {
		require.NoError(t, rt.StartStep())
		_, err := rt.AdvanceStep(qao.AllEvents)
		require.NoError(t, err)
	}
	return rt, g
}

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "snap.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCaptureAndRestore(t *testing.T) {
	rt, g := newGaugeRuntime(t, 3)
	snap, err := Capture("run", rt)
	require.NoError(t, err)
	assert.Equal(t, "run", snap.Name)
	assert.Equal(t, rt.StepCounter(), snap.StepCounter)
	assert.Equal(t, int64(3), snap.Iteration)
	assert.Equal(t, 1, snap.ObjectCount)
	assert.Len(t, snap.Digest, 32)
	require.NoError(t, snap.Verify())

	rt2 := qao.NewRuntime()
	require.NoError(t, snap.Restore(rt2, gaugeTypes(), nil))
	got, ok := qao.FindAs[*gauge](rt2, g.ID())
	require.True(t, ok)
	assert.Equal(t, int32(3), got.level)
	assert.Equal(t, rt.StepCounter(), rt2.StepCounter())
}

func TestVerifyDetectsTampering(t *testing.T) {
	rt, _ := newGaugeRuntime(t, 1)
	snap, err := Capture("run", rt)
	require.NoError(t, err)
	snap.Data[len(snap.Data)-1] ^= 0xff

	assert.True(t, errors.Is(snap.Verify(), ErrDigestMismatch))
	assert.True(t, errors.Is(snap.Restore(qao.NewRuntime(), gaugeTypes(), nil), ErrDigestMismatch))
}

func TestSQLiteStoreSaveLatestList(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Latest(ctx, "run")
	assert.True(t, errors.Is(err, ErrNotFound))

	rt, _ := newGaugeRuntime(t, 1)
	var saved []*Snapshot
	for i := 0; i < 3; i++ {
		snap, err := Capture("run", rt)
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, snap))
		saved = append(saved, snap)
		require.NoError(t, rt.StartStep())
		_, err = rt.AdvanceStep(qao.AllEvents)
		require.NoError(t, err)
	}
	other, err := Capture("other", rt)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, other))

	latest, err := s.Latest(ctx, "run")
	require.NoError(t, err)
	assert.Equal(t, saved[2].ID, latest.ID)
	assert.Equal(t, saved[2].Data, latest.Data)
	assert.Equal(t, saved[2].Iteration, latest.Iteration)
	assert.Equal(t, saved[2].CreatedAt.UnixMilli(), latest.CreatedAt.UnixMilli())
	require.NoError(t, latest.Verify())

	all, err := s.List(ctx, "run", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, saved[2].ID, all[0].ID)
	assert.Equal(t, saved[0].ID, all[2].ID)

	two, err := s.List(ctx, "run", 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)

	none, err := s.List(ctx, "missing", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.db")
	s, err := OpenSQLite(context.Background(), path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenSQLite(context.Background(), path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	s, err := OpenStore(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "snap.db"),
	}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = OpenStore(ctx, config.DatabaseConfig{Driver: "mysql"}, zap.NewNop())
	assert.True(t, errors.Is(err, ErrUnknownDriver))

	_, err = OpenSQLite(ctx, " ", zap.NewNop())
	assert.Error(t, err)
}

func TestSnapshotRepoPostgres(t *testing.T) {
	dsn := os.Getenv("QAO_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("QAO_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := OpenStore(ctx, config.DatabaseConfig{Driver: "postgres", DSN: dsn, MaxOpenConns: 2}, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	rt, _ := newGaugeRuntime(t, 2)
	name := "pg-" + t.Name()
	snap, err := Capture(name, rt)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, snap))

	latest, err := s.Latest(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, latest.ID)
	require.NoError(t, latest.Verify())

	list, err := s.List(ctx, name, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, list)
}
