package profile

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "profiles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreEmpty(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.Latest(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStoreSaveAndLoad(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	v, _ := warmVM(t, true)

	older := Capture(v)
	older.TakenAt = 1000
	newer := Capture(v)
	newer.TakenAt = 2000
	require.NoError(t, s.Save(ctx, newer))
	require.NoError(t, s.Save(ctx, older))

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)
	assert.Equal(t, newer.Sites, latest.Sites)

	got, err := s.Get(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.TakenAt)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, len(newer.Sites), list[0].Sites)
	assert.Positive(t, list[0].Size)

	require.NoError(t, s.Delete(ctx, older.ID))
	_, err = s.Get(ctx, older.ID)
	assert.ErrorIs(t, err, ErrNoSnapshot)
	assert.ErrorIs(t, s.Delete(ctx, older.ID), ErrNoSnapshot)
}

func TestStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.db")
	ctx := context.Background()
	v, _ := warmVM(t, true)
	snap := Capture(v)

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, snap))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, path, s.Path())
}

func TestStoreInMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &Snapshot{ID: "mem", TakenAt: 1}))
	got, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mem", got.ID)
}
