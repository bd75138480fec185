package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	store "github.com/synergyfw/crmstore"
)

func connect(t *testing.T) (*MemoryAdapter, Connection) {
	t.Helper()
	a := NewMemoryAdapter()
	cfg := store.MemoryConfig()
	conn, err := a.Connect(context.Background(), &cfg)
	require.NoError(t, err)
	return a, conn
}

func TestMemoryConnection_Basics(t *testing.T) {
	ctx := context.Background()
	a, conn := connect(t)

	require.NoError(t, conn.Set(ctx, "Account:1", []byte(`{"name":"Acme"}`)))
	got, err := conn.Get(ctx, "Account:1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Acme"}`, string(got))

	_, err = conn.Get(ctx, "Account:2")
	assert.True(t, a.IsKeyNotFoundError(err))

	require.NoError(t, conn.MSet(ctx, map[string][]byte{"Account:3": {}, "Lead:1": {}}))
	keys, err := conn.Keys(ctx, "Account:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"Account:1", "Account:3"}, keys)

	require.NoError(t, conn.Delete(ctx, "Account:1"))
	ok, err := conn.Exists(ctx, "Account:1")
	require.NoError(t, err)
	assert.False(t, ok)

	stats := conn.Stats().(MemoryStats)
	assert.EqualValues(t, 2, stats.Keys)
}

func TestMemoryTx_CommitAppliesBufferedWrites(t *testing.T) {
	ctx := context.Background()
	_, conn := connect(t)
	require.NoError(t, conn.Set(ctx, "Case:1", []byte("old")))
	require.NoError(t, conn.Set(ctx, "Case:2", []byte("gone")))

	tx, err := conn.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Set(ctx, "Case:1", []byte("new")))
	require.NoError(t, tx.Set(ctx, "Case:3", []byte("added")))
	require.NoError(t, tx.Delete(ctx, "Case:2"))

	// Reads inside see the overlay, reads outside do not.
	v, err := tx.Get(ctx, "Case:1")
	require.NoError(t, err)
	assert.Equal(t, "new", string(v))
	keys, err := tx.Keys(ctx, "Case:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"Case:1", "Case:3"}, keys)
	_, err = tx.Get(ctx, "Case:2")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	v, err = conn.Get(ctx, "Case:1")
	require.NoError(t, err)
	assert.Equal(t, "old", string(v))

	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, tx.Rollback())

	keys, err = conn.Keys(ctx, "Case:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"Case:1", "Case:3"}, keys)

	assert.Error(t, tx.Set(ctx, "Case:4", nil))
}

func TestMemoryTx_Rollback(t *testing.T) {
	ctx := context.Background()
	_, conn := connect(t)

	tx, err := conn.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Set(ctx, "Lead:1", []byte("x")))
	require.NoError(t, tx.Rollback())

	ok, err := conn.Exists(ctx, "Lead:1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 1, conn.Stats().(MemoryStats).Rollbacks)
}

func TestMemoryTx_CommitAfterCancel(t *testing.T) {
	_, conn := connect(t)
	ctx, cancel := context.WithCancel(context.Background())

	tx, err := conn.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Set(ctx, "Lead:1", []byte("x")))
	cancel()

	err = tx.Commit(ctx)
	assert.ErrorIs(t, err, store.ErrTransactionAborted)
	assert.ErrorIs(t, err, context.Canceled)

	ok, err := conn.Exists(context.Background(), "Lead:1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryTx_OneAtATime(t *testing.T) {
	ctx := context.Background()
	_, conn := connect(t)

	first, err := conn.Begin(ctx)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = conn.Begin(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, first.Commit(ctx))
	second, err := conn.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, second.Rollback())
}

func TestMemoryAdapterRegistry(t *testing.T) {
	a, err := Get(store.TypeMemory)
	require.NoError(t, err)
	assert.Equal(t, "memory", a.Name())

	_, err = Get("redis")
	assert.ErrorIs(t, err, store.ErrDriverNotFound)
	assert.Contains(t, List(), store.TypeMemory)
}
