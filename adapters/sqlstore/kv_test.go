package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/esrepo-go/ports/kv"
)

func TestKvStore(t *testing.T) {
	var (
		ctx = t.Context()
		db  = NewTestSQLite(t)
	)
	store, err := NewKvStore(Config{DB: db, Dialect: DialectSQLite})
	require.NoError(t, err)

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, store.Create(ctx, "k", kv.Entry{Data: []byte("v1"), Meta: map[string]string{"enc": "raw"}}))
	require.ErrorIs(t, store.Create(ctx, "k", kv.Entry{Data: []byte("v2")}), kv.ErrKeyExists)

	e, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v1", string(e.Data))
	require.Equal(t, "raw", e.Meta["enc"])

	require.NoError(t, store.Put(ctx, "k", kv.Entry{Data: []byte("v3")}))
	e, err = store.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v3", string(e.Data))
	require.Nil(t, e.Meta)

	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Get(ctx, "k")
	require.ErrorIs(t, err, kv.ErrNotFound)
	require.NoError(t, store.Delete(ctx, "k"))
}
