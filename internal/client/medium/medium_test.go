package medium

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T, quota int64) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:", quota)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// media returns every implementation so behavioural tests run against both.
func media(t *testing.T, quota int64) map[string]Medium {
	return map[string]Medium{
		"memory": NewMemory(quota),
		"sqlite": openSQLite(t, quota),
	}
}

func TestMedium_SetAndGet(t *testing.T) {
	for name, m := range media(t, 0) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, m.SetItem(ctx, "k1", []byte{0x01, 0x02}))

			v, ok, err := m.GetItem(ctx, "k1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte{0x01, 0x02}, v)
		})
	}
}

func TestMedium_GetAbsent(t *testing.T) {
	for name, m := range media(t, 0) {
		t.Run(name, func(t *testing.T) {
			v, ok, err := m.GetItem(context.Background(), "absent")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Nil(t, v)
		})
	}
}

func TestMedium_UpsertOverwrites(t *testing.T) {
	for name, m := range media(t, 0) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, m.SetItem(ctx, "k", []byte("old")))
			require.NoError(t, m.SetItem(ctx, "k", []byte("new")))

			v, _, err := m.GetItem(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("new"), v)
		})
	}
}

func TestMedium_KeysAndRemove(t *testing.T) {
	for name, m := range media(t, 0) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, m.SetItem(ctx, "a", []byte{0xAA}))
			require.NoError(t, m.SetItem(ctx, "b", []byte{0xBB}))

			keys, err := m.Keys(ctx)
			require.NoError(t, err)
			sort.Strings(keys)
			assert.Equal(t, []string{"a", "b"}, keys)

			require.NoError(t, m.RemoveItem(ctx, "a"))
			require.NoError(t, m.RemoveItem(ctx, "a"))

			keys, err = m.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"b"}, keys)
		})
	}
}

func TestMedium_QuotaExceeded(t *testing.T) {
	for name, m := range media(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, m.SetItem(ctx, "a", []byte("1234"))) // 5 bytes

			err := m.SetItem(ctx, "b", []byte("123456")) // 7 more
			require.ErrorIs(t, err, common.ErrQuotaExceeded)

			_, ok, err := m.GetItem(ctx, "b")
			require.NoError(t, err)
			assert.False(t, ok, "rejected write must not be stored")

			// replacing an item only counts its new size
			require.NoError(t, m.SetItem(ctx, "a", []byte("123456789")))

			require.NoError(t, m.RemoveItem(ctx, "a"))
			require.NoError(t, m.SetItem(ctx, "b", []byte("123456")))
		})
	}
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "store.db")

	s, err := OpenSQLite(ctx, path, 0)
	require.NoError(t, err)
	require.NoError(t, s.SetItem(ctx, "pnr_watch_pnr:1234567890", []byte(`{"v":1}`)))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path, 0)
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.GetItem(ctx, "pnr_watch_pnr:1234567890")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"v":1}`, string(v))
}

func TestMemory_PutBypassesQuota(t *testing.T) {
	m := NewMemory(4)
	m.Put("key", []byte("corrupted"))

	v, ok, err := m.GetItem(context.Background(), "key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "corrupted", string(v))
}
