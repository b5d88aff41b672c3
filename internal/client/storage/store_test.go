package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/medium"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/models"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/testutil"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string            `json:"name"`
	Count int               `json:"count"`
	Tags  []string          `json:"tags"`
	Attrs map[string]string `json:"attrs"`
}

func newStore(t *testing.T, capacity int64) (*Store, *medium.Memory, *testutil.StubClock) {
	t.Helper()
	m := medium.NewMemory(0)
	clock := testutil.FixedClock()
	return New(m, capacity, clock, nil), m, clock
}

func TestChecksum_KnownValues(t *testing.T) {
	assert.Equal(t, "0", Checksum(""))
	assert.Equal(t, "1n1e4y", Checksum("hello"))
	assert.Equal(t, "numd4y", Checksum(`{"a":1}`))
}

func TestSetGet_RoundTrip(t *testing.T) {
	s, _, _ := newStore(t, 0)
	ctx := context.Background()

	in := record{Name: "<Rajdhani & co>", Count: 3, Tags: []string{"a", "b"}, Attrs: map[string]string{"k": "v"}}
	require.True(t, s.Set(ctx, "rec", in, Options{}))

	var out record
	require.True(t, s.Get(ctx, "rec", &out))
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSet_WritesEnvelopeUnderNamespace(t *testing.T) {
	s, m, clock := newStore(t, 0)
	ctx := context.Background()

	require.True(t, s.Set(ctx, "k", map[string]int{"a": 1}, Options{TTL: time.Hour, Version: 4}))

	_, ok, err := m.GetItem(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "raw key must not be used")

	e, ok := s.Entry(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, clock.Now().UnixMilli(), e.Timestamp)
	assert.Equal(t, 4, e.Version)
	assert.Equal(t, int64(time.Hour/time.Millisecond), e.TTL)
	assert.Equal(t, "numd4y", e.Checksum)
}

func TestSet_VersionStoredVerbatim(t *testing.T) {
	s, _, _ := newStore(t, 0)
	ctx := context.Background()

	require.True(t, s.Set(ctx, "k", "v", Options{}))
	e, ok := s.Entry(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, 0, e.Version)
}

func TestSet_InvalidOptions(t *testing.T) {
	s, _, _ := newStore(t, 0)
	ctx := context.Background()

	assert.False(t, s.Set(ctx, "k", "v", Options{TTL: -time.Second}))
	assert.False(t, s.Set(ctx, "k", "v", Options{Version: -1}))
	assert.False(t, s.Set(ctx, "", "v", Options{}))
	assert.False(t, s.Has(ctx, "k"))
}

func TestGet_Absent(t *testing.T) {
	s, _, _ := newStore(t, 0)
	var out string
	assert.False(t, s.Get(context.Background(), "nope", &out))
}

func TestGet_CorruptEntryIsDeleted(t *testing.T) {
	s, m, _ := newStore(t, 0)
	ctx := context.Background()

	require.True(t, s.Set(ctx, "k", record{Name: "original"}, Options{}))

	raw, ok, err := m.GetItem(ctx, Namespace+"k")
	require.NoError(t, err)
	require.True(t, ok)
	m.Put(Namespace+"k", []byte(strings.Replace(string(raw), "original", "tampered", 1)))

	var out record
	assert.False(t, s.Get(ctx, "k", &out))

	_, ok, err = m.GetItem(ctx, Namespace+"k")
	require.NoError(t, err)
	assert.False(t, ok, "corrupt entry must be removed")

	// idempotent
	assert.False(t, s.Get(ctx, "k", &out))
}

func TestGet_UndecodableEntryIsDeleted(t *testing.T) {
	s, m, _ := newStore(t, 0)
	ctx := context.Background()

	m.Put(Namespace+"k", []byte("{not json"))

	var out record
	assert.False(t, s.Get(ctx, "k", &out))
	assert.Empty(t, s.Keys(ctx, ""))
}

func TestGet_TTLBoundary(t *testing.T) {
	s, _, clock := newStore(t, 0)
	ctx := context.Background()
	ttl := 10 * time.Second

	require.True(t, s.Set(ctx, "k", "v", Options{TTL: ttl}))

	clock.Advance(ttl - time.Millisecond)
	var out string
	require.True(t, s.Get(ctx, "k", &out))
	assert.Equal(t, "v", out)

	clock.Advance(2 * time.Millisecond)
	assert.False(t, s.Get(ctx, "k", &out))
	assert.Empty(t, s.Keys(ctx, ""), "expired entry must be removed")
}

func TestGet_NoTTLNeverExpires(t *testing.T) {
	s, _, clock := newStore(t, 0)
	ctx := context.Background()

	require.True(t, s.Set(ctx, "k", "v", Options{}))
	clock.Advance(365 * 24 * time.Hour)
	assert.True(t, s.Has(ctx, "k"))
}

func TestKeysRemoveClear_AreNamespaceScoped(t *testing.T) {
	s, m, _ := newStore(t, 0)
	ctx := context.Background()

	require.NoError(t, m.SetItem(ctx, "foreign", []byte("x")))
	require.True(t, s.Set(ctx, "pnr:2", 2, Options{}))
	require.True(t, s.Set(ctx, "pnr:1", 1, Options{}))
	require.True(t, s.Set(ctx, "user_preferences", 3, Options{}))

	assert.Equal(t, []string{"pnr:1", "pnr:2"}, s.Keys(ctx, "pnr:"))
	assert.Len(t, s.Keys(ctx, ""), 3)

	require.True(t, s.Remove(ctx, "pnr:1"))
	assert.False(t, s.Has(ctx, "pnr:1"))

	require.True(t, s.Clear(ctx))
	assert.Empty(t, s.Keys(ctx, ""))

	_, ok, err := m.GetItem(ctx, "foreign")
	require.NoError(t, err)
	assert.True(t, ok, "foreign keys survive Clear")
}

// entrySize measures the stored size of a fixed-shape entry.
func entrySize(t *testing.T, key string) int64 {
	t.Helper()
	s, _, _ := newStore(t, 0)
	require.True(t, s.Set(context.Background(), key, "xxxx", Options{}))
	st := s.Stats(context.Background())
	require.Len(t, st.Items, 1)
	return st.Items[0].Size
}

func TestSet_EvictsOldestWrittenFirst(t *testing.T) {
	size := entrySize(t, "a")
	s, _, clock := newStore(t, 3*size+size/2)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		require.True(t, s.Set(ctx, k, "xxxx", Options{}))
		clock.Advance(time.Second)
	}

	// reads do not refresh recency
	require.True(t, s.Has(ctx, "a"))

	require.True(t, s.Set(ctx, "d", "xxxx", Options{}))
	assert.Equal(t, []string{"b", "c", "d"}, s.Keys(ctx, ""))

	clock.Advance(time.Second)
	// rewriting b makes c the oldest
	require.True(t, s.Set(ctx, "b", "yyyy", Options{}))
	clock.Advance(time.Second)
	require.True(t, s.Set(ctx, "e", "xxxx", Options{}))
	assert.Equal(t, []string{"b", "d", "e"}, s.Keys(ctx, ""))
}

func TestSet_PinnedEntriesSurviveEviction(t *testing.T) {
	size := entrySize(t, "a")
	s, _, clock := newStore(t, 3*size+size/2)
	ctx := context.Background()

	require.True(t, s.Set(ctx, "a", "xxxx", Options{Pinned: true}))
	clock.Advance(time.Second)
	for _, k := range []string{"b", "c"} {
		require.True(t, s.Set(ctx, k, "xxxx", Options{}))
		clock.Advance(time.Second)
	}

	require.True(t, s.Set(ctx, "d", "xxxx", Options{}))
	assert.Equal(t, []string{"a", "c", "d"}, s.Keys(ctx, ""))

	e, ok := s.Entry(ctx, "a")
	require.True(t, ok)
	assert.True(t, e.Pinned)
}

func TestSet_FailsWhenOnlyPinnedEntriesCouldBeEvicted(t *testing.T) {
	size := entrySize(t, "a")
	s, _, clock := newStore(t, 2*size+size/2)
	ctx := context.Background()

	require.True(t, s.Set(ctx, "a", "xxxx", Options{Pinned: true}))
	clock.Advance(time.Second)
	require.True(t, s.Set(ctx, "b", "xxxx", Options{Pinned: true}))
	clock.Advance(time.Second)

	assert.False(t, s.Set(ctx, "c", "xxxx", Options{}))
	assert.Equal(t, []string{"a", "b"}, s.Keys(ctx, ""))
}

func TestSet_TooLargeForCapacity(t *testing.T) {
	s, _, _ := newStore(t, 16)
	assert.False(t, s.Set(context.Background(), "k", "a value far larger than sixteen bytes", Options{}))
}

func TestSet_MediumQuotaTriggersEviction(t *testing.T) {
	size := entrySize(t, "a")
	m := medium.NewMemory(2*size + size/2)
	clock := testutil.FixedClock()
	s := New(m, 0, clock, nil)
	ctx := context.Background()

	require.True(t, s.Set(ctx, "a", "xxxx", Options{}))
	clock.Advance(time.Second)
	require.True(t, s.Set(ctx, "b", "xxxx", Options{}))
	clock.Advance(time.Second)
	require.True(t, s.Set(ctx, "c", "xxxx", Options{}))

	assert.Equal(t, []string{"b", "c"}, s.Keys(ctx, ""))
}

func TestStats_NewestFirst(t *testing.T) {
	s, _, clock := newStore(t, 10_000)
	ctx := context.Background()

	require.True(t, s.Set(ctx, "old", "xxxx", Options{}))
	clock.Advance(time.Minute)
	require.True(t, s.Set(ctx, "new", "xxxx", Options{}))

	st := s.Stats(ctx)
	require.Equal(t, 2, st.ItemCount)
	assert.Equal(t, "new", st.Items[0].Key)
	assert.Equal(t, "old", st.Items[1].Key)
	assert.Equal(t, st.Items[0].Size+st.Items[1].Size, st.TotalBytes)
	assert.Equal(t, int64(10_000)-st.TotalBytes, st.Remaining)
	assert.Greater(t, st.Items[0].Timestamp, st.Items[1].Timestamp)
}

func TestEntry_ExpiredHelper(t *testing.T) {
	e := models.StorageEntry{Timestamp: 1000, TTL: 10}
	assert.False(t, e.Expired(1010))
	assert.True(t, e.Expired(1011))
}
