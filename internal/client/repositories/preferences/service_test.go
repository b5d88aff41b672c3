package preferences

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/medium"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/models"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/storage"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupService(t *testing.T) (*Service, *testutil.StubClock) {
	t.Helper()
	clock := testutil.FixedClock()
	store := storage.New(medium.NewMemory(0), 0, clock, nil)
	return NewService(store, clock, nil), clock
}

func TestGet_EmptyByDefault(t *testing.T) {
	s, _ := setupService(t)
	p := s.Get(context.Background())
	assert.Empty(t, p.Values)
	assert.NotNil(t, p.Values)
	assert.Equal(t, 0, s.Version(context.Background()))
}

func TestUpdatePreference_ThenValue(t *testing.T) {
	s, clock := setupService(t)
	ctx := context.Background()

	require.True(t, s.UpdatePreference(ctx, "theme", "dark"))
	require.True(t, s.UpdatePreference(ctx, "notifyOnChart", true))

	var theme string
	require.True(t, s.Value(ctx, "theme", &theme))
	assert.Equal(t, "dark", theme)

	var notify bool
	require.True(t, s.Value(ctx, "notifyOnChart", &notify))
	assert.True(t, notify)

	assert.True(t, s.Get(ctx).FieldUpdatedAt["theme"].Equal(clock.Now()))

	var missing string
	assert.False(t, s.Value(ctx, "language", &missing))
}

func TestUpdatePreference_ConcurrentFieldsAreNotLost(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.True(t, s.UpdatePreference(ctx, fmt.Sprintf("field-%d", i), i))
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.Get(ctx).Values, n)
}

func TestUpdatePreference_KeepsReconciledVersion(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()

	data, _ := json.Marshal(models.Preferences{Values: map[string]json.RawMessage{"theme": json.RawMessage(`"light"`)}})
	require.NoError(t, s.Apply(ctx, "", data, 5))
	require.True(t, s.UpdatePreference(ctx, "theme", "dark"))

	assert.Equal(t, 5, s.Version(ctx))
}

func TestReset(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()

	require.True(t, s.UpdatePreference(ctx, "theme", "dark"))
	require.True(t, s.Reset(ctx))
	assert.Empty(t, s.Get(ctx).Values)

	require.True(t, s.UpdatePreference(ctx, "theme", "dark"))
	require.NoError(t, s.Delete(ctx, ""))
	assert.Empty(t, s.Get(ctx).Values)
}

func TestApply_RejectsGarbage(t *testing.T) {
	s, _ := setupService(t)
	require.Error(t, s.Apply(context.Background(), "", json.RawMessage(`[1,2`), 1))
}

func TestMergePreferences_PerFieldLastWriterWins(t *testing.T) {
	t0 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	client := models.Preferences{
		Values: map[string]json.RawMessage{
			"theme":    json.RawMessage(`"dark"`),
			"language": json.RawMessage(`"hi"`),
			"local":    json.RawMessage(`1`),
		},
		FieldUpdatedAt: map[string]time.Time{
			"theme":    t0.Add(time.Hour),
			"language": t0,
		},
	}
	server := models.Preferences{
		Values: map[string]json.RawMessage{
			"theme":    json.RawMessage(`"light"`),
			"language": json.RawMessage(`"en"`),
			"remote":   json.RawMessage(`2`),
		},
		FieldUpdatedAt: map[string]time.Time{
			"theme":    t0,
			"language": t0.Add(time.Hour),
			"remote":   t0,
		},
	}
	c, _ := json.Marshal(client)
	sv, _ := json.Marshal(server)

	out, err := MergePreferences(c, sv)
	require.NoError(t, err)

	var got models.Preferences
	require.NoError(t, json.Unmarshal(out, &got))
	assert.JSONEq(t, `"dark"`, string(got.Values["theme"]))
	assert.JSONEq(t, `"en"`, string(got.Values["language"]))
	assert.JSONEq(t, `1`, string(got.Values["local"]))
	assert.JSONEq(t, `2`, string(got.Values["remote"]))
	assert.True(t, got.FieldUpdatedAt["language"].Equal(t0.Add(time.Hour)))
}

func TestMergePreferences_TieGoesToClient(t *testing.T) {
	t0 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	c, _ := json.Marshal(models.Preferences{
		Values:         map[string]json.RawMessage{"theme": json.RawMessage(`"dark"`)},
		FieldUpdatedAt: map[string]time.Time{"theme": t0},
	})
	sv, _ := json.Marshal(models.Preferences{
		Values:         map[string]json.RawMessage{"theme": json.RawMessage(`"light"`)},
		FieldUpdatedAt: map[string]time.Time{"theme": t0},
	})

	s, _ := setupService(t)
	out, err := s.Merge(c, sv)
	require.NoError(t, err)

	var got models.Preferences
	require.NoError(t, json.Unmarshal(out, &got))
	assert.JSONEq(t, `"dark"`, string(got.Values["theme"]))
}
