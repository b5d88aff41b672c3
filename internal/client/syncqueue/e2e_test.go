package syncqueue

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/client"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/conflicts"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/medium"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/messaging"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/models"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/repositories/pnrs"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/repositories/preferences"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/storage"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/common"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// versionedServer is a minimal optimistic-concurrency resource server.
type versionedServer struct {
	mu      sync.Mutex
	version map[string]int
	body    map[string][]byte
	applied []string
}

func newVersionedServer() *versionedServer {
	return &versionedServer{version: map[string]int{}, body: map[string][]byte{}}
}

func (s *versionedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := r.URL.Path
	current := s.version[path]
	if m := r.Header.Get("If-Match"); m != "" && client.ParseETag(m) != current {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":          client.VersionConflictCode,
			"currentVersion": current,
			"current":        json.RawMessage(s.body[path]),
		})
		return
	}

	body, _ := io.ReadAll(r.Body)
	s.version[path] = current + 1
	s.body[path] = body
	s.applied = append(s.applied, string(body))
	w.Header().Set("ETag", client.FormatETag(current+1))
	w.WriteHeader(http.StatusOK)
}

func TestEndToEnd_ThreeOfflineEditsOfOneResource(t *testing.T) {
	ctx := context.Background()
	server := newVersionedServer()
	server.version["/api/pnr/2455423890"] = 1
	server.body["/api/pnr/2455423890"] = []byte(`{"pnr":"2455423890","chartStatus":"initial"}`)
	srv := httptest.NewServer(server)
	defer srv.Close()

	clock := testutil.FixedClock()
	store := storage.New(medium.NewMemory(0), 0, clock, nil)
	repo := pnrs.NewStoreRepository(store, clock)
	api, err := client.NewHTTPClient(srv.URL, nil)
	require.NoError(t, err)

	bus := messaging.NewBus(nil)
	resolver := conflicts.NewResolver(store, api, bus, "", clock, nil, nil)
	resolver.Register(common.ResourcePNR, repo)
	queue := NewQueue(store, clock, nil)
	syncer := NewSyncer(queue, api, resolver, bus, Config{}, clock, nil)

	// three edits captured offline against the last seen version
	for _, chart := range []string{"first", "second", "third"} {
		body, err := json.Marshal(models.PNRRecord{PNR: "2455423890", ChartStatus: chart})
		require.NoError(t, err)
		_, err = queue.Enqueue(ctx, models.QueuedAction{
			Operation:    models.OperationUpdate,
			ResourceType: common.ResourcePNR,
			ResourceID:   "2455423890",
			Payload:      body,
			BaseVersion:  1,
			Request: models.CapturedRequest{
				Method: http.MethodPut,
				URL:    "/api/pnr/2455423890",
				Header: http.Header{"If-Match": {`"1"`}, "Content-Type": {"application/json"}},
				Body:   body,
			},
		})
		require.NoError(t, err)
	}

	rep, err := syncer.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Succeeded: 3}, rep)

	require.Len(t, server.applied, 3, "each mutation applied exactly once")
	assert.Contains(t, server.applied[0], "first")
	assert.Contains(t, server.applied[1], "second")
	assert.Contains(t, server.applied[2], "third")
	assert.Equal(t, 4, server.version["/api/pnr/2455423890"])
	assert.Contains(t, string(server.body["/api/pnr/2455423890"]), "third")

	rec, ok := repo.GetPNR(ctx, "2455423890")
	require.True(t, ok)
	assert.Equal(t, "third", rec.ChartStatus)
	assert.Equal(t, 4, repo.Version(ctx, "2455423890"))
	assert.Empty(t, queue.Pending(ctx))
	assert.Empty(t, resolver.Pending(ctx))

	// replaying again must not re-apply anything
	_, err = syncer.Replay(ctx)
	require.NoError(t, err)
	assert.Len(t, server.applied, 3)
}

func TestEndToEnd_ConflictServerWinsAndClientWins(t *testing.T) {
	ctx := context.Background()
	server := newVersionedServer()
	server.version["/api/pnr/1"] = 5
	server.body["/api/pnr/1"] = []byte(`{"pnr":"1","chartStatus":"server"}`)
	server.version["/api/pnr/2"] = 5
	server.body["/api/pnr/2"] = []byte(`{"pnr":"2","chartStatus":"server"}`)
	srv := httptest.NewServer(server)
	defer srv.Close()

	clock := testutil.FixedClock()
	store := storage.New(medium.NewMemory(0), 0, clock, nil)
	repo := pnrs.NewStoreRepository(store, clock)
	api, err := client.NewHTTPClient(srv.URL, nil)
	require.NoError(t, err)

	bus := messaging.NewBus(nil)
	resolver := conflicts.NewResolver(store, api, bus, "", clock, nil, nil)
	resolver.Register(common.ResourcePNR, repo)
	queue := NewQueue(store, clock, nil)
	syncer := NewSyncer(queue, api, resolver, bus, Config{}, clock, nil)

	for _, id := range []string{"1", "2"} {
		body := []byte(`{"pnr":"` + id + `","chartStatus":"client"}`)
		_, err := queue.Enqueue(ctx, models.QueuedAction{
			Operation:    models.OperationUpdate,
			ResourceType: common.ResourcePNR,
			ResourceID:   id,
			Payload:      body,
			BaseVersion:  2,
			Request: models.CapturedRequest{
				Method: http.MethodPut,
				URL:    "/api/pnr/" + id,
				Header: http.Header{"If-Match": {`"2"`}},
				Body:   body,
			},
		})
		require.NoError(t, err)
	}

	rep, err := syncer.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Conflicted: 2}, rep)

	pending := resolver.Pending(ctx)
	require.Len(t, pending, 2)

	require.NoError(t, resolver.Resolve(ctx, pending[0].ID, models.StrategyServerWins))
	rec, ok := repo.GetPNR(ctx, "1")
	require.True(t, ok)
	assert.Equal(t, "server", rec.ChartStatus)
	assert.Equal(t, 5, repo.Version(ctx, "1"))

	require.NoError(t, resolver.Resolve(ctx, pending[1].ID, models.StrategyClientWins))
	assert.Contains(t, string(server.body["/api/pnr/2"]), "client")
	assert.Equal(t, 6, server.version["/api/pnr/2"])
	assert.Equal(t, 6, repo.Version(ctx, "2"))

	assert.Empty(t, resolver.Pending(ctx))
	assert.Empty(t, queue.Pending(ctx))
}

func TestEndToEnd_AcceptedEditKeepsLaterQueuedEdit(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) > 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("ETag", client.FormatETag(1))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	clock := testutil.FixedClock()
	store := storage.New(medium.NewMemory(0), 0, clock, nil)
	prefs := preferences.NewService(store, clock, nil)
	api, err := client.NewHTTPClient(srv.URL, nil)
	require.NoError(t, err)

	bus := messaging.NewBus(nil)
	resolver := conflicts.NewResolver(store, api, bus, "", clock, nil, nil)
	resolver.Register(common.ResourcePreferences, prefs)
	queue := NewQueue(store, clock, nil)
	syncer := NewSyncer(queue, api, resolver, bus, Config{}, clock, nil)

	for _, kv := range [][2]string{{"theme", "dark"}, {"lang", "hi"}} {
		require.True(t, prefs.UpdatePreference(ctx, kv[0], kv[1]))
		body, err := json.Marshal(prefs.Get(ctx))
		require.NoError(t, err)
		_, err = queue.Enqueue(ctx, models.QueuedAction{
			Operation:    models.OperationUpdate,
			ResourceType: common.ResourcePreferences,
			ResourceID:   common.ResourcePreferences,
			Payload:      body,
			Request: models.CapturedRequest{
				Method: http.MethodPut,
				URL:    client.PreferencesPath,
				Header: http.Header{"If-Match": {`"0"`}, "Content-Type": {"application/json"}},
				Body:   body,
			},
		})
		require.NoError(t, err)
	}

	rep, err := syncer.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Succeeded: 1, Retried: 1}, rep)
	require.Len(t, queue.Pending(ctx), 1)

	var lang string
	require.True(t, prefs.Value(ctx, "lang", &lang), "queued edit must stay in the local record")
	assert.Equal(t, "hi", lang)
	var theme string
	require.True(t, prefs.Value(ctx, "theme", &theme))
	assert.Equal(t, "dark", theme)
	assert.Equal(t, 1, prefs.Version(ctx))
}
