package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_FlatObjectWithType(t *testing.T) {
	msg := SyncComplete{ActionID: "a1", ResourceType: "pnr", ResourceID: "2455423890", Version: 3}

	data, err := Encode(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"OFFLINE_SYNC_COMPLETE","actionId":"a1","resourceType":"pnr","resourceId":"2455423890","version":3}`, string(data))

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestEncode_EmptyPayload(t *testing.T) {
	data, err := Encode(GetCacheSize{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"GET_CACHE_SIZE"}`, string(data))
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte(`{"type":"NOPE"}`))
	require.ErrorIs(t, err, ErrUnknownKind)

	_, err = Decode([]byte(`not json`))
	require.Error(t, err)
}

func TestDecode_EveryRegisteredKind(t *testing.T) {
	for kind := range registry {
		msg, err := Decode([]byte(`{"type":"` + string(kind) + `"}`))
		require.NoError(t, err, kind)
		assert.Equal(t, kind, msg.Kind())
	}
}

func TestBus_DeliversInOrderByKind(t *testing.T) {
	bus := NewBus(nil)

	var mu sync.Mutex
	var got []string
	bus.On(KindSyncComplete, func(_ context.Context, msg Message) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, msg.(SyncComplete).ActionID)
	})

	// posted before Start: delivered once the loop runs
	bus.Post(SyncComplete{ActionID: "1"})
	bus.Post(ActionFailed{ActionID: "x"})
	bus.Post(SyncComplete{ActionID: "2"})

	bus.Start(context.Background())
	bus.Post(SyncComplete{ActionID: "3"})
	bus.Close()

	assert.Equal(t, []string{"1", "2", "3"}, got)
	assert.False(t, bus.Post(SyncComplete{ActionID: "late"}))
}

func TestBus_UnsubscribeAndPanickingHandler(t *testing.T) {
	bus := NewBus(nil)
	bus.Start(context.Background())

	calls := 0
	off := bus.On(KindCacheSize, func(context.Context, Message) { calls++ })
	bus.On(KindCacheSize, func(context.Context, Message) { panic("boom") })

	ch, cancel := bus.Subscribe(4, KindCacheSize)
	defer cancel()

	bus.Post(CacheSize{})
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	off()
	bus.Post(CacheSize{})
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	bus.Close()
	assert.Equal(t, 1, calls)
}

func TestBus_CloseWithoutStart(t *testing.T) {
	bus := NewBus(nil)
	bus.Post(GetCacheSize{})
	bus.Close()
}

func TestHub_BroadcastsAndForwards(t *testing.T) {
	bus := NewBus(nil)
	bus.Start(context.Background())
	defer bus.Close()

	hub := NewHub(bus, nil)
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Views() == 1 }, time.Second, 10*time.Millisecond)

	clicks, cancel := bus.Subscribe(1, KindNotificationClick)
	defer cancel()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"NOTIFICATION_CLICK","pnr":"2455423890"}`)))
	select {
	case msg := <-clicks:
		assert.Equal(t, NotificationClick{PNR: "2455423890"}, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("view message not forwarded to bus")
	}

	// the hub echoes every bus message, including the forwarded click
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, KindNotificationClick, got.Kind())

	bus.Post(ConflictDetected{ConflictID: "c1", ResourceType: "pnr", ResourceID: "1"})
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"CONFLICT_DETECTED","conflictId":"c1","resourceType":"pnr","resourceId":"1"}`, string(data))
}

func TestHub_RejectsForeignOrigins(t *testing.T) {
	bus := NewBus(nil)
	bus.Start(context.Background())
	defer bus.Close()

	hub := NewHub(bus, nil, "https://app.pnrwatch.test")
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	tests := []struct {
		origin string
		ok     bool
	}{
		{"", true},
		{srv.URL, true},
		{"https://app.pnrwatch.test", true},
		{"https://evil.test", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(url, header)
			if !tt.ok {
				require.ErrorIs(t, err, websocket.ErrBadHandshake)
				assert.Equal(t, http.StatusForbidden, resp.StatusCode)
				return
			}
			require.NoError(t, err)
			conn.Close()
		})
	}
}
