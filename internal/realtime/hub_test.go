package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticTokens map[string]string

func (s staticTokens) ValidateToken(token string) (string, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", errors.New("invalid token")
}

func newTestHub(t *testing.T, opts Options) (*Hub, *httptest.Server) {
	t.Helper()
	tokens := staticTokens{"tok-alice": "alice", "tok-bob": "bob"}
	hub := NewHub(opts, tokens, NewMemoryPresenceStore(), zap.NewNop())
	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		_ = hub.Close()
		server.Close()
	})
	return hub, server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func readEnvelope(t *testing.T, ws *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, ws.ReadJSON(&env))
	return env
}

func dialIdentified(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL(server), header)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = ws.Close() })

	env := readEnvelope(t, ws)
	require.Equal(t, EventIdentified, env.Event)
	return ws
}

func TestHub_IdentifyWithBearerHeader(t *testing.T) {
	hub, server := newTestHub(t, Options{})

	dialIdentified(t, server, "tok-alice")

	assert.Equal(t, 1, hub.OnlineCount())
	online, err := hub.IsOnline(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, online)
}

func TestHub_IdentifyWithCookie(t *testing.T) {
	hub, server := newTestHub(t, Options{CookieName: "token"})

	header := http.Header{}
	header.Set("Cookie", "token=tok-bob")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(server), header)
	require.NoError(t, err)
	defer ws.Close()

	env := readEnvelope(t, ws)
	assert.Equal(t, EventIdentified, env.Event)
	assert.Equal(t, 1, hub.OnlineCount())
}

func TestHub_IdentityEvent(t *testing.T) {
	hub, server := newTestHub(t, Options{})

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.NoError(t, err)
	defer ws.Close()

	// Events before identification are refused
	require.NoError(t, ws.WriteJSON(map[string]interface{}{"event": "updateLocation", "data": map[string]float64{"latitude": 1}}))
	env := readEnvelope(t, ws)
	assert.Equal(t, EventError, env.Event)

	require.NoError(t, ws.WriteJSON(map[string]interface{}{"event": EventIdentity, "data": map[string]string{"token": "nope"}}))
	env = readEnvelope(t, ws)
	assert.Equal(t, EventError, env.Event)
	assert.Equal(t, 0, hub.OnlineCount())

	require.NoError(t, ws.WriteJSON(map[string]interface{}{"event": EventIdentity, "data": map[string]string{"token": "tok-alice"}}))
	env = readEnvelope(t, ws)
	assert.Equal(t, EventIdentified, env.Event)
	assert.JSONEq(t, `{"userId":"alice"}`, string(env.Data))
	assert.Equal(t, 1, hub.OnlineCount())
}

func TestHub_EmitToUser(t *testing.T) {
	hub, server := newTestHub(t, Options{})

	alice := dialIdentified(t, server, "tok-alice")
	bob := dialIdentified(t, server, "tok-bob")

	require.NoError(t, hub.EmitToUser("alice", "newOrder", map[string]string{"orderId": "o1"}))

	env := readEnvelope(t, alice)
	assert.Equal(t, "newOrder", env.Event)
	assert.JSONEq(t, `{"orderId":"o1"}`, string(env.Data))

	// bob receives nothing
	require.NoError(t, bob.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := bob.ReadMessage()
	assert.Error(t, err)

	assert.ErrorIs(t, hub.EmitToUser("carol", "newOrder", nil), ErrUserNotConnected)
}

func TestHub_EmitToAllConnectionsOfUser(t *testing.T) {
	hub, server := newTestHub(t, Options{})

	first := dialIdentified(t, server, "tok-alice")
	second := dialIdentified(t, server, "tok-alice")
	assert.Equal(t, 1, hub.OnlineCount())

	require.NoError(t, hub.EmitToUser("alice", "update-status", map[string]string{"status": "preparing"}))
	assert.Equal(t, "update-status", readEnvelope(t, first).Event)
	assert.Equal(t, "update-status", readEnvelope(t, second).Event)
}

func TestHub_Broadcast(t *testing.T) {
	hub, server := newTestHub(t, Options{})

	alice := dialIdentified(t, server, "tok-alice")
	bob := dialIdentified(t, server, "tok-bob")

	require.NoError(t, hub.Broadcast("announcement", map[string]string{"text": "hi"}))
	assert.Equal(t, "announcement", readEnvelope(t, alice).Event)
	assert.Equal(t, "announcement", readEnvelope(t, bob).Event)
}

func TestHub_ClientEventDispatch(t *testing.T) {
	hub, server := newTestHub(t, Options{})

	var mu sync.Mutex
	var gotUser string
	var gotData json.RawMessage
	done := make(chan struct{})
	hub.On("updateLocation", func(ctx context.Context, userID string, data json.RawMessage) error {
		mu.Lock()
		gotUser, gotData = userID, data
		mu.Unlock()
		close(done)
		return nil
	})

	ws := dialIdentified(t, server, "tok-bob")
	require.NoError(t, ws.WriteJSON(map[string]interface{}{
		"event": "updateLocation",
		"data":  map[string]float64{"latitude": 12.9, "longitude": 77.6},
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "bob", gotUser)
	assert.JSONEq(t, `{"latitude":12.9,"longitude":77.6}`, string(gotData))
}

func TestHub_HandlerErrorIsReported(t *testing.T) {
	hub, server := newTestHub(t, Options{})
	hub.On("updateLocation", func(ctx context.Context, userID string, data json.RawMessage) error {
		return errors.New("invalid coordinates")
	})

	ws := dialIdentified(t, server, "tok-alice")
	require.NoError(t, ws.WriteJSON(map[string]interface{}{"event": "updateLocation", "data": map[string]int{}}))

	env := readEnvelope(t, ws)
	assert.Equal(t, EventError, env.Event)
	assert.Contains(t, string(env.Data), "invalid coordinates")
}

func TestHub_DisconnectClearsPresence(t *testing.T) {
	hub, server := newTestHub(t, Options{})

	ws := dialIdentified(t, server, "tok-alice")
	require.NoError(t, ws.Close())

	assert.Eventually(t, func() bool {
		online, _ := hub.IsOnline(context.Background(), "alice")
		return !online && hub.OnlineCount() == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestHub_RejectsDisallowedOrigin(t *testing.T) {
	_, server := newTestHub(t, Options{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origin == "https://app.vingo.test"
		},
	})

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://app.vingo.test")
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL(server), header)
	require.NoError(t, err)
	defer ws.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
}

func TestHub_MethodNotAllowed(t *testing.T) {
	_, server := newTestHub(t, Options{})

	req, err := http.NewRequest(http.MethodPut, server.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "GET, POST", resp.Header.Get("Allow"))
}

func TestHub_PostEvent(t *testing.T) {
	hub, server := newTestHub(t, Options{})

	got := make(chan string, 1)
	hub.On("updateLocation", func(ctx context.Context, userID string, data json.RawMessage) error {
		got <- userID
		return nil
	})

	body := `{"event":"updateLocation","data":{"latitude":1,"longitude":2}}`

	resp, err := http.Post(server.URL, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodPost, server.URL, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer tok-alice")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "alice", <-got)

	req, _ = http.NewRequest(http.MethodPost, server.URL, strings.NewReader(`{"event":"nope"}`))
	req.Header.Set("Authorization", "Bearer tok-alice")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHub_CloseRefusesNewClients(t *testing.T) {
	hub, server := newTestHub(t, Options{})

	ws := dialIdentified(t, server, "tok-alice")
	require.NoError(t, hub.Close())

	// Existing client is disconnected
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	assert.Error(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	assert.ErrorIs(t, hub.EmitToUser("alice", "x", nil), ErrHubClosed)
}

func TestMemoryPresenceStore(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPresenceStore()

	require.NoError(t, p.SetOnline(ctx, "u1", "c1"))
	require.NoError(t, p.SetOnline(ctx, "u1", "c2"))
	require.NoError(t, p.SetOffline(ctx, "u1", "c1"))

	online, err := p.IsOnline(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, online, "one connection remains")

	require.NoError(t, p.SetOffline(ctx, "u1", "c2"))
	online, _ = p.IsOnline(ctx, "u1")
	assert.False(t, online)

	assert.NoError(t, p.SetOffline(ctx, "unknown", "c9"))
}

type countingPresence struct {
	*MemoryPresenceStore
	mu      sync.Mutex
	setOnce map[string]int
}

func (p *countingPresence) SetOnline(ctx context.Context, userID, connID string) error {
	p.mu.Lock()
	p.setOnce[userID]++
	p.mu.Unlock()
	return p.MemoryPresenceStore.SetOnline(ctx, userID, connID)
}

func (p *countingPresence) count(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setOnce[userID]
}

func TestHub_PongRefreshesPresence(t *testing.T) {
	presence := &countingPresence{MemoryPresenceStore: NewMemoryPresenceStore(), setOnce: map[string]int{}}
	hub := NewHub(Options{PingInterval: 30 * time.Millisecond}, staticTokens{"tok-alice": "alice"}, presence, zap.NewNop())
	server := httptest.NewServer(hub)
	defer func() {
		_ = hub.Close()
		server.Close()
	}()

	ws := dialIdentified(t, server, "tok-alice")
	assert.Equal(t, 1, presence.count("alice"))

	// The client answers pings only while reading
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	assert.Eventually(t, func() bool {
		return presence.count("alice") >= 3
	}, 2*time.Second, 10*time.Millisecond)

	online, err := hub.IsOnline(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, online)
}
