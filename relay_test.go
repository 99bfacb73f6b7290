package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const allowedOrigin = "http://allowed.example"

var (
	server  *httptest.Server
	testHub *hub
)

func TestMain(m *testing.M) {
	os.Exit(runServer(m))
}

func runServer(m *testing.M) int {
	cfg, err := loadConfig([]string{"-origins", allowedOrigin}, func(string) string { return "" })
	if err != nil {
		log.Fatal("config:", err)
	}
	testHub = newHub(zap.NewNop())
	defer testHub.heartbeat.stop()
	server = httptest.NewServer(newHandler(cfg, testHub))
	defer server.Close()
	return m.Run()
}

func serverURL(path string) string {
	u, _ := url.Parse(server.URL)
	u.Path = path
	return u.String()
}

func dial(t *testing.T, header http.Header) *websocket.Conn {
	t.Helper()
	u, _ := url.Parse(server.URL)
	u.Scheme = "ws"
	u.Path = "/"
	dialer := &websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	ws, resp, err := dialer.Dial(u.String(), header)
	require.NoError(t, err, "dial: %v", resp)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func readFrame(t *testing.T, ws *websocket.Conn) string {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	return string(msg)
}

// expectSilence leaves ws unusable for further reads.
func expectSilence(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, msg, err := ws.ReadMessage()
	require.Error(t, err, "unexpected frame %s", msg)
}

func joinRoom(t *testing.T, ws *websocket.Conn, room string, members int) {
	t.Helper()
	send(t, ws, string(joinFrame(room)))
	require.Eventually(t, func() bool {
		return len(testHub.registry.membersOf(room)) == members
	}, 3*time.Second, time.Millisecond)
}

func getBody(t *testing.T, path string, header http.Header) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, serverURL(path), nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestRoomChat(t *testing.T) {
	a, b, c := dial(t, nil), dial(t, nil), dial(t, nil)
	joinRoom(t, a, "chat-x", 1)
	joinRoom(t, b, "chat-x", 2)
	joinRoom(t, c, "chat-y", 1)

	send(t, a, `{"type":"chat","payload":{"message":"hi"}}`)

	want := `{"type":"chat","payload":{"message":"hi","roomId":"chat-x"}}`
	assert.Equal(t, want, readFrame(t, a))
	assert.Equal(t, want, readFrame(t, b))
	expectSilence(t, c)
}

func TestRejoinMovesConnection(t *testing.T) {
	a, b := dial(t, nil), dial(t, nil)
	joinRoom(t, a, "rejoin-1", 1)
	joinRoom(t, b, "rejoin-1", 2)
	joinRoom(t, b, "rejoin-2", 1)

	send(t, a, `{"type":"chat","payload":{"message":"still here?"}}`)

	assert.Contains(t, readFrame(t, a), `"roomId":"rejoin-1"`)
	expectSilence(t, b)
}

func TestNotInRoom(t *testing.T) {
	d, e := dial(t, nil), dial(t, nil)
	joinRoom(t, d, "quiet", 1)

	send(t, e, `{"type":"chat","payload":{"message":"hi"}}`)

	assert.Equal(t, string(notInRoom()), readFrame(t, e))
	expectSilence(t, d)
}

func TestFallbackBroadcast(t *testing.T) {
	joined := dial(t, nil)
	joinRoom(t, joined, "fallback", 1)
	unjoined := dial(t, nil)
	// A reply proves the server has registered it.
	send(t, unjoined, `{"type":"chat","payload":{"message":"ping"}}`)
	readFrame(t, unjoined)
	sender := dial(t, nil)
	send(t, sender, `{"type":"chat","payload":{"message":"ping"}}`)
	readFrame(t, sender)

	send(t, sender, "hello")

	want := `{"type":"chat","payload":{"message":"hello"}}`
	for _, ws := range []*websocket.Conn{joined, unjoined, sender} {
		assert.Equal(t, want, readFrame(t, ws))
	}
}

func TestMalformedInputKeepsConnection(t *testing.T) {
	a := dial(t, nil)
	joinRoom(t, a, "sturdy", 1)

	send(t, a, `{"type":"join","payload":{}}`)
	send(t, a, `{"type":"unknown"}`)
	send(t, a, `{"type":"chat","payload":{"message":"ok"}}`)

	assert.Equal(t, `{"type":"chat","payload":{"message":"ok","roomId":"sturdy"}}`, readFrame(t, a))
}

func TestLongChatKeepsConnection(t *testing.T) {
	a := dial(t, nil)
	joinRoom(t, a, "long", 1)
	long := strings.Repeat("x", 5000)

	send(t, a, `{"type":"chat","payload":{"message":"`+long+`"}}`)
	assert.Equal(t, `{"type":"chat","payload":{"message":"`+long+`","roomId":"long"}}`, readFrame(t, a))

	send(t, a, `{"type":"chat","payload":{"message":"after"}}`)
	assert.Equal(t, `{"type":"chat","payload":{"message":"after","roomId":"long"}}`, readFrame(t, a))
}

func TestOversizedFrameCloses(t *testing.T) {
	a := dial(t, nil)
	send(t, a, strings.Repeat("x", maxMessageSize+1))

	a.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := a.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseMessageTooBig), "got %v", err)
}

func TestUpgradeHeadersCaseInsensitive(t *testing.T) {
	cfg, err := loadConfig(nil, env(nil))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Connection", "keep-alive, Upgrade")
	req.Header.Set("Upgrade", "WebSocket")
	rec := httptest.NewRecorder()

	newHandler(cfg, testHub).ServeHTTP(rec, req)

	// The upgrade route took the request; without a handshake key it fails
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"ok"`)
}

func TestPublishLongBody(t *testing.T) {
	ws := dial(t, nil)
	joinRoom(t, ws, "long-news", 1)
	body := strings.Repeat("y", 5000)

	resp, err := http.Post(serverURL("/rooms/long-news"), "text/plain", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readFrame(t, ws), body)
}

func TestDisconnectPurges(t *testing.T) {
	a := dial(t, nil)
	joinRoom(t, a, "leaving", 1)

	require.NoError(t, a.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	a.Close()

	require.Eventually(t, func() bool {
		return len(testHub.registry.membersOf("leaving")) == 0
	}, 3*time.Second, time.Millisecond)
}

func TestWebsocketOrigin(t *testing.T) {
	dial(t, http.Header{"Origin": {allowedOrigin}})

	dialer := &websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	u, _ := url.Parse(server.URL)
	u.Scheme = "ws"
	_, resp, err := dialer.Dial(u.String(), http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestPublish(t *testing.T) {
	ws := dial(t, nil)
	joinRoom(t, ws, "news", 1)

	resp, err := http.Post(serverURL("/rooms/news"), "text/plain", strings.NewReader("Hello"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 1, out["delivered"])

	assert.Equal(t, `{"type":"chat","payload":{"message":"Hello","roomId":"news"}}`, readFrame(t, ws))
}

func TestPublishRejectsBadBody(t *testing.T) {
	for _, body := range []string{"", "\xff\xfe", strings.Repeat("x", maxPublishSize+1)} {
		resp, err := http.Post(serverURL("/rooms/news"), "text/plain", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	resp, body := getBody(t, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"ok":true}`, body)
}

func TestDebugOrigins(t *testing.T) {
	_, body := getBody(t, "/debug/origins", nil)
	assert.JSONEq(t, `{"allowedOrigins":["`+allowedOrigin+`"],"envAllowedOrigins":null}`, body)
}

func TestStats(t *testing.T) {
	ws := dial(t, nil)
	joinRoom(t, ws, "stats", 1)

	_, body := getBody(t, "/stats", nil)
	var out map[string]int
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.GreaterOrEqual(t, out["rooms"], 1)
	assert.GreaterOrEqual(t, out["connections"], 1)
}

func TestMetrics(t *testing.T) {
	resp, body := getBody(t, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]interface{}
	assert.NoError(t, json.Unmarshal([]byte(body), &out))
}

func TestCORS(t *testing.T) {
	resp, _ := getBody(t, "/health", http.Header{"Origin": {allowedOrigin}})
	assert.Equal(t, allowedOrigin, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET,POST,OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))

	resp, _ = getBody(t, "/health", http.Header{"Origin": {"http://evil.example"}})
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	req, err := http.NewRequest(http.MethodOptions, serverURL("/rooms/news"), nil)
	require.NoError(t, err)
	req.Header.Set("Origin", allowedOrigin)
	preflight, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	preflight.Body.Close()
	assert.Equal(t, http.StatusNoContent, preflight.StatusCode)
	assert.Equal(t, allowedOrigin, preflight.Header.Get("Access-Control-Allow-Origin"))
}

func TestHTML(t *testing.T) {
	_, body := getBody(t, "/rooms/somestring", nil)
	assert.Contains(t, body, "<html>")
	assert.Contains(t, body, "somestring")

	_, body = getBody(t, "/", nil)
	assert.Contains(t, body, "Join Room")
}

func TestXSS(t *testing.T) {
	u, _ := url.Parse(server.URL)
	u.Path = "/rooms/<xss>"
	resp, err := http.Get(u.String())
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "<xss>")
}
