package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mentor-voice/auth"
	"mentor-voice/config"
	"mentor-voice/messages"
	"mentor-voice/policy"
	"mentor-voice/session"
	"mentor-voice/upstream"
)

// stubChannel is an upstream that echoes nothing and ends when closed.
type stubChannel struct {
	closed    chan struct{}
	closeOnce sync.Once
}

func newStubChannel() *stubChannel {
	return &stubChannel{closed: make(chan struct{})}
}

func (c *stubChannel) SendText(string, bool) error { return nil }
func (c *stubChannel) SendAudio([]byte) error      { return nil }

func (c *stubChannel) Receive() (*upstream.Event, error) {
	<-c.closed
	return nil, io.EOF
}

func (c *stubChannel) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

type stubConnector struct {
	err      error
	connects atomic.Int32
}

func (c *stubConnector) Connect(context.Context, upstream.ModelConfig) (upstream.Channel, error) {
	c.connects.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return newStubChannel(), nil
}

type stubStores struct{}

func (stubStores) ContentPackage(context.Context, string) (*policy.ContentPackage, error) {
	return &policy.ContentPackage{ID: "pkg-1", Title: "Fractions"}, nil
}

func (stubStores) DailyPlan(context.Context, string) (*policy.DailyPlan, error) {
	return &policy.DailyPlan{StudentName: "Ada"}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Port:           0,
		GeminiModel:    "models/test",
		JWTSecret:      "test-secret",
		MaxSessions:    4,
		SessionTimeout: time.Minute,
		AuthTimeout:    500 * time.Millisecond,
		DrainTimeout:   time.Second,
		TextQueueSize:  8,
		AudioQueueSize: 8,
		AllowedOrigins: []string{"*"},
	}
}

func startServer(t *testing.T, connector upstream.Connector) (*httptest.Server, *auth.Verifier) {
	t.Helper()
	cfg := testConfig()
	verifier := auth.NewVerifier(cfg.JWTSecret)
	manager := session.NewManager(nil, zap.NewNop(), cfg.MaxSessions, cfg.SessionTimeout)
	srv := New(cfg, zap.NewNop(), verifier, manager, connector, stubStores{}, stubStores{})

	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, verifier
}

func dial(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readServerMessage(t *testing.T, conn *websocket.Conn) *messages.ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg messages.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return &msg
}

// expectErrorThenClose asserts that a failed handshake explains itself with
// an error frame before the close frame arrives.
func expectErrorThenClose(t *testing.T, conn *websocket.Conn, errCode string, closeCode int) {
	t.Helper()
	msg := readServerMessage(t, conn)
	require.Equal(t, messages.TypeError, msg.Type)
	assert.Equal(t, errCode, msg.Code)
	expectClose(t, conn, closeCode)
}

func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		require.ErrorAs(t, err, &ce, "expected close frame, got %v", err)
		assert.Equal(t, code, ce.Code)
		return
	}
}

func TestTutorHandshake(t *testing.T) {
	ts, verifier := startServer(t, &stubConnector{})
	conn := dial(t, ts, "/ws/tutor")

	token, err := verifier.MintToken("student-7", "student", time.Minute)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":  "authenticate",
		"token": token,
		"topic_context": map[string]string{
			"subject": "math",
			"skill":   "fractions",
		},
	}))

	assert.Equal(t, messages.TypeAuthSuccess, readServerMessage(t, conn).Type)
	assert.Equal(t, messages.TypeSessionReady, readServerMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "end_conversation"}))
	assert.Equal(t, messages.TypeSessionEnd, readServerMessage(t, conn).Type)
}

func TestTutorMissingTopicContext(t *testing.T) {
	connector := &stubConnector{}
	ts, verifier := startServer(t, connector)
	conn := dial(t, ts, "/ws/tutor")

	token, err := verifier.MintToken("student-7", "student", time.Minute)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":  "authenticate",
		"token": token,
	}))

	expectErrorThenClose(t, conn, messages.ErrCodeMissingPrecondition, messages.CloseMissingPrecondition)
	assert.Equal(t, int32(0), connector.connects.Load(), "no upstream connection may be attempted")
}

func TestInvalidToken(t *testing.T) {
	ts, _ := startServer(t, &stubConnector{})
	conn := dial(t, ts, "/ws/tutor")

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":  "authenticate",
		"token": "not-a-jwt",
	}))

	expectErrorThenClose(t, conn, messages.ErrCodeAuthFailed, messages.CloseInvalidToken)
}

func TestFirstFrameMustAuthenticate(t *testing.T) {
	ts, _ := startServer(t, &stubConnector{})
	conn := dial(t, ts, "/ws/tutor")

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type": "text",
		"text": "hello",
	}))

	expectErrorThenClose(t, conn, messages.ErrCodeAuthFailed, messages.CloseMissingAuth)
}

func TestAuthTimeout(t *testing.T) {
	ts, _ := startServer(t, &stubConnector{})
	conn := dial(t, ts, "/ws/tutor")

	expectErrorThenClose(t, conn, messages.ErrCodeAuthFailed, messages.CloseAuthTimeout)
}

func TestUpstreamUnavailable(t *testing.T) {
	ts, verifier := startServer(t, &stubConnector{err: errors.New("dial refused")})
	conn := dial(t, ts, "/ws/learn")

	token, err := verifier.MintToken("student-7", "student", time.Minute)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":       "authenticate",
		"token":      token,
		"package_id": "pkg-1",
	}))

	assert.Equal(t, messages.TypeAuthSuccess, readServerMessage(t, conn).Type)
	expectClose(t, conn, messages.CloseUpstreamUnavailable)
}

func TestBriefingDefaultsToTokenStudent(t *testing.T) {
	ts, verifier := startServer(t, &stubConnector{})
	conn := dial(t, ts, "/ws/briefing")

	token, err := verifier.MintToken("student-7", "student", time.Minute)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":  "authenticate",
		"token": token,
	}))

	assert.Equal(t, messages.TypeAuthSuccess, readServerMessage(t, conn).Type)
	assert.Equal(t, messages.TypeSessionReady, readServerMessage(t, conn).Type)
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := startServer(t, &stubConnector{})

	resp, err := ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"status":"ok"`)
}
