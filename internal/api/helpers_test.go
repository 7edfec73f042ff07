package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/creality-bridge/internal/entity"
	"github.com/nerrad567/creality-bridge/internal/infrastructure/config"
	"github.com/nerrad567/creality-bridge/internal/infrastructure/database"
	"github.com/nerrad567/creality-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/creality-bridge/internal/integration"
	"github.com/nerrad567/creality-bridge/internal/printer"
	"github.com/nerrad567/creality-bridge/internal/telemetry"
	"github.com/nerrad567/creality-bridge/migrations"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

type testEnv struct {
	srv     *Server
	handler http.Handler
	manager *integration.Manager
	hub     *Hub
	history *telemetry.SQLiteHistoryRepository
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

// newTestEnv builds a Server over a real manager and in-memory SQLite.
// An empty secret disables authentication.
func newTestEnv(t *testing.T, secret string) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	log := testLogger()
	wsCfg := config.WebSocketConfig{
		Path:           "/ws",
		MaxMessageSize: 8192,
		PingInterval:   30,
		PongTimeout:    10,
	}
	hub := NewHub(wsCfg, log)

	manager := integration.NewManager(
		integration.NewSQLiteRepository(db.DB),
		integration.ClientDefaults{
			Reconnect: printer.ReconnectPolicy{InitialDelay: 20 * time.Millisecond},
			Discovery: entity.ModeLazy,
		},
		nil,
		log,
	)
	manager.AddSink(hub)
	t.Cleanup(manager.Stop)

	history := telemetry.NewSQLiteHistoryRepository(db.DB)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: wsCfg,
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: secret, Issuer: "creality-bridge"},
		},
		Logger:  log,
		Manager: manager,
		History: history,
		Hub:     hub,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return &testEnv{
		srv:     srv,
		handler: srv.buildRouter(),
		manager: manager,
		hub:     hub,
		history: history,
	}
}

// do sends a request through the router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshalling body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// addEntry creates an entry through the manager, bypassing auth.
func (e *testEnv) addEntry(t *testing.T, host string, port int) *integration.Entry {
	t.Helper()
	entry, err := e.manager.AddEntry(context.Background(), integration.Entry{IP: host, Port: port})
	if err != nil {
		t.Fatalf("AddEntry() error = %v", err)
	}
	return entry
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

// fakePrinter serves one JSON frame to every connection and returns its
// host and port.
func fakePrinter(t *testing.T, frame string) (string, int) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(frame))
	}))
	t.Cleanup(srv.Close)

	u, _ := url.Parse(srv.URL)
	host, portStr, _ := net.SplitHostPort(u.Host)
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

func validClaims() jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    "creality-bridge",
		Subject:   "tester",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
