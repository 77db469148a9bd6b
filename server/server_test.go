package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/claude-watch/relay/config"
	"github.com/claude-watch/relay/server"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Port:                0,
		Host:                "127.0.0.1",
		Env:                 "development",
		KVDatabasePath:      filepath.Join(dir, "kv.sqlite"),
		KVCacheSize:         128,
		KVSweepCron:         "@every 1h",
		PairingCodeLength:   6,
		PairingMaxCollision: 5,
		QueueMaxDepth:       50,
		PushSigningKeyPath:  "", // push disabled for this test
		PushRateLimitPerSec: 1,
		PushRateLimitBurst:  1,
	}
}

func TestServerNewWiresHealthRoute(t *testing.T) {
	srv, err := server.New(newTestConfig(t))
	if err != nil {
		t.Fatalf("server.New() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestServerNewDisablesPushWithoutSigningKey(t *testing.T) {
	srv, err := server.New(newTestConfig(t))
	if err != nil {
		t.Fatalf("server.New() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	if srv.Push() == nil {
		t.Fatalf("Push() = nil, want a disabled-but-non-nil dispatcher")
	}
}
