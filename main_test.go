package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"stuffinglist/store"
)

func TestReadEnvHelpers(t *testing.T) {
	t.Setenv("X_STR", "  v  ")
	t.Setenv("X_INT", "12")
	t.Setenv("X_BAD", "-3")
	t.Setenv("X_SECS", "90")
	if got := readEnvDefault("X_STR", "d"); got != "v" {
		t.Fatalf("str=%q", got)
	}
	if got := readEnvDefault("X_MISSING", "d"); got != "d" {
		t.Fatalf("default=%q", got)
	}
	if got := readEnvIntDefault("X_INT", 1); got != 12 {
		t.Fatalf("int=%d", got)
	}
	if got := readEnvIntDefault("X_BAD", 7); got != 7 {
		t.Fatalf("bad int=%d", got)
	}
	if got := readEnvDurationSecondsDefault("X_SECS", time.Hour); got != 90*time.Second {
		t.Fatalf("secs=%s", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Setenv("CORS_ALLOW_ORIGIN", "https://app.example")
	called := false
	h := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/sessions", nil))
	if rr.Code != http.StatusNoContent || called {
		t.Fatalf("code=%d called=%v", rr.Code, called)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("origin=%q", got)
	}
}

func TestOpenBackendsInMemory(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	be, err := openBackends(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := be.sessions.(*store.InMemorySessionStore); !ok || be.rdb != nil {
		t.Fatalf("expected in-memory backends, got %T", be.sessions)
	}
}

func TestOpenBackendsRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_ADDR", mr.Addr())
	be, err := openBackends(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer be.rdb.Close()
	if _, ok := be.sessions.(*store.RedisSessionStore); !ok {
		t.Fatalf("expected redis store, got %T", be.sessions)
	}
}
