package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"stuffinglist/obs"
	"stuffinglist/ossstore"
	"stuffinglist/redislock"
	"stuffinglist/session"
	"stuffinglist/store"
	"stuffinglist/streamq"
)

const serviceName = "stuffinglist"

type backends struct {
	sessions store.SessionStore
	gate     redislock.Gate
	journal  streamq.Journal
	rdb      *redis.Client
}

func main() {
	// Local development reads a .env file; deployed pods get real env vars.
	_ = godotenv.Load()

	shutdownObs, _ := obs.Init(serviceName)
	defer func() { _ = shutdownObs(context.Background()) }()

	be, err := openBackends(context.Background())
	if err != nil {
		log.Fatalf("init session backends failed: %v", err)
	}
	if be.rdb != nil {
		defer be.rdb.Close()
	}

	var ossSt *ossstore.Store
	if st, enabled, err := ossstore.NewFromEnv(); err != nil {
		if enabled {
			log.Fatalf("init oss store failed: %v", err)
		}
	} else if enabled {
		ossSt = st
		slog.Info("oss store enabled", "bucket", st.Bucket())
	}

	svc := session.NewService(be.sessions, be.gate, be.journal, ossSt, session.Options{
		TmpRoot:       readEnvDefault("TMP_ROOT", "./tmp"),
		MaxUploadMB:   readEnvIntDefault("STUFFING_MAX_UPLOAD_MB", 32),
		ActivityLimit: int64(readEnvIntDefault("ACTIVITY_LIMIT", 50)),
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	svc.RegisterRoutes(mux)

	addr := ":" + readEnvDefault("PORT", "8080")
	// Wrap order: cors -> otel/metrics -> mux
	srv := &http.Server{
		Addr:              addr,
		Handler:           corsMiddleware(obs.WrapHTTP(serviceName, mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("stuffing list service listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

// openBackends uses Redis when REDIS_ADDR is set and falls back to in-process state
// otherwise (single replica only).
func openBackends(ctx context.Context) (*backends, error) {
	sessionTTL := readEnvDurationSecondsDefault("SESSION_TTL_SECONDS", 24*time.Hour)

	redisAddr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if redisAddr == "" {
		slog.Warn("REDIS_ADDR 为空：使用进程内会话存储，仅适用于单实例")
		return &backends{
			sessions: store.NewInMemorySessionStore(),
			gate:     redislock.NewLocalGate(),
			journal:  streamq.NewMemoryJournal(readEnvIntDefault("JOURNAL_MAXLEN", 200)),
		}, nil
	}

	rdb, err := store.OpenRedis(ctx, redisAddr, os.Getenv("REDIS_PASSWORD"), readEnvIntDefault("REDIS_DB", 0))
	if err != nil {
		return nil, err
	}
	sessions, err := store.NewRedisSessionStore(rdb, readEnvDefault("SESSION_KEY_PREFIX", "stuffing:session:"), sessionTTL)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	gate := redislock.New(rdb,
		readEnvDefault("BUSY_LOCK_PREFIX", "stuffing:busy:"),
		readEnvDurationSecondsDefault("BUSY_LOCK_TTL_SECONDS", 2*time.Minute),
	)
	journal := streamq.NewRedisStreamJournal(rdb,
		readEnvDefault("JOURNAL_STREAM_PREFIX", "stuffing:activity:"),
		int64(readEnvIntDefault("JOURNAL_MAXLEN", 200)),
		sessionTTL,
	)
	slog.Info("session backends: redis enabled", "addr", redisAddr, "db", readEnvIntDefault("REDIS_DB", 0))
	return &backends{sessions: sessions, gate: gate, journal: journal, rdb: rdb}, nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
}

func readEnvDefault(key, defaultVal string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	return val
}

func readEnvIntDefault(key string, defaultVal int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}

func readEnvDurationSecondsDefault(key string, defaultVal time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultVal
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return time.Duration(n) * time.Second
}

func corsMiddleware(next http.Handler) http.Handler {
	allowOrigin := readEnvDefault("CORS_ALLOW_ORIGIN", "http://localhost:5173")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
