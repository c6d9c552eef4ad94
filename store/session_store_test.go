package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"stuffinglist/domain"
)

func newRedisStore(t *testing.T) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	st, err := NewRedisSessionStore(rdb, "test:session:", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return st, mr
}

func stores(t *testing.T) map[string]SessionStore {
	rs, _ := newRedisStore(t)
	return map[string]SessionStore{
		"memory": NewInMemorySessionStore(),
		"redis":  rs,
	}
}

func TestSessionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			sess := &domain.Session{ID: "s1", CreatedAt: time.Now().UTC(), Form: domain.NewSeedForm(), ExportOSSKey: "k"}
			if err := st.Create(ctx, sess); err != nil {
				t.Fatal(err)
			}
			if err := st.Create(ctx, sess); !errors.Is(err, ErrSessionExists) {
				t.Fatalf("duplicate create err=%v", err)
			}

			got, ok, err := st.Get(ctx, "s1")
			if err != nil || !ok {
				t.Fatalf("get ok=%v err=%v", ok, err)
			}
			if got.Form.InvFlowNo != "INV-E2500619" || len(got.Form.Items) != 6 || got.ExportOSSKey != "k" {
				t.Fatalf("unexpected session: %+v", got)
			}

			// copies are detached
			got.Form.Items[0].MaterialNo = "changed"
			again, _, _ := st.Get(ctx, "s1")
			if again.Form.Items[0].MaterialNo == "changed" {
				t.Fatalf("store shares item slice with callers")
			}

			if _, ok, err := st.Get(ctx, "missing"); ok || err != nil {
				t.Fatalf("missing ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestSessionStoreUpdate(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := st.Create(ctx, &domain.Session{ID: "s2", Form: &domain.ShipmentForm{}}); err != nil {
				t.Fatal(err)
			}
			out, ok, err := st.Update(ctx, "s2", func(s *domain.Session) error {
				s.Form.PoNo = "SO-1"
				return nil
			})
			if err != nil || !ok || out.Form.PoNo != "SO-1" {
				t.Fatalf("update out=%+v ok=%v err=%v", out, ok, err)
			}

			boom := errors.New("boom")
			_, ok, err = st.Update(ctx, "s2", func(s *domain.Session) error {
				s.Form.PoNo = "lost"
				return boom
			})
			if !ok || !errors.Is(err, boom) {
				t.Fatalf("aborted update ok=%v err=%v", ok, err)
			}
			got, _, _ := st.Get(ctx, "s2")
			if got.Form.PoNo != "SO-1" {
				t.Fatalf("aborted update was written: %q", got.Form.PoNo)
			}

			if _, ok, err := st.Update(ctx, "nope", func(*domain.Session) error { return nil }); ok || err != nil {
				t.Fatalf("missing ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestRedisSessionStoreTTL(t *testing.T) {
	st, mr := newRedisStore(t)
	ctx := context.Background()
	if err := st.Create(ctx, &domain.Session{ID: "s3", Form: &domain.ShipmentForm{}}); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("test:session:s3"); ttl != time.Hour {
		t.Fatalf("ttl=%s", ttl)
	}
	mr.FastForward(2 * time.Hour)
	if _, ok, err := st.Get(ctx, "s3"); ok || err != nil {
		t.Fatalf("expired session still present ok=%v err=%v", ok, err)
	}
}

func TestRedisSessionStoreReadKeepsSessionAlive(t *testing.T) {
	st, mr := newRedisStore(t)
	ctx := context.Background()
	if err := st.Create(ctx, &domain.Session{ID: "s4", Form: &domain.ShipmentForm{}}); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(40 * time.Minute)
	if _, ok, err := st.Get(ctx, "s4"); !ok || err != nil {
		t.Fatalf("get ok=%v err=%v", ok, err)
	}
	if ttl := mr.TTL("test:session:s4"); ttl != time.Hour {
		t.Fatalf("read did not refresh ttl: %s", ttl)
	}
	mr.FastForward(40 * time.Minute)
	if _, ok, err := st.Get(ctx, "s4"); !ok || err != nil {
		t.Fatalf("session read within ttl expired: ok=%v err=%v", ok, err)
	}
}
