package streamq

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"stuffinglist/domain"
)

func journals(t *testing.T) map[string]Journal {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return map[string]Journal{
		"memory": NewMemoryJournal(100),
		"redis":  NewRedisStreamJournal(rdb, "test:activity:", 100, time.Hour),
	}
}

func TestJournalAppendRecent(t *testing.T) {
	ctx := context.Background()
	for name, j := range journals(t) {
		t.Run(name, func(t *testing.T) {
			at := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
			ops := []domain.Operation{domain.OperationReset, domain.OperationImport, domain.OperationExport}
			for i, op := range ops {
				id, err := j.Append(ctx, "s1", domain.ActivityEntry{Op: op, At: at.Add(time.Duration(i) * time.Second), Detail: string(op)})
				if err != nil || id == "" {
					t.Fatalf("append id=%q err=%v", id, err)
				}
			}
			if _, err := j.Append(ctx, "s2", domain.ActivityEntry{Op: domain.OperationImport}); err != nil {
				t.Fatal(err)
			}

			got, err := j.Recent(ctx, "s1", 2)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 || got[0].Op != domain.OperationImport || got[1].Op != domain.OperationExport {
				t.Fatalf("recent=%+v", got)
			}
			if !got[1].At.Equal(at.Add(2*time.Second)) || got[1].Detail != "export" {
				t.Fatalf("entry=%+v", got[1])
			}

			empty, err := j.Recent(ctx, "none", 10)
			if err != nil || len(empty) != 0 {
				t.Fatalf("empty=%v err=%v", empty, err)
			}
		})
	}
}

func TestMemoryJournalCapsLength(t *testing.T) {
	j := NewMemoryJournal(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := j.Append(ctx, "s", domain.ActivityEntry{Op: domain.OperationImport, Detail: string(rune('a' + i))}); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := j.Recent(ctx, "s", 10)
	if len(got) != 3 || got[0].Detail != "c" || got[2].Detail != "e" {
		t.Fatalf("got=%+v", got)
	}
}

func TestRedisJournalExpiresWithSession(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	j := NewRedisStreamJournal(rdb, "", 10, time.Minute)
	if _, err := j.Append(context.Background(), "s", domain.ActivityEntry{Op: domain.OperationReset}); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("stuffing:activity:s"); ttl != time.Minute {
		t.Fatalf("ttl=%s", ttl)
	}
}
