package streamq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"stuffinglist/domain"
)

// Journal records what happened to a session (imports, exports, resets), newest last.
type Journal interface {
	Append(ctx context.Context, sessionID string, e domain.ActivityEntry) (string, error)
	Recent(ctx context.Context, sessionID string, n int64) ([]domain.ActivityEntry, error)
}

// RedisStreamJournal keeps one capped stream per session.
type RedisStreamJournal struct {
	rdb    *redis.Client
	prefix string
	maxLen int64
	ttl    time.Duration
}

func NewRedisStreamJournal(rdb *redis.Client, prefix string, maxLen int64, ttl time.Duration) *RedisStreamJournal {
	if maxLen <= 0 {
		maxLen = 200
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "stuffing:activity:"
	}
	return &RedisStreamJournal{rdb: rdb, prefix: prefix, maxLen: maxLen, ttl: ttl}
}

func (j *RedisStreamJournal) key(sessionID string) string {
	return j.prefix + strings.TrimSpace(sessionID)
}

func (j *RedisStreamJournal) Append(ctx context.Context, sessionID string, e domain.ActivityEntry) (string, error) {
	if j == nil || j.rdb == nil {
		return "", errors.New("redis stream journal 未初始化")
	}
	if strings.TrimSpace(sessionID) == "" {
		return "", errors.New("sessionID 为空")
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	key := j.key(sessionID)
	var add *redis.StringCmd
	_, err := j.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		add = pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: key,
			MaxLen: j.maxLen,
			Approx: true,
			Values: map[string]interface{}{
				"op":     string(e.Op),
				"at":     e.At.Format(time.RFC3339Nano),
				"detail": e.Detail,
			},
		})
		// The journal lives as long as the session it describes.
		if j.ttl > 0 {
			pipe.Expire(ctx, key, j.ttl)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return add.Val(), nil
}

// Recent returns up to n entries, oldest first.
func (j *RedisStreamJournal) Recent(ctx context.Context, sessionID string, n int64) ([]domain.ActivityEntry, error) {
	if j == nil || j.rdb == nil {
		return nil, errors.New("redis stream journal 未初始化")
	}
	if n <= 0 {
		n = 50
	}
	msgs, err := j.rdb.XRevRangeN(ctx, j.key(sessionID), "+", "-", n).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.ActivityEntry, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		out = append(out, entryFromMessage(msgs[i]))
	}
	return out, nil
}

func entryFromMessage(msg redis.XMessage) domain.ActivityEntry {
	str := func(k string) string {
		v, ok := msg.Values[k]
		if !ok || v == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
	e := domain.ActivityEntry{
		ID:     msg.ID,
		Op:     domain.Operation(str("op")),
		Detail: str("detail"),
	}
	if at, err := time.Parse(time.RFC3339Nano, str("at")); err == nil {
		e.At = at
	}
	return e
}

// MemoryJournal is the Journal used when Redis is not configured.
type MemoryJournal struct {
	mu      sync.Mutex
	maxLen  int
	seq     int64
	entries map[string][]domain.ActivityEntry
}

func NewMemoryJournal(maxLen int) *MemoryJournal {
	if maxLen <= 0 {
		maxLen = 200
	}
	return &MemoryJournal{maxLen: maxLen, entries: make(map[string][]domain.ActivityEntry)}
}

func (j *MemoryJournal) Append(_ context.Context, sessionID string, e domain.ActivityEntry) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", errors.New("sessionID 为空")
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.seq++
	e.ID = strconv.FormatInt(e.At.UnixMilli(), 10) + "-" + strconv.FormatInt(j.seq, 10)
	list := append(j.entries[sessionID], e)
	if len(list) > j.maxLen {
		list = list[len(list)-j.maxLen:]
	}
	j.entries[sessionID] = list
	return e.ID, nil
}

func (j *MemoryJournal) Recent(_ context.Context, sessionID string, n int64) ([]domain.ActivityEntry, error) {
	if n <= 0 {
		n = 50
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	list := j.entries[strings.TrimSpace(sessionID)]
	if int64(len(list)) > n {
		list = list[int64(len(list))-n:]
	}
	return append([]domain.ActivityEntry(nil), list...), nil
}
