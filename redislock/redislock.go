package redislock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"stuffinglist/domain"
)

// ErrBusy is returned when the same operation is already running for the session.
var ErrBusy = errors.New("该会话已有同类操作在进行中")

// Gate lets at most one operation of each class run per session. release is always
// non-nil when err is nil and is safe to call more than once.
type Gate interface {
	TryAcquire(ctx context.Context, sessionID string, op domain.Operation) (release func(), err error)
}

// Client implements a simple Redis distributed lock: SET NX PX + Lua safe release.
type Client struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func New(rdb *redis.Client, prefix string, ttl time.Duration) *Client {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Client{
		rdb:    rdb,
		prefix: strings.TrimSpace(prefix),
		ttl:    ttl,
	}
}

func (c *Client) Key(sessionID string, op domain.Operation) string {
	sessionID = strings.TrimSpace(sessionID)
	p := ""
	if c != nil {
		p = strings.TrimSpace(c.prefix)
	}
	if p == "" {
		p = "stuffing:busy:"
	}
	return p + sessionID + ":" + string(op)
}

func Token() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

func (c *Client) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if c == nil || c.rdb == nil {
		return false, errors.New("redis lock 未初始化")
	}
	key = strings.TrimSpace(key)
	token = strings.TrimSpace(token)
	if key == "" || token == "" {
		return false, errors.New("lock key/token 为空")
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	return c.rdb.SetNX(ctx, key, token, ttl).Result()
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (c *Client) Release(ctx context.Context, key, token string) (bool, error) {
	if c == nil || c.rdb == nil {
		return false, errors.New("redis lock 未初始化")
	}
	key = strings.TrimSpace(key)
	token = strings.TrimSpace(token)
	if key == "" || token == "" {
		return false, errors.New("lock key/token 为空")
	}
	n, err := releaseScript.Run(ctx, c.rdb, []string{key}, token).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// TryAcquire takes the busy flag for (session, op). The TTL bounds how long a crashed
// holder can block the session.
func (c *Client) TryAcquire(ctx context.Context, sessionID string, op domain.Operation) (func(), error) {
	token, err := Token()
	if err != nil {
		return nil, err
	}
	key := c.Key(sessionID, op)
	ok, err := c.Acquire(ctx, key, token, c.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBusy
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			// The request context may already be done when the handler returns.
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, _ = c.Release(rctx, key, token)
		})
	}, nil
}

// LocalGate is the in-process Gate used when Redis is not configured.
type LocalGate struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func NewLocalGate() *LocalGate {
	return &LocalGate{busy: make(map[string]struct{})}
}

func (g *LocalGate) TryAcquire(_ context.Context, sessionID string, op domain.Operation) (func(), error) {
	key := strings.TrimSpace(sessionID) + ":" + string(op)
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.busy[key]; held {
		return nil, ErrBusy
	}
	g.busy[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.busy, key)
			g.mu.Unlock()
		})
	}, nil
}
