package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"stuffinglist/domain"
)

// ErrSessionExists is returned by Create when the id is already taken.
var ErrSessionExists = errors.New("会话已存在")

// SessionStore holds the editable form of every open session.
//
// Get and Update hand out copies; mutate only inside Update's fn. When fn returns an
// error nothing is written and the error is passed through.
type SessionStore interface {
	Create(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, bool, error)
	Update(ctx context.Context, id string, fn func(s *domain.Session) error) (*domain.Session, bool, error)
}

func cloneSession(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Form = s.Form.Clone()
	return &cp
}

type InMemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]*domain.Session)}
}

func (s *InMemorySessionStore) Create(_ context.Context, sess *domain.Session) error {
	if sess == nil || strings.TrimSpace(sess.ID) == "" {
		return errors.New("session/id 为空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return ErrSessionExists
	}
	s.sessions[sess.ID] = cloneSession(sess)
	return nil
}

func (s *InMemorySessionStore) Get(_ context.Context, id string) (*domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[strings.TrimSpace(id)]
	if !ok || sess == nil {
		return nil, false, nil
	}
	return cloneSession(sess), true, nil
}

func (s *InMemorySessionStore) Update(_ context.Context, id string, fn func(s *domain.Session) error) (*domain.Session, bool, error) {
	if fn == nil {
		return nil, false, errors.New("update fn 为空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sessions[strings.TrimSpace(id)]
	if !ok {
		return nil, false, nil
	}
	next := cloneSession(cur)
	if err := fn(next); err != nil {
		return nil, true, err
	}
	s.sessions[cur.ID] = next
	return cloneSession(next), true, nil
}

type sessionRecord struct {
	ID           string               `json:"id"`
	CreatedAt    time.Time            `json:"createdAt"`
	UpdatedAt    time.Time            `json:"updatedAt"`
	Form         *domain.ShipmentForm `json:"form"`
	ExportOSSKey string               `json:"exportOssKey,omitempty"`
}

func recordFromSession(s *domain.Session) sessionRecord {
	if s == nil {
		return sessionRecord{}
	}
	return sessionRecord{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		Form:         s.Form,
		ExportOSSKey: s.ExportOSSKey,
	}
}

func sessionFromRecord(r sessionRecord) *domain.Session {
	form := r.Form
	if form == nil {
		form = &domain.ShipmentForm{}
	}
	return &domain.Session{
		ID:           r.ID,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		Form:         form,
		ExportOSSKey: r.ExportOSSKey,
	}
}

// RedisSessionStore keeps one JSON document per session. Every read and write refreshes
// the TTL, so only a session nobody touches expires.
type RedisSessionStore struct {
	rdb       *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func NewRedisSessionStore(rdb *redis.Client, keyPrefix string, ttl time.Duration) (*RedisSessionStore, error) {
	if rdb == nil {
		return nil, errors.New("redis client 为空")
	}
	keyPrefix = strings.TrimSpace(keyPrefix)
	if keyPrefix == "" {
		keyPrefix = "stuffing:session:"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	slog.Info("session store: redis enabled", "prefix", keyPrefix, "ttl", ttl.String())
	return &RedisSessionStore{rdb: rdb, keyPrefix: keyPrefix, ttl: ttl}, nil
}

// OpenRedis connects and pings. The client is shared by the session store, the busy gate
// and the activity journal.
func OpenRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("REDIS_ADDR 为空")
	}
	if db < 0 {
		db = 0
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(password),
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

func (s *RedisSessionStore) key(id string) string {
	return s.keyPrefix + strings.TrimSpace(id)
}

func (s *RedisSessionStore) Create(ctx context.Context, sess *domain.Session) error {
	if sess == nil || strings.TrimSpace(sess.ID) == "" {
		return errors.New("session/id 为空")
	}
	b, err := json.Marshal(recordFromSession(sess))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	ok, err := s.rdb.SetNX(ctx, s.key(sess.ID), b, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionExists
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*domain.Session, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	key := s.key(id)
	var get *redis.StringCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, key)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if errors.Is(err, redis.Nil) || (err == nil && errors.Is(get.Err(), redis.Nil)) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var rec sessionRecord
	if err := json.Unmarshal([]byte(get.Val()), &rec); err != nil {
		return nil, false, err
	}
	return sessionFromRecord(rec), true, nil
}

// errAbort carries fn's error out of the WATCH transaction without retrying.
type errAbort struct{ err error }

func (e errAbort) Error() string { return e.err.Error() }

func (s *RedisSessionStore) Update(ctx context.Context, id string, fn func(s *domain.Session) error) (*domain.Session, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, false, nil
	}
	if fn == nil {
		return nil, false, errors.New("update fn 为空")
	}

	key := s.key(id)

	var out *domain.Session
	var ok bool

	ctx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()

	for i := 0; i < 8; i++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			val, err := tx.Get(ctx, key).Result()
			if err == redis.Nil {
				ok = false
				out = nil
				return nil
			}
			if err != nil {
				return err
			}
			var rec sessionRecord
			if err := json.Unmarshal([]byte(val), &rec); err != nil {
				return err
			}
			sess := sessionFromRecord(rec)
			ok = true
			if err := fn(sess); err != nil {
				return errAbort{err}
			}
			out = sess

			nb, err := json.Marshal(recordFromSession(sess))
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, nb, s.ttl)
				return nil
			})
			return err
		}, key)

		if err == nil {
			return out, ok, nil
		}
		var abort errAbort
		if errors.As(err, &abort) {
			return nil, true, abort.err
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, false, err
	}

	return nil, false, errors.New("redis update retry exceeded")
}
