package session

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultSIDCookieName = "chat_sid"
	// idleTTL bounds server-side rows when the cookie itself has no lifetime.
	idleTTL = 24 * time.Hour
)

// RedisStore keeps the binding server-side. The cookie only carries an
// opaque session id; the Redis hash under prefix+id holds the binding.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	opts   Options
}

func NewRedisStore(rdb *redis.Client, prefix string, opts Options) *RedisStore {
	if opts.CookieName == "" {
		opts.CookieName = DefaultSIDCookieName
	}
	if prefix == "" {
		prefix = "sess"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, opts: opts}
}

func (s *RedisStore) key(sid string) string { return s.prefix + ":" + sid }

func (s *RedisStore) ttl() time.Duration {
	if s.opts.TTL > 0 {
		return s.opts.TTL
	}
	return idleTTL
}

func sessionID(r *http.Request, name string) (string, bool) {
	ck, err := r.Cookie(name)
	if err != nil {
		return "", false
	}
	if _, err := uuid.Parse(ck.Value); err != nil {
		return "", false
	}
	return ck.Value, true
}

func (s *RedisStore) Load(r *http.Request) (Access, error) {
	sid, ok := sessionID(r, s.opts.CookieName)
	if !ok {
		return Access{}, nil
	}
	vals, err := s.rdb.HGetAll(r.Context(), s.key(sid)).Result()
	if err != nil {
		return Access{}, fmt.Errorf("session load: %w", err)
	}
	return Access{Completed: vals["completed"] == "1", Token: vals["token"]}, nil
}

func (s *RedisStore) Save(w http.ResponseWriter, r *http.Request, a Access) error {
	if !a.Bound() {
		return s.Clear(w, r)
	}
	sid, err := s.bindID(r, a.Token)
	if err != nil {
		return fmt.Errorf("session save: %w", err)
	}
	key := s.key(sid)
	_, err = s.rdb.TxPipelined(r.Context(), func(p redis.Pipeliner) error {
		p.HSet(r.Context(), key, "completed", "1", "token", a.Token)
		p.Expire(r.Context(), key, s.ttl())
		return nil
	})
	if err != nil {
		return fmt.Errorf("session save: %w", err)
	}
	http.SetCookie(w, s.opts.cookie(sid))
	return nil
}

// bindID returns the session id to store a binding of token under. The
// presented id is kept only when it already holds that same binding;
// otherwise a fresh id is minted and the old row dropped, so an id chosen
// by someone else never ends up carrying the grant.
func (s *RedisStore) bindID(r *http.Request, token string) (string, error) {
	sid, ok := sessionID(r, s.opts.CookieName)
	if !ok {
		return uuid.NewString(), nil
	}
	vals, err := s.rdb.HGetAll(r.Context(), s.key(sid)).Result()
	if err != nil {
		return "", err
	}
	if vals["completed"] == "1" && vals["token"] == token {
		return sid, nil
	}
	if err := s.rdb.Del(r.Context(), s.key(sid)).Err(); err != nil {
		return "", err
	}
	return uuid.NewString(), nil
}

func (s *RedisStore) Clear(w http.ResponseWriter, r *http.Request) error {
	http.SetCookie(w, s.opts.expired())
	sid, ok := sessionID(r, s.opts.CookieName)
	if !ok {
		return nil
	}
	if err := s.rdb.Del(r.Context(), s.key(sid)).Err(); err != nil {
		return fmt.Errorf("session clear: %w", err)
	}
	return nil
}
