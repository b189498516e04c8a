package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Rorqualx/browserctl/internal/coretypes"
)

const (
	sessionKeyPrefix       = "browserctl:session:"
	sessionUserIndexPrefix = "browserctl:session:by-user:"
)

// RedisSessionStore persists sessions in Redis, keyed by id with a
// secondary per-user index set for GetByUserID. Keys are given a TTL
// matching the session's expiry so Redis itself reaps most expired
// entries; DeleteExpired additionally sweeps the user index sets,
// which Redis's own key expiry cannot clean up on its own.
type RedisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore wraps an already-connected client.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func sessionUserIndexKey(userID string) string {
	return sessionUserIndexPrefix + userID
}

func (s *RedisSessionStore) Create(ctx context.Context, session *coretypes.Session) error {
	exists, err := s.client.Exists(ctx, sessionKey(session.ID)).Result()
	if err != nil {
		return fmt.Errorf("redis session store: create: %w", err)
	}
	if exists > 0 {
		return coretypes.ErrSessionAlreadyExists
	}
	return s.write(ctx, session)
}

func (s *RedisSessionStore) write(ctx context.Context, session *coretypes.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("redis session store: marshal: %w", err)
	}

	ttl := time.Until(session.Data.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), data, ttl)
	pipe.SAdd(ctx, sessionUserIndexKey(session.Data.UserID), session.ID)
	pipe.Expire(ctx, sessionUserIndexKey(session.Data.UserID), ttl+time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis session store: write: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*coretypes.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, coretypes.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis session store: get: %w", err)
	}
	var session coretypes.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("redis session store: unmarshal: %w", err)
	}
	return &session, nil
}

func (s *RedisSessionStore) GetByUserID(ctx context.Context, userID string) ([]*coretypes.Session, error) {
	ids, err := s.client.SMembers(ctx, sessionUserIndexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis session store: get by user: %w", err)
	}
	out := make([]*coretypes.Session, 0, len(ids))
	for _, id := range ids {
		session, err := s.Get(ctx, id)
		if err != nil {
			if err == coretypes.ErrSessionNotFound {
				s.client.SRem(ctx, sessionUserIndexKey(userID), id)
				continue
			}
			return nil, err
		}
		out = append(out, session)
	}
	return out, nil
}

func (s *RedisSessionStore) Update(ctx context.Context, session *coretypes.Session) error {
	exists, err := s.client.Exists(ctx, sessionKey(session.ID)).Result()
	if err != nil {
		return fmt.Errorf("redis session store: update: %w", err)
	}
	if exists == 0 {
		return coretypes.ErrSessionNotFound
	}
	return s.write(ctx, session)
}

func (s *RedisSessionStore) Touch(ctx context.Context, id string, now time.Time) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	session.LastAccessedAt = now
	return s.write(ctx, session)
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.SRem(ctx, sessionUserIndexKey(session.Data.UserID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis session store: delete: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op beyond Redis's own TTL expiry for the
// session keys themselves; it sweeps dangling ids out of the per-user
// index sets left behind once their session key has expired.
func (s *RedisSessionStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	var cursor uint64
	swept := 0
	for {
		keys, next, err := s.client.Scan(ctx, cursor, sessionUserIndexPrefix+"*", 100).Result()
		if err != nil {
			return swept, fmt.Errorf("redis session store: scan: %w", err)
		}
		for _, indexKey := range keys {
			ids, err := s.client.SMembers(ctx, indexKey).Result()
			if err != nil {
				continue
			}
			for _, id := range ids {
				n, err := s.client.Exists(ctx, sessionKey(id)).Result()
				if err == nil && n == 0 {
					s.client.SRem(ctx, indexKey, id)
					swept++
				}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return swept, nil
}

func (s *RedisSessionStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, sessionKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis session store: exists: %w", err)
	}
	return n > 0, nil
}

func (s *RedisSessionStore) Count(ctx context.Context) (int, error) {
	var cursor uint64
	count := 0
	for {
		keys, next, err := s.client.Scan(ctx, cursor, sessionKeyPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("redis session store: count: %w", err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return count, nil
}

func (s *RedisSessionStore) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, sessionKeyPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("redis session store: clear: %w", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis session store: clear: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}
