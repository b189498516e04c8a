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
	contextKeyPrefix           = "browserctl:context:"
	contextUserIndexPrefix     = "browserctl:context:by-user:"
	contextSessionIndexPrefix  = "browserctl:context:by-session:"
)

// RedisContextStore persists automation contexts in Redis with
// secondary indexes by owning user and owning session. Contexts don't
// carry a fixed TTL the way sessions do (idle timeout is policy, not a
// hard expiry), so keys are written without expiry and DeleteExpired
// does the idle sweep explicitly.
type RedisContextStore struct {
	client *redis.Client
}

func NewRedisContextStore(client *redis.Client) *RedisContextStore {
	return &RedisContextStore{client: client}
}

func contextKey(id string) string {
	return contextKeyPrefix + id
}

func contextUserIndexKey(userID string) string {
	return contextUserIndexPrefix + userID
}

func contextSessionIndexKey(sessionID string) string {
	return contextSessionIndexPrefix + sessionID
}

func (s *RedisContextStore) write(ctx context.Context, c *coretypes.Context) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("redis context store: marshal: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, contextKey(c.ID), data, 0)
	pipe.SAdd(ctx, contextUserIndexKey(c.UserID), c.ID)
	pipe.SAdd(ctx, contextSessionIndexKey(c.SessionID), c.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis context store: write: %w", err)
	}
	return nil
}

func (s *RedisContextStore) Create(ctx context.Context, c *coretypes.Context) error {
	exists, err := s.client.Exists(ctx, contextKey(c.ID)).Result()
	if err != nil {
		return fmt.Errorf("redis context store: create: %w", err)
	}
	if exists > 0 {
		return coretypes.NewValidationError("id", "context already exists")
	}
	return s.write(ctx, c)
}

func (s *RedisContextStore) Get(ctx context.Context, id string) (*coretypes.Context, error) {
	data, err := s.client.Get(ctx, contextKey(id)).Bytes()
	if err == redis.Nil {
		return nil, coretypes.ErrContextNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis context store: get: %w", err)
	}
	var c coretypes.Context
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("redis context store: unmarshal: %w", err)
	}
	return &c, nil
}

func (s *RedisContextStore) getByIndex(ctx context.Context, indexKey string) ([]*coretypes.Context, error) {
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis context store: index lookup: %w", err)
	}
	out := make([]*coretypes.Context, 0, len(ids))
	for _, id := range ids {
		c, err := s.Get(ctx, id)
		if err != nil {
			if err == coretypes.ErrContextNotFound {
				s.client.SRem(ctx, indexKey, id)
				continue
			}
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *RedisContextStore) GetByUserID(ctx context.Context, userID string) ([]*coretypes.Context, error) {
	return s.getByIndex(ctx, contextUserIndexKey(userID))
}

func (s *RedisContextStore) GetBySessionID(ctx context.Context, sessionID string) ([]*coretypes.Context, error) {
	return s.getByIndex(ctx, contextSessionIndexKey(sessionID))
}

func (s *RedisContextStore) Update(ctx context.Context, c *coretypes.Context) error {
	exists, err := s.client.Exists(ctx, contextKey(c.ID)).Result()
	if err != nil {
		return fmt.Errorf("redis context store: update: %w", err)
	}
	if exists == 0 {
		return coretypes.ErrContextNotFound
	}
	c.UpdatedAt = time.Now()
	return s.write(ctx, c)
}

func (s *RedisContextStore) Delete(ctx context.Context, id string) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, contextKey(id))
	pipe.SRem(ctx, contextUserIndexKey(c.UserID), id)
	pipe.SRem(ctx, contextSessionIndexKey(c.SessionID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis context store: delete: %w", err)
	}
	return nil
}

func (s *RedisContextStore) DeleteExpired(ctx context.Context, now time.Time, ttl time.Duration) (int, error) {
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := s.client.Scan(ctx, cursor, contextKeyPrefix+"*", 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis context store: scan: %w", err)
		}
		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if err != nil {
				continue
			}
			var c coretypes.Context
			if err := json.Unmarshal(data, &c); err != nil {
				continue
			}
			if c.Status != coretypes.ContextStatusClosed && now.Sub(c.UpdatedAt) > ttl {
				if err := s.Delete(ctx, c.ID); err == nil {
					deleted++
				}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}

func (s *RedisContextStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, contextKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis context store: exists: %w", err)
	}
	return n > 0, nil
}

func (s *RedisContextStore) Count(ctx context.Context) (int, error) {
	var cursor uint64
	count := 0
	for {
		keys, next, err := s.client.Scan(ctx, cursor, contextKeyPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("redis context store: count: %w", err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return count, nil
}

func (s *RedisContextStore) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, contextKeyPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("redis context store: clear: %w", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis context store: clear: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

func (s *RedisContextStore) Close() error {
	return s.client.Close()
}
