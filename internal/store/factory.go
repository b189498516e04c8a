package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/browserctl/internal/config"
)

// Backends bundles the session and context stores selected at boot.
type Backends struct {
	Sessions SessionStore
	Contexts ContextStore
	Kind     config.StoreStrategy
}

// NewBackends builds the session/context store pair per the
// configured strategy. "auto" tries Redis first and falls back to the
// in-memory backend on any dial/ping failure, logging a warning once
// rather than failing startup — a control plane should still serve
// local/dev traffic without a Redis dependency.
func NewBackends(cfg *config.Config) *Backends {
	switch cfg.SessionStore {
	case config.StoreStrategyMemory:
		return &Backends{Sessions: NewMemorySessionStore(), Contexts: NewMemoryContextStore(), Kind: config.StoreStrategyMemory}
	case config.StoreStrategyRedis:
		client, err := dialRedis(cfg)
		if err != nil {
			log.Error().Err(err).Msg("SESSION_STORE=redis but Redis is unreachable; falling back to in-memory store")
			return &Backends{Sessions: NewMemorySessionStore(), Contexts: NewMemoryContextStore(), Kind: config.StoreStrategyMemory}
		}
		return &Backends{Sessions: NewRedisSessionStore(client), Contexts: NewRedisContextStore(client), Kind: config.StoreStrategyRedis}
	default: // auto
		client, err := dialRedis(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, falling back to in-memory session/context store")
			return &Backends{Sessions: NewMemorySessionStore(), Contexts: NewMemoryContextStore(), Kind: config.StoreStrategyMemory}
		}
		log.Info().Msg("using Redis-backed session/context store")
		return &Backends{Sessions: NewRedisSessionStore(client), Contexts: NewRedisContextStore(client), Kind: config.StoreStrategyRedis}
	}
}

func dialRedis(cfg *config.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RedisTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Close releases both backends.
func (b *Backends) Close() error {
	var firstErr error
	if err := b.Sessions.Close(); err != nil {
		firstErr = err
	}
	if err := b.Contexts.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// pollInterval is not referenced anywhere: the cleanup loop started by
// cmd/controlplane runs on cfg.SessionCleanupInterval, since the
// cleanup cadence is a config concern, not a store concern.
const pollInterval = time.Minute
