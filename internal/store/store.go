// Package store provides the session/context persistence layer behind
// a small backend-agnostic interface, with in-memory and Redis
// implementations selectable at boot.
package store

import (
	"context"
	"time"

	"github.com/Rorqualx/browserctl/internal/coretypes"
)

// SessionStore is the persistence contract for Session records.
type SessionStore interface {
	Create(ctx context.Context, session *coretypes.Session) error
	Get(ctx context.Context, id string) (*coretypes.Session, error)
	GetByUserID(ctx context.Context, userID string) ([]*coretypes.Session, error)
	Update(ctx context.Context, session *coretypes.Session) error
	Touch(ctx context.Context, id string, now time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	Exists(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Close() error
}

// ContextStore is the persistence contract for automation Context
// records (named "Context" in the data model to distinguish from
// Go's context.Context, which every method here also takes).
type ContextStore interface {
	Create(ctx context.Context, c *coretypes.Context) error
	Get(ctx context.Context, id string) (*coretypes.Context, error)
	GetByUserID(ctx context.Context, userID string) ([]*coretypes.Context, error)
	GetBySessionID(ctx context.Context, sessionID string) ([]*coretypes.Context, error)
	Update(ctx context.Context, c *coretypes.Context) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time, ttl time.Duration) (int, error)
	Exists(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Close() error
}
