package browserpool

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Rorqualx/browserctl/internal/coretypes"
	"github.com/Rorqualx/browserctl/internal/engine"
)

// instance is the pool's bookkeeping around one engine.Engine. State,
// session and last-use time are guarded by the instance's own mu; the
// use and error counters are atomics, readable without any lock (used
// for the scaling/recycling signal vector).
type instance struct {
	id        string
	eng       engine.Engine
	createdAt time.Time

	mu        sync.Mutex
	state     coretypes.BrowserState
	sessionID string
	lastUsed  time.Time

	useCount   atomic.Int64
	errorCount atomic.Int64
}

func newInstance(eng engine.Engine) *instance {
	now := time.Now()
	return &instance{
		id:        uuid.NewString(),
		eng:       eng,
		createdAt: now,
		state:     coretypes.BrowserStateLaunching,
		lastUsed:  now,
	}
}

func (i *instance) snapshot() coretypes.BrowserInstanceInfo {
	i.mu.Lock()
	defer i.mu.Unlock()
	return coretypes.BrowserInstanceInfo{
		ID:         i.id,
		State:      i.state,
		SessionID:  i.sessionID,
		PageCount:  i.eng.PageCount(),
		CreatedAt:  i.createdAt,
		LastUsedAt: i.lastUsed,
		UseCount:   i.useCount.Load(),
		ErrorCount: i.errorCount.Load(),
	}
}

func (i *instance) setState(s coretypes.BrowserState) {
	i.mu.Lock()
	i.state = s
	i.mu.Unlock()
}

func (i *instance) getState() coretypes.BrowserState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

func (i *instance) markLeased(sessionID string) {
	i.mu.Lock()
	i.state = coretypes.BrowserStateActive
	i.sessionID = sessionID
	i.lastUsed = time.Now()
	i.mu.Unlock()
	i.useCount.Add(1)
}

func (i *instance) markReleased() {
	i.mu.Lock()
	i.state = coretypes.BrowserStateIdle
	i.sessionID = ""
	i.lastUsed = time.Now()
	i.mu.Unlock()
}
