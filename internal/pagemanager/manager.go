// Package pagemanager owns the live engine page handles for every open
// PageInfo, and re-verifies the session/context/page ownership chain
// on every operation.
package pagemanager

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/browserctl/internal/coretypes"
	"github.com/Rorqualx/browserctl/internal/engine"
	"github.com/Rorqualx/browserctl/internal/store"
)

const maxNavigationHistory = 50

// CreateOptions configures a new page at creation time.
type CreateOptions struct {
	Viewport         *coretypes.Viewport
	UserAgent        string
	Locale           string
	ExtraHTTPHeaders map[string]string
}

// entry pairs one PageInfo with its live engine handle. info is
// guarded by mu; mu does not cover calls on the engine handle, and
// neither the manager nor the executor serializes them per page.
type entry struct {
	mu   sync.Mutex
	info coretypes.PageInfo
	page engine.Page
}

// Manager tracks every open page across every context, mirroring each
// into a coretypes.PageInfo the rest of the system reads.
type Manager struct {
	sessions store.SessionStore
	contexts store.ContextStore

	idleTimeout     time.Duration
	tombstoneWindow time.Duration

	mu         sync.RWMutex
	pages      map[string]*entry
	tombstones map[string]time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a page manager. idleTimeout of 0 disables the cleanup
// loop's closure criterion (pages are never closed for inactivity).
func New(sessions store.SessionStore, contexts store.ContextStore, idleTimeout time.Duration) *Manager {
	m := &Manager{
		sessions:        sessions,
		contexts:        contexts,
		idleTimeout:     idleTimeout,
		tombstoneWindow: 2 * time.Minute,
		pages:           make(map[string]*entry),
		tombstones:      make(map[string]time.Time),
		stopCh:          make(chan struct{}),
	}
	m.wg.Add(1)
	go m.cleanupLoop()
	return m
}

func (m *Manager) verifyOwnership(ctx context.Context, principal *coretypes.Principal, contextID, sessionID string) (*coretypes.Context, error) {
	session, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, coretypes.NewPoolError("ownership", "session lookup failed", err)
	}
	if principal.UserID != session.Data.UserID {
		return nil, coretypes.ErrForbidden
	}
	if principal.SessionID != "" && principal.SessionID != session.ID {
		return nil, coretypes.ErrForbidden
	}

	autoCtx, err := m.contexts.Get(ctx, contextID)
	if err != nil {
		return nil, coretypes.ErrContextNotFound
	}
	if autoCtx.SessionID != session.ID {
		return nil, coretypes.ErrForbidden
	}
	return autoCtx, nil
}

// CreatePage acquires a new engine page under the leased browser and
// registers its PageInfo, after verifying the principal actually owns
// sessionID/contextID.
func (m *Manager) CreatePage(ctx context.Context, principal *coretypes.Principal, contextID, sessionID, browserID string, eng engine.Engine, opts CreateOptions) (*coretypes.PageInfo, error) {
	if _, err := m.verifyOwnership(ctx, principal, contextID, sessionID); err != nil {
		return nil, err
	}

	page, err := eng.NewPage(ctx)
	if err != nil {
		return nil, coretypes.NewPoolError("create-page", "engine page creation failed", err)
	}

	now := time.Now()
	e := &entry{
		page: page,
		info: coretypes.PageInfo{
			ID:             uuid.NewString(),
			ContextID:      contextID,
			SessionID:      sessionID,
			BrowserID:      browserID,
			State:          coretypes.PageStateActive,
			CreatedAt:      now,
			LastActivityAt: now,
		},
	}

	m.mu.Lock()
	m.pages[e.info.ID] = e
	m.mu.Unlock()

	return copyInfo(&e.info), nil
}

// Get resolves a page's live engine handle. It checks only that the page
// is open and was created under sessionID; it does not look up the
// session or context in the stores or compare them with a principal.
func (m *Manager) Get(pageID, sessionID string) (engine.Page, *coretypes.PageInfo, error) {
	m.mu.RLock()
	e, ok := m.pages[pageID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, coretypes.ErrPageNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.info.State == coretypes.PageStateClosed {
		return nil, nil, coretypes.ErrPageClosed
	}
	if e.info.SessionID != sessionID {
		return nil, nil, coretypes.ErrForbidden
	}
	return e.page, copyInfo(&e.info), nil
}

// Touch updates LastActivityAt, keeping the page out of the idle-page
// cleanup loop's reach.
func (m *Manager) Touch(pageID string) {
	m.mu.RLock()
	e, ok := m.pages[pageID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.info.LastActivityAt = time.Now()
	e.mu.Unlock()
}

// RecordNavigation appends to the page's capped navigation history and
// updates its URL/title, called by the navigate action handler after a
// successful engine navigation.
func (m *Manager) RecordNavigation(pageID, url, title string, status int) {
	m.mu.RLock()
	e, ok := m.pages[pageID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.info.URL = url
	e.info.Title = title
	e.info.State = coretypes.PageStateActive
	e.info.LastActivityAt = time.Now()
	e.info.NavigationHistory = append(e.info.NavigationHistory, coretypes.NavigationEntry{
		URL: url, Title: title, Timestamp: time.Now(), Status: status,
	})
	if len(e.info.NavigationHistory) > maxNavigationHistory {
		e.info.NavigationHistory = e.info.NavigationHistory[len(e.info.NavigationHistory)-maxNavigationHistory:]
	}
}

// SetNavigating marks a page in-flight so the idle cleanup loop skips
// it even if LastActivityAt predates idleTimeout.
func (m *Manager) SetNavigating(pageID string, navigating bool) {
	m.mu.RLock()
	e, ok := m.pages[pageID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.info.State == coretypes.PageStateClosed {
		return
	}
	if navigating {
		e.info.State = coretypes.PageStateNavigating
	} else {
		e.info.State = coretypes.PageStateActive
	}
}

// RecordError increments the page's error counter, called by the
// action executor after a failed action against this page.
func (m *Manager) RecordError(pageID string) {
	m.mu.RLock()
	e, ok := m.pages[pageID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.info.ErrorCount++
	e.mu.Unlock()
}

// Close closes the underlying engine page and marks the PageInfo
// closed (absorbing), after verifying ownership.
func (m *Manager) Close(pageID, sessionID string) error {
	m.mu.Lock()
	e, ok := m.pages[pageID]
	if ok {
		delete(m.pages, pageID)
		m.tombstones[pageID] = time.Now()
	}
	m.mu.Unlock()
	if !ok {
		return coretypes.ErrPageNotFound
	}

	e.mu.Lock()
	if e.info.SessionID != sessionID {
		e.mu.Unlock()
		m.mu.Lock()
		m.pages[pageID] = e // put back, this caller didn't own it
		delete(m.tombstones, pageID)
		m.mu.Unlock()
		return coretypes.ErrForbidden
	}
	e.info.State = coretypes.PageStateClosed
	page := e.page
	e.mu.Unlock()

	return page.Close()
}

// ListBySession returns every open page owned by sessionID.
func (m *Manager) ListBySession(sessionID string) []coretypes.PageInfo {
	return m.filter(func(info *coretypes.PageInfo) bool { return info.SessionID == sessionID })
}

// ListByContext returns every open page belonging to contextID.
func (m *Manager) ListByContext(contextID string) []coretypes.PageInfo {
	return m.filter(func(info *coretypes.PageInfo) bool { return info.ContextID == contextID })
}

// Count returns the number of pages currently tracked, open or pending close.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pages)
}

func (m *Manager) filter(pred func(*coretypes.PageInfo) bool) []coretypes.PageInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]coretypes.PageInfo, 0)
	for _, e := range m.pages {
		e.mu.Lock()
		if pred(&e.info) {
			out = append(out, *copyInfo(&e.info))
		}
		e.mu.Unlock()
	}
	return out
}

func copyInfo(info *coretypes.PageInfo) *coretypes.PageInfo {
	cp := *info
	cp.NavigationHistory = append([]coretypes.NavigationEntry(nil), info.NavigationHistory...)
	return &cp
}

// cleanupLoop closes pages idle past idleTimeout every 5 minutes and
// sweeps tombstones past the grace window.
func (m *Manager) cleanupLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweepIdle()
			m.sweepTombstones()
		}
	}
}

func (m *Manager) sweepIdle() {
	if m.idleTimeout <= 0 {
		return
	}

	type closable struct {
		id   string
		page engine.Page
	}
	var toClose []closable

	m.mu.Lock()
	now := time.Now()
	for id, e := range m.pages {
		e.mu.Lock()
		idle := now.Sub(e.info.LastActivityAt) > m.idleTimeout
		notNavigating := e.info.State != coretypes.PageStateNavigating
		if idle && notNavigating {
			e.info.State = coretypes.PageStateClosed
			toClose = append(toClose, closable{id: id, page: e.page})
			delete(m.pages, id)
			m.tombstones[id] = now
		}
		e.mu.Unlock()
	}
	m.mu.Unlock()

	for _, c := range toClose {
		if err := c.page.Close(); err != nil {
			log.Warn().Err(err).Str("page_id", c.id).Msg("error closing idle page")
		}
	}
}

func (m *Manager) sweepTombstones() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for id, at := range m.tombstones {
		if now.Sub(at) > m.tombstoneWindow {
			delete(m.tombstones, id)
		}
	}
}

// Shutdown stops the cleanup loop. It does not close pages; the
// browser pool's own shutdown closes the engines that own them.
func (m *Manager) Shutdown() {
	close(m.stopCh)
	m.wg.Wait()
}
