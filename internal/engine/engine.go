// Package engine defines the browser-automation surface the pool and
// action executor drive, so neither has to know about go-rod directly.
package engine

import (
	"context"
	"time"
)

// Cookie is a minimal cross-engine cookie representation.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  time.Time
	HTTPOnly bool
	Secure   bool
}

// NavigationResult captures the outcome of a Navigate call.
type NavigationResult struct {
	URL        string
	Title      string
	StatusCode int
}

// Page is one browser tab/target. Implementations must be safe for
// concurrent use by at most one invocation at a time; the page
// manager is responsible for not handing the same page to two
// invocations concurrently.
type Page interface {
	ID() string
	Navigate(ctx context.Context, url string) (*NavigationResult, error)
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	Select(ctx context.Context, selector string, values []string) error
	PressKey(ctx context.Context, key string) error
	MoveMouse(ctx context.Context, x, y float64) error
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	PDF(ctx context.Context) ([]byte, error)
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	Scroll(ctx context.Context, dx, dy float64) error
	Evaluate(ctx context.Context, script string) (interface{}, error)
	Upload(ctx context.Context, selector string, filePaths []string) error
	SetCookies(ctx context.Context, cookies []Cookie) error
	GetCookies(ctx context.Context) ([]Cookie, error)
	DeleteCookie(ctx context.Context, name, domain string) error
	GetAttribute(ctx context.Context, selector, attribute string) (string, error)
	Content(ctx context.Context) (string, error)
	Close() error
}

// Engine is one browser process. The pool treats it as an opaque
// leasable resource; only RodEngine knows about CDP/launcher details.
type Engine interface {
	ID() string
	NewPage(ctx context.Context) (Page, error)
	Pages() ([]Page, error)
	PageCount() int
	Healthy(ctx context.Context) bool
	Close() error
}

// Factory launches a new Engine, optionally routed through proxyURL
// (empty means use the pool's configured default, if any).
type Factory func(ctx context.Context, proxyURL string) (Engine, error)
