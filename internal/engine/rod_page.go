package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// maxCaptureBytes guards against runaway captures on huge pages.
const maxCaptureBytes = 16 * 1024 * 1024

// RodPage wraps a *rod.Page to satisfy the Page interface.
type RodPage struct {
	id           string
	page         *rod.Page
	engine       *RodEngine
	proxyCleanup func()
}

func (p *RodPage) ID() string { return p.id }

func (p *RodPage) Navigate(ctx context.Context, url string) (*NavigationResult, error) {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return nil, fmt.Errorf("engine: navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("engine: wait load: %w", err)
	}
	info, err := page.Info()
	if err != nil {
		return nil, fmt.Errorf("engine: page info: %w", err)
	}
	return &NavigationResult{URL: info.URL, Title: info.Title, StatusCode: 200}, nil
}

func (p *RodPage) Click(ctx context.Context, selector string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("engine: find element %q: %w", selector, err)
	}
	defer el.Release()
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *RodPage) Type(ctx context.Context, selector, text string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("engine: find element %q: %w", selector, err)
	}
	defer el.Release()
	return el.Input(text)
}

func (p *RodPage) Select(ctx context.Context, selector string, values []string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("engine: find element %q: %w", selector, err)
	}
	defer el.Release()
	return el.Select(values, true, rod.SelectorTypeText)
}

var namedKeys = map[string]input.Key{
	"Enter":      input.Enter,
	"Tab":        input.Tab,
	"Escape":     input.Escape,
	"Backspace":  input.Backspace,
	"Delete":     input.Delete,
	"ArrowUp":    input.ArrowUp,
	"ArrowDown":  input.ArrowDown,
	"ArrowLeft":  input.ArrowLeft,
	"ArrowRight": input.ArrowRight,
	"Space":      input.Space,
	"Home":       input.Home,
	"End":        input.End,
	"PageUp":     input.PageUp,
	"PageDown":   input.PageDown,
}

func (p *RodPage) PressKey(ctx context.Context, key string) error {
	k, ok := namedKeys[key]
	if !ok {
		return fmt.Errorf("engine: unsupported key %q", key)
	}
	return p.page.Context(ctx).Keyboard.Press(k)
}

func (p *RodPage) MoveMouse(ctx context.Context, x, y float64) error {
	return p.page.Context(ctx).Mouse.MoveTo(proto.NewPoint(x, y))
}

func (p *RodPage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	data, err := p.page.Context(ctx).Screenshot(fullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: screenshot: %w", err)
	}
	if len(data) > maxCaptureBytes {
		return nil, fmt.Errorf("engine: screenshot size %d exceeds limit", len(data))
	}
	return data, nil
}

func (p *RodPage) PDF(ctx context.Context) ([]byte, error) {
	reader, err := p.page.Context(ctx).PDF(&proto.PagePrintToPDF{})
	if err != nil {
		return nil, fmt.Errorf("engine: pdf: %w", err)
	}
	defer reader.Close()

	buf := make([]byte, 0, 64*1024)
	chunk := make([]byte, 32*1024)
	for {
		n, err := reader.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if len(buf) > maxCaptureBytes {
				return nil, fmt.Errorf("engine: pdf output exceeds limit")
			}
		}
		if err != nil {
			break
		}
	}
	return buf, nil
}

func (p *RodPage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	_, err := p.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("engine: wait for selector %q: %w", selector, err)
	}
	return nil
}

func (p *RodPage) Scroll(ctx context.Context, dx, dy float64) error {
	_, err := p.page.Context(ctx).Eval(`(dx, dy) => window.scrollBy(dx, dy)`, dx, dy)
	if err != nil {
		return fmt.Errorf("engine: scroll: %w", err)
	}
	return nil
}

func (p *RodPage) Evaluate(ctx context.Context, script string) (interface{}, error) {
	result, err := p.page.Context(ctx).Evaluate(rod.Eval(script))
	if err != nil {
		return nil, fmt.Errorf("engine: evaluate: %w", err)
	}
	return result.Value.Val(), nil
}

func (p *RodPage) Upload(ctx context.Context, selector string, filePaths []string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("engine: find upload element %q: %w", selector, err)
	}
	defer el.Release()
	return el.SetFiles(filePaths)
}

func (p *RodPage) SetCookies(ctx context.Context, cookies []Cookie) error {
	if cookies == nil {
		// rod clears every cookie only when handed a nil slice
		return p.page.Context(ctx).SetCookies(nil)
	}
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		param := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if !c.Expires.IsZero() {
			param.Expires = proto.TimeSinceEpoch(c.Expires.Unix())
		}
		params = append(params, param)
	}
	return p.page.Context(ctx).SetCookies(params)
}

func (p *RodPage) GetCookies(ctx context.Context) ([]Cookie, error) {
	cdpCookies, err := p.page.Context(ctx).Cookies(nil)
	if err != nil {
		return nil, fmt.Errorf("engine: get cookies: %w", err)
	}
	out := make([]Cookie, 0, len(cdpCookies))
	for _, c := range cdpCookies {
		out = append(out, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  time.Unix(int64(c.Expires), 0),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	return out, nil
}

// DeleteCookie removes the single cookie matching name (and domain, if
// given), distinct from SetCookies(nil)'s clear-everything behavior.
func (p *RodPage) DeleteCookie(ctx context.Context, name, domain string) error {
	del := &proto.NetworkDeleteCookies{Name: name}
	if domain != "" {
		del.Domain = domain
	}
	return del.Call(p.page.Context(ctx))
}

func (p *RodPage) GetAttribute(ctx context.Context, selector, attribute string) (string, error) {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return "", fmt.Errorf("engine: find element %q: %w", selector, err)
	}
	defer el.Release()
	val, err := el.Attribute(attribute)
	if err != nil {
		return "", fmt.Errorf("engine: attribute %q: %w", attribute, err)
	}
	if val == nil {
		return "", nil
	}
	return *val, nil
}

func (p *RodPage) Content(ctx context.Context) (string, error) {
	html, err := p.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("engine: content: %w", err)
	}
	return html, nil
}

func (p *RodPage) Close() error {
	if p.proxyCleanup != nil {
		p.proxyCleanup()
	}
	p.engine.forgetPage(p.id)
	return p.page.Close()
}
