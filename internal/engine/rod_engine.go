package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/browserctl/internal/config"
	"github.com/Rorqualx/browserctl/internal/security"
)

// RodEngine wraps a *rod.Browser, the only production Engine.
type RodEngine struct {
	id      string
	browser *rod.Browser
	creds   proxyCredentials

	mu    sync.Mutex
	pages map[string]*RodPage
}

// NewRodEngine launches a browser process configured per cfg, routed
// through proxyURL if non-empty (falling back to cfg.ProxyURL). Proxy
// credentials, when set, are carried separately since Chrome's
// proxy-server flag has no way to take them on the command line.
func NewRodEngine(ctx context.Context, cfg *config.Config, proxyURL string) (*RodEngine, error) {
	if proxyURL == "" {
		proxyURL = cfg.ProxyURL
	}

	l := createLauncher(cfg, proxyURL)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("engine: launch: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("engine: connect: %w", err)
	}

	if cfg.IgnoreCertErrors {
		if err := browser.IgnoreCertErrors(true); err != nil {
			log.Warn().Err(err).Msg("engine: failed to set ignore-cert-errors")
		}
	}

	return &RodEngine{
		id:      uuid.NewString(),
		browser: browser,
		creds:   proxyCredentials{username: cfg.ProxyUsername, password: cfg.ProxyPassword},
		pages:   make(map[string]*RodPage),
	}, nil
}

// createLauncher builds a launcher configured with the anti-detection
// and container-safety flags this control plane requires. Mirrors the
// flag set a real headless deployment needs: a sandboxed container, no
// automation tells, consistent WebGL/GPU fingerprint, WebRTC leak
// prevention.
func createLauncher(cfg *config.Config, proxyURL string) *launcher.Launcher {
	l := launcher.New()

	if cfg.BrowserPath != "" {
		l = l.Bin(cfg.BrowserPath)
	}

	if cfg.Headless {
		l = l.Set("headless", "new")
	} else {
		l = l.Headless(false)
	}

	l = l.Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage")

	if proxyURL != "" {
		l = l.Set("proxy-server", proxyURL)
		log.Debug().Str("proxy", security.RedactProxyURL(proxyURL)).Msg("engine: proxy configured")
	}

	l = l.Set("force-webrtc-ip-handling-policy", "disable_non_proxied_udp").
		Set("disable-blink-features", "AutomationControlled").
		Delete("enable-automation").
		Set("disable-features", "Translate,TranslateUI,BlinkGenPropertyTrees,WebRtcHideLocalIpsWithMdns").
		Set("enable-features", "NetworkService,NetworkServiceInProcess").
		Set("use-gl", "swiftshader").
		Set("use-angle", "swiftshader").
		Set("enable-unsafe-swiftshader").
		Set("enable-webgl").
		Set("enable-webgl2").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-infobars").
		Set("window-size", "1920,1080").
		Set("mute-audio")

	if cfg.IgnoreCertErrors {
		l = l.Set("ignore-certificate-errors").Set("ignore-ssl-errors")
	}

	return l
}

func (e *RodEngine) ID() string { return e.id }

func (e *RodEngine) NewPage(ctx context.Context) (Page, error) {
	rodPage, err := e.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("engine: new page: %w", err)
	}

	stealthPage, err := stealth.Page(e.browser)
	if err == nil {
		rodPage = stealthPage
	} else {
		log.Warn().Err(err).Msg("engine: stealth page creation failed, continuing without it")
	}

	cleanup, err := setPageProxyAuth(ctx, rodPage, e.creds)
	if err != nil {
		log.Warn().Err(err).Msg("engine: proxy auth setup failed, page may fail to load through the proxy")
	}

	p := &RodPage{id: uuid.NewString(), page: rodPage, engine: e, proxyCleanup: cleanup}

	e.mu.Lock()
	e.pages[p.id] = p
	e.mu.Unlock()

	return p, nil
}

func (e *RodEngine) Pages() ([]Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Page, 0, len(e.pages))
	for _, p := range e.pages {
		out = append(out, p)
	}
	return out, nil
}

func (e *RodEngine) PageCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pages)
}

func (e *RodEngine) Healthy(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	page, err := e.browser.Context(checkCtx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return false
	}
	defer page.Close()

	if err := page.Context(checkCtx).Navigate("about:blank"); err != nil {
		return false
	}
	return true
}

func (e *RodEngine) Close() error {
	e.mu.Lock()
	e.pages = nil
	e.mu.Unlock()
	return e.browser.Close()
}

func (e *RodEngine) forgetPage(id string) {
	e.mu.Lock()
	delete(e.pages, id)
	e.mu.Unlock()
}
