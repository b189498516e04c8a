package engine

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// proxyCredentials carries the username/password a page's proxy
// expects, if any. The proxy server itself is set at launch time via
// the "proxy-server" Chrome flag; Chrome has no command-line way to
// supply credentials for it, so they're provided per-page over CDP's
// Fetch domain instead.
type proxyCredentials struct {
	username string
	password string
}

// setPageProxyAuth enables Fetch interception on page and answers
// proxy auth challenges with creds, continuing every other
// intercepted request unmodified. The returned cleanup stops the
// listener goroutines; it's safe to call more than once and is wired
// into RodPage.Close so it always runs.
func setPageProxyAuth(ctx context.Context, page *rod.Page, creds proxyCredentials) (cleanup func(), err error) {
	if creds.username == "" {
		return func() {}, nil
	}

	if err := (proto.FetchEnable{HandleAuthRequests: true}).Call(page); err != nil {
		log.Warn().Err(err).Msg("engine: failed to enable fetch interception for proxy auth")
		return func() {}, err
	}

	listenerCtx, cancel := context.WithCancel(ctx)
	pageCtx := page.Context(listenerCtx)

	var wg sync.WaitGroup
	var once sync.Once
	cleanup = func() {
		once.Do(func() {
			cancel()
			done := make(chan struct{})
			go func() { wg.Wait(); close(done) }()
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				log.Warn().Msg("engine: timed out waiting for proxy auth listeners to stop")
			}
		})
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		pageCtx.EachEvent(func(e *proto.TargetTargetDestroyed) bool {
			cleanup()
			return true
		})()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		pageCtx.EachEvent(func(e *proto.FetchAuthRequired) bool {
			select {
			case <-listenerCtx.Done():
				return true
			default:
			}
			_ = (proto.FetchContinueWithAuth{
				RequestID: e.RequestID,
				AuthChallengeResponse: &proto.FetchAuthChallengeResponse{
					Response: proto.FetchAuthChallengeResponseResponseProvideCredentials,
					Username: creds.username,
					Password: creds.password,
				},
			}).Call(page)
			return false
		})()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		pageCtx.EachEvent(func(e *proto.FetchRequestPaused) bool {
			select {
			case <-listenerCtx.Done():
				return true
			default:
			}
			if e.ResponseStatusCode == nil {
				_ = (proto.FetchContinueRequest{RequestID: e.RequestID}).Call(page)
			}
			return false
		})()
	}()

	return cleanup, nil
}
