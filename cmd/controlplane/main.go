// Command controlplane runs the browser-automation control plane:
// REST, gRPC, WebSocket, and MCP front-ends over a shared browser
// pool, session/context store, and action executor.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	"github.com/Rorqualx/browserctl/internal/actionexec"
	"github.com/Rorqualx/browserctl/internal/authgate"
	"github.com/Rorqualx/browserctl/internal/browserpool"
	"github.com/Rorqualx/browserctl/internal/config"
	"github.com/Rorqualx/browserctl/internal/coretypes"
	"github.com/Rorqualx/browserctl/internal/dispatch"
	"github.com/Rorqualx/browserctl/internal/engine"
	"github.com/Rorqualx/browserctl/internal/errenvelope"
	"github.com/Rorqualx/browserctl/internal/grpcapi"
	"github.com/Rorqualx/browserctl/internal/mcpapi"
	"github.com/Rorqualx/browserctl/internal/metrics"
	"github.com/Rorqualx/browserctl/internal/middleware"
	"github.com/Rorqualx/browserctl/internal/pagemanager"
	"github.com/Rorqualx/browserctl/internal/restapi"
	"github.com/Rorqualx/browserctl/internal/store"
	"github.com/Rorqualx/browserctl/internal/validators"
	"github.com/Rorqualx/browserctl/internal/wsapi"
	"github.com/Rorqualx/browserctl/pkg/version"
)

const metricsCollectInterval = 15 * time.Second

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("browserctl %s (%s)\n", version.Full(), version.GoVersion())
		return
	}

	cfg := config.Load()
	setupLogging(cfg.LogLevel)
	cfg.Validate()
	printBanner(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backends := store.NewBackends(cfg)
	pages := pagemanager.New(backends.Sessions, backends.Contexts, cfg.IdleTimeout)

	factory := engine.Factory(func(ctx context.Context, proxyURL string) (engine.Engine, error) {
		return engine.NewRodEngine(ctx, cfg, proxyURL)
	})
	pool, err := browserpool.New(ctx, cfg, factory)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start browser pool")
	}

	registry, err := validators.NewRegistry()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build action schema registry")
	}
	if cfg.ActionSchemasPath != "" {
		if err := registry.LoadOverrides(cfg.ActionSchemasPath); err != nil {
			log.Warn().Err(err).Str("path", cfg.ActionSchemasPath).Msg("failed to load schema overrides")
		}
		if cfg.SchemaHotReload {
			go registry.WatchReload(cfg.ActionSchemasPath, ctx.Done())
		}
	}

	tracker := errenvelope.NewTracker()
	exec := actionexec.New(registry, pages, tracker, pool.Breaker())
	gate := authgate.New(cfg, backends.Sessions)
	svc := dispatch.New(cfg, backends, pool, pages, exec, gate, tracker)

	metrics.SetBuildInfo(version.Full(), version.GoVersion())

	stopCollectors := make(chan struct{})
	go metrics.StartMemoryCollector(metricsCollectInterval, stopCollectors)
	go svc.StartMetricsCollector(ctx, metricsCollectInterval, stopCollectors)
	go svc.StartExpiryLoop(ctx, cfg.SessionCleanupInterval, stopCollectors)

	servers := startFrontends(ctx, cfg, svc)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	signal.Stop(quit)

	log.Info().Msg("shutting down")
	close(stopCollectors)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	servers.shutdown(shutdownCtx)

	tracker.Close()
	pages.Shutdown()
	if err := pool.Shutdown(15 * time.Second); err != nil {
		log.Error().Err(err).Msg("browser pool shutdown error")
	}
	if err := backends.Close(); err != nil {
		log.Error().Err(err).Msg("store backend close error")
	}

	log.Info().Msg("shutdown complete")
}

// frontends bundles every long-running front-end server so shutdown
// can be driven from one place.
type frontends struct {
	rest        *http.Server
	restCloser  func()
	grpc        *grpc.Server
	grpcLis     net.Listener
	pprof       *http.Server
	mcpStdio    context.CancelFunc
}

func (f *frontends) shutdown(ctx context.Context) {
	if f.rest != nil {
		if err := f.rest.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("REST server shutdown error")
		}
	}
	if f.restCloser != nil {
		f.restCloser()
	}
	if f.pprof != nil {
		if err := f.pprof.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("pprof server shutdown error")
		}
	}
	if f.grpc != nil {
		f.grpc.GracefulStop()
	}
	if f.mcpStdio != nil {
		f.mcpStdio()
	}
}

// startFrontends wires and launches the REST+WebSocket mux, the gRPC
// server, and the MCP front-end (stdio or HTTP, per MCP_TRANSPORT),
// each in its own goroutine, and returns a handle for graceful
// shutdown.
func startFrontends(ctx context.Context, cfg *config.Config, svc *dispatch.Service) *frontends {
	f := &frontends{}

	restHandler, restCloser := restapi.NewRouter(svc, cfg)
	f.restCloser = restCloser

	mux := http.NewServeMux()
	mux.Handle("/", restHandler)
	mux.Handle("/ws", wsapi.NewServer(svc, cfg))
	mux.Handle("/metrics", metrics.Handler())

	var mcpPrincipal *coretypes.Principal
	if cfg.MCPTransport != config.MCPTransportNone {
		mcpPrincipal = &coretypes.Principal{UserID: "mcp-service-account", Username: "mcp", Roles: []string{"operator"}}
	}

	switch cfg.MCPTransport {
	case config.MCPTransportHTTP:
		mcpSrv := mcpapi.NewServer(svc, mcpPrincipal)
		mux.Handle("/mcp", middleware.Metrics("mcp-http")(http.HandlerFunc(mcpSrv.ServeHTTP)))
	case config.MCPTransportStdio:
		stdioCtx, stdioCancel := context.WithCancel(ctx)
		f.mcpStdio = stdioCancel
		mcpSrv := mcpapi.NewServer(svc, mcpPrincipal)
		go func() {
			reader := bufio.NewReaderSize(os.Stdin, 64*1024)
			if err := mcpSrv.ServeStdio(stdioCtx, reader, os.Stdout); err != nil && stdioCtx.Err() == nil {
				log.Error().Err(err).Msg("MCP stdio loop exited")
			}
		}()
	}

	restAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	f.rest = &http.Server{
		Addr:              restAddr,
		Handler:           mux,
		ReadTimeout:       cfg.MaxActionTimeout + 10*time.Second,
		WriteTimeout:      cfg.MaxActionTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("address", restAddr).Msg("REST/WebSocket/metrics front-end listening")
		if err := f.rest.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("REST server failed")
		}
	}()

	grpcAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		log.Fatal().Err(err).Str("address", grpcAddr).Msg("failed to bind gRPC listener")
	}
	f.grpcLis = lis
	f.grpc = grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcapi.UnaryMetricsInterceptor(), grpcapi.UnaryAuthInterceptor(svc)),
		grpc.ChainStreamInterceptor(grpcapi.StreamMetricsInterceptor(), grpcapi.StreamAuthInterceptor(svc)),
	)
	grpcapi.Register(f.grpc, grpcapi.NewServer(svc))
	go func() {
		log.Info().Str("address", grpcAddr).Msg("gRPC front-end listening")
		if err := f.grpc.Serve(lis); err != nil && err != grpc.ErrServerStopped {
			log.Fatal().Err(err).Msg("gRPC server failed")
		}
	}()

	if cfg.PProfEnabled {
		pprofAddr := fmt.Sprintf("%s:%d", cfg.PProfBindAddr, cfg.PProfPort)
		pprofServer := &http.Server{Addr: pprofAddr, Handler: http.DefaultServeMux, ReadTimeout: 60 * time.Second, WriteTimeout: 60 * time.Second}
		go func() {
			log.Warn().Str("addr", pprofAddr).Msg("pprof server started - exposes runtime internals, debugging use only")
			if err := pprofServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("pprof server failed")
			}
		}()
		f.pprof = pprofServer
	}

	return f
}

// setupLogging configures zerolog based on the log level.
func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func printBanner(cfg *config.Config) {
	banner := `
 _                                              _   _
| |__  _ __ _____      __________ _ __ ___ ___ | |_| |
| '_ \| '__/ _ \ \ /\ / / ___/ _ \ '__/ __/ __|| __| |
| |_) | | | (_) \ V  V /__ \  __/ | | (__\__ \| |_| |
|_.__/|_|  \___/ \_/\_/____/\___|_|  \___|___/ \__|_|
                                  control plane
`
	fmt.Println(banner)
	log.Info().
		Str("version", version.Full()).
		Str("go_version", version.GoVersion()).
		Str("rest_addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)).
		Str("grpc_addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.GRPCPort)).
		Str("mcp_transport", string(cfg.MCPTransport)).
		Str("session_store", string(cfg.SessionStore)).
		Msg("starting browserctl")
}
