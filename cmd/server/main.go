/*
main.go - Application entry point

PURPOSE:
  Starts the rent ledger HTTP server. Configuration comes from the
  environment (and an optional .env file); dependencies are wired with fx.

STARTUP SEQUENCE:
  1. Load .env, then config from the environment
  2. Build the zap logger
  3. Assemble the app (local store, Book, hooks, remote, events)
  4. Start resync and the HTTP server

COMMAND-LINE FLAGS:
  -env     Path to a .env file (default: .env, missing is fine)
  -port    HTTP server port, overrides PORT

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop resync, drain pushes and events, close stores
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - app/app.go: Object graph
  - config/config.go: Environment keys
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/warp/rent-ledger/api"
	"github.com/warp/rent-ledger/app"
	"github.com/warp/rent-ledger/config"
	"github.com/warp/rent-ledger/logging"
)

func main() {
	envFile := flag.String("env", ".env", "Path to a .env file")
	port := flag.Int("port", 0, "HTTP server port (overrides PORT)")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fxApp := fx.New(
		fx.Supply(flagPort(*port)),
		fx.Provide(
			loadConfig,
			newLogger,
			newApp,
			newHandler,
			newHTTPServer,
		),
		fx.Invoke(func(*http.Server) {}),
		fx.NopLogger,
	)

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()
	if err := fxApp.Start(startCtx); err != nil {
		fmt.Fprintln(os.Stderr, "failed to start:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := fxApp.Stop(stopCtx); err != nil {
		fmt.Fprintln(os.Stderr, "error stopping app:", err)
		os.Exit(1)
	}
}

type flagPort int

func loadConfig(p flagPort) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if p > 0 {
		cfg.Port = int(p)
	}
	return cfg, nil
}

func newLogger(lc fx.Lifecycle, cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.ServiceName)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = logger.Sync()
			return nil
		},
	})
	return logger, nil
}

func newApp(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*app.App, error) {
	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			a.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			return a.Close()
		},
	})
	return a, nil
}

func newHandler(a *app.App) *api.Handler {
	return api.NewHandler(a)
}

func newHTTPServer(lc fx.Lifecycle, cfg *config.Config, h *api.Handler, logger *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(h, api.Options{}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			logger.Info("server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			return srv.Shutdown(ctx)
		},
	})
	return srv
}
