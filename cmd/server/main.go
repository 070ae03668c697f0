/*
main.go - Application entry point

PURPOSE:
  Starts the leave engine server: loads configuration, opens the store,
  wires the service, the notification hub and the HTTP router, runs the
  balance sweep scheduler, and shuts everything down on a signal.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load config (file, then LEAVE_* environment, then flags)
  3. Open the configured store (memory, sqlite or mongo)
  4. Build translator, hub, service, handlers and router
  5. Start the scheduler and the HTTP server

COMMAND-LINE FLAGS:
  -c, --config     YAML config file (optional)
      --addr       Listen address, overrides server.addr
      --store      Store driver, overrides store.driver
      --db         SQLite path, overrides store.sqlite_path
      --log-level  Overrides log.level

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections and drain requests
  3. Close the store

SEE ALSO:
  - config/config.go: Configuration sections and environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/warp/leave-engine/accrual"
	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/auth"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/i18n"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/notify"
	"github.com/warp/leave-engine/store/memory"
	"github.com/warp/leave-engine/store/mongo"
	"github.com/warp/leave-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, addr, driver, dbPath, logLevel string

	flagSet := pflag.NewFlagSet("leave-server", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	flagSet.StringVar(&addr, "addr", "", "listen address (e.g. :8080)")
	flagSet.StringVar(&driver, "store", "", "store driver: memory, sqlite or mongo")
	flagSet.StringVar(&dbPath, "db", "", "SQLite database path (\":memory:\" for in-memory)")
	flagSet.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	overrides := map[string]*string{
		"addr":      &cfg.Server.Addr,
		"store":     &cfg.Store.Driver,
		"db":        &cfg.Store.SQLitePath,
		"log-level": &cfg.Log.Level,
	}
	values := map[string]string{"addr": addr, "store": driver, "db": dbPath, "log-level": logLevel}
	for name, dst := range overrides {
		if flagSet.Changed(name) {
			*dst = values[name]
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := closeStore(closeCtx); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	loc, err := generic.LoadLocation(cfg.Timezone)
	if err != nil {
		return err
	}
	translator, err := i18n.New(cfg.Notify.Locale)
	if err != nil {
		return err
	}

	hub := notify.NewHub(
		notify.WithSendTimeout(cfg.Notify.SendTimeout),
		notify.WithTranslator(translator),
		notify.WithLogger(logger),
	)
	svc := leave.NewService(store,
		leave.WithNotifier(hub),
		leave.WithCalculator(accrual.NewCalculator(loc)),
		leave.WithClock(generic.SystemClock{Location: loc}),
		leave.WithLogger(logger),
		leave.WithSweepParallelism(cfg.Sweep.Parallelism),
	)

	verifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	live := &notify.Handler{
		Hub:              hub,
		Verifier:         verifier,
		HandshakeTimeout: cfg.Notify.HandshakeTimeout,
		OriginPatterns:   originPatterns(cfg.Server.AllowedOrigins),
		Logger:           logger,
	}
	handler := api.NewHandler(svc, live, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		Verifier:       verifier,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	scheduler := api.NewBalanceScheduler(svc, cfg.Sweep.Interval, logger)
	scheduler.Enabled = cfg.Sweep.Enabled
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Server.Addr, "store", cfg.Store.Driver, "timezone", cfg.Timezone)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (leave.Store, func(context.Context) error, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), func(context.Context) error { return nil }, nil
	case config.DriverSQLite:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, func(context.Context) error { return s.Close() }, nil
	case config.DriverMongo:
		s, err := mongo.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open mongo store: %w", err)
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// originPatterns strips schemes; the websocket origin check matches hosts.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		out = append(out, o)
	}
	return out
}
