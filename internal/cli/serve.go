package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/okian/rsvp/internal/adapters/http/api"
	"github.com/okian/rsvp/internal/adapters/http/live"
	"github.com/okian/rsvp/internal/adapters/notify"
	"github.com/okian/rsvp/internal/adapters/repository"
	service "github.com/okian/rsvp/internal/app"
	"github.com/okian/rsvp/internal/config"
	"github.com/okian/rsvp/internal/domain/dedupe"
	"github.com/okian/rsvp/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 15 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the RSVP HTTP service",
		Long: `Run the RSVP HTTP service until SIGINT or SIGTERM.

Configuration comes from defaults, the optional YAML file, .env and RSVP_*
environment variables, in increasing precedence.

Example:
  RSVP_DATABASE_URL=postgres://... rsvpd serve
  rsvpd serve --config ./config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts)
		},
	}
}

func runServe(ctx context.Context, opts *RootOptions) error { //nolint:funlen,gocyclo // startup sequence reads top to bottom
	log := logger.Get()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if !opts.Verbose {
		if err := logger.SetLevelString(cfg.LogLevel); err != nil {
			log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
			_ = logger.SetLevelString("info")
		}
	}
	admins, err := cfg.Admins()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid admin users", err)
	}

	if cfg.MigrateOnStart {
		log.Info(ctx, "applying migrations")
		if err := repository.Migrate(cfg.DatabaseURL); err != nil {
			return WrapExitError(ExitFailure, "failed to migrate", err)
		}
	}

	pool, err := repository.NewPool(ctx, repository.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnIdleTime: cfg.DBMaxConnIdleTime,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to open database pool", err)
	}
	store := repository.NewPostgresStore(pool)
	defer store.Close()

	var rdb *redis.Client
	if cfg.DedupeBackend == config.DedupeRedis || cfg.LiveRelay {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return WrapExitError(ExitFailure, "failed to reach redis", err)
		}
	}

	svcOpts := []service.Option{
		service.WithLogger(log.Named("service")),
		service.WithRequestTimeout(cfg.RequestTimeout),
		service.WithWorkerCount(cfg.NotifyWorkers),
		service.WithQueueSize(cfg.NotifyQueueSize),
		service.WithJobTimeout(cfg.NotifyTimeout),
	}

	if cfg.NotificationsActive() {
		n, err := buildNotifier(cfg, rdb, log)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to configure notifications", err)
		}
		svcOpts = append(svcOpts, service.WithNotifier(n))
	} else {
		log.Info(ctx, "notifications disabled", logger.Bool("notify_enabled", cfg.NotifyEnabled))
	}

	var hub *live.Hub
	if len(admins) > 0 {
		hub = live.NewHub(log, live.WithOrigins(cfg.CORSAllowedOrigins))

		var pub live.Publisher = hub
		if cfg.LiveRelay {
			relay := live.NewRelay(rdb, hub, "", log)
			go func() {
				if err := relay.Run(ctx); err != nil {
					log.Error(ctx, "live relay stopped", logger.Error(err))
				}
			}()
			pub = relay
		}
		svcOpts = append(svcOpts, service.WithPublisher(pub))
	}

	svc, err := service.New(store, svcOpts...)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to create service", err)
	}
	// Workers outlive the signal so Stop can drain the queue.
	if err := svc.Start(context.WithoutCancel(ctx)); err != nil {
		return WrapExitError(ExitFailure, "failed to start service", err)
	}

	apiOpts := []api.Option{
		api.WithLogger(log),
		api.WithAdmins(admins),
		api.WithCORSOrigins(cfg.CORSAllowedOrigins),
		api.WithMaxBodyBytes(cfg.MaxBodyBytes),
		api.WithQRTarget(cfg.QRRedirectURL),
	}
	if hub != nil {
		apiOpts = append(apiOpts, api.WithLive(hub))
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewServer(svc, apiOpts...).Handler(ctx),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info(ctx, "shutting down server...")
	case err := <-serveErr:
		runErr = WrapExitError(ExitFailure, "HTTP server failed", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if hub != nil {
		hub.Close()
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Warn(ctx, "pending notifications abandoned", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return runErr
}

// buildNotifier assembles the email pipeline. rdb is only used with the
// redis dedupe backend.
func buildNotifier(cfg *config.Config, rdb *redis.Client, log logger.Logger) (*notify.Notifier, error) {
	composer, err := notify.NewComposer(cfg.Locale, cfg.SiteName, cfg.Signature)
	if err != nil {
		return nil, err
	}
	sender, err := notify.NewResendSender(cfg.ResendAPIKey, cfg.NotifyTimeout)
	if err != nil {
		return nil, err
	}

	var d dedupe.Deduper
	if cfg.DedupeBackend == config.DedupeRedis {
		d = dedupe.NewRedisDeduper(rdb, dedupe.WithRedisTTL(cfg.DedupeTTL))
	} else {
		d = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize), dedupe.WithTTL(cfg.DedupeTTL))
	}

	return notify.New(composer, sender, cfg.FromEmail,
		notify.WithAdmins(cfg.AdminEmails),
		notify.WithDeduper(d),
		notify.WithLogger(log.Named("notify")),
	)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(commandContext(cmd), d)
}
