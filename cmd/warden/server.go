package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/wardenbot/warden/config"
	"github.com/wardenbot/warden/moderation/commands"
	"github.com/wardenbot/warden/moderation/engine"
	"github.com/wardenbot/warden/moderation/executor"
	"github.com/wardenbot/warden/moderation/ledger"
	"github.com/wardenbot/warden/moderation/modlog"
	"github.com/wardenbot/warden/moderation/recordstore"
	"github.com/wardenbot/warden/moderation/verification"
	"github.com/wardenbot/warden/moderation/webhooks"
	"github.com/wardenbot/warden/platform"
	"github.com/wardenbot/warden/platform/discord"

	"github.com/disgoorg/snowflake/v2"
	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
	"gorm.io/plugin/opentelemetry/tracing"
)

type Server struct {
	logger       *slog.Logger
	cfg          config.Config
	session      *discord.Session
	engine       *engine.Engine
	verification *verification.Verification
	echo         *echo.Echo
	httpd        *http.Server
	adminToken   string
}

type ServerConfig struct {
	BotToken         string
	StoreURL         string
	StoreToken       string
	StoreRateLimit   float64
	StoreRetries     int
	StoreTimeout     time.Duration
	MaxDBConnections int
	RedisURL         string
	Bind             string
	AdminToken       string
	Logger           *slog.Logger
}

func openStore(sc ServerConfig, logger *slog.Logger) (recordstore.RecordStore, error) {
	if recordstore.IsDatabaseURL(sc.StoreURL) {
		db, err := recordstore.OpenDatabase(sc.StoreURL, sc.MaxDBConnections, logger)
		if err != nil {
			return nil, err
		}
		if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
			if err := db.Use(tracing.NewPlugin()); err != nil {
				return nil, err
			}
		}
		return recordstore.NewGormStore(db)
	}
	return recordstore.NewHTTPStore(recordstore.HTTPStoreConfig{
		Host:       sc.StoreURL,
		Token:      sc.StoreToken,
		RateLimit:  sc.StoreRateLimit,
		MaxRetries: sc.StoreRetries,
		Timeout:    sc.StoreTimeout,
		Logger:     logger,
	})
}

func openLedger(sc ServerConfig, cfg config.Config, logger *slog.Logger) (ledger.Ledger, error) {
	if sc.RedisURL != "" {
		logger.Info("using redis suppression ledger")
		return ledger.NewRedisLedger(sc.RedisURL)
	}
	// entries are short-lived; capacity only matters under mass-action bursts
	return ledger.NewMemLedger(10_000, 2*cfg.Moderation.SuppressionTTL), nil
}

func NewServer(cfg config.Config, sc ServerConfig) (*Server, error) {
	logger := sc.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	store, err := openStore(sc, logger)
	if err != nil {
		return nil, fmt.Errorf("opening record store: %w", err)
	}
	l, err := openLedger(sc, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("opening suppression ledger: %w", err)
	}
	session, err := discord.New(sc.BotToken, cfg.GuildID, logger)
	if err != nil {
		return nil, err
	}

	events := platform.NewEvents(logger)
	session.Route(events)

	ml := modlog.New(session, l, cfg.Channels, logger)
	ml.Register(events)

	exec := executor.New(session, l, executor.Config{
		MutedRole:      cfg.Roles.Muted,
		Timeout:        cfg.Moderation.PlatformTimeout,
		MaxRetries:     cfg.Moderation.PlatformRetries,
		SuppressionTTL: cfg.Moderation.SuppressionTTL,
	}, logger)

	var modRole snowflake.ID
	if len(cfg.Roles.Moderators) > 0 {
		modRole = cfg.Roles.Moderators[0]
	}
	eng := engine.New(store, exec, session, ml, engine.Config{
		MutedRole:         cfg.Roles.Muted,
		ModeratorRole:     modRole,
		ReconcileInterval: cfg.Moderation.ReconcileInterval,
		RejoinThreshold:   cfg.Moderation.RejoinThreshold,
		FireTimeout:       cfg.Moderation.PlatformTimeout * time.Duration(cfg.Moderation.PlatformRetries+2),
		RulesURL:          cfg.Moderation.RulesURL,
		AppealsContact:    cfg.Moderation.AppealsContact,
	}, logger)
	eng.Register(events)

	router := commands.NewRouter(session, cfg.Prefix, logger)
	router.Register(events)
	commands.NewModeration(eng, session, cfg, logger).Register(router)

	verif := verification.New(session, ml, router, cfg, logger)
	verif.Register(events)

	webhooks.New(session, ml, logger).Register(events)

	srv := &Server{
		logger:       logger,
		cfg:          cfg,
		session:      session,
		engine:       eng,
		verification: verif,
		adminToken:   sc.AdminToken,
	}
	srv.echo = srv.newEcho()
	srv.httpd = &http.Server{
		Handler:        srv.echo,
		Addr:           sc.Bind,
		WriteTimeout:   time.Minute,
		ReadTimeout:    time.Minute,
		MaxHeaderBytes: 1 << 20,
	}
	return srv, nil
}

// Run connects to the gateway, then runs the reconciliation loop, the verification reminder task, and the HTTP server until ctx is canceled or one of them fails.
func (srv *Server) Run(ctx context.Context) error {
	if err := srv.session.Open(); err != nil {
		return err
	}
	defer func() {
		if err := srv.session.Close(); err != nil {
			srv.logger.Warn("error closing discord session", "err", err)
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.engine.Run(ctx)
	})
	g.Go(func() error {
		return srv.verification.Run(ctx)
	})
	g.Go(func() error {
		srv.logger.Info("starting http server", "bind", srv.httpd.Addr)
		if err := srv.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := shutdownContext()
		defer cancel()
		return srv.httpd.Shutdown(sctx)
	})
	err := g.Wait()

	srv.logger.Info("shutting down")
	srv.verification.Close()
	sctx, cancel := shutdownContext()
	defer cancel()
	if serr := srv.engine.Stop(sctx); serr != nil {
		srv.logger.Error("timers did not stop cleanly", "err", serr)
	}
	return err
}
