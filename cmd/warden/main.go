package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/wardenbot/warden/config"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "warden",
		Usage:   "community moderation bot",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "path to the guild YAML config file",
			Value:   "warden.yaml",
			EnvVars: []string{"WARDEN_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			Value:   "info",
			EnvVars: []string{"WARDEN_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format: json or text",
			Value:   "json",
			EnvVars: []string{"WARDEN_LOG_FORMAT"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		checkConfigCmd,
	}

	return app.Run(args)
}

func configLogger(cctx *cli.Context, writer io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cctx.String("log-level")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cctx.String("log-format")) == "text" {
		handler = slog.NewTextHandler(writer, opts)
	} else {
		handler = slog.NewJSONHandler(writer, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "connect to the gateway and run the bot",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "bot-token",
			Usage:    "discord bot token",
			EnvVars:  []string{"WARDEN_BOT_TOKEN", "BOT_TOKEN"},
			Required: true,
		},
		&cli.StringFlag{
			Name:    "store-url",
			Usage:   "infraction record store: site API base URL (http/https), or a database URL (sqlite/postgres)",
			Value:   "sqlite://data/warden/infractions.sqlite",
			EnvVars: []string{"WARDEN_STORE_URL", "DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "store-token",
			Usage:   "API token for the site API record store",
			EnvVars: []string{"WARDEN_STORE_TOKEN"},
		},
		&cli.Float64Flag{
			Name:    "store-rate-limit",
			Usage:   "max requests per second to the site API record store",
			Value:   20,
			EnvVars: []string{"WARDEN_STORE_RATE_LIMIT"},
		},
		&cli.IntFlag{
			Name:    "store-retries",
			Value:   3,
			EnvVars: []string{"WARDEN_STORE_RETRIES"},
		},
		&cli.DurationFlag{
			Name:    "store-timeout",
			Value:   15 * time.Second,
			EnvVars: []string{"WARDEN_STORE_TIMEOUT"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			Value:   20,
			EnvVars: []string{"WARDEN_MAX_DB_CONNECTIONS"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis server for the event suppression ledger; in-process memory if not set",
			EnvVars: []string{"WARDEN_REDIS_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for health, metrics and admin APIs",
			Value:   ":3989",
			EnvVars: []string{"WARDEN_BIND"},
		},
		&cli.StringFlag{
			Name:    "admin-token",
			Usage:   "bearer token for the admin HTTP API; admin routes are disabled if not set",
			EnvVars: []string{"WARDEN_ADMIN_TOKEN"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger := configLogger(cctx, os.Stdout)

		ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		shutdownOTEL := configOTEL(ctx, "warden")
		defer shutdownOTEL()

		cfg, err := config.Load(cctx.String("config"))
		if err != nil {
			return err
		}

		srv, err := NewServer(cfg, ServerConfig{
			BotToken:         cctx.String("bot-token"),
			StoreURL:         cctx.String("store-url"),
			StoreToken:       cctx.String("store-token"),
			StoreRateLimit:   cctx.Float64("store-rate-limit"),
			StoreRetries:     cctx.Int("store-retries"),
			StoreTimeout:     cctx.Duration("store-timeout"),
			MaxDBConnections: cctx.Int("max-db-connections"),
			RedisURL:         cctx.String("redis-url"),
			Bind:             cctx.String("bind"),
			AdminToken:       cctx.String("admin-token"),
			Logger:           logger,
		})
		if err != nil {
			return err
		}

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run warden: %w", err)
		}
		return nil
	},
}

var checkConfigCmd = &cli.Command{
	Name:  "check-config",
	Usage: "load and validate the config file, then exit",
	Action: func(cctx *cli.Context) error {
		cfg, err := config.Load(cctx.String("config"))
		if err != nil {
			return err
		}
		fmt.Printf("config ok: guild %s, prefix %q, %d staff roles\n", cfg.GuildID, cfg.Prefix, len(cfg.StaffRoles()))
		return nil
	},
}

// context for shutdown work, which must run after the main context is canceled
func shutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
