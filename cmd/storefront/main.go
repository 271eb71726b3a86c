// Command storefront runs the session-backed web pipeline and the signup
// notification dispatcher.
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

	"github.com/urfave/cli/v2"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/avasek/storefront/internal/config"
	"github.com/avasek/storefront/internal/mail"
	"github.com/avasek/storefront/internal/notify"
	"github.com/avasek/storefront/internal/server"
	"github.com/avasek/storefront/internal/session"
	"github.com/avasek/storefront/internal/store"
	"github.com/avasek/storefront/internal/telemetry"
	"github.com/avasek/storefront/internal/web"
)

const connectTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "storefront",
		Usage: "session-backed shop backend with a signup notification dispatcher",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server and the notification dispatcher",
				Action: runServe,
			},
			{
				Name:   "notify-once",
				Usage:  "run a single notification dispatcher tick and exit",
				Action: runNotifyOnce,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// setup loads config and connects to the store. A store that cannot be
// reached at startup is fatal: the process must not listen without storage.
func setup(c *cli.Context) (*config.Config, *slog.Logger, *mongo.Client, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}
	logger := newLogger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	client, err := store.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("store connection failed: %w", err)
	}
	return cfg, logger, client, nil
}

func newMailer(cfg *config.Config) mail.Mailer {
	m := mail.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
	return mail.RateLimited(m, cfg.SMTP.RatePerSec)
}

func runServe(c *cli.Context) error {
	cfg, logger, client, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db := client.Database(cfg.Mongo.DBName)
	users := store.NewMongoUsers(db)
	sessions := store.NewMongoSessions(db, cfg.Session.TTL)
	if err := users.EnsureIndexes(ctx); err != nil {
		return err
	}
	if err := sessions.EnsureIndexes(ctx); err != nil {
		return err
	}
	if err := server.EnsureSeedUser(ctx, users, logger); err != nil {
		return err
	}

	metrics := telemetry.NewMetrics()
	fallback := web.NewFallback(logger)

	manager := session.NewManager(sessions, cfg.Session.CookieName, cfg.Session.Secure, logger)
	manager.OnStoreError = fallback.ServeError

	app := &server.App{
		Users:    users,
		Sessions: manager,
		Identity: web.NewIdentity(users, fallback),
		Guard:    web.NewCSRFGuard(cfg.Session.Secret),
		Gate:     web.NewUploadGate(cfg.Upload.Field, cfg.Upload.Dir, cfg.Upload.RejectLoudly, fallback),
		Fallback: fallback,
		Metrics:  metrics,
		Logger:   logger,
		Health: server.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		}),
	}

	dispatcher := notify.NewDispatcher(users, newMailer(cfg), notify.Config{
		Interval:    cfg.Notify.Interval,
		Concurrency: cfg.Notify.Concurrency,
	}, logger, metrics)
	dispatcher.Start()
	defer dispatcher.Close()

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: app.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func runNotifyOnce(c *cli.Context) error {
	cfg, logger, client, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	users := store.NewMongoUsers(client.Database(cfg.Mongo.DBName))
	dispatcher := notify.NewDispatcher(users, newMailer(cfg), notify.Config{
		Interval:    cfg.Notify.Interval,
		Concurrency: cfg.Notify.Concurrency,
	}, logger, nil)

	return dispatcher.RunTick(context.Background())
}
