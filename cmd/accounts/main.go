package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/thibaut-decherit/usermanager/assets"
	"github.com/thibaut-decherit/usermanager/internal"
	"github.com/thibaut-decherit/usermanager/internal/account"
	accountdb "github.com/thibaut-decherit/usermanager/internal/account/db"
	"github.com/thibaut-decherit/usermanager/internal/db"
	"github.com/thibaut-decherit/usermanager/internal/db/migrate"
	"github.com/thibaut-decherit/usermanager/internal/email"
	"github.com/thibaut-decherit/usermanager/internal/email/hermes"
	"github.com/thibaut-decherit/usermanager/internal/email/mailgun"
	"github.com/thibaut-decherit/usermanager/internal/email/smtp"
	"github.com/thibaut-decherit/usermanager/internal/email/view"
	"github.com/thibaut-decherit/usermanager/internal/ratelimit"
	"github.com/thibaut-decherit/usermanager/migrations"
	"golang.org/x/sync/errgroup"
)

const helpText = `Usage: accounts <command> [arguments]

Commands:
  migrate                     run the database migrations
  purge [flags]               delete accounts that were never activated
  resend-activation <login>   send a new activation link
  password-reset <login>      send a password reset link

Configuration is read from the environment and an optional .env file.`

// command runs with a fully wired app.
type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"migrate":           migrateCmd,
	"purge":             purgeCmd,
	"resend-activation": resendActivationCmd,
	"password-reset":    passwordResetCmd,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stderr))
}

func run(ctx context.Context, args []string, w io.Writer) int {
	logger := slog.New(slog.NewTextHandler(w, nil))

	if len(args) == 0 {
		fmt.Fprintln(w, helpText)
		return 2
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(w, "unknown command %q\n\n%s\n", args[0], helpText)
		return 2
	}

	// Variables that are already set take precedence over the .env file.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Error("failed to load .env file", "error", err)
		return 1
	}

	cfg, err := configFromEnv()
	if err != nil {
		logger.Error("failed to get config from environment", "error", err)
		return 1
	}

	if args[0] == "migrate" {
		cfg.db.migrate = true
	}

	logger.Info("starting command",
		"command", args[0],
		"buildRevision", internal.BuildRevision,
		"buildRevisionTime", internal.BuildRevisionTime,
		"buildLocalModified", internal.BuildLocalModified,
	)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to set up", "error", err)
		return 1
	}

	defer func() {
		if err := a.close(); err != nil {
			logger.Error("failed to close resources", "error", err)
		}
	}()

	if err := cmd(ctx, a, args[1:]); err != nil {
		logger.Error("command failed", "command", args[0], "error", err)
		return 1
	}

	logger.Info("command finished", "command", args[0])

	return 0
}

// app holds the dependencies shared by the commands.
type app struct {
	logger  *slog.Logger
	service *account.Service
	closers []func() error
}

func newApp(ctx context.Context, cfg config, logger *slog.Logger) (a *app, err error) {
	a = &app{logger: logger}

	// release whatever was opened when a later step fails.
	defer func() {
		if err != nil {
			err = errors.Join(err, a.close())
		}
	}()

	store, err := a.openStore(ctx, cfg.db)
	if err != nil {
		return a, err
	}

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return a, err
	}

	var opts []account.ServiceOption
	if !cfg.limiter.redisURL.IsZero() {
		limiter, err := a.newLimiter(cfg.limiter)
		if err != nil {
			return a, err
		}
		opts = append(opts, account.WithRequestLimiter(limiter))
	}

	a.service, err = account.NewService(store, notifier, logger, cfg.account, opts...)
	if err != nil {
		return a, fmt.Errorf("failed to create account service: %w", err)
	}

	return a, nil
}

func (a *app) openStore(ctx context.Context, cfg dbConfig) (account.Store, error) {
	var (
		store account.Store
		sqlDB *sql.DB
	)

	switch cfg.driver {
	case driverPostgres:
		pool, err := db.OpenPostgres(ctx, cfg.url.SecretValue())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})

		store = accountdb.NewPgStore(pool)
		sqlDB = db.SQLFromPool(pool)
	default:
		var err error
		sqlDB, err = db.OpenSQLite(cfg.file, true)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		store = accountdb.NewSQLStore(sqlDB)
	}
	a.closers = append(a.closers, sqlDB.Close)

	if cfg.migrate {
		if err := a.migrate(ctx, sqlDB, cfg.driver); err != nil {
			return nil, err
		}
	}

	return store, nil
}

func (a *app) migrate(ctx context.Context, sqlDB *sql.DB, driver string) error {
	a.logger.Info("attempting to migrate database", "driver", driver)

	fsys, err := migrations.ForDriver(driver)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	ran, err := migrate.RunFS(ctx, sqlDB, fsys, migrate.Metadata{
		AppVersion: internal.BuildRevision,
		Timestamp:  internal.BuildRevisionTime,
	})
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	for _, m := range ran {
		a.logger.Info("migration ran", "sequence", m.Sequence, "filename", m.Filename)
	}

	return nil
}

func (a *app) newLimiter(cfg limiterConfig) (*ratelimit.Limiter, error) {
	opts, err := redis.ParseURL(cfg.redisURL.SecretValue())
	if err != nil {
		return nil, errors.New("invalid redis url")
	}

	client := redis.NewClient(opts)
	a.closers = append(a.closers, client.Close)

	return ratelimit.New(client, cfg.limit)
}

func newNotifier(cfg config, logger *slog.Logger) (*account.EmailNotifier, error) {
	var sender email.Sender
	switch cfg.email.driver {
	case emailDriverSMTP:
		s, err := smtp.NewSender(cfg.email.smtp)
		if err != nil {
			return nil, err
		}
		sender = s
	case emailDriverMailgun:
		sender = mailgun.NewSender(cfg.email.mailgun)
	default:
		sender = email.NewLogSender(logger)
	}

	var html email.HTMLRenderer
	if cfg.email.html {
		html = hermes.NewRenderer(hermes.Product{
			Name: cfg.email.product,
			Link: cfg.baseURL,
		})
	}

	renderer := view.NewFSRenderer(assets.EmailFS)
	if err := renderer.Check(account.Templates...); err != nil {
		return nil, fmt.Errorf("failed to load email templates: %w", err)
	}

	svc := email.NewService(cfg.email.from, renderer, html, sender)

	return account.NewEmailNotifier(svc, cfg.baseURL)
}

func (a *app) close() error {
	var errs []error
	// close in reverse order of opening.
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil

	return errors.Join(errs...)
}

func migrateCmd(_ context.Context, _ *app, args []string) error {
	// the migrations ran while setting up.
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments %v", args)
	}
	return nil
}

func purgeCmd(ctx context.Context, a *app, args []string) error {
	flags := flag.NewFlagSet("purge", flag.ContinueOnError)
	olderThan := flags.Duration("older-than", 30*24*time.Hour, "delete accounts registered longer ago than this")
	batch := flags.Int("batch", account.DefaultPurgeBatch, "number of accounts deleted per transaction")
	every := flags.Duration("every", 0, "keep running and purge at this interval, 0 purges once")

	if err := flags.Parse(args); err != nil {
		return err
	}

	if *olderThan < 0 || *batch < 1 || *every < 0 {
		return errors.New("flags must not be negative and batch at least 1")
	}

	purge := func(ctx context.Context) error {
		n, err := a.service.PurgeUnactivated(ctx, *olderThan, *batch)
		a.logger.Info("purge done", "deleted", n)
		return err
	}

	if *every == 0 {
		return purge(ctx)
	}

	// We need to run two tasks concurrently:
	// - Purging at every tick.
	// - Waiting for a signal to stop purging.

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(*every)
		defer ticker.Stop()

		for {
			err := purge(gCtx)
			if err != nil && gCtx.Err() == nil {
				return err
			}

			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("stopping purge")
		return nil
	})

	return g.Wait()
}

func resendActivationCmd(ctx context.Context, a *app, args []string) error {
	login, err := loginArg(args)
	if err != nil {
		return err
	}

	res, err := a.service.ResendActivation(ctx, login)
	if err != nil {
		return err
	}

	a.logger.Info("activation requested", "result", res)
	return nil
}

func passwordResetCmd(ctx context.Context, a *app, args []string) error {
	login, err := loginArg(args)
	if err != nil {
		return err
	}

	res, err := a.service.RequestPasswordReset(ctx, login)
	if err != nil {
		return err
	}

	a.logger.Info("password reset requested", "result", res)
	return nil
}

func loginArg(args []string) (string, error) {
	if len(args) != 1 || args[0] == "" {
		return "", errors.New("expected exactly one email address or username")
	}
	return args[0], nil
}
