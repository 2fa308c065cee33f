package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erazemk/jedilnik/internal/api"
	"github.com/erazemk/jedilnik/internal/config"
	"github.com/erazemk/jedilnik/internal/db"
	"github.com/erazemk/jedilnik/internal/staging"
	"github.com/erazemk/jedilnik/internal/store"
)

const usage = `Usage: jedilnik [flags]

Flags:
  -c, -config <path>      YAML config file (default: none)
  -d, -db <path>          SQLite database path (default: jedilnik.db)
  -a, -addr <host:port>   listen address (default: :8080)
  -s, -admin <email>      site administrator email (default: admin@jedilnik.local)
  -C, -content <dir>      content root for imported images (default: content)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -h, -help               show this help and exit

Settings are read from the config file, then .env and JEDILNIK_* environment
variables, then flags.
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// stringFlag registers a long and a short name for the same setting.
func stringFlag(fs *flag.FlagSet, long, short string) *string {
	p := new(string)
	fs.StringVar(p, long, "", "")
	fs.StringVar(p, short, "", "")
	return p
}

func run(args []string) error {
	fs := flag.NewFlagSet("jedilnik", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(os.Stdout, usage) }

	configPath := stringFlag(fs, "config", "c")
	dbPath := stringFlag(fs, "db", "d")
	addr := stringFlag(fs, "addr", "a")
	admin := stringFlag(fs, "admin", "s")
	content := stringFlag(fs, "content", "C")
	logPath := stringFlag(fs, "log", "l")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	for _, o := range []struct{ flag, dst *string }{
		{dbPath, &cfg.DBPath},
		{addr, &cfg.Addr},
		{admin, &cfg.SiteAdmin},
		{content, &cfg.ContentRoot},
		{logPath, &cfg.LogPath},
	} {
		if *o.flag != "" {
			*o.dst = *o.flag
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := newLogger(os.Stdout, os.Stderr, cfg.LogPath)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	return serve(cfg)
}

func serve(cfg *config.Config) error {
	ctx := context.Background()

	if err := os.MkdirAll(cfg.ContentRoot, 0o755); err != nil {
		return fmt.Errorf("creating content root: %w", err)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		return err
	}
	slog.Info("database ready", "path", cfg.DBPath)

	password, err := ensureSiteAdmin(ctx, database, cfg.SiteAdmin)
	if err != nil {
		return fmt.Errorf("preparing site administrator: %w", err)
	}
	if password != "" {
		printAdminCredentials(os.Stdout, cfg.SiteAdmin, password)
	}

	jwtSecret, err := store.GetJWTSecret(ctx, database)
	if err != nil {
		return err
	}

	router := api.NewRouter(api.Options{
		DB:             database,
		JWTSecret:      jwtSecret,
		SiteAdmin:      cfg.SiteAdmin,
		Staging:        staging.New(cfg.StagingTTL),
		ContentRoot:    cfg.ContentRoot,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.LoggingMiddleware(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Addr, "site_admin", cfg.SiteAdmin, "staging_ttl", cfg.StagingTTL)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("server stopped, closing database")
	return nil
}
