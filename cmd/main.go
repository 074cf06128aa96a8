package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tiltmon/internal/app"
	"tiltmon/internal/config"
	"tiltmon/internal/db"
	"tiltmon/internal/db/migrate"
	"tiltmon/internal/logging"
)

var version = "dev"
var appName = "tiltmon"

const usage = `usage: %s [command]
  (none)   monitor Tilt hydrometers
  migrate  apply pending flush history migrations and exit
`

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "dotenv error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// stdout belongs to the console display
	logger := logging.New(cfg, version, appName, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := ""
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "":
		slog.Info("starting",
			"app", appName,
			"version", version,
			"env", cfg.AppEnv,
			"log_level", cfg.LogLevel.String(),
		)
		if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("run failed", "err", err)
			os.Exit(1)
		}
		slog.Info("shutting down")
	case "migrate":
		if err := runMigrate(ctx, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, usage, os.Args[0])
		os.Exit(1)
	}
}

func runMigrate(ctx context.Context, cfg config.Config) error {
	if cfg.SQLitePath == "" {
		return errors.New("SQLITE_PATH is not set")
	}
	conn, err := db.Open(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(conn); closeErr != nil {
			slog.Error("db close", "err", closeErr)
		}
	}()

	n, err := migrate.Run(ctx, conn)
	if err != nil {
		return err
	}
	fmt.Printf("%d migrations applied\n", n)
	return nil
}
