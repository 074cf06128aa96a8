// Package app wires the radio source, the device registry, the sinks and
// the HTTP API into the running monitor.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"tiltmon/internal/ble"
	"tiltmon/internal/cache"
	"tiltmon/internal/config"
	"tiltmon/internal/csvlog"
	"tiltmon/internal/db"
	"tiltmon/internal/db/migrate"
	"tiltmon/internal/history"
	"tiltmon/internal/httpapi"
	"tiltmon/internal/mqtt"
	"tiltmon/internal/tracker"
)

const shutdownTimeout = 10 * time.Second

// openLog creates device logs on disk with the CSV header.
func openLog(path string) (tracker.LogWriter, error) {
	return csvlog.Open(path, tracker.LogHeader)
}

func Run(ctx context.Context, cfg config.Config) error {
	return run(ctx, cfg, os.Stdout)
}

func run(ctx context.Context, cfg config.Config, out io.Writer) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"logDir", cfg.LogDir,
		"flushInterval", cfg.FlushInterval,
		"bleSource", cfg.BLESource,
		"httpAddr", cfg.HTTPAddr,
		"sqlitePath", cfg.SQLitePath,
		"mqttBroker", cfg.MQTTBroker,
		"redisAddr", cfg.RedisAddr,
	)

	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return err
	}
	registry := tracker.NewRegistry(cfg.LogDir, openLog)

	var (
		s      sinks
		deps   = httpapi.Deps{Devices: registry}
		dbConn *sql.DB
	)

	if cfg.SQLitePath != "" {
		var err error
		dbConn, err = db.Open(ctx, cfg, slog.Default())
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(dbConn); err != nil {
				slog.Error("db close", "error", err)
			}
		}()
		if _, err := migrate.Run(ctx, dbConn); err != nil {
			return err
		}
		repo := history.NewRepository(dbConn)
		s.store = repo
		deps.DB = dbConn
		deps.History = repo
		slog.Info("flush history enabled", "path", cfg.SQLitePath)
	}

	if cfg.MQTTBroker != "" {
		client := mqtt.NewClient(cfg, slog.Default())
		go func() {
			if err := client.Connect(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("mqtt connect failed", "error", err)
			}
		}()
		defer client.Disconnect()
		s.publisher = client
	}

	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			slog.Warn("redis unavailable (continuing without snapshot cache)", "error", err)
		} else {
			defer func() { _ = rc.Close() }()
			s.cache = rc
			deps.Cache = rc
		}
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var (
		srv      *http.Server
		httpErr  error
		httpDone = make(chan struct{})
	)
	if cfg.HTTPAddr != "" {
		srv = httpapi.NewServer(cfg.HTTPAddr, httpapi.NewMux(deps))
		go func() {
			defer close(httpDone)
			slog.Info("http listening", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				httpErr = err
				cancelRun()
			}
		}()
	} else {
		close(httpDone)
	}

	handler := ble.NewTiltHandler(registry)
	srcDone := handler.StartSource(runCtx, newSource(cfg))

	m := &monitor{
		registry: registry,
		sinks:    s,
		interval: cfg.FlushInterval,
		display:  cfg.DisplayEnabled,
		out:      out,
	}

	runErr := m.waitForDetection(runCtx, cfg.DisplayInterval, srcDone)
	if runErr == nil {
		m.start = time.Now()
		runErr = m.run(runCtx, cfg.DisplayInterval)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if registry.AnyDetected() {
		slog.Info("final flush")
		m.flush(shutdownCtx, time.Now())
	}

	if srv != nil {
		slog.Info("http shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	<-httpDone
	if httpErr != nil {
		return fmt.Errorf("http server: %w", httpErr)
	}

	return runErr
}

func newSource(cfg config.Config) ble.Source {
	if cfg.BLESource == config.SourceReplay {
		return ble.NewReplayer(ble.ReplayOptions{
			Path:     cfg.ReplayFile,
			Interval: cfg.ReplayInterval,
			Loop:     cfg.ReplayLoop,
		})
	}
	return ble.NewListener(ble.Options{Adapter: cfg.BLEAdapter})
}
