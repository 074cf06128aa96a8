package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"

	"tiltmon/internal/config"
)

// New builds the process logger writing to w. Development builds get
// colourised console output; releases log JSON.
func New(cfg config.Config, version string, appName string, w io.Writer) *slog.Logger {
	if version == "dev" {
		h := tint.NewHandler(w, &tint.Options{
			Level:      cfg.LogLevel,
			AddSource:  true,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h).With("app", appName)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})
	return slog.New(h).With(
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
	)
}
