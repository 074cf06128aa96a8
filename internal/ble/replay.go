package ble

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"tiltmon/internal/tilt"
)

// ReplayOptions configures a Replayer.
type ReplayOptions struct {
	Path     string
	Interval time.Duration // pause between frames
	Loop     bool          // start over at end of file until ctx is done
}

// Replayer feeds advertisements from a capture file of hex HCI LE
// Advertising Report frames, one per line. A line may start with an RFC 3339
// timestamp; lines starting with # are comments. Frames without a timestamp,
// and every frame of a looping replay, are stamped with the current time.
type Replayer struct {
	opts ReplayOptions
	now  func() time.Time
}

func NewReplayer(opts ReplayOptions) *Replayer {
	return &Replayer{opts: opts, now: time.Now}
}

func (r *Replayer) Run(ctx context.Context, onAdv func(tilt.Advertisement)) error {
	slog.Info("ble: replay started", "file", r.opts.Path, "interval", r.opts.Interval, "loop", r.opts.Loop)
	for {
		f, err := os.Open(r.opts.Path)
		if err != nil {
			return fmt.Errorf("replay open: %w", err)
		}
		err = r.replay(ctx, f, r.opts.Loop, onAdv)
		_ = f.Close()
		if ctx.Err() != nil {
			slog.Info("ble: replay stopped (context canceled)")
			return nil
		}
		if err != nil {
			return err
		}
		if !r.opts.Loop {
			slog.Info("ble: replay finished", "file", r.opts.Path)
			return nil
		}
	}
}

func (r *Replayer) replay(ctx context.Context, src io.Reader, live bool, onAdv func(tilt.Advertisement)) error {
	sc := bufio.NewScanner(src)
	line := 0
	for sc.Scan() {
		line++
		at, frame, ok, err := parseCaptureLine(sc.Text())
		if err != nil {
			slog.Warn("ble: skip malformed capture line", "file", r.opts.Path, "line", line, "error", err)
			continue
		}
		if !ok {
			continue
		}
		if live || at.IsZero() {
			at = r.now()
		}

		advs, err := ParseHCIReport(frame, at)
		if err != nil {
			slog.Warn("ble: skip undecodable hci frame", "file", r.opts.Path, "line", line, "error", err)
			continue
		}
		for _, adv := range advs {
			if onAdv != nil {
				onAdv(adv)
			}
		}

		if r.opts.Interval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.opts.Interval):
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("replay read: %w", err)
	}
	return nil
}

// parseCaptureLine returns ok=false for blank and comment lines.
func parseCaptureLine(s string) (at time.Time, frame []byte, ok bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "#") {
		return time.Time{}, nil, false, nil
	}
	if first, rest, found := strings.Cut(s, " "); found {
		if t, perr := time.Parse(time.RFC3339Nano, first); perr == nil {
			at, s = t, rest
		}
	}
	frame, err = hex.DecodeString(strings.Join(strings.Fields(s), ""))
	if err != nil {
		return time.Time{}, nil, false, fmt.Errorf("hex: %w", err)
	}
	return at, frame, true, nil
}
