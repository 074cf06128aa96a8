package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"tiltmon/internal/metrics"
	"tiltmon/internal/mqtt"
	"tiltmon/internal/tracker"
)

// A device that has not been heard for this long is reported unhealthy.
const staleAfter = 5 * time.Minute

// SnapshotStore persists flushed snapshots.
type SnapshotStore interface {
	InsertSnapshot(ctx context.Context, s tracker.Snapshot) error
}

// Publisher forwards flushed snapshots to the broker.
type Publisher interface {
	PublishSnapshot(s tracker.Snapshot) error
	PublishHealth(h mqtt.DeviceHealth) error
}

// SnapshotCache keeps the latest flushed snapshot per device.
type SnapshotCache interface {
	StoreSnapshot(ctx context.Context, s tracker.Snapshot) error
}

// sinks receive every successfully flushed snapshot. Nil sinks are skipped.
type sinks struct {
	store     SnapshotStore
	publisher Publisher
	cache     SnapshotCache
}

// monitor drives the console display and the periodic flush.
type monitor struct {
	registry *tracker.Registry
	sinks    sinks
	interval time.Duration
	display  bool
	out      io.Writer

	// start of the current flush interval
	start time.Time
	// trackers whose logs openLogs has already attempted
	known int
}

// openLogs creates the logs of newly detected devices so their headers
// exist before the first flush. It runs on the monitor goroutine, off the
// radio callback.
func (m *monitor) openLogs() {
	n := len(m.registry.Trackers())
	if n == m.known {
		return
	}
	m.known = n
	if err := m.registry.OpenLogs(); err != nil {
		slog.Warn("open device log failed; retrying at flush", "error", err)
	}
}

// waitForDetection blocks until the registry holds a tracker, polling every
// poll. It fails when ctx ends or the source stops with an error first.
func (m *monitor) waitForDetection(ctx context.Context, poll time.Duration, srcDone <-chan error) error {
	slog.Info("Detecting Tilt(s)")
	if m.display {
		fmt.Fprint(m.out, "Detecting Tilt(s)")
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for !m.registry.AnyDetected() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-srcDone:
			if err != nil {
				return fmt.Errorf("ble source: %w", err)
			}
			slog.Warn("ble source finished before any tilt was detected")
			srcDone = nil
		case <-ticker.C:
		}
	}
	m.openLogs()
	return nil
}

// tick redraws the display and flushes once the interval has elapsed. The
// interval start advances by whole intervals so flushes do not drift.
func (m *monitor) tick(ctx context.Context, now time.Time) {
	m.openLogs()
	elapsed := now.Sub(m.start)
	if m.display {
		remaining := int((m.interval - elapsed) / time.Second)
		fmt.Fprint(m.out, m.registry.RenderAll(now))
		fmt.Fprintf(m.out, "Next Emit in %d Seconds.\n", remaining)
	}
	if elapsed > m.interval {
		m.start = m.start.Add(m.interval)
		m.flush(ctx, now)
	}
}

func (m *monitor) run(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			m.tick(ctx, now)
		}
	}
}

// flush appends one row per device log and fans the snapshots out to the
// sinks.
func (m *monitor) flush(ctx context.Context, now time.Time) {
	began := time.Now()
	snaps, err := m.registry.FlushAll(now)
	metrics.FlushDuration.Observe(time.Since(began).Seconds())
	metrics.FlushesTotal.WithLabelValues("ok").Add(float64(len(snaps)))
	if err != nil {
		metrics.FlushesTotal.WithLabelValues("error").Inc()
		slog.Error("flush failed; window kept for the next interval", "error", err)
	}
	slog.Info("flushed device logs", "devices", len(snaps))
	m.sinks.publishSnapshots(ctx, now, snaps)
}

func (s sinks) publishSnapshots(ctx context.Context, now time.Time, snaps []tracker.Snapshot) {
	for _, snap := range snaps {
		if snap.Label == "" {
			continue
		}
		metrics.ObserveSnapshot(snap)

		if s.store != nil {
			err := s.store.InsertSnapshot(ctx, snap)
			record("sqlite", snap.Label, err)
		}
		if s.publisher != nil {
			err := s.publisher.PublishSnapshot(snap)
			record("mqtt", snap.Label, err)
			err = s.publisher.PublishHealth(mqtt.DeviceHealth{
				Label:    snap.Label,
				LastSeen: snap.LastSeen,
				Healthy:  now.Sub(snap.LastSeen) < staleAfter,
			})
			record("mqtt", snap.Label, err)
		}
		if s.cache != nil {
			err := s.cache.StoreSnapshot(ctx, snap)
			record("redis", snap.Label, err)
		}
	}
}

func record(sink, label string, err error) {
	metrics.SinkOperations.WithLabelValues(sink, metrics.Status(err)).Inc()
	if err != nil {
		slog.Warn("sink delivery failed", "sink", sink, "label", label, "error", err)
	}
}
