// Package tracker keeps the filtered state of every Tilt in range and
// persists it periodically.
package tracker

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tiltmon/internal/filter"
	"tiltmon/internal/tilt"
)

// Scale divisors per metric.
const (
	temperatureScale = 1
	gravityScale     = 1000
	txPowerScale     = 1
	signalScale      = 1
)

// LogWriter appends lines to a device log.
type LogWriter interface {
	Append(line string) error
}

// LogOpener opens (creating with LogHeader if needed) the log at path.
type LogOpener func(path string) (LogWriter, error)

// Tracker holds the four metric filters of one device.
type Tracker struct {
	dir  string
	open LogOpener

	mu          sync.Mutex
	detected    bool
	id          int
	label       string
	labelled    bool
	path        string
	firstSeen   time.Time
	temperature *filter.Filter
	gravity     *filter.Filter
	txPower     *filter.Filter
	signal      *filter.Filter

	flushMu sync.Mutex
	log     LogWriter
}

// New returns a tracker that has seen no readings. Its log will live in dir.
func New(dir string, open LogOpener) *Tracker {
	return &Tracker{
		dir:         dir,
		open:        open,
		temperature: filter.New(temperatureScale),
		gravity:     filter.New(gravityScale),
		txPower:     filter.New(txPowerScale),
		signal:      filter.New(signalScale),
	}
}

// Update feeds a reading into the filters. The first reading fixes the
// identity and the log path of the tracker. Update does no I/O.
func (t *Tracker) Update(r tilt.Reading) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.detected {
		t.detected = true
		t.id = r.DeviceID
		t.firstSeen = r.Timestamp
		t.label, t.labelled = LabelFor(r.DeviceID)
		if t.labelled {
			t.path = filepath.Join(t.dir, LogFileName(t.label))
		}
	}

	t.temperature.Write(r.Timestamp, r.Temperature)
	t.gravity.Write(r.Timestamp, r.Gravity)
	t.txPower.Write(r.Timestamp, r.TxPower)
	t.signal.Write(r.Timestamp, r.RSSI)
}

// HasData reports whether the tracker has seen a reading.
func (t *Tracker) HasData() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.detected
}

// Label returns the colour label, false for unlabelled identities or before
// the first reading.
func (t *Tracker) Label() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.label, t.labelled
}

// Path returns the log path, empty for unlabelled trackers.
func (t *Tracker) Path() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.path
}

// Render returns the console block for the device, or "" before the first
// reading and for unlabelled identities.
func (t *Tracker) Render(now time.Time) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.detected || !t.labelled {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", t.label, t.temperature.Statistics(now))
	fmt.Fprintf(&b, "  Temperature: %s\n", t.temperature.Summary())
	fmt.Fprintf(&b, "  Gravity    : %s\n", t.gravity.Summary())
	fmt.Fprintf(&b, "  TxPower    : %s\n", t.txPower.Summary())
	fmt.Fprintf(&b, "  Signal     : %s\n", t.signal.Summary())
	return b.String()
}

// Snapshot returns the filtered state at now. ok is false before the first
// reading.
func (t *Tracker) Snapshot(now time.Time) (s Snapshot, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.detected {
		return Snapshot{}, false
	}
	return t.snapshotLocked(now), true
}

func (t *Tracker) snapshotLocked(now time.Time) Snapshot {
	lastSeen, _ := t.temperature.Updated()
	return Snapshot{
		DeviceID:    t.id,
		Label:       t.label,
		UUID:        tilt.DeviceUUID(t.id).String(),
		Timestamp:   now,
		FirstSeen:   t.firstSeen,
		LastSeen:    lastSeen,
		Samples:     t.temperature.Count(),
		Temperature: t.temperature.Get(),
		Gravity:     t.gravity.Get(),
		TxPower:     t.txPower.Get(),
		Signal:      t.signal.Get(),
	}
}

// Flush appends the filtered state at now to the device log and restarts the
// four filter windows. flushed is false when there was nothing to write:
// before the first reading and for unlabelled identities.
//
// The filters are only reset once the row is written, so a failed flush keeps
// the window for the next attempt.
func (t *Tracker) Flush(now time.Time) (s Snapshot, flushed bool, err error) {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	t.mu.Lock()
	if !t.detected || !t.labelled {
		t.mu.Unlock()
		return Snapshot{}, false, nil
	}
	s = t.snapshotLocked(now)
	path := t.path
	t.mu.Unlock()

	if err := t.openLocked(path); err != nil {
		return s, false, err
	}
	if err := t.log.Append(FormatRow(s)); err != nil {
		// reopen on the next flush
		t.log = nil
		return s, false, fmt.Errorf("append %s: %w", path, err)
	}

	t.mu.Lock()
	t.temperature.Reset()
	t.gravity.Reset()
	t.txPower.Reset()
	t.signal.Reset()
	t.mu.Unlock()

	return s, true, nil
}

// OpenLog creates the device log with its header if it is not open yet. It
// is a no-op before the first reading and for unlabelled identities. Flush
// opens the log itself when OpenLog was never called or failed.
func (t *Tracker) OpenLog() error {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	t.mu.Lock()
	path := t.path
	t.mu.Unlock()
	if path == "" {
		return nil
	}
	return t.openLocked(path)
}

// openLocked requires flushMu.
func (t *Tracker) openLocked(path string) error {
	if t.log != nil {
		return nil
	}
	w, err := t.open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	t.log = w
	return nil
}
