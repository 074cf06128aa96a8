package tracker

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tiltmon/internal/tilt"
)

// ClearScreen homes the cursor and clears an ANSI terminal.
const ClearScreen = "\033[H\033[2J"

// Registry owns one lazily created Tracker per device identity.
type Registry struct {
	dir  string
	open LogOpener

	mu    sync.RWMutex
	slots [tilt.MaxDevices]*Tracker
}

// NewRegistry returns an empty registry whose trackers log into dir.
func NewRegistry(dir string, open LogOpener) *Registry {
	return &Registry{dir: dir, open: open}
}

// Route forwards r to the tracker for its identity, creating the tracker on
// first sight. created reports whether this call created it.
func (r *Registry) Route(rd tilt.Reading) (created bool, err error) {
	if rd.DeviceID < 0 || rd.DeviceID >= len(r.slots) {
		return false, fmt.Errorf("%w: %d", tilt.ErrIdentityOutOfRange, rd.DeviceID)
	}

	r.mu.RLock()
	t := r.slots[rd.DeviceID]
	r.mu.RUnlock()

	if t == nil {
		r.mu.Lock()
		if t = r.slots[rd.DeviceID]; t == nil {
			t = New(r.dir, r.open)
			r.slots[rd.DeviceID] = t
			created = true
		}
		r.mu.Unlock()
	}

	t.Update(rd)
	return created, nil
}

// AnyDetected reports whether any device has been routed.
func (r *Registry) AnyDetected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.slots {
		if t != nil {
			return true
		}
	}
	return false
}

// Trackers returns the existing trackers in identity order.
func (r *Registry) Trackers() []*Tracker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tracker, 0, len(r.slots))
	for _, t := range r.slots {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// Tracker returns the tracker for id, if one exists.
func (r *Registry) Tracker(id int) (*Tracker, bool) {
	if id < 0 || id >= len(r.slots) {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t := r.slots[id]
	return t, t != nil
}

// RenderAll returns the console screen: a clear sequence followed by the
// block of every labelled device in identity order.
func (r *Registry) RenderAll(now time.Time) string {
	var b strings.Builder
	b.WriteString(ClearScreen)
	for _, t := range r.Trackers() {
		b.WriteString(t.Render(now))
	}
	return b.String()
}

// FlushAll flushes every tracker. Every tracker is attempted; the snapshots
// of the successful flushes are returned along with the joined errors of the
// failed ones.
func (r *Registry) FlushAll(now time.Time) ([]Snapshot, error) {
	var (
		out  []Snapshot
		errs []error
	)
	for _, t := range r.Trackers() {
		s, ok, err := t.Flush(now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			out = append(out, s)
		}
	}
	return out, errors.Join(errs...)
}

// OpenLogs opens the log of every labelled tracker that has none yet.
func (r *Registry) OpenLogs() error {
	var errs []error
	for _, t := range r.Trackers() {
		if err := t.OpenLog(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Snapshots returns the current filtered state of every detected device in
// identity order, without touching the filters.
func (r *Registry) Snapshots(now time.Time) []Snapshot {
	var out []Snapshot
	for _, t := range r.Trackers() {
		if s, ok := t.Snapshot(now); ok {
			out = append(out, s)
		}
	}
	return out
}
