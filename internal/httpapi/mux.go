// Package httpapi serves live device state, flush history and health.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tiltmon/internal/history"
	"tiltmon/internal/tracker"
)

// DeviceSource provides the live filtered state of every detected device.
type DeviceSource interface {
	Snapshots(now time.Time) []tracker.Snapshot
}

// LatestCache returns the most recently flushed snapshot of a device.
type LatestCache interface {
	GetLatest(ctx context.Context, label string) (tracker.Snapshot, error)
}

// Deps are the optional backends of the API. A nil DB, History or Cache
// disables the routes that need it.
type Deps struct {
	DB      *sql.DB
	Devices DeviceSource
	History history.Repository
	Cache   LatestCache
	Now     func() time.Time
}

func NewMux(d Deps) *http.ServeMux {
	if d.Now == nil {
		d.Now = time.Now
	}
	mux := http.NewServeMux()
	registerHealthcheck(mux, d.DB)
	registerDevices(mux, d)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}
