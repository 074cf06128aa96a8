// Package metrics exposes the gateway's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tiltmon/internal/tracker"
)

var (
	// AdvertisementsTotal counts advertisements delivered by the radio source
	AdvertisementsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tilt_advertisements_total",
			Help: "Total number of BLE advertisements received",
		},
	)

	// RejectionsTotal counts advertisements that did not decode as a Tilt
	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tilt_rejections_total",
			Help: "Total number of advertisements rejected by the decoder",
		},
		[]string{"reason"},
	)

	// ReadingsTotal counts decoded readings per device identity
	ReadingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tilt_readings_total",
			Help: "Total number of decoded Tilt readings",
		},
		[]string{"device_id"},
	)

	// DevicesDetected is the number of trackers in the registry
	DevicesDetected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tilt_devices_detected",
			Help: "Number of Tilt devices seen since start",
		},
	)

	// FlushesTotal counts device log flushes by outcome
	FlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tilt_flushes_total",
			Help: "Total number of device log flushes",
		},
		[]string{"status"},
	)

	// FlushDuration is the wall time of one FlushAll pass
	FlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tilt_flush_duration_seconds",
			Help:    "Duration of a flush pass over all devices",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// SinkOperations counts snapshot deliveries to the optional sinks
	SinkOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tilt_sink_operations_total",
			Help: "Total number of snapshot deliveries per sink",
		},
		[]string{"sink", "status"},
	)

	// FilteredValue is the latest flushed filtered value per device and metric
	FilteredValue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tilt_filtered_value",
			Help: "Filtered value at the last flush",
		},
		[]string{"label", "metric"},
	)
)

// ObserveSnapshot records the filtered values of a flushed snapshot.
func ObserveSnapshot(s tracker.Snapshot) {
	FilteredValue.WithLabelValues(s.Label, "temperature").Set(s.Temperature)
	FilteredValue.WithLabelValues(s.Label, "gravity").Set(s.Gravity)
	FilteredValue.WithLabelValues(s.Label, "tx_power").Set(s.TxPower)
	FilteredValue.WithLabelValues(s.Label, "signal").Set(s.Signal)
}

// Status returns the status label for an operation outcome.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
