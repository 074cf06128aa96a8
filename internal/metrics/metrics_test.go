package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"tiltmon/internal/tracker"
)

func TestObserveSnapshot(t *testing.T) {
	ObserveSnapshot(tracker.Snapshot{Label: "Blue", Temperature: 66.5, Gravity: 1.012, TxPower: -59, Signal: -70})

	tests := []struct {
		metric string
		want   float64
	}{
		{"temperature", 66.5},
		{"gravity", 1.012},
		{"tx_power", -59},
		{"signal", -70},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(FilteredValue.WithLabelValues("Blue", tt.metric)); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.metric, got, tt.want)
		}
	}
}

func TestStatus(t *testing.T) {
	if got := Status(nil); got != "ok" {
		t.Errorf("Status(nil) = %q", got)
	}
	if got := Status(errors.New("x")); got != "error" {
		t.Errorf("Status(err) = %q", got)
	}
}
