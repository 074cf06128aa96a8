// Package ble delivers BLE advertisements to the Tilt decoder, either live
// from a BlueZ adapter or replayed from an HCI capture.
package ble

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"tinygo.org/x/bluetooth"

	"tiltmon/internal/tilt"
)

// Source produces advertisements until ctx is done.
type Source interface {
	Run(ctx context.Context, onAdv func(tilt.Advertisement)) error
}

type Options struct {
	Adapter string // "hci0" by default
}

// Listener wraps BlueZ scanning with context cancellation.
type Listener struct {
	adapter *bluetooth.Adapter
	opts    Options
}

func NewListener(opts Options) *Listener {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}

	return &Listener{
		adapter: bluetooth.NewAdapter(opts.Adapter),
		opts:    opts,
	}
}

func (l *Listener) Run(ctx context.Context, onAdv func(tilt.Advertisement)) error {
	slog.Info("ble: enabling adapter", "adapter", l.opts.Adapter)
	if err := l.adapter.Enable(); err != nil {
		return fmt.Errorf("ble enable (%s): %w", l.opts.Adapter, err)
	}
	slog.Info("ble: adapter enabled", "adapter", l.opts.Adapter)

	go func() {
		<-ctx.Done()
		_ = l.adapter.StopScan()
	}()

	slog.Info("ble: scanning started", "company", fmt.Sprintf("0x%04X", tilt.AppleCompanyID))

	// adapter.Scan blocks until StopScan() or error.
	err := l.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		if onAdv != nil {
			onAdv(fromScanResult(r, time.Now()))
		}
	})

	// If ctx canceled, treat as clean shutdown.
	if ctx.Err() != nil {
		slog.Info("ble: scanning stopped (context canceled)")
		return nil
	}

	if err != nil {
		return fmt.Errorf("ble scan: %w", err)
	}

	slog.Info("ble: scanning stopped")
	return nil
}

// fromScanResult rebuilds the advertisement BlueZ reported. BlueZ hides the
// PDU type and the flags structure, so beacons are reported the way they are
// broadcast: non-connectable, flags first, then one section per
// manufacturer element with its company id restored.
func fromScanResult(r bluetooth.ScanResult, at time.Time) tilt.Advertisement {
	return tilt.Advertisement{
		Address:   r.Address.String(),
		// the kind and section-count rungs only reject on the HCI/replay path
		Kind:      tilt.KindNonConnectableUndirected,
		RSSI:      r.RSSI,
		Timestamp: at,
		Sections:  manufacturerSections(r.ManufacturerData()),
	}
}

func manufacturerSections(elems []bluetooth.ManufacturerDataElement) []tilt.Section {
	sections := []tilt.Section{{Type: tilt.SectionFlags, Data: []byte{0x06}}}
	for _, md := range elems {
		data := make([]byte, 2, 2+len(md.Data))
		binary.LittleEndian.PutUint16(data, md.CompanyID)
		sections = append(sections, tilt.Section{
			Type: tilt.SectionManufacturerData,
			Data: append(data, md.Data...),
		})
	}
	return sections
}
