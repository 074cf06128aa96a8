package ble

import (
	"context"
	"log/slog"
	"strconv"

	"tiltmon/internal/metrics"
	"tiltmon/internal/tilt"
	"tiltmon/internal/tracker"
	"tiltmon/internal/utils"
)

// Router accepts decoded readings.
type Router interface {
	Route(r tilt.Reading) (created bool, err error)
}

// TiltHandler decodes advertisements and routes Tilt readings. It runs on
// the source goroutine and performs no I/O besides logging.
type TiltHandler struct {
	router Router
}

// NewTiltHandler creates a new handler routing into router.
func NewTiltHandler(router Router) *TiltHandler {
	return &TiltHandler{router: router}
}

// HandleAdvertisement decodes adv and routes the reading. Rejections are
// expected for most traffic and only logged at debug level.
func (h *TiltHandler) HandleAdvertisement(adv tilt.Advertisement) {
	metrics.AdvertisementsTotal.Inc()

	r, err := tilt.Decode(adv)
	if err != nil {
		metrics.RejectionsTotal.WithLabelValues(tilt.Reason(err)).Inc()
		if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
			slog.Debug("ble: ignore advertisement",
				"addr", adv.Address,
				"kind", adv.Kind.String(),
				"rssi", adv.RSSI,
				"reason", tilt.Reason(err),
				"error", err,
				"mfg", manufacturerHex(adv),
			)
		}
		return
	}

	created, err := h.router.Route(r)
	if err != nil {
		metrics.RejectionsTotal.WithLabelValues(tilt.Reason(err)).Inc()
		slog.Debug("ble: reading not routed", "addr", adv.Address, "device_id", r.DeviceID, "error", err)
		return
	}
	metrics.ReadingsTotal.WithLabelValues(strconv.Itoa(r.DeviceID)).Inc()

	if created {
		metrics.DevicesDetected.Inc()
		label, ok := tracker.LabelFor(r.DeviceID)
		if !ok {
			label = "unlabelled"
		}
		slog.Info("ble: tilt detected",
			"addr", adv.Address,
			"device_id", r.DeviceID,
			"label", label,
			"T", r.Temperature,
			"SG", r.Gravity,
			"rssi", r.RSSI,
		)
	}
}

// StartSource runs src with this handler on its own goroutine. A source
// failure is logged and the gateway continues without BLE input.
func (h *TiltHandler) StartSource(ctx context.Context, src Source) <-chan error {
	done := make(chan error, 1)
	go func() {
		err := src.Run(ctx, h.HandleAdvertisement)
		if err != nil {
			slog.Warn("ble source stopped with error; gateway continues without BLE", "error", err)
		}
		done <- err
	}()
	return done
}

func manufacturerHex(adv tilt.Advertisement) string {
	for _, s := range adv.Sections {
		if id, ok := s.CompanyID(); ok {
			return utils.Hex4(id) + ":" + utils.BytesToHex(s.Data[2:])
		}
	}
	return ""
}
