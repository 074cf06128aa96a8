package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"tiltmon/internal/cache"
	"tiltmon/internal/tracker"
	"tiltmon/internal/utils"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

type devicesAPI struct {
	deps Deps
}

func registerDevices(mux *http.ServeMux, d Deps) {
	api := &devicesAPI{deps: d}
	mux.HandleFunc("GET /api/v1/devices", api.handleList)
	mux.HandleFunc("GET /api/v1/devices/{label}/history", api.handleHistory)
	mux.HandleFunc("GET /api/v1/devices/{label}/latest", api.handleLatest)
}

func (a *devicesAPI) handleList(w http.ResponseWriter, r *http.Request) {
	items := []tracker.Snapshot{}
	if a.deps.Devices != nil {
		items = append(items, a.deps.Devices.Snapshots(a.deps.Now())...)
	}
	utils.WriteJSON(w, http.StatusOK, items)
}

func (a *devicesAPI) handleHistory(w http.ResponseWriter, r *http.Request) {
	label, ok := canonicalLabel(w, r)
	if !ok {
		return
	}
	if a.deps.History == nil {
		utils.WriteError(w, http.StatusServiceUnavailable, "history storage is disabled")
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := a.deps.History.ListByLabel(r.Context(), label, limit)
	if err != nil {
		slog.Error("list flush history", "label", label, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"label": label,
		"limit": limit,
		"items": items,
	})
}

func (a *devicesAPI) handleLatest(w http.ResponseWriter, r *http.Request) {
	label, ok := canonicalLabel(w, r)
	if !ok {
		return
	}
	if a.deps.Cache == nil {
		utils.WriteError(w, http.StatusServiceUnavailable, "snapshot cache is disabled")
		return
	}

	s, err := a.deps.Cache.GetLatest(r.Context(), label)
	switch {
	case errors.Is(err, cache.ErrNotFound):
		utils.WriteError(w, http.StatusNotFound, "no snapshot flushed for "+label)
	case err != nil:
		slog.Error("read cached snapshot", "label", label, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to read snapshot cache")
	default:
		utils.WriteJSON(w, http.StatusOK, s)
	}
}

// canonicalLabel resolves the {label} path value case-insensitively and
// writes a 404 for unknown colours.
func canonicalLabel(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := r.PathValue("label")
	id, ok := tracker.IdentityFor(raw)
	if !ok {
		utils.WriteError(w, http.StatusNotFound, "unknown device label "+strconv.Quote(raw))
		return "", false
	}
	label, _ := tracker.LabelFor(id)
	return label, true
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid 'limit' (expected integer)")
	}
	if n <= 0 {
		return 0, errors.New("'limit' must be > 0")
	}
	if n > maxHistoryLimit {
		return 0, errors.New("'limit' must be <= 1000")
	}
	return n, nil
}
