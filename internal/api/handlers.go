package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/placepulse/internal/apperr"
	"github.com/sells-group/placepulse/internal/ledger"
	"github.com/sells-group/placepulse/internal/maintenance"
	"github.com/sells-group/placepulse/internal/model"
	"github.com/sells-group/placepulse/internal/resolver"
)

const maxListLimit = 1000

type handler struct {
	deps Deps
}

type userBody struct {
	UserID string `json:"user_id"`
}

type placeList struct {
	Tab    model.Tab     `json:"tab"`
	Count  int           `json:"count"`
	Places []model.Place `json:"places"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return eris.Wrapf(apperr.ErrInvalidInput, "api: request body: %v", err)
	}
	return nil
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) endorse(w http.ResponseWriter, r *http.Request) {
	var req ledger.EndorseRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	place, err := h.deps.Ledger.Endorse(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, place)
}

func (h *handler) downvote(w http.ResponseWriter, r *http.Request) {
	var body userBody
	if err := decode(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	place, err := h.deps.Ledger.Downvote(r.Context(), chi.URLParam(r, "id"), body.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, place)
}

func (h *handler) renew(w http.ResponseWriter, r *http.Request) {
	var body userBody
	if err := decode(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	place, err := h.deps.Ledger.Renew(r.Context(), chi.URLParam(r, "id"), body.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, place)
}

func (h *handler) unhide(w http.ResponseWriter, r *http.Request) {
	place, err := h.deps.Ledger.Unhide(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, place)
}

func (h *handler) getPlace(w http.ResponseWriter, r *http.Request) {
	place, err := h.deps.Ledger.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, place)
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	log, err := h.deps.Ledger.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (h *handler) listPlaces(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := ledger.ListOptions{Tab: model.TabAll}
	if s := q.Get("tab"); s != "" {
		opts.Tab = model.Tab(s)
	}
	if s := q.Get("bounds"); s != "" {
		b, err := ledger.ParseBounds(s)
		if err != nil {
			writeError(w, r, err)
			return
		}
		opts.Bounds = b
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 || n > maxListLimit {
			writeError(w, r, eris.Wrapf(apperr.ErrInvalidInput, "api: limit %q", s))
			return
		}
		opts.Limit = n
	}
	format := q.Get("format")
	if format != "" && format != "json" && format != "geojson" {
		writeError(w, r, eris.Wrapf(apperr.ErrInvalidInput, "api: format %q", format))
		return
	}

	list, err := h.deps.Ledger.ListByTab(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if format == "geojson" {
		body, err := featureCollection(list)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
		return
	}
	if list == nil {
		list = []model.Place{}
	}
	writeJSON(w, http.StatusOK, placeList{Tab: opts.Tab, Count: len(list), Places: list})
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.Ledger.DashboardStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) resolve(w http.ResponseWriter, r *http.Request) {
	if h.deps.Resolver == nil {
		writeError(w, r, eris.Wrap(apperr.ErrProviderUnavailable, "api: resolver not configured"))
		return
	}
	q := r.URL.Query()
	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(q.Get("lon"), 64)
	if latErr != nil || lonErr != nil {
		writeError(w, r, eris.Wrap(apperr.ErrInvalidInput, "api: lat and lon are required numbers"))
		return
	}
	res, err := h.deps.Resolver.Resolve(r.Context(), resolver.Request{Lat: lat, Lon: lon, Hint: q.Get("hint")})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) maintenance(w http.ResponseWriter, r *http.Request) {
	if h.deps.Sweep == nil {
		writeError(w, r, eris.Wrap(apperr.ErrStoreUnavailable, "api: maintenance not configured"))
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	report, err := h.deps.Sweep.Run(r.Context(), maintenance.RunOptions{Force: force})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
