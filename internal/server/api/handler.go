package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/common"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/logging"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/server/models"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/server/services"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// emptyPreferences is served when a user has never saved preferences.
var emptyPreferences = json.RawMessage(`{"values":{}}`)

type Handler struct {
	resources *services.ResourceService
	logger    logging.Logger
	jwtSecret []byte
}

func NewHandler(rs *services.ResourceService, l logging.Logger, secretKey string) *Handler {
	return &Handler{
		resources: rs,
		logger:    logging.OrNop(l).With("module", "http_api"),
		jwtSecret: []byte(secretKey),
	}
}

// Routes returns the full API, health check included.
func (h *Handler) Routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/pnr/{pnr}", h.getPNR)
	api.HandleFunc("POST /api/pnr/{pnr}", h.createPNR)
	api.HandleFunc("PUT /api/pnr/{pnr}", h.putPNR)
	api.HandleFunc("DELETE /api/pnr/{pnr}", h.deletePNR)
	api.HandleFunc("GET /api/preferences", h.getPreferences)
	api.HandleFunc("PUT /api/preferences", h.putPreferences)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "OK")
	})
	mux.Handle("/api/", h.accessTokenMiddleware(api))

	return h.loggingMiddleware(mux)
}

// pnrKey resolves the resource key of a /api/pnr/{pnr} request.
func (h *Handler) pnrKey(w http.ResponseWriter, r *http.Request) (models.ResourceKey, bool) {
	userID, _ := UserID(r.Context())
	id, err := common.NormalizePNR(r.PathValue("pnr"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid_pnr")
		return models.ResourceKey{}, false
	}
	return models.ResourceKey{UserID: userID, Type: common.ResourcePNR, ID: id}, true
}

func preferencesKey(r *http.Request) models.ResourceKey {
	userID, _ := UserID(r.Context())
	return models.ResourceKey{UserID: userID, Type: common.ResourcePreferences, ID: common.ResourcePreferences}
}

func (h *Handler) getPNR(w http.ResponseWriter, r *http.Request) {
	key, ok := h.pnrKey(w, r)
	if !ok {
		return
	}
	res, err := h.resources.Get(r.Context(), key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	setETag(w, res.Version)
	writeJSON(w, struct {
		Version int             `json:"version"`
		Record  json.RawMessage `json:"record"`
	}{res.Version, res.Data})
}

func (h *Handler) createPNR(w http.ResponseWriter, r *http.Request) {
	key, ok := h.pnrKey(w, r)
	if !ok {
		return
	}
	data, ok := readBody(w, r)
	if !ok {
		return
	}
	version, err := h.resources.Create(r.Context(), key, data)
	h.written(w, r, version, err)
}

func (h *Handler) putPNR(w http.ResponseWriter, r *http.Request) {
	key, ok := h.pnrKey(w, r)
	if !ok {
		return
	}
	h.put(w, r, key)
}

func (h *Handler) deletePNR(w http.ResponseWriter, r *http.Request) {
	key, ok := h.pnrKey(w, r)
	if !ok {
		return
	}
	ifMatch, ok := parseIfMatch(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid_if_match")
		return
	}
	if err := h.resources.Delete(r.Context(), key, ifMatch); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getPreferences(w http.ResponseWriter, r *http.Request) {
	res, err := h.resources.Get(r.Context(), preferencesKey(r))
	switch {
	case errors.Is(err, common.ErrNotFound):
		res = models.Resource{Data: emptyPreferences}
	case err != nil:
		h.fail(w, r, err)
		return
	}
	setETag(w, res.Version)
	writeJSON(w, struct {
		Version     int             `json:"version"`
		Preferences json.RawMessage `json:"preferences"`
	}{res.Version, res.Data})
}

func (h *Handler) putPreferences(w http.ResponseWriter, r *http.Request) {
	h.put(w, r, preferencesKey(r))
}

func (h *Handler) put(w http.ResponseWriter, r *http.Request, key models.ResourceKey) {
	ifMatch, ok := parseIfMatch(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid_if_match")
		return
	}
	data, ok := readBody(w, r)
	if !ok {
		return
	}
	version, err := h.resources.Put(r.Context(), key, data, ifMatch)
	h.written(w, r, version, err)
}

func (h *Handler) written(w http.ResponseWriter, r *http.Request, version int, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	setETag(w, version)
	writeJSON(w, struct {
		Version int `json:"version"`
	}{version})
}

// readBody reads a JSON object body, answering 400 on anything else.
func readBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		jsonError(w, http.StatusRequestEntityTooLarge, "body_too_large")
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid_json")
		return nil, false
	}
	return data, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ce *services.ConflictError
	switch {
	case errors.As(err, &ce):
		current := ce.Current.Data
		if len(current) == 0 {
			current = json.RawMessage("null")
		}
		setETag(w, ce.Current.Version)
		writeJSONStatus(w, http.StatusConflict, conflictBody{
			Error:          "version_conflict",
			CurrentVersion: ce.Current.Version,
			Current:        current,
		})
	case errors.Is(err, common.ErrNotFound):
		jsonError(w, http.StatusNotFound, "not_found")
	default:
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal")
	}
}
