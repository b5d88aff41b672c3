package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

type errorBody struct {
	Error string `json:"error"`
}

type conflictBody struct {
	Error          string          `json:"error"`
	CurrentVersion int             `json:"currentVersion"`
	Current        json.RawMessage `json:"current"`
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, status int, code string) {
	writeJSONStatus(w, status, errorBody{Error: code})
}

func setETag(w http.ResponseWriter, version int) {
	w.Header().Set("ETag", `"`+strconv.Itoa(version)+`"`)
}

// parseIfMatch returns the version named by an If-Match header, or -1 when
// the header is absent or "*".
func parseIfMatch(r *http.Request) (int, bool) {
	tag := strings.TrimSpace(r.Header.Get("If-Match"))
	if tag == "" || tag == "*" {
		return -1, true
	}
	tag = strings.Trim(strings.TrimPrefix(tag, "W/"), `"`)
	v, err := strconv.Atoi(tag)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
