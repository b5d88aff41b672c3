package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/client"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/models"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/router"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/common"
)

// Outcome describes what happened to a mutation.
type Outcome struct {
	// Queued is set when the request was captured for later replay.
	Queued   bool
	ActionID string

	// Version is the server version after an accepted write.
	Version int

	// Conflict is set when the server rejected the write as stale.
	Conflict *models.Conflict
}

// send issues a mutation through the router. A negative ifMatch sends the
// request unconditionally.
func (a *App) send(ctx context.Context, method, path string, ifMatch int, body any) (Outcome, error) {
	target, err := a.API.Resolve(path)
	if err != nil {
		return Outcome{}, err
	}

	var payload []byte
	if body != nil {
		if payload, err = json.Marshal(body); err != nil {
			return Outcome{}, fmt.Errorf("encode request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
	if err != nil {
		return Outcome{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ifMatch >= 0 {
		req.Header.Set("If-Match", client.FormatETag(ifMatch))
	}

	resp, err := a.HTTP.Do(req)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	if id, ok := router.IsQueued(resp); ok {
		resp.Body.Close()
		return Outcome{Queued: true, ActionID: id}, nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}

	if err := client.CheckStatus(resp.StatusCode, data); err != nil {
		if method == http.MethodDelete && errors.Is(err, common.ErrNotFound) {
			return Outcome{}, nil
		}
		var ce *client.ConflictError
		if !errors.As(err, &ce) {
			return Outcome{}, err
		}
		c, derr := a.detect(ctx, req, ifMatch, payload, ce)
		if derr != nil {
			return Outcome{}, derr
		}
		return Outcome{Conflict: &c}, nil
	}
	return Outcome{Version: client.ParseETag(resp.Header.Get("ETag"))}, nil
}

// detect hands a conflict met while online to the resolver, exactly as if
// it had come from a replay.
func (a *App) detect(ctx context.Context, req *http.Request, ifMatch int, payload []byte, ce *client.ConflictError) (models.Conflict, error) {
	op, _ := models.OperationForMethod(req.Method)
	resourceType, resourceID := router.ResourceOf(req.URL.Path)

	header := req.Header.Clone()
	header.Del(common.AuthorizationHeaderName)
	action := models.QueuedAction{
		ID:           a.ids.New(),
		Operation:    op,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		BaseVersion:  max(ifMatch, 0),
		Request:      models.CapturedRequest{Method: req.Method, URL: req.URL.String(), Header: header, Body: payload},
		QueuedAt:     a.clock.Now().UTC(),
	}
	if len(payload) > 0 {
		action.Payload = payload
	}
	return a.Resolver.Detect(ctx, action, ce)
}

// RefreshPNR fetches the server copy of pnr through the router, so a cached
// copy answers while the server is unreachable, and stores it locally. A
// record with unsynced local edits is returned as is.
func (a *App) RefreshPNR(ctx context.Context, pnr string) (models.PNRRecord, error) {
	pnr, err := common.NormalizePNR(pnr)
	if err != nil {
		return models.PNRRecord{}, err
	}
	v, err := a.Reads.FetchPNR(ctx, pnr)
	if err != nil {
		return models.PNRRecord{}, err
	}
	if rec, ok := a.PNRs.GetPNR(ctx, pnr); ok && a.unsynced(ctx, common.ResourcePNR, pnr) {
		return rec, nil
	}
	data, err := json.Marshal(v.Record)
	if err != nil {
		return models.PNRRecord{}, err
	}
	if err := a.PNRs.Apply(ctx, pnr, data, v.Version); err != nil {
		return models.PNRRecord{}, err
	}
	rec, _ := a.PNRs.GetPNR(ctx, pnr)
	return rec, nil
}

// RefreshPreferences fetches the server preferences through the router and
// stores them locally, unless the server has none or local edits are still
// unsynced.
func (a *App) RefreshPreferences(ctx context.Context) (models.Preferences, error) {
	v, err := a.Reads.FetchPreferences(ctx)
	if err != nil {
		return models.Preferences{}, err
	}
	if v.Version == 0 || a.unsynced(ctx, common.ResourcePreferences, common.ResourcePreferences) {
		return a.Preferences.Get(ctx), nil
	}
	data, err := json.Marshal(v.Preferences)
	if err != nil {
		return models.Preferences{}, err
	}
	if err := a.Preferences.Apply(ctx, common.ResourcePreferences, data, v.Version); err != nil {
		return models.Preferences{}, err
	}
	return a.Preferences.Get(ctx), nil
}

func (a *App) unsynced(ctx context.Context, resourceType, resourceID string) bool {
	return a.Queue.HasPendingFor(ctx, resourceType+"/"+resourceID) ||
		a.Resolver.PendingFor(ctx, resourceType, resourceID)
}

// TrackPNR starts tracking pnr. The server copy is used when reachable;
// otherwise a local record is created and its creation queued.
func (a *App) TrackPNR(ctx context.Context, pnr string) (models.PNRRecord, Outcome, error) {
	pnr, err := common.NormalizePNR(pnr)
	if err != nil {
		return models.PNRRecord{}, Outcome{}, err
	}

	if rec, ok := a.PNRs.GetPNR(ctx, pnr); ok && !a.Watcher.Online() {
		return rec, Outcome{Version: a.PNRs.Version(ctx, pnr)}, nil
	}

	if a.Watcher.Online() {
		rec, err := a.RefreshPNR(ctx, pnr)
		if err == nil {
			return rec, Outcome{Version: a.PNRs.Version(ctx, pnr)}, nil
		}
		if !errors.Is(err, common.ErrNotFound) && !errors.Is(err, common.ErrUnavailable) {
			return models.PNRRecord{}, Outcome{}, err
		}
	}

	if !a.PNRs.StorePNR(ctx, pnr, models.PNRRecord{}) {
		return models.PNRRecord{}, Outcome{}, fmt.Errorf("track %s: %w", pnr, common.ErrWriteFailed)
	}
	rec, _ := a.PNRs.GetPNR(ctx, pnr)

	out, err := a.send(ctx, http.MethodPost, client.PNRPath(pnr), -1, rec)
	if err != nil {
		return rec, out, err
	}
	return rec, out, a.commitPNR(ctx, pnr, rec, out)
}

// UpdatePNR applies edit to the local record and sends the result,
// conditional on the version the edit was based on.
func (a *App) UpdatePNR(ctx context.Context, pnr string, edit func(*models.PNRRecord)) (models.PNRRecord, Outcome, error) {
	pnr, err := common.NormalizePNR(pnr)
	if err != nil {
		return models.PNRRecord{}, Outcome{}, err
	}
	rec, ok := a.PNRs.GetPNR(ctx, pnr)
	if !ok {
		return models.PNRRecord{}, Outcome{}, fmt.Errorf("pnr %s: %w", pnr, common.ErrNotFound)
	}
	base := a.PNRs.Version(ctx, pnr)

	edit(&rec)
	if !a.PNRs.StorePNR(ctx, pnr, rec) {
		return models.PNRRecord{}, Outcome{}, fmt.Errorf("update %s: %w", pnr, common.ErrWriteFailed)
	}
	rec, _ = a.PNRs.GetPNR(ctx, pnr)

	out, err := a.send(ctx, http.MethodPut, client.PNRPath(pnr), base, rec)
	if err != nil {
		return rec, out, err
	}
	return rec, out, a.commitPNR(ctx, pnr, rec, out)
}

func (a *App) commitPNR(ctx context.Context, pnr string, rec models.PNRRecord, out Outcome) error {
	if out.Queued || out.Conflict != nil || out.Version == 0 {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return a.PNRs.Apply(ctx, pnr, data, out.Version)
}

// RemovePNR stops tracking pnr locally and on the server.
func (a *App) RemovePNR(ctx context.Context, pnr string) (Outcome, error) {
	pnr, err := common.NormalizePNR(pnr)
	if err != nil {
		return Outcome{}, err
	}
	base := a.PNRs.Version(ctx, pnr)
	if base == 0 {
		base = -1
	}
	a.PNRs.RemovePNR(ctx, pnr)
	return a.send(ctx, http.MethodDelete, client.PNRPath(pnr), base, nil)
}

// SetPreference writes one preference locally and sends the whole record.
func (a *App) SetPreference(ctx context.Context, name string, value any) (Outcome, error) {
	base := a.Preferences.Version(ctx)
	if !a.Preferences.UpdatePreference(ctx, name, value) {
		return Outcome{}, fmt.Errorf("set preference %s: %w", name, common.ErrWriteFailed)
	}
	prefs := a.Preferences.Get(ctx)

	out, err := a.send(ctx, http.MethodPut, client.PreferencesPath, base, prefs)
	if err != nil || out.Queued || out.Conflict != nil || out.Version == 0 {
		return out, err
	}
	data, err := json.Marshal(prefs)
	if err != nil {
		return out, err
	}
	return out, a.Preferences.Apply(ctx, common.ResourcePreferences, data, out.Version)
}
