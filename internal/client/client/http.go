package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/models"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/common"
)

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 4 << 20

// ErrBodyTooLarge is returned when a response that must be decoded exceeds
// maxBodySize.
var ErrBodyTooLarge = errors.New("response body too large")

// HTTPClient implements Client over the sync HTTP API.
type HTTPClient struct {
	baseURL *url.URL
	http    *http.Client
}

// NewHTTPClient returns a client for the API rooted at baseURL. httpClient
// may be nil; its transport should carry authentication (see AuthTransport).
func NewHTTPClient(baseURL string, httpClient *http.Client) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("server url %q must be absolute", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{baseURL: u, http: httpClient}, nil
}

// BaseURL returns the API root.
func (c *HTTPClient) BaseURL() string { return c.baseURL.String() }

// Resolve turns a path or absolute URL into an absolute URL on the server.
func (c *HTTPClient) Resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return c.baseURL.ResolveReference(u).String(), nil
}

func (c *HTTPClient) Send(ctx context.Context, captured models.CapturedRequest) (Result, error) {
	target, err := c.Resolve(captured.URL)
	if err != nil {
		return Result{}, fmt.Errorf("%w: bad url %q: %v", common.ErrRejected, captured.URL, err)
	}

	var body io.Reader
	if len(captured.Body) > 0 {
		body = bytes.NewReader(captured.Body)
	}
	req, err := http.NewRequestWithContext(ctx, captured.Method, target, body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", common.ErrRejected, err)
	}
	for k, vs := range captured.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	res, err := c.do(req)
	if err != nil {
		// an already deleted resource is what the delete wanted
		if captured.Method == http.MethodDelete && errors.Is(err, common.ErrNotFound) {
			return Result{Status: http.StatusNotFound}, nil
		}
		return Result{}, err
	}
	return res, nil
}

func (c *HTTPClient) do(req *http.Request) (Result, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, mapTransportError(req.Context(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return Result{}, mapTransportError(req.Context(), err)
	}
	truncated := len(data) > maxBodySize
	if truncated {
		data = nil
	}

	if err := mapStatus(resp.StatusCode, data); err != nil {
		return Result{}, err
	}
	return Result{
		Status:    resp.StatusCode,
		Version:   ParseETag(resp.Header.Get("ETag")),
		Body:      data,
		Truncated: truncated,
	}, nil
}

func mapTransportError(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}
	return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
}

// CheckStatus classifies a response obtained outside Send the same way Send
// does: nil for success, otherwise an error matching the common sentinels or
// a *ConflictError.
func CheckStatus(code int, body []byte) error { return mapStatus(code, body) }

// mapStatus classifies an HTTP status the way the sync layer needs it.
func mapStatus(code int, body []byte) error {
	switch {
	case code < 400:
		return nil
	case code == http.StatusConflict:
		var cb conflictBody
		if json.Unmarshal(body, &cb) == nil && cb.Error == VersionConflictCode {
			return &ConflictError{ServerVersion: cb.CurrentVersion, ServerData: cb.Current}
		}
		return fmt.Errorf("%w: status %d", common.ErrRejected, code)
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return fmt.Errorf("%w: %w", common.ErrRejected, common.ErrUnauthorized)
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %w", common.ErrRejected, common.ErrNotFound)
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return fmt.Errorf("%w: status %d", common.ErrUnavailable, code)
	default:
		return fmt.Errorf("%w: status %d: %s", common.ErrRejected, code, strings.TrimSpace(string(body)))
	}
}

// ParseETag extracts the integer version from an ETag such as `"3"` or
// `W/"3"`. It returns 0 when the tag is not a version.
func ParseETag(tag string) int {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "W/")
	v, err := strconv.Atoi(strings.Trim(tag, `"`))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// FormatETag renders a version as a strong ETag.
func FormatETag(version int) string {
	return `"` + strconv.Itoa(version) + `"`
}

func (c *HTTPClient) get(ctx context.Context, path string, dst any) error {
	target, err := c.Resolve(path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.do(req)
	if err != nil {
		return err
	}
	if res.Truncated {
		return fmt.Errorf("decode %s: %w", path, ErrBodyTooLarge)
	}
	if err := json.Unmarshal(res.Body, dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// PNRPath is the API path of a PNR resource.
func PNRPath(pnr string) string { return "/api/pnr/" + url.PathEscape(pnr) }

// PreferencesPath is the API path of the preferences resource.
const PreferencesPath = "/api/preferences"

func (c *HTTPClient) FetchPNR(ctx context.Context, pnr string) (models.VersionedPNR, error) {
	var v models.VersionedPNR
	if err := c.get(ctx, PNRPath(pnr), &v); err != nil {
		return models.VersionedPNR{}, err
	}
	return v, nil
}

func (c *HTTPClient) FetchPreferences(ctx context.Context) (models.VersionedPreferences, error) {
	var v models.VersionedPreferences
	if err := c.get(ctx, PreferencesPath, &v); err != nil {
		return models.VersionedPreferences{}, err
	}
	return v, nil
}

// Ping probes GET /health.
func (c *HTTPClient) Ping(ctx context.Context) error {
	return NewHTTPPinger(c.baseURL.String(), c.http).Ping(ctx)
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
