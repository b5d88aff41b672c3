package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/cache"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/client"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/models"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/common"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/logging"
)

// maxBodySize bounds how much of a response is buffered for caching. Larger
// responses are streamed through uncached.
const maxBodySize = 4 << 20

// Connectivity reports whether the server is believed reachable.
type Connectivity interface {
	Online() bool
}

// Enqueuer accepts captured mutations for later replay.
type Enqueuer interface {
	Enqueue(ctx context.Context, a models.QueuedAction) (models.QueuedAction, error)
}

type route struct {
	rule  Rule
	cache *cache.Cache
}

// Router is an http.RoundTripper applying caching strategies per rule.
type Router struct {
	next   http.RoundTripper
	routes []route
	caches *cache.Caches
	online Connectivity
	queue  Enqueuer
	logger logging.Logger

	wg sync.WaitGroup
}

var _ http.RoundTripper = (*Router)(nil)

// New builds a router in front of next. Each rule's cache is opened in caches.
// online and queue may be nil, in which case mutations are never captured.
func New(next http.RoundTripper, rules []Rule, caches *cache.Caches, online Connectivity,
	queue Enqueuer, logger logging.Logger) (*Router, error) {
	if next == nil {
		next = http.DefaultTransport
	}
	r := &Router{
		next:   next,
		caches: caches,
		online: online,
		queue:  queue,
		logger: logging.OrNop(logger).With("component", "router"),
	}
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		rt := route{rule: rule}
		if rule.Cache != "" {
			rt.cache = caches.Open(cache.Config{Name: rule.Cache, MaxEntries: rule.MaxEntries, MaxAge: rule.MaxAge})
		}
		r.routes = append(r.routes, rt)
	}
	return r, nil
}

// Rules returns the configured rules in match order.
func (r *Router) Rules() []Rule {
	out := make([]Rule, len(r.routes))
	for i, rt := range r.routes {
		out[i] = rt.rule
	}
	return out
}

// Match returns the first rule matching req.
func (r *Router) Match(req *http.Request) (Rule, bool) {
	rt, ok := r.match(req)
	return rt.rule, ok
}

func (r *Router) match(req *http.Request) (route, bool) {
	for _, rt := range r.routes {
		if rt.rule.Matches(req) {
			return rt, true
		}
	}
	return route{}, false
}

// Wait blocks until background revalidations finish.
func (r *Router) Wait() { r.wg.Wait() }

func (r *Router) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return r.mutate(req)
	}

	rt, ok := r.match(req)
	if !ok || rt.rule.Strategy == NetworkOnly || rt.cache == nil {
		return r.next.RoundTrip(req)
	}

	switch rt.rule.Strategy {
	case CacheFirst:
		return r.cacheFirst(req, rt)
	case NetworkFirst:
		return r.networkFirst(req, rt)
	case StaleWhileRevalidate:
		return r.staleWhileRevalidate(req, rt)
	default:
		return r.next.RoundTrip(req)
	}
}

func cacheKey(req *http.Request) string {
	return req.Method + " " + req.URL.String()
}

func (r *Router) cacheFirst(req *http.Request, rt route) (*http.Response, error) {
	if resp, ok := rt.cache.Match(req, cacheKey(req)); ok {
		return resp, nil
	}
	return r.fetchAndCache(req, rt, nil)
}

func (r *Router) networkFirst(req *http.Request, rt route) (*http.Response, error) {
	timeout := rt.rule.Timeout
	if timeout <= 0 {
		timeout = DefaultNetworkTimeout
	}
	ctx, cancel := context.WithTimeout(req.Context(), timeout)
	resp, err := r.fetchAndCache(req.WithContext(ctx), rt, cancel)
	if err == nil && resp.StatusCode < 500 {
		resp.Request = req
		return resp, nil
	}
	if err == nil {
		resp.Body.Close()
	}
	if req.Context().Err() != nil {
		return nil, req.Context().Err()
	}

	r.logger.Debug(req.Context(), "network failed, falling back to cache", "url", req.URL.String(), "error", err)
	if cached, ok := rt.cache.Match(req, cacheKey(req)); ok {
		return cached, nil
	}
	if IsNavigation(req) {
		if shell, ok := r.appShell(req); ok {
			return shell, nil
		}
	}
	return offlineResponse(req), nil
}

func (r *Router) staleWhileRevalidate(req *http.Request, rt route) (*http.Response, error) {
	cached, ok := rt.cache.Match(req, cacheKey(req))
	if !ok {
		return r.fetchAndCache(req, rt, nil)
	}

	bg := req.Clone(context.WithoutCancel(req.Context()))
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		resp, err := r.fetchAndCache(bg, rt, nil)
		if err != nil {
			r.logger.Debug(bg.Context(), "revalidation failed", "url", bg.URL.String(), "error", err)
			return
		}
		resp.Body.Close()
	}()
	return cached, nil
}

// fetchAndCache performs req and stores a 200 response in the route's cache.
// Bodies up to maxBodySize are buffered; larger ones are passed through as a
// stream and not cached. release, if set, runs once the body is done with.
func (r *Router) fetchAndCache(req *http.Request, rt route, release func()) (*http.Response, error) {
	if release == nil {
		release = func() {}
	}
	resp, err := r.next.RoundTrip(req)
	if err != nil {
		release()
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		resp.Body.Close()
		release()
		return nil, err
	}
	if len(body) > maxBodySize {
		r.logger.Debug(req.Context(), "response too large to cache", "url", req.URL.String())
		out := cache.NewResponse(req, resp.StatusCode, resp.Header.Clone(), nil)
		out.Status = resp.Status
		out.ContentLength = resp.ContentLength
		out.Body = &streamBody{
			Reader:  io.MultiReader(bytes.NewReader(body), resp.Body),
			body:    resp.Body,
			release: release,
		}
		return out, nil
	}
	resp.Body.Close()
	release()

	if resp.StatusCode == http.StatusOK && req.Method == http.MethodGet {
		rt.cache.Put(cacheKey(req), resp, body)
	}

	out := cache.NewResponse(req, resp.StatusCode, resp.Header.Clone(), body)
	out.Status = resp.Status
	return out, nil
}

// streamBody is a partly buffered upstream body.
type streamBody struct {
	io.Reader
	body    io.Closer
	release func()
	once    sync.Once
}

func (b *streamBody) Close() error {
	err := b.body.Close()
	b.once.Do(b.release)
	return err
}

func (r *Router) appShell(req *http.Request) (*http.Response, bool) {
	c, ok := r.caches.Get(AppShellCache)
	if !ok {
		return nil, false
	}
	shellURL := *req.URL
	shellURL.Path = AppShellPath
	shellURL.RawQuery = ""
	return c.Match(req, http.MethodGet+" "+shellURL.String())
}

func offlineResponse(req *http.Request) *http.Response {
	h := http.Header{}
	h.Set("Content-Type", "text/plain; charset=utf-8")
	return cache.NewResponse(req, http.StatusServiceUnavailable, h, []byte("offline\n"))
}

func (r *Router) mutate(req *http.Request) (*http.Response, error) {
	op, ok := models.OperationForMethod(req.Method)
	if !ok || r.queue == nil {
		return r.next.RoundTrip(req)
	}

	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
	}

	if r.online == nil || r.online.Online() {
		send := req.Clone(req.Context())
		send.Body = io.NopCloser(bytes.NewReader(body))
		send.ContentLength = int64(len(body))
		resp, err := r.next.RoundTrip(send)
		if err == nil {
			return resp, nil
		}
		if req.Context().Err() != nil {
			return nil, err
		}
		r.logger.Info(req.Context(), "mutation failed in transport, queueing", "url", req.URL.String(), "error", err)
	}
	return r.capture(req, op, body)
}

func (r *Router) capture(req *http.Request, op models.Operation, body []byte) (*http.Response, error) {
	resourceType, resourceID := ResourceOf(req.URL.Path)

	header := req.Header.Clone()
	// the current token is attached again on replay
	header.Del(common.AuthorizationHeaderName)

	a := models.QueuedAction{
		Operation:    op,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		BaseVersion:  client.ParseETag(req.Header.Get("If-Match")),
		Request: models.CapturedRequest{
			Method: req.Method,
			URL:    req.URL.String(),
			Header: header,
			Body:   body,
		},
	}
	if len(body) > 0 && json.Valid(body) {
		a.Payload = json.RawMessage(body)
	}

	stored, err := r.queue.Enqueue(req.Context(), a)
	if err != nil {
		return nil, fmt.Errorf("queue offline request: %w", err)
	}
	r.logger.Info(req.Context(), "queued offline request", "id", stored.ID, "method", req.Method, "url", req.URL.String())

	payload, _ := json.Marshal(queuedBody{Queued: true, ID: stored.ID})
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return cache.NewResponse(req, http.StatusAccepted, h, payload), nil
}

type queuedBody struct {
	Queued bool   `json:"queued"`
	ID     string `json:"id"`
}

// ResourceOf derives the synced resource addressed by an API path.
// Paths outside the sync API map to ("", "").
func ResourceOf(p string) (resourceType, resourceID string) {
	switch {
	case strings.HasPrefix(p, "/api/pnr/"):
		id := strings.Trim(strings.TrimPrefix(p, "/api/pnr/"), "/")
		if i := strings.IndexByte(id, '/'); i >= 0 {
			id = id[:i]
		}
		if pnr, err := common.NormalizePNR(id); err == nil {
			id = pnr
		}
		return common.ResourcePNR, id
	case p == client.PreferencesPath || strings.HasPrefix(p, client.PreferencesPath+"/"):
		return common.ResourcePreferences, common.ResourcePreferences
	default:
		return "", ""
	}
}

// IsQueued reports whether resp is the synthetic answer to a captured
// mutation, returning its action id.
func IsQueued(resp *http.Response) (string, bool) {
	if resp.StatusCode != http.StatusAccepted {
		return "", false
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil {
		return "", false
	}
	var qb queuedBody
	if json.Unmarshal(data, &qb) == nil && qb.Queued {
		return qb.ID, true
	}
	return "", false
}
