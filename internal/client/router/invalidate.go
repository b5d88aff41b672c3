package router

import (
	"net/http"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/cache"
)

type invalidator struct {
	next   http.RoundTripper
	caches *cache.Caches
}

// InvalidateOnWrite wraps next so that a mutation the server accepts drops
// the cached GET of the same URL from every cache.
func InvalidateOnWrite(next http.RoundTripper, caches *cache.Caches) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &invalidator{next: next, caches: caches}
}

func (t *invalidator) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil || req.Method == http.MethodGet || req.Method == http.MethodHead {
		return resp, err
	}
	if resp.StatusCode < 300 || resp.StatusCode == http.StatusConflict {
		t.caches.Invalidate(http.MethodGet + " " + req.URL.String())
	}
	return resp, nil
}

func (t *invalidator) CloseIdleConnections() {
	if c, ok := t.next.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}
