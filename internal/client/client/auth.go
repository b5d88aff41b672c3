package client

import (
	"net/http"
	"sync"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/common"
)

// AuthTransport adds "Authorization: Bearer <token>" to requests that do not
// already carry an Authorization header.
type AuthTransport struct {
	Base http.RoundTripper

	mu    sync.RWMutex
	token string
}

func NewAuthTransport(base http.RoundTripper, token string) *AuthTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &AuthTransport{Base: base, token: token}
}

// SetToken replaces the token used for subsequent requests.
func (t *AuthTransport) SetToken(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = token
}

func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.RLock()
	token := t.token
	t.mu.RUnlock()

	if token == "" || req.Header.Get(common.AuthorizationHeaderName) != "" {
		return t.Base.RoundTrip(req)
	}

	r := req.Clone(req.Context())
	r.Header.Set(common.AuthorizationHeaderName, "Bearer "+token)
	return t.Base.RoundTrip(r)
}
