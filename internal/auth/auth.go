// Package auth resolves the player behind a connection by asking an
// external identity service. Without it the server trusts the player id a
// client presents, which is fine on a home network.
package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coder/quartz"
	lru "github.com/hashicorp/golang-lru"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrInvalidToken indicates the token is definitively invalid.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrUnavailable indicates the identity service could not answer.
	// The server fails closed on it.
	ErrUnavailable = errors.New("auth: unavailable")
)

const (
	DefaultTimeout   = 500 * time.Millisecond
	DefaultCacheSize = 1024
	DefaultCacheTTL  = time.Minute
)

// Identity is an authenticated player.
type Identity struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name,omitempty"`
}

// Authenticator turns a bearer token into a player identity. It returns
// ErrInvalidToken for tokens that will never be accepted and wraps
// ErrUnavailable for everything else.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Identity, error)
}

// TokenFromRequest reads a bearer token from the Authorization header, or
// from the token query parameter for browser WebSockets that cannot set
// headers.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

// HTTPOption configures an HTTPAuthenticator.
type HTTPOption func(*HTTPAuthenticator)

// WithSecret sends secret in X-Homepoker-Secret so the identity service
// can tell the game server apart from other callers.
func WithSecret(secret string) HTTPOption {
	return func(a *HTTPAuthenticator) { a.secret = secret }
}

func WithTimeout(d time.Duration) HTTPOption {
	return func(a *HTTPAuthenticator) { a.timeout = d }
}

// WithCache remembers up to size accepted tokens for ttl. A zero size
// disables caching.
func WithCache(size int, ttl time.Duration) HTTPOption {
	return func(a *HTTPAuthenticator) { a.cacheSize, a.ttl = size, ttl }
}

func WithClock(c quartz.Clock) HTTPOption {
	return func(a *HTTPAuthenticator) { a.clock = c }
}

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(a *HTTPAuthenticator) { a.client = c }
}

// HTTPAuthenticator validates tokens by POSTing them to an external
// endpoint.
type HTTPAuthenticator struct {
	url       string
	secret    string
	timeout   time.Duration
	client    *http.Client
	clock     quartz.Clock
	cacheSize int
	ttl       time.Duration
	cache     *lru.Cache
}

type cachedIdentity struct {
	identity Identity
	expires  time.Time
}

// NewHTTPAuthenticator creates an authenticator for the endpoint at url.
func NewHTTPAuthenticator(url string, opts ...HTTPOption) (*HTTPAuthenticator, error) {
	a := &HTTPAuthenticator{
		url:       url,
		timeout:   DefaultTimeout,
		clock:     quartz.NewReal(),
		cacheSize: DefaultCacheSize,
		ttl:       DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.client == nil {
		a.client = &http.Client{Timeout: a.timeout}
	}
	if a.cacheSize > 0 && a.ttl > 0 {
		cache, err := lru.New(a.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("auth: create cache: %w", err)
		}
		a.cache = cache
	}
	return a, nil
}

type validateRequest struct {
	Token string `json:"token"`
}

type validateResponse struct {
	Valid    bool   `json:"valid"`
	PlayerID string `json:"player_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (a *HTTPAuthenticator) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	if id, ok := a.cached(token); ok {
		return id, nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	body, err := json.Marshal(validateRequest{Token: token})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.secret != "" {
		req.Header.Set("X-Homepoker-Secret", a.secret)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrInvalidToken
	default:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out validateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrUnavailable, err)
	}
	if !out.Valid {
		return nil, ErrInvalidToken
	}
	if out.PlayerID == "" {
		return nil, fmt.Errorf("%w: response has no player_id", ErrUnavailable)
	}

	id := Identity{PlayerID: out.PlayerID, Name: out.Name}
	if a.cache != nil {
		a.cache.Add(token, cachedIdentity{identity: id, expires: a.clock.Now().Add(a.ttl)})
	}
	return &id, nil
}

func (a *HTTPAuthenticator) cached(token string) (*Identity, bool) {
	if a.cache == nil {
		return nil, false
	}
	v, ok := a.cache.Get(token)
	if !ok {
		return nil, false
	}
	entry := v.(cachedIdentity)
	if !a.clock.Now().Before(entry.expires) {
		a.cache.Remove(token)
		return nil, false
	}
	id := entry.identity
	return &id, true
}
