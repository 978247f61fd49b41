// Package api is the client's only door to the Katha REST API. Gateway.Send
// attaches the bearer token and transparently refreshes it once on a 401;
// Client layers typed endpoint methods on top.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"katha/internal/config"
	"katha/internal/models"
	"katha/internal/utils"
)

// TokenStore is where the gateway reads and persists the token pair.
type TokenStore interface {
	AccessToken() string
	RefreshToken() string
	SetTokens(access, refresh string) error
	SetAccessToken(access string) error
	ClearTokens() error
}

// Gateway sends requests to the API root and the auth root.
type Gateway struct {
	baseURL    string
	authURL    string
	httpClient *http.Client
	tokens     TokenStore
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *utils.MetricsCollector
	refreshes  singleflight.Group
}

// Option configures the gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.httpClient = c }
}

// WithTimeout bounds every round-trip. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

func WithMetrics(m *utils.MetricsCollector) Option {
	return func(g *Gateway) { g.metrics = m }
}

// NewGateway creates a gateway for the versioned API root baseURL (".../api/v1/").
func NewGateway(baseURL string, tokens TokenStore, opts ...Option) *Gateway {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	g := &Gateway{
		baseURL:    baseURL,
		authURL:    config.AuthBaseURL(baseURL),
		httpClient: &http.Client{},
		tokens:     tokens,
		timeout:    15 * time.Second,
	}
	for _, o := range opts {
		o(g)
	}
	if g.logger == nil {
		g.logger = utils.DiscardLogger()
	}
	return g
}

// Tokens exposes the token store so the session can log in and out.
func (g *Gateway) Tokens() TokenStore {
	return g.tokens
}

// Send issues method on endpoint (relative to the API root) with body encoded
// as JSON. A non-2xx status is not an error: callers inspect the Response.
// Only transport failures are returned as errors (code NETWORK_ERROR).
//
// When the server answers 401 to a request that carried an access token, the
// refresh token is exchanged once and the request retried once; the retried
// response is returned whatever its status. A rejected exchange clears both
// tokens; an exchange that fails at the network level keeps them and the
// original 401 is returned.
func (g *Gateway) Send(ctx context.Context, method, endpoint string, body any) (*Response, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	access := g.tokens.AccessToken()
	resp, err := g.do(ctx, method, g.baseURL+endpoint, payload, access, endpoint)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && access != "" {
		newAccess, ok := g.refresh(ctx, access)
		if !ok {
			return resp, nil
		}
		g.logger.Info("access token refreshed, retrying", "method", method, "endpoint", endpoint)
		return g.do(ctx, method, g.baseURL+endpoint, payload, newAccess, endpoint)
	}
	return resp, nil
}

// SendAuth posts to an endpoint under the auth root (token/, token/refresh/).
// No bearer token is attached and no refresh is attempted.
func (g *Gateway) SendAuth(ctx context.Context, endpoint string, body any) (*Response, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	return g.do(ctx, http.MethodPost, g.authURL+endpoint, payload, "", endpoint)
}

// refresh replaces the rejected access token stale. Concurrent callers
// rejected with the same token share one exchange, and a caller whose token
// was already replaced reuses the replacement.
func (g *Gateway) refresh(ctx context.Context, stale string) (string, bool) {
	v, _, _ := g.refreshes.Do(stale, func() (any, error) {
		if current := g.tokens.AccessToken(); current != "" && current != stale {
			return current, nil
		}
		access, _ := g.exchange(ctx)
		return access, nil
	})
	access, _ := v.(string)
	return access, access != ""
}

// exchange trades the refresh token for a new access token. Without a
// refresh token, or when the server rejects the exchange, both tokens are
// cleared. A transport failure leaves the tokens alone.
func (g *Gateway) exchange(ctx context.Context) (string, bool) {
	refreshToken := g.tokens.RefreshToken()
	if refreshToken == "" {
		g.clearTokens("no refresh token")
		g.metrics.IncrementRefresh("missing")
		return "", false
	}

	resp, err := g.SendAuth(ctx, "token/refresh/", map[string]string{"refresh": refreshToken})
	if err != nil {
		g.logger.Warn("token refresh failed", "error", err)
		g.metrics.IncrementRefresh("network_error")
		return "", false
	}

	var pair models.TokenPair
	if !resp.OK() || resp.Decode(&pair) != nil || pair.Access == "" {
		g.clearTokens("refresh rejected")
		g.metrics.IncrementRefresh("rejected")
		return "", false
	}

	// Servers that rotate refresh tokens send the replacement alongside.
	if pair.Refresh != "" {
		err = g.tokens.SetTokens(pair.Access, pair.Refresh)
	} else {
		err = g.tokens.SetAccessToken(pair.Access)
	}
	if err != nil {
		g.logger.Error("persisting refreshed tokens", "error", err)
	}
	g.metrics.IncrementRefresh("ok")
	return pair.Access, true
}

func (g *Gateway) clearTokens(reason string) {
	g.logger.Info("clearing session tokens", "reason", reason)
	if err := g.tokens.ClearTokens(); err != nil {
		g.logger.Error("clearing session tokens", "error", err)
	}
}

func (g *Gateway) do(ctx context.Context, method, url string, payload []byte, access, op string) (*Response, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "Invalid request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	start := time.Now()
	httpResp, err := g.httpClient.Do(req)
	if err != nil {
		g.metrics.ObserveRequest(metricOp(op), 0, time.Since(start))
		g.logger.Debug("request failed", "method", method, "url", url, "error", err)
		return nil, utils.NewNetworkError(method+" "+op, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		g.metrics.ObserveRequest(metricOp(op), 0, time.Since(start))
		return nil, utils.NewNetworkError(method+" "+op, err)
	}

	g.metrics.ObserveRequest(metricOp(op), httpResp.StatusCode, time.Since(start))
	g.logger.Debug("request",
		"method", method,
		"endpoint", op,
		"status", httpResp.StatusCode,
		"dur", time.Since(start),
	)

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}

func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "Could not encode request", err)
	}
	return b, nil
}

// metricOp collapses ids out of an endpoint so metric labels stay bounded:
// "posts/12/vote/?x=1" becomes "posts/:id/vote/".
func metricOp(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}
	parts := strings.Split(endpoint, "/")
	for i, p := range parts {
		if p != "" && strings.Trim(p, "0123456789") == "" {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}
