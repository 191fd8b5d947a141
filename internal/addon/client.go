package addon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/mmcdole/reelsync/internal/cache"
	"github.com/mmcdole/reelsync/internal/identity"
	"github.com/mmcdole/reelsync/internal/metrics"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultMetaTTL   = 30 * time.Minute
	defaultTripAfter = 5
	maxBodySize      = 8 << 20
	userAgent        = "reelsync/1.0"
)

// ErrTransport covers every way an addon request can fail: network, timeout,
// non-200 status, undecodable payload or an open circuit breaker.
var ErrTransport = errors.New("addon transport failure")

// errNotFound is a transport failure the breaker does not count
var errNotFound = fmt.Errorf("%w: not found", ErrTransport)

// Client reads the addon network. It never mutates local state.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
	tripAfter  uint32
	manifests  cache.Cache[string, *Manifest]
	metas      cache.Cache[string, *Meta]
	logger     *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout (defaults to 10s)
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit paces requests with a token bucket. rps <= 0 disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBreakerThreshold opens the circuit after n consecutive failures
func WithBreakerThreshold(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.tripAfter = uint32(n)
		}
	}
}

// WithManifestCache replaces the manifest cache port
func WithManifestCache(cc cache.Cache[string, *Manifest]) Option {
	return func(c *Client) {
		if cc != nil {
			c.manifests = cc
		}
	}
}

// WithMetaCache replaces the metadata cache port
func WithMetaCache(cc cache.Cache[string, *Meta]) Option {
	return func(c *Client) {
		if cc != nil {
			c.metas = cc
		}
	}
}

// WithLogger sets the client logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client for the addon at baseURL. A trailing /manifest.json is accepted.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    normalizeBaseURL(baseURL),
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Inf, 0),
		tripAfter:  defaultTripAfter,
		manifests:  cache.NewTTL[string, *Manifest](0, nil),
		metas:      cache.NewTTL[string, *Meta](defaultMetaTTL, nil),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = c.newBreaker()
	return c
}

func normalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimSuffix(raw, "/manifest.json")
	raw = strings.TrimRight(raw, "/")
	if scheme, rest, ok := strings.Cut(raw, "://"); ok && strings.EqualFold(scheme, "stremio") {
		raw = "https://" + rest
	}
	return raw
}

func (c *Client) newBreaker() *gobreaker.CircuitBreaker[[]byte] {
	name := "addon:" + c.baseURL
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.tripAfter
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("addon circuit breaker state change", "addon", c.baseURL, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// BaseURL returns the normalized addon base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// doRequest fetches path relative to the base URL, paced and guarded by the breaker
func (c *Client) doRequest(ctx context.Context, resource, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	start := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.fetch(ctx, path)
	})
	metrics.AddonRequestDuration.WithLabelValues(resource).Observe(time.Since(start).Seconds())

	if err != nil {
		outcome := "transport"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "rejected"
			err = fmt.Errorf("%w: %v", ErrTransport, err)
		}
		metrics.AddonRequests.WithLabelValues(resource, outcome).Inc()
		return nil, err
	}
	return body, nil
}

func (c *Client) fetch(ctx context.Context, path string) ([]byte, error) {
	reqURL := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug("addon request", "url", reqURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code %d", ErrTransport, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}
	return body, nil
}

// getJSON fetches and decodes path into v
func (c *Client) getJSON(ctx context.Context, resource, path string, v any) error {
	body, err := c.doRequest(ctx, resource, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		metrics.AddonRequests.WithLabelValues(resource, "decode").Inc()
		return fmt.Errorf("%w: decode %s: %v", ErrTransport, resource, err)
	}
	metrics.AddonRequests.WithLabelValues(resource, "ok").Inc()
	return nil
}

// GetManifest returns the addon manifest, cached after the first success.
// force bypasses and refreshes the cache.
func (c *Client) GetManifest(ctx context.Context, force bool) (*Manifest, error) {
	if !force {
		if m, ok := c.manifests.Get(c.baseURL); ok {
			metrics.AddonCacheHits.WithLabelValues("manifest").Inc()
			return m, nil
		}
	}

	var dto manifestDTO
	if err := c.getJSON(ctx, "manifest", "/manifest.json", &dto); err != nil {
		return nil, err
	}
	m := mapManifest(&dto)
	c.manifests.Set(c.baseURL, m)
	return m, nil
}

// GetMeta returns metadata for a title, or nil when the addon has none or the request fails.
func (c *Client) GetMeta(ctx context.Context, kind identity.MediaKind, externalID string) *Meta {
	cacheKey := string(kind) + "/" + externalID
	if m, ok := c.metas.Get(cacheKey); ok {
		metrics.AddonCacheHits.WithLabelValues("meta").Inc()
		return m
	}

	var resp metaResponse
	path := "/meta/" + url.PathEscape(string(kind)) + "/" + url.PathEscape(externalID) + ".json"
	if err := c.getJSON(ctx, "meta", path, &resp); err != nil {
		c.logger.Warn("failed to fetch meta", "kind", kind, "id", externalID, "error", err)
		return nil
	}

	m := mapMeta(resp.Meta, kind)
	if m == nil {
		c.logger.Debug("addon returned no meta", "kind", kind, "id", externalID)
		return nil
	}
	c.metas.Set(cacheKey, m)
	return m
}

// InvalidateMeta drops a cached meta so the next GetMeta refetches it
func (c *Client) InvalidateMeta(kind identity.MediaKind, externalID string) {
	c.metas.Delete(string(kind) + "/" + externalID)
}

// GetStreams returns the stream candidates for a title in addon order.
// The result is empty, never nil, when the request fails.
func (c *Client) GetStreams(ctx context.Context, key identity.TitleKey) []Stream {
	var resp streamsResponse
	path := "/stream/" + url.PathEscape(string(key.Kind)) + "/" + url.PathEscape(key.ExternalID) + ".json"
	if err := c.getJSON(ctx, "stream", path, &resp); err != nil {
		c.logger.Warn("failed to fetch streams", "key", key.String(), "error", err)
		return []Stream{}
	}
	return mapStreams(resp.Streams)
}

// GetCatalogPage returns one page of a catalog listing starting at skip.
// An empty page ends the listing; failures also yield an empty page.
func (c *Client) GetCatalogPage(ctx context.Context, catalogID string, kind identity.MediaKind, search string, skip int) []Meta {
	var resp catalogResponse
	if err := c.getJSON(ctx, "catalog", catalogPath(catalogID, kind, search, skip), &resp); err != nil {
		c.logger.Warn("failed to fetch catalog page", "catalog", catalogID, "kind", kind, "skip", skip, "error", err)
		return []Meta{}
	}
	return mapMetas(resp.Metas, kind)
}

// catalogPath builds /catalog/{kind}/{id}[/search={q}&skip={n}].json
func catalogPath(catalogID string, kind identity.MediaKind, search string, skip int) string {
	path := "/catalog/" + url.PathEscape(string(kind)) + "/" + url.PathEscape(catalogID)

	var extras []string
	if search != "" {
		extras = append(extras, "search="+escapeExtra(search))
	}
	if skip > 0 {
		extras = append(extras, "skip="+strconv.Itoa(skip))
	}
	if len(extras) > 0 {
		path += "/" + strings.Join(extras, "&")
	}
	return path + ".json"
}

func escapeExtra(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}
