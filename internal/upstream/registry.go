package upstream

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"relay-gate-go/internal/config"
	"relay-gate-go/internal/metrics"
	"relay-gate-go/internal/model"
)

// Per-origin policy constants. Fixed, not configurable per request.
const (
	connectTimeout      = 10 * time.Second
	firstByteTimeout    = 30 * time.Second
	betweenBytesTimeout = 30 * time.Second
)

// Registry hands out one HTTP client per origin. Clients are cached by
// dial target so TLS verification always matches the requested hostname;
// the cache is LRU-bounded and evicted clients drop their idle
// connections. The pipeline never depends on a cache hit; a miss just
// builds a fresh client.
type Registry struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	idle    int

	rootCAs *x509.CertPool
	dial    func(ctx context.Context, network, addr string) (net.Conn, error)

	mu      sync.Mutex
	clients *lru.Cache[string, *http.Client]
}

// NewRegistry creates a Registry bounded to cfg.Upstream.MaxBackends
// clients. The metrics parameter is optional; pass nil to disable origin
// metrics recording.
func NewRegistry(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*Registry, error) {
	r := &Registry{
		logger:  logger.With("component", "upstream_registry"),
		metrics: m,
		idle:    cfg.Upstream.IdleConnections,
	}

	cache, err := lru.NewWithEvict[string, *http.Client](cfg.Upstream.MaxBackends, func(target string, c *http.Client) {
		r.logger.Debug("evicting origin client", "target", target)
		c.CloseIdleConnections()
	})
	if err != nil {
		return nil, fmt.Errorf("upstream: client cache: %w", err)
	}
	r.clients = cache

	return r, nil
}

// NewRegistryForTest creates a Registry whose clients trust rootCAs instead
// of the system pool and dial through dial when non-nil. Intended only for
// tests that stand up local origins for public-looking hostnames.
func NewRegistryForTest(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, rootCAs *x509.CertPool, dial func(ctx context.Context, network, addr string) (net.Conn, error)) (*Registry, error) {
	r, err := NewRegistry(cfg, logger, m)
	if err != nil {
		return nil, err
	}
	r.rootCAs = rootCAs
	r.dial = dial
	return r, nil
}

// DoStream sends a request to the origin identified by id and returns the
// response as a stream; the caller closes the body. The inbound context
// governs the request end to end, and the returned body enforces the
// inter-byte timeout: a read stalling longer than betweenBytesTimeout
// cancels the origin request, so the next read fails instead of hanging.
func (r *Registry) DoStream(ctx context.Context, id Identity, method, url string, header http.Header, body io.Reader, contentLength int64) (*model.RelayResponse, error) {
	ctx, cancel := context.WithCancel(ctx)

	if contentLength == 0 {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build origin request: %w", err)
	}
	req.Header = header
	req.Host = id.Host
	req.ContentLength = contentLength

	resp, err := r.do(id, req)
	if err != nil {
		cancel()
		return nil, err
	}

	resp.Body = newIdleTimeoutBody(resp.Body, cancel, betweenBytesTimeout)
	return resp, nil
}

// do executes the request through the cached client for id, recording
// origin metrics. The response body's ownership moves to the caller.
func (r *Registry) do(id Identity, req *http.Request) (*model.RelayResponse, error) {
	r.logger.Debug("origin request",
		"backend", id.Name,
		"method", req.Method,
	)

	start := time.Now()
	resp, err := r.client(id).Do(req) //nolint:bodyclose // ownership moves to the caller via RelayResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if r.metrics != nil {
			r.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		}
		return nil, fmt.Errorf("origin request: %w", err)
	}

	if r.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		r.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		r.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	return &model.RelayResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// client returns the cached client for id, building one on first use.
// Keyed by id.Target rather than id.Name: colliding name tokens must never
// share a client, because the TLS server name is baked into its transport.
func (r *Registry) client(id Identity) *http.Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients.Get(id.Target); ok {
		return c
	}

	c := r.newClient(id)
	r.clients.Add(id.Target, c)
	if r.metrics != nil {
		r.metrics.OriginClients.Set(float64(r.clients.Len()))
	}
	return c
}

func (r *Registry) newClient(id Identity) *http.Client {
	dial := r.dial
	if dial == nil {
		dial = (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext
	}

	transport := &http.Transport{
		MaxIdleConns:        r.idle,
		MaxIdleConnsPerHost: r.idle,
		IdleConnTimeout:     90 * time.Second,
		DialContext:         dial,
		TLSHandshakeTimeout: connectTimeout,
		TLSClientConfig: &tls.Config{
			ServerName: id.Host,
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS13,
			RootCAs:    r.rootCAs,
		},
		// Origins are spoken to over HTTP/1.1; no h2 negotiation.
		ForceAttemptHTTP2: false,
		// Compression passes through untouched so the caller sees the
		// origin's exact Content-Encoding.
		DisableCompression:    true,
		ResponseHeaderTimeout: firstByteTimeout,
	}

	// No overall client timeout: responses may stream for a long time.
	// The connect, first-byte, and inter-byte bounds cap each phase.
	return &http.Client{Transport: transport}
}
