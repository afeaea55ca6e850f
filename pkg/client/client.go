// Package client provides the outbound HTTP client shared by the extractor
// backends: tuned transport, retries with backoff, optional proxy, optional
// certificate bypass and an optional Chrome TLS fingerprint.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/ytget/streamproxy/internal/logger"
)

const (
	defaultTimeout = 30 * time.Second
	defaultRetries = 3

	userAgentValue   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	initialBackoff   = 200 * time.Millisecond
	maxBackoff       = 3 * time.Second
	successMinCode   = http.StatusOK                  // 200
	retryableMinCode = http.StatusInternalServerError // 500
)

// DefaultUserAgent is sent when Config.UserAgent is empty.
const DefaultUserAgent = userAgentValue

// defaultTransport is the template every client clones.
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ResponseHeaderTimeout: 10 * time.Second,
	ForceAttemptHTTP2:     true,
	// Callers negotiate Accept-Encoding themselves and decode br/gzip.
	DisableCompression: true,
	ReadBufferSize:     16 * 1024,
	WriteBufferSize:    16 * 1024,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// Config holds optional client parameters. Zero values use defaults.
type Config struct {
	Timeout   time.Duration
	Retries   int
	UserAgent string
	ProxyURL  string
	// InsecureSkipVerify disables certificate validation.
	InsecureSkipVerify bool
	// Fingerprint dials TLS with a Chrome ClientHello. It has no effect on
	// requests routed through ProxyURL.
	Fingerprint bool
	Logger      *logger.Logger
}

// Client wraps http.Client with retry/backoff and default headers.
type Client struct {
	HTTPClient *http.Client
	Retries    int
	UserAgent  string
	log        *logger.ComponentLogger
}

// New creates a new Client with a tuned Transport, default timeout, and retries.
func New() *Client {
	return NewWith(Config{})
}

// NewWith creates a new client with provided config. Zero values use defaults.
func NewWith(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = userAgentValue
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	tr := defaultTransport.Clone()
	tr.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // operator opt-in
		MinVersion:         tls.VersionTLS12,
	}
	if cfg.ProxyURL != "" {
		if proxyFunc, err := proxyFromURLString(cfg.ProxyURL); err == nil {
			tr.Proxy = proxyFunc
		} else {
			log.WithComponent(logger.ComponentClient).Warn("ignoring invalid proxy URL", map[string]interface{}{
				"proxy": cfg.ProxyURL,
				"error": err.Error(),
			})
		}
	}

	var rt http.RoundTripper = tr
	if cfg.Fingerprint {
		rt = newFingerprintTransport(tr, cfg.InsecureSkipVerify)
	}

	return &Client{
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: rt,
		},
		Retries:   retries,
		UserAgent: ua,
		log:       log.WithComponent(logger.ComponentClient),
	}
}

// Get performs a GET with the default User-Agent. See Do.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Do sends req, retrying transient failures (HTTP 5xx or network errors)
// with exponential backoff. Requests with a body are retried only when
// req.GetBody is set. The User-Agent header is filled in when absent.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		ua := c.UserAgent
		if ua == "" {
			ua = userAgentValue
		}
		req.Header.Set("User-Agent", ua)
	}

	retries := c.Retries
	if retries < 1 {
		retries = 1
	}
	if req.Body != nil && req.GetBody == nil {
		retries = 1
	}

	ctx := req.Context()
	backoff := initialBackoff

	var (
		resp *http.Response
		err  error
	)
	for attempt := 0; attempt < retries; attempt++ {
		attemptReq := req
		if attempt > 0 && req.GetBody != nil {
			attemptReq = req.Clone(ctx)
			if attemptReq.Body, err = req.GetBody(); err != nil {
				return nil, fmt.Errorf("rewind request body: %w", err)
			}
		}

		resp, err = c.HTTPClient.Do(attemptReq)
		if err == nil && resp.StatusCode >= successMinCode && resp.StatusCode < retryableMinCode {
			return resp, nil
		}
		if attempt == retries-1 {
			break
		}

		fields := map[string]interface{}{"url": req.URL.Redacted(), "attempt": attempt + 1}
		if err != nil {
			fields["error"] = err.Error()
		} else {
			fields["status"] = resp.StatusCode
		}
		c.logger().Debug("retrying request", fields)

		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return resp, err
}

func (c *Client) logger() *logger.ComponentLogger {
	if c.log == nil {
		return logger.Nop().WithComponent(logger.ComponentClient)
	}
	return c.log
}

// proxyFromURLString parses a proxy URL and returns a Proxy function.
func proxyFromURLString(raw string) (func(*http.Request) (*url.URL, error), error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("proxy URL %q needs a scheme and host", raw)
	}
	return http.ProxyURL(u), nil
}
