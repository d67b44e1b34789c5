// Package fetcher retrieves a single page over HTTP, following redirects by
// hand so that every hop can be recorded.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seo-optimizer/seo-inspector/errs"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxRedirects = 10
	DefaultMaxBodyBytes = 10 << 20
	DefaultUserAgent    = "SEOInspector/1.0"

	acceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// Config bounds a Fetcher. Zero values take the defaults above; a negative
// MaxRedirects means redirects are never followed.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	MaxBodyBytes int64
	UserAgent    string

	BlockPrivateNetworks bool
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	switch {
	case c.MaxRedirects == 0:
		c.MaxRedirects = DefaultMaxRedirects
	case c.MaxRedirects < 0:
		c.MaxRedirects = 0
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	return c
}

// Result is the outcome of one retrieval. On failure it still records the
// last URL attempted and the hops followed before the failure.
type Result struct {
	URL           string            `json:"url"`
	StatusCode    int               `json:"status_code,omitempty"`
	RedirectChain []string          `json:"redirect_chain"`
	Headers       map[string]string `json:"headers,omitempty"`
	ContentType   string            `json:"content_type,omitempty"`
	Content       []byte            `json:"-"`
}

// Fetcher performs GET requests with a bounded, manually followed redirect chain.
// It holds no per-request state and is safe for concurrent use.
type Fetcher struct {
	client *http.Client
	cfg    Config
	logger logrus.FieldLogger
}

// New creates a Fetcher with a pooled transport.
func New(cfg Config, logger logrus.FieldLogger) *Fetcher {
	dialer := &net.Dialer{
		Timeout:   cfg.withDefaults().Timeout,
		KeepAlive: 30 * time.Second,
	}
	if cfg.BlockPrivateNetworks {
		dialer.Control = blockPrivateAddresses
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return newWithClient(cfg, &http.Client{Transport: transport}, logger)
}

func newWithClient(cfg Config, client *http.Client, logger logrus.FieldLogger) *Fetcher {
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Fetcher{client: &c, cfg: cfg.withDefaults(), logger: logger}
}

// ValidateURL checks that raw is an absolute http(s) URL with a host.
func ValidateURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errs.New(errs.InvalidURL, "url is required", nil)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errs.New(errs.InvalidURL, fmt.Sprintf("invalid url %q", raw), err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errs.New(errs.InvalidURL, fmt.Sprintf("unsupported scheme in %q: only http and https are allowed", raw), nil)
	}
	if u.Hostname() == "" {
		return nil, errs.New(errs.InvalidURL, fmt.Sprintf("url %q has no host", raw), nil)
	}
	return u, nil
}

// Fetch retrieves rawURL. The returned Result is never nil. On failure the
// error is an *errs.Error of kind InvalidURL, NetworkError or TooManyRedirects.
// HTTP error statuses are not failures: their bodies are returned as content.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	result := &Result{URL: strings.TrimSpace(rawURL), RedirectChain: []string{}}

	current, err := ValidateURL(rawURL)
	if err != nil {
		return result, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	for {
		result.URL = current.String()

		resp, err := f.get(ctx, current)
		if err != nil {
			return result, networkError(ctx, current, err)
		}

		location := resp.Header.Get("Location")
		if resp.StatusCode < 300 || resp.StatusCode > 399 || location == "" {
			return f.finish(ctx, result, resp)
		}
		discard(resp.Body)

		if len(result.RedirectChain) >= f.cfg.MaxRedirects {
			return result, errs.New(errs.TooManyRedirects,
				fmt.Sprintf("stopped after %d redirects", f.cfg.MaxRedirects), nil)
		}

		next, err := current.Parse(location)
		if err != nil || (next.Scheme != "http" && next.Scheme != "https") || next.Hostname() == "" {
			return result, errs.New(errs.NetworkError,
				fmt.Sprintf("invalid redirect location %q from %s", location, current), err)
		}

		f.logger.WithFields(logrus.Fields{
			"from":   current.String(),
			"to":     next.String(),
			"status": resp.StatusCode,
			"hop":    len(result.RedirectChain) + 1,
		}).Debug("following redirect")

		result.RedirectChain = append(result.RedirectChain, current.String())
		current = next
	}
}

func (f *Fetcher) get(ctx context.Context, target *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", acceptHeader)
	return f.client.Do(req)
}

func (f *Fetcher) finish(ctx context.Context, result *Result, resp *http.Response) (*Result, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return result, networkError(ctx, resp.Request.URL, fmt.Errorf("reading body: %w", err))
	}

	result.StatusCode = resp.StatusCode
	result.ContentType = resp.Header.Get("Content-Type")
	result.Content = body
	result.Headers = make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) > 0 {
			result.Headers[k] = v[0]
		}
	}
	return result, nil
}

// networkError turns a transport failure into a NetworkError with a readable message.
func networkError(ctx context.Context, target *url.URL, err error) *errs.Error {
	host := target.Hostname()

	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled):
		return errs.New(errs.NetworkError, fmt.Sprintf("request to %s was cancelled", host), err)
	case errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()):
		return errs.New(errs.NetworkError, fmt.Sprintf("request to %s timed out", host), err)
	case errors.As(err, &dnsErr):
		return errs.New(errs.NetworkError, fmt.Sprintf("DNS lookup failed for %s", host), err)
	case errors.Is(err, errBlockedAddress):
		return errs.New(errs.NetworkError, fmt.Sprintf("%s resolves to a blocked address", host), err)
	default:
		return errs.New(errs.NetworkError, fmt.Sprintf("could not retrieve %s", target), err)
	}
}

// discard drains a bounded amount of a redirect body so the connection can be reused.
func discard(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	body.Close()
}
