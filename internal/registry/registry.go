// Package registry is an npm-style registry HTTP client: fetching
// packuments and tarballs, retrying transient failures, and injecting
// per-origin credentials.
//
// Grounded on the teacher's internal/fetch.Fetcher (Fetch/getModuleInfo/
// downloadFromURL): the same shape of "build a URL, issue a request with an
// auth-aware http.Client, read the body" pipeline, generalized from Go
// module proxy endpoints to npm registry packument/tarball endpoints. The
// authTransport pattern (a RoundTripper wrapping http.DefaultTransport to
// inject credentials) is kept nearly verbatim, switched from HTTP Basic
// Auth to npm's bearer-token convention.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/oro-build/oro/internal/config"
	"github.com/oro-build/oro/internal/errs"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"go.trai.ch/zerr"
)

const (
	maxRetries   = 4
	retryBaseDur = 250 * time.Millisecond
	maxInflight  = 16
)

// DistTag maps a tag name ("latest", "next", ...) to a version.
type DistTag = string

// Packument is the registry's package-level metadata document.
type Packument struct {
	Name     string                     `json:"name"`
	DistTags map[string]DistTag         `json:"dist-tags"`
	Versions map[string]json.RawMessage `json:"versions"`
}

// Client fetches packuments and tarballs from npm-compatible registries.
type Client struct {
	HTTP *http.Client
	cfg  *config.Config

	sema *semaphore.Weighted

	// group collapses concurrent Packument calls for the same name into a
	// single in-flight request (spec §5's "per-key one-shot barrier"),
	// grounded on traiproject-same's env_factory.go use of
	// golang.org/x/sync/singleflight to prevent cache stampedes.
	group singleflight.Group

	mu         sync.Mutex
	packuments map[string]packumentCacheEntry
}

// packumentCacheEntry remembers the ETag a packument was last served with,
// so a later fetch can send If-None-Match and skip the download entirely
// on a 304 (spec §4.3 "respect ETag ... If-None-Match revalidation").
type packumentCacheEntry struct {
	etag string
	body []byte
}

// New builds a Client bound to cfg for credential and proxy lookups.
func New(cfg *config.Config) *Client {
	return &Client{
		HTTP:       &http.Client{Timeout: 60 * time.Second},
		cfg:        cfg,
		sema:       semaphore.NewWeighted(maxInflight),
		packuments: map[string]packumentCacheEntry{},
	}
}

// authTransport injects a bearer token for requests to a matching origin,
// mirroring the teacher's authTransport but keyed on npm's token scheme.
type authTransport struct {
	base   http.RoundTripper
	token  string
	origin string // scheme://host the token belongs to
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.token != "" && req.URL.Scheme+"://"+req.URL.Host == t.origin {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	return t.base.RoundTrip(req)
}

func (c *Client) clientFor(origin string) *http.Client {
	token, ok := c.cfg.AuthToken(origin)
	if !ok {
		return c.HTTP
	}
	return &http.Client{
		Timeout:   c.HTTP.Timeout,
		Transport: &authTransport{base: http.DefaultTransport, token: token, origin: originOf(origin)},
	}
}

// Packument fetches and decodes the packument for name from the registry
// configured for its scope. Concurrent calls for the same name collapse
// into a single in-flight request, and a cached ETag lets a revalidation
// request skip the download on a 304.
func (c *Client) Packument(ctx context.Context, name, scope string) (*Packument, error) {
	base := c.cfg.RegistryForScope(scope)
	reqURL := strings.TrimSuffix(base, "/") + "/" + url.PathEscape(name)
	if strings.HasPrefix(name, "@") {
		// Scoped names are requested as "@scope%2fname", not path-joined.
		scopeName := strings.TrimPrefix(name, "@")
		reqURL = strings.TrimSuffix(base, "/") + "/@" + url.PathEscape(scopeName)
	}

	v, err, _ := c.group.Do(base+"|"+name, func() (any, error) {
		c.mu.Lock()
		cached := c.packuments[name]
		c.mu.Unlock()

		var body []byte
		err := c.doWithRetry(ctx, base, func() error {
			data, status, etag, err := c.getRevalidating(ctx, base, reqURL, cached.etag)
			if err != nil {
				return err
			}
			switch {
			case status == http.StatusNotModified:
				body = cached.body
				return nil
			case status == http.StatusNotFound:
				return zerr.With(errs.ErrNotFound, "package", name)
			case status == http.StatusOK:
				body = data
				if etag != "" {
					c.mu.Lock()
					c.packuments[name] = packumentCacheEntry{etag: etag, body: data}
					c.mu.Unlock()
				}
				return nil
			default:
				return retryableStatus(status)
			}
		})
		if err != nil {
			return nil, err
		}

		var p Packument
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, zerr.Wrap(errs.ErrSpecParse, "decoding packument")
		}
		return &p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Packument), nil
}

// Ping HEADs the configured registry to confirm it is reachable.
func (c *Client) Ping(ctx context.Context) error {
	base := c.cfg.Registry
	return c.doWithRetry(ctx, base, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, base, nil)
		if err != nil {
			return zerr.Wrap(errs.ErrNetwork, "building ping request")
		}
		resp, err := c.clientFor(base).Do(req)
		if err != nil {
			return zerr.Wrap(errs.ErrNetwork, "pinging registry")
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return retryableStatus(resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return zerr.With(errs.ErrNetwork, "status", resp.StatusCode)
		}
		return nil
	})
}

// Tarball opens a streaming read of the tarball at tarballURL.
func (c *Client) Tarball(ctx context.Context, tarballURL string) (io.ReadCloser, error) {
	if err := c.sema.Acquire(ctx, 1); err != nil {
		return nil, zerr.Wrap(errs.ErrCancelled, "acquiring download slot")
	}
	defer c.sema.Release(1)

	origin := originOf(tarballURL)
	var rc io.ReadCloser
	err := c.doWithRetry(ctx, origin, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, tarballURL, nil)
		if err != nil {
			return zerr.Wrap(errs.ErrNetwork, "building tarball request")
		}
		resp, err := c.clientFor(origin).Do(req)
		if err != nil {
			return zerr.Wrap(errs.ErrNetwork, "fetching tarball")
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			resp.Body.Close()
			return zerr.With(errs.ErrAuthRequired, "url", tarballURL)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return retryableStatus(resp.StatusCode)
		}
		rc = resp.Body
		return nil
	})
	return rc, err
}

// getRevalidating issues a GET, sending If-None-Match when ifNoneMatch is
// non-empty. It returns the body (empty on a 304), the status code, and the
// response's ETag header (if any) so the caller can update its cache.
func (c *Client) getRevalidating(ctx context.Context, origin, reqURL, ifNoneMatch string) ([]byte, int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, "", zerr.Wrap(errs.ErrNetwork, "building request")
	}
	req.Header.Set("Accept", "application/vnd.npm.install-v1+json, application/json")
	if ifNoneMatch != "" {
		req.Header.Set("If-None-Match", ifNoneMatch)
	}

	resp, err := c.clientFor(origin).Do(req)
	if err != nil {
		return nil, 0, "", zerr.Wrap(errs.ErrNetwork, fmt.Sprintf("requesting %s", reqURL))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, resp.Header.Get("ETag"), nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, "", zerr.Wrap(errs.ErrNetwork, "reading response body")
	}
	return data, resp.StatusCode, resp.Header.Get("ETag"), nil
}

// retryableError marks failures the retry loop should retry rather than
// surface immediately (5xx and 429 statuses; transport-level failures are
// plain ErrNetwork errors, which doWithRetry retries only once).
type retryableError struct{ err error }

func (r retryableError) Error() string { return r.err.Error() }
func (r retryableError) Unwrap() error { return r.err }

func retryableStatus(status int) error {
	if status == http.StatusTooManyRequests || status >= 500 {
		return retryableError{zerr.With(errs.ErrNetwork, "status", status)}
	}
	return zerr.With(errs.ErrNetwork, "status", status)
}

// doWithRetry runs fn, retrying with exponential backoff on retryableError
// up to maxRetries times (maxRetries+1 attempts in all); any other
// ErrNetwork failure is retried once.
func (c *Client) doWithRetry(ctx context.Context, origin string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * retryBaseDur
			select {
			case <-ctx.Done():
				return zerr.Wrap(errs.ErrCancelled, "retry aborted")
			case <-time.After(delay):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if _, retryable := err.(retryableError); retryable {
			continue
		}
		if errors.Is(err, errs.ErrNetwork) && attempt == 0 {
			// Transport-level failures (DNS, connection refused) get one
			// unconditional retry before surfacing.
			continue
		}
		return err
	}
	return lastErr
}

func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}
