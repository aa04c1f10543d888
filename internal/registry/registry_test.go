package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/oro-build/oro/internal/config"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, registryURL string) *config.Config {
	t.Helper()
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	cfg.Registry = registryURL
	return cfg
}

func TestPackumentFetchesAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"left-pad","dist-tags":{"latest":"1.3.0"},"versions":{"1.3.0":{}}}`))
	}))
	defer srv.Close()

	c := New(testConfig(t, srv.URL))
	p, err := c.Packument(context.Background(), "left-pad", "")
	require.NoError(t, err)
	require.Equal(t, "left-pad", p.Name)
	require.Equal(t, "1.3.0", p.DistTags["latest"])
}

func TestPackumentNotFoundSurfacesNotFoundError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(testConfig(t, srv.URL))
	_, err := c.Packument(context.Background(), "does-not-exist", "")
	require.Error(t, err)
}

func TestPackumentRetriesOn503ThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"flaky","dist-tags":{"latest":"1.0.0"},"versions":{}}`))
	}))
	defer srv.Close()

	c := New(testConfig(t, srv.URL))
	p, err := c.Packument(context.Background(), "flaky", "")
	require.NoError(t, err)
	require.Equal(t, "flaky", p.Name)
	require.GreaterOrEqual(t, attempts, 3)
}

func TestTarballStreamsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tarball contents"))
	}))
	defer srv.Close()

	c := New(testConfig(t, srv.URL))
	rc, err := c.Tarball(context.Background(), srv.URL+"/left-pad/-/left-pad-1.3.0.tgz")
	require.NoError(t, err)
	defer rc.Close()
}

func TestTarballUnauthorizedSurfacesAuthRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(testConfig(t, srv.URL))
	_, err := c.Tarball(context.Background(), srv.URL+"/private/-/private-1.0.0.tgz")
	require.Error(t, err)
}

// TestPackumentRevalidatesWithETagAndReusesCachedBodyOn304 confirms a second
// fetch sends If-None-Match with the first response's ETag, and that a 304
// response is served from the cached body rather than treated as an error.
func TestPackumentRevalidatesWithETagAndReusesCachedBodyOn304(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		if n == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("ETag", `"rev-1"`)
			w.Write([]byte(`{"name":"etagged","dist-tags":{"latest":"1.0.0"},"versions":{}}`))
			return
		}
		require.Equal(t, `"rev-1"`, r.Header.Get("If-None-Match"))
		w.Header().Set("ETag", `"rev-1"`)
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	c := New(testConfig(t, srv.URL))
	first, err := c.Packument(context.Background(), "etagged", "")
	require.NoError(t, err)
	require.Equal(t, "etagged", first.Name)

	second, err := c.Packument(context.Background(), "etagged", "")
	require.NoError(t, err)
	require.Equal(t, first.Name, second.Name)
	require.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

// TestPackumentConcurrentCallsForSameNameShareOneRequest verifies the
// singleflight barrier: many concurrent Packument calls for the same name
// must collapse into a single HTTP request.
func TestPackumentConcurrentCallsForSameNameShareOneRequest(t *testing.T) {
	var requests int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"shared","dist-tags":{"latest":"1.0.0"},"versions":{}}`))
	}))
	defer srv.Close()

	c := New(testConfig(t, srv.URL))

	const callers = 8
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			p, err := c.Packument(context.Background(), "shared", "")
			require.NoError(t, err)
			require.Equal(t, "shared", p.Name)
		}()
	}

	close(release)
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&requests))
}
