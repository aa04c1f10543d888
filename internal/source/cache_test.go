package source

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/oro-build/oro/internal/integrity"
	"github.com/oro-build/oro/internal/store"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	return st
}

func TestCachedServesFromStoreWithoutCallingFetch(t *testing.T) {
	st := openTestStore(t)
	digest, err := st.Put("pkg@1.0.0", integrity.SHA512, []byte("fixture tarball"), nil)
	require.NoError(t, err)

	fetchCalls := 0
	fetch := func(ctx context.Context) (io.ReadCloser, error) {
		fetchCalls++
		return io.NopCloser(strings.NewReader("network")), nil
	}

	rc, err := cached(st, "pkg@1.0.0", digest.String(), fetch)(context.Background())
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "fixture tarball", string(data))
	require.Equal(t, 0, fetchCalls)
}

func TestCachedPopulatesStoreOnFullDrain(t *testing.T) {
	st := openTestStore(t)
	fetchCalls := 0
	fetch := func(ctx context.Context) (io.ReadCloser, error) {
		fetchCalls++
		return io.NopCloser(strings.NewReader("network body")), nil
	}
	wrapped := cached(st, "pkg@2.0.0", "", fetch)

	rc, err := wrapped(context.Background())
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "network body", string(data))
	require.NoError(t, rc.Close())
	require.Equal(t, 1, fetchCalls)

	entry, storedRC, err := st.Get("pkg@2.0.0")
	require.NoError(t, err)
	defer storedRC.Close()
	cachedData, err := io.ReadAll(storedRC)
	require.NoError(t, err)
	require.Equal(t, "network body", string(cachedData))
	require.Equal(t, "pkg@2.0.0", entry.Key)
}

func TestCachedAbandonsPartialRead(t *testing.T) {
	st := openTestStore(t)
	fetch := func(ctx context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("network body")), nil
	}
	wrapped := cached(st, "pkg@3.0.0", "", fetch)

	rc, err := wrapped(context.Background())
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = rc.Read(buf)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	_, err = st.Find("pkg@3.0.0")
	require.Error(t, err)
}

func TestCachedWithNilStorePassesFetchThrough(t *testing.T) {
	fetch := func(ctx context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("direct")), nil
	}
	wrapped := cached(nil, "pkg@4.0.0", "", fetch)
	rc, err := wrapped(context.Background())
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "direct", string(data))
}
