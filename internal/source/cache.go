// cache.go wires internal/store's content-addressable cache into every
// Source's Fetch, implementing spec §4.4's role as the layer between the
// network and the layout applier: a tarball already in the store never
// triggers a second network request (spec §8 scenario S4).
package source

import (
	"context"
	"io"

	"github.com/oro-build/oro/internal/integrity"
	"github.com/oro-build/oro/internal/store"
)

// cached wraps fetch so that, when st is non-nil, a blob addressed by sri
// (if known and already present) is served straight from the store, and a
// network fetch is mirrored into the store under key as it streams to the
// caller.
func cached(st *store.Store, key, sri string, fetch func(context.Context) (io.ReadCloser, error)) func(context.Context) (io.ReadCloser, error) {
	if st == nil {
		return fetch
	}
	return func(ctx context.Context) (io.ReadCloser, error) {
		if sri != "" {
			if rc, err := st.GetByIntegrity(sri); err == nil {
				return rc, nil
			}
		}

		rc, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		w, err := st.NewWriter(key, integrity.SHA512, nil)
		if err != nil {
			// A cache we can't write to still lets the install proceed;
			// the caller just re-fetches next time.
			return rc, nil
		}
		return &cachingReader{rc: rc, w: w}, nil
	}
}

// cachingReader tees everything a consumer reads into the store's writer,
// committing the blob only if the stream was drained to completion and
// abandoning the partial write otherwise (a cancelled or failed extract
// must never leave a corrupt entry behind).
type cachingReader struct {
	rc       io.ReadCloser
	w        *store.Writer
	eof      bool
	writeErr error
}

func (c *cachingReader) Read(p []byte) (int, error) {
	n, err := c.rc.Read(p)
	if n > 0 && c.writeErr == nil {
		if _, werr := c.w.Write(p[:n]); werr != nil {
			c.writeErr = werr
		}
	}
	if err == io.EOF {
		c.eof = true
	}
	return n, err
}

func (c *cachingReader) Close() error {
	if c.eof && c.writeErr == nil {
		c.w.Commit()
	} else {
		c.w.Abandon()
	}
	return c.rc.Close()
}
