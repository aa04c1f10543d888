// treehash.go computes a deterministic hash of an on-disk directory tree,
// so an installed node's contents can be compared without re-fetching the
// tarball. No other package calls it: `apply --validate` checks the
// store's blobs with Store.Verify instead.
//
// Adapted from the teacher's internal/hash.ComputeNARHash /
// computeNARHashGo: the same length-prefixed, sorted-entry, recursive
// write-to-hasher technique (Nix's NAR format) is kept, but simplified to
// cover only regular files and directories — this engine's install trees
// never contain symlinks or other file types at the point validation runs,
// since §4.7's Link phase only ever produces plain files and reflinks.
package apply

import (
	"crypto/sha256"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/oro-build/oro/internal/errs"
	"go.trai.ch/zerr"
)

// TreeHash returns an SRI-formatted sha256 digest of dir's file tree:
// relative path and content are both folded in, recursively, in sorted
// order, so the result only depends on the final tree shape.
func TreeHash(dir string) (string, error) {
	h := sha256.New()
	if err := writeTree(h, dir); err != nil {
		return "", zerr.Wrap(errs.ErrIO, "hashing install tree")
	}
	return "sha256-" + base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

func writeTree(w io.Writer, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if err := writeLengthPrefixed(w, []byte(e.Name())); err != nil {
			return err
		}
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if err := writeLengthPrefixed(w, []byte("directory")); err != nil {
				return err
			}
			if err := writeTree(w, path); err != nil {
				return err
			}
			continue
		}

		if err := writeLengthPrefixed(w, []byte("regular")); err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := writeLengthPrefixed(w, data); err != nil {
			return err
		}
	}
	return nil
}

// writeLengthPrefixed writes an 8-byte little-endian length followed by
// data, the same encoding the teacher's writeBytes uses for NAR strings
// (no padding here since we hash, not archive — padding only matters for
// byte-for-byte archive reproducibility, not digest stability).
func writeLengthPrefixed(w io.Writer, data []byte) error {
	length := uint64(len(data))
	lenBytes := make([]byte, 8)
	for i := 0; i < 8; i++ {
		lenBytes[i] = byte(length >> (i * 8))
	}
	if _, err := w.Write(lenBytes); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}
