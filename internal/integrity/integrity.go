// Package integrity implements subresource-integrity (SSRI) parsing,
// comparison and stream verification.
//
// It generalizes the teacher's single-algorithm internal/hash/convert.go
// (ParseSRI/ValidateSRI) into the full ordered multi-algorithm type the
// spec requires: an Integrity value is an ordered set of (algorithm,
// base64-digest) entries, serialized as space-separated "alg-b64" tokens.
package integrity

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"hash"
	"io"
	"sort"
	"strings"

	"github.com/oro-build/oro/internal/errs"
	"go.trai.ch/zerr"
)

// Algorithm is a supported hash algorithm name.
type Algorithm string

const (
	SHA512 Algorithm = "sha512"
	SHA384 Algorithm = "sha384"
	SHA256 Algorithm = "sha256"
	SHA1   Algorithm = "sha1"
)

// rank returns the preference rank of an algorithm; higher is preferred.
func (a Algorithm) rank() int {
	switch a {
	case SHA512:
		return 4
	case SHA384:
		return 3
	case SHA256:
		return 2
	case SHA1:
		return 1
	default:
		return 0
	}
}

func (a Algorithm) newHash() (hash.Hash, error) {
	switch a {
	case SHA512:
		return sha512.New(), nil
	case SHA384:
		return sha512.New384(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA1:
		return sha1.New(), nil
	default:
		return nil, errs.ErrSpecParse
	}
}

// Entry is a single (algorithm, digest) pair.
type Entry struct {
	Algorithm Algorithm
	Digest    string // base64-encoded
}

func (e Entry) String() string {
	return string(e.Algorithm) + "-" + e.Digest
}

// Integrity is an ordered set of Entry, preferred algorithm first.
type Integrity struct {
	Entries []Entry
}

// Parse parses one or more space-separated "alg-b64" tokens.
func Parse(s string) (Integrity, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Integrity{}, zerr.Wrap(errs.ErrSpecParse, "empty integrity string")
	}
	var out Integrity
	for _, f := range fields {
		algo, digest, ok := strings.Cut(f, "-")
		if !ok || digest == "" {
			return Integrity{}, zerr.With(errs.ErrSpecParse, "token", f)
		}
		out.Entries = append(out.Entries, Entry{Algorithm: Algorithm(algo), Digest: digest})
	}
	out.sort()
	return out, nil
}

// sort orders entries by algorithm preference, highest rank first.
func (i *Integrity) sort() {
	sort.SliceStable(i.Entries, func(a, b int) bool {
		return i.Entries[a].Algorithm.rank() > i.Entries[b].Algorithm.rank()
	})
}

// Preferred returns the highest-ranked entry, or false if empty.
func (i Integrity) Preferred() (Entry, bool) {
	if len(i.Entries) == 0 {
		return Entry{}, false
	}
	return i.Entries[0], true
}

// String serializes the integrity back to "alg-b64 alg-b64 ..." form.
func (i Integrity) String() string {
	parts := make([]string, len(i.Entries))
	for idx, e := range i.Entries {
		parts[idx] = e.String()
	}
	return strings.Join(parts, " ")
}

// IsZero reports whether this Integrity carries no entries.
func (i Integrity) IsZero() bool {
	return len(i.Entries) == 0
}

// Match reports whether two Integrity values share any (algorithm, digest) entry.
func (i Integrity) Match(other Integrity) bool {
	for _, a := range i.Entries {
		for _, b := range other.Entries {
			if a.Algorithm == b.Algorithm && a.Digest == b.Digest {
				return true
			}
		}
	}
	return false
}

// FromBytes computes the Integrity of data using the given algorithm.
func FromBytes(algo Algorithm, data []byte) (Integrity, error) {
	h, err := algo.newHash()
	if err != nil {
		return Integrity{}, err
	}
	h.Write(data)
	return Integrity{Entries: []Entry{{Algorithm: algo, Digest: base64.StdEncoding.EncodeToString(h.Sum(nil))}}}, nil
}

// VerifyingReader wraps an io.Reader, computing every algorithm requested by
// expected in a single pass. Call Verify after fully draining the reader
// (EOF); it returns errs.ErrIntegrityMismatch if no computed digest matches.
type VerifyingReader struct {
	r        io.Reader
	expected Integrity
	hashers  map[Algorithm]hash.Hash
}

// NewVerifyingReader builds a VerifyingReader for the given expected integrity.
func NewVerifyingReader(r io.Reader, expected Integrity) (*VerifyingReader, error) {
	hashers := make(map[Algorithm]hash.Hash, len(expected.Entries))
	for _, e := range expected.Entries {
		if _, ok := hashers[e.Algorithm]; ok {
			continue
		}
		h, err := e.Algorithm.newHash()
		if err != nil {
			return nil, err
		}
		hashers[e.Algorithm] = h
	}
	return &VerifyingReader{r: r, expected: expected, hashers: hashers}, nil
}

func (v *VerifyingReader) Read(p []byte) (int, error) {
	n, err := v.r.Read(p)
	if n > 0 {
		for _, h := range v.hashers {
			h.Write(p[:n])
		}
	}
	return n, err
}

// Actual returns the Integrity computed so far over every requested algorithm.
func (v *VerifyingReader) Actual() Integrity {
	var out Integrity
	for algo, h := range v.hashers {
		out.Entries = append(out.Entries, Entry{Algorithm: algo, Digest: base64.StdEncoding.EncodeToString(h.Sum(nil))})
	}
	out.sort()
	return out
}

// Verify must be called after the reader has been fully drained (EOF). It
// fails with errs.ErrIntegrityMismatch if no computed digest matches expected.
func (v *VerifyingReader) Verify() error {
	actual := v.Actual()
	if !actual.Match(v.expected) {
		return zerrMismatch(v.expected, actual)
	}
	return nil
}

func zerrMismatch(expected, actual Integrity) error {
	return zerr.With(errs.ErrIntegrityMismatch, "expected", expected.String(), "actual", actual.String())
}
