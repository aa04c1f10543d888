package integrity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{name: "single sha512", in: "sha512-Zm9vYmFy"},
		{name: "multiple algorithms", in: "sha256-Zm9v sha512-YmFy"},
		{name: "empty", in: "", wantErr: true},
		{name: "malformed token", in: "sha256", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotEmpty(t, got.Entries)
		})
	}
}

func TestPreferredRanksHighestAlgorithm(t *testing.T) {
	i, err := Parse("sha1-AAAA sha512-BBBB sha256-CCCC")
	require.NoError(t, err)

	preferred, ok := i.Preferred()
	require.True(t, ok)
	require.Equal(t, SHA512, preferred.Algorithm)
}

func TestMatchSharesEntry(t *testing.T) {
	a, err := Parse("sha256-AAAA sha512-BBBB")
	require.NoError(t, err)
	b, err := Parse("sha512-BBBB sha1-CCCC")
	require.NoError(t, err)

	require.True(t, a.Match(b))

	c, err := Parse("sha1-ZZZZ")
	require.NoError(t, err)
	require.False(t, a.Match(c))
}

func TestFromBytesRoundTrip(t *testing.T) {
	data := []byte("hello world")
	i, err := FromBytes(SHA512, data)
	require.NoError(t, err)

	r, err := NewVerifyingReader(strings.NewReader(string(data)), i)
	require.NoError(t, err)

	buf := make([]byte, 4096)
	for {
		n, rerr := r.Read(buf)
		_ = n
		if rerr != nil {
			break
		}
	}
	require.NoError(t, r.Verify())
}

func TestVerifyingReaderDetectsMismatch(t *testing.T) {
	expected, err := Parse("sha256-bm90dGhlcmlnaHRkaWdlc3Q=")
	require.NoError(t, err)

	r, err := NewVerifyingReader(strings.NewReader("actual content"), expected)
	require.NoError(t, err)

	buf := make([]byte, 4096)
	for {
		_, rerr := r.Read(buf)
		if rerr != nil {
			break
		}
	}
	require.Error(t, r.Verify())
}
