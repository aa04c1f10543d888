package semver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCaretRange(t *testing.T) {
	r, err := ParseRange("^1.2.3")
	require.NoError(t, err)

	require.True(t, r.Satisfies("1.2.3"))
	require.True(t, r.Satisfies("1.9.0"))
	require.False(t, r.Satisfies("2.0.0"))
	require.False(t, r.Satisfies("1.2.2"))
}

func TestTildeRange(t *testing.T) {
	r, err := ParseRange("~1.2.3")
	require.NoError(t, err)

	require.True(t, r.Satisfies("1.2.9"))
	require.False(t, r.Satisfies("1.3.0"))
}

func TestWildcardRange(t *testing.T) {
	r, err := ParseRange("*")
	require.NoError(t, err)
	require.True(t, r.Satisfies("0.0.1"))
	require.True(t, r.Satisfies("9.9.9"))
}

func TestPartialRange(t *testing.T) {
	r, err := ParseRange("1.3")
	require.NoError(t, err)
	require.True(t, r.Satisfies("1.3.0"))
	require.True(t, r.Satisfies("1.3.9"))
	require.False(t, r.Satisfies("1.4.0"))
}

func TestComparatorSet(t *testing.T) {
	r, err := ParseRange(">=2.0.0 <3.0.0")
	require.NoError(t, err)
	require.True(t, r.Satisfies("2.5.0"))
	require.False(t, r.Satisfies("3.0.0"))
}

func TestOrJoinedSets(t *testing.T) {
	r, err := ParseRange("^1.0.0 || ^2.0.0")
	require.NoError(t, err)
	require.True(t, r.Satisfies("1.5.0"))
	require.True(t, r.Satisfies("2.5.0"))
	require.False(t, r.Satisfies("3.0.0"))
}

func TestHyphenRange(t *testing.T) {
	r, err := ParseRange("1.2.3 - 2.3.4")
	require.NoError(t, err)
	require.True(t, r.Satisfies("1.2.3"))
	require.True(t, r.Satisfies("2.3.4"))
	require.False(t, r.Satisfies("2.3.5"))
}

func TestPrereleaseExcludedUnlessRangeNamesIt(t *testing.T) {
	r, err := ParseRange("^1.0.0")
	require.NoError(t, err)
	require.False(t, r.Satisfies("1.5.0-beta.1"))

	r2, err := ParseRange(">=1.5.0-beta.1 <1.6.0")
	require.NoError(t, err)
	require.True(t, r2.Satisfies("1.5.0-beta.1"))
}

func TestMaxSatisfying(t *testing.T) {
	r, err := ParseRange("^1.0.0")
	require.NoError(t, err)

	best, ok := MaxSatisfying([]string{"0.9.0", "1.0.0", "1.5.2", "2.0.0"}, r)
	require.True(t, ok)
	require.Equal(t, "1.5.2", best)
}
