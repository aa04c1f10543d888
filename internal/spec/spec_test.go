package spec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBareNameDefaultsToLatestTag(t *testing.T) {
	s, err := Parse("left-pad", "")
	require.NoError(t, err)
	require.Equal(t, KindRegistryTag, s.Kind)
	require.Equal(t, "latest", s.Tag)
}

func TestParseRegistryRange(t *testing.T) {
	s, err := Parse("left-pad@^1.3.0", "")
	require.NoError(t, err)
	require.Equal(t, KindRegistryRange, s.Kind)
	require.Equal(t, "left-pad", s.Name)
	require.Equal(t, "^1.3.0", s.Range)
}

func TestParseExactVersion(t *testing.T) {
	s, err := Parse("left-pad@1.3.0", "")
	require.NoError(t, err)
	require.Equal(t, KindRegistryVersion, s.Kind)
}

func TestParseScopedPackage(t *testing.T) {
	s, err := Parse("@babel/core@^7.0.0", "")
	require.NoError(t, err)
	require.Equal(t, "@babel/core", s.Name)
	require.Equal(t, "babel", s.Scope)
	require.Equal(t, KindRegistryRange, s.Kind)
}

func TestParseScopedBareName(t *testing.T) {
	s, err := Parse("@babel/core", "")
	require.NoError(t, err)
	require.Equal(t, KindRegistryTag, s.Kind)
	require.Equal(t, "latest", s.Tag)
}

func TestParseTag(t *testing.T) {
	s, err := Parse("left-pad@next", "")
	require.NoError(t, err)
	require.Equal(t, KindRegistryTag, s.Kind)
	require.Equal(t, "next", s.Tag)
}

func TestParseAlias(t *testing.T) {
	s, err := Parse("mypad@npm:left-pad@^1.3.0", "")
	require.NoError(t, err)
	require.Equal(t, KindAlias, s.Kind)
	require.Equal(t, "mypad", s.Name)
	require.NotNil(t, s.Target)
	require.Equal(t, KindRegistryRange, s.Target.Kind)
	require.Equal(t, "left-pad", s.Target.Name)
}

func TestParseGitURL(t *testing.T) {
	s, err := Parse("git+https://example.com/repo.git#v1.2", "")
	require.NoError(t, err)
	require.Equal(t, KindGit, s.Kind)
	require.Equal(t, "https://example.com/repo.git", s.URL)
	require.Equal(t, "v1.2", s.Committish)
}

func TestParseGitHubShorthand(t *testing.T) {
	s, err := Parse("user/repo#semver:^1", "")
	require.NoError(t, err)
	require.Equal(t, KindGit, s.Kind)
	require.Equal(t, "https://github.com/user/repo", s.URL)
	require.Equal(t, "^1", s.SemverRange)
}

func TestParseDirPath(t *testing.T) {
	s, err := Parse("file:../local-pkg", "/home/user/project")
	require.NoError(t, err)
	require.Equal(t, KindDir, s.Kind)
	require.Equal(t, "/home/user/local-pkg", s.Path)
}

func TestParseRejectsInvalidCharacters(t *testing.T) {
	_, err := Parse("Not Valid!!", "")
	require.Error(t, err)
}

func TestParseRejectsMalformedScope(t *testing.T) {
	_, err := Parse("@scope-only-no-slash@^1.0.0", "")
	require.Error(t, err)
}
