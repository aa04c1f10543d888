package lockfile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleLockfile() *Lockfile {
	lf := New()
	lf.Root.Dependencies = map[string]string{"left-pad": "^1.3.0"}
	lf.Nodes = []Node{
		{
			Path:      "node_modules/left-pad",
			Name:      "left-pad",
			Version:   "1.3.0",
			Resolved:  "https://registry.npmjs.org/left-pad/-/left-pad-1.3.0.tgz",
			Integrity: "sha512-abc123",
			Dependencies: map[string]string{},
		},
	}
	return lf
}

func TestRenderThenParseRoundTrips(t *testing.T) {
	lf := sampleLockfile()
	text := lf.Render()

	parsed, err := Parse([]byte(text))
	require.NoError(t, err)
	require.Equal(t, lf.Version, parsed.Version)
	require.Equal(t, lf.Root.Dependencies, parsed.Root.Dependencies)
	require.Len(t, parsed.Nodes, 1)
	require.Equal(t, lf.Nodes[0].Name, parsed.Nodes[0].Name)
	require.Equal(t, lf.Nodes[0].Integrity, parsed.Nodes[0].Integrity)
}

func TestRenderIsDeterministic(t *testing.T) {
	lf := sampleLockfile()
	lf.Root.Dependencies["zzz-pkg"] = "^2.0.0"
	lf.Root.Dependencies["aaa-pkg"] = "^1.0.0"

	a := lf.Render()
	b := lf.Render()
	require.Equal(t, a, b)
}

func TestParseIgnoresUnknownFields(t *testing.T) {
	text := `version 1
root {
    dependencies {}
    devDependencies {}
    optional {}
    peer {}
}
node "node_modules/pkg" {
    name "pkg"
    futureField "ignored"
    futureBlock { nested "value" }
}
`
	lf, err := Parse([]byte(text))
	require.NoError(t, err)
	require.Len(t, lf.Nodes, 1)
	require.Equal(t, "pkg", lf.Nodes[0].Name)
}

func TestParseRejectsUnterminatedString(t *testing.T) {
	_, err := Parse([]byte(`version 1
node "unterminated {
`))
	require.Error(t, err)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	lf := sampleLockfile()
	require.NoError(t, lf.Save(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, lf.Nodes[0].Path, loaded.Nodes[0].Path)
}

func TestRenderRawProducesYAML(t *testing.T) {
	lf := sampleLockfile()
	data, err := lf.RenderRaw()
	require.NoError(t, err)
	require.Contains(t, string(data), "version:")
}
