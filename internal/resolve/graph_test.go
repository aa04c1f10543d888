package resolve

import (
	"context"
	"testing"

	"github.com/oro-build/oro/internal/manifest"
	"github.com/oro-build/oro/internal/source"
	"github.com/oro-build/oro/internal/spec"
	"github.com/stretchr/testify/require"
)

// fakeSource resolves specs against a fixed in-memory package universe,
// keyed by name, so resolver tests never touch the network.
type fakeSource struct {
	packages map[string]manifest.Manifest // name -> manifest (single version per name, for simplicity)
}

func (f *fakeSource) Resolve(ctx context.Context, s spec.Spec) (source.Resolved, error) {
	name := s.Name
	if s.Kind == spec.KindAlias {
		return f.Resolve(ctx, *s.Target)
	}
	m, ok := f.packages[name]
	if !ok {
		return source.Resolved{}, errNotFound(name)
	}
	return source.Resolved{Name: name, Version: m.Version, Manifest: m}, nil
}

// fakeVersionedSource resolves a name to one of several versions, keyed by
// the exact version a dependent requested, letting tests model two
// different consumers requiring two different versions of the same name.
type fakeVersionedSource struct {
	versions map[string]map[string]manifest.Manifest // name -> version -> manifest
}

func (f *fakeVersionedSource) Resolve(ctx context.Context, s spec.Spec) (source.Resolved, error) {
	if s.Kind == spec.KindAlias {
		return f.Resolve(ctx, *s.Target)
	}
	byVersion, ok := f.versions[s.Name]
	if !ok {
		return source.Resolved{}, errNotFound(s.Name)
	}
	if s.Kind == spec.KindRegistryVersion {
		m, ok := byVersion[s.Range]
		if !ok {
			return source.Resolved{}, errNotFound(s.Name)
		}
		return source.Resolved{Name: s.Name, Version: m.Version, Manifest: m}, nil
	}
	for _, m := range byVersion {
		return source.Resolved{Name: s.Name, Version: m.Version, Manifest: m}, nil
	}
	return source.Resolved{}, errNotFound(s.Name)
}

type notFoundErr struct{ name string }

func (e notFoundErr) Error() string { return "not found: " + e.name }

func errNotFound(name string) error { return notFoundErr{name} }

func TestResolveSingleDependencyNoTransitive(t *testing.T) {
	fs := &fakeSource{packages: map[string]manifest.Manifest{
		"left-pad": {Name: "left-pad", Version: "1.3.0"},
	}}
	r := New(fs, Options{})

	s, err := spec.Parse("left-pad@^1.3.0", "")
	require.NoError(t, err)

	g, err := r.Resolve(context.Background(), "", []Direct{{Spec: s, Kind: DepProd}})
	require.NoError(t, err)
	require.Len(t, g.Nodes, 2) // root + left-pad
	require.Equal(t, "node_modules/left-pad", g.Nodes[1].InstallPath)
}

func TestResolveTransitiveDependenciesAreHoisted(t *testing.T) {
	fs := &fakeSource{packages: map[string]manifest.Manifest{
		"a": {Name: "a", Version: "1.0.0", Dependencies: map[string]string{"b": "^1.0.0"}},
		"b": {Name: "b", Version: "1.0.0"},
	}}
	r := New(fs, Options{})

	s, err := spec.Parse("a@^1.0.0", "")
	require.NoError(t, err)

	g, err := r.Resolve(context.Background(), "", []Direct{{Spec: s, Kind: DepProd}})
	require.NoError(t, err)

	var bPath string
	for _, n := range g.Nodes {
		if n.Name == "b" {
			bPath = n.InstallPath
		}
	}
	require.Equal(t, "node_modules/b", bPath)
}

func TestResolveOptionalFailureIsNonFatal(t *testing.T) {
	fs := &fakeSource{packages: map[string]manifest.Manifest{}}
	r := New(fs, Options{})

	s, err := spec.Parse("missing-pkg@^1.0.0", "")
	require.NoError(t, err)

	g, err := r.Resolve(context.Background(), "", []Direct{{Spec: s, Kind: DepOptional}})
	require.NoError(t, err)
	require.Len(t, g.Nodes, 1) // only root; optional failure pruned
}

func TestResolveMissingRequiredDependencyFails(t *testing.T) {
	fs := &fakeSource{packages: map[string]manifest.Manifest{}}
	r := New(fs, Options{})

	s, err := spec.Parse("missing-pkg@^1.0.0", "")
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), "", []Direct{{Spec: s, Kind: DepProd}})
	require.Error(t, err)
}

func TestResolveDeterministicInstallPaths(t *testing.T) {
	fs := &fakeSource{packages: map[string]manifest.Manifest{
		"a": {Name: "a", Version: "1.0.0"},
		"b": {Name: "b", Version: "1.0.0"},
	}}
	r := New(fs, Options{})

	sa, _ := spec.Parse("a@^1.0.0", "")
	sb, _ := spec.Parse("b@^1.0.0", "")

	g1, err := r.Resolve(context.Background(), "", []Direct{{Spec: sa, Kind: DepProd}, {Spec: sb, Kind: DepProd}})
	require.NoError(t, err)
	g2, err := r.Resolve(context.Background(), "", []Direct{{Spec: sa, Kind: DepProd}, {Spec: sb, Kind: DepProd}})
	require.NoError(t, err)

	require.Equal(t, len(g1.Nodes), len(g2.Nodes))
	for i := range g1.Nodes {
		require.Equal(t, g1.Nodes[i].InstallPath, g2.Nodes[i].InstallPath)
	}
}

// TestResolveConflictingVersionsNestDeeper is spec §8 scenario S3 verbatim:
// root depends on a and b; a depends on c@1.0.0, b depends on c@2.0.0. Only
// one version of c can occupy node_modules/c, so the other must be
// nested under whichever consumer's own node_modules requires it.
func TestResolveConflictingVersionsNestDeeper(t *testing.T) {
	fs := &fakeVersionedSource{versions: map[string]map[string]manifest.Manifest{
		"a": {"1.0.0": {Name: "a", Version: "1.0.0", Dependencies: map[string]string{"c": "1.0.0"}}},
		"b": {"1.0.0": {Name: "b", Version: "1.0.0", Dependencies: map[string]string{"c": "2.0.0"}}},
		"c": {
			"1.0.0": {Name: "c", Version: "1.0.0"},
			"2.0.0": {Name: "c", Version: "2.0.0"},
		},
	}}
	r := New(fs, Options{})

	sa, err := spec.Parse("a@^1.0.0", "")
	require.NoError(t, err)
	sb, err := spec.Parse("b@^1.0.0", "")
	require.NoError(t, err)

	g, err := r.Resolve(context.Background(), "", []Direct{{Spec: sa, Kind: DepProd}, {Spec: sb, Kind: DepProd}})
	require.NoError(t, err)

	paths := map[string]string{} // "name@version" -> InstallPath
	for _, n := range g.Nodes {
		if n.Name == "c" {
			paths[n.Name+"@"+n.Version] = n.InstallPath
		}
	}
	require.Equal(t, "node_modules/c", paths["c@1.0.0"])
	require.Equal(t, "node_modules/b/node_modules/c", paths["c@2.0.0"])
	require.NotEqual(t, paths["c@1.0.0"], paths["c@2.0.0"])
}

// TestResolveSameVersionShadowedByDifferentVersionGetsOwnNode covers a
// dependent whose ancestor chain already has a *different* version of the
// same name blocking it: root deps a and b; a deps x@1.0.0; b deps x@2.0.0
// and y; y deps x@1.0.0. y's request for x@1.0.0 matches a node already
// placed (a's x@1.0.0), but FindByName from y's parent (b) resolves "x" to
// b's own x@2.0.0 child first — so reusing a's node would wire y's edge to
// an identity not actually reachable from y's ancestor chain. It must get
// its own node instead of being silently reused.
func TestResolveSameVersionShadowedByDifferentVersionGetsOwnNode(t *testing.T) {
	fs := &fakeVersionedSource{versions: map[string]map[string]manifest.Manifest{
		"a": {"1.0.0": {Name: "a", Version: "1.0.0", Dependencies: map[string]string{"x": "1.0.0"}}},
		"b": {"1.0.0": {Name: "b", Version: "1.0.0", Dependencies: map[string]string{"x": "2.0.0", "y": "1.0.0"}}},
		"y": {"1.0.0": {Name: "y", Version: "1.0.0", Dependencies: map[string]string{"x": "1.0.0"}}},
		"x": {
			"1.0.0": {Name: "x", Version: "1.0.0"},
			"2.0.0": {Name: "x", Version: "2.0.0"},
		},
	}}
	r := New(fs, Options{})

	sa, err := spec.Parse("a@^1.0.0", "")
	require.NoError(t, err)
	sb, err := spec.Parse("b@^1.0.0", "")
	require.NoError(t, err)

	g, err := r.Resolve(context.Background(), "", []Direct{{Spec: sa, Kind: DepProd}, {Spec: sb, Kind: DepProd}})
	require.NoError(t, err)

	var x1Nodes []NodeID
	for i, n := range g.Nodes {
		if n.Name == "x" && n.Version == "1.0.0" {
			x1Nodes = append(x1Nodes, NodeID(i))
		}
	}
	require.Len(t, x1Nodes, 2, "a's and y's x@1.0.0 must be distinct nodes, not reused across the x@2.0.0 shadow")

	var yID NodeID
	for i, n := range g.Nodes {
		if n.Name == "y" {
			yID = NodeID(i)
		}
	}
	yNode := g.Nodes[yID]
	var yChildX NodeID
	for _, c := range x1Nodes {
		if _, ok := yNode.Edges[c]; ok {
			yChildX = c
		}
	}
	require.NotZero(t, yChildX)
}
