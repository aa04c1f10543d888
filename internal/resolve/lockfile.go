package resolve

import (
	"sort"

	"github.com/oro-build/oro/internal/lockfile"
	"github.com/oro-build/oro/internal/manifest"
)

// ToLockfile renders the closed graph as a Lockfile document: one Node per
// placed package plus a Root entry mirroring the project manifest's own
// declared dependency maps, ready for Lockfile.Save.
func (g *Graph) ToLockfile(root manifest.Manifest) *lockfile.Lockfile {
	lf := lockfile.New()
	lf.Root = lockfile.RootEntry{
		Dependencies:    copyMap(root.Dependencies),
		DevDependencies: copyMap(root.DevDependencies),
		Optional:        copyMap(root.OptionalDependencies),
		Peer:            copyMap(root.PeerDependencies),
	}

	order := bfsOrder(g)
	for _, id := range order {
		if id == g.Root {
			continue
		}
		n := &g.Nodes[id]
		lf.Nodes = append(lf.Nodes, lockfile.Node{
			Path:         n.InstallPath,
			Name:         n.Name,
			Version:      n.Version,
			Resolved:     n.Resolved.Manifest.Dist.Tarball,
			Integrity:    n.Resolved.Integrity,
			Dependencies: childVersions(g, id),
		})
	}
	return lf
}

func childVersions(g *Graph, id NodeID) map[string]string {
	node := &g.Nodes[id]
	out := make(map[string]string, len(node.Children))
	names := make([]string, 0, len(node.Children))
	for name := range node.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		child := node.Children[name]
		out[name] = g.Nodes[child].Version
	}
	return out
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
