// Package resolve builds a ResolutionGraph from a root manifest: closing
// over every dependency edge, reusing nodes per (name, resolution) where
// placement allows it, then computing each node's install path under
// hoisted or isolated placement.
//
// The graph shape — a node arena plus typed edges recording the originating
// spec and dependency kind — is grounded on
// original_source/crates/node-maintainer/src/{graph.rs,edge.rs}: Rust's
// petgraph::StableGraph<Node, Edge> indexed by NodeIndex becomes a plain Go
// slice-backed arena indexed by NodeID, since the retrieved pack carries no
// graph library (gonum/graph never appears in go.mod requires across the
// pack) — recorded in DESIGN.md as a stdlib-shaped exception.
package resolve

import (
	"context"
	"sort"
	"strings"

	"github.com/oro-build/oro/internal/errs"
	"github.com/oro-build/oro/internal/lockfile"
	"github.com/oro-build/oro/internal/log"
	"github.com/oro-build/oro/internal/semver"
	"github.com/oro-build/oro/internal/source"
	"github.com/oro-build/oro/internal/spec"
	"golang.org/x/sync/errgroup"
	"go.trai.ch/zerr"
)

// DepType mirrors the teacher corpus's dependency-kind tagging
// (node-maintainer's DepType enum), used to decide optional-pruning and
// lifecycle/peer handling downstream.
type DepType int

const (
	DepProd DepType = iota
	DepDev
	DepOptional
	DepPeer
)

// NodeID indexes into Graph.Nodes.
type NodeID int

// Edge records why a child node exists under a parent: the spec that was
// resolved and the dependency kind it came from.
type Edge struct {
	Requested spec.Spec
	Kind      DepType
}

// Node is one resolved package identity in the graph.
type Node struct {
	Name       string
	Version    string
	Resolved   source.Resolved
	Parent     NodeID
	HasParent  bool
	Children   map[string]NodeID // name -> child, in the placement this node hosts
	Edges      map[NodeID]Edge   // child NodeID -> edge metadata
	InstallPath string
	Optional   bool // true if the edge that created this node was an optional one; descendants of an optional node are not marked
}

// Graph is the closed dependency graph plus computed install paths.
type Graph struct {
	Root  NodeID
	Nodes []Node
}

func (g *Graph) newNode(name string) NodeID {
	id := NodeID(len(g.Nodes))
	g.Nodes = append(g.Nodes, Node{
		Name:     name,
		Children: map[string]NodeID{},
		Edges:    map[NodeID]Edge{},
	})
	return id
}

// FindByName walks parent's ancestor chain looking for a visible child
// named name, the same shadowing rule as node-maintainer's
// Graph::find_by_name.
func (g *Graph) FindByName(parent NodeID, name string) (NodeID, bool) {
	cur := parent
	for {
		node := &g.Nodes[cur]
		if child, ok := node.Children[name]; ok {
			return child, true
		}
		if !node.HasParent {
			return 0, false
		}
		cur = node.Parent
	}
}

// task is one item of resolver work: resolve spec on behalf of parent.
type task struct {
	parent NodeID
	s      spec.Spec
	kind   DepType
	optional bool
}

// Options configures a resolve run.
type Options struct {
	Isolated bool
	Locked   bool
	Lock     *lockfile.Lockfile
	Logger   *log.Logger
}

// Resolver closes the dependency graph against a source.Source (normally a
// *source.Router; tests substitute a fake to avoid network access).
type Resolver struct {
	router source.Source
	opts   Options
}

func New(router source.Source, opts Options) *Resolver {
	return &Resolver{router: router, opts: opts}
}

// Direct is one declared dependency of the root manifest.
type Direct struct {
	Spec spec.Spec
	Kind DepType
}

// Resolve closes the graph starting from the root manifest's declared
// dependencies, then computes install paths.
func (r *Resolver) Resolve(ctx context.Context, rootDir string, directDeps []Direct) (*Graph, error) {
	g := &Graph{}
	root := g.newNode("")
	g.Root = root

	queue := make([]task, 0, len(directDeps))
	for _, d := range directDeps {
		queue = append(queue, task{parent: root, s: d.Spec, kind: d.Kind})
	}
	sortTasks(queue)

	seenByVersion := map[string]NodeID{} // "name@version" -> node, for exact-version reuse

	for len(queue) > 0 {
		batch := queue
		queue = nil

		results := make([]resolvedTask, len(batch))
		eg, egCtx := errgroup.WithContext(ctx)
		for i, t := range batch {
			i, t := i, t
			eg.Go(func() error {
				resolved, err := r.resolveTask(egCtx, t)
				if err != nil {
					if t.kind == DepOptional {
						if r.opts.Logger != nil {
							r.opts.Logger.Warn("optional dependency failed", "name", t.s.Name, "err", err)
						}
						results[i] = resolvedTask{task: t, skip: true}
						return nil
					}
					return err
				}
				results[i] = resolved
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}

		for _, res := range results {
			if res.skip {
				continue
			}
			if res.task.kind == DepPeer {
				// Peer deps are resolved against ancestors only: record the
				// edge but never install a node for them directly.
				if _, ok := g.FindByName(res.task.parent, res.task.s.Name); !ok {
					return nil, zerr.With(errs.ErrCycle, "peer", res.task.s.Name)
				}
				continue
			}

			childID, reused := placeNode(g, seenByVersion, res)
			g.Nodes[res.task.parent].Edges[childID] = Edge{Requested: res.task.s, Kind: res.task.kind}
			if !reused {
				g.Nodes[childID].Optional = res.task.kind == DepOptional
				for _, dep := range sortedDeps(res.resolved.Manifest.Dependencies) {
					queue = append(queue, task{parent: childID, s: mustParseDepSpec(dep.name, dep.rangeStr), kind: DepProd})
				}
				for _, dep := range sortedDeps(res.resolved.Manifest.OptionalDependencies) {
					queue = append(queue, task{parent: childID, s: mustParseDepSpec(dep.name, dep.rangeStr), kind: DepOptional})
				}
				for _, dep := range sortedDeps(res.resolved.Manifest.PeerDependencies) {
					queue = append(queue, task{parent: childID, s: mustParseDepSpec(dep.name, dep.rangeStr), kind: DepPeer})
				}
			}
		}
		sortTasks(queue)
	}

	if err := place(g, r.opts.Isolated); err != nil {
		return nil, err
	}
	return g, nil
}

type resolvedTask struct {
	task     task
	resolved source.Resolved
	skip     bool
}

// resolveTask consults the loaded lockfile (if any) before hitting the
// source router: a locked entry whose version still satisfies the current
// spec is reused by pinning the resolution to that exact version, keeping
// repeated resolves stable (spec §4.6 "Lockfile interaction").
func (r *Resolver) resolveTask(ctx context.Context, t task) (resolvedTask, error) {
	s := t.s
	if r.opts.Lock != nil {
		if locked, ok := lockedVersionFor(r.opts.Lock, s.Name); ok {
			if satisfiesLocked(s, locked) {
				s = pinToVersion(s, locked)
			} else if r.opts.Locked {
				return resolvedTask{}, zerr.With(errs.ErrLockfileOutOfSync, "name", s.Name)
			}
		} else if r.opts.Locked {
			return resolvedTask{}, zerr.With(errs.ErrLockfileOutOfSync, "name", s.Name)
		}
	}

	resolved, err := r.router.Resolve(ctx, s)
	if err != nil {
		return resolvedTask{}, err
	}
	return resolvedTask{task: t, resolved: resolved}, nil
}

func lockedVersionFor(lock *lockfile.Lockfile, name string) (string, bool) {
	for _, n := range lock.Nodes {
		if n.Name == name {
			return n.Version, true
		}
	}
	return "", false
}

func satisfiesLocked(s spec.Spec, lockedVersion string) bool {
	switch s.Kind {
	case spec.KindRegistryRange:
		rng, err := semver.ParseRange(s.Range)
		if err != nil {
			return false
		}
		return rng.Satisfies(lockedVersion)
	case spec.KindRegistryVersion:
		return s.Range == lockedVersion
	case spec.KindRegistryTag:
		// A tag has no fixed target; a locked version is always an
		// acceptable preference for it.
		return true
	default:
		return false
	}
}

func pinToVersion(s spec.Spec, version string) spec.Spec {
	pinned := s
	pinned.Kind = spec.KindRegistryVersion
	pinned.Range = version
	return pinned
}

// placeNode finds-or-creates the node for a resolved dependency. A node is
// reused only if the ancestor chain's visible node for that name resolves
// to the very same identity already recorded under key — not merely to
// some node with a matching name, which could be a different version
// shadowing it closer to the requester.
func placeNode(g *Graph, seen map[string]NodeID, res resolvedTask) (NodeID, bool) {
	key := res.task.s.Name + "@" + res.resolved.Version
	if existing, ok := seen[key]; ok {
		if visible, ok := g.FindByName(res.task.parent, res.task.s.Name); ok && visible == existing {
			return existing, true
		}
	}

	id := g.newNode(res.task.s.Name)
	g.Nodes[id].Version = res.resolved.Version
	g.Nodes[id].Resolved = res.resolved
	g.Nodes[id].Parent = res.task.parent
	g.Nodes[id].HasParent = true
	g.Nodes[res.task.parent].Children[res.task.s.Name] = id
	seen[key] = id
	return id, false
}

type depSortKey struct {
	name     string
	rangeStr string
}

func sortedDeps(m map[string]string) []depSortKey {
	out := make([]depSortKey, 0, len(m))
	for name, r := range m {
		out = append(out, depSortKey{name: name, rangeStr: r})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func sortTasks(tasks []task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].s.Name < tasks[j].s.Name
	})
}

func mustParseDepSpec(name, rangeStr string) spec.Spec {
	s, err := spec.Parse(name+"@"+rangeStr, "")
	if err != nil {
		// Parse fails only on names it rejects (a range it cannot read,
		// such as a git URL, parses as a tag instead); fall back to the
		// "latest" tag rather than aborting the whole resolve.
		return spec.Spec{Kind: spec.KindRegistryTag, Name: name, Tag: "latest"}
	}
	return s
}

// place computes InstallPath for every node per the hoisted or isolated
// placement rule (spec §4.6 step 3).
func place(g *Graph, isolated bool) error {
	if isolated {
		return placeIsolated(g)
	}
	return placeHoisted(g)
}

// placeHoisted walks nodes in discovery order, hoisting each as close to
// root as the node_modules slot at that name allows. Unlike the graph's
// own Children maps (which only ever record the edge from whichever
// parent first requested an identity, not who else ends up occupying a
// name at a given tree level), claimed tracks the actual placement
// decisions made so far, so a second identity sharing a name with an
// already-hoisted one is correctly nested below the conflict instead of
// colliding with it (spec §8 scenario S3).
func placeHoisted(g *Graph) error {
	order := bfsOrder(g)
	claimed := make(map[NodeID]map[string]NodeID, len(g.Nodes))
	claim := func(at NodeID, name string, id NodeID) {
		if claimed[at] == nil {
			claimed[at] = map[string]NodeID{}
		}
		claimed[at][name] = id
	}

	for _, id := range order {
		if id == g.Root {
			continue
		}
		node := &g.Nodes[id]
		ancestor := node.Parent
		best := node.Parent
		for {
			if owner, ok := claimed[ancestor][node.Name]; ok && owner != id {
				break
			}
			best = ancestor
			a := &g.Nodes[ancestor]
			if !a.HasParent {
				break
			}
			ancestor = a.Parent
		}
		claim(best, node.Name, id)
		node.InstallPath = joinInstallPath(g, best, node.Name)
	}
	return nil
}

func placeIsolated(g *Graph) error {
	for id := range g.Nodes {
		if NodeID(id) == g.Root {
			continue
		}
		node := &g.Nodes[id]
		node.InstallPath = "node_modules/.oro/" + node.Name + "@" + node.Version + "/node_modules/" + node.Name
	}
	return nil
}

func joinInstallPath(g *Graph, ancestor NodeID, name string) string {
	if ancestor == g.Root {
		return "node_modules/" + name
	}
	parent := &g.Nodes[ancestor]
	return strings.TrimSuffix(parent.InstallPath, "/") + "/node_modules/" + name
}

func bfsOrder(g *Graph) []NodeID {
	order := make([]NodeID, 0, len(g.Nodes))
	visited := make([]bool, len(g.Nodes))
	queue := []NodeID{g.Root}
	visited[g.Root] = true
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		names := make([]string, 0, len(g.Nodes[id].Children))
		for name := range g.Nodes[id].Children {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			child := g.Nodes[id].Children[name]
			if !visited[child] {
				visited[child] = true
				queue = append(queue, child)
			}
		}
	}
	return order
}
