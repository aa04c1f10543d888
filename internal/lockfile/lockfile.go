// Package lockfile implements the document-tree lockfile codec (spec §4.8):
// a KDL-like grammar of named nodes with key/value attributes, written in
// fixed lexicographic key order and read tolerant of unknown fields.
//
// The reader tokenizes the whole input in one forward pass (tokenize in
// parse.go) and reads the nested-brace grammar by recursive descent;
// Load/Save themselves (read whole file, atomic rename on write) are
// carried over nearly as-is from internal/lockfile/yaml.go, with a
// secondary YAML view (RenderRaw) going through gopkg.in/yaml.v3 for users
// who want a machine-diffable YAML view alongside the canonical
// document-tree form.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oro-build/oro/internal/errs"
	"gopkg.in/yaml.v3"
	"go.trai.ch/zerr"
)

const (
	SchemaVersion   = 1
	DefaultFileName = "oro.lock"
)

// RootEntry is the set of dependency maps declared by the project manifest.
type RootEntry struct {
	Dependencies    map[string]string
	DevDependencies map[string]string
	Optional        map[string]string
	Peer            map[string]string
}

// Node is one resolved package placement.
type Node struct {
	Path         string
	Name         string
	Version      string
	Resolved     string
	Integrity    string
	Dependencies map[string]string
}

// Lockfile is the full parsed document.
type Lockfile struct {
	Version int
	Root    RootEntry
	Nodes   []Node
}

// New returns an empty Lockfile at the current schema version.
func New() *Lockfile {
	return &Lockfile{
		Version: SchemaVersion,
		Root: RootEntry{
			Dependencies:    map[string]string{},
			DevDependencies: map[string]string{},
			Optional:        map[string]string{},
			Peer:            map[string]string{},
		},
	}
}

// Load reads and parses a lockfile from dir/DefaultFileName.
func Load(dir string) (*Lockfile, error) {
	data, err := os.ReadFile(filepath.Join(dir, DefaultFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, zerr.With(errs.ErrNotFound, "file", DefaultFileName)
		}
		return nil, zerr.Wrap(errs.ErrIO, "reading lockfile")
	}
	return Parse(data)
}

// Save serializes the lockfile and writes it atomically to dir/DefaultFileName.
func (lf *Lockfile) Save(dir string) error {
	data := lf.Render()
	tmp, err := os.CreateTemp(dir, "."+DefaultFileName+"-*")
	if err != nil {
		return zerr.Wrap(errs.ErrIO, "staging lockfile write")
	}
	if _, err := tmp.WriteString(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return zerr.Wrap(errs.ErrIO, "writing lockfile")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return zerr.Wrap(errs.ErrIO, "closing lockfile")
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, DefaultFileName)); err != nil {
		os.Remove(tmp.Name())
		return zerr.Wrap(errs.ErrIO, "committing lockfile")
	}
	return nil
}

// rawView is the yaml.v3-serializable mirror used only by RenderRaw.
type rawView struct {
	Version int                      `yaml:"version"`
	Root    rawRoot                  `yaml:"root"`
	Nodes   map[string]rawNode       `yaml:"nodes"`
}

type rawRoot struct {
	Dependencies    map[string]string `yaml:"dependencies,omitempty"`
	DevDependencies map[string]string `yaml:"devDependencies,omitempty"`
	Optional        map[string]string `yaml:"optional,omitempty"`
	Peer            map[string]string `yaml:"peer,omitempty"`
}

type rawNode struct {
	Name         string            `yaml:"name"`
	Version      string            `yaml:"version,omitempty"`
	Resolved     string            `yaml:"resolved,omitempty"`
	Integrity    string            `yaml:"integrity,omitempty"`
	Dependencies map[string]string `yaml:"dependencies,omitempty"`
}

// RenderRaw produces a secondary, machine-diffable YAML view of the same
// data the canonical document-tree form encodes.
func (lf *Lockfile) RenderRaw() ([]byte, error) {
	view := rawView{
		Version: lf.Version,
		Root: rawRoot{
			Dependencies:    lf.Root.Dependencies,
			DevDependencies: lf.Root.DevDependencies,
			Optional:        lf.Root.Optional,
			Peer:            lf.Root.Peer,
		},
		Nodes: map[string]rawNode{},
	}
	for _, n := range lf.Nodes {
		view.Nodes[n.Path] = rawNode{
			Name: n.Name, Version: n.Version, Resolved: n.Resolved,
			Integrity: n.Integrity, Dependencies: n.Dependencies,
		}
	}
	data, err := yaml.Marshal(view)
	if err != nil {
		return nil, zerr.Wrap(errs.ErrIO, "marshaling raw lockfile view")
	}
	return data, nil
}

// Render serializes lf into the canonical document-tree text form, with
// every map's keys emitted in fixed lexicographic order (spec §4.8).
func (lf *Lockfile) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "version %d\n", lf.Version)
	b.WriteString("root {\n")
	renderKV(&b, 1, "dependencies", lf.Root.Dependencies)
	renderKV(&b, 1, "devDependencies", lf.Root.DevDependencies)
	renderKV(&b, 1, "optional", lf.Root.Optional)
	renderKV(&b, 1, "peer", lf.Root.Peer)
	b.WriteString("}\n")

	nodes := append([]Node(nil), lf.Nodes...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Path < nodes[j].Path })
	for _, n := range nodes {
		fmt.Fprintf(&b, "node %s {\n", quote(n.Path))
		fmt.Fprintf(&b, "    name %s\n", quote(n.Name))
		if n.Version != "" {
			fmt.Fprintf(&b, "    version %s\n", quote(n.Version))
		}
		if n.Resolved != "" {
			fmt.Fprintf(&b, "    resolved %s\n", quote(n.Resolved))
		}
		if n.Integrity != "" {
			fmt.Fprintf(&b, "    integrity %s\n", quote(n.Integrity))
		}
		renderKV(&b, 1, "dependencies", n.Dependencies)
		b.WriteString("}\n")
	}
	return b.String()
}

func renderKV(b *strings.Builder, indent int, label string, m map[string]string) {
	pad := strings.Repeat("    ", indent)
	if len(m) == 0 {
		fmt.Fprintf(b, "%s%s {}\n", pad, label)
		return
	}
	fmt.Fprintf(b, "%s%s {\n", pad, label)
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(b, "%s    %s %s\n", pad, quote(name), quote(m[name]))
	}
	fmt.Fprintf(b, "%s}\n", pad)
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
