// Package manifest normalizes a raw package.json-shaped document into a
// stable struct, matching spec §4.9. Raw decoding uses stdlib encoding/json
// — justified in DESIGN.md: no third-party JSON library appears anywhere in
// the retrieved pack, and the teacher itself decodes JSON with the stdlib
// package (see fetch.ModuleInfo's .info-endpoint decoding).
package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/oro-build/oro/internal/errs"
	"go.trai.ch/zerr"
)

// Dist describes a registry version's published tarball.
type Dist struct {
	Tarball       string `json:"tarball"`
	Integrity     string `json:"integrity"`
	Shasum        string `json:"shasum"`
	FileCount     int    `json:"fileCount,omitempty"`
	UnpackedSize  int64  `json:"unpackedSize,omitempty"`
}

// Manifest is the normalized form of a package.json document.
type Manifest struct {
	Name                 string
	Version              string
	Bin                  map[string]string
	Dependencies         map[string]string
	DevDependencies      map[string]string
	OptionalDependencies map[string]string
	PeerDependencies     map[string]string
	PeerDependenciesMeta map[string]PeerMeta
	BundledDependencies  []string
	Scripts              map[string]string
	OS                    []string
	CPU                   []string
	Engines               map[string]string
	Deprecated            string
	Dist                  Dist
}

// PeerMeta is the per-peer metadata object (currently just "optional").
type PeerMeta struct {
	Optional bool `json:"optional,omitempty"`
}

// rawManifest mirrors package.json's on-the-wire shape, where several
// fields are deliberately typed as json.RawMessage because their concrete
// shape is polymorphic (string-or-map, bool-or-array, string-or-bool).
type rawManifest struct {
	Name                 string                  `json:"name"`
	Version              string                  `json:"version"`
	Bin                  json.RawMessage         `json:"bin"`
	Dependencies         map[string]string       `json:"dependencies"`
	DevDependencies      map[string]string       `json:"devDependencies"`
	OptionalDependencies map[string]string       `json:"optionalDependencies"`
	PeerDependencies     map[string]string       `json:"peerDependencies"`
	PeerDependenciesMeta map[string]PeerMeta     `json:"peerDependenciesMeta"`
	BundledDependencies  json.RawMessage         `json:"bundledDependencies"`
	BundleDependencies   json.RawMessage         `json:"bundleDependencies"`
	Scripts              map[string]string       `json:"scripts"`
	OS                   []string                `json:"os"`
	CPU                  []string                `json:"cpu"`
	Engines              map[string]string       `json:"engines"`
	Deprecated           json.RawMessage         `json:"deprecated"`
	Dist                 Dist                    `json:"dist"`
}

// Parse decodes and normalizes a package.json document.
func Parse(data []byte) (Manifest, error) {
	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return Manifest{}, zerr.Wrap(errs.ErrSpecParse, fmt.Sprintf("decoding manifest: %v", err))
	}

	m := Manifest{
		Name:                 raw.Name,
		Version:              raw.Version,
		Dependencies:         orEmpty(raw.Dependencies),
		DevDependencies:      orEmpty(raw.DevDependencies),
		OptionalDependencies: orEmpty(raw.OptionalDependencies),
		PeerDependencies:     orEmpty(raw.PeerDependencies),
		PeerDependenciesMeta: raw.PeerDependenciesMeta,
		Scripts:              orEmpty(raw.Scripts),
		OS:                   raw.OS,
		CPU:                  raw.CPU,
		Engines:              orEmpty(raw.Engines),
		Dist:                 raw.Dist,
	}

	bin, err := normalizeBin(raw.Bin, raw.Name)
	if err != nil {
		return Manifest{}, err
	}
	m.Bin = bin

	bundled := raw.BundledDependencies
	if len(bundled) == 0 {
		bundled = raw.BundleDependencies
	}
	deps, err := normalizeBundled(bundled, m.Dependencies)
	if err != nil {
		return Manifest{}, err
	}
	m.BundledDependencies = deps

	dep, err := normalizeDeprecated(raw.Deprecated)
	if err != nil {
		return Manifest{}, err
	}
	m.Deprecated = dep

	if m.PeerDependenciesMeta == nil {
		m.PeerDependenciesMeta = map[string]PeerMeta{}
	}

	return m, nil
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// normalizeBin handles the three shapes package.json allows for "bin":
// absent, a single string (the package's own name maps to that path), or a
// map of command name to relative path.
func normalizeBin(raw json.RawMessage, pkgName string) (map[string]string, error) {
	if len(raw) == 0 {
		return map[string]string{}, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if pkgName == "" {
			return map[string]string{}, nil
		}
		return map[string]string{pkgName: asString}, nil
	}

	var asMap map[string]string
	if err := json.Unmarshal(raw, &asMap); err == nil {
		if asMap == nil {
			asMap = map[string]string{}
		}
		return asMap, nil
	}

	return nil, zerr.With(errs.ErrSpecParse, "field", "bin")
}

// normalizeBundled handles "bundledDependencies": absent, an explicit array
// of names, or the boolean `true` meaning "all direct dependencies".
func normalizeBundled(raw json.RawMessage, deps map[string]string) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var asBool bool
	if err := json.Unmarshal(raw, &asBool); err == nil {
		if !asBool {
			return nil, nil
		}
		names := make([]string, 0, len(deps))
		for name := range deps {
			names = append(names, name)
		}
		return names, nil
	}

	var asArray []string
	if err := json.Unmarshal(raw, &asArray); err == nil {
		return asArray, nil
	}

	return nil, zerr.With(errs.ErrSpecParse, "field", "bundledDependencies")
}

// normalizeDeprecated handles "deprecated": absent, a message string, or a
// boolean (false means "not deprecated"; true with no message is unusual but
// tolerated, and normalized to the message "deprecated" so it stays
// non-empty).
func normalizeDeprecated(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}

	var asBool bool
	if err := json.Unmarshal(raw, &asBool); err == nil {
		if asBool {
			return "deprecated", nil
		}
		return "", nil
	}

	return "", zerr.With(errs.ErrSpecParse, "field", "deprecated")
}
