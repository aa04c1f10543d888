// Package spec parses package specifiers ("left-pad", "left-pad@^1.3.0",
// "@scope/pkg@npm:other@^2", "git+https://...#v1.2", "file:../local") into
// tagged Spec values, matching spec §4.1.
//
// The grammar is lifted from original_source/crates/package-arg (alias /
// npm-pkg / git / file variants, scope detection, the tag-vs-range
// ambiguity rule), but the parser itself is hand-written straight-line
// scanning rather than a parser-combinator pipeline: no combinator library
// (nom is Rust-only) appears anywhere in the retrieved pack, and the
// teacher's own internal/mod parser is itself a plain bufio.Scanner/
// strings.Cut reader — this keeps that same idiom.
package spec

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/oro-build/oro/internal/errs"
	"github.com/oro-build/oro/internal/semver"
	"go.trai.ch/zerr"
)

// Kind discriminates the Spec variants.
type Kind int

const (
	KindRegistryRange Kind = iota
	KindRegistryTag
	KindRegistryVersion
	KindAlias
	KindGit
	KindDir
)

// Spec is a tagged package specifier; only the fields relevant to Kind are populated.
type Spec struct {
	Kind Kind

	// Registry* / Alias
	Name  string
	Scope string // without the leading "@", empty if unscoped
	Range string // KindRegistryRange; the exact version for KindRegistryVersion
	Tag   string // KindRegistryTag, defaults to "latest"

	// Alias
	Target *Spec

	// Git
	URL          string
	Committish   string
	SemverRange  string

	// Dir
	Path string

	Raw string
}

var nameCharset = regexp.MustCompile(`^[a-z0-9._-]+$`)

// Parse parses a raw specifier string. from is the directory used to
// resolve relative `file:`/directory paths; it may be empty.
func Parse(raw, from string) (Spec, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Spec{}, zerr.Wrap(errs.ErrSpecParse, "empty spec")
	}

	if strings.HasPrefix(raw, "git+") || strings.HasPrefix(raw, "github:") || looksLikeGitShorthand(raw) {
		return parseGit(raw)
	}

	if strings.HasPrefix(raw, "file:") {
		return parseDir(strings.TrimPrefix(raw, "file:"), from, raw)
	}
	if strings.HasPrefix(raw, "./") || strings.HasPrefix(raw, "../") || strings.HasPrefix(raw, "/") {
		return parseDir(raw, from, raw)
	}

	name, rest, hasAt := splitNameAndRest(raw)
	if err := validateName(name); err != nil {
		return Spec{}, err
	}

	if !hasAt {
		return Spec{Kind: KindRegistryTag, Name: name, Scope: scopeOf(name), Tag: "latest", Raw: raw}, nil
	}

	if alias, ok := strings.CutPrefix(rest, "npm:"); ok {
		target, err := Parse(alias, from)
		if err != nil {
			return Spec{}, err
		}
		return Spec{Kind: KindAlias, Name: name, Scope: scopeOf(name), Target: &target, Raw: raw}, nil
	}

	// Ambiguity rule (spec §4.1): if the remainder parses as semver, treat
	// it as a range; a bare exact version is represented as its own kind so
	// callers can skip range resolution entirely.
	if semver.Valid(rest) {
		return Spec{Kind: KindRegistryVersion, Name: name, Scope: scopeOf(name), Range: rest, Raw: raw}, nil
	}
	if _, err := semver.ParseRange(rest); err == nil && looksLikeRange(rest) {
		return Spec{Kind: KindRegistryRange, Name: name, Scope: scopeOf(name), Range: rest, Raw: raw}, nil
	}

	return Spec{Kind: KindRegistryTag, Name: name, Scope: scopeOf(name), Tag: rest, Raw: raw}, nil
}

// splitNameAndRest splits "name@range" respecting a leading scope, which may
// itself contain an "@". Returns hasAt=false when there is no unescaped "@"
// after the name portion (i.e. a bare tag-less specifier).
func splitNameAndRest(raw string) (name, rest string, hasAt bool) {
	if strings.HasPrefix(raw, "@") {
		scopeEnd := strings.Index(raw, "/")
		if scopeEnd == -1 {
			return raw, "", false
		}
		nameEnd := strings.Index(raw[scopeEnd:], "@")
		if nameEnd == -1 {
			return raw, "", false
		}
		nameEnd += scopeEnd
		return raw[:nameEnd], raw[nameEnd+1:], true
	}

	idx := strings.Index(raw, "@")
	if idx == -1 {
		return raw, "", false
	}
	return raw[:idx], raw[idx+1:], true
}

func scopeOf(name string) string {
	if !strings.HasPrefix(name, "@") {
		return ""
	}
	scope, _, _ := strings.Cut(strings.TrimPrefix(name, "@"), "/")
	return scope
}

func validateName(name string) error {
	n := name
	if strings.HasPrefix(n, "@") {
		scope, rest, ok := strings.Cut(strings.TrimPrefix(n, "@"), "/")
		if !ok || strings.Contains(rest, "/") {
			return zerr.With(errs.ErrSpecParse, "name", name)
		}
		if !nameCharset.MatchString(scope) || !nameCharset.MatchString(rest) {
			return zerr.With(errs.ErrSpecParse, "name", name)
		}
		return nil
	}
	if !nameCharset.MatchString(n) {
		return zerr.With(errs.ErrSpecParse, "name", name)
	}
	return nil
}

// looksLikeRange disambiguates a bare tag like "latest" or "next" from a
// comparator-set range: ranges start with a digit, "^", "~", ">", "<", "=",
// "*", "x", or contain "||" / " - ".
func looksLikeRange(s string) bool {
	if s == "" {
		return false
	}
	if strings.ContainsAny(s, "^~><=*") || strings.Contains(s, "||") || strings.Contains(s, " - ") {
		return true
	}
	c := s[0]
	return (c >= '0' && c <= '9') || c == 'x' || c == 'X'
}

func looksLikeGitShorthand(raw string) bool {
	// "user/repo" or "user/repo#committish" — exactly one "/" before any "@".
	atIdx := strings.Index(raw, "@")
	head := raw
	if atIdx != -1 {
		head = raw[:atIdx]
	}
	if strings.HasPrefix(head, "@") {
		return false // scoped registry package, not a GitHub shorthand
	}
	base := strings.SplitN(head, "#", 2)[0]
	return strings.Count(base, "/") == 1 && !strings.Contains(base, ":")
}

func parseGit(raw string) (Spec, error) {
	rest := raw
	rest = strings.TrimPrefix(rest, "git+")
	if strings.HasPrefix(rest, "github:") {
		rest = "https://github.com/" + strings.TrimPrefix(rest, "github:")
	} else if !strings.Contains(rest, "://") {
		rest = "https://github.com/" + rest
	}

	url, fragment, _ := strings.Cut(rest, "#")
	sp := Spec{Kind: KindGit, URL: url, Raw: raw}
	if fragment == "" {
		return sp, nil
	}
	if semverRange, ok := strings.CutPrefix(fragment, "semver:"); ok {
		sp.SemverRange = semverRange
		return sp, nil
	}
	sp.Committish = fragment
	return sp, nil
}

func parseDir(p, from, raw string) (Spec, error) {
	if p == "" {
		return Spec{}, zerr.With(errs.ErrSpecParse, "path", raw)
	}
	resolved := p
	if !path.IsAbs(resolved) && from != "" {
		resolved = path.Join(from, p)
	}
	return Spec{Kind: KindDir, Path: resolved, Raw: raw}, nil
}

func (s Spec) String() string {
	switch s.Kind {
	case KindRegistryRange:
		return fmt.Sprintf("%s@%s", s.Name, s.Range)
	case KindRegistryTag:
		return fmt.Sprintf("%s@%s", s.Name, s.Tag)
	case KindRegistryVersion:
		return fmt.Sprintf("%s@%s", s.Name, s.Range)
	case KindAlias:
		return fmt.Sprintf("%s@npm:%s", s.Name, s.Target.String())
	case KindGit:
		return s.URL
	case KindDir:
		return "file:" + s.Path
	default:
		return s.Raw
	}
}
