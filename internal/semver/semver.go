// Package semver implements node-semver-compatible range parsing and
// matching: comparator sets joined by "||", the common shorthands (^, ~,
// "x" ranges, hyphen ranges), and tag/exact-version comparisons.
//
// golang.org/x/mod/semver only understands canonical "vX.Y.Z[-pre][+build]"
// comparison, not comparator-set range syntax, so this package implements
// the range grammar itself and defers every pairwise ordering decision to
// semver.Compare — the teacher already depends on golang.org/x/mod (for
// modfile), so this keeps using the same module for the primitive it does
// support instead of adding a second semver dependency.
package semver

import (
	"strconv"
	"strings"

	"github.com/oro-build/oro/internal/errs"
	"go.trai.ch/zerr"
	xsemver "golang.org/x/mod/semver"
)

// Canon normalizes a bare "1.2.3" version into x/mod/semver's required "v1.2.3" form.
func Canon(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return v
	}
	if v[0] != 'v' {
		v = "v" + v
	}
	return v
}

// Valid reports whether v is a valid semantic version (with or without a leading "v").
func Valid(v string) bool {
	return xsemver.IsValid(Canon(v))
}

// Compare returns -1, 0, or 1 comparing a and b, per semantic-versioning precedence.
func Compare(a, b string) int {
	return xsemver.Compare(Canon(a), Canon(b))
}

// IsPrerelease reports whether v carries a prerelease component.
func IsPrerelease(v string) bool {
	return xsemver.Prerelease(Canon(v)) != ""
}

// comparator is a single operator+version constraint, e.g. ">=1.2.3".
type comparator struct {
	op      string // one of "", "=", ">", ">=", "<", "<="
	version string // canonical "vX.Y.Z..."
}

func (c comparator) matches(v string) bool {
	cmp := xsemver.Compare(v, c.version)
	switch c.op {
	case "", "=":
		return cmp == 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	default:
		return false
	}
}

// Range is a set of comparator sets joined by logical OR ("||"); within a
// set, comparators are joined by logical AND (implicit, space-separated).
type Range struct {
	raw  string
	sets [][]comparator
}

// ParseRange parses a node-semver range string.
func ParseRange(raw string) (Range, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "*" || raw == "x" {
		return Range{raw: raw, sets: [][]comparator{{{op: ">=", version: "v0.0.0"}}}}, nil
	}

	var sets [][]comparator
	for _, part := range strings.Split(raw, "||") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		set, err := parseComparatorSet(part)
		if err != nil {
			return Range{}, err
		}
		sets = append(sets, set)
	}
	if len(sets) == 0 {
		return Range{}, zerr.With(errs.ErrSpecParse, "range", raw)
	}
	return Range{raw: raw, sets: sets}, nil
}

func (r Range) String() string { return r.raw }

// Satisfies reports whether version v satisfies the range. Prereleases are
// excluded unless the range itself references a prerelease version for the
// same major.minor.patch triple, matching npm's semver semantics.
func (r Range) Satisfies(v string) bool {
	cv := Canon(v)
	if !xsemver.IsValid(cv) {
		return false
	}
	if xsemver.Prerelease(cv) != "" && !r.allowsPrereleaseOf(cv) {
		return false
	}
	for _, set := range r.sets {
		ok := true
		for _, c := range set {
			if !c.matches(cv) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// allowsPrereleaseOf reports whether any comparator in the range targets the
// same [major,minor,patch] triple as v with its own prerelease tag.
func (r Range) allowsPrereleaseOf(v string) bool {
	triple := xsemver.Canonical(v)
	triple = strings.TrimSuffix(triple, xsemver.Prerelease(v))
	triple = strings.TrimSuffix(triple, xsemver.Build(v))
	for _, set := range r.sets {
		for _, c := range set {
			if xsemver.Prerelease(c.version) == "" {
				continue
			}
			ct := xsemver.Canonical(c.version)
			ct = strings.TrimSuffix(ct, xsemver.Prerelease(c.version))
			ct = strings.TrimSuffix(ct, xsemver.Build(c.version))
			if ct == triple {
				return true
			}
		}
	}
	return false
}

// MaxSatisfying returns the highest version in versions that satisfies r, or
// false if none match.
func MaxSatisfying(versions []string, r Range) (string, bool) {
	best := ""
	found := false
	for _, v := range versions {
		if !r.Satisfies(v) {
			continue
		}
		if !found || xsemver.Compare(Canon(v), Canon(best)) > 0 {
			best = v
			found = true
		}
	}
	return best, found
}

func parseComparatorSet(s string) ([]comparator, error) {
	s = strings.TrimSpace(s)

	if lo, hi, ok := strings.Cut(s, " - "); ok {
		loC, err := parseBound(lo, ">=")
		if err != nil {
			return nil, err
		}
		hiC, err := parseHyphenUpper(hi)
		if err != nil {
			return nil, err
		}
		return []comparator{loC, hiC}, nil
	}

	var out []comparator
	for _, tok := range strings.Fields(s) {
		cs, err := parseToken(tok)
		if err != nil {
			return nil, err
		}
		out = append(out, cs...)
	}
	if len(out) == 0 {
		return nil, zerr.With(errs.ErrSpecParse, "comparator-set", s)
	}
	return out, nil
}

func parseBound(s, defaultOp string) (comparator, error) {
	op, ver := splitOp(s)
	if op == "" {
		op = defaultOp
	}
	if !xsemver.IsValid(Canon(ver)) {
		return comparator{}, zerr.With(errs.ErrSpecParse, "version", s)
	}
	return comparator{op: op, version: Canon(ver)}, nil
}

// parseHyphenUpper builds the upper bound of a hyphen range. A partial
// version like "2" or "2.3" means "<3.0.0" / "<2.4.0" (exclusive of the next
// bump), a full version means "<=2.3.4" exactly.
func parseHyphenUpper(s string) (comparator, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ".")
	switch len(parts) {
	case 1:
		maj, err := atoi(parts[0])
		if err != nil {
			return comparator{}, err
		}
		return comparator{op: "<", version: Canon(strconv.Itoa(maj + 1) + ".0.0")}, nil
	case 2:
		maj, err := atoi(parts[0])
		if err != nil {
			return comparator{}, err
		}
		min, err := atoi(parts[1])
		if err != nil {
			return comparator{}, err
		}
		return comparator{op: "<", version: Canon(strconv.Itoa(maj) + "." + strconv.Itoa(min+1) + ".0")}, nil
	default:
		if !xsemver.IsValid(Canon(s)) {
			return comparator{}, zerr.With(errs.ErrSpecParse, "version", s)
		}
		return comparator{op: "<=", version: Canon(s)}, nil
	}
}

func splitOp(s string) (op, rest string) {
	for _, candidate := range []string{">=", "<=", ">", "<", "="} {
		if strings.HasPrefix(s, candidate) {
			return candidate, strings.TrimSpace(strings.TrimPrefix(s, candidate))
		}
	}
	return "", s
}

// parseToken parses a single whitespace-delimited comparator token,
// expanding "^", "~", and partial ("x"/"*"/missing-component) versions into
// explicit >=/< comparator pairs.
func parseToken(tok string) ([]comparator, error) {
	switch {
	case tok == "":
		return nil, nil
	case strings.HasPrefix(tok, "^"):
		return expandCaret(strings.TrimPrefix(tok, "^"))
	case strings.HasPrefix(tok, "~"):
		return expandTilde(strings.TrimPrefix(tok, "~"))
	default:
		op, rest := splitOp(tok)
		if isPartial(rest) {
			return expandPartial(rest, op)
		}
		c, err := parseBound(tok, "=")
		if err != nil {
			return nil, err
		}
		return []comparator{c}, nil
	}
}

func isPartial(v string) bool {
	if v == "*" || v == "x" || v == "X" || v == "" {
		return true
	}
	parts := strings.Split(v, ".")
	return len(parts) < 3
}

// expandPartial turns "1" or "1.2" into an explicit [low, high) pair, or
// into a single comparator using op when op is one of >=, >, <=, <; "*"
// becomes the single comparator >=0.0.0.
func expandPartial(v, op string) ([]comparator, error) {
	if v == "" || v == "*" || v == "x" || v == "X" {
		return []comparator{{op: ">=", version: "v0.0.0"}}, nil
	}
	parts := strings.Split(v, ".")
	maj, err := atoi(parts[0])
	if err != nil {
		return nil, err
	}
	if op == ">=" || op == ">" || op == "<=" || op == "<" {
		low := Canon(normalizeTriple(parts))
		return []comparator{{op: op, version: low}}, nil
	}
	if len(parts) == 1 {
		return []comparator{
			{op: ">=", version: Canon(strconv.Itoa(maj) + ".0.0")},
			{op: "<", version: Canon(strconv.Itoa(maj+1) + ".0.0")},
		}, nil
	}
	min, err := atoi(parts[1])
	if err != nil {
		return nil, err
	}
	return []comparator{
		{op: ">=", version: Canon(strconv.Itoa(maj) + "." + strconv.Itoa(min) + ".0")},
		{op: "<", version: Canon(strconv.Itoa(maj) + "." + strconv.Itoa(min+1) + ".0")},
	}, nil
}

func normalizeTriple(parts []string) string {
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	return strings.Join(parts[:3], ".")
}

// expandCaret implements "^" — allow changes that do not modify the
// left-most non-zero digit.
func expandCaret(v string) ([]comparator, error) {
	parts := strings.Split(v, ".")
	maj, err := atoi(parts[0])
	if err != nil {
		return nil, err
	}
	min, patch := 0, 0
	if len(parts) > 1 {
		if min, err = atoi(strings.Split(parts[1], "-")[0]); err != nil {
			return nil, err
		}
	}
	if len(parts) > 2 {
		p := strings.SplitN(parts[2], "-", 2)
		if patch, err = atoi(p[0]); err != nil {
			return nil, err
		}
	}

	low := Canon(normalizeTriple(parts))

	var high string
	switch {
	case maj > 0:
		high = strconv.Itoa(maj+1) + ".0.0"
	case min > 0:
		high = "0." + strconv.Itoa(min+1) + ".0"
	default:
		high = "0.0." + strconv.Itoa(patch+1)
	}
	return []comparator{
		{op: ">=", version: low},
		{op: "<", version: Canon(high)},
	}, nil
}

// expandTilde implements "~" — allow patch-level changes if a minor version
// is specified, or minor-level changes if only a major version is specified.
func expandTilde(v string) ([]comparator, error) {
	parts := strings.Split(v, ".")
	maj, err := atoi(parts[0])
	if err != nil {
		return nil, err
	}
	low := Canon(normalizeTriple(parts))

	var high string
	if len(parts) >= 2 {
		min, err := atoi(parts[1])
		if err != nil {
			return nil, err
		}
		high = strconv.Itoa(maj) + "." + strconv.Itoa(min+1) + ".0"
	} else {
		high = strconv.Itoa(maj+1) + ".0.0"
	}
	return []comparator{
		{op: ">=", version: low},
		{op: "<", version: Canon(high)},
	}, nil
}

func atoi(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, zerr.Wrap(errs.ErrSpecParse, "invalid numeric version component "+s)
	}
	return n, nil
}
