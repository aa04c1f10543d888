package lockfile

import (
	"strconv"
	"strings"

	"github.com/oro-build/oro/internal/errs"
	"go.trai.ch/zerr"
)

// tokKind is a lockfile document token kind.
type tokKind int

const (
	tokIdent tokKind = iota
	tokString
	tokNumber
	tokLBrace
	tokRBrace
	tokEOF
)

type token struct {
	kind tokKind
	text string
}

// tokenize splits a lockfile document into a flat token stream: bare words
// (node/name/version/dependency names), quoted strings, braces, and
// numbers. This mirrors the teacher's bufio.Scanner-based go.sum/netrc
// readers in spirit (single forward pass, no lookahead buffer), but a
// brace-structured grammar needs a token stream rather than line records,
// so scanning is done rune-by-rune over the full input instead of per-line.
func tokenize(data []byte) ([]token, error) {
	var toks []token
	s := string(data)
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			for i < len(s) && s[i] != '\n' {
				i++
			}
		case c == '{':
			toks = append(toks, token{kind: tokLBrace, text: "{"})
			i++
		case c == '}':
			toks = append(toks, token{kind: tokRBrace, text: "}"})
			i++
		case c == '"':
			j := i + 1
			var sb strings.Builder
			for j < len(s) && s[j] != '"' {
				if s[j] == '\\' && j+1 < len(s) {
					sb.WriteByte(s[j+1])
					j += 2
					continue
				}
				sb.WriteByte(s[j])
				j++
			}
			if j >= len(s) {
				return nil, zerr.Wrap(errs.ErrLockfileCorrupt, "unterminated string")
			}
			toks = append(toks, token{kind: tokString, text: sb.String()})
			i = j + 1
		default:
			j := i
			for j < len(s) && !isDelim(s[j]) {
				j++
			}
			if j == i {
				return nil, zerr.Wrap(errs.ErrLockfileCorrupt, "unexpected character")
			}
			word := s[i:j]
			if _, err := strconv.Atoi(word); err == nil {
				toks = append(toks, token{kind: tokNumber, text: word})
			} else {
				toks = append(toks, token{kind: tokIdent, text: word})
			}
			i = j
		}
	}
	toks = append(toks, token{kind: tokEOF})
	return toks, nil
}

func isDelim(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '{' || c == '}' || c == '"'
}

// parser is a recursive-descent reader over a token stream.
type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokKind) (token, error) {
	t := p.next()
	if t.kind != kind {
		return token{}, zerr.With(errs.ErrLockfileCorrupt, "unexpected_token", t.text)
	}
	return t, nil
}

// Parse reads a lockfile document-tree byte stream into a Lockfile,
// ignoring any block or key it does not recognize so future fields remain
// forward-compatible (spec §4.8).
func Parse(data []byte) (*Lockfile, error) {
	toks, err := tokenize(data)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}

	lf := New()

	if p.peek().kind == tokIdent && p.peek().text == "version" {
		p.next()
		n, err := p.expect(tokNumber)
		if err != nil {
			return nil, err
		}
		v, _ := strconv.Atoi(n.text)
		lf.Version = v
	}

	for p.peek().kind == tokIdent {
		name := p.next().text
		switch name {
		case "root":
			if err := parseRoot(p, lf); err != nil {
				return nil, err
			}
		case "node":
			node, err := parseNode(p)
			if err != nil {
				return nil, err
			}
			lf.Nodes = append(lf.Nodes, node)
		default:
			if err := skipUnknownBlockOrValue(p); err != nil {
				return nil, err
			}
		}
	}

	return lf, nil
}

func parseRoot(p *parser, lf *Lockfile) error {
	if _, err := p.expect(tokLBrace); err != nil {
		return err
	}
	for p.peek().kind == tokIdent {
		key := p.next().text
		m, err := parseKVBlock(p)
		if err != nil {
			return err
		}
		switch key {
		case "dependencies":
			lf.Root.Dependencies = m
		case "devDependencies":
			lf.Root.DevDependencies = m
		case "optional":
			lf.Root.Optional = m
		case "peer":
			lf.Root.Peer = m
		}
	}
	_, err := p.expect(tokRBrace)
	return err
}

func parseNode(p *parser) (Node, error) {
	pathTok, err := p.expect(tokString)
	if err != nil {
		return Node{}, err
	}
	node := Node{Path: pathTok.text, Dependencies: map[string]string{}}

	if _, err := p.expect(tokLBrace); err != nil {
		return Node{}, err
	}
	for p.peek().kind == tokIdent {
		key := p.next().text
		switch key {
		case "name", "version", "resolved", "integrity":
			v, err := p.expect(tokString)
			if err != nil {
				return Node{}, err
			}
			switch key {
			case "name":
				node.Name = v.text
			case "version":
				node.Version = v.text
			case "resolved":
				node.Resolved = v.text
			case "integrity":
				node.Integrity = v.text
			}
		case "dependencies":
			m, err := parseKVBlock(p)
			if err != nil {
				return Node{}, err
			}
			node.Dependencies = m
		default:
			if err := skipUnknownBlockOrValue(p); err != nil {
				return Node{}, err
			}
		}
	}
	if _, err := p.expect(tokRBrace); err != nil {
		return Node{}, err
	}
	return node, nil
}

// parseKVBlock reads "{ key \"value\" ... }" into a map, where each key is
// a bare word or a quoted string (Render quotes them), tolerating an empty
// "{}" block.
func parseKVBlock(p *parser) (map[string]string, error) {
	if _, err := p.expect(tokLBrace); err != nil {
		return nil, err
	}
	m := map[string]string{}
	for p.peek().kind == tokIdent || p.peek().kind == tokString {
		key := p.next().text
		val, err := p.expect(tokString)
		if err != nil {
			return nil, err
		}
		m[key] = val.text
	}
	if _, err := p.expect(tokRBrace); err != nil {
		return nil, err
	}
	return m, nil
}

// skipUnknownBlockOrValue consumes one unrecognized key's value (a brace
// block or a single scalar token) so unknown forward-compatible fields
// don't break the read.
func skipUnknownBlockOrValue(p *parser) error {
	if p.peek().kind == tokLBrace {
		depth := 0
		for {
			t := p.next()
			switch t.kind {
			case tokLBrace:
				depth++
			case tokRBrace:
				depth--
				if depth == 0 {
					return nil
				}
			case tokEOF:
				return zerr.Wrap(errs.ErrLockfileCorrupt, "unterminated block")
			}
		}
	}
	p.next()
	return nil
}
