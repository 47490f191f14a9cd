package rdf

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedQuad is returned by ParseNQuads for any line that does not
// match the subset of N-Quads this node accepts.
var ErrMalformedQuad = errors.New("rdf: malformed n-quad line")

// SerializeNQuads renders quads in the canonical per-line N-Quads form,
// one statement per line, terminated by " .\n". Callers that need a
// deterministic byte stream (store dumps, canonicalization input) should
// sort quads first; this function does not reorder its input.
func SerializeNQuads(w io.Writer, quads []Quad) error {
	bw := bufio.NewWriter(w)
	for _, q := range quads {
		if _, err := bw.WriteString(q.String()); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ParseNQuads reads a subset of N-Quads: one statement per line, terms
// restricted to <iri>, _:label, and "literal"(^^<dt>|@lang)?, an optional
// trailing graph term, blank/comment lines skipped. It does not support
// line-continuation, nested quoting, or full Unicode escape grammar —
// anything produced by SerializeNQuads round-trips; input using those
// features is rejected or misread.
func ParseNQuads(r io.Reader) ([]Quad, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var out []Quad
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		q, err := parseNQuadLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		out = append(out, q)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseNQuadLine(line string) (Quad, error) {
	line = strings.TrimSuffix(strings.TrimSpace(line), ".")
	line = strings.TrimSpace(line)

	toks, err := tokenizeTerms(line)
	if err != nil {
		return Quad{}, err
	}
	if len(toks) != 3 && len(toks) != 4 {
		return Quad{}, fmt.Errorf("%w: expected 3 or 4 terms, got %d", ErrMalformedQuad, len(toks))
	}

	subj, err := parseSubjectOrPredicateTerm(toks[0])
	if err != nil {
		return Quad{}, err
	}
	predTerm, err := parseSubjectOrPredicateTerm(toks[1])
	if err != nil {
		return Quad{}, err
	}
	pred, ok := predTerm.(IRI)
	if !ok {
		return Quad{}, fmt.Errorf("%w: predicate must be an IRI", ErrMalformedQuad)
	}
	obj, err := parseObjectTerm(toks[2])
	if err != nil {
		return Quad{}, err
	}

	q := Quad{Triple: Triple{Subject: subj, Predicate: pred, Object: obj}}
	if len(toks) == 4 {
		g, err := parseSubjectOrPredicateTerm(toks[3])
		if err != nil {
			return Quad{}, err
		}
		giri, ok := g.(IRI)
		if !ok {
			return Quad{}, fmt.Errorf("%w: graph name must be an IRI", ErrMalformedQuad)
		}
		q.GraphName = string(giri)
	}
	return q, nil
}

// tokenizeTerms splits a statement body into its term tokens, respecting
// quoted literals (which may contain spaces).
func tokenizeTerms(line string) ([]string, error) {
	var toks []string
	i, n := 0, len(line)
	for i < n {
		for i < n && line[i] == ' ' {
			i++
		}
		if i >= n {
			break
		}
		switch line[i] {
		case '<':
			j := strings.IndexByte(line[i:], '>')
			if j < 0 {
				return nil, fmt.Errorf("%w: unterminated IRI", ErrMalformedQuad)
			}
			toks = append(toks, line[i:i+j+1])
			i += j + 1
		case '"':
			j := i + 1
			for j < n {
				if line[j] == '\\' {
					j += 2
					continue
				}
				if line[j] == '"' {
					break
				}
				j++
			}
			if j >= n {
				return nil, fmt.Errorf("%w: unterminated literal", ErrMalformedQuad)
			}
			end := j + 1
			// consume an optional ^^<dt> or @lang suffix with no space before it
			if end < n && line[end] == '^' && end+1 < n && line[end+1] == '^' {
				k := strings.IndexByte(line[end:], '>')
				if k < 0 {
					return nil, fmt.Errorf("%w: unterminated datatype IRI", ErrMalformedQuad)
				}
				end += k + 1
			} else if end < n && line[end] == '@' {
				k := end + 1
				for k < n && line[k] != ' ' {
					k++
				}
				end = k
			}
			toks = append(toks, line[i:end])
			i = end
		case '_':
			j := i
			for j < n && line[j] != ' ' {
				j++
			}
			toks = append(toks, line[i:j])
			i = j
		default:
			return nil, fmt.Errorf("%w: unexpected character %q", ErrMalformedQuad, line[i])
		}
	}
	return toks, nil
}

func parseSubjectOrPredicateTerm(tok string) (Term, error) {
	switch {
	case strings.HasPrefix(tok, "<") && strings.HasSuffix(tok, ">"):
		return IRI(tok[1 : len(tok)-1]), nil
	case strings.HasPrefix(tok, "_:"):
		return BlankNode(strings.TrimPrefix(tok, "_:")), nil
	default:
		return nil, fmt.Errorf("%w: expected IRI or blank node, got %q", ErrMalformedQuad, tok)
	}
}

func parseObjectTerm(tok string) (Term, error) {
	if strings.HasPrefix(tok, "<") || strings.HasPrefix(tok, "_:") {
		return parseSubjectOrPredicateTerm(tok)
	}
	if !strings.HasPrefix(tok, "\"") {
		return nil, fmt.Errorf("%w: expected literal, IRI, or blank node, got %q", ErrMalformedQuad, tok)
	}
	// find closing quote, honoring backslash escapes
	end := 1
	for end < len(tok) {
		if tok[end] == '\\' {
			end += 2
			continue
		}
		if tok[end] == '"' {
			break
		}
		end++
	}
	if end >= len(tok) {
		return nil, fmt.Errorf("%w: unterminated literal %q", ErrMalformedQuad, tok)
	}
	lexical := unescapeLiteral(tok[1:end])
	rest := tok[end+1:]

	switch {
	case strings.HasPrefix(rest, "^^<") && strings.HasSuffix(rest, ">"):
		dt := rest[3 : len(rest)-1]
		return NewTypedLiteral(lexical, dt), nil
	case strings.HasPrefix(rest, "@"):
		return NewLangLiteral(lexical, rest[1:]), nil
	case rest == "":
		return NewStringLiteral(lexical), nil
	default:
		return nil, fmt.Errorf("%w: malformed literal suffix %q", ErrMalformedQuad, rest)
	}
}

func unescapeLiteral(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			default:
				b.WriteByte(s[i])
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
