// Package canonical implements the RDF graph canonicalization algorithm:
// a deterministic, blank-node-isomorphism-invariant hash of a graph's
// triples, used as both the per-block payload hash and the per-named-
// graph hash the quad store exposes for state-root computation.
package canonical

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"strings"

	"rdfchain/pkg/rdf"
)

// DomainTag prefixes every canonicalization hash input, so a canonical
// RDF hash can never collide with a hash computed for an unrelated
// purpose over similar bytes.
const DomainTag = "rdf-canon/v1\x00"

// recordSeparator renders between S, P, and O in a triple line, and after
// O, per the design-level "S<sep>P<sep>O<sep>" rendering.
const recordSeparator = "\x1e"

// ErrMalformedPayload is returned when the input cannot be canonicalized
// because it is not a well-formed graph (callers should map this to the
// MalformedPayload pipeline abort).
var ErrMalformedPayload = errors.New("canonical: malformed payload")

// maxRefinementRoundsPerNode bounds the fixed-point iteration. Standard color-
// refinement arguments bound convergence by the node count; this is a
// defensive ceiling against a pathological or adversarial input, not a
// tuning knob.
const maxRefinementRoundsPerNode = 1

// Hash computes the canonical content hash of g: SHA-256 over the domain
// tag followed by the sorted, blank-node-relabeled triple lines.
func Hash(g *rdf.Graph) [32]byte {
	lines := canonicalLines(g)
	h := sha256.New()
	h.Write([]byte(DomainTag))
	for _, line := range lines {
		h.Write([]byte(line))
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// canonicalLines returns the sorted "S<sep>P<sep>O<sep>" lines for g,
// after blank-node label refinement has converged.
func canonicalLines(g *rdf.Graph) []string {
	triples := g.Triples()
	labels := refineBlankNodeLabels(triples)

	lines := make([]string, 0, len(triples))
	for _, t := range triples {
		s := renderTerm(t.Subject, labels)
		p := t.Predicate.String()
		o := renderTerm(t.Object, labels)
		lines = append(lines, s+recordSeparator+p+recordSeparator+o+recordSeparator)
	}
	sort.Strings(lines)
	return lines
}

func renderTerm(t rdf.Term, labels map[string]string) string {
	if bn, ok := t.(rdf.BlankNode); ok {
		return "_:" + labels[string(bn)]
	}
	return t.String()
}

// incidence records one appearance of a blank node in a triple: which
// position it occupies, the predicate, and a rendering of the opposite
// term (literal/IRI rendering, or the neighbor blank node's current-round
// label).
type incidence struct {
	position  byte // 'S' or 'O'
	predicate string
	other     string
}

// refineBlankNodeLabels computes a stable label for every blank node in
// triples by fixed-point iteration: each round, a blank node's label
// becomes the hash of the sorted multiset of (position, predicate,
// neighbor-label) tuples it participates in. Iteration stops once no
// label changes between rounds, or after a bound bound to participant
// count, whichever comes first — both produce the same fixed point for
// any finite graph; the bound only guards against non-terminating input.
func refineBlankNodeLabels(triples []rdf.Triple) map[string]string {
	blankIDs := collectBlankNodeIDs(triples)
	if len(blankIDs) == 0 {
		return map[string]string{}
	}

	// incidences[b] is the list of appearances of blank node b.
	incidences := make(map[string][]incidence, len(blankIDs))
	for _, t := range triples {
		if s, ok := t.Subject.(rdf.BlankNode); ok {
			incidences[string(s)] = append(incidences[string(s)], incidence{
				position: 'S', predicate: t.Predicate.String(), other: opaqueOtherRef(t.Object),
			})
		}
		if o, ok := t.Object.(rdf.BlankNode); ok {
			incidences[string(o)] = append(incidences[string(o)], incidence{
				position: 'O', predicate: t.Predicate.String(), other: opaqueOtherRef(t.Subject),
			})
		}
	}

	labels := make(map[string]string, len(blankIDs))
	for _, id := range blankIDs {
		labels[id] = "0"
	}

	maxRounds := len(blankIDs)*maxRefinementRoundsPerNode + 1
	for round := 0; round < maxRounds; round++ {
		next := make(map[string]string, len(blankIDs))
		changed := false
		for _, id := range blankIDs {
			newLabel := refineOne(id, incidences[id], labels)
			next[id] = newLabel
			if newLabel != labels[id] {
				changed = true
			}
		}
		labels = next
		if !changed {
			break
		}
	}
	return labels
}

// opaqueOtherRef renders the non-blank-node side of an incidence using
// its final term syntax; the blank-node side is resolved per-round by
// refineOne via the blankRef marker below.
func opaqueOtherRef(t rdf.Term) string {
	if bn, ok := t.(rdf.BlankNode); ok {
		return blankRefMarker + string(bn)
	}
	return t.String()
}

const blankRefMarker = "\x00blank:"

func refineOne(id string, incs []incidence, labels map[string]string) string {
	parts := make([]string, 0, len(incs))
	for _, inc := range incs {
		other := inc.other
		if strings.HasPrefix(other, blankRefMarker) {
			neighborID := strings.TrimPrefix(other, blankRefMarker)
			other = "_:" + labels[neighborID]
		}
		parts = append(parts, fmt.Sprintf("%c%c%s%c%s", inc.position, 0x1f, inc.predicate, 0x1f, other))
	}
	sort.Strings(parts)

	// The original label id never enters the hash: only a node's
	// structural role (its incidence multiset) may determine its final
	// label, or isomorphic graphs with differently-named blank nodes
	// would hash differently.
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	sum := h.Sum(nil)
	return fmt.Sprintf("%x", sum)
}

func collectBlankNodeIDs(triples []rdf.Triple) []string {
	seen := make(map[string]struct{})
	for _, t := range triples {
		if s, ok := t.Subject.(rdf.BlankNode); ok {
			seen[string(s)] = struct{}{}
		}
		if o, ok := t.Object.(rdf.BlankNode); ok {
			seen[string(o)] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate parses nothing itself (parsing is pkg/validation's job) but
// gives callers a uniform error to surface when upstream parsing failed.
func Validate(parseErr error) error {
	if parseErr == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrMalformedPayload, parseErr)
}
