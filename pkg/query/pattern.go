package query

import (
	"fmt"
	"time"

	"rdfchain/pkg/metrics"
	"rdfchain/pkg/rdf"
)

// GraphSource is the read surface the engine walks: every committed
// named graph, by IRI. pkg/store.Store satisfies this directly.
type GraphSource interface {
	NamedGraphs() ([]string, error)
	Query(iri string) (*rdf.Graph, bool, error)
}

// Pattern is a basic graph pattern of one triple: a nil field is a
// wildcard variable, a non-nil field pins that position to an exact
// IRI value.
type Pattern struct {
	Subject   *string
	Predicate *string
	Object    *string
}

func iri(s string) *string { return &s }

// IRI builds a Pattern term pinned to the given IRI value.
func IRI(value string) *string { return iri(value) }

// renderSelect produces the SPARQL-shaped text this pattern represents,
// purely so it can be run through Validator.Validate before execution —
// the engine itself still executes via MatchPattern's direct triple
// scan, not a real SPARQL parser.
func renderSelect(p Pattern) string {
	s := patternTerm(p.Subject, "s")
	pr := patternTerm(p.Predicate, "p")
	o := patternTerm(p.Object, "o")
	return fmt.Sprintf("SELECT ?s ?p ?o WHERE { %s %s %s }", s, pr, o)
}

func patternTerm(value *string, varName string) string {
	if value == nil {
		return "?" + varName
	}
	return "<" + *value + ">"
}

// Engine executes validated patterns against the union of every
// committed named graph.
type Engine struct {
	source    GraphSource
	validator *Validator
}

func NewEngine(source GraphSource, validator *Validator) *Engine {
	if validator == nil {
		validator = WithDefaultConfig()
	}
	return &Engine{source: source, validator: validator}
}

// MatchPattern validates the SPARQL-shaped rendering of p, then returns
// every quad across every committed named graph that satisfies it.
func (e *Engine) MatchPattern(p Pattern) ([]rdf.Quad, error) {
	start := time.Now()
	if err := e.validator.Validate(renderSelect(p)); err != nil {
		metrics.ObserveQueryLatency(time.Since(start), false)
		return nil, fmt.Errorf("query: rejected pattern: %w", err)
	}
	defer func() { metrics.ObserveQueryLatency(time.Since(start), true) }()

	iris, err := e.source.NamedGraphs()
	if err != nil {
		return nil, fmt.Errorf("query: list named graphs: %w", err)
	}

	var out []rdf.Quad
	for _, graphIRI := range iris {
		g, ok, err := e.source.Query(graphIRI)
		if err != nil {
			return nil, fmt.Errorf("query: read graph %q: %w", graphIRI, err)
		}
		if !ok {
			continue
		}
		for _, t := range g.Triples() {
			if !matches(p, t) {
				continue
			}
			out = append(out, rdf.Quad{Triple: t, GraphName: graphIRI})
		}
	}
	return out, nil
}

func matches(p Pattern, t rdf.Triple) bool {
	if p.Subject != nil && t.Subject.Value() != *p.Subject {
		return false
	}
	if p.Predicate != nil && t.Predicate.Value() != *p.Predicate {
		return false
	}
	if p.Object != nil && t.Object.Value() != *p.Object {
		return false
	}
	return true
}
