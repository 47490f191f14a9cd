package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rdfchain/pkg/rdf"
)

type fakeGraphSource struct {
	graphs map[string]*rdf.Graph
}

func (f fakeGraphSource) NamedGraphs() ([]string, error) {
	var out []string
	for iri := range f.graphs {
		out = append(out, iri)
	}
	return out, nil
}

func (f fakeGraphSource) Query(iri string) (*rdf.Graph, bool, error) {
	g, ok := f.graphs[iri]
	return g, ok, nil
}

func buildTestSource() fakeGraphSource {
	g0 := rdf.NewGraph()
	g0.Add(rdf.Triple{Subject: rdf.IRI("urn:widget1"), Predicate: rdf.IRI("urn:derivedFrom"), Object: rdf.IRI("urn:batch1")})
	g1 := rdf.NewGraph()
	g1.Add(rdf.Triple{Subject: rdf.IRI("urn:widget2"), Predicate: rdf.IRI("urn:derivedFrom"), Object: rdf.IRI("urn:widget1")})
	return fakeGraphSource{graphs: map[string]*rdf.Graph{"urn:block:0": g0, "urn:block:1": g1}}
}

func TestEngine_MatchPattern_FiltersBySubject(t *testing.T) {
	e := NewEngine(buildTestSource(), nil)
	results, err := e.MatchPattern(Pattern{Subject: IRI("urn:widget1")})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "urn:batch1", results[0].Object.Value())
}

func TestEngine_MatchPattern_WildcardReturnsAll(t *testing.T) {
	e := NewEngine(buildTestSource(), nil)
	results, err := e.MatchPattern(Pattern{})
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestEngine_MatchPattern_FiltersByObject(t *testing.T) {
	e := NewEngine(buildTestSource(), nil)
	results, err := e.MatchPattern(Pattern{Object: IRI("urn:widget1")})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "urn:widget2", results[0].Subject.Value())
}
