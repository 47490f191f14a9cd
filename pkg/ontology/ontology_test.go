package ontology

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"rdfchain/pkg/rdf"
)

func loaderFor(contents map[string]*rdf.Dataset, failPaths map[string]bool) Loader {
	return func(path string) (*rdf.Dataset, error) {
		if failPaths[path] {
			return nil, fmt.Errorf("simulated failure loading %s", path)
		}
		if ds, ok := contents[path]; ok {
			return ds, nil
		}
		return rdf.NewDataset(), nil
	}
}

func datasetWithOneQuad(graph string) *rdf.Dataset {
	ds := rdf.NewDataset()
	ds.AddQuad(rdf.Quad{
		Triple:    rdf.Triple{Subject: rdf.IRI("urn:s"), Predicate: rdf.IRI("urn:p"), Object: rdf.IRI("urn:o")},
		GraphName: graph,
	})
	return ds
}

func TestBundle_SnapshotReflectsEmptyInitialState(t *testing.T) {
	b := NewBundle()
	snap := b.Snapshot()
	require.Empty(t, snap.Core.GraphNames())
	require.Empty(t, snap.Domain.GraphNames())
	require.Empty(t, snap.Shapes)
}

func TestBundle_ReloadSwapsCoreDomainAndShapes(t *testing.T) {
	b := NewBundle()
	contents := map[string]*rdf.Dataset{
		"core.nq":   datasetWithOneQuad("urn:graph:core"),
		"domain.nq": datasetWithOneQuad("urn:graph:domain"),
		"shape.nq":  datasetWithOneQuad("urn:graph:shape"),
	}
	load := loaderFor(contents, nil)

	require.NoError(t, b.Reload(load, "core.nq", "domain.nq", []string{"shape.nq"}))

	snap := b.Snapshot()
	require.Equal(t, []string{"urn:graph:core"}, snap.Core.GraphNames())
	require.Equal(t, []string{"urn:graph:domain"}, snap.Domain.GraphNames())
	require.Len(t, snap.Shapes, 1)
}

func TestBundle_ReloadLeavesPreviousBundleOnFailure(t *testing.T) {
	b := NewBundle()
	contents := map[string]*rdf.Dataset{"core.nq": datasetWithOneQuad("urn:graph:core")}
	require.NoError(t, b.Reload(loaderFor(contents, nil), "core.nq", "", nil))

	failing := loaderFor(nil, map[string]bool{"domain.nq": true})
	err := b.Reload(failing, "core.nq", "domain.nq", nil)
	require.Error(t, err)

	snap := b.Snapshot()
	require.Equal(t, []string{"urn:graph:core"}, snap.Core.GraphNames())
}

func TestBundle_ReloadWithEmptyPathsYieldsEmptyDatasets(t *testing.T) {
	b := NewBundle()
	require.NoError(t, b.Reload(loaderFor(nil, nil), "", "", nil))

	snap := b.Snapshot()
	require.Empty(t, snap.Core.GraphNames())
	require.Empty(t, snap.Domain.GraphNames())
	require.Empty(t, snap.Shapes)
}
