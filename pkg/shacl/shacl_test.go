package shacl

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rdfchain/pkg/rdf"
)

const (
	exPerson = "http://example.org/Person"
	exName   = "http://example.org/name"
	exAge    = "http://example.org/age"
)

func buildShapesGraph() *rdf.Dataset {
	ds := rdf.NewDataset()
	shape := rdf.IRI("http://example.org/shapes#PersonShape")
	nameProp := rdf.IRI("http://example.org/shapes#PersonShapeNameProp")

	ds.AddQuad(rdf.Quad{Triple: rdf.Triple{
		Subject: shape, Predicate: rdf.IRI(rdfType), Object: rdf.IRI(shNodeShape),
	}})
	ds.AddQuad(rdf.Quad{Triple: rdf.Triple{
		Subject: shape, Predicate: rdf.IRI(shTargetClass), Object: rdf.IRI(exPerson),
	}})
	ds.AddQuad(rdf.Quad{Triple: rdf.Triple{
		Subject: shape, Predicate: rdf.IRI(shProperty), Object: nameProp,
	}})
	ds.AddQuad(rdf.Quad{Triple: rdf.Triple{
		Subject: nameProp, Predicate: rdf.IRI(shPath), Object: rdf.IRI(exName),
	}})
	one := 1
	_ = one
	ds.AddQuad(rdf.Quad{Triple: rdf.Triple{
		Subject: nameProp, Predicate: rdf.IRI(shMinCount), Object: rdf.NewTypedLiteral("1", "http://www.w3.org/2001/XMLSchema#integer"),
	}})
	return ds
}

func TestLoadShapes_ParsesNodeShapeAndProperty(t *testing.T) {
	shapes, err := LoadShapes(buildShapesGraph())
	require.NoError(t, err)
	require.Len(t, shapes, 1)
	require.Equal(t, "<"+exPerson+">", shapes[0].TargetClass)
	require.Len(t, shapes[0].Properties, 1)
	require.NotNil(t, shapes[0].Properties[0].MinCount)
	require.Equal(t, 1, *shapes[0].Properties[0].MinCount)
}

func TestValidate_MissingRequiredPropertyIsAViolation(t *testing.T) {
	shapes, err := LoadShapes(buildShapesGraph())
	require.NoError(t, err)

	data := rdf.NewGraph()
	data.Add(rdf.Triple{
		Subject: rdf.IRI("http://example.org/alice"), Predicate: rdf.IRI(rdfType), Object: rdf.IRI(exPerson),
	})

	violations := Validate(data, shapes)
	require.Len(t, violations, 1)
	require.Equal(t, "<"+exName+">", violations[0].Path)
}

func TestValidate_PresentRequiredPropertyPasses(t *testing.T) {
	shapes, err := LoadShapes(buildShapesGraph())
	require.NoError(t, err)

	data := rdf.NewGraph()
	data.Add(rdf.Triple{
		Subject: rdf.IRI("http://example.org/alice"), Predicate: rdf.IRI(rdfType), Object: rdf.IRI(exPerson),
	})
	data.Add(rdf.Triple{
		Subject: rdf.IRI("http://example.org/alice"), Predicate: rdf.IRI(exName), Object: rdf.NewStringLiteral("Alice"),
	})

	violations := Validate(data, shapes)
	require.Empty(t, violations)
}

func TestValidate_DatatypeMismatchIsAViolation(t *testing.T) {
	ds := rdf.NewDataset()
	shape := rdf.IRI("http://example.org/shapes#AgeShape")
	ageProp := rdf.IRI("http://example.org/shapes#AgeShapeProp")
	ds.AddQuad(rdf.Quad{Triple: rdf.Triple{Subject: shape, Predicate: rdf.IRI(rdfType), Object: rdf.IRI(shNodeShape)}})
	ds.AddQuad(rdf.Quad{Triple: rdf.Triple{Subject: shape, Predicate: rdf.IRI(shTargetClass), Object: rdf.IRI(exPerson)}})
	ds.AddQuad(rdf.Quad{Triple: rdf.Triple{Subject: shape, Predicate: rdf.IRI(shProperty), Object: ageProp}})
	ds.AddQuad(rdf.Quad{Triple: rdf.Triple{Subject: ageProp, Predicate: rdf.IRI(shPath), Object: rdf.IRI(exAge)}})
	ds.AddQuad(rdf.Quad{Triple: rdf.Triple{Subject: ageProp, Predicate: rdf.IRI(shDatatype), Object: rdf.IRI("http://www.w3.org/2001/XMLSchema#integer")}})

	shapes, err := LoadShapes(ds)
	require.NoError(t, err)

	data := rdf.NewGraph()
	data.Add(rdf.Triple{Subject: rdf.IRI("http://example.org/bob"), Predicate: rdf.IRI(rdfType), Object: rdf.IRI(exPerson)})
	data.Add(rdf.Triple{Subject: rdf.IRI("http://example.org/bob"), Predicate: rdf.IRI(exAge), Object: rdf.NewStringLiteral("not-a-number")})

	violations := Validate(data, shapes)
	require.Len(t, violations, 1)
}
