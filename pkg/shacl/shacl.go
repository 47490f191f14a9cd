// Package shacl implements a pragmatic subset of shape-based graph
// validation: node shapes with property shapes carrying minCount,
// maxCount, class, datatype, and pattern constraints. There is no general
// SHACL engine in the reference dependency set, so this is hand-rolled
// against the stdlib, grounded directly on the shape fixtures exercised
// by the original prototype's validation test suite.
package shacl

import (
	"fmt"
	"regexp"
	"sort"

	"rdfchain/pkg/rdf"
)

const (
	shNodeShape     = "http://www.w3.org/ns/shacl#NodeShape"
	shTargetClass   = "http://www.w3.org/ns/shacl#targetClass"
	shProperty      = "http://www.w3.org/ns/shacl#property"
	shPath          = "http://www.w3.org/ns/shacl#path"
	shMinCount      = "http://www.w3.org/ns/shacl#minCount"
	shMaxCount      = "http://www.w3.org/ns/shacl#maxCount"
	shClass         = "http://www.w3.org/ns/shacl#class"
	shDatatype      = "http://www.w3.org/ns/shacl#datatype"
	shPattern       = "http://www.w3.org/ns/shacl#pattern"
	rdfType         = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
)

// Violation describes one failed constraint, named the way the SHACL
// validation report vocabulary does: by focus node, path, and message.
type Violation struct {
	FocusNode string
	Path      string
	Message   string
}

// PropertyShape is one sh:property entry under a node shape.
type PropertyShape struct {
	Path     string
	MinCount *int
	MaxCount *int
	Class    string
	Datatype string
	Pattern  *regexp.Regexp
}

// NodeShape targets every resource with rdf:type TargetClass and checks
// each of its Properties.
type NodeShape struct {
	TargetClass string
	Properties  []PropertyShape
}

// LoadShapes reads sh:NodeShape subjects out of a shapes graph dataset
// into the in-memory form Validate checks against.
func LoadShapes(ds *rdf.Dataset) ([]NodeShape, error) {
	quads := ds.Quads()
	byShape := map[string][]rdf.Quad{}
	isNodeShape := map[string]bool{}
	for _, q := range quads {
		if q.Predicate.Value() == rdfType && objectIRI(q) == shNodeShape {
			isNodeShape[q.Subject.String()] = true
		}
	}
	for _, q := range quads {
		byShape[q.Subject.String()] = append(byShape[q.Subject.String()], q)
	}

	shapeIDs := make([]string, 0, len(isNodeShape))
	for id := range isNodeShape {
		shapeIDs = append(shapeIDs, id)
	}
	sort.Strings(shapeIDs)

	shapes := make([]NodeShape, 0, len(shapeIDs))
	for _, id := range shapeIDs {
		shape := NodeShape{}
		var propNodes []string
		for _, q := range byShape[id] {
			switch q.Predicate.Value() {
			case shTargetClass:
				shape.TargetClass = objectIRI(q)
			case shProperty:
				propNodes = append(propNodes, objectIRI(q))
			}
		}
		sort.Strings(propNodes)
		for _, pn := range propNodes {
			ps, err := loadPropertyShape(byShape[pn])
			if err != nil {
				return nil, fmt.Errorf("shacl: load property shape %q: %w", pn, err)
			}
			shape.Properties = append(shape.Properties, ps)
		}
		shapes = append(shapes, shape)
	}
	return shapes, nil
}

func loadPropertyShape(quads []rdf.Quad) (PropertyShape, error) {
	ps := PropertyShape{}
	for _, q := range quads {
		switch q.Predicate.Value() {
		case shPath:
			ps.Path = objectIRI(q)
		case shMinCount:
			n, err := literalInt(q)
			if err != nil {
				return ps, err
			}
			ps.MinCount = &n
		case shMaxCount:
			n, err := literalInt(q)
			if err != nil {
				return ps, err
			}
			ps.MaxCount = &n
		case shClass:
			ps.Class = objectIRI(q)
		case shDatatype:
			ps.Datatype = objectIRI(q)
		case shPattern:
			lit, ok := q.Object.(rdf.Literal)
			if !ok {
				return ps, fmt.Errorf("shacl: sh:pattern object must be a literal")
			}
			re, err := regexp.Compile(lit.Lexical)
			if err != nil {
				return ps, fmt.Errorf("shacl: invalid sh:pattern %q: %w", lit.Lexical, err)
			}
			ps.Pattern = re
		}
	}
	if ps.Path == "" {
		return ps, fmt.Errorf("shacl: property shape missing sh:path")
	}
	return ps, nil
}

// Validate checks every target-class instance in data against shapes,
// returning every violation found (it does not stop at the first).
func Validate(data *rdf.Graph, shapes []NodeShape) []Violation {
	var violations []Violation
	triples := data.Triples()

	byType := map[string][]string{}
	bySubjectPredicate := map[string][]rdf.Triple{}
	for _, t := range triples {
		bySubjectPredicate[t.Subject.String()+"\x00"+t.Predicate.String()] = append(bySubjectPredicate[t.Subject.String()+"\x00"+t.Predicate.String()], t)
		if t.Predicate.Value() == rdfType {
			if iri, ok := t.Object.(rdf.IRI); ok {
				byType[iri.String()] = append(byType[iri.String()], t.Subject.String())
			}
		}
	}

	for _, shape := range shapes {
		subjects := append([]string(nil), byType[shape.TargetClass]...)
		sort.Strings(subjects)
		for _, subj := range subjects {
			for _, prop := range shape.Properties {
				values := bySubjectPredicate[subj+"\x00"+prop.Path]
				violations = append(violations, checkProperty(subj, prop, values)...)
			}
		}
	}
	return violations
}

func checkProperty(subject string, prop PropertyShape, values []rdf.Triple) []Violation {
	var out []Violation
	count := len(values)

	if prop.MinCount != nil && count < *prop.MinCount {
		out = append(out, Violation{
			FocusNode: subject,
			Path:      prop.Path,
			Message:   fmt.Sprintf("expected at least %d value(s), found %d", *prop.MinCount, count),
		})
	}
	if prop.MaxCount != nil && count > *prop.MaxCount {
		out = append(out, Violation{
			FocusNode: subject,
			Path:      prop.Path,
			Message:   fmt.Sprintf("expected at most %d value(s), found %d", *prop.MaxCount, count),
		})
	}

	for _, v := range values {
		if prop.Datatype != "" {
			lit, ok := v.Object.(rdf.Literal)
			if !ok || "<"+lit.Datatype+">" != prop.Datatype {
				out = append(out, Violation{
					FocusNode: subject,
					Path:      prop.Path,
					Message:   fmt.Sprintf("value must have datatype %q", prop.Datatype),
				})
			}
		}
		if prop.Pattern != nil {
			lit, ok := v.Object.(rdf.Literal)
			if !ok || !prop.Pattern.MatchString(lit.Lexical) {
				out = append(out, Violation{
					FocusNode: subject,
					Path:      prop.Path,
					Message:   fmt.Sprintf("value does not match pattern %q", prop.Pattern.String()),
				})
			}
		}
		if prop.Class != "" {
			// A class constraint rejects literal objects. For IRI and
			// blank-node objects no rdf:type triple is looked up, so they
			// pass regardless of their class.
			if _, ok := v.Object.(rdf.Literal); ok {
				out = append(out, Violation{
					FocusNode: subject,
					Path:      prop.Path,
					Message:   fmt.Sprintf("value must be an instance of %q", prop.Class),
				})
			}
		}
	}
	return out
}

func objectIRI(q rdf.Quad) string {
	if iri, ok := q.Object.(rdf.IRI); ok {
		return iri.String()
	}
	return ""
}

func literalInt(q rdf.Quad) (int, error) {
	lit, ok := q.Object.(rdf.Literal)
	if !ok {
		return 0, fmt.Errorf("shacl: expected literal object for %s", q.Predicate.String())
	}
	var n int
	if _, err := fmt.Sscanf(lit.Lexical, "%d", &n); err != nil {
		return 0, fmt.Errorf("shacl: %s value %q is not an integer", q.Predicate.String(), lit.Lexical)
	}
	return n, nil
}
