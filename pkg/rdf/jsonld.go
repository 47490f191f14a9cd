package rdf

import (
	"fmt"

	"github.com/piprate/json-gold/ld"
)

// ToLDDataset converts a Dataset into json-gold's RDFDataset shape, so it
// can be handed to ld.NQuadRDFSerializer or used as input to a URDNA2015
// cross-check normalization.
func ToLDDataset(d *Dataset) *ld.RDFDataset {
	out := ld.NewRDFDataset()
	out.Graphs["@default"] = quadsToLD(d.Default.Sorted(), "")
	for _, name := range d.GraphNames() {
		out.Graphs[name] = quadsToLD(d.Named[name].Sorted(), name)
	}
	return out
}

func quadsToLD(triples []Triple, graph string) []*ld.Quad {
	label := graph
	if label == "" {
		label = "@default"
	}
	out := make([]*ld.Quad, 0, len(triples))
	for _, t := range triples {
		out = append(out, ld.NewQuad(
			termToLD(t.Subject),
			ld.NewIRI(string(t.Predicate)),
			termToLD(t.Object),
			label,
		))
	}
	return out
}

func termToLD(t Term) ld.Node {
	switch v := t.(type) {
	case IRI:
		return ld.NewIRI(string(v))
	case BlankNode:
		return ld.NewBlankNode("_:" + string(v))
	case Literal:
		return ld.NewLiteral(v.Lexical, v.Datatype, v.Language)
	default:
		panic(fmt.Sprintf("rdf: unknown term type %T", t))
	}
}

// SerializeViaLD renders the dataset to N-Quads text using json-gold's
// NQuadRDFSerializer; URDNA2015 uses it to produce its normalizer input.
func SerializeViaLD(d *Dataset) (string, error) {
	serializer := &ld.NQuadRDFSerializer{}
	out, err := serializer.Serialize(ToLDDataset(d))
	if err != nil {
		return "", fmt.Errorf("rdf: json-gold n-quads serialize: %w", err)
	}
	str, ok := out.(string)
	if !ok {
		return "", fmt.Errorf("rdf: unexpected json-gold serialize result type %T", out)
	}
	return str, nil
}

// URDNA2015 runs json-gold's reference RDF dataset canonicalization over
// d and returns the normalized N-Quads text. pkg/canonical uses this only
// as an independent cross-check in tests; the node's actual content hash
// is produced by pkg/canonical's own algorithm, which differs from
// URDNA2015 in its blank-node labeling scheme.
func URDNA2015(d *Dataset) (string, error) {
	nquads, err := SerializeViaLD(d)
	if err != nil {
		return "", err
	}

	processor := ld.NewJsonLdProcessor()
	opts := ld.NewJsonLdOptions("")
	opts.Algorithm = ld.AlgorithmURDNA2015
	opts.Format = "application/n-quads"
	opts.InputFormat = "application/n-quads"

	normalized, err := processor.Normalize(nquads, opts)
	if err != nil {
		return "", fmt.Errorf("rdf: urdna2015 normalize: %w", err)
	}
	str, ok := normalized.(string)
	if !ok {
		return "", fmt.Errorf("rdf: unexpected normalize result type %T", normalized)
	}
	return str, nil
}
