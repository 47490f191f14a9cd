package rdf

import "sort"

// Graph is an unordered set of triples belonging to one named graph.
type Graph struct {
	triples []Triple
}

func NewGraph() *Graph { return &Graph{} }

func (g *Graph) Add(t Triple) {
	for _, existing := range g.triples {
		if existing == t {
			return
		}
	}
	g.triples = append(g.triples, t)
}

func (g *Graph) Triples() []Triple {
	out := make([]Triple, len(g.triples))
	copy(out, g.triples)
	return out
}

func (g *Graph) Len() int { return len(g.triples) }

// Sorted returns the graph's triples ordered by their N-Quads string form,
// the order in which pkg/store writes graphs and backups.
func (g *Graph) Sorted() []Triple {
	out := g.Triples()
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Dataset is a collection of named graphs plus one default graph,
// addressed by IRI. It is the unit of RDF payload carried in a block.
type Dataset struct {
	Default *Graph
	Named   map[string]*Graph
}

func NewDataset() *Dataset {
	return &Dataset{Default: NewGraph(), Named: make(map[string]*Graph)}
}

// AddQuad appends q to its graph, creating the named graph if absent.
func (d *Dataset) AddQuad(q Quad) {
	if q.GraphName == "" {
		d.Default.Add(q.Triple)
		return
	}
	g, ok := d.Named[q.GraphName]
	if !ok {
		g = NewGraph()
		d.Named[q.GraphName] = g
	}
	g.Add(q.Triple)
}

// GraphNames returns the sorted list of named graph IRIs present (the
// default graph, if non-empty, is not included — callers addressing
// "all committed named graphs" per the traceability engine want this).
func (d *Dataset) GraphNames() []string {
	names := make([]string, 0, len(d.Named))
	for name := range d.Named {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Quads flattens the dataset back into a slice of Quads, default graph first.
func (d *Dataset) Quads() []Quad {
	out := make([]Quad, 0, d.Default.Len())
	for _, t := range d.Default.Sorted() {
		out = append(out, Quad{Triple: t})
	}
	for _, name := range d.GraphNames() {
		for _, t := range d.Named[name].Sorted() {
			out = append(out, Quad{Triple: t, GraphName: name})
		}
	}
	return out
}
