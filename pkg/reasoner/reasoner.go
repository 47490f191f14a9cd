// Package reasoner exposes the consistency/classification capability the
// validation pipeline's second gate checks payloads against, behind a
// small interface so the naive in-process implementation here can later
// be swapped for a real OWL 2 reasoner without touching callers.
// Evaluations are deduplicated per canonical input hash via singleflight
// so concurrent validations of the same payload do not repeat the work.
package reasoner

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"rdfchain/pkg/metrics"
	"rdfchain/pkg/rdf"
)

// PropertyChain is a property composition rule: chain[0] o chain[1] o
// ... implies Implied, e.g. hasParent o hasParent => hasGrandparent.
type PropertyChain struct {
	Chain   []string
	Implied string
}

// Report is the outcome of validating one graph against the active
// ontology: whether it is consistent, its class hierarchy membership
// closure, the property-chain inferences drawn, and any key (owl:
// hasKey-style) collisions found.
type Report struct {
	Consistent      bool
	Inconsistency   string
	ClassesOf       map[string][]string // subject IRI -> sorted class IRIs, including inferred superclasses
	InferredTriples []rdf.Triple
	KeyViolations   []string
}

// Reasoner is the capability the validation pipeline depends on.
type Reasoner interface {
	IsConsistent(ctx context.Context, data, ontology *rdf.Dataset) (bool, string, error)
	Classify(ctx context.Context, data, ontology *rdf.Dataset) (map[string][]string, error)
	InferPropertyChains(ctx context.Context, data *rdf.Dataset, chains []PropertyChain) ([]rdf.Triple, error)
	ValidateKeys(ctx context.Context, data *rdf.Dataset, keyProperties map[string][]string) ([]string, error)
}

const (
	rdfType        = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	rdfsSubClassOf = "http://www.w3.org/2000/01/rdf-schema#subClassOf"
	owlDisjointWith = "http://www.w3.org/2002/07/owl#disjointWith"
)

// Naive is a straightforward, non-tableaux reasoner: subclass-closure
// classification, one disjointness check, literal property-chain
// composition, and exact-match key collision detection. It is correct
// for the acyclic class hierarchies and short chains the domain
// ontologies in this system use, not a general description-logic
// decision procedure.
type Naive struct {
	group singleflight.Group
	mu    sync.Mutex
	cache map[[32]byte]Report
}

func NewNaive() *Naive {
	return &Naive{cache: make(map[[32]byte]Report)}
}

// evaluate runs the full analysis once per distinct (data, ontology)
// pair, sharing in-flight work across concurrent callers via
// singleflight and caching completed results by content hash.
func (n *Naive) evaluate(data, ontology *rdf.Dataset) (Report, error) {
	key := evaluationKey(data, ontology)

	n.mu.Lock()
	if cached, ok := n.cache[key]; ok {
		n.mu.Unlock()
		metrics.RecordReasonerCacheHit()
		return cached, nil
	}
	n.mu.Unlock()
	metrics.RecordReasonerCacheMiss()

	v, err, _ := n.group.Do(fmt.Sprintf("%x", key), func() (interface{}, error) {
		report := computeReport(data, ontology)
		n.mu.Lock()
		n.cache[key] = report
		n.mu.Unlock()
		return report, nil
	})
	if err != nil {
		return Report{}, err
	}
	return v.(Report), nil
}

func evaluationKey(data, ontology *rdf.Dataset) [32]byte {
	h := sha256.New()
	for _, q := range data.Quads() {
		h.Write([]byte(q.String()))
		h.Write([]byte{0x1e})
	}
	h.Write([]byte{0x00})
	for _, q := range ontology.Quads() {
		h.Write([]byte(q.String()))
		h.Write([]byte{0x1e})
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func subClassClosure(ontology *rdf.Dataset) map[string][]string {
	direct := map[string][]string{}
	for _, q := range ontology.Quads() {
		if q.Predicate.Value() == rdfsSubClassOf {
			if obj, ok := q.Object.(rdf.IRI); ok {
				sub := q.Subject.String()
				direct[sub] = append(direct[sub], obj.Value())
			}
		}
	}
	closure := map[string][]string{}
	for sub := range direct {
		seen := map[string]bool{}
		var walk func(string)
		walk = func(cur string) {
			for _, parent := range direct[cur] {
				if seen[parent] {
					continue
				}
				seen[parent] = true
				walk("<" + parent + ">")
			}
		}
		walk(sub)
		supers := make([]string, 0, len(seen))
		for s := range seen {
			supers = append(supers, s)
		}
		sort.Strings(supers)
		closure[sub] = supers
	}
	return closure
}

func disjointPairs(ontology *rdf.Dataset) map[string]map[string]bool {
	pairs := map[string]map[string]bool{}
	add := func(a, b string) {
		if pairs[a] == nil {
			pairs[a] = map[string]bool{}
		}
		pairs[a][b] = true
	}
	for _, q := range ontology.Quads() {
		if q.Predicate.Value() == owlDisjointWith {
			if obj, ok := q.Object.(rdf.IRI); ok {
				a, b := q.Subject.Value(), obj.Value()
				add(a, b)
				add(b, a)
			}
		}
	}
	return pairs
}

func computeReport(data, ontology *rdf.Dataset) Report {
	closure := subClassClosure(ontology)
	disjoint := disjointPairs(ontology)

	directTypes := map[string]map[string]bool{}
	for _, q := range data.Quads() {
		if q.Predicate.Value() != rdfType {
			continue
		}
		obj, ok := q.Object.(rdf.IRI)
		if !ok {
			continue
		}
		subj := q.Subject.String()
		if directTypes[subj] == nil {
			directTypes[subj] = map[string]bool{}
		}
		directTypes[subj][obj.Value()] = true
		for _, super := range closure["<"+obj.Value()+">"] {
			directTypes[subj][stripBrackets(super)] = true
		}
	}

	classesOf := map[string][]string{}
	for subj, classes := range directTypes {
		list := make([]string, 0, len(classes))
		for c := range classes {
			list = append(list, c)
		}
		sort.Strings(list)
		classesOf[subj] = list
	}

	for subj, classes := range directTypes {
		for a := range classes {
			for b := range disjoint[a] {
				if classes[b] {
					return Report{
						Consistent:   false,
						Inconsistency: fmt.Sprintf("%s is asserted as both %q and disjoint class %q", subj, a, b),
						ClassesOf:    classesOf,
					}
				}
			}
		}
	}

	return Report{Consistent: true, ClassesOf: classesOf}
}

func stripBrackets(s string) string {
	if len(s) >= 2 && s[0] == '<' && s[len(s)-1] == '>' {
		return s[1 : len(s)-1]
	}
	return s
}

func (n *Naive) IsConsistent(ctx context.Context, data, ontology *rdf.Dataset) (bool, string, error) {
	r, err := n.evaluate(data, ontology)
	if err != nil {
		return false, "", err
	}
	return r.Consistent, r.Inconsistency, nil
}

func (n *Naive) Classify(ctx context.Context, data, ontology *rdf.Dataset) (map[string][]string, error) {
	r, err := n.evaluate(data, ontology)
	if err != nil {
		return nil, err
	}
	return r.ClassesOf, nil
}

// InferPropertyChains composes literal triples in data matching each
// chain's predicate sequence via shared intermediate subjects/objects,
// asserting Implied directly between the chain's endpoints.
func (n *Naive) InferPropertyChains(ctx context.Context, data *rdf.Dataset, chains []PropertyChain) ([]rdf.Triple, error) {
	triples := data.Quads()
	byPredSubject := map[string]map[string][]string{} // predicate -> subject -> objects

	for _, q := range triples {
		obj, ok := q.Object.(rdf.IRI)
		if !ok {
			continue
		}
		pred := q.Predicate.Value()
		if byPredSubject[pred] == nil {
			byPredSubject[pred] = map[string][]string{}
		}
		subj := stripBrackets(q.Subject.String())
		byPredSubject[pred][subj] = append(byPredSubject[pred][subj], obj.Value())
	}

	var inferred []rdf.Triple
	for _, chain := range chains {
		if len(chain.Chain) != 2 {
			// Only two-hop composition is supported; longer chains would
			// need a general path-walk, which no domain ontology here uses.
			continue
		}
		first, second := chain.Chain[0], chain.Chain[1]
		for subj, mids := range byPredSubject[first] {
			for _, mid := range mids {
				for _, end := range byPredSubject[second][mid] {
					inferred = append(inferred, rdf.Triple{
						Subject:   rdf.IRI(subj),
						Predicate: rdf.IRI(chain.Implied),
						Object:    rdf.IRI(end),
					})
				}
			}
		}
	}
	sort.Slice(inferred, func(i, j int) bool { return inferred[i].String() < inferred[j].String() })
	return inferred, nil
}

// ValidateKeys reports, for each class with a declared key property
// set, every pair of distinct subjects whose key-property values are
// identical — an owl:hasKey-style uniqueness violation.
func (n *Naive) ValidateKeys(ctx context.Context, data *rdf.Dataset, keyProperties map[string][]string) ([]string, error) {
	triples := data.Quads()
	typeOf := map[string][]string{}
	values := map[string]map[string][]string{} // subject -> predicate -> values

	for _, q := range triples {
		subj := stripBrackets(q.Subject.String())
		if values[subj] == nil {
			values[subj] = map[string][]string{}
		}
		pred := q.Predicate.Value()
		values[subj][pred] = append(values[subj][pred], q.Object.Value())
		if pred == rdfType {
			if obj, ok := q.Object.(rdf.IRI); ok {
				typeOf[subj] = append(typeOf[subj], obj.Value())
			}
		}
	}

	var violations []string
	for class, keyProps := range keyProperties {
		seen := map[string]string{}
		var subjects []string
		for subj, classes := range typeOf {
			for _, c := range classes {
				if c == class {
					subjects = append(subjects, subj)
					break
				}
			}
		}
		sort.Strings(subjects)
		for _, subj := range subjects {
			keyValue := keyDigest(values[subj], keyProps)
			if keyValue == "" {
				continue
			}
			if other, ok := seen[keyValue]; ok {
				violations = append(violations, fmt.Sprintf("%s and %s share key value for class %q", other, subj, class))
			} else {
				seen[keyValue] = subj
			}
		}
	}
	sort.Strings(violations)
	return violations, nil
}

func keyDigest(props map[string][]string, keyProps []string) string {
	var parts []string
	for _, kp := range keyProps {
		vs := append([]string(nil), props[kp]...)
		sort.Strings(vs)
		parts = append(parts, kp+"="+fmt.Sprint(vs))
	}
	return fmt.Sprint(parts)
}
