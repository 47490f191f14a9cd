// Package trace implements the Traceability Query Engine: parameterized
// provenance walks over every committed named graph, expressed as
// repeated queries through pkg/query's validated pattern interface.
package trace

import (
	"context"
	"fmt"
	"sort"
	"time"

	"rdfchain/pkg/query"
)

// Direction selects which edges of the derivation graph a walk follows.
type Direction int

const (
	DirectionAncestors Direction = iota
	DirectionDescendants
	DirectionBoth
)

// Event is one derivation edge discovered by a walk.
type Event struct {
	SourceIRI   string
	RelationIRI string
	TargetIRI   string
	BlockIndex  uint64
	Timestamp   time.Time
}

// defaultRelationIRI is the predicate a trace walk follows to find an entity's
// derivation neighbors. Any predicate works as the relation position of
// the pattern; this one names the default the engine asks for when the
// caller hasn't supplied their own relation set.
const defaultRelationIRI = "http://rdfchain.example/ns#derivedFrom"

// BlockIndexSource resolves a committed graph IRI back to the block
// index and timestamp that produced it, used to stamp discovered events
// with their provenance block.
type BlockIndexSource interface {
	BlockIndexForGraph(graphIRI string) (uint64, time.Time, bool)
}

// Engine answers Trace/Environmental/Certifications walks.
type Engine struct {
	queryEngine *query.Engine
	blockIndex  BlockIndexSource
	relations   []string // predicates the walk treats as derivation edges
}

func NewEngine(queryEngine *query.Engine, blockIndex BlockIndexSource, relations ...string) *Engine {
	if len(relations) == 0 {
		relations = []string{defaultRelationIRI}
	}
	return &Engine{queryEngine: queryEngine, blockIndex: blockIndex, relations: relations}
}

// WalkOptions configures a Trace call.
type WalkOptions struct {
	MaxDepth int
	// FrontierReduction, when > 0, caps each iteration's frontier to the
	// FrontierReduction highest-degree nodes (most outgoing/incoming
	// matches in that round), trading completeness for latency.
	FrontierReduction int
}

// Trace walks entityIRI's derivation DAG up to maxDepth hops, following
// direction, with mandatory visited-set cycle protection.
func (e *Engine) Trace(ctx context.Context, entityIRI string, direction Direction, opts WalkOptions) ([]Event, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 1
	}

	visited := map[string]bool{entityIRI: true}
	frontier := []string{entityIRI}
	var events []Event

	for depth := 0; depth < opts.MaxDepth && len(frontier) > 0; depth++ {
		select {
		case <-ctx.Done():
			return events, ctx.Err()
		default:
		}

		var hops []hopResult

		for _, node := range frontier {
			found, err := e.neighborsOf(node, direction)
			if err != nil {
				return nil, err
			}
			hops = append(hops, found...)
		}

		frontier = frontier[:0]
		degree := make(map[string]int)
		for _, h := range hops {
			if visited[h.next] {
				continue
			}
			degree[h.next]++
		}

		candidates := make([]string, 0, len(degree))
		for node := range degree {
			candidates = append(candidates, node)
		}
		sort.Slice(candidates, func(i, j int) bool {
			if degree[candidates[i]] != degree[candidates[j]] {
				return degree[candidates[i]] > degree[candidates[j]]
			}
			return candidates[i] < candidates[j]
		})
		if opts.FrontierReduction > 0 && len(candidates) > opts.FrontierReduction {
			candidates = candidates[:opts.FrontierReduction]
		}
		allowed := make(map[string]bool, len(candidates))
		for _, c := range candidates {
			allowed[c] = true
		}

		for _, h := range hops {
			if visited[h.next] && h.next != entityIRI {
				continue
			}
			if !allowed[h.next] && h.next != entityIRI {
				continue
			}
			events = append(events, h.event)
		}
		for _, node := range candidates {
			if !visited[node] {
				visited[node] = true
				frontier = append(frontier, node)
			}
		}
	}
	return events, nil
}

type hopResult struct {
	event Event
	next  string
}

func (e *Engine) neighborsOf(node string, direction Direction) ([]hopResult, error) {
	var out []hopResult
	for _, rel := range e.relations {
		if direction == DirectionAncestors || direction == DirectionBoth {
			quads, err := e.queryEngine.MatchPattern(query.Pattern{Subject: query.IRI(node), Predicate: query.IRI(rel)})
			if err != nil {
				return nil, fmt.Errorf("trace: ancestor lookup for %q: %w", node, err)
			}
			for _, q := range quads {
				out = append(out, e.toHop(node, rel, q.Object.Value(), q.GraphName))
			}
		}
		if direction == DirectionDescendants || direction == DirectionBoth {
			quads, err := e.queryEngine.MatchPattern(query.Pattern{Object: query.IRI(node), Predicate: query.IRI(rel)})
			if err != nil {
				return nil, fmt.Errorf("trace: descendant lookup for %q: %w", node, err)
			}
			for _, q := range quads {
				out = append(out, e.toHop(node, rel, q.Subject.Value(), q.GraphName))
			}
		}
	}
	return out, nil
}

func (e *Engine) toHop(source, relation, target, graphIRI string) hopResult {
	var index uint64
	var ts time.Time
	if e.blockIndex != nil {
		if i, t, ok := e.blockIndex.BlockIndexForGraph(graphIRI); ok {
			index, ts = i, t
		}
	}
	return hopResult{
		event: Event{SourceIRI: source, RelationIRI: relation, TargetIRI: target, BlockIndex: index, Timestamp: ts},
		next:  target,
	}
}

const environmentalRelationIRI = "http://rdfchain.example/ns#hasEnvironmentalCondition"
const certificationRelationIRI = "http://rdfchain.example/ns#hasCertification"

// Environmental returns every environmental-condition resource
// associated with entityIRI.
func (e *Engine) Environmental(ctx context.Context, entityIRI string) ([]string, error) {
	return e.relatedResources(ctx, entityIRI, environmentalRelationIRI)
}

// Certifications returns every certification resource associated with
// entityIRI.
func (e *Engine) Certifications(ctx context.Context, entityIRI string) ([]string, error) {
	return e.relatedResources(ctx, entityIRI, certificationRelationIRI)
}

func (e *Engine) relatedResources(ctx context.Context, entityIRI, relationIRI string) ([]string, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	quads, err := e.queryEngine.MatchPattern(query.Pattern{Subject: query.IRI(entityIRI), Predicate: query.IRI(relationIRI)})
	if err != nil {
		return nil, fmt.Errorf("trace: related-resource lookup for %q: %w", entityIRI, err)
	}
	out := make([]string, 0, len(quads))
	for _, q := range quads {
		out = append(out, q.Object.Value())
	}
	sort.Strings(out)
	return out, nil
}
