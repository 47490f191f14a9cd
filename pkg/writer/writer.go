// Package writer provides the single choke point through which a
// validated block is applied: check it links onto the current tip,
// apply the new graph and block to the store and chain, verify the state
// root, and undo both on any failure so a half-applied block never
// becomes visible.
package writer

import (
	"fmt"
	"log"
	"sync"
	"time"

	"rdfchain/pkg/authority"
	"rdfchain/pkg/block"
	"rdfchain/pkg/canonical"
	"rdfchain/pkg/chain"
	"rdfchain/pkg/chainerr"
	"rdfchain/pkg/merkle"
	"rdfchain/pkg/metrics"
	"rdfchain/pkg/rdf"
)

var logger = log.New(log.Writer(), "[Writer] ", log.LstdFlags)

// GraphStore is the subset of pkg/store's Store the writer depends on,
// kept narrow so it can be faked in tests without an embedded database.
type GraphStore interface {
	AddGraph(iri string, graph *rdf.Graph) error
	RemoveGraph(iri string) error
	NamedGraphs() ([]string, error)
	Query(iri string) (*rdf.Graph, bool, error)
}

// Writer serializes all commits: only one block is ever being applied
// at a time, matching the single-writer assumption the rest of the
// node's storage layer is built on.
type Writer struct {
	mu    sync.Mutex
	chain *chain.Chain
	store GraphStore
}

func New(c *chain.Chain, s GraphStore) *Writer {
	return &Writer{chain: c, store: s}
}

// Commit applies candidate (whose PayloadRDF has already passed shape
// and reasoner validation) to the chain and store as a single unit:
//  1. check that candidate links onto the current chain tip
//  2. apply: add the block's named graph, append the block to the chain
//  3. verify: recompute the state root over every committed graph and
//     compare it to candidate.StateRoot
//  4. on any failure, remove the added graph (and truncate the chain if
//     the block was appended) and return an error; a
//     state-root mismatch after an otherwise successful append is an
//     invariant violation, not a validation failure, since it can only
//     mean the store and the chain have diverged.
func (w *Writer) Commit(candidate block.Block, payload *rdf.Graph, authorities *authority.Set) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	start := time.Now()
	defer func() { metrics.ObserveCommitLatency(time.Since(start)) }()

	graphIRI := candidate.NamedGraphIRI()

	if err := w.chain.CheckAppend(candidate, authorities); err != nil {
		return fmt.Errorf("writer: pre-commit check: %w", err)
	}

	if err := w.store.AddGraph(graphIRI, payload); err != nil {
		return fmt.Errorf("writer: apply graph %q: %w", graphIRI, err)
	}

	if err := w.chain.Append(candidate, authorities); err != nil {
		w.rollbackGraph(graphIRI)
		return fmt.Errorf("writer: apply block: %w", err)
	}

	root, err := w.recomputeStateRoot()
	if err != nil {
		w.rollbackGraph(graphIRI)
		w.chain.Truncate(candidate.Index)
		return fmt.Errorf("writer: recompute state root: %w", err)
	}
	if root != candidate.StateRoot {
		w.rollbackGraph(graphIRI)
		w.chain.Truncate(candidate.Index)
		return chainerr.InvariantBrokenAt("state_root", fmt.Sprintf("recomputed %x does not match committed %x at block %d", root, candidate.StateRoot, candidate.Index))
	}

	logger.Printf("committed block %d (graph=%s)", candidate.Index, graphIRI)
	return nil
}

func (w *Writer) rollbackGraph(graphIRI string) {
	if err := w.store.RemoveGraph(graphIRI); err != nil {
		logger.Printf("rollback: failed to remove graph %q: %v", graphIRI, err)
	}
}

// recomputeStateRoot rebuilds the Merkle state root over every block
// currently on the chain, hashing each block's committed graph from the
// store rather than trusting the block's own recorded hash, so a
// store/chain divergence is actually detected.
func (w *Writer) recomputeStateRoot() ([32]byte, error) {
	blocks := w.chain.All()
	leaves := make([]merkle.StateRootLeaf, 0, len(blocks))
	for _, b := range blocks {
		g, ok, err := w.store.Query(b.NamedGraphIRI())
		if err != nil {
			return [32]byte{}, fmt.Errorf("query graph for block %d: %w", b.Index, err)
		}
		if !ok {
			return [32]byte{}, fmt.Errorf("missing committed graph for block %d", b.Index)
		}
		leaves = append(leaves, merkle.StateRootLeaf{BlockIndex: b.Index, GraphHash: canonical.Hash(g)})
	}
	return merkle.StateRoot(leaves)
}
