// Package validation runs a proposed block's payload through the full
// six-phase admission pipeline before it is handed to pkg/writer:
// parse, SHACL shape validation, reasoner consistency check, chain
// link-check, canonicalization, and signing. Each phase can abort with
// a typed pkg/chainerr error identifying exactly which gate failed.
package validation

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"rdfchain/pkg/authkey"
	"rdfchain/pkg/authority"
	"rdfchain/pkg/block"
	"rdfchain/pkg/canonical"
	"rdfchain/pkg/chain"
	"rdfchain/pkg/chainerr"
	"rdfchain/pkg/merkle"
	"rdfchain/pkg/ontology"
	"rdfchain/pkg/rdf"
	"rdfchain/pkg/reasoner"
	"rdfchain/pkg/shacl"
)

var logger = log.New(log.Writer(), "[Validation] ", log.LstdFlags)

// Proposal is the untrusted input to the pipeline: the payload as
// received over the wire, plus the metadata the chain link-check and
// signer need.
type Proposal struct {
	PayloadRDF       string
	AuthorityID      string
	Timestamp        time.Time
	EncryptedPayload []byte

	// CorrelationID ties this proposal's log lines together across
	// validation, consensus broadcast, and commit; it plays no part in
	// any hash or signature.
	CorrelationID string
}

// Pipeline bundles everything validation needs beyond the proposal
// itself: the current chain (for link-check and prior leaves), the
// authority roster, the active ontology/shape bundle, the reasoner, and
// the signer for the authority producing this block.
type Pipeline struct {
	Chain       *chain.Chain
	Authorities *authority.Set
	Ontology    *ontology.Bundle
	Reasoner    reasoner.Reasoner
	Signer      authkey.Signer
	// PriorLeaves supplies every already-committed (index, graph hash)
	// pair so the new state root can be computed without re-reading the
	// whole store on every validation.
	PriorLeaves func() []merkle.StateRootLeaf
}

// Validate runs all six phases and returns the fully populated block
// ready for pkg/writer.Commit, or the first typed error encountered.
func (p *Pipeline) Validate(ctx context.Context, prop Proposal) (block.Block, *rdf.Graph, error) {
	tip, hasTip := p.Chain.Tip()
	nextIndex := uint64(0)
	if hasTip {
		nextIndex = tip.Index + 1
	}

	// Phase 1: parse.
	quads, err := rdf.ParseNQuads(strings.NewReader(prop.PayloadRDF))
	if err != nil {
		return block.Block{}, nil, chainerr.MalformedPayloadAt(nextIndex, err)
	}
	payload := rdf.NewGraph()
	for _, q := range quads {
		payload.Add(q.Triple)
	}

	snapshot := p.Ontology.Snapshot()

	// Phase 2: SHACL shape validation.
	var allShapes []shacl.NodeShape
	for _, shapeDS := range snapshot.Shapes {
		shapes, err := shacl.LoadShapes(shapeDS)
		if err != nil {
			return block.Block{}, nil, fmt.Errorf("block %d: load shapes: %w", nextIndex, err)
		}
		allShapes = append(allShapes, shapes...)
	}
	if violations := shacl.Validate(payload, allShapes); len(violations) > 0 {
		v := violations[0]
		return block.Block{}, nil, chainerr.ShapeViolationAt(nextIndex, v.FocusNode, v.Path, v.Message)
	}

	// Phase 3: reasoner consistency check.
	payloadDS := rdf.NewDataset()
	for _, t := range payload.Triples() {
		payloadDS.AddQuad(rdf.Quad{Triple: t})
	}
	ontologyDS := mergeDatasets(snapshot.Core, snapshot.Domain)
	consistent, reason, err := p.Reasoner.IsConsistent(ctx, payloadDS, ontologyDS)
	if err != nil {
		return block.Block{}, nil, fmt.Errorf("block %d: reasoner: %w", nextIndex, err)
	}
	if !consistent {
		return block.Block{}, nil, fmt.Errorf("block %d: %s: %w", nextIndex, reason, chainerr.ErrOntologyInconsistent)
	}

	// Phase 4: link-check (index monotonicity, previous-hash linking,
	// non-decreasing timestamps, authority membership), run against a
	// draft block carrying everything computed except content_hash and
	// signature.
	previousHash := block.ZeroHash
	if hasTip {
		previousHash = tip.ContentHash
	}
	draft := block.Block{
		Index:            nextIndex,
		Timestamp:        prop.Timestamp,
		AuthorityID:      prop.AuthorityID,
		PreviousHash:     previousHash,
		EncryptedPayload: prop.EncryptedPayload,
	}
	if err := p.Chain.CheckAppend(draft, p.Authorities); err != nil {
		return block.Block{}, nil, err
	}

	// Phase 5: canonicalize the payload and fold it into the state root.
	graphHash := canonical.Hash(payload)
	leaves := append(p.PriorLeaves(), merkle.StateRootLeaf{BlockIndex: nextIndex, GraphHash: graphHash})
	stateRoot, err := merkle.StateRoot(leaves)
	if err != nil {
		return block.Block{}, nil, fmt.Errorf("block %d: state root: %w", nextIndex, err)
	}

	contentHash := block.ComputeContentHash(nextIndex, prop.Timestamp, graphHash, previousHash, stateRoot, prop.AuthorityID, prop.EncryptedPayload)
	final := block.Block{
		Index:            nextIndex,
		Timestamp:        prop.Timestamp,
		PayloadRDF:       prop.PayloadRDF,
		PreviousHash:     previousHash,
		StateRoot:        stateRoot,
		AuthorityID:      prop.AuthorityID,
		ContentHash:      contentHash,
		EncryptedPayload: prop.EncryptedPayload,
	}

	// Phase 6: sign. Proposers that are not authorities hold no signing
	// key (p.Signer is nil for them) and stop here, publishing the
	// unsigned block to the network for an authority to co-sign instead
	// of producing a signature they have no key for.
	if p.Signer == nil {
		logger.Printf("validated block %d without local signature (graph_hash=%x, correlation_id=%s)", nextIndex, graphHash, prop.CorrelationID)
		return final, payload, nil
	}

	signable := block.SignableBytes(nextIndex, prop.Timestamp, graphHash, previousHash, stateRoot, prop.AuthorityID, prop.EncryptedPayload)
	sig, err := p.Signer.Sign(signable)
	if err != nil {
		return block.Block{}, nil, fmt.Errorf("block %d: %w: %v", nextIndex, chainerr.ErrSigningFailed, err)
	}
	final.Signature = sig

	logger.Printf("validated block %d (graph_hash=%x, correlation_id=%s)", nextIndex, graphHash, prop.CorrelationID)
	return final, payload, nil
}

func mergeDatasets(a, b *rdf.Dataset) *rdf.Dataset {
	merged := rdf.NewDataset()
	for _, q := range a.Quads() {
		merged.AddQuad(q)
	}
	for _, q := range b.Quads() {
		merged.AddQuad(q)
	}
	return merged
}
