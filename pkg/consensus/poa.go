package consensus

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"rdfchain/pkg/authkey"
	"rdfchain/pkg/authority"
	"rdfchain/pkg/block"
	"rdfchain/pkg/canonical"
	"rdfchain/pkg/chainerr"
	"rdfchain/pkg/metrics"
	"rdfchain/pkg/rdf"
)

var poaLogger = log.New(log.Writer(), "[PoA] ", log.LstdFlags)

// PoA is proof-of-authority: the round-robin proposer for a block index
// signs it and that signature alone is sufficient for finality — no
// further voting round. ExpectedProposer picks the proposer
// deterministically from the active authority roster so every honest
// node agrees on whose turn it is without exchanging any messages.
type PoA struct {
	mu          sync.Mutex
	authorities *authority.Set
	localID     string

	finalized block.Block
	hasFinal  bool
}

func NewPoA(authorities *authority.Set, localID string) *PoA {
	return &PoA{authorities: authorities, localID: localID}
}

// ExpectedProposer returns the authority ID whose turn it is to
// propose the block at index, chosen by round-robin over the active
// roster's fixed (sorted) rotation order.
func ExpectedProposer(authorities *authority.Set, index uint64) (string, bool) {
	active := authorities.ActiveAt(index)
	if len(active) == 0 {
		return "", false
	}
	return active[index%uint64(len(active))], true
}

// Propose admits candidate for broadcast if and only if the local
// authority is this index's expected proposer; candidate is assumed
// already signed by pkg/validation under that same authority's key.
func (p *PoA) Propose(ctx context.Context, candidate block.Block) (block.Block, error) {
	expected, ok := ExpectedProposer(p.authorities, candidate.Index)
	if !ok {
		return block.Block{}, chainerr.LinkBrokenAt(candidate.Index, "no active authority to propose")
	}
	if expected != p.localID {
		return block.Block{}, fmt.Errorf("block %d: not our turn to propose (expected %q): %w", candidate.Index, expected, chainerr.ErrConflict)
	}
	return candidate, nil
}

// Accept verifies that the proposing authority was indeed the expected
// round-robin proposer and that its signature is valid, then finalizes
// immediately: PoA requires no further voting round.
func (p *PoA) Accept(ctx context.Context, candidate block.Block, fromAuthorityID string, payload []byte) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	expected, ok := ExpectedProposer(p.authorities, candidate.Index)
	if !ok || expected != fromAuthorityID {
		metrics.RecordConsensusRound("poa", "rejected")
		return false, fmt.Errorf("block %d: authority %q is not the expected proposer: %w", candidate.Index, fromAuthorityID, chainerr.ErrLinkBroken)
	}
	record, ok := p.authorities.Get(fromAuthorityID)
	if !ok {
		metrics.RecordConsensusRound("poa", "rejected")
		return false, chainerr.LinkBrokenAt(candidate.Index, fmt.Sprintf("unknown authority %q", fromAuthorityID))
	}

	quads, err := rdf.ParseNQuads(strings.NewReader(candidate.PayloadRDF))
	if err != nil {
		return false, chainerr.MalformedPayloadAt(candidate.Index, err)
	}
	graph := rdf.NewGraph()
	for _, q := range quads {
		graph.Add(q.Triple)
	}
	graphHash := canonical.Hash(graph)

	signable := block.SignableBytes(candidate.Index, candidate.Timestamp, graphHash, candidate.PreviousHash, candidate.StateRoot, candidate.AuthorityID, candidate.EncryptedPayload)
	ok, err = authkey.Verify(authkey.Scheme(record.Scheme), record.PublicKey, signable, candidate.Signature)
	if err != nil {
		metrics.RecordConsensusRound("poa", "rejected")
		return false, fmt.Errorf("block %d: %w: %v", candidate.Index, chainerr.ErrSigningFailed, err)
	}
	if !ok {
		metrics.RecordConsensusRound("poa", "rejected")
		return false, fmt.Errorf("block %d: signature verification failed: %w", candidate.Index, chainerr.ErrSigningFailed)
	}

	p.finalized = candidate
	p.hasFinal = true
	poaLogger.Printf("finalized block %d proposed by %s", candidate.Index, fromAuthorityID)
	metrics.RecordConsensusRound("poa", "finalized")
	return true, nil
}

func (p *PoA) Finalize() (block.Block, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finalized, p.hasFinal
}
