package consensus

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	cmtlog "github.com/cometbft/cometbft/libs/log"

	"rdfchain/pkg/authkey"
	"rdfchain/pkg/authority"
	"rdfchain/pkg/block"
	"rdfchain/pkg/canonical"
	"rdfchain/pkg/chainerr"
	"rdfchain/pkg/metrics"
	"rdfchain/pkg/rdf"
)

// phase is where a candidate sits in the PBFT-lite three-phase protocol.
type phase int

const (
	phasePrePrepare phase = iota
	phasePrepare
	phaseCommit
	phaseFinalized
)

// round tracks one block index's in-flight voting state across views.
type round struct {
	view      uint64
	phase     phase
	candidate block.Block
	prepares  map[string]bool
	commits   map[string]bool
	viewVotes map[uint64]map[string]bool // view -> authority IDs that voted to advance to it
	finalized bool
}

// PBFT is a PBFT-lite protocol: a quorum of 2f+1 authorities must exchange
// Prepare and Commit votes over a candidate before it finalizes. Unlike
// full PBFT it persists only the latest finalized block per height and
// drives view-change off a simple vote count rather than timers.
type PBFT struct {
	mu          sync.Mutex
	authorities *authority.Set
	localID     string
	logger      cmtlog.Logger

	rounds map[uint64]*round // block index -> in-flight round

	lastFinalized block.Block
	hasFinal      bool
}

func NewPBFT(authorities *authority.Set, localID string) *PBFT {
	return &PBFT{
		authorities: authorities,
		localID:     localID,
		logger:      cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout)).With("module", "pbft"),
		rounds:      make(map[uint64]*round),
	}
}

// NewPBFTWithLogger allows callers (e.g. the node entrypoint) to supply a
// logger wired to the process's own output sink instead of NewPBFT's
// default stdout logger.
func NewPBFTWithLogger(authorities *authority.Set, localID string, logger cmtlog.Logger) *PBFT {
	p := NewPBFT(authorities, localID)
	p.logger = logger
	return p
}

func (p *PBFT) getOrCreateRound(index uint64, candidate block.Block) *round {
	r, ok := p.rounds[index]
	if !ok {
		r = &round{
			phase:     phasePrePrepare,
			candidate: candidate,
			prepares:  make(map[string]bool),
			commits:   make(map[string]bool),
			viewVotes: make(map[uint64]map[string]bool),
		}
		p.rounds[index] = r
	}
	return r
}

// Propose is called by the view's designated leader to kick off
// PrePrepare for candidate. In view 0 that is the round-robin proposer
// (same rule as PoA); each completed view change moves leadership one
// step further along ActiveAt's order.
func (p *PBFT) Propose(ctx context.Context, candidate block.Block) (block.Block, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	view := uint64(0)
	if r, ok := p.rounds[candidate.Index]; ok {
		view = r.view
	}
	active := p.authorities.ActiveAt(candidate.Index)
	if len(active) == 0 {
		return block.Block{}, chainerr.LinkBrokenAt(candidate.Index, "no active authority to propose")
	}
	expected := active[(candidate.Index+view)%uint64(len(active))]
	if expected != p.localID {
		return block.Block{}, fmt.Errorf("block %d: not our turn to propose (expected %q): %w", candidate.Index, expected, chainerr.ErrConflict)
	}

	r := p.getOrCreateRound(candidate.Index, candidate)
	r.candidate = candidate
	p.logger.Debug("pre-prepare", "index", candidate.Index, "view", r.view, "proposer", p.localID)
	return candidate, nil
}

// Accept records one authority's vote toward candidate's finality.
// payload distinguishes which kind of vote it is: "prepare", "commit", or
// "viewchange" (anything else, including empty, is treated as an implicit
// prepare vote so a single round-trip protocol can still drive this
// three-phase state machine without a richer transport envelope).
func (p *PBFT) Accept(ctx context.Context, candidate block.Block, fromAuthorityID string, payload []byte) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.authorities.IsActiveAt(fromAuthorityID, candidate.Index) {
		return false, chainerr.LinkBrokenAt(candidate.Index, fmt.Sprintf("unknown or inactive authority %q", fromAuthorityID))
	}

	r := p.getOrCreateRound(candidate.Index, candidate)
	if r.finalized {
		return true, nil
	}

	quorum := QuorumSize(p.authorities.Len())
	voteKind := strings.ToLower(strings.TrimSpace(string(payload)))

	switch voteKind {
	case "viewchange":
		return false, p.recordViewChange(r, candidate.Index, fromAuthorityID, quorum)
	case "commit":
		r.commits[fromAuthorityID] = true
	default:
		if err := p.verifyCandidateSignature(r.candidate, candidate, fromAuthorityID); err != nil {
			return false, err
		}
		r.prepares[fromAuthorityID] = true
	}

	if r.phase < phasePrepare && len(r.prepares) >= quorum {
		r.phase = phasePrepare
		p.logger.Debug("prepare-quorum-reached", "index", candidate.Index, "votes", len(r.prepares))
	}
	if r.phase >= phasePrepare && len(r.commits) >= quorum {
		r.phase = phaseCommit
	}

	if len(r.prepares) >= quorum && len(r.commits) >= quorum && !r.finalized {
		r.finalized = true
		r.phase = phaseFinalized
		p.lastFinalized = r.candidate
		p.hasFinal = true
		delete(p.rounds, candidate.Index)
		p.logger.Info("finalized", "index", candidate.Index, "view", r.view)
		metrics.RecordConsensusRound("pbft", "finalized")
		return true, nil
	}
	return false, nil
}

// recordViewChange tallies a vote to abandon the current leader for
// candidate.Index and rotate to the next authority in ActiveAt's fixed
// order; once 2f+1 authorities agree, the round's view advances and its
// votes are cleared so the new leader gets a fresh PrePrepare.
func (p *PBFT) recordViewChange(r *round, index uint64, fromAuthorityID string, quorum int) error {
	nextView := r.view + 1
	if r.viewVotes[nextView] == nil {
		r.viewVotes[nextView] = make(map[string]bool)
	}
	r.viewVotes[nextView][fromAuthorityID] = true

	if len(r.viewVotes[nextView]) >= quorum {
		r.view = nextView
		r.phase = phasePrePrepare
		r.prepares = make(map[string]bool)
		r.commits = make(map[string]bool)
		p.logger.Info("view-change", "index", index, "new_view", nextView)
		metrics.RecordViewChange()
	}
	return nil
}

// verifyCandidateSignature checks that vote's candidate matches the
// round's proposed block exactly and that fromAuthorityID's claimed
// signer is a real signature over it, rejecting a prepare vote for a
// divergent payload before it can count toward quorum.
func (p *PBFT) verifyCandidateSignature(proposed, vote block.Block, fromAuthorityID string) error {
	if proposed.ContentHash != vote.ContentHash {
		return fmt.Errorf("block %d: prepare vote references a different candidate: %w", vote.Index, chainerr.ErrConflict)
	}
	record, ok := p.authorities.Get(vote.AuthorityID)
	if !ok {
		return chainerr.LinkBrokenAt(vote.Index, fmt.Sprintf("unknown proposer authority %q", vote.AuthorityID))
	}

	quads, err := rdf.ParseNQuads(strings.NewReader(vote.PayloadRDF))
	if err != nil {
		return chainerr.MalformedPayloadAt(vote.Index, err)
	}
	graph := rdf.NewGraph()
	for _, q := range quads {
		graph.Add(q.Triple)
	}
	graphHash := canonical.Hash(graph)

	signable := block.SignableBytes(vote.Index, vote.Timestamp, graphHash, vote.PreviousHash, vote.StateRoot, vote.AuthorityID, vote.EncryptedPayload)
	ok, err = authkey.Verify(authkey.Scheme(record.Scheme), record.PublicKey, signable, vote.Signature)
	if err != nil {
		return fmt.Errorf("block %d: %w: %v", vote.Index, chainerr.ErrSigningFailed, err)
	}
	if !ok {
		return fmt.Errorf("block %d: signature verification failed: %w", vote.Index, chainerr.ErrSigningFailed)
	}
	return nil
}

func (p *PBFT) Finalize() (block.Block, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastFinalized, p.hasFinal
}

// PendingView reports the current view number for index's round, for
// diagnostics and wire-protocol status replies.
func (p *PBFT) PendingView(index uint64) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.rounds[index]
	if !ok {
		return 0, false
	}
	return r.view, true
}

// TODO: drive view-change off a real timeout once pkg/wire exposes
// round-trip latency stats, instead of relying solely on vote counts.
