// Package consensus selects how a validated block candidate becomes
// final: either a single rotating authority signs it directly (PoA), or
// a quorum of authorities exchange PrePrepare/Prepare/Commit votes
// before it is accepted (PBFT-lite). Both protocols share the Protocol
// interface so pkg/writer and the wire-protocol handlers do not need to
// know which one is active.
package consensus

import (
	"context"

	"rdfchain/pkg/block"
)

// Protocol drives one candidate block from proposal to finality.
type Protocol interface {
	// Propose is called by the node that believes it is this round's
	// proposer; it returns the (possibly re-signed) candidate to
	// broadcast.
	Propose(ctx context.Context, candidate block.Block) (block.Block, error)
	// Accept records a vote or message from a peer authority toward
	// candidate's finality. It returns true once finality is reached.
	Accept(ctx context.Context, candidate block.Block, fromAuthorityID string, payload []byte) (bool, error)
	// Finalize returns the last block this protocol instance finalized,
	// if any.
	Finalize() (block.Block, bool)
}

// ValidateThreshold reports whether approveCount out of totalCount
// clears threshold (a fraction in (0,1]).
func ValidateThreshold(approveCount, totalCount int, threshold float64) bool {
	if totalCount == 0 {
		return false
	}
	return float64(approveCount)/float64(totalCount) >= threshold
}

// QuorumSize returns the smallest vote count that tolerates f Byzantine
// authorities out of a roster of n: the standard PBFT 2f+1 threshold,
// where f = (n-1)/3.
func QuorumSize(n int) int {
	if n <= 0 {
		return 0
	}
	f := (n - 1) / 3
	return 2*f + 1
}

// IsByzantineFaultTolerant reports whether a roster of n authorities can
// tolerate f Byzantine faults under n >= 3f + 1.
func IsByzantineFaultTolerant(n, f int) bool {
	return n >= 3*f+1
}
