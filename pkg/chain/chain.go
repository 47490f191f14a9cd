// Package chain holds the append-only vector of committed blocks and the
// invariants every append must satisfy before it is accepted.
package chain

import (
	"fmt"
	"log"
	"sync"

	"rdfchain/pkg/authority"
	"rdfchain/pkg/block"
	"rdfchain/pkg/chainerr"
	"rdfchain/pkg/metrics"
)

var logger = log.New(log.Writer(), "[Chain] ", log.LstdFlags)

// Chain is the in-memory, lock-protected vector of committed blocks. The
// durable record lives in pkg/blocklog; Chain is the validated view over
// it that pkg/writer and pkg/consensus operate against.
type Chain struct {
	mu     sync.RWMutex
	blocks []block.Block
}

func New() *Chain {
	return &Chain{}
}

// Tip returns the most recently committed block and true, or the zero
// value and false if the chain is empty.
func (c *Chain) Tip() (block.Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.blocks) == 0 {
		return block.Block{}, false
	}
	return c.blocks[len(c.blocks)-1], true
}

// Height returns the number of committed blocks.
func (c *Chain) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return uint64(len(c.blocks))
}

// At returns the block at index, or false if out of range.
func (c *Chain) At(index uint64) (block.Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if index >= uint64(len(c.blocks)) {
		return block.Block{}, false
	}
	return c.blocks[index], true
}

// All returns a copy of the committed block slice.
func (c *Chain) All() []block.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]block.Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// CheckAppend validates that candidate may legally follow the current
// tip: index monotonicity, previous-hash linking, non-decreasing
// timestamps, and authority membership. It does not mutate the chain;
// pkg/writer calls Append after consensus finalizes candidate.
func (c *Chain) CheckAppend(candidate block.Block, authorities *authority.Set) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.checkAppendLocked(candidate, authorities)
}

func (c *Chain) checkAppendLocked(candidate block.Block, authorities *authority.Set) error {
	if len(c.blocks) == 0 {
		if candidate.Index != 0 {
			return chainerr.LinkBrokenAt(candidate.Index, "genesis must have index 0")
		}
		if candidate.PreviousHash != block.ZeroHash {
			return chainerr.LinkBrokenAt(candidate.Index, "genesis previous_hash must be all-zero")
		}
		// An empty authority set is permitted only at genesis.
		return nil
	}

	tip := c.blocks[len(c.blocks)-1]
	if candidate.Index != tip.Index+1 {
		return chainerr.LinkBrokenAt(candidate.Index, fmt.Sprintf("expected index %d", tip.Index+1))
	}
	if candidate.PreviousHash != tip.ContentHash {
		return chainerr.LinkBrokenAt(candidate.Index, "previous_hash does not match tip content_hash")
	}
	if candidate.Timestamp.Before(tip.Timestamp) {
		return chainerr.LinkBrokenAt(candidate.Index, "timestamp decreased relative to tip")
	}
	if authorities != nil && !authorities.IsActiveAt(candidate.AuthorityID, candidate.Index) {
		return chainerr.LinkBrokenAt(candidate.Index, fmt.Sprintf("authority %q not active at this index", candidate.AuthorityID))
	}
	return nil
}

// Append adds candidate to the chain. Callers must have already run it
// through CheckAppend (or an equivalent consensus-gated check) and the
// validation pipeline; Append itself re-validates the link invariants as
// a last line of defense before mutating state.
func (c *Chain) Append(candidate block.Block, authorities *authority.Set) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkAppendLocked(candidate, authorities); err != nil {
		return err
	}
	c.blocks = append(c.blocks, candidate)
	logger.Printf("appended block %d, content_hash=%x", candidate.Index, candidate.ContentHash)
	metrics.SetChainHeight(candidate.Index)
	return nil
}

// Truncate drops every block with index >= index, used by pkg/writer's
// rollback path after a failed commit.
func (c *Chain) Truncate(index uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index >= uint64(len(c.blocks)) {
		return
	}
	c.blocks = c.blocks[:index]
}

// Validate walks the full chain from genesis, checking every invariant
// CheckAppend enforces incrementally, plus signature verification
// against authorities. Used on startup to detect on-disk tampering or
// corruption.
func Validate(blocks []block.Block, authorities *authority.Set, verify func(b block.Block) error) error {
	if len(blocks) == 0 {
		return nil
	}
	if blocks[0].Index != 0 || blocks[0].PreviousHash != block.ZeroHash {
		return chainerr.LinkBrokenAt(blocks[0].Index, "genesis invariant violated")
	}

	for i := 1; i < len(blocks); i++ {
		prev, cur := blocks[i-1], blocks[i]
		if cur.Index != prev.Index+1 {
			return chainerr.LinkBrokenAt(cur.Index, fmt.Sprintf("expected index %d", prev.Index+1))
		}
		if cur.PreviousHash != prev.ContentHash {
			return chainerr.LinkBrokenAt(cur.Index, "previous_hash does not match predecessor content_hash")
		}
		if cur.Timestamp.Before(prev.Timestamp) {
			return chainerr.LinkBrokenAt(cur.Index, "timestamp decreased")
		}
	}

	for _, b := range blocks {
		if authorities != nil && !authorities.IsActiveAt(b.AuthorityID, b.Index) && b.Index != 0 {
			return chainerr.LinkBrokenAt(b.Index, fmt.Sprintf("authority %q not active at this index", b.AuthorityID))
		}
		if verify != nil {
			if err := verify(b); err != nil {
				return fmt.Errorf("block %d: %w: %v", b.Index, chainerr.ErrSigningFailed, err)
			}
		}
	}
	return nil
}
