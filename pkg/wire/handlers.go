package wire

import (
	"context"
	"fmt"
	"io"
	"log"

	"rdfchain/pkg/block"
	"rdfchain/pkg/chain"
	"rdfchain/pkg/consensus"
)

var logger = log.New(log.Writer(), "[Wire] ", log.LstdFlags)

// BlockSource answers a request for a committed block by index; the node
// entrypoint backs it with pkg/blocklog.
type BlockSource interface {
	BlockAt(index uint64) (block.Block, bool, error)
}

// Handlers dispatches inbound frames from one peer connection to the
// local chain tip, block source, and consensus protocol, one HandleX
// method per frame type.
type Handlers struct {
	networkID string
	chain     *chain.Chain
	blocks    BlockSource
	protocol  consensus.Protocol
}

func NewHandlers(networkID string, c *chain.Chain, blocks BlockSource, protocol consensus.Protocol) *Handlers {
	return &Handlers{networkID: networkID, chain: c, blocks: blocks, protocol: protocol}
}

// HandleHello validates a peer's announced network ID and replies with
// this node's own Hello so both sides agree before any block traffic.
func (h *Handlers) HandleHello(w io.Writer, peer Hello) error {
	if peer.NetworkID != h.networkID {
		return fmt.Errorf("wire: peer network ID %q does not match local %q", peer.NetworkID, h.networkID)
	}
	tip, ok := h.chain.Tip()
	reply := Hello{NetworkID: h.networkID}
	if ok {
		reply.TipIndex = tip.Index
		reply.TipHash = tip.ContentHash
	}
	return WriteFrame(w, FrameHello, reply)
}

// HandleRequestBlock looks up the requested block and writes it back as
// a FrameBlockData frame; an absent block is reported as an error
// rather than silently writing nothing.
func (h *Handlers) HandleRequestBlock(w io.Writer, req RequestBlock) error {
	b, ok, err := h.blocks.BlockAt(req.Index)
	if err != nil {
		return fmt.Errorf("wire: look up block %d: %w", req.Index, err)
	}
	if !ok {
		return fmt.Errorf("wire: block %d not found", req.Index)
	}
	return WriteFrame(w, FrameBlockData, BlockData{Block: b})
}

// HandleRequestRange streams every block in [req.FromIndex,
// req.ToIndex] as successive FrameBlockData frames, stopping early
// (without error) at the first missing index, which marks the peer's
// local tip.
func (h *Handlers) HandleRequestRange(w io.Writer, req RequestRange) error {
	if req.FromIndex > req.ToIndex {
		return fmt.Errorf("wire: invalid range [%d, %d]", req.FromIndex, req.ToIndex)
	}
	for idx := req.FromIndex; idx <= req.ToIndex; idx++ {
		b, ok, err := h.blocks.BlockAt(idx)
		if err != nil {
			return fmt.Errorf("wire: look up block %d: %w", idx, err)
		}
		if !ok {
			break
		}
		if err := WriteFrame(w, FrameBlockData, BlockData{Block: b}); err != nil {
			return err
		}
	}
	return nil
}

// HandleConsensusMsg decodes the candidate block embedded in msg and
// forwards the vote to the local consensus protocol instance.
func (h *Handlers) HandleConsensusMsg(ctx context.Context, msg ConsensusMsg) (bool, error) {
	candidate, err := DecodeBlockData(msg.CandidateCBOR)
	if err != nil {
		return false, fmt.Errorf("wire: decode consensus candidate: %w", err)
	}
	finalized, err := h.protocol.Accept(ctx, candidate.Block, msg.FromAuthorityID, msg.VotePayload)
	if err != nil {
		logger.Printf("consensus vote from %s for block %d rejected: %v", msg.FromAuthorityID, candidate.Block.Index, err)
		return false, err
	}
	return finalized, nil
}
