// Package wire is the length-prefixed binary frame protocol peers speak
// over a plain TCP connection to exchange tip announcements, block
// requests, and consensus votes, as framed binary messages rather than
// HTTP/JSON since peer-to-peer gossip has no browser client to serve.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"rdfchain/pkg/block"
)

// FrameType identifies which message a frame's payload decodes as.
type FrameType uint8

const (
	FrameHello FrameType = iota + 1
	FrameAnnounceBlock
	FrameRequestBlock
	FrameRequestRange
	FrameConsensusMsg
	FrameBlockData
)

func (t FrameType) String() string {
	switch t {
	case FrameHello:
		return "Hello"
	case FrameAnnounceBlock:
		return "AnnounceBlock"
	case FrameRequestBlock:
		return "RequestBlock"
	case FrameRequestRange:
		return "RequestRange"
	case FrameConsensusMsg:
		return "ConsensusMsg"
	case FrameBlockData:
		return "BlockData"
	default:
		return fmt.Sprintf("FrameType(%d)", uint8(t))
	}
}

const maxFramePayload = 64 << 20 // 64 MiB; a RequestRange reply can carry many blocks

// Hello is the first frame exchanged on a new connection: each side
// announces which network it believes it's on and where its tip is, so
// a mismatched peer can be rejected before any block traffic flows.
type Hello struct {
	NetworkID string   `cbor:"network_id"`
	TipIndex  uint64   `cbor:"tip_index"`
	TipHash   [32]byte `cbor:"tip_hash"`
}

// AnnounceBlock tells a peer a new block has been finalized locally, so
// it can decide whether to request it.
type AnnounceBlock struct {
	Index uint64   `cbor:"index"`
	Hash  [32]byte `cbor:"hash"`
}

// RequestBlock asks a peer for one committed block by index.
type RequestBlock struct {
	Index uint64 `cbor:"index"`
}

// RequestRange asks a peer for every committed block in [FromIndex,
// ToIndex], inclusive, used to catch up after being offline.
type RequestRange struct {
	FromIndex uint64 `cbor:"from_index"`
	ToIndex   uint64 `cbor:"to_index"`
}

// ConsensusMsg carries one authority's consensus vote (a PoA
// finalization signature, or a PBFT-lite prepare/commit/view-change
// vote) addressed to a specific block candidate. VotePayload is handed
// to consensus.Protocol.Accept verbatim as its payload argument.
type ConsensusMsg struct {
	BlockIndex      uint64 `cbor:"block_index"`
	FromAuthorityID string `cbor:"from_authority_id"`
	CandidateCBOR   []byte `cbor:"candidate_cbor"` // a CBOR-encoded BlockData wrapping the candidate
	VotePayload     []byte `cbor:"vote_payload"`

	// CorrelationID ties every vote on one proposal round back to the
	// proposal that started it, for cross-peer log correlation only.
	CorrelationID string `cbor:"correlation_id,omitempty"`
}

// WriteFrame CBOR-encodes v and writes it as one [type byte][4-byte
// big-endian length][payload] frame to w.
func WriteFrame(w io.Writer, frameType FrameType, v interface{}) error {
	payload, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: encode %s frame: %w", frameType, err)
	}
	if len(payload) > maxFramePayload {
		return fmt.Errorf("wire: %s frame payload too large: %d bytes", frameType, len(payload))
	}

	header := make([]byte, 5)
	header[0] = byte(frameType)
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("wire: write %s frame header: %w", frameType, err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write %s frame payload: %w", frameType, err)
	}
	return nil
}

// ReadFrame reads one frame from r and returns its type and raw payload,
// which the caller decodes with the matching DecodeX function.
func ReadFrame(r io.Reader) (FrameType, []byte, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err // propagate io.EOF untouched for callers' read loops
	}
	frameType := FrameType(header[0])
	length := binary.BigEndian.Uint32(header[1:])
	if length > maxFramePayload {
		return 0, nil, fmt.Errorf("wire: frame claims %d bytes, exceeds maximum %d", length, maxFramePayload)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("wire: read %s frame payload: %w", frameType, err)
	}
	return frameType, payload, nil
}

func DecodeHello(payload []byte) (Hello, error) {
	var h Hello
	err := cbor.Unmarshal(payload, &h)
	return h, err
}

func DecodeAnnounceBlock(payload []byte) (AnnounceBlock, error) {
	var a AnnounceBlock
	err := cbor.Unmarshal(payload, &a)
	return a, err
}

func DecodeRequestBlock(payload []byte) (RequestBlock, error) {
	var rb RequestBlock
	err := cbor.Unmarshal(payload, &rb)
	return rb, err
}

func DecodeRequestRange(payload []byte) (RequestRange, error) {
	var rr RequestRange
	err := cbor.Unmarshal(payload, &rr)
	return rr, err
}

func DecodeConsensusMsg(payload []byte) (ConsensusMsg, error) {
	var cm ConsensusMsg
	err := cbor.Unmarshal(payload, &cm)
	return cm, err
}

// BlockData carries one full committed block in reply to RequestBlock
// or as one element of a RequestRange reply stream.
type BlockData struct {
	Block block.Block `cbor:"block"`
}

func DecodeBlockData(payload []byte) (BlockData, error) {
	var bd BlockData
	err := cbor.Unmarshal(payload, &bd)
	return bd, err
}

// EncodeBlockData CBOR-encodes b as a BlockData payload, for embedding
// inside a ConsensusMsg.CandidateCBOR field rather than as a standalone
// framed message.
func EncodeBlockData(b block.Block) ([]byte, error) {
	return cbor.Marshal(BlockData{Block: b})
}
