package wire

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"rdfchain/pkg/block"
	"rdfchain/pkg/chain"
	"rdfchain/pkg/consensus"
)

func TestWriteAndReadFrame_HelloRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	hello := Hello{NetworkID: "rdfchain-test", TipIndex: 5, TipHash: [32]byte{9}}
	require.NoError(t, WriteFrame(&buf, FrameHello, hello))

	frameType, payload, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, FrameHello, frameType)

	got, err := DecodeHello(payload)
	require.NoError(t, err)
	require.Equal(t, hello, got)
}

func TestReadFrame_RejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	header := []byte{byte(FrameHello), 0xFF, 0xFF, 0xFF, 0xFF}
	buf.Write(header)

	_, _, err := ReadFrame(&buf)
	require.Error(t, err)
}

type fakeBlockSource struct {
	blocks map[uint64]block.Block
}

func (s fakeBlockSource) BlockAt(index uint64) (block.Block, bool, error) {
	b, ok := s.blocks[index]
	return b, ok, nil
}

func TestHandlers_HandleRequestBlock_WritesBlockData(t *testing.T) {
	src := fakeBlockSource{blocks: map[uint64]block.Block{0: {Index: 0, AuthorityID: "a1"}}}
	h := NewHandlers("net1", chain.New(), src, nil)

	var buf bytes.Buffer
	require.NoError(t, h.HandleRequestBlock(&buf, RequestBlock{Index: 0}))

	frameType, payload, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, FrameBlockData, frameType)

	bd, err := DecodeBlockData(payload)
	require.NoError(t, err)
	require.Equal(t, uint64(0), bd.Block.Index)
}

func TestHandlers_HandleRequestBlock_MissingReturnsError(t *testing.T) {
	src := fakeBlockSource{blocks: map[uint64]block.Block{}}
	h := NewHandlers("net1", chain.New(), src, nil)

	var buf bytes.Buffer
	err := h.HandleRequestBlock(&buf, RequestBlock{Index: 7})
	require.Error(t, err)
}

func TestHandlers_HandleRequestRange_StopsAtFirstMissing(t *testing.T) {
	src := fakeBlockSource{blocks: map[uint64]block.Block{
		0: {Index: 0},
		1: {Index: 1},
	}}
	h := NewHandlers("net1", chain.New(), src, nil)

	var buf bytes.Buffer
	require.NoError(t, h.HandleRequestRange(&buf, RequestRange{FromIndex: 0, ToIndex: 5}))

	var got []uint64
	for {
		frameType, payload, err := ReadFrame(&buf)
		if err != nil {
			break
		}
		require.Equal(t, FrameBlockData, frameType)
		bd, err := DecodeBlockData(payload)
		require.NoError(t, err)
		got = append(got, bd.Block.Index)
	}
	require.Equal(t, []uint64{0, 1}, got)
}

type fakeProtocol struct {
	acceptFn func(ctx context.Context, candidate block.Block, from string, payload []byte) (bool, error)
}

func (f fakeProtocol) Propose(ctx context.Context, candidate block.Block) (block.Block, error) {
	return candidate, nil
}
func (f fakeProtocol) Accept(ctx context.Context, candidate block.Block, from string, payload []byte) (bool, error) {
	return f.acceptFn(ctx, candidate, from, payload)
}
func (f fakeProtocol) Finalize() (block.Block, bool) { return block.Block{}, false }

func TestHandlers_HandleConsensusMsg_ForwardsToProtocol(t *testing.T) {
	var sawFrom string
	protocol := fakeProtocol{acceptFn: func(ctx context.Context, candidate block.Block, from string, payload []byte) (bool, error) {
		sawFrom = from
		return true, nil
	}}
	h := NewHandlers("net1", chain.New(), fakeBlockSource{}, protocol)

	candidateBytes, err := cborMarshalBlockData(block.Block{Index: 3})
	require.NoError(t, err)

	finalized, err := h.HandleConsensusMsg(context.Background(), ConsensusMsg{
		BlockIndex:      3,
		FromAuthorityID: "a2",
		CandidateCBOR:   candidateBytes,
	})
	require.NoError(t, err)
	require.True(t, finalized)
	require.Equal(t, "a2", sawFrom)
}

func cborMarshalBlockData(b block.Block) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, FrameBlockData, BlockData{Block: b}); err != nil {
		return nil, err
	}
	_, payload, err := ReadFrame(&buf)
	return payload, err
}

var _ consensus.Protocol = fakeProtocol{}
