package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rdfchain/pkg/authority"
	"rdfchain/pkg/block"
)

func mustAuthSet() *authority.Set {
	return authority.NewSet(authority.Record{ID: "auth-1", FirstBlock: 0})
}

func TestChain_GenesisMustHaveIndexZero(t *testing.T) {
	c := New()
	bad := block.Block{Index: 1, PreviousHash: block.ZeroHash}
	require.Error(t, c.CheckAppend(bad, mustAuthSet()))
}

func TestChain_AppendBuildsLinkedChain(t *testing.T) {
	c := New()
	authorities := mustAuthSet()

	genesis := block.Block{Index: 0, Timestamp: time.Unix(0, 0), PreviousHash: block.ZeroHash}
	genesis.ContentHash = block.ComputeContentHash(0, genesis.Timestamp, [32]byte{}, block.ZeroHash, [32]byte{}, "", nil)
	require.NoError(t, c.Append(genesis, authorities))

	next := block.Block{
		Index:        1,
		Timestamp:    genesis.Timestamp.Add(time.Second),
		PreviousHash: genesis.ContentHash,
		AuthorityID:  "auth-1",
	}
	next.ContentHash = block.ComputeContentHash(1, next.Timestamp, [32]byte{}, next.PreviousHash, [32]byte{}, "auth-1", nil)
	require.NoError(t, c.Append(next, authorities))

	require.Equal(t, uint64(2), c.Height())
	tip, ok := c.Tip()
	require.True(t, ok)
	require.Equal(t, uint64(1), tip.Index)
}

func TestChain_RejectsBrokenLink(t *testing.T) {
	c := New()
	authorities := mustAuthSet()

	genesis := block.Block{Index: 0, Timestamp: time.Unix(0, 0), PreviousHash: block.ZeroHash}
	genesis.ContentHash = block.ComputeContentHash(0, genesis.Timestamp, [32]byte{}, block.ZeroHash, [32]byte{}, "", nil)
	require.NoError(t, c.Append(genesis, authorities))

	var wrongPrev [32]byte
	copy(wrongPrev[:], []byte("not-the-real-previous-hash-bytes"))
	bad := block.Block{Index: 1, Timestamp: genesis.Timestamp, PreviousHash: wrongPrev, AuthorityID: "auth-1"}
	require.Error(t, c.Append(bad, authorities))
}

func TestChain_RejectsDecreasingTimestamp(t *testing.T) {
	c := New()
	authorities := mustAuthSet()

	genesis := block.Block{Index: 0, Timestamp: time.Unix(100, 0), PreviousHash: block.ZeroHash}
	genesis.ContentHash = block.ComputeContentHash(0, genesis.Timestamp, [32]byte{}, block.ZeroHash, [32]byte{}, "", nil)
	require.NoError(t, c.Append(genesis, authorities))

	bad := block.Block{
		Index:        1,
		Timestamp:    time.Unix(50, 0),
		PreviousHash: genesis.ContentHash,
		AuthorityID:  "auth-1",
	}
	require.Error(t, c.Append(bad, authorities))
}

func TestChain_RejectsUnknownAuthority(t *testing.T) {
	c := New()
	authorities := mustAuthSet()

	genesis := block.Block{Index: 0, Timestamp: time.Unix(0, 0), PreviousHash: block.ZeroHash}
	genesis.ContentHash = block.ComputeContentHash(0, genesis.Timestamp, [32]byte{}, block.ZeroHash, [32]byte{}, "", nil)
	require.NoError(t, c.Append(genesis, authorities))

	bad := block.Block{
		Index:        1,
		Timestamp:    genesis.Timestamp,
		PreviousHash: genesis.ContentHash,
		AuthorityID:  "someone-else",
	}
	require.Error(t, c.Append(bad, authorities))
}

func TestValidate_EmptyAuthoritySetOnlyAtGenesis(t *testing.T) {
	genesis := block.Block{Index: 0, Timestamp: time.Unix(0, 0), PreviousHash: block.ZeroHash}
	genesis.ContentHash = block.ComputeContentHash(0, genesis.Timestamp, [32]byte{}, block.ZeroHash, [32]byte{}, "", nil)

	require.NoError(t, Validate([]block.Block{genesis}, authority.NewSet(), nil))

	next := block.Block{Index: 1, Timestamp: genesis.Timestamp, PreviousHash: genesis.ContentHash, AuthorityID: "auth-1"}
	require.Error(t, Validate([]block.Block{genesis, next}, authority.NewSet(), nil))
}

func TestChain_Truncate(t *testing.T) {
	c := New()
	authorities := mustAuthSet()

	genesis := block.Block{Index: 0, Timestamp: time.Unix(0, 0), PreviousHash: block.ZeroHash}
	genesis.ContentHash = block.ComputeContentHash(0, genesis.Timestamp, [32]byte{}, block.ZeroHash, [32]byte{}, "", nil)
	require.NoError(t, c.Append(genesis, authorities))

	next := block.Block{Index: 1, Timestamp: genesis.Timestamp, PreviousHash: genesis.ContentHash, AuthorityID: "auth-1"}
	next.ContentHash = block.ComputeContentHash(1, next.Timestamp, [32]byte{}, next.PreviousHash, [32]byte{}, "auth-1", nil)
	require.NoError(t, c.Append(next, authorities))

	c.Truncate(1)
	require.Equal(t, uint64(1), c.Height())
}
