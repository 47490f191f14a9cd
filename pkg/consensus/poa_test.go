package consensus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rdfchain/pkg/authkey"
	"rdfchain/pkg/authority"
	"rdfchain/pkg/block"
	"rdfchain/pkg/canonical"
	"rdfchain/pkg/rdf"
)

func buildSignedBlock(t *testing.T, index uint64, authorityID string, signer authkey.Signer) block.Block {
	t.Helper()
	ts := time.Unix(1000+int64(index), 0).UTC()
	graph := rdf.NewGraph()
	graphHash := canonical.Hash(graph)
	stateRoot := [32]byte{byte(index + 1)}
	previousHash := block.ZeroHash

	signable := block.SignableBytes(index, ts, graphHash, previousHash, stateRoot, authorityID, nil)
	sig, err := signer.Sign(signable)
	require.NoError(t, err)

	contentHash := block.ComputeContentHash(index, ts, graphHash, previousHash, stateRoot, authorityID, nil)
	return block.Block{
		Index:        index,
		Timestamp:    ts,
		PreviousHash: previousHash,
		StateRoot:    stateRoot,
		AuthorityID:  authorityID,
		Signature:    sig,
		ContentHash:  contentHash,
	}
}

func TestExpectedProposer_RotatesRoundRobin(t *testing.T) {
	authorities := authority.NewSet(
		authority.Record{ID: "a1"},
		authority.Record{ID: "a2"},
	)
	p0, ok := ExpectedProposer(authorities, 0)
	require.True(t, ok)
	p1, ok := ExpectedProposer(authorities, 1)
	require.True(t, ok)
	require.NotEqual(t, p0, p1)
}

func TestPoA_AcceptFinalizesValidSignatureFromExpectedProposer(t *testing.T) {
	dir := t.TempDir()
	signer, err := authkey.LoadOrGenerate(dir+"/key", authkey.SchemeEd25519)
	require.NoError(t, err)

	proposer, _ := ExpectedProposer(authority.NewSet(authority.Record{ID: "solo"}), 0)
	require.Equal(t, "solo", proposer)

	authorities := authority.NewSet(authority.Record{ID: "solo", PublicKey: signer.PublicKeyBytes(), Scheme: string(authkey.SchemeEd25519)})
	poa := NewPoA(authorities, "solo")

	b := buildSignedBlock(t, 0, "solo", signer)
	finalized, err := poa.Accept(context.Background(), b, "solo", nil)
	require.NoError(t, err)
	require.True(t, finalized)

	got, ok := poa.Finalize()
	require.True(t, ok)
	require.Equal(t, b.Index, got.Index)
}

func TestPoA_AcceptRejectsWrongProposer(t *testing.T) {
	authorities := authority.NewSet(
		authority.Record{ID: "a1"},
		authority.Record{ID: "a2"},
	)
	poa := NewPoA(authorities, "a1")

	expected, _ := ExpectedProposer(authorities, 0)
	wrong := "a1"
	if expected == "a1" {
		wrong = "a2"
	}

	b := block.Block{Index: 0}
	_, err := poa.Accept(context.Background(), b, wrong, nil)
	require.Error(t, err)
}

func TestPoA_ProposeRejectsOutOfTurnNode(t *testing.T) {
	authorities := authority.NewSet(
		authority.Record{ID: "a1"},
		authority.Record{ID: "a2"},
	)
	expected, _ := ExpectedProposer(authorities, 0)
	notExpected := "a1"
	if expected == "a1" {
		notExpected = "a2"
	}

	poa := NewPoA(authorities, notExpected)
	_, err := poa.Propose(context.Background(), block.Block{Index: 0})
	require.Error(t, err)
}
