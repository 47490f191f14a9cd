// Copyright 2025 Certen Protocol

package merkle

import (
	"encoding/binary"
	"sort"
)

// StateRootLeaf is one (block_index, graph_canonical_hash) pair
// contributing to a chain's state root: a Merkle root over
// (block_index, graph_canonical_hash) leaves sorted by block_index.
type StateRootLeaf struct {
	BlockIndex uint64
	GraphHash  [32]byte
}

// leafHash renders a StateRootLeaf into the 32-byte form BuildTree
// expects: SHA-256 of the big-endian index followed by the graph hash.
func (l StateRootLeaf) leafHash() []byte {
	buf := make([]byte, 8+32)
	binary.BigEndian.PutUint64(buf[:8], l.BlockIndex)
	copy(buf[8:], l.GraphHash[:])
	return HashData(buf)
}

// StateRoot computes the deterministic state-root commitment: a Merkle
// root over the sorted-by-index leaves. Two stores with the same set of
// committed (index, graph hash) pairs always agree, regardless of
// insertion order.
func StateRoot(leaves []StateRootLeaf) ([32]byte, error) {
	sorted := make([]StateRootLeaf, len(leaves))
	copy(sorted, leaves)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].BlockIndex < sorted[j].BlockIndex })

	if len(sorted) == 0 {
		// A deterministic root for the empty state: the hash of zero
		// leaves is well-defined as the hash of an empty input, matching
		// the canonicalizer's "empty set still hashes to something"
		// contract in spirit.
		return [32]byte(HashData(nil)), nil
	}

	hashes := make([][]byte, len(sorted))
	for i, l := range sorted {
		hashes[i] = l.leafHash()
	}

	tree, err := BuildTree(hashes)
	if err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	copy(out[:], tree.Root())
	return out, nil
}
