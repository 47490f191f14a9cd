// Copyright 2025 Certen Protocol

package merkle

import (
	"crypto/sha256"
	"testing"
)

func TestReceiptFor_ValidatesAgainstStateRoot(t *testing.T) {
	leaves := []StateRootLeaf{
		{BlockIndex: 0, GraphHash: sha256.Sum256([]byte("graph-0"))},
		{BlockIndex: 1, GraphHash: sha256.Sum256([]byte("graph-1"))},
		{BlockIndex: 2, GraphHash: sha256.Sum256([]byte("graph-2"))},
	}

	root, err := StateRoot(leaves)
	if err != nil {
		t.Fatalf("StateRoot: %v", err)
	}

	receipt, err := ReceiptFor(leaves, leaves[1], 2)
	if err != nil {
		t.Fatalf("ReceiptFor: %v", err)
	}
	if receipt.LocalBlock != 2 {
		t.Errorf("LocalBlock = %d, want 2", receipt.LocalBlock)
	}
	if err := receipt.Validate(); err != nil {
		t.Fatalf("receipt failed self-validation: %v", err)
	}

	computedRoot, err := receipt.ComputeRoot()
	if err != nil {
		t.Fatalf("ComputeRoot: %v", err)
	}
	if computedRoot != root {
		t.Errorf("receipt anchor %x does not match state root %x", computedRoot, root)
	}
}

func TestReceiptFor_UnknownLeafErrors(t *testing.T) {
	leaves := []StateRootLeaf{
		{BlockIndex: 0, GraphHash: sha256.Sum256([]byte("graph-0"))},
	}
	_, err := ReceiptFor(leaves, StateRootLeaf{BlockIndex: 5, GraphHash: sha256.Sum256([]byte("missing"))}, 0)
	if err == nil {
		t.Fatal("expected error for a leaf not present among the supplied leaves")
	}
}

func TestReceiptFor_RoundTripsThroughBinaryAndJSON(t *testing.T) {
	leaves := []StateRootLeaf{
		{BlockIndex: 0, GraphHash: sha256.Sum256([]byte("graph-0"))},
		{BlockIndex: 1, GraphHash: sha256.Sum256([]byte("graph-1"))},
	}
	receipt, err := ReceiptFor(leaves, leaves[0], 1)
	if err != nil {
		t.Fatalf("ReceiptFor: %v", err)
	}

	bin, err := receipt.ToBinary()
	if err != nil {
		t.Fatalf("ToBinary: %v", err)
	}
	if err := bin.Validate(); err != nil {
		t.Fatalf("binary receipt failed validation: %v", err)
	}

	data, err := receipt.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	back, err := ReceiptFromJSON(data)
	if err != nil {
		t.Fatalf("ReceiptFromJSON: %v", err)
	}
	if err := back.Validate(); err != nil {
		t.Fatalf("round-tripped receipt failed validation: %v", err)
	}
}
