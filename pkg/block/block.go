// Package block defines the append-only block record: an RDF payload
// plus the linking, authority, and hash fields the chain validates on
// every append.
package block

import (
	"crypto/sha256"
	"encoding/binary"
	"strconv"
	"time"
)

// ZeroHash is the previous_hash value for the genesis block.
var ZeroHash [32]byte

// Block is one entry of the chain: a proposer's candidate or an
// already-committed record, depending on whether ContentHash/Signature
// have been filled in by the validation pipeline.
type Block struct {
	Index            uint64
	Timestamp        time.Time
	PayloadRDF       string // textual RDF syntax (N-Quads) of the payload graph
	PreviousHash     [32]byte
	StateRoot        [32]byte
	AuthorityID      string
	Signature        []byte
	ContentHash      [32]byte
	EncryptedPayload []byte // optional side-channel ciphertext; see pkg/seal
}

// Genesis returns the index-0 block template: empty payload, zero
// previous hash. Callers fill in StateRoot/ContentHash/Signature
// themselves.
func Genesis(timestamp time.Time) Block {
	return Block{
		Index:        0,
		Timestamp:    timestamp,
		PayloadRDF:   "",
		PreviousHash: ZeroHash,
	}
}

// SignableBytes returns the fixed-order byte encoding the content hash
// and signature are computed over: index‖timestamp‖canonicalGraphHash‖
// previous_hash‖state_root‖authority_id‖encrypted_payload?.
func SignableBytes(index uint64, timestamp time.Time, canonicalGraphHash [32]byte, previousHash [32]byte, stateRoot [32]byte, authorityID string, encryptedPayload []byte) []byte {
	var buf []byte

	var idxBuf [8]byte
	binary.BigEndian.PutUint64(idxBuf[:], index)
	buf = append(buf, idxBuf[:]...)

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(timestamp.UTC().UnixNano()))
	buf = append(buf, tsBuf[:]...)

	buf = append(buf, canonicalGraphHash[:]...)
	buf = append(buf, previousHash[:]...)
	buf = append(buf, stateRoot[:]...)
	buf = append(buf, []byte(authorityID)...)
	if len(encryptedPayload) > 0 {
		buf = append(buf, encryptedPayload...)
	}
	return buf
}

// ComputeContentHash computes B.content_hash = sha256(domain_tag ||
// SignableBytes(...)).
func ComputeContentHash(index uint64, timestamp time.Time, canonicalGraphHash [32]byte, previousHash [32]byte, stateRoot [32]byte, authorityID string, encryptedPayload []byte) [32]byte {
	const domainTag = "rdfchain-block/v1\x00"
	h := sha256.New()
	h.Write([]byte(domainTag))
	h.Write(SignableBytes(index, timestamp, canonicalGraphHash, previousHash, stateRoot, authorityID, encryptedPayload))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// IsGenesis reports whether b is the chain's first block.
func (b Block) IsGenesis() bool {
	return b.Index == 0 && b.PreviousHash == ZeroHash
}

// NamedGraphIRI returns the quad store named graph IRI this block owns:
// every committed block owns exactly one named graph, whose IRI is
// derived from the block index.
func (b Block) NamedGraphIRI() string {
	return NamedGraphIRIForIndex(b.Index)
}

func NamedGraphIRIForIndex(index uint64) string {
	return "urn:block:" + strconv.FormatUint(index, 10)
}
