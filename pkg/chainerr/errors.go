// Package chainerr defines the error kinds shared across the validation
// pipeline, consensus, storage, and query layers. Each kind is a sentinel
// that call sites wrap with fmt.Errorf("...: %w", ...) to attach the
// offending block index or resource, so callers can still match with
// errors.Is against the sentinel.
package chainerr

import "fmt"

var (
	// ErrMalformedPayload: the block payload could not be parsed from
	// its textual RDF syntax.
	ErrMalformedPayload = fmt.Errorf("malformed payload")
	// ErrShapeViolation: the payload graph failed SHACL shape validation.
	ErrShapeViolation = fmt.Errorf("shape violation")
	// ErrOntologyInconsistent: the reasoner found the payload inconsistent
	// with the active ontology.
	ErrOntologyInconsistent = fmt.Errorf("ontology inconsistent")
	// ErrLinkBroken: previous_hash/index/timestamp linkage to the current
	// tip does not hold.
	ErrLinkBroken = fmt.Errorf("chain link broken")
	// ErrSigningFailed: the authority's signature could not be produced
	// or did not verify.
	ErrSigningFailed = fmt.Errorf("signing failed")
	// ErrQuorumTimeout: consensus did not reach quorum before its timeout.
	ErrQuorumTimeout = fmt.Errorf("quorum timeout")
	// ErrInvariantBroken: a fatal internal invariant (e.g. state-root
	// mismatch) was violated; the process must exit.
	ErrInvariantBroken = fmt.Errorf("invariant broken")
	// ErrConflict: a concurrent writer already advanced the tip; the
	// caller should retry against the fresh tip.
	ErrConflict = fmt.Errorf("conflict")
	// ErrTooBusy: the caller should back off and retry later.
	ErrTooBusy = fmt.Errorf("too busy")
	// ErrTimeout: a suspending operation exceeded its deadline.
	ErrTimeout = fmt.Errorf("timeout")
)

// LinkBrokenAt wraps ErrLinkBroken with the offending block index.
func LinkBrokenAt(index uint64, reason string) error {
	return fmt.Errorf("block %d: %s: %w", index, reason, ErrLinkBroken)
}

// MalformedPayloadAt wraps ErrMalformedPayload with the offending block index.
func MalformedPayloadAt(index uint64, cause error) error {
	return fmt.Errorf("block %d: %w: %v", index, ErrMalformedPayload, cause)
}

// ShapeViolationAt wraps ErrShapeViolation with the focus node/path/message
// context needed to locate the violation in the source graph.
func ShapeViolationAt(index uint64, focusNode, path, message string) error {
	return fmt.Errorf("block %d: focus=%s path=%s: %s: %w", index, focusNode, path, message, ErrShapeViolation)
}

// InvariantBrokenAt wraps ErrInvariantBroken with the offending resource.
func InvariantBrokenAt(resource, reason string) error {
	return fmt.Errorf("%s: %s: %w", resource, reason, ErrInvariantBroken)
}
