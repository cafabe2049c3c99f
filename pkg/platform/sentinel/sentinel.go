package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and relay plumbing return
// these (optionally wrapped) so services can translate them into coded domain
// errors.
//
// These represent factual states about resources, not validation failures:
//   - ErrNotFound: record does not exist in store
//   - ErrConflict: record already exists or was concurrently modified
//   - ErrInvalidState: record in wrong state for requested mutation
//   - ErrStale: incoming data is older than what is already stored
//   - ErrProvenance: message origin does not match the configured sender;
//     security-fatal, the message is dropped without acknowledgement
//   - ErrUnavailable: external collaborator temporarily unavailable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrStale        = errors.New("stale")
	ErrProvenance   = errors.New("provenance mismatch")
	ErrUnavailable  = errors.New("unavailable")
)
