package storage

import "errors"

// ErrConflict is returned by CommitBlock when another commit already
// claimed the next block number. The caller (the Miner) rebuilds its
// bundle against the new head and retries.
var ErrConflict = errors.New("storage: block number conflict, retry with rebuilt bundle")

// ErrInvalid is returned by CommitBlock when the bundle fails an
// integrity check (§4.1 invariants 1-5). It is fatal to the current
// block attempt: the caller must not retry the same bundle.
var ErrInvalid = errors.New("storage: block bundle failed integrity check")

// ErrUnknownAccount is returned by ReadSlot callers that need to assert
// an account exists before trusting a slot read; the store itself
// defaults missing accounts/slots to their zero value per §4.1.
var ErrUnknownAccount = errors.New("storage: account has no committed version")
