package models

import "errors"

// Outcome errors shared by the lifecycle engine, vote ledger and reward
// issuer. Handlers map these to HTTP statuses; nothing in the services panics
// for control flow.
var (
	ErrNotFound       = errors.New("location not found")
	ErrAlreadyClaimed = errors.New("location already claimed")
	ErrInvalidState   = errors.New("operation not valid for current location status")
	ErrForbidden      = errors.New("wallet does not own this claim")
	ErrSelfVote       = errors.New("owners cannot vote on their own cleanup")
	ErrDuplicateVote  = errors.New("wallet has already voted on this location")
	ErrConflict       = errors.New("concurrent update conflict")
	ErrTransfer       = errors.New("token transfer failed")
)
