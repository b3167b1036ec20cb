package chainindexer

import "errors"

var (
	// ErrUnknownContract is returned when a log's contract address isn't in
	// the configured ContractAddresses table.
	ErrUnknownContract = errors.New("chainindexer: unknown contract address")
	// ErrChannelDoesNotExist is returned by balance-change handling when the
	// channel is missing; callers treat this as "drop silently" after the
	// quarantine side effect has already been committed.
	ErrChannelDoesNotExist = errors.New("chainindexer: channel does not exist")
	// ErrNoPriorBinding is returned by RevokeAnnouncement handling when no
	// key binding exists for the address.
	ErrNoPriorBinding = errors.New("chainindexer: no prior key binding")
	// ErrMalformedEvent is a non-fatal decode error: the event is dropped
	// with a warning, never propagated as a handler failure.
	ErrMalformedEvent = errors.New("chainindexer: malformed event")
)
