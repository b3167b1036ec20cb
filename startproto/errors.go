package startproto

import "errors"

var (
	// ErrTimedOut is returned by Initiator.Open when no SessionEstablished
	// or SessionError arrives within the computed establishment timeout.
	ErrTimedOut = errors.New("startproto: session establishment timed out")
	// ErrUnknownChallenge is returned by HandleIncoming when a reply names
	// a challenge with no in-flight Open call.
	ErrUnknownChallenge = errors.New("startproto: unknown challenge")
	// ErrNoChallengeSlot is returned by Open if a fresh, disjoint challenge
	// could not be allocated.
	ErrNoChallengeSlot = errors.New("startproto: no free challenge slot")
	// ErrNoSessionSlot is returned by Responder.allocateTag when every tag
	// in the configured range is in use.
	ErrNoSessionSlot = errors.New("startproto: no free session tag")
)
