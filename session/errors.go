package session

import "errors"

var (
	// ErrLoopback is returned by NewSession when the destination is this
	// node's own peer id.
	ErrLoopback = errors.New("session: refusing to open a session to ourselves")
	// ErrNoSessionSlot is returned by NewSession when the manager is at its
	// configured session-slot cap.
	ErrNoSessionSlot = errors.New("session: no free session slot")
	// ErrUnknownSession is returned by PingSession, UpdateBalancerConfig,
	// and GetStats for an id not present in the cache.
	ErrUnknownSession = errors.New("session: no such session")
	// ErrBalancingDisabled is returned by UpdateBalancerConfig when the
	// session was opened without SURB balancing.
	ErrBalancingDisabled = errors.New("session: balancing is not enabled for this session")
	// ErrUnknownData is returned by DispatchMessage when tag falls inside
	// the session-tag range but names no live session.
	ErrUnknownData = errors.New("session: data for unknown session id")
	// ErrSendTimeout is returned when enqueueing into a session's inbound
	// channel exceeds the cross-task send timeout (default 200ms).
	ErrSendTimeout = errors.New("session: timed out delivering data to session")
)
