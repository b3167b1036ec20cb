package startproto

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/hoprnet/hopr-corego/substrate"
	"github.com/luxfi/log"
)

// SessionID identifies an established session by its responder-allocated
// tag and the pseudonym the exchange occurred under.
type SessionID struct {
	Tag       uint64
	Pseudonym substrate.Pseudonym
}

// Result is what HandleIncoming delivers to an in-flight Open call: either a
// SessionID on success, or Err set to a rejection reason.
type Result struct {
	SessionID SessionID
	Err       error
}

// Initiator drives the Idle → AwaitEstablish(challenge) → {Open|Failed|TimedOut}
// state machine from the initiating side, representing each in-flight
// suspension as an explicit future keyed by challenge rather than a
// blocked coroutine.
type Initiator struct {
	sink        substrate.Sink
	reservedTag uint64
	timeoutBase time.Duration
	log         log.Logger

	mu      sync.Mutex
	pending map[uint64]chan Result
}

// NewInitiator constructs an Initiator. reservedTag is the Start protocol's
// fixed substrate tag; timeoutBase is multiplied by (forwardHops+returnHops+2)
// to compute each Open call's deadline.
func NewInitiator(sink substrate.Sink, reservedTag uint64, timeoutBase time.Duration, logger log.Logger) *Initiator {
	if logger == nil {
		logger = log.Root()
	}
	return &Initiator{
		sink:        sink,
		reservedTag: reservedTag,
		timeoutBase: timeoutBase,
		log:         logger,
		pending:     make(map[uint64]chan Result),
	}
}

func (i *Initiator) freshChallenge() (uint64, error) {
	var buf [8]byte
	for attempt := 0; attempt < 8; attempt++ {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, err
		}
		c := binary.BigEndian.Uint64(buf[:])
		if c == 0 {
			continue
		}
		i.mu.Lock()
		_, taken := i.pending[c]
		i.mu.Unlock()
		if !taken {
			return c, nil
		}
	}
	return 0, ErrNoChallengeSlot
}

// Open requests a new session from dest and blocks until it is established,
// rejected, the deadline computed from forwardHops/returnHops elapses, or
// ctx is canceled.
func (i *Initiator) Open(
	ctx context.Context,
	dest substrate.PeerID,
	pseudonym substrate.Pseudonym,
	target Target,
	caps Capabilities,
	hintTargetBuffer uint32,
	forwardHops, returnHops int,
) (SessionID, error) {
	challenge, err := i.freshChallenge()
	if err != nil {
		return SessionID{}, err
	}

	ch := make(chan Result, 1)
	i.mu.Lock()
	i.pending[challenge] = ch
	i.mu.Unlock()
	defer func() {
		i.mu.Lock()
		delete(i.pending, challenge)
		i.mu.Unlock()
	}()

	payload, err := Encode(StartSession{
		Challenge:        challenge,
		Target:           target,
		Capabilities:     caps,
		HintTargetBuffer: hintTargetBuffer,
	})
	if err != nil {
		return SessionID{}, err
	}
	routing := substrate.Forward(substrate.ForwardRouting{
		Destination:    dest,
		Pseudonym:      &pseudonym,
		ForwardOptions: substrate.RoutingOptions{Hops: uint8(forwardHops)},
		ReturnOptions:  substrate.RoutingOptions{Hops: uint8(returnHops)},
	})
	if err := i.sink.Send(ctx, routing, substrate.ApplicationDataOut{Tag: i.reservedTag, Payload: payload}); err != nil {
		return SessionID{}, err
	}

	deadline := i.timeoutBase * time.Duration(forwardHops+returnHops+2)
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			return SessionID{}, res.Err
		}
		return res.SessionID, nil
	case <-timer.C:
		return SessionID{}, ErrTimedOut
	case <-ctx.Done():
		return SessionID{}, ctx.Err()
	}
}

// HandleIncoming routes a SessionEstablished or SessionError reply to its
// waiting Open call.
func (i *Initiator) HandleIncoming(msg Message) error {
	var challenge uint64
	var result Result
	switch m := msg.(type) {
	case SessionEstablished:
		challenge = m.OrigChallenge
		result = Result{SessionID: SessionID{Tag: m.Tag, Pseudonym: m.Pseudonym}}
	case SessionError:
		challenge = m.Challenge
		result = Result{Err: fmt.Errorf("startproto: session rejected: %s", m.Reason)}
	default:
		return fmt.Errorf("startproto: %T is not an initiator-facing reply", msg)
	}

	i.mu.Lock()
	ch, ok := i.pending[challenge]
	i.mu.Unlock()
	if !ok {
		i.log.Warn("dropping Start reply for unknown challenge", "challenge", challenge)
		return ErrUnknownChallenge
	}
	ch <- result
	return nil
}
