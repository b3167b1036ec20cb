package startproto

import (
	"context"
	"sync"

	"github.com/hoprnet/hopr-corego/substrate"
	"github.com/luxfi/log"
)

// IncomingSession notifies the upper layer (the session manager) that a new
// session tag was allocated in response to a peer's StartSession.
type IncomingSession struct {
	Tag       uint64
	Pseudonym substrate.Pseudonym
}

// Responder drives the Start sub-protocol from the responding side: it owns
// the configured session-tag range, allocates a fresh tag per accepted
// StartSession, and notifies the caller of the resulting session.
type Responder struct {
	sink        substrate.Sink
	reservedTag uint64
	rangeStart  uint64
	rangeEnd    uint64
	onIncoming  func(IncomingSession)
	log         log.Logger

	mu        sync.Mutex
	next      uint64
	allocated map[uint64]struct{}
}

// NewResponder constructs a Responder owning the half-open tag range
// [rangeStart, rangeEnd). If reservedTag falls inside or above that range,
// rangeStart is adjusted upward past it so the two ranges never collide.
func NewResponder(sink substrate.Sink, reservedTag, rangeStart, rangeEnd uint64, onIncoming func(IncomingSession), logger log.Logger) *Responder {
	if logger == nil {
		logger = log.Root()
	}
	if rangeStart <= reservedTag {
		rangeStart = reservedTag + 1
	}
	if rangeEnd < rangeStart {
		rangeEnd = rangeStart
	}
	return &Responder{
		sink:        sink,
		reservedTag: reservedTag,
		rangeStart:  rangeStart,
		rangeEnd:    rangeEnd,
		onIncoming:  onIncoming,
		log:         logger,
		next:        rangeStart,
		allocated:   make(map[uint64]struct{}),
	}
}

// allocateTag returns the next free tag in the range, wrapping around and
// skipping the reserved tag and any tag already allocated.
func (r *Responder) allocateTag() (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rangeEnd <= r.rangeStart {
		return 0, ErrNoSessionSlot
	}
	span := r.rangeEnd - r.rangeStart
	for i := uint64(0); i < span; i++ {
		candidate := r.rangeStart + (r.next-r.rangeStart+i)%span
		if candidate == r.reservedTag {
			continue
		}
		if _, used := r.allocated[candidate]; !used {
			r.allocated[candidate] = struct{}{}
			r.next = candidate + 1
			return candidate, nil
		}
	}
	return 0, ErrNoSessionSlot
}

// ReleaseTag frees tag for reuse; called by the session manager on eviction.
func (r *Responder) ReleaseTag(tag uint64) {
	r.mu.Lock()
	delete(r.allocated, tag)
	r.mu.Unlock()
}

// HandleStartSession allocates a session for a StartSession arriving from
// pseudonym, replying SessionEstablished on success or SessionError with
// NoSlotsAvailable if the range is exhausted.
func (r *Responder) HandleStartSession(ctx context.Context, from substrate.Pseudonym, m StartSession) error {
	tag, err := r.allocateTag()
	if err != nil {
		r.log.Warn("rejecting StartSession", "pseudonym", from.String(), "err", err)
		return r.reply(ctx, from, SessionError{Challenge: m.Challenge, Reason: ReasonNoSlotsAvailable})
	}
	if err := r.reply(ctx, from, SessionEstablished{OrigChallenge: m.Challenge, Tag: tag, Pseudonym: from}); err != nil {
		r.ReleaseTag(tag)
		return err
	}
	if r.onIncoming != nil {
		r.onIncoming(IncomingSession{Tag: tag, Pseudonym: from})
	}
	return nil
}

func (r *Responder) reply(ctx context.Context, to substrate.Pseudonym, msg Message) error {
	payload, err := Encode(msg)
	if err != nil {
		return err
	}
	return r.sink.Send(ctx, substrate.Return(substrate.SurbMatcher{Pseudonym: to, Tag: r.reservedTag}), substrate.ApplicationDataOut{
		Tag: r.reservedTag, Payload: payload,
	})
}
