package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hoprnet/hopr-corego/sessiondata"
	"github.com/hoprnet/hopr-corego/startproto"
	"github.com/hoprnet/hopr-corego/substrate"
	"github.com/hoprnet/hopr-corego/surb"
)

// ID identifies a session by its (tag, pseudonym) pair.
type ID struct {
	Tag       uint64
	Pseudonym substrate.Pseudonym
}

// Stats is the snapshot GetStats returns.
type Stats struct {
	BytesIn, BytesOut     uint64
	PacketsIn, PacketsOut uint64
	FramesIn, FramesOut   uint64
	SurbsProduced         uint64
	SurbsConsumed         uint64
	OpenedAt              time.Time
}

// Session is one entry in the Manager's cache: a data-plane pipeline plus
// whatever background tasks (balancer, keep-alive loop) were spawned for
// it, all owned via a single cancellation handle so tearing down a session
// stops every goroutine it started.
type Session struct {
	ID     ID
	Target startproto.Target
	Caps   startproto.Capabilities

	sink        substrate.Sink
	routing     substrate.DestinationRouting
	reservedTag uint64

	wireIn     chan []byte
	framesOut  chan []byte
	sender     *sessiondata.Sender
	reassembler *sessiondata.Reassembler

	cancel context.CancelFunc

	estimator *surb.Estimator
	balancer  *surb.Balancer // nil if balancing is disabled

	lastActive atomic.Int64 // unix nanoseconds

	mu    sync.Mutex
	stats Stats
}

func newSession(id ID, target startproto.Target, caps startproto.Capabilities, sink substrate.Sink, routing substrate.DestinationRouting, reservedTag uint64, cfg sessiondata.Config, cancel context.CancelFunc) *Session {
	s := &Session{
		ID:          id,
		Target:      target,
		Caps:        caps,
		sink:        sink,
		routing:     routing,
		reservedTag: reservedTag,
		wireIn:      make(chan []byte, 64),
		framesOut:   make(chan []byte, 64),
		sender:      sessiondata.NewSender(cfg, nil),
		reassembler: sessiondata.NewReassembler(cfg, nil),
		cancel:      cancel,
		stats:       Stats{OpenedAt: time.Now()},
	}
	s.touch()
	return s
}

func (s *Session) touch() { s.lastActive.Store(time.Now().UnixNano()) }

func (s *Session) idleSince() time.Duration {
	return time.Since(time.Unix(0, s.lastActive.Load()))
}

// run pumps wire-format session-data messages off wireIn into the
// reassembler, publishing completed frames to framesOut and serving
// retransmission requests, until ctx is canceled.
func (s *Session) run(ctx context.Context) {
	defer close(s.framesOut)
	ticker := time.NewTicker(s.reassemblerSweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reassembler.SweepExpired(time.Now())
		case raw, ok := <-s.wireIn:
			if !ok {
				return
			}
			s.handleWire(ctx, raw)
		}
	}
}

func (s *Session) reassemblerSweepInterval() time.Duration {
	return 50 * time.Millisecond
}

func (s *Session) handleWire(ctx context.Context, raw []byte) {
	msg, err := sessiondata.Decode(raw)
	if err != nil {
		return
	}
	switch m := msg.(type) {
	case sessiondata.Seg:
		cf, done := s.reassembler.HandleSegment(m)
		if !done {
			return
		}
		select {
		case s.framesOut <- cf.Payload:
		case <-ctx.Done():
			return
		}
		if cf.StreamEnd {
			return
		}
	case sessiondata.RetransmitRequest:
		segs, ok := s.sender.Retransmit(m.FrameID, m.Missing)
		if !ok {
			return
		}
		for _, seg := range segs {
			s.sendWire(ctx, seg)
		}
	case sessiondata.Ack:
		// acks are advisory; no bookkeeping required at this layer.
	}
}

func (s *Session) sendWire(ctx context.Context, msg sessiondata.Message) {
	payload, err := sessiondata.Encode(msg)
	if err != nil {
		return
	}
	_ = s.sink.Send(ctx, s.routing, substrate.ApplicationDataOut{Tag: s.ID.Tag, Payload: payload})
}

// dataSurbsPerPacket is the organic 0..2 hint attached to ordinary data
// segments; keep-alives attach the maxed-out count instead (keepAliveSurbs).
const dataSurbsPerPacket = 1

// keepAliveSurbs is the SURB count attached to each packet on the automatic
// keep-alive stream, the "maxed out on keep-alives" case.
const keepAliveSurbs = 2

// Send frames payload as one session-data frame and transmits its segments.
func (s *Session) Send(ctx context.Context, payload []byte, streamEnd bool) error {
	segs := s.sender.FrameOut(payload, streamEnd)
	for _, seg := range segs {
		if err := s.sink.Send(ctx, s.routing, mustEncodeOut(s.ID.Tag, seg, dataSurbsPerPacket)); err != nil {
			return err
		}
		s.recordOut(len(seg.Payload), dataSurbsPerPacket)
	}
	s.touch()
	return nil
}

func mustEncodeOut(tag uint64, seg sessiondata.Seg, surbsInPacket uint8) substrate.ApplicationDataOut {
	payload, _ := sessiondata.Encode(seg)
	return substrate.ApplicationDataOut{Tag: tag, Payload: payload, MaxSurbsInPacket: surbsInPacket}
}

// runKeepAlive paces an automatic KeepAlive stream off the balancer's
// controller output: each send waits for the rate limiter the balancer's PID
// loop republishes on every tick, so the send rate tracks the controller's
// SURBs/sec output, then attaches the maxed-out SURB count and records it as
// produced. It returns once ctx is canceled. Only spawned when balancing is
// enabled (s.balancer is non-nil).
func (s *Session) runKeepAlive(ctx context.Context) {
	limiter := s.balancer.Limiter()
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		payload, err := startproto.Encode(startproto.KeepAlive{Tag: s.ID.Tag, Pseudonym: s.ID.Pseudonym})
		if err != nil {
			return
		}
		if err := s.sink.Send(ctx, s.routing, substrate.ApplicationDataOut{
			Tag: s.reservedTag, Payload: payload, MaxSurbsInPacket: keepAliveSurbs,
		}); err != nil {
			return
		}
		s.recordOut(0, keepAliveSurbs)
	}
}

// Data returns the channel the application reads reassembled inbound frames
// from.
func (s *Session) Data() <-chan []byte { return s.framesOut }

// recordIn updates byte/packet counters for one inbound packet and, when
// balancing is enabled, records one consumed SURB on the estimator. surbCount
// is not used.
func (s *Session) recordIn(n int, surbCount uint32) {
	s.mu.Lock()
	s.stats.BytesIn += uint64(n)
	s.stats.PacketsIn++
	s.mu.Unlock()
	if s.estimator != nil {
		s.estimator.RecordConsumed()
	}
	_ = surbCount
}

// recordOut updates byte/packet counters for one outbound packet.
func (s *Session) recordOut(n int, surbsAttached uint8) {
	s.mu.Lock()
	s.stats.BytesOut += uint64(n)
	s.stats.PacketsOut++
	s.stats.SurbsProduced += uint64(surbsAttached)
	s.mu.Unlock()
	if s.estimator != nil {
		s.estimator.RecordProduced(uint32(surbsAttached))
	}
}

func (s *Session) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Session) close() {
	s.cancel()
	close(s.wireIn)
}
