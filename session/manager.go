// Package session implements the Session Manager: a TTL-and-size-bounded
// cache of sessions, the new-session/dispatch-message/ping-session/
// update-balancer-config/get-stats operations, and the background sweep
// that evicts idle sessions.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/luxfi/log"

	"github.com/hoprnet/hopr-corego/sessiondata"
	"github.com/hoprnet/hopr-corego/startproto"
	"github.com/hoprnet/hopr-corego/substrate"
	"github.com/hoprnet/hopr-corego/surb"
)

// DefaultDataMTU is used when Config.DataMTU is unset; it matches a
// conservative mixnet packet payload size.
const DefaultDataMTU = 400

// DefaultIdleTTL and DefaultMaxSessions are the manager's stated defaults.
const (
	DefaultIdleTTL     = 180 * time.Second
	DefaultMaxSessions = 128
	// sendTimeout bounds every cross-task send to surface back-pressure as
	// an error instead of deadlocking.
	sendTimeout = 200 * time.Millisecond
)

// Outcome classifies what DispatchMessage did with an inbound packet.
type Outcome uint8

const (
	Processed Outcome = iota
	Unrelated
)

// Config configures a Manager's slot bookkeeping.
type Config struct {
	Self             substrate.PeerID
	ReservedTag      uint64
	SessionTagStart  uint64
	SessionTagEnd    uint64
	MaxSessions      int
	IdleTTL          time.Duration
	ForwardHops      int
	ReturnHops       int
	InitTimeoutBase  time.Duration
	DataMTU          uint32
}

// Manager owns the session cache and the Start sub-protocol endpoints used
// to open and accept sessions.
type Manager struct {
	cfg       Config
	sink      substrate.Sink
	initiator *startproto.Initiator
	responder *startproto.Responder
	log       log.Logger

	mu    sync.Mutex
	cache *lru.Cache

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// New constructs a Manager. onIncomingSession, if non-nil, is invoked after
// a Session has already been registered for an accepted peer StartSession,
// so the caller can learn its id and start reading Data().
func New(cfg Config, sink substrate.Sink, logger log.Logger, onIncomingSession func(startproto.IncomingSession)) (*Manager, error) {
	if logger == nil {
		logger = log.Root()
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if span := cfg.SessionTagEnd - cfg.SessionTagStart; span > 0 && uint64(cfg.MaxSessions) > span {
		cfg.MaxSessions = int(span)
	}
	if cfg.InitTimeoutBase <= 0 {
		cfg.InitTimeoutBase = time.Second
	}

	m := &Manager{
		cfg:       cfg,
		sink:      sink,
		initiator: startproto.NewInitiator(sink, cfg.ReservedTag, cfg.InitTimeoutBase, logger),
		log:       logger,
	}
	m.responder = startproto.NewResponder(sink, cfg.ReservedTag, cfg.SessionTagStart, cfg.SessionTagEnd, func(in startproto.IncomingSession) {
		m.adopt(in)
		if onIncomingSession != nil {
			onIncomingSession(in)
		}
	}, logger)

	cache, err := lru.NewWithEvict(cfg.MaxSessions, m.onEvicted)
	if err != nil {
		return nil, fmt.Errorf("session: building cache: %w", err)
	}
	m.cache = cache

	ctx, cancel := context.WithCancel(context.Background())
	m.sweepCancel = cancel
	m.sweepDone = make(chan struct{})
	go m.sweepLoop(ctx)

	return m, nil
}

// adopt registers a Session for a peer-initiated (responder-side) session,
// replying to that peer via Return routing under its own pseudonym.
func (m *Manager) adopt(in startproto.IncomingSession) {
	id := ID{Tag: in.Tag, Pseudonym: in.Pseudonym}
	taskCtx, cancel := context.WithCancel(context.Background())
	routing := substrate.Return(substrate.SurbMatcher{Pseudonym: in.Pseudonym, Tag: in.Tag})
	sess := newSession(id, startproto.Target{Kind: startproto.TargetPlain}, 0, m.sink, routing, m.cfg.ReservedTag, sessiondata.DefaultConfig(m.dataMTU()), cancel)
	go sess.run(taskCtx)

	m.mu.Lock()
	m.cache.Add(id, sess)
	m.mu.Unlock()
}

func (m *Manager) onEvicted(_, value interface{}) {
	sess := value.(*Session)
	if sess.balancer != nil {
		sess.balancer.Stop()
	}
	// Responder-side sessions (Return routing) hold a tag from our responder.
	if _, ret := sess.routing.Split(); ret != nil {
		m.responder.ReleaseTag(sess.ID.Tag)
	}
	sess.close()
}

func (m *Manager) sweepLoop(ctx context.Context) {
	defer close(m.sweepDone)
	interval := m.cfg.IdleTTL / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *Manager) evictIdle() {
	m.mu.Lock()
	keys := m.cache.Keys()
	var stale []interface{}
	for _, k := range keys {
		v, ok := m.cache.Peek(k)
		if !ok {
			continue
		}
		if v.(*Session).idleSince() >= m.cfg.IdleTTL {
			stale = append(stale, k)
		}
	}
	for _, k := range stale {
		m.cache.Remove(k)
	}
	m.mu.Unlock()
}

// Close stops the idle-sweep loop and evicts every remaining session.
func (m *Manager) Close() {
	m.sweepCancel()
	<-m.sweepDone
	m.mu.Lock()
	m.cache.Purge()
	m.mu.Unlock()
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Len()
}

func (m *Manager) dataMTU() uint32 {
	if m.cfg.DataMTU > 0 {
		return m.cfg.DataMTU
	}
	return DefaultDataMTU
}

func randomPseudonym() (substrate.Pseudonym, error) { return substrate.RandomPseudonym() }

// NewSession opens a session to destination. pseudonym may be nil to
// request a random one. If balCfg is non-nil,
// balancing is enabled and the call blocks on the balancer's readiness gate
// before returning.
func (m *Manager) NewSession(ctx context.Context, destination substrate.PeerID, pseudonym *substrate.Pseudonym, target startproto.Target, caps startproto.Capabilities, balCfg *surb.Config) (*Session, error) {
	if destination == m.cfg.Self {
		return nil, ErrLoopback
	}
	if m.Len() >= m.cfg.MaxSessions {
		return nil, ErrNoSessionSlot
	}

	p := substrate.Pseudonym{}
	if pseudonym != nil {
		p = *pseudonym
	} else {
		var err error
		p, err = randomPseudonym()
		if err != nil {
			return nil, err
		}
	}

	sid, err := m.initiator.Open(ctx, destination, p, target, caps, 0, m.cfg.ForwardHops, m.cfg.ReturnHops)
	if err != nil {
		return nil, err
	}
	id := ID{Tag: sid.Tag, Pseudonym: sid.Pseudonym}

	m.mu.Lock()
	if _, exists := m.cache.Get(id); exists {
		m.mu.Unlock()
		return nil, ErrLoopback
	}
	m.mu.Unlock()

	taskCtx, cancel := context.WithCancel(context.Background())
	routing := substrate.Forward(substrate.ForwardRouting{
		Destination:    destination,
		Pseudonym:      &p,
		ForwardOptions: substrate.RoutingOptions{Hops: uint8(m.cfg.ForwardHops)},
		ReturnOptions:  substrate.RoutingOptions{Hops: uint8(m.cfg.ReturnHops)},
	})
	dataCfg := sessiondata.DefaultConfig(m.dataMTU())
	sess := newSession(id, target, caps, m.sink, routing, m.cfg.ReservedTag, dataCfg, cancel)
	go sess.run(taskCtx)

	if balCfg != nil {
		sess.estimator = &surb.Estimator{}
		sess.balancer = surb.NewBalancer(sess.estimator, surb.NewPIDController(0.6, 0.05, 0.0, *balCfg), *balCfg)
		sess.balancer.Run(taskCtx)
		go sess.runKeepAlive(taskCtx)
	}

	m.mu.Lock()
	m.cache.Add(id, sess)
	m.mu.Unlock()

	if sess.balancer != nil {
		if err := sess.balancer.WaitReady(ctx); err != nil {
			m.mu.Lock()
			m.cache.Remove(id)
			m.mu.Unlock()
			return nil, err
		}
	}
	return sess, nil
}

// DispatchMessage routes one inbound substrate packet.
func (m *Manager) DispatchMessage(ctx context.Context, from substrate.Pseudonym, tag uint64, payload []byte, surbCount uint32) (Outcome, []byte, error) {
	if tag == m.cfg.ReservedTag {
		msg, err := startproto.Decode(payload)
		if err != nil {
			return Processed, nil, err
		}
		switch mm := msg.(type) {
		case startproto.StartSession:
			if err := m.responder.HandleStartSession(ctx, from, mm); err != nil {
				return Processed, nil, err
			}
		case startproto.KeepAlive:
			// Carries no data and expects no reply; it exists purely to
			// deliver SURBs, already credited by the substrate layer below
			// this dispatch.
		default:
			if err := m.initiator.HandleIncoming(msg); err != nil {
				return Processed, nil, err
			}
		}
		return Processed, nil, nil
	}

	if tag >= m.cfg.SessionTagStart && tag < m.cfg.SessionTagEnd {
		id := ID{Tag: tag, Pseudonym: from}
		m.mu.Lock()
		v, ok := m.cache.Get(id)
		m.mu.Unlock()
		if !ok {
			return Processed, nil, ErrUnknownData
		}
		sess := v.(*Session)
		sess.touch()
		sess.recordIn(len(payload), surbCount)
		select {
		case sess.wireIn <- payload:
			return Processed, nil, nil
		case <-time.After(sendTimeout):
			return Processed, nil, ErrSendTimeout
		}
	}

	return Unrelated, payload, nil
}

// PingSession fire-and-forget sends a KeepAlive for id.
func (m *Manager) PingSession(ctx context.Context, id ID) error {
	sess, err := m.lookup(id)
	if err != nil {
		return err
	}
	sess.touch()
	payload, err := startproto.Encode(startproto.KeepAlive{Tag: id.Tag, Pseudonym: id.Pseudonym})
	if err != nil {
		return err
	}
	if err := m.sink.Send(ctx, substrate.Return(substrate.SurbMatcher{Pseudonym: id.Pseudonym, Tag: m.cfg.ReservedTag}), substrate.ApplicationDataOut{
		Tag: m.cfg.ReservedTag, Payload: payload, MaxSurbsInPacket: keepAliveSurbs,
	}); err != nil {
		return err
	}
	sess.recordOut(0, keepAliveSurbs)
	return nil
}

// UpdateBalancerConfig hot-reconfigures id's balancer; it fails if the
// session has no balancer.
func (m *Manager) UpdateBalancerConfig(id ID, cfg surb.Config) error {
	sess, err := m.lookup(id)
	if err != nil {
		return err
	}
	if sess.balancer == nil {
		return ErrBalancingDisabled
	}
	sess.balancer.Reconfigure(cfg)
	return nil
}

// GetStats returns a snapshot of id's counters.
func (m *Manager) GetStats(id ID) (Stats, error) {
	sess, err := m.lookup(id)
	if err != nil {
		return Stats{}, err
	}
	return sess.snapshot(), nil
}

// Get returns the live session for id, if any.
func (m *Manager) Get(id ID) (*Session, bool) {
	sess, err := m.lookup(id)
	if err != nil {
		return nil, false
	}
	return sess, true
}

func (m *Manager) lookup(id ID) (*Session, error) {
	m.mu.Lock()
	v, ok := m.cache.Get(id)
	m.mu.Unlock()
	if !ok {
		return nil, ErrUnknownSession
	}
	return v.(*Session), nil
}
