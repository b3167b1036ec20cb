package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hoprnet/hopr-corego/session"
	"github.com/hoprnet/hopr-corego/startproto"
	"github.com/hoprnet/hopr-corego/substrate"
	"github.com/hoprnet/hopr-corego/surb"
)

const reservedTag = 0

// pump relays every packet one Source receives into its owning Manager's
// DispatchMessage, for as long as ctx is alive.
func pump(ctx context.Context, src substrate.Source, mgr *session.Manager) {
	for {
		from, data, err := src.Recv(ctx)
		if err != nil {
			return
		}
		go mgr.DispatchMessage(ctx, from, data.Tag, data.Payload, data.SurbCount)
	}
}

func newPair(t *testing.T) (alice, bob *session.Manager, aliceSelf, bobSelf substrate.PeerID, cancel context.CancelFunc) {
	t.Helper()
	net := substrate.NewMemory()
	aliceSelf, bobSelf = "alice", "bob"
	aliceSink, aliceSrc := net.NewPeer(aliceSelf)
	bobSink, bobSrc := net.NewPeer(bobSelf)

	ctx, cancelFn := context.WithCancel(context.Background())

	a, err := session.New(session.Config{
		Self: aliceSelf, ReservedTag: reservedTag,
		SessionTagStart: 1, SessionTagEnd: 4,
		IdleTTL: 50 * time.Millisecond, InitTimeoutBase: 30 * time.Millisecond,
	}, aliceSink, nil, nil)
	require.NoError(t, err)

	b, err := session.New(session.Config{
		Self: bobSelf, ReservedTag: reservedTag,
		SessionTagStart: 1, SessionTagEnd: 4,
		IdleTTL: 50 * time.Millisecond, InitTimeoutBase: 30 * time.Millisecond,
	}, bobSink, nil, nil)
	require.NoError(t, err)

	go pump(ctx, aliceSrc, a)
	go pump(ctx, bobSrc, b)

	return a, b, aliceSelf, bobSelf, cancelFn
}

// Opening and then tearing down a session.
func TestNewSessionOpenAndClose(t *testing.T) {
	alice, bob, _, bobSelf, cancel := newPair(t)
	defer cancel()
	defer alice.Close()
	defer bob.Close()

	ctx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()

	sess, err := alice.NewSession(ctx, bobSelf, nil, startproto.Target{Kind: startproto.TargetPlain}, 0, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), sess.ID.Tag)
	require.Equal(t, 1, alice.Len())

	stats, err := alice.GetStats(sess.ID)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), stats.OpenedAt, time.Second)
}

// Operating on an id that was never opened.
func TestUnknownSessionOperations(t *testing.T) {
	alice, _, _, _, cancel := newPair(t)
	defer cancel()
	defer alice.Close()

	bogus := session.ID{Tag: 99}
	_, err := alice.GetStats(bogus)
	require.ErrorIs(t, err, session.ErrUnknownSession)

	err = alice.PingSession(context.Background(), bogus)
	require.ErrorIs(t, err, session.ErrUnknownSession)
}

// A session idles past its TTL and the sweep evicts it.
func TestIdleSessionIsEvicted(t *testing.T) {
	alice, bob, _, bobSelf, cancel := newPair(t)
	defer cancel()
	defer alice.Close()
	defer bob.Close()

	ctx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()

	_, err := alice.NewSession(ctx, bobSelf, nil, startproto.Target{Kind: startproto.TargetPlain}, 0, nil)
	require.NoError(t, err)
	require.Equal(t, 1, alice.Len())

	require.Eventually(t, func() bool {
		return alice.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

// Refusing to open a session to ourselves.
func TestNewSessionRejectsLoopback(t *testing.T) {
	alice, _, aliceSelf, _, cancel := newPair(t)
	defer cancel()
	defer alice.Close()

	_, err := alice.NewSession(context.Background(), aliceSelf, nil, startproto.Target{Kind: startproto.TargetPlain}, 0, nil)
	require.ErrorIs(t, err, session.ErrLoopback)
}

// A payload sent on one side's session arrives intact on the other side's
// Data() channel.
func TestSessionDataRoundTrip(t *testing.T) {
	alice, bob, _, bobSelf, cancel := newPair(t)
	defer cancel()
	defer alice.Close()
	defer bob.Close()

	ctx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()

	sess, err := alice.NewSession(ctx, bobSelf, nil, startproto.Target{Kind: startproto.TargetPlain}, 0, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := bob.Get(session.ID{Tag: sess.ID.Tag, Pseudonym: sess.ID.Pseudonym})
		return ok
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, sess.Send(ctx, []byte("hello bob"), false))

	bobSess, ok := bob.Get(session.ID{Tag: sess.ID.Tag, Pseudonym: sess.ID.Pseudonym})
	require.True(t, ok)

	select {
	case got := <-bobSess.Data():
		require.Equal(t, []byte("hello bob"), got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

// Opening a session with balancing enabled spawns the keep-alive stream and
// balancer, and the readiness gate is satisfied once the keep-alive SURB
// rate has built up the estimated inventory to the configured setpoint,
// instead of blocking for the full readiness timeout.
func TestNewSessionWithBalancingReachesReadiness(t *testing.T) {
	alice, bob, _, bobSelf, cancel := newPair(t)
	defer cancel()
	defer alice.Close()
	defer bob.Close()

	ctx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()

	balCfg := surb.DefaultConfig()
	start := time.Now()
	sess, err := alice.NewSession(ctx, bobSelf, nil, startproto.Target{Kind: startproto.TargetPlain}, 0, &balCfg)
	require.NoError(t, err)
	require.Less(t, time.Since(start), 2*time.Second)

	stats, err := alice.GetStats(sess.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, stats.SurbsProduced, uint64(balCfg.TargetSurbBufferSize)/2)
}

// Opening more sessions than the configured cap returns ErrNoSessionSlot.
func TestNewSessionRejectsWhenSlotsExhausted(t *testing.T) {
	net := substrate.NewMemory()
	aliceSink, aliceSrc := net.NewPeer("alice")
	bobSink, bobSrc := net.NewPeer("bob")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice, err := session.New(session.Config{
		Self: "alice", ReservedTag: reservedTag,
		SessionTagStart: 1, SessionTagEnd: 4, MaxSessions: 1,
		IdleTTL: time.Minute, InitTimeoutBase: 30 * time.Millisecond,
	}, aliceSink, nil, nil)
	require.NoError(t, err)
	defer alice.Close()

	bob, err := session.New(session.Config{
		Self: "bob", ReservedTag: reservedTag,
		SessionTagStart: 1, SessionTagEnd: 4,
		IdleTTL: time.Minute, InitTimeoutBase: 30 * time.Millisecond,
	}, bobSink, nil, nil)
	require.NoError(t, err)
	defer bob.Close()

	go pump(ctx, aliceSrc, alice)
	go pump(ctx, bobSrc, bob)

	opCtx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()

	_, err = alice.NewSession(opCtx, "bob", nil, startproto.Target{Kind: startproto.TargetPlain}, 0, nil)
	require.NoError(t, err)

	_, err = alice.NewSession(opCtx, "bob", nil, startproto.Target{Kind: startproto.TargetPlain}, 0, nil)
	require.ErrorIs(t, err, session.ErrNoSessionSlot)
}
