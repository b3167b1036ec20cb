package startproto_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hoprnet/hopr-corego/startproto"
	"github.com/hoprnet/hopr-corego/substrate"
)

const reservedTag = 0

func pumpOnce(t *testing.T, ctx context.Context, src substrate.Source) (substrate.Pseudonym, startproto.Message) {
	t.Helper()
	from, data, err := src.Recv(ctx)
	require.NoError(t, err)
	msg, err := startproto.Decode(data.Payload)
	require.NoError(t, err)
	return from, msg
}

func TestOpenSessionEndToEnd(t *testing.T) {
	net := substrate.NewMemory()
	aliceSink, aliceSource := net.NewPeer("alice")
	bobSink, bobSource := net.NewPeer("bob")

	var incoming []startproto.IncomingSession
	responder := startproto.NewResponder(bobSink, reservedTag, 1, 4, func(s startproto.IncomingSession) {
		incoming = append(incoming, s)
	}, nil)
	initiator := startproto.NewInitiator(aliceSink, reservedTag, 50*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		from, msg := pumpOnce(t, ctx, bobSource)
		ss := msg.(startproto.StartSession)
		require.NoError(t, responder.HandleStartSession(ctx, from, ss))
	}()

	pseudonym, err := substrate.RandomPseudonym()
	require.NoError(t, err)

	go func() {
		_, msg := pumpOnce(t, ctx, aliceSource)
		require.NoError(t, initiator.HandleIncoming(msg))
	}()

	sid, err := initiator.Open(ctx, "bob", pseudonym, startproto.Target{Kind: startproto.TargetPlain}, startproto.CapSegmentation, 0, 1, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), sid.Tag)

	<-done
	require.Len(t, incoming, 1)
	require.Equal(t, uint64(1), incoming[0].Tag)
}

// A single-slot responder rejects a second concurrent session attempt
// with NoSlotsAvailable.
func TestOpenSessionNoSlotsAvailable(t *testing.T) {
	net := substrate.NewMemory()
	bobSink, bobSource := net.NewPeer("bob")
	aliceSink, aliceSource := net.NewPeer("alice")

	responder := startproto.NewResponder(bobSink, reservedTag, 1, 2, nil, nil) // exactly one usable tag
	initiator := startproto.NewInitiator(aliceSink, reservedTag, 50*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Occupy the only slot directly.
	occupied := make(chan struct{})
	go func() {
		defer close(occupied)
		from, msg := pumpOnce(t, ctx, bobSource)
		ss := msg.(startproto.StartSession)
		require.NoError(t, responder.HandleStartSession(ctx, from, ss))
	}()
	go func() {
		_, msg := pumpOnce(t, ctx, aliceSource)
		require.NoError(t, initiator.HandleIncoming(msg))
	}()
	p1, err := substrate.RandomPseudonym()
	require.NoError(t, err)
	_, err = initiator.Open(ctx, "bob", p1, startproto.Target{Kind: startproto.TargetPlain}, 0, 0, 1, 1)
	require.NoError(t, err)
	<-occupied

	// Second attempt must be rejected.
	rejected := make(chan struct{})
	go func() {
		defer close(rejected)
		from, msg := pumpOnce(t, ctx, bobSource)
		ss := msg.(startproto.StartSession)
		require.NoError(t, responder.HandleStartSession(ctx, from, ss))
	}()
	go func() {
		_, msg := pumpOnce(t, ctx, aliceSource)
		_ = initiator.HandleIncoming(msg)
	}()
	p2, err := substrate.RandomPseudonym()
	require.NoError(t, err)
	_, err = initiator.Open(ctx, "bob", p2, startproto.Target{Kind: startproto.TargetPlain}, 0, 0, 1, 1)
	require.Error(t, err)
	<-rejected
}
