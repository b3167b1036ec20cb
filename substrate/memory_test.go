package substrate_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hoprnet/hopr-corego/substrate"
)

func TestMemoryForwardAndReturn(t *testing.T) {
	net := substrate.NewMemory()
	aliceSink, _ := net.NewPeer("alice")
	_, bobSource := net.NewPeer("bob")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := aliceSink.Send(ctx, substrate.Forward(substrate.ForwardRouting{Destination: "bob"}), substrate.ApplicationDataOut{
		Tag: 7, Payload: []byte("hello"), MaxSurbsInPacket: 2,
	})
	require.NoError(t, err)

	_, data, err := bobSource.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(7), data.Tag)
	require.Equal(t, []byte("hello"), data.Payload)
	require.Equal(t, uint32(2), data.SurbCount)
}

func TestMemoryReturnRoutesToOrigin(t *testing.T) {
	net := substrate.NewMemory()
	aliceSink, aliceSource := net.NewPeer("alice")
	bobSink, bobSource := net.NewPeer("bob")
	_ = aliceSource

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	pseudonym, err := substrate.RandomPseudonym()
	require.NoError(t, err)

	require.NoError(t, aliceSink.Send(ctx, substrate.Forward(substrate.ForwardRouting{Destination: "bob", Pseudonym: &pseudonym}), substrate.ApplicationDataOut{
		Tag: 1, Payload: []byte("ping"),
	}))
	from, _, err := bobSource.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, pseudonym, from)

	require.NoError(t, bobSink.Send(ctx, substrate.Return(substrate.SurbMatcher{Pseudonym: pseudonym}), substrate.ApplicationDataOut{
		Tag: 2, Payload: []byte("pong"),
	}))
	_, data, err := aliceSource.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("pong"), data.Payload)
}
