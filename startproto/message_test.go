package startproto_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoprnet/hopr-corego/startproto"
	"github.com/hoprnet/hopr-corego/substrate"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	pseudonym, err := substrate.RandomPseudonym()
	require.NoError(t, err)

	cases := []startproto.Message{
		startproto.StartSession{
			Challenge:        42,
			Target:           startproto.Target{Kind: startproto.TargetService, Service: 80},
			Capabilities:     startproto.CapSegmentation | startproto.CapNoRateControl,
			HintTargetBuffer: 1024,
		},
		startproto.StartSession{
			Challenge: 7,
			Target:    startproto.Target{Kind: startproto.TargetSealed, Sealed: []byte("opaque")},
		},
		startproto.SessionEstablished{OrigChallenge: 42, Tag: 1000, Pseudonym: pseudonym},
		startproto.SessionError{Challenge: 42, Reason: startproto.ReasonNoSlotsAvailable},
		startproto.KeepAlive{Tag: 1000, Pseudonym: pseudonym},
	}

	for _, msg := range cases {
		encoded, err := startproto.Encode(msg)
		require.NoError(t, err)
		decoded, err := startproto.Decode(encoded)
		require.NoError(t, err)
		require.Equal(t, msg, decoded)
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	_, err := startproto.Decode([]byte{0x02, 0x01})
	require.Error(t, err)
}
