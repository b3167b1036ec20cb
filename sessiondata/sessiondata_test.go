package sessiondata_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hoprnet/hopr-corego/sessiondata"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []sessiondata.Message{
		sessiondata.Seg{FrameID: 7, SegID: 2, FrameEnd: true, StreamEnd: false, Payload: []byte("hello")},
		sessiondata.Seg{FrameID: 7, SegID: 0, Payload: []byte{}},
		sessiondata.RetransmitRequest{FrameID: 7, Missing: []byte{0b00000101}},
		sessiondata.Ack{FrameID: 7, ThroughSeg: 3},
	}
	for _, want := range cases {
		raw, err := sessiondata.Encode(want)
		require.NoError(t, err)
		got, err := sessiondata.Decode(raw)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	_, err := sessiondata.Decode([]byte{0x01, 0x00})
	require.Error(t, err)
	_, err = sessiondata.Decode(nil)
	require.Error(t, err)
}

// A byte stream written to egress equals the byte stream read on ingress,
// round-tripped through segmentation + reassembly.
func TestSegmentationReassemblyRoundTrip(t *testing.T) {
	cfg := sessiondata.DefaultConfig(64)
	sender := sessiondata.NewSender(cfg, nil)
	reassembler := sessiondata.NewReassembler(cfg, nil)

	payload := bytes.Repeat([]byte("x"), 500)
	segs := sender.FrameOut(payload, true)
	require.Greater(t, len(segs), 1)

	var completed *sessiondata.CompletedFrame
	for _, seg := range segs {
		raw, err := sessiondata.Encode(seg)
		require.NoError(t, err)
		msg, err := sessiondata.Decode(raw)
		require.NoError(t, err)
		cf, done := reassembler.HandleSegment(msg.(sessiondata.Seg))
		if done {
			completed = cf
		}
	}
	require.NotNil(t, completed)
	require.Equal(t, payload, completed.Payload)
	require.True(t, completed.StreamEnd)
}

func TestReassemblerDiscardsIncompleteFrameAfterTimeout(t *testing.T) {
	cfg := sessiondata.DefaultConfig(64)
	cfg.MaxFrameTimeout = sessiondata.MinFrameTimeout
	reassembler := sessiondata.NewReassembler(cfg, nil)

	reassembler.HandleSegment(sessiondata.Seg{FrameID: 1, SegID: 0, Payload: []byte("partial")})
	time.Sleep(3 * sessiondata.MinFrameTimeout)

	discarded := reassembler.SweepExpired(time.Now())
	require.Equal(t, 1, discarded)
	require.EqualValues(t, 1, reassembler.Stats().FramesDiscarded)
}

func TestSenderServesRetransmission(t *testing.T) {
	cfg := sessiondata.DefaultConfig(64)
	sender := sessiondata.NewSender(cfg, nil)

	segs := sender.FrameOut(bytes.Repeat([]byte("y"), 300), false)
	require.Greater(t, len(segs), 1)

	// Pretend every segment but the first was lost.
	have := map[uint16]bool{0: true}
	bm := make([]byte, len(segs)/8+1)
	for _, seg := range segs {
		if !have[seg.SegID] {
			bm[seg.SegID/8] |= 1 << (seg.SegID % 8)
		}
	}

	resent, ok := sender.Retransmit(segs[0].FrameID, bm)
	require.True(t, ok)
	require.Equal(t, len(segs)-1, len(resent))

	_, ok = sender.Retransmit(segs[0].FrameID+999, bm)
	require.False(t, ok)
}
