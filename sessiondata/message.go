// Package sessiondata implements the per-session data plane: egress
// framing and segmentation, ingress reassembly with a frame-timeout
// discard, bounded retransmission, and the distinguished terminating
// segment that closes a stream.
package sessiondata

import (
	"fmt"

	"github.com/hoprnet/hopr-corego/internal/bigendian"
)

type discriminant byte

const (
	discSeg               discriminant = 0x01
	discRetransmitRequest discriminant = 0x02
	discAck               discriminant = 0x03
)

// Flags bits on a Seg. frameEnd is an implementation detail: the
// reassembler needs to know a frame's segment count to know it is
// complete, so the last segment of every frame carries frameEnd; streamEnd
// additionally marks the segment that closes the stream for good.
const (
	flagFrameEnd  byte = 1 << 0
	flagStreamEnd byte = 1 << 1
)

// Message is any of the three session-data wire messages.
type Message interface{ isSessionMessage() }

// Seg is one wire segment of a frame.
type Seg struct {
	FrameID    uint32
	SegID      uint16
	FrameEnd   bool
	StreamEnd  bool
	Payload    []byte
}

// RetransmitRequest asks the peer to resend the segments of FrameID named
// by Missing, a bitmap with one bit per segment index (LSB of Missing[0] is
// segment 0).
type RetransmitRequest struct {
	FrameID uint32
	Missing []byte
}

// Ack confirms receipt of every segment of FrameID through ThroughSeg.
type Ack struct {
	FrameID    uint32
	ThroughSeg uint16
}

func (Seg) isSessionMessage()               {}
func (RetransmitRequest) isSessionMessage() {}
func (Ack) isSessionMessage()               {}

// Encode serializes msg to its wire form.
func Encode(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case Seg:
		var flags byte
		if m.FrameEnd {
			flags |= flagFrameEnd
		}
		if m.StreamEnd {
			flags |= flagStreamEnd
		}
		buf := make([]byte, 0, segHeaderSize+len(m.Payload))
		buf = append(buf, byte(discSeg))
		buf = bigendian.PutUint32(buf, m.FrameID)
		buf = bigendian.PutUint16(buf, m.SegID)
		buf = append(buf, flags)
		buf = append(buf, m.Payload...)
		return buf, nil

	case RetransmitRequest:
		buf := make([]byte, 0, 1+4+2+len(m.Missing))
		buf = append(buf, byte(discRetransmitRequest))
		buf = bigendian.PutUint32(buf, m.FrameID)
		buf = bigendian.PutUint16(buf, uint16(len(m.Missing)))
		buf = append(buf, m.Missing...)
		return buf, nil

	case Ack:
		buf := make([]byte, 0, 1+4+2)
		buf = append(buf, byte(discAck))
		buf = bigendian.PutUint32(buf, m.FrameID)
		buf = bigendian.PutUint16(buf, m.ThroughSeg)
		return buf, nil

	default:
		return nil, fmt.Errorf("sessiondata: unknown message type %T", msg)
	}
}

// Decode parses a wire-format session-data message.
func Decode(data []byte) (Message, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("sessiondata: empty message")
	}
	switch discriminant(data[0]) {
	case discSeg:
		if len(data) < segHeaderSize {
			return nil, fmt.Errorf("sessiondata: malformed segment (len %d)", len(data))
		}
		frameID := bigendian.Uint32(data[1:5])
		segID := bigendian.Uint16(data[5:7])
		flags := data[7]
		payload := append([]byte{}, data[8:]...)
		return Seg{
			FrameID:   frameID,
			SegID:     segID,
			FrameEnd:  flags&flagFrameEnd != 0,
			StreamEnd: flags&flagStreamEnd != 0,
			Payload:   payload,
		}, nil

	case discRetransmitRequest:
		if len(data) < 1+4+2 {
			return nil, fmt.Errorf("sessiondata: malformed retransmit request (len %d)", len(data))
		}
		frameID := bigendian.Uint32(data[1:5])
		n := int(bigendian.Uint16(data[5:7]))
		if len(data) != 1+4+2+n {
			return nil, fmt.Errorf("sessiondata: truncated retransmit request")
		}
		return RetransmitRequest{FrameID: frameID, Missing: append([]byte(nil), data[7:7+n]...)}, nil

	case discAck:
		if len(data) != 1+4+2 {
			return nil, fmt.Errorf("sessiondata: malformed ack (len %d)", len(data))
		}
		return Ack{FrameID: bigendian.Uint32(data[1:5]), ThroughSeg: bigendian.Uint16(data[5:7])}, nil

	default:
		return nil, fmt.Errorf("sessiondata: unknown discriminant 0x%02x", data[0])
	}
}
