// Package startproto implements the Start sub-protocol: the tiny message
// exchange carried under a single reserved tag that negotiates a new
// session before its data plane (sessiondata) takes over.
package startproto

import (
	"encoding/binary"
	"fmt"

	"github.com/hoprnet/hopr-corego/substrate"
)

// discriminant is the one-byte message-kind tag every Start message
// begins with.
type discriminant byte

const (
	discStartSession       discriminant = 0x01
	discSessionEstablished discriminant = 0x02
	discSessionError       discriminant = 0x03
	discKeepAlive          discriminant = 0x04
)

// TargetKind distinguishes the three session-target shapes.
type TargetKind uint8

const (
	TargetSealed TargetKind = iota
	TargetPlain
	TargetService
)

// Target names what a session ultimately routes to.
type Target struct {
	Kind TargetKind
	// Sealed carries an opaque routing payload, meaningful to the exit node
	// (TargetSealed only). Service carries a service identifier
	// (TargetService only); Plain carries neither.
	Sealed  []byte
	Service uint16
}

// Capabilities is the session capability bitset.
type Capabilities uint8

const (
	CapSegmentation Capabilities = 1 << iota
	CapRetransmission
	CapRetransmissionAckOnly
	CapNoDelay
	CapNoRateControl
)

func (c Capabilities) Has(bit Capabilities) bool { return c&bit != 0 }

// ErrorReason enumerates SessionError causes.
type ErrorReason uint8

const (
	ReasonNoSlotsAvailable ErrorReason = iota
	ReasonBusy
	ReasonMalformed
)

func (r ErrorReason) String() string {
	switch r {
	case ReasonNoSlotsAvailable:
		return "NoSlotsAvailable"
	case ReasonBusy:
		return "Busy"
	case ReasonMalformed:
		return "Malformed"
	default:
		return "Unknown"
	}
}

// Message is any of the four Start sub-protocol message kinds.
type Message interface{ isMessage() }

// StartSession requests a new session from its recipient.
type StartSession struct {
	Challenge         uint64
	Target            Target
	Capabilities      Capabilities
	HintTargetBuffer  uint32
}

// SessionEstablished is sent in reply to a successful StartSession.
type SessionEstablished struct {
	OrigChallenge uint64
	Tag           uint64
	Pseudonym     substrate.Pseudonym
}

// SessionError is sent in reply to a rejected StartSession.
type SessionError struct {
	Challenge uint64
	Reason    ErrorReason
}

// KeepAlive carries no data and expects no reply; it exists purely to
// deliver SURBs to the peer.
type KeepAlive struct {
	Tag       uint64
	Pseudonym substrate.Pseudonym
}

func (StartSession) isMessage()       {}
func (SessionEstablished) isMessage() {}
func (SessionError) isMessage()       {}
func (KeepAlive) isMessage()          {}

// Encode serializes msg to its one-byte-discriminant wire layout.
func Encode(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case StartSession:
		return encodeStartSession(m), nil
	case SessionEstablished:
		buf := make([]byte, 1+8+8+16)
		buf[0] = byte(discSessionEstablished)
		binary.BigEndian.PutUint64(buf[1:9], m.OrigChallenge)
		binary.BigEndian.PutUint64(buf[9:17], m.Tag)
		copy(buf[17:33], m.Pseudonym[:])
		return buf, nil
	case SessionError:
		buf := make([]byte, 1+8+1)
		buf[0] = byte(discSessionError)
		binary.BigEndian.PutUint64(buf[1:9], m.Challenge)
		buf[9] = byte(m.Reason)
		return buf, nil
	case KeepAlive:
		buf := make([]byte, 1+8+16)
		buf[0] = byte(discKeepAlive)
		binary.BigEndian.PutUint64(buf[1:9], m.Tag)
		copy(buf[9:25], m.Pseudonym[:])
		return buf, nil
	default:
		return nil, fmt.Errorf("startproto: unknown message type %T", msg)
	}
}

func encodeStartSession(m StartSession) []byte {
	targetBytes := encodeTarget(m.Target)
	buf := make([]byte, 0, 1+8+len(targetBytes)+1+4)
	buf = append(buf, byte(discStartSession))
	var challenge [8]byte
	binary.BigEndian.PutUint64(challenge[:], m.Challenge)
	buf = append(buf, challenge[:]...)
	buf = append(buf, targetBytes...)
	buf = append(buf, byte(m.Capabilities))
	var hint [4]byte
	binary.BigEndian.PutUint32(hint[:], m.HintTargetBuffer)
	buf = append(buf, hint[:]...)
	return buf
}

func encodeTarget(t Target) []byte {
	switch t.Kind {
	case TargetSealed:
		out := make([]byte, 1+2+len(t.Sealed))
		out[0] = byte(TargetSealed)
		binary.BigEndian.PutUint16(out[1:3], uint16(len(t.Sealed)))
		copy(out[3:], t.Sealed)
		return out
	case TargetService:
		out := make([]byte, 1+2)
		out[0] = byte(TargetService)
		binary.BigEndian.PutUint16(out[1:3], t.Service)
		return out
	default:
		return []byte{byte(TargetPlain)}
	}
}

// Decode parses a wire-format Start message.
func Decode(data []byte) (Message, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("startproto: empty message")
	}
	switch discriminant(data[0]) {
	case discStartSession:
		return decodeStartSession(data[1:])
	case discSessionEstablished:
		if len(data) != 1+8+8+16 {
			return nil, fmt.Errorf("startproto: malformed SessionEstablished (len %d)", len(data))
		}
		var m SessionEstablished
		m.OrigChallenge = binary.BigEndian.Uint64(data[1:9])
		m.Tag = binary.BigEndian.Uint64(data[9:17])
		copy(m.Pseudonym[:], data[17:33])
		return m, nil
	case discSessionError:
		if len(data) != 1+8+1 {
			return nil, fmt.Errorf("startproto: malformed SessionError (len %d)", len(data))
		}
		return SessionError{Challenge: binary.BigEndian.Uint64(data[1:9]), Reason: ErrorReason(data[9])}, nil
	case discKeepAlive:
		if len(data) != 1+8+16 {
			return nil, fmt.Errorf("startproto: malformed KeepAlive (len %d)", len(data))
		}
		var m KeepAlive
		m.Tag = binary.BigEndian.Uint64(data[1:9])
		copy(m.Pseudonym[:], data[9:25])
		return m, nil
	default:
		return nil, fmt.Errorf("startproto: unknown discriminant 0x%02x", data[0])
	}
}

func decodeStartSession(b []byte) (Message, error) {
	if len(b) < 8+1 {
		return nil, fmt.Errorf("startproto: malformed StartSession")
	}
	challenge := binary.BigEndian.Uint64(b[0:8])
	rest := b[8:]
	target, n, err := decodeTarget(rest)
	if err != nil {
		return nil, err
	}
	rest = rest[n:]
	if len(rest) != 1+4 {
		return nil, fmt.Errorf("startproto: malformed StartSession tail (len %d)", len(rest))
	}
	caps := Capabilities(rest[0])
	hint := binary.BigEndian.Uint32(rest[1:5])
	return StartSession{Challenge: challenge, Target: target, Capabilities: caps, HintTargetBuffer: hint}, nil
}

func decodeTarget(b []byte) (Target, int, error) {
	if len(b) < 1 {
		return Target{}, 0, fmt.Errorf("startproto: malformed target")
	}
	switch TargetKind(b[0]) {
	case TargetSealed:
		if len(b) < 3 {
			return Target{}, 0, fmt.Errorf("startproto: malformed sealed target")
		}
		n := int(binary.BigEndian.Uint16(b[1:3]))
		if len(b) < 3+n {
			return Target{}, 0, fmt.Errorf("startproto: truncated sealed target")
		}
		sealed := make([]byte, n)
		copy(sealed, b[3:3+n])
		return Target{Kind: TargetSealed, Sealed: sealed}, 3 + n, nil
	case TargetService:
		if len(b) < 3 {
			return Target{}, 0, fmt.Errorf("startproto: malformed service target")
		}
		return Target{Kind: TargetService, Service: binary.BigEndian.Uint16(b[1:3])}, 3, nil
	case TargetPlain:
		return Target{Kind: TargetPlain}, 1, nil
	default:
		return Target{}, 0, fmt.Errorf("startproto: unknown target kind %d", b[0])
	}
}
