// Package substrate defines the anonymous-substrate surface the core
// depends on: a sink that accepts routed application data and a source
// that produces it, keyed by pseudonym. The real mixnet packet/SURB
// machinery lives below this package; here we only specify the capability
// interfaces consumed by startproto/session/sessiondata, depending on a
// small interface rather than a concrete transport.
package substrate

import (
	"context"
	"encoding/hex"
)

// Pseudonym scopes a peer's session-tag namespace on the substrate.
type Pseudonym [16]byte

func (p Pseudonym) String() string { return hex.EncodeToString(p[:]) }

// PeerID identifies a node on the substrate. The real implementation would
// carry a routing-table-resolvable peer identity; the core only needs an
// opaque comparable identifier.
type PeerID string

// RoutingOptions abstracts the forward/return path-selection parameters
// (hop count, node selection strategy); the core treats these as opaque
// configuration it forwards unchanged. Path selection itself lives below
// this package.
type RoutingOptions struct {
	Hops uint8
}

// SurbMatcher identifies which earlier outbound packet a reply routed via
// Return corresponds to, so the substrate can pick a SURB associated with
// that packet's pseudonym.
type SurbMatcher struct {
	Pseudonym Pseudonym
	Tag       uint64
}

// ForwardRouting routes a packet to destination, optionally binding it to an
// explicit pseudonym (one is allocated by the substrate if nil).
type ForwardRouting struct {
	Destination    PeerID
	Pseudonym      *Pseudonym
	ForwardOptions RoutingOptions
	ReturnOptions  RoutingOptions
}

// DestinationRouting is either a Forward route to a destination or a Return
// route consuming a previously received SURB.
type DestinationRouting struct {
	forward *ForwardRouting
	ret     *SurbMatcher
}

// Forward builds a forward-routed destination.
func Forward(r ForwardRouting) DestinationRouting { return DestinationRouting{forward: &r} }

// Return builds a SURB-routed destination.
func Return(m SurbMatcher) DestinationRouting { return DestinationRouting{ret: &m} }

// Split reports which routing kind this is and returns the populated field.
func (d DestinationRouting) Split() (fwd *ForwardRouting, ret *SurbMatcher) { return d.forward, d.ret }

// ApplicationDataOut is a single outbound packet's payload.
type ApplicationDataOut struct {
	Tag     uint64
	Payload []byte
	// MaxSurbsInPacket hints how many SURBs to attach, organically 0..2,
	// maxed out on keep-alives.
	MaxSurbsInPacket uint8
}

// ApplicationDataIn is a single inbound packet's payload, additionally
// carrying the number of SURBs it was delivered with.
type ApplicationDataIn struct {
	Tag       uint64
	Payload   []byte
	SurbCount uint32
}

// Sink accepts routed application data for egress.
type Sink interface {
	Send(ctx context.Context, routing DestinationRouting, data ApplicationDataOut) error
}

// Source produces inbound application data, tagged with the pseudonym of
// whichever peer it arrived from.
type Source interface {
	Recv(ctx context.Context) (Pseudonym, ApplicationDataIn, error)
}
