package substrate

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
)

// inboundPacket is what a memoryPeer's Source.Recv hands back.
type inboundPacket struct {
	from Pseudonym
	data ApplicationDataIn
}

// Memory is an in-process substrate standing in for the real mixnet
// transport in tests: it implements the same Sink/Source pair, loopback-
// wired instead of routed through an actual packet format.
type Memory struct {
	mu    sync.Mutex
	peers map[PeerID]*memoryPeer
	// origin remembers which peer last sent under a given pseudonym, so a
	// later Return(SurbMatcher{Pseudonym: p}) can be routed back to them.
	origin map[Pseudonym]PeerID
}

// NewMemory returns an empty in-memory substrate.
func NewMemory() *Memory {
	return &Memory{
		peers:  make(map[PeerID]*memoryPeer),
		origin: make(map[Pseudonym]PeerID),
	}
}

type memoryPeer struct {
	id PeerID
	in chan inboundPacket
}

// NewPeer registers id on the network and returns its Sink/Source pair.
func (m *Memory) NewPeer(id PeerID) (Sink, Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &memoryPeer{id: id, in: make(chan inboundPacket, 64)}
	m.peers[id] = p
	return &memorySink{net: m, self: id}, &memorySource{peer: p}
}

// RandomPseudonym returns a cryptographically random pseudonym, for when a
// caller opens a session without supplying one of its own.
func RandomPseudonym() (Pseudonym, error) {
	var p Pseudonym
	if _, err := rand.Read(p[:]); err != nil {
		return p, err
	}
	return p, nil
}

type memorySink struct {
	net  *Memory
	self PeerID
}

func (s *memorySink) Send(ctx context.Context, routing DestinationRouting, data ApplicationDataOut) error {
	fwd, ret := routing.Split()
	switch {
	case fwd != nil:
		pseudonym := s.net.pseudonymFor(fwd.Pseudonym, s.self)
		s.net.mu.Lock()
		s.net.origin[pseudonym] = s.self
		peer, ok := s.net.peers[fwd.Destination]
		s.net.mu.Unlock()
		if !ok {
			return fmt.Errorf("substrate: unknown destination %q", fwd.Destination)
		}
		return deliver(ctx, peer, pseudonym, data)

	case ret != nil:
		s.net.mu.Lock()
		dest, ok := s.net.origin[ret.Pseudonym]
		peer := s.net.peers[dest]
		s.net.mu.Unlock()
		if !ok {
			return fmt.Errorf("substrate: no prior packet to return a SURB for pseudonym %s", ret.Pseudonym)
		}
		return deliver(ctx, peer, ret.Pseudonym, data)

	default:
		return fmt.Errorf("substrate: empty routing")
	}
}

func (m *Memory) pseudonymFor(explicit *Pseudonym, self PeerID) Pseudonym {
	if explicit != nil {
		return *explicit
	}
	p, err := RandomPseudonym()
	if err != nil {
		// crypto/rand failure is unrecoverable; fall back to a
		// self-derived pseudonym rather than panicking mid-send.
		var fallback Pseudonym
		copy(fallback[:], self)
		return fallback
	}
	return p
}

func deliver(ctx context.Context, peer *memoryPeer, from Pseudonym, data ApplicationDataOut) error {
	pkt := inboundPacket{from: from, data: ApplicationDataIn{
		Tag:       data.Tag,
		Payload:   data.Payload,
		SurbCount: uint32(data.MaxSurbsInPacket),
	}}
	select {
	case peer.in <- pkt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type memorySource struct {
	peer *memoryPeer
}

func (s *memorySource) Recv(ctx context.Context) (Pseudonym, ApplicationDataIn, error) {
	select {
	case pkt := <-s.peer.in:
		return pkt.from, pkt.data, nil
	case <-ctx.Done():
		return Pseudonym{}, ApplicationDataIn{}, ctx.Err()
	}
}
