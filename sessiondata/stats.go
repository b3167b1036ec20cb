package sessiondata

import (
	"sync"
	"time"
)

// Stats is the counter block a session's stats query exposes.
type Stats struct {
	FramesCompleted int64
	FramesEmitted   int64
	FramesDiscarded int64
	FramesInFlight  int64

	BytesIn, BytesOut     uint64
	PacketsIn, PacketsOut uint64

	SurbsProduced uint64
	SurbsConsumed uint64

	OpenedAt time.Time
}

type statsBox struct {
	mu sync.Mutex
	s  Stats
}

func newStatsBox() *statsBox {
	return &statsBox{s: Stats{OpenedAt: time.Now()}}
}

func (b *statsBox) snapshot() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.s
}

func (b *statsBox) recordOut(n int) {
	b.mu.Lock()
	b.s.BytesOut += uint64(n)
	b.s.PacketsOut++
	b.mu.Unlock()
}

func (b *statsBox) recordIn(n int) {
	b.mu.Lock()
	b.s.BytesIn += uint64(n)
	b.s.PacketsIn++
	b.mu.Unlock()
}

func (b *statsBox) frameEmitted() {
	b.mu.Lock()
	b.s.FramesEmitted++
	b.mu.Unlock()
}

func (b *statsBox) frameCompleted() {
	b.mu.Lock()
	b.s.FramesCompleted++
	b.mu.Unlock()
}

func (b *statsBox) frameDiscarded() {
	b.mu.Lock()
	b.s.FramesDiscarded++
	b.mu.Unlock()
}

func (b *statsBox) setInFlight(n int) {
	b.mu.Lock()
	b.s.FramesInFlight = int64(n)
	b.mu.Unlock()
}
