package sessiondata

import (
	"sync"
	"time"

	"github.com/luxfi/log"
)

// CompletedFrame is one fully reassembled frame, handed to the application.
type CompletedFrame struct {
	FrameID    uint32
	Payload    []byte
	StreamEnd bool
}

type pendingFrame struct {
	segs      map[uint16][]byte
	haveEnd   bool
	maxSeg    uint16
	streamEnd bool
	firstSeen time.Time
}

// Reassembler reconstructs frames from incoming Seg messages and discards
// any that stay incomplete past MaxFrameTimeout.
type Reassembler struct {
	cfg Config
	log log.Logger

	mu      sync.Mutex
	pending map[uint32]*pendingFrame

	stats *statsBox
}

// NewReassembler constructs a Reassembler.
func NewReassembler(cfg Config, logger log.Logger) *Reassembler {
	if logger == nil {
		logger = log.Root()
	}
	return &Reassembler{
		cfg:     cfg.normalized(),
		log:     logger,
		pending: make(map[uint32]*pendingFrame),
		stats:   newStatsBox(),
	}
}

// HandleSegment ingests one segment, returning the completed frame once
// every one of its segments has arrived.
func (r *Reassembler) HandleSegment(seg Seg) (*CompletedFrame, bool) {
	r.stats.recordIn(len(seg.Payload))

	r.mu.Lock()
	defer r.mu.Unlock()

	pf, ok := r.pending[seg.FrameID]
	if !ok {
		pf = &pendingFrame{segs: make(map[uint16][]byte), firstSeen: time.Now()}
		r.pending[seg.FrameID] = pf
	}
	pf.segs[seg.SegID] = seg.Payload
	if seg.FrameEnd {
		pf.haveEnd = true
		pf.maxSeg = seg.SegID
		pf.streamEnd = seg.StreamEnd
	}
	r.stats.setInFlight(len(r.pending))

	if !pf.haveEnd || len(pf.segs) != int(pf.maxSeg)+1 {
		return nil, false
	}

	payload := make([]byte, 0, len(pf.segs)*int(r.cfg.MTU))
	for i := uint16(0); i <= pf.maxSeg; i++ {
		chunk, present := pf.segs[i]
		if !present {
			// a later segment set FrameEnd before an earlier one arrived;
			// still incomplete despite having "maxSeg" segments tracked.
			return nil, false
		}
		payload = append(payload, chunk...)
	}

	delete(r.pending, seg.FrameID)
	r.stats.setInFlight(len(r.pending))
	r.stats.frameCompleted()
	return &CompletedFrame{FrameID: seg.FrameID, Payload: payload, StreamEnd: pf.streamEnd}, true
}

// Missing reports which segment indices of frameID are still outstanding,
// for a RetransmitRequest. ok is false if the frame isn't pending or its
// final segment (and thus its segment count) hasn't arrived yet.
func (r *Reassembler) Missing(frameID uint32) (bm []byte, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pf, found := r.pending[frameID]
	if !found || !pf.haveEnd {
		return nil, false
	}
	have := make(map[uint16]bool, len(pf.segs))
	for id := range pf.segs {
		have[id] = true
	}
	return missingBitmap(have, pf.maxSeg), true
}

// SweepExpired discards every frame that has sat incomplete longer than
// MaxFrameTimeout, returning how many were dropped.
func (r *Reassembler) SweepExpired(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	discarded := 0
	for id, pf := range r.pending {
		if now.Sub(pf.firstSeen) >= r.cfg.MaxFrameTimeout {
			delete(r.pending, id)
			discarded++
		}
	}
	if discarded > 0 {
		r.stats.setInFlight(len(r.pending))
	}
	for i := 0; i < discarded; i++ {
		r.stats.frameDiscarded()
	}
	return discarded
}

// Stats returns a snapshot of the reassembler's counters.
func (r *Reassembler) Stats() Stats { return r.stats.snapshot() }
