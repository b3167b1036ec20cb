package sessiondata

import (
	"sync"

	"github.com/luxfi/log"
)

// Sender turns application payloads into wire segments (egress framing and
// segmentation) and retains a bounded replay buffer so it can answer
// RetransmitRequest.
type Sender struct {
	cfg Config
	log log.Logger

	mu          sync.Mutex
	nextFrameID uint32
	replay      map[uint32][]Seg
	order       []uint32

	stats *statsBox
}

// NewSender constructs a Sender.
func NewSender(cfg Config, logger log.Logger) *Sender {
	if logger == nil {
		logger = log.Root()
	}
	return &Sender{
		cfg:    cfg.normalized(),
		log:    logger,
		replay: make(map[uint32][]Seg),
		stats:  newStatsBox(),
	}
}

// FrameOut segments payload into one frame's worth of Seg, marking the last
// segment's StreamEnd if streamEnd is set (the distinguished terminating
// segment that closes a stream).
func (s *Sender) FrameOut(payload []byte, streamEnd bool) []Seg {
	s.mu.Lock()
	frameID := s.nextFrameID
	s.nextFrameID++
	s.mu.Unlock()

	chunkSize := int(s.cfg.MTU) - segHeaderSize
	var segs []Seg
	if len(payload) == 0 {
		segs = []Seg{{FrameID: frameID, SegID: 0, FrameEnd: true, StreamEnd: streamEnd}}
	} else {
		total := (len(payload) + chunkSize - 1) / chunkSize
		segs = make([]Seg, 0, total)
		for i := 0; i < total; i++ {
			start := i * chunkSize
			end := start + chunkSize
			if end > len(payload) {
				end = len(payload)
			}
			seg := Seg{FrameID: frameID, SegID: uint16(i), Payload: payload[start:end]}
			if i == total-1 {
				seg.FrameEnd = true
				seg.StreamEnd = streamEnd
			}
			segs = append(segs, seg)
		}
	}

	s.mu.Lock()
	s.replay[frameID] = segs
	s.order = append(s.order, frameID)
	for len(s.order) > s.cfg.ReplayFrames {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.replay, oldest)
	}
	s.mu.Unlock()

	s.stats.frameEmitted()
	for _, seg := range segs {
		s.stats.recordOut(len(seg.Payload))
	}
	return segs
}

// Retransmit returns the segments of frameID named as missing by bm, or
// ok=false if frameID fell out of the replay buffer.
func (s *Sender) Retransmit(frameID uint32, bm []byte) (segs []Seg, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, found := s.replay[frameID]
	if !found {
		s.log.Debug("dropping retransmit request for a frame no longer buffered", "frame_id", frameID)
		return nil, false
	}
	for _, seg := range all {
		if bitmapHas(bm, seg.SegID) {
			segs = append(segs, seg)
		}
	}
	return segs, true
}

// Stats returns a snapshot of the sender's counters.
func (s *Sender) Stats() Stats { return s.stats.snapshot() }
