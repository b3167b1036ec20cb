// Package surb implements the SURB flow estimator and balancer: the pair
// of atomic counters tracking how many single-use reply blocks a peer
// believes the other side holds, and the two controller variants that
// drive a configured setpoint.
package surb

import "sync/atomic"

// Estimator is two relaxed atomic counters incremented as a side effect of
// sending and receiving packets; precise ordering between them is not
// required, only eventual visibility.
type Estimator struct {
	produced atomic.Uint64
	consumed atomic.Uint64
}

// RecordProduced registers k additional SURBs now outstanding at the peer
// (an outbound packet carrying k SURBs, or an inbound packet on the local
// side of a reply).
func (e *Estimator) RecordProduced(k uint32) {
	if k > 0 {
		e.produced.Add(uint64(k))
	}
}

// RecordConsumed registers one SURB consumed by an inbound packet (the
// remote side of a reply).
func (e *Estimator) RecordConsumed() { e.consumed.Add(1) }

// Level returns the current estimated SURB inventory: produced minus
// consumed, floored at zero.
func (e *Estimator) Level() int64 {
	p := int64(e.produced.Load())
	c := int64(e.consumed.Load())
	if p < c {
		return 0
	}
	return p - c
}

// Delta returns the signed produced-minus-consumed change since the counts
// captured in prevProduced/prevConsumed, and the current raw counts to use
// as the next snapshot.
func (e *Estimator) Delta(prevProduced, prevConsumed uint64) (delta int64, produced, consumed uint64) {
	produced = e.produced.Load()
	consumed = e.consumed.Load()
	delta = int64(produced-prevProduced) - int64(consumed-prevConsumed)
	return delta, produced, consumed
}
