package ticketstore

import "github.com/hoprnet/hopr-corego/domain"

// ChannelEpoch pins a selector to a specific (channel, epoch) pair.
type ChannelEpoch struct {
	Channel domain.ChannelID
	Epoch   uint32
}

// bound is an inclusive-exclusive [Lo, Hi) range over a uint64 quantity.
type bound struct {
	lo, hi uint64
	set    bool
}

// Selector describes a conjunction ("AND") of predicates over stored
// tickets, as a fluent query builder instead of ad hoc filter functions.
//
// A zero-value Selector matches every ticket in every channel.
type Selector struct {
	plainChannels  []domain.ChannelID
	channels       []ChannelEpoch
	anyChannel     bool
	indexSet       map[uint64]struct{}
	indexRange     bound
	status         *domain.TicketStatus
	amountRange    bound
	winProbRange   struct {
		lo, hi domain.WinProb
		set    bool
	}
	onlyAggregated bool
}

// NewSelector returns an empty selector matching all channels.
func NewSelector() *Selector {
	return &Selector{anyChannel: true}
}

// Channels restricts the selector to the given channels, regardless of
// epoch.
func (s *Selector) Channels(ids ...domain.ChannelID) *Selector {
	s.plainChannels = append(s.plainChannels, ids...)
	s.anyChannel = len(s.plainChannels) == 0 && len(s.channels) == 0
	return s
}

// ChannelEpochs restricts the selector to the given (channel, epoch) pairs.
func (s *Selector) ChannelEpochs(pairs ...ChannelEpoch) *Selector {
	s.channels = append(s.channels, pairs...)
	s.anyChannel = len(s.plainChannels) == 0 && len(s.channels) == 0
	return s
}

// Index restricts the selector to a single index.
func (s *Selector) Index(index uint64) *Selector {
	return s.Indices(index)
}

// Indices restricts the selector to a multi-set of indices.
func (s *Selector) Indices(indices ...uint64) *Selector {
	if s.indexSet == nil {
		s.indexSet = make(map[uint64]struct{}, len(indices))
	}
	for _, i := range indices {
		s.indexSet[i] = struct{}{}
	}
	return s
}

// IndexRange restricts the selector to a half-open index range [lo, hi).
func (s *Selector) IndexRange(lo, hi uint64) *Selector {
	s.indexRange = bound{lo: lo, hi: hi, set: true}
	return s
}

// Status restricts the selector to a single ticket status.
func (s *Selector) Status(status domain.TicketStatus) *Selector {
	s.status = &status
	return s
}

// AmountRange restricts the selector to tickets whose amount falls in
// [lo, hi).
func (s *Selector) AmountRange(lo, hi uint64) *Selector {
	s.amountRange = bound{lo: lo, hi: hi, set: true}
	return s
}

// WinProbRange restricts the selector to tickets whose winning probability
// falls in [lo, hi).
func (s *Selector) WinProbRange(lo, hi domain.WinProb) *Selector {
	s.winProbRange.lo, s.winProbRange.hi, s.winProbRange.set = lo, hi, true
	return s
}

// OnlyAggregated restricts the selector to aggregated tickets (index_offset > 1).
func (s *Selector) OnlyAggregated() *Selector {
	s.onlyAggregated = true
	return s
}

// matches reports whether ticket t satisfies every predicate staged on s,
// except the channel-set predicate (handled by the caller choosing which
// channel prefixes to scan).
func (s *Selector) matches(t domain.AckTicket) bool {
	if s.indexSet != nil {
		if _, ok := s.indexSet[t.Index]; !ok {
			return false
		}
	}
	if s.indexRange.set && (t.Index < s.indexRange.lo || t.Index >= s.indexRange.hi) {
		return false
	}
	if s.status != nil && t.Status != *s.status {
		return false
	}
	if s.amountRange.set && (t.Amount < s.amountRange.lo || t.Amount >= s.amountRange.hi) {
		return false
	}
	if s.winProbRange.set && (t.WinProb < s.winProbRange.lo || t.WinProb >= s.winProbRange.hi) {
		return false
	}
	if s.onlyAggregated && !t.IsAggregated() {
		return false
	}
	return true
}

// channelSet returns the plain channel ids and epoch-pinned pairs this
// selector is restricted to, and whether the selector instead ranges over
// all channels.
func (s *Selector) channelSet() ([]domain.ChannelID, []ChannelEpoch, bool) {
	return s.plainChannels, s.channels, s.anyChannel || (len(s.plainChannels) == 0 && len(s.channels) == 0)
}
