package ticketstore

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hoprnet/hopr-corego/channelstore"
	"github.com/hoprnet/hopr-corego/domain"
	"github.com/hoprnet/hopr-corego/storage"
)

// AggregationPrerequisites gates whether a selected batch of tickets is
// worth aggregating at all. Both fields are optional; if both are nil, any
// non-empty selection is accepted.
type AggregationPrerequisites struct {
	MinTicketCount      *uint64
	MinUnaggregatedRatio *float64
}

// DefaultAggregationBatchCap is the hard cap on the number of tickets
// selected per aggregation attempt.
const DefaultAggregationBatchCap = 500

// PrepareAggregation selects a batch of tickets in ch eligible for
// aggregation and marks them BeingAggregated. It requires ch to be open and
// incoming to us.
func (s *Store) PrepareAggregation(
	tx *storage.Tx,
	ch domain.ChannelID,
	prereq AggregationPrerequisites,
	minWinProb domain.WinProb,
	batchCap int,
) ([]domain.AckTicket, error) {
	if batchCap <= 0 {
		batchCap = DefaultAggregationBatchCap
	}
	channel, err := s.channel.Get(tx, ch)
	if err != nil {
		if errors.Is(err, channelstore.ErrNotFound) || errors.Is(err, channelstore.ErrCorrupted) {
			return nil, fmt.Errorf("ticketstore: %w", err)
		}
		return nil, err
	}
	if channel.Status == domain.StatusClosed {
		return nil, ErrChannelClosed
	}
	if channel.Destination != s.self {
		return nil, ErrNotIncoming
	}

	all, err := s.GetTickets(tx, NewSelector().Channels(ch))
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Index < all[j].Index })

	var haveBeingRedeemed bool
	var highestRedeeming uint64
	for _, t := range all {
		if t.Status == domain.BeingAggregated {
			return nil, ErrAlreadyAggregating
		}
		if t.Status == domain.BeingRedeemed && (!haveBeingRedeemed || t.Index > highestRedeeming) {
			haveBeingRedeemed = true
			highestRedeeming = t.Index
		}
	}

	lowest := channel.TicketIndex
	if haveBeingRedeemed && highestRedeeming+1 > lowest {
		lowest = highestRedeeming + 1
	}

	var candidates []domain.AckTicket
	for _, t := range all {
		if len(candidates) >= batchCap {
			break
		}
		if t.Index < lowest {
			continue
		}
		if t.Status == domain.BeingAggregated {
			continue
		}
		candidates = append(candidates, t)
	}

	filtered := candidates[:0]
	for _, t := range candidates {
		if t.WinProb < minWinProb {
			continue
		}
		filtered = append(filtered, t)
	}

	var selected []domain.AckTicket
	var sum uint64
	for _, t := range filtered {
		if sum+t.Amount > channel.Balance {
			break
		}
		selected = append(selected, t)
		sum += t.Amount
	}

	if prereq.MinTicketCount == nil && prereq.MinUnaggregatedRatio == nil {
		// accept as-is
	} else {
		ok := false
		if prereq.MinTicketCount != nil && uint64(len(selected)) >= *prereq.MinTicketCount {
			ok = true
		}
		if !ok && prereq.MinUnaggregatedRatio != nil && len(selected) >= 2 {
			threshold := uint64(*prereq.MinUnaggregatedRatio * float64(channel.Balance))
			if sum >= threshold {
				ok = true
			}
		}
		if !ok {
			return nil, nil
		}
	}

	deduped := dedupeByIndexRange(selected)

	updated := 0
	err = s.StreamUpdateTicketStates(tx, NewSelector().Indices(indicesOf(deduped)...).Channels(ch), domain.BeingAggregated, func(domain.AckTicket) error {
		updated++
		return nil
	})
	if err != nil {
		return nil, err
	}
	if updated != len(deduped) {
		return nil, ErrAggregationMarkMismatch
	}
	return deduped, nil
}

func indicesOf(ts []domain.AckTicket) []uint64 {
	out := make([]uint64, len(ts))
	for i, t := range ts {
		out[i] = t.Index
	}
	return out
}

// dedupeByIndexRange assumes only the earliest ticket's range may be
// aggregated; any subsequent ticket whose index falls inside
// [first.Index, first.IndexEnd) is discarded.
func dedupeByIndexRange(in []domain.AckTicket) []domain.AckTicket {
	if len(in) == 0 {
		return in
	}
	out := []domain.AckTicket{in[0]}
	rangeEnd := in[0].IndexEnd()
	for _, t := range in[1:] {
		if t.Index >= in[0].Index && t.Index < rangeEnd {
			continue // overlaps the first selected ticket's range; neglect later
		}
		out = append(out, t)
	}
	return out
}

// RollbackAggregation transitions every BeingAggregated ticket in ch back to
// Untouched.
func (s *Store) RollbackAggregation(tx *storage.Tx, ch domain.ChannelID) (int, error) {
	sel := NewSelector().Channels(ch).Status(domain.BeingAggregated)
	return s.UpdateTicketStates(tx, sel, domain.Untouched)
}

// IngestAggregate verifies and stores a received aggregate ticket, replacing
// every BeingAggregated ticket in its channel. domainSeparator is the
// channel's current domain separator, used for signature verification.
func (s *Store) IngestAggregate(tx *storage.Tx, aggregate domain.AckTicket, domainSeparator [32]byte) error {
	channel, err := s.channel.Get(tx, aggregate.ChannelID)
	if err != nil {
		return err
	}
	if channel.Status == domain.StatusClosed {
		return ErrChannelClosed
	}
	if channel.Destination != s.self {
		return ErrNotIncoming
	}
	if aggregate.WinProb != domain.WinProbOne {
		return ErrAggregateNotWinProbOne
	}
	if !s.verifier.VerifyAggregate(aggregate, domainSeparator, channel.Source) {
		return fmt.Errorf("ticketstore: aggregate signature verification failed")
	}

	pending, err := s.GetTickets(tx, NewSelector().Channels(aggregate.ChannelID).Status(domain.BeingAggregated))
	if err != nil {
		return err
	}
	var sum uint64
	for _, t := range pending {
		sum += t.Amount
	}
	if aggregate.Amount < sum {
		return ErrAggregateBelowSum
	}
	for _, t := range pending {
		if err := s.DeleteTicket(tx, t.ChannelID, t.Index); err != nil {
			return err
		}
	}
	aggregate.Status = domain.Untouched
	return s.PutTicket(tx, aggregate)
}

// LocalAggregate combines inputs (tickets we hold over an outgoing channel)
// into a single signed aggregate ticket. It requires at least one input;
// with exactly one it is returned verbatim.
func (s *Store) LocalAggregate(tx *storage.Tx, inputs []domain.AckTicket, minWinProb domain.WinProb) (domain.AckTicket, error) {
	if len(inputs) == 0 {
		return domain.AckTicket{}, ErrNoTickets
	}
	if len(inputs) == 1 {
		return inputs[0], nil
	}

	sorted := append([]domain.AckTicket(nil), inputs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	var deduped []domain.AckTicket
	seen := make(map[uint64]bool, len(sorted))
	for _, t := range sorted {
		if seen[t.Index] {
			continue
		}
		seen[t.Index] = true
		deduped = append(deduped, t)
	}

	first := deduped[0]
	var sum uint64
	prevEnd := first.Index
	for i, t := range deduped {
		if t.ChannelID != first.ChannelID || t.Epoch != first.Epoch {
			return domain.AckTicket{}, ErrInconsistentAggregationInput
		}
		if t.WinProb < minWinProb {
			return domain.AckTicket{}, ErrInconsistentAggregationInput
		}
		if i > 0 && t.Index < prevEnd {
			return domain.AckTicket{}, ErrInconsistentAggregationInput
		}
		prevEnd = t.IndexEnd()
		sum += t.Amount
	}

	channel, err := s.channel.Get(tx, first.ChannelID)
	if err != nil {
		return domain.AckTicket{}, err
	}
	if channel.Source != s.self {
		return domain.AckTicket{}, ErrNotOutgoing
	}
	if sum > channel.Balance {
		return domain.AckTicket{}, ErrInconsistentAggregationInput
	}

	last := deduped[len(deduped)-1]
	end := last.IndexEnd()
	offset := end - first.Index

	agg := domain.AckTicket{
		ChannelID:   first.ChannelID,
		Epoch:       first.Epoch,
		Index:       first.Index,
		IndexOffset: uint32(offset),
		Amount:      sum,
		WinProb:     domain.WinProbOne,
		Challenge:   first.Challenge,
		Status:      domain.Untouched,
	}
	sig, err := s.signer.SignAggregate(agg)
	if err != nil {
		return domain.AckTicket{}, err
	}
	agg.Signature = sig

	if _, err := s.CompareAndSetOutgoingTicketIndex(tx, first.ChannelID, end); err != nil {
		return domain.AckTicket{}, err
	}
	return agg, nil
}

// FixupOnStartup resets every BeingRedeemed ticket whose index equals its
// channel's current ticket_index back to Untouched, recovering from a crash
// that left the node mid-redemption.
func (s *Store) FixupOnStartup(tx *storage.Tx) (int, error) {
	channels, err := s.channel.ListIncoming(tx, s.self)
	if err != nil {
		return 0, err
	}
	fixed := 0
	for _, ch := range channels {
		sel := NewSelector().Channels(ch.ID).Status(domain.BeingRedeemed).Index(ch.TicketIndex)
		n, err := s.UpdateTicketStates(tx, sel, domain.Untouched)
		if err != nil {
			return fixed, err
		}
		fixed += n
	}
	return fixed, nil
}
