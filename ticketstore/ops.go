package ticketstore

import (
	"errors"

	"github.com/hoprnet/hopr-corego/channelstore"
	"github.com/hoprnet/hopr-corego/domain"
	"github.com/hoprnet/hopr-corego/storage"
)

// TerminalStatus is the outcome recorded by MarkTicketsAs. Unlike
// domain.TicketStatus (the in-flight states of a still-stored ticket), a
// terminal status means the ticket row is removed and its value folded into
// the channel's statistics.
type TerminalStatus uint8

const (
	Redeemed TerminalStatus = iota
	Rejected
	Neglected
)

func (t TerminalStatus) String() string {
	switch t {
	case Redeemed:
		return "Redeemed"
	case Rejected:
		return "Rejected"
	case Neglected:
		return "Neglected"
	default:
		return "Unknown"
	}
}

// GetTickets returns every stored ticket matching sel.
func (s *Store) GetTickets(tx *storage.Tx, sel *Selector) ([]domain.AckTicket, error) {
	if sel == nil {
		sel = NewSelector()
	}
	var out []domain.AckTicket
	visit := func(ch domain.ChannelID) error {
		return tx.IterPrefix(ticketChannelPrefix(ch), func(key, value []byte) (bool, error) {
			index := indexFromTicketKey(key)
			t, err := decodeTicket(ch, index, value)
			if err != nil {
				return false, err
			}
			if sel.matches(t) {
				out = append(out, t)
			}
			return true, nil
		})
	}

	plain, pairs, any := sel.channelSet()
	if any {
		return out, tx.IterPrefix([]byte{ticketPrefix}, func(key, value []byte) (bool, error) {
			ch, index, err := channelAndIndexFromTicketKey(key)
			if err != nil {
				return false, err
			}
			t, err := decodeTicket(ch, index, value)
			if err != nil {
				return false, err
			}
			if sel.matches(t) {
				out = append(out, t)
			}
			return true, nil
		})
	}
	for _, ch := range plain {
		if err := visit(ch); err != nil {
			return nil, err
		}
	}
	epochFor := make(map[domain.ChannelID]uint32, len(pairs))
	for _, p := range pairs {
		epochFor[p.Channel] = p.Epoch
		if err := visit(p.Channel); err != nil {
			return nil, err
		}
	}
	if len(epochFor) == 0 {
		return out, nil
	}
	// Epoch filtering (ChannelEpoch pairs carry an epoch, but the key space
	// is indexed by channel only) is applied post-scan, and only to tickets
	// that came from an epoch-pinned channel.
	filtered := out[:0]
	for _, t := range out {
		if wantEpoch, ok := epochFor[t.ChannelID]; ok && t.Epoch != wantEpoch {
			continue
		}
		filtered = append(filtered, t)
	}
	return filtered, nil
}

func indexFromTicketKey(key []byte) uint64 {
	// key = prefix(1) + channelID(32) + index(8)
	return bigEndianUint64(key[33:41])
}

func channelAndIndexFromTicketKey(key []byte) (domain.ChannelID, uint64, error) {
	ch, err := domain.ChannelIDFromBytes(key[1:33])
	if err != nil {
		return domain.ChannelID{}, 0, err
	}
	return ch, bigEndianUint64(key[33:41]), nil
}

func bigEndianUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// MarkTicketsAs deletes every ticket matching sel and folds its value into
// the owning channel's statistics, atomically per channel. Rejected amounts
// are weighted by winning probability; Redeemed and Neglected amounts are
// counted in full.
func (s *Store) MarkTicketsAs(tx *storage.Tx, sel *Selector, outcome TerminalStatus) (int, error) {
	tickets, err := s.GetTickets(tx, sel)
	if err != nil {
		return 0, err
	}
	byChannel := make(map[domain.ChannelID][]domain.AckTicket)
	for _, t := range tickets {
		byChannel[t.ChannelID] = append(byChannel[t.ChannelID], t)
	}
	for ch, ts := range byChannel {
		var delta domain.TicketStatistics
		for _, t := range ts {
			amount := t.Amount
			if outcome == Rejected {
				amount = uint64(float64(t.Amount) * t.WinProb.Float())
			}
			switch outcome {
			case Redeemed:
				delta.RedeemedValue += amount
				delta.WinningTicketsCount++
			case Rejected:
				delta.RejectedValue += amount
			case Neglected:
				delta.NeglectedValue += amount
			}
			if err := tx.Delete(ticketKey(ch, t.Index)); err != nil {
				return 0, err
			}
		}
		if err := s.addStats(tx, ch, delta); err != nil {
			return 0, err
		}
	}
	return len(tickets), nil
}

func (s *Store) addStats(tx *storage.Tx, ch domain.ChannelID, delta domain.TicketStatistics) error {
	cur, err := s.readStats(tx, statsKey(ch))
	if err != nil {
		return err
	}
	if err := tx.Put(statsKey(ch), encodeStats(cur.Add(delta))); err != nil {
		return err
	}
	global, err := s.readStats(tx, []byte(globalStatsKey))
	if err != nil {
		return err
	}
	return tx.Put([]byte(globalStatsKey), encodeStats(global.Add(delta)))
}

func (s *Store) readStats(tx *storage.Tx, key []byte) (domain.TicketStatistics, error) {
	raw, err := tx.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.TicketStatistics{}, nil
	}
	if err != nil {
		return domain.TicketStatistics{}, err
	}
	return decodeStats(raw)
}

// GetTicketStatistics returns the statistics for channel, or the global
// aggregate if channel is nil. It errors if a non-nil channel does not
// exist.
func (s *Store) GetTicketStatistics(tx *storage.Tx, channel *domain.ChannelID) (domain.TicketStatistics, error) {
	if channel == nil {
		return s.readStats(tx, []byte(globalStatsKey))
	}
	if _, err := s.channel.Get(tx, *channel); err != nil {
		if errors.Is(err, channelstore.ErrNotFound) || errors.Is(err, channelstore.ErrCorrupted) {
			return domain.TicketStatistics{}, ErrChannelNotFound
		}
		return domain.TicketStatistics{}, err
	}
	return s.readStats(tx, statsKey(*channel))
}

// UpdateTicketStates transitions every ticket matching sel to newStatus,
// returning the count updated.
func (s *Store) UpdateTicketStates(tx *storage.Tx, sel *Selector, newStatus domain.TicketStatus) (int, error) {
	count := 0
	err := s.StreamUpdateTicketStates(tx, sel, newStatus, func(domain.AckTicket) error {
		count++
		return nil
	})
	return count, err
}

// StreamUpdateTicketStates is the streaming variant of UpdateTicketStates,
// invoking fn with each ticket after it has been updated (with its Status
// field already reflecting newStatus).
func (s *Store) StreamUpdateTicketStates(tx *storage.Tx, sel *Selector, newStatus domain.TicketStatus, fn func(domain.AckTicket) error) error {
	tickets, err := s.GetTickets(tx, sel)
	if err != nil {
		return err
	}
	for _, t := range tickets {
		t.Status = newStatus
		if err := tx.Put(ticketKey(t.ChannelID, t.Index), encodeTicket(t)); err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
	}
	return nil
}

// PutTicket inserts or overwrites a single ticket row. Used by the chain
// event handler and the aggregation machinery; not part of the selector API.
func (s *Store) PutTicket(tx *storage.Tx, t domain.AckTicket) error {
	return tx.Put(ticketKey(t.ChannelID, t.Index), encodeTicket(t))
}

// DeleteTicket removes a single ticket row.
func (s *Store) DeleteTicket(tx *storage.Tx, ch domain.ChannelID, index uint64) error {
	return tx.Delete(ticketKey(ch, index))
}

// NeglectBelowIndex marks every ticket in ch with index strictly below
// newIndex as Neglected. Used by TicketRedeemed handling; ChannelClosed
// handling neglects all of a channel's tickets through MarkTicketsAs instead.
func (s *Store) NeglectBelowIndex(tx *storage.Tx, ch domain.ChannelID, newIndex uint64) (int, error) {
	sel := NewSelector().Channels(ch).IndexRange(0, newIndex)
	return s.MarkTicketsAs(tx, sel, Neglected)
}
