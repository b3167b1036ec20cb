// Package ticketstore implements persistence of acknowledged tickets,
// per-channel ticket statistics, the outgoing ticket index cache, and
// ticket aggregation.
package ticketstore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hoprnet/hopr-corego/channelstore"
	"github.com/hoprnet/hopr-corego/domain"
	"github.com/hoprnet/hopr-corego/internal/bigendian"
	"github.com/hoprnet/hopr-corego/storage"
)

// OutgoingIndex is the shared atomic counter backing a single channel's
// outgoing ticket index. The same *OutgoingIndex is handed out to every
// caller of Store.GetOutgoingTicketIndex for a given channel, so concurrent
// senders observe each other's increments.
type OutgoingIndex struct {
	value     atomic.Uint64
	persisted atomic.Uint64 // last value known to be durable
}

// Load returns the current in-memory value.
func (o *OutgoingIndex) Load() uint64 { return o.value.Load() }

// Store is the ticket table, the per-channel statistics table, and the
// outgoing-ticket-index cache. The db handle is used only by
// PersistOutgoingTicketIndices, which runs as an independent background
// flush rather than inside a caller-supplied transaction.
type Store struct {
	db       *storage.DB
	channel  *channelstore.Store
	self     domain.Address
	verifier AggregateVerifier
	signer   AggregateSigner

	mu      sync.Mutex
	outIdxs map[domain.ChannelID]*OutgoingIndex
}

// New constructs a ticket store. db is used only for the background
// outgoing-index flush; all other operations take an explicit transaction.
// self is our own on-chain address, used to classify channels as incoming
// or outgoing.
func New(db *storage.DB, channels *channelstore.Store, self domain.Address, verifier AggregateVerifier, signer AggregateSigner) *Store {
	return &Store{
		db:       db,
		channel:  channels,
		self:     self,
		verifier: verifier,
		signer:   signer,
		outIdxs:  make(map[domain.ChannelID]*OutgoingIndex),
	}
}

func (s *Store) handle(ch domain.ChannelID) *OutgoingIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.outIdxs[ch]
	if !ok {
		h = &OutgoingIndex{}
		s.outIdxs[ch] = h
	}
	return h
}

// GetOutgoingTicketIndex returns the shared atomic counter for ch, lazily
// loading its persisted value on first access.
func (s *Store) GetOutgoingTicketIndex(tx *storage.Tx, ch domain.ChannelID) (*OutgoingIndex, error) {
	s.mu.Lock()
	h, ok := s.outIdxs[ch]
	s.mu.Unlock()
	if ok {
		return h, nil
	}
	persisted, err := s.readPersistedOutIdx(tx, ch)
	if err != nil {
		return nil, err
	}
	h = &OutgoingIndex{}
	h.value.Store(persisted)
	h.persisted.Store(persisted)

	s.mu.Lock()
	if existing, ok := s.outIdxs[ch]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.outIdxs[ch] = h
	s.mu.Unlock()
	return h, nil
}

func (s *Store) readPersistedOutIdx(tx *storage.Tx, ch domain.ChannelID) (uint64, error) {
	raw, err := tx.Get(outIdxKey(ch))
	if err == storage.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return bigendian.Uint64(raw), nil
}

// CompareAndSetOutgoingTicketIndex raises the cached index to v if v is
// greater than the current value (the cache is monotonic and never
// decreases), returning the prior value.
func (s *Store) CompareAndSetOutgoingTicketIndex(tx *storage.Tx, ch domain.ChannelID, v uint64) (uint64, error) {
	h, err := s.GetOutgoingTicketIndex(tx, ch)
	if err != nil {
		return 0, err
	}
	for {
		old := h.value.Load()
		if v <= old {
			return old, nil
		}
		if h.value.CompareAndSwap(old, v) {
			return old, nil
		}
	}
}

// IncrementOutgoingTicketIndex bumps the cached index by one, returning the
// prior value.
func (s *Store) IncrementOutgoingTicketIndex(tx *storage.Tx, ch domain.ChannelID) (uint64, error) {
	h, err := s.GetOutgoingTicketIndex(tx, ch)
	if err != nil {
		return 0, err
	}
	return h.value.Add(1) - 1, nil
}

// ResetOutgoingTicketIndex force-sets the cached index to v, which may be
// lower than the current value (recovery / re-open path).
func (s *Store) ResetOutgoingTicketIndex(tx *storage.Tx, ch domain.ChannelID, v uint64) (uint64, error) {
	h, err := s.GetOutgoingTicketIndex(tx, ch)
	if err != nil {
		return 0, err
	}
	return h.value.Swap(v), nil
}

// PersistOutgoingTicketIndices flushes every cached index whose value
// strictly exceeds its last-known-durable value, returning the number of
// channels updated. It opens its own transaction since it runs on a
// periodic background timer independent of any single caller's operation.
func (s *Store) PersistOutgoingTicketIndices(ctx context.Context) (int, error) {
	s.mu.Lock()
	handles := make(map[domain.ChannelID]*OutgoingIndex, len(s.outIdxs))
	for k, v := range s.outIdxs {
		handles[k] = v
	}
	s.mu.Unlock()

	updated := 0
	err := s.db.Perform(ctx, func(_ context.Context, tx *storage.Tx) error {
		for ch, h := range handles {
			cur := h.value.Load()
			last := h.persisted.Load()
			if cur <= last {
				continue
			}
			if err := tx.Put(outIdxKey(ch), bigendian.PutUint64(nil, cur)); err != nil {
				return err
			}
			h.persisted.Store(cur)
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}
