// Package channelstore implements the persisted channel table and its
// two-phase edit API, plus the corrupted-channel quarantine table.
package channelstore

import (
	"errors"
	"fmt"

	"github.com/hoprnet/hopr-corego/domain"
	"github.com/hoprnet/hopr-corego/storage"
)

// ErrNotFound is returned when a channel row does not exist (and is not
// quarantined either).
var ErrNotFound = errors.New("channelstore: channel not found")

// ErrCorrupted is returned by Get when the channel has an entry in the
// quarantine table: it stays invisible to an ordinary Get, whether or not a
// channel row also exists.
var ErrCorrupted = errors.New("channelstore: channel is corrupted")

const (
	channelPrefix   byte = 'c'
	corruptedPrefix byte = 'x'
)

// Store is the channel table. It has no state of its own beyond the storage
// handle; every operation takes the caller's transaction.
type Store struct{}

// New returns a channel store. Construction takes no arguments: all state
// lives in the storage.Tx passed to every method, matching the implicit
// write-lock/read transaction shape every operation below takes.
func New() *Store { return &Store{} }

func channelKey(id domain.ChannelID) []byte {
	return append([]byte{channelPrefix}, id.Bytes()...)
}

func corruptedKey(id domain.ChannelID) []byte {
	return append([]byte{corruptedPrefix}, id.Bytes()...)
}

// Get returns the channel row for id. It never returns a corrupted channel;
// ErrCorrupted is returned instead if one exists under id.
func (s *Store) Get(tx *storage.Tx, id domain.ChannelID) (domain.Channel, error) {
	corrupted, err := s.GetCorrupted(tx, id)
	if err != nil {
		return domain.Channel{}, err
	}
	if corrupted {
		return domain.Channel{}, ErrCorrupted
	}
	raw, err := tx.Get(channelKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Channel{}, ErrNotFound
	}
	if err != nil {
		return domain.Channel{}, err
	}
	return decodeChannel(id, raw)
}

// GetCorrupted returns the quarantined placeholder for id, if any.
func (s *Store) GetCorrupted(tx *storage.Tx, id domain.ChannelID) (bool, error) {
	_, err := tx.Get(corruptedKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertCorrupted creates a quarantined placeholder row for id, so that
// subsequent events for an unknown channel don't repeatedly attempt (and
// fail) to create it.
func (s *Store) InsertCorrupted(tx *storage.Tx, id domain.ChannelID) error {
	return tx.Put(corruptedKey(id), []byte{1})
}

// ClearCorrupted un-quarantines id. Only chain events may call this.
func (s *Store) ClearCorrupted(tx *storage.Tx, id domain.ChannelID) error {
	return tx.Delete(corruptedKey(id))
}

// Insert creates a brand-new channel row. Used only for the "no prior row"
// branch of ChannelOpened; re-opening a Closed channel goes through
// BeginUpdate/Finish instead.
func (s *Store) Insert(tx *storage.Tx, ch domain.Channel) error {
	if ch.Balance != 0 && ch.Status == domain.StatusClosed {
		return fmt.Errorf("channelstore: invariant violated: closed channel with nonzero balance")
	}
	return tx.Put(channelKey(ch.ID), encodeChannel(ch))
}

// Edits is the pending mutation produced by BeginUpdate and applied by
// Finish. Each setter returns the same *Edits to allow chaining: editor
// methods build up a pending change that Finish applies all at once.
type Edits struct {
	id       domain.ChannelID
	original domain.Channel
	pending  domain.Channel
	deleted  bool
	corrupt  bool
}

// BeginUpdate reads the current row for id and returns an editor, or
// (nil, nil) if the row is absent.
func (s *Store) BeginUpdate(tx *storage.Tx, id domain.ChannelID) (*Edits, error) {
	ch, err := s.Get(tx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Edits{id: id, original: ch, pending: ch}, nil
}

// SetStatus stages a status change.
func (e *Edits) SetStatus(status domain.ChannelStatus) *Edits {
	e.pending.Status = status
	return e
}

// SetBalance stages a balance change.
func (e *Edits) SetBalance(balance uint64) *Edits {
	e.pending.Balance = balance
	return e
}

// SetTicketIndex stages a ticket-index change.
func (e *Edits) SetTicketIndex(index uint64) *Edits {
	e.pending.TicketIndex = index
	return e
}

// SetEpoch stages an epoch change. Epoch must be monotonically
// non-decreasing across the lifetime of a channel id; callers are
// responsible for never staging a lower epoch.
func (e *Edits) SetEpoch(epoch uint32) *Edits {
	e.pending.Epoch = epoch
	return e
}

// SetClosureTime stages a closure-time change.
func (e *Edits) SetClosureTime(t uint64) *Edits {
	e.pending.ClosureTime = t
	return e
}

// Delete stages the row for deletion (only valid for a foreign channel whose
// closure we observe).
func (e *Edits) Delete() *Edits {
	e.deleted = true
	return e
}

// SetCorrupted stages the row for quarantine instead of a normal update.
func (e *Edits) SetCorrupted() *Edits {
	e.corrupt = true
	return e
}

// Original returns the channel row as it was when BeginUpdate read it.
func (e *Edits) Original() domain.Channel { return e.original }

// Finish commits the staged edit. It returns the updated entry, or (nil Channel,
// ok=false) if the edit deleted the row or moved it to quarantine.
func (s *Store) Finish(tx *storage.Tx, e *Edits) (domain.Channel, bool, error) {
	if e.corrupt {
		if err := tx.Delete(channelKey(e.id)); err != nil {
			return domain.Channel{}, false, err
		}
		if err := s.InsertCorrupted(tx, e.id); err != nil {
			return domain.Channel{}, false, err
		}
		return domain.Channel{}, false, nil
	}
	if e.deleted {
		if err := tx.Delete(channelKey(e.id)); err != nil {
			return domain.Channel{}, false, err
		}
		return domain.Channel{}, false, nil
	}
	if e.pending.Status == domain.StatusClosed {
		e.pending.Balance = 0
		e.pending.TicketIndex = 0
	}
	if err := tx.Put(channelKey(e.id), encodeChannel(e.pending)); err != nil {
		return domain.Channel{}, false, err
	}
	return e.pending, true, nil
}

// ListIncoming returns every non-corrupted channel whose Destination is us,
// regardless of status; used by ticketstore's fix-up-on-startup over every
// incoming channel.
func (s *Store) ListIncoming(tx *storage.Tx, self domain.Address) ([]domain.Channel, error) {
	var out []domain.Channel
	err := tx.IterPrefix([]byte{channelPrefix}, func(key, value []byte) (bool, error) {
		id, err := domain.ChannelIDFromBytes(key[1:])
		if err != nil {
			return false, err
		}
		ch, err := decodeChannel(id, value)
		if err != nil {
			return false, err
		}
		corrupted, err := s.GetCorrupted(tx, id)
		if err != nil {
			return false, err
		}
		if ch.Destination == self && !corrupted {
			out = append(out, ch)
		}
		return true, nil
	})
	return out, err
}
