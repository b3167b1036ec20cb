// Package chainstate persists the auxiliary on-chain-derived tables that
// don't belong to the channel or ticket tables: accounts (key bindings),
// announcements, the network registry mirror, and the indexer_data
// singleton (domain separators, ticket price, minimum winning probability,
// network-registry-enabled flag).
package chainstate

import (
	"errors"

	"github.com/hoprnet/hopr-corego/domain"
	"github.com/hoprnet/hopr-corego/internal/bigendian"
	"github.com/hoprnet/hopr-corego/storage"
)

// ErrNotFound is returned when a row is absent.
var ErrNotFound = errors.New("chainstate: not found")

const (
	accountPrefix      byte = 'a'
	announcementPrefix byte = 'm'
	registryPrefix     byte = 'r'
	separatorPrefix    byte = 'd'
	singletonPrefix    byte = 'i'
)

const (
	keyTicketPrice     = "ticket_price"
	keyMinWinProb       = "min_win_prob"
	keyRegistryEnabled = "nr_enabled"
	keySafeBalance     = "safe_balance"
	keySafeAllowance   = "safe_allowance"
)

// Store is the auxiliary chain-state table set.
type Store struct{}

// New returns a chain-state store.
func New() *Store { return &Store{} }

// PutAccount records (or updates) the mapping from an on-chain address to
// its off-chain key.
func (s *Store) PutAccount(tx *storage.Tx, chainAddr domain.Address, offchainKey [32]byte) error {
	return tx.Put(append([]byte{accountPrefix}, chainAddr.Bytes()...), offchainKey[:])
}

// GetAccount looks up the off-chain key bound to chainAddr.
func (s *Store) GetAccount(tx *storage.Tx, chainAddr domain.Address) ([32]byte, bool, error) {
	raw, err := tx.Get(append([]byte{accountPrefix}, chainAddr.Bytes()...))
	if errors.Is(err, storage.ErrNotFound) {
		return [32]byte{}, false, nil
	}
	if err != nil {
		return [32]byte{}, false, err
	}
	var key [32]byte
	copy(key[:], raw)
	return key, true, nil
}

func announcementKey(chainAddr domain.Address, multiaddr string) []byte {
	k := append([]byte{announcementPrefix}, chainAddr.Bytes()...)
	return append(k, []byte(multiaddr)...)
}

// PutAnnouncement stores a multi-address announced for chainAddr.
func (s *Store) PutAnnouncement(tx *storage.Tx, chainAddr domain.Address, multiaddr string) error {
	return tx.Put(announcementKey(chainAddr, multiaddr), []byte{1})
}

// DeleteAnnouncements removes every multi-address announced for chainAddr.
func (s *Store) DeleteAnnouncements(tx *storage.Tx, chainAddr domain.Address) (int, error) {
	prefix := append([]byte{announcementPrefix}, chainAddr.Bytes()...)
	var keys [][]byte
	if err := tx.IterPrefix(prefix, func(key, _ []byte) (bool, error) {
		k := append([]byte(nil), key...)
		keys = append(keys, k)
		return true, nil
	}); err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := tx.Delete(k); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// ListAnnouncements returns every multi-address announced for chainAddr.
func (s *Store) ListAnnouncements(tx *storage.Tx, chainAddr domain.Address) ([]string, error) {
	prefix := append([]byte{announcementPrefix}, chainAddr.Bytes()...)
	var out []string
	err := tx.IterPrefix(prefix, func(key, _ []byte) (bool, error) {
		out = append(out, string(key[len(prefix):]))
		return true, nil
	})
	return out, err
}

// SetDomainSeparator stores the separator value under its named slot (e.g.
// "channels", "ledger").
func (s *Store) SetDomainSeparator(tx *storage.Tx, slot string, value [32]byte) error {
	return tx.Put(append([]byte{separatorPrefix}, []byte(slot)...), value[:])
}

// GetDomainSeparator reads the separator stored under slot.
func (s *Store) GetDomainSeparator(tx *storage.Tx, slot string) ([32]byte, bool, error) {
	raw, err := tx.Get(append([]byte{separatorPrefix}, []byte(slot)...))
	if errors.Is(err, storage.ErrNotFound) {
		return [32]byte{}, false, nil
	}
	if err != nil {
		return [32]byte{}, false, err
	}
	var v [32]byte
	copy(v[:], raw)
	return v, true, nil
}

// SetTicketPrice caches the oracle-reported ticket price.
func (s *Store) SetTicketPrice(tx *storage.Tx, price uint64) error {
	return tx.Put(append([]byte{singletonPrefix}, []byte(keyTicketPrice)...), bigendian.PutUint64(nil, price))
}

// GetTicketPrice returns the cached ticket price, or (0, false) if unset.
func (s *Store) GetTicketPrice(tx *storage.Tx) (uint64, bool, error) {
	raw, err := tx.Get(append([]byte{singletonPrefix}, []byte(keyTicketPrice)...))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return bigendian.Uint64(raw), true, nil
}

// SetMinWinProb caches the oracle-reported minimum winning probability.
func (s *Store) SetMinWinProb(tx *storage.Tx, p domain.WinProb) error {
	return tx.Put(append([]byte{singletonPrefix}, []byte(keyMinWinProb)...), bigendian.PutUint64(nil, uint64(p)))
}

// GetMinWinProb returns the cached minimum winning probability, or
// (0, false) if unset.
func (s *Store) GetMinWinProb(tx *storage.Tx) (domain.WinProb, bool, error) {
	raw, err := tx.Get(append([]byte{singletonPrefix}, []byte(keyMinWinProb)...))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return domain.WinProb(bigendian.Uint64(raw)), true, nil
}

// SetNetworkRegistryEnabled stores the global NR-enabled flag.
func (s *Store) SetNetworkRegistryEnabled(tx *storage.Tx, enabled bool) error {
	var b byte
	if enabled {
		b = 1
	}
	return tx.Put(append([]byte{singletonPrefix}, []byte(keyRegistryEnabled)...), []byte{b})
}

// GetNetworkRegistryEnabled returns the global NR-enabled flag (default false).
func (s *Store) GetNetworkRegistryEnabled(tx *storage.Tx) (bool, error) {
	raw, err := tx.Get(append([]byte{singletonPrefix}, []byte(keyRegistryEnabled)...))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return raw[0] == 1, nil
}

// SetSafeBalance caches the node safe's on-chain HOPR token balance, last
// refreshed once the indexer observed a relevant event while synced.
func (s *Store) SetSafeBalance(tx *storage.Tx, balance uint64) error {
	return tx.Put(append([]byte{singletonPrefix}, []byte(keySafeBalance)...), bigendian.PutUint64(nil, balance))
}

// GetSafeBalance returns the cached safe balance, or (0, false) if unset.
func (s *Store) GetSafeBalance(tx *storage.Tx) (uint64, bool, error) {
	raw, err := tx.Get(append([]byte{singletonPrefix}, []byte(keySafeBalance)...))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return bigendian.Uint64(raw), true, nil
}

// SetSafeAllowance caches the allowance the node safe has granted the
// Channels contract.
func (s *Store) SetSafeAllowance(tx *storage.Tx, allowance uint64) error {
	return tx.Put(append([]byte{singletonPrefix}, []byte(keySafeAllowance)...), bigendian.PutUint64(nil, allowance))
}

// GetSafeAllowance returns the cached safe allowance, or (0, false) if unset.
func (s *Store) GetSafeAllowance(tx *storage.Tx) (uint64, bool, error) {
	raw, err := tx.Get(append([]byte{singletonPrefix}, []byte(keySafeAllowance)...))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return bigendian.Uint64(raw), true, nil
}

// RegistryEntry mirrors the access flags of a single node address in the
// network registry.
type RegistryEntry struct {
	Registered bool
	Eligible   bool
}

func registryKey(addr domain.Address) []byte {
	return append([]byte{registryPrefix}, addr.Bytes()...)
}

// GetRegistryEntry returns the mirrored access flags for addr.
func (s *Store) GetRegistryEntry(tx *storage.Tx, addr domain.Address) (RegistryEntry, error) {
	raw, err := tx.Get(registryKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return RegistryEntry{}, nil
	}
	if err != nil {
		return RegistryEntry{}, err
	}
	return RegistryEntry{Registered: raw[0]&1 != 0, Eligible: raw[0]&2 != 0}, nil
}

// SetRegistryEntry stores the mirrored access flags for addr.
func (s *Store) SetRegistryEntry(tx *storage.Tx, addr domain.Address, e RegistryEntry) error {
	var b byte
	if e.Registered {
		b |= 1
	}
	if e.Eligible {
		b |= 2
	}
	return tx.Put(registryKey(addr), []byte{b})
}
