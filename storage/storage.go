// Package storage implements the transactional key-value surface the core
// components (ticketstore, channelstore, chainindexer) are built on. It
// substitutes a real embedded transactional KV store for the relational
// backend the reference implementation assumes, with integer fields stored
// as big-endian byte strings so byte ordering matches numeric ordering.
//
// All mutating operations in the core packages take a *Tx obtained from
// DB.Perform; nothing outside this package opens a pebble.Batch directly.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/luxfi/log"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// DB is the transactional key-value store backing all core components.
type DB struct {
	pdb *pebble.DB
	log log.Logger
}

// Open opens (or creates) a pebble database at dir.
func Open(dir string, logger log.Logger) (*DB, error) {
	if logger == nil {
		logger = log.Root()
	}
	pdb, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", dir, err)
	}
	return &DB{pdb: pdb, log: logger}, nil
}

// OpenInMemory opens a volatile database, used by tests.
func OpenInMemory() (*DB, error) {
	pdb, err := pebble.Open("", &pebble.Options{FS: vfsMem()})
	if err != nil {
		return nil, fmt.Errorf("storage: open in-memory: %w", err)
	}
	return &DB{pdb: pdb, log: log.Root()}, nil
}

// Close closes the underlying store.
func (d *DB) Close() error {
	return d.pdb.Close()
}

// Tx is a single logical transaction: an indexed pebble batch whose Get sees
// its own uncommitted writes. A transaction spans however many of the
// per-entity operations in ticketstore/channelstore a single call to Perform
// needs (§2 "opens a storage transaction spanning A and B").
type Tx struct {
	batch *pebble.Batch
	db    *DB
}

// Perform runs fn inside a single atomic transaction: fn's writes are
// committed only if fn returns a nil error, matching the "per-log storage
// transactions are all-or-nothing" propagation policy of §7.
func (d *DB) Perform(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	batch := d.pdb.NewIndexedBatch()
	tx := &Tx{batch: batch, db: d}
	if err := fn(ctx, tx); err != nil {
		_ = batch.Close()
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}

// View runs fn against a read-only snapshot, for queries that don't need a
// write lock ("readers may snapshot outside a write lock", §5).
func (d *DB) View(fn func(snap *pebble.Snapshot) error) error {
	snap := d.pdb.NewSnapshot()
	defer snap.Close()
	return fn(snap)
}

// Get reads a single key inside tx.
func (tx *Tx) Get(key []byte) ([]byte, error) {
	v, closer, err := tx.batch.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Put writes a single key inside tx.
func (tx *Tx) Put(key, value []byte) error {
	return tx.batch.Set(key, value, nil)
}

// Delete removes a single key inside tx.
func (tx *Tx) Delete(key []byte) error {
	return tx.batch.Delete(key, nil)
}

// IterPrefix calls fn for every key/value pair whose key starts with prefix,
// in ascending key order, stopping early if fn returns false.
func (tx *Tx) IterPrefix(prefix []byte, fn func(key, value []byte) (more bool, err error)) error {
	iter, err := tx.batch.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		more, err := fn(iter.Key(), iter.Value())
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return iter.Error()
}

// prefixUpperBound returns the smallest key that is strictly greater than
// every key starting with prefix, or nil if prefix is all 0xff bytes.
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}
