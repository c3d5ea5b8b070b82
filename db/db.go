// Package db defines the key-value storage abstraction the journal sink is
// built on, along with two implementations: an embedded on-disk store
// (pebbledb) and an ephemeral in-memory store (inmemory), used for tests.
package db

import "errors"

// ErrKeyNotFound is returned by Get when the key does not exist.
var ErrKeyNotFound = errors.New("db: key not found")

// ErrConflict is returned by WriteTx.Commit when a transaction's reads were
// invalidated by a write committed after the transaction began.
var ErrConflict = errors.New("db: write conflict")

// Options configures a Database implementation. Path is ignored by
// implementations that don't persist to disk.
type Options struct {
	Path string
}

// Database is a simple ordered key-value store.
type Database interface {
	// Get returns the value for k, or ErrKeyNotFound.
	Get(k []byte) ([]byte, error)
	// Iterate calls callback for every key with the given prefix, in
	// ascending key order, until callback returns false.
	Iterate(prefix []byte, callback func(k, v []byte) bool) error
	// WriteTx starts a new read/write transaction.
	WriteTx() WriteTx
	// Compact reclaims space from deleted/overwritten entries.
	Compact() error
	// Close releases the underlying resources.
	Close() error
}

// WriteTx is an atomic batch of reads and writes against a Database.
type WriteTx interface {
	Get(k []byte) ([]byte, error)
	Iterate(prefix []byte, callback func(k, v []byte) bool) error
	Set(k, v []byte) error
	Delete(k []byte) error
	// Apply merges another transaction's writes into this one.
	Apply(other WriteTx) error
	// Commit persists the transaction's writes, or returns ErrConflict.
	Commit() error
	// Discard abandons the transaction; safe to call after Commit.
	Discard()
}
