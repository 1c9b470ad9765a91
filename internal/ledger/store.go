// Package ledger implements the typed key-value projection described in
// spec §4.3: a namespaced KVStore sits in front of the (externally assumed)
// graph-database substrate, and the rest of this package layers typed
// records — subscriptions, deals, uploads, api keys, public links, pin
// refcounts, sessions and pulses — on top of it.
package ledger

import "context"

// KVStore is the minimal contract the ledger needs from its backing store.
// Two implementations are provided: MemStore (tests, ledger.backend
// "memory") and
// BoltStore (the default, durable, single-file backing).
type KVStore interface {
	Set(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	// Iterator walks all keys with the given prefix in ascending order.
	Iterator(prefix []byte) (Iterator, error)
	Close() error
}

// Iterator walks a key range in ascending key order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

// Ledger wraps a KVStore with the typed operations the rest of the core
// calls. Mutating methods take no writer timestamp: this implementation is
// single-node, and each write simply replaces the stored value.
type Ledger struct {
	store KVStore
}

// New wires a Ledger over the given backing store.
func New(store KVStore) *Ledger {
	return &Ledger{store: store}
}

// Close releases the backing store.
func (l *Ledger) Close() error { return l.store.Close() }

// Store exposes the raw backing store for components (e.g. the scheduler's
// reconciliation task) that need to range over a namespace directly.
func (l *Ledger) Store() KVStore { return l.store }

// withDeadline documents that ledger calls do not currently block on I/O beyond
// the local store; the parameter is kept so a future replicated backend can
// honor cancellation without changing every call site.
func withDeadline(ctx context.Context) context.Context { return ctx }
