package ledger

import (
	"bytes"
	"time"

	"go.etcd.io/bbolt"

	"shogunrelay/pkg/utils"
)

// bucketName is the single bbolt bucket every key lives in. Namespacing
// (sub/, deal/, upload/, ...) is done in the key itself, as spec §4.3
// describes, so range scans by prefix work the same way they do against
// MemStore and against the graph-database substrate this stands in for.
var bucketName = []byte("relay")

// BoltStore is the durable, single-node KVStore backing, used whenever
// config.Ledger.Backend == "bolt".
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (creating if necessary) a bbolt database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, utils.Wrap(err, "open ledger database")
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, utils.Wrap(err, "create ledger bucket")
	}
	return &BoltStore{db: db}, nil
}

func (b *BoltStore) Set(key, value []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(key, value)
	})
}

func (b *BoltStore) Get(key []byte) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get(key)
		if v != nil {
			out = make([]byte, len(v))
			copy(out, v)
		}
		return nil
	})
	return out, err
}

func (b *BoltStore) Delete(key []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete(key)
	})
}

// Iterator snapshots every matching key/value pair inside a single read
// transaction up front; ledger namespaces are small enough (subscriptions,
// deals, api keys) that holding the whole slice in memory during the scan
// is preferable to keeping a bbolt transaction open across caller code.
func (b *BoltStore) Iterator(prefix []byte) (Iterator, error) {
	var keys [][]byte
	var values [][]byte

	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			kc := make([]byte, len(k))
			copy(kc, k)
			vc := make([]byte, len(v))
			copy(vc, v)
			keys = append(keys, kc)
			values = append(values, vc)
		}
		return nil
	})
	if err != nil {
		return nil, utils.Wrap(err, "iterate ledger bucket")
	}

	return &boltIterator{keys: keys, values: values, index: -1}, nil
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}

type boltIterator struct {
	keys   [][]byte
	values [][]byte
	index  int
}

func (it *boltIterator) Next() bool {
	it.index++
	return it.index < len(it.keys)
}

func (it *boltIterator) Key() []byte {
	if it.index < 0 || it.index >= len(it.keys) {
		return nil
	}
	return it.keys[it.index]
}

func (it *boltIterator) Value() []byte {
	if it.index < 0 || it.index >= len(it.values) {
		return nil
	}
	return it.values[it.index]
}

func (it *boltIterator) Error() error { return nil }
func (it *boltIterator) Close() error { return nil }
