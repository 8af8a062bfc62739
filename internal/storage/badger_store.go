package storage

import (
	badger "github.com/dgraph-io/badger/v4"
)

// BadgerStore implements Store on top of an embedded badger database,
// giving the manager a durable backend without depending on an external
// storage process. Badger's own transactions provide the per-key atomicity
// KVContract.SaveState relies on.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (creating if absent) a badger database rooted at
// dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

// Get implements Store.
func (b *BadgerStore) Get(key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return ErrKeyNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append(out, val...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Put implements Store.
func (b *BadgerStore) Put(key string, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Delete implements Store.
func (b *BadgerStore) Delete(key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Keys implements Store.
func (b *BadgerStore) Keys() []string {
	var keys []string
	_ = b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys
}

// Close releases the underlying badger database.
func (b *BadgerStore) Close() error {
	return b.db.Close()
}
