package assetcache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger"
	"go.uber.org/zap"
)

// Key layout:
//
//	c\x00<container>           container index, empty value
//	e\x00<container>\x00<key>  JSON-encoded Entry
var (
	containerPrefix = []byte("c\x00")
	entryPrefix     = []byte("e\x00")
)

func containerKey(name string) []byte {
	return append(bytes.Clone(containerPrefix), name...)
}

func entryKeyPrefix(name string) []byte {
	k := append(bytes.Clone(entryPrefix), name...)
	return append(k, 0)
}

func entryKey(name, key string) []byte {
	return append(entryKeyPrefix(name), key...)
}

// BadgerStorage persists containers in a badger database.
type BadgerStorage struct {
	db *badger.DB
}

// badgerLogger routes badger's log output through zap.
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.Warnf(format, args...)
}

// OpenBadger opens (creating if needed) a badger database in dir.
func OpenBadger(dir string, logger *zap.Logger) (*BadgerStorage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{logger.Named("badger").Sugar()})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger dir %q: %w", dir, err)
	}
	return &BadgerStorage{db: db}, nil
}

// update runs fn in a read-write transaction, retrying on conflict.
func (b *BadgerStorage) update(fn func(txn *badger.Txn) error) error {
	for {
		err := b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
}

func (b *BadgerStorage) Open(name string) error {
	return b.update(func(txn *badger.Txn) error {
		return txn.Set(containerKey(name), []byte{})
	})
}

func (b *BadgerStorage) Has(name string) (bool, error) {
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(containerKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

func (b *BadgerStorage) Names() ([]string, error) {
	var names []string
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		defer it.Close()
		for it.Seek(containerPrefix); it.ValidForPrefix(containerPrefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			names = append(names, string(k[len(containerPrefix):]))
		}
		return nil
	})
	return names, err
}

// keysWithPrefix returns a copy of every key under prefix.
func keysWithPrefix(txn *badger.Txn, prefix []byte) [][]byte {
	it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
	defer it.Close()
	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

func (b *BadgerStorage) Delete(name string) (bool, error) {
	var existed bool
	err := b.update(func(txn *badger.Txn) error {
		existed = false
		if _, err := txn.Get(containerKey(name)); err == nil {
			existed = true
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		for _, k := range keysWithPrefix(txn, entryKeyPrefix(name)) {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return txn.Delete(containerKey(name))
	})
	return existed, err
}

func (b *BadgerStorage) Match(name, key string) (*Entry, bool, error) {
	var entry *Entry
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(name, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("decoding entry %q: %w", key, err)
		}
		entry = &e
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return entry, entry != nil, nil
}

func (b *BadgerStorage) Put(name, key string, e *Entry) error {
	return b.PutAll(name, map[string]*Entry{key: e})
}

func (b *BadgerStorage) PutAll(name string, entries map[string]*Entry) error {
	encoded := make(map[string][]byte, len(entries))
	for k, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encoding entry %q: %w", k, err)
		}
		encoded[k] = data
	}
	return b.update(func(txn *badger.Txn) error {
		if err := txn.Set(containerKey(name), []byte{}); err != nil {
			return err
		}
		for k, data := range encoded {
			if err := txn.Set(entryKey(name, k), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerStorage) Keys(name string) ([]string, error) {
	prefix := entryKeyPrefix(name)
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		for _, k := range keysWithPrefix(txn, prefix) {
			keys = append(keys, string(k[len(prefix):]))
		}
		return nil
	})
	return keys, err
}

func (b *BadgerStorage) Close() error {
	return b.db.Close()
}
