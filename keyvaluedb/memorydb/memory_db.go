package memorydb

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/quartzledger/quartz/keyvaluedb"
	"github.com/quartzledger/quartz/types"
)

type (
	EncodeFn func(v any) ([]byte, error)
	DecodeFn func(data []byte, v any) error

	// MemoryDB is an in-memory KeyValueDB used in tests and as the durable
	// base state of short-lived tx systems.
	MemoryDB struct {
		db      map[string][]byte
		encoder EncodeFn
		decoder DecodeFn
		// simulated storage failure, returned by the next write
		writeErr error
	}
)

func New() *MemoryDB {
	return &MemoryDB{
		db:      make(map[string][]byte),
		encoder: types.Cbor.Marshal,
		decoder: types.Cbor.Unmarshal,
	}
}

func (db *MemoryDB) Read(key []byte, value any) (bool, error) {
	if err := keyvaluedb.CheckKey(key); err != nil {
		return false, err
	}
	data, found := db.db[string(key)]
	if !found {
		return false, nil
	}
	if value == nil {
		return true, nil
	}
	return true, db.decoder(data, value)
}

func (db *MemoryDB) Write(key []byte, value any) error {
	if err := keyvaluedb.CheckKeyAndValue(key, value); err != nil {
		return err
	}
	if db.writeErr != nil {
		return db.writeErr
	}
	b, err := db.encoder(value)
	if err != nil {
		return fmt.Errorf("memory db write failed, %w", err)
	}
	db.db[string(key)] = b
	return nil
}

func (db *MemoryDB) Delete(key []byte) error {
	if err := keyvaluedb.CheckKey(key); err != nil {
		return err
	}
	delete(db.db, string(key))
	return nil
}

func (db *MemoryDB) First() keyvaluedb.Iterator {
	it := db.newIterator()
	it.pos = 0
	return it
}

func (db *MemoryDB) Last() keyvaluedb.Iterator {
	it := db.newIterator()
	it.pos = len(it.keys) - 1
	return it
}

func (db *MemoryDB) Find(key []byte) keyvaluedb.Iterator {
	it := db.newIterator()
	it.pos = sort.Search(len(it.keys), func(i int) bool {
		return bytes.Compare([]byte(it.keys[i]), key) >= 0
	})
	return it
}

func (db *MemoryDB) StartTx() (keyvaluedb.DBTransaction, error) {
	return &memTx{db: db, pending: make(map[string]*[]byte)}, nil
}

// SetWriteError makes all subsequent writes fail with the given error. Pass
// nil to restore normal operation. Test hook.
func (db *MemoryDB) SetWriteError(err error) {
	db.writeErr = err
}

func (db *MemoryDB) newIterator() *iterator {
	keys := make([]string, 0, len(db.db))
	for k := range db.db {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &iterator{db: db, keys: keys, pos: -1}
}

type iterator struct {
	db   *MemoryDB
	keys []string
	pos  int
}

func (it *iterator) Valid() bool {
	if it.pos < 0 || it.pos >= len(it.keys) {
		return false
	}
	_, ok := it.db.db[it.keys[it.pos]]
	return ok
}

func (it *iterator) Next() { it.pos++ }

func (it *iterator) Prev() { it.pos-- }

func (it *iterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return []byte(it.keys[it.pos])
}

func (it *iterator) Value(value any) error {
	if !it.Valid() {
		return fmt.Errorf("iterator is invalid")
	}
	return it.db.decoder(it.db.db[it.keys[it.pos]], value)
}

func (it *iterator) Close() error { return nil }

// memTx buffers writes until Commit. A nil pending value marks a delete.
type memTx struct {
	db      *MemoryDB
	pending map[string]*[]byte
	closed  bool
}

func (tx *memTx) Read(key []byte, value any) (bool, error) {
	if err := keyvaluedb.CheckKey(key); err != nil {
		return false, err
	}
	if data, ok := tx.pending[string(key)]; ok {
		if data == nil {
			return false, nil
		}
		return true, tx.db.decoder(*data, value)
	}
	return tx.db.Read(key, value)
}

func (tx *memTx) Write(key []byte, value any) error {
	if err := keyvaluedb.CheckKeyAndValue(key, value); err != nil {
		return err
	}
	if tx.closed {
		return fmt.Errorf("tx is closed")
	}
	if tx.db.writeErr != nil {
		return tx.db.writeErr
	}
	b, err := tx.db.encoder(value)
	if err != nil {
		return err
	}
	tx.pending[string(key)] = &b
	return nil
}

func (tx *memTx) Delete(key []byte) error {
	if err := keyvaluedb.CheckKey(key); err != nil {
		return err
	}
	if tx.closed {
		return fmt.Errorf("tx is closed")
	}
	tx.pending[string(key)] = nil
	return nil
}

func (tx *memTx) Commit() error {
	if tx.closed {
		return fmt.Errorf("tx is closed")
	}
	tx.closed = true
	for k, v := range tx.pending {
		if v == nil {
			delete(tx.db.db, k)
		} else {
			tx.db.db[k] = *v
		}
	}
	return nil
}

func (tx *memTx) Rollback() error {
	tx.closed = true
	tx.pending = nil
	return nil
}
