package boltdb

import (
	"bytes"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Iterator holds a read transaction open for its lifetime; Close must always
// be called.
type Iterator struct {
	tx      *bolt.Tx
	cursor  *bolt.Cursor
	decoder DecodeFn
	key     []byte
	value   []byte
	err     error
}

func NewIterator(db *bolt.DB, bucket []byte, decoder DecodeFn) *Iterator {
	it := &Iterator{decoder: decoder}
	tx, err := db.Begin(false)
	if err != nil {
		it.err = fmt.Errorf("starting bolt read tx: %w", err)
		return it
	}
	it.tx = tx
	it.cursor = tx.Bucket(bucket).Cursor()
	return it
}

func (it *Iterator) first() {
	if it.cursor == nil {
		return
	}
	it.key, it.value = it.cursor.First()
}

func (it *Iterator) last() {
	if it.cursor == nil {
		return
	}
	it.key, it.value = it.cursor.Last()
}

func (it *Iterator) seek(key []byte) {
	if it.cursor == nil {
		return
	}
	it.key, it.value = it.cursor.Seek(key)
}

func (it *Iterator) Valid() bool {
	return it.key != nil && it.err == nil
}

func (it *Iterator) Next() {
	if it.cursor == nil {
		return
	}
	it.key, it.value = it.cursor.Next()
}

func (it *Iterator) Prev() {
	if it.cursor == nil {
		return
	}
	it.key, it.value = it.cursor.Prev()
}

func (it *Iterator) Key() []byte {
	return bytes.Clone(it.key)
}

func (it *Iterator) Value(value any) error {
	if !it.Valid() {
		return fmt.Errorf("iterator is invalid")
	}
	return it.decoder(it.value, value)
}

func (it *Iterator) Close() error {
	it.key, it.value, it.cursor = nil, nil, nil
	if it.tx == nil {
		return it.err
	}
	if err := it.tx.Rollback(); err != nil {
		return fmt.Errorf("closing bolt read tx: %w", err)
	}
	return it.err
}
