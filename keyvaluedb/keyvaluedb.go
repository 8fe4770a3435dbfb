package keyvaluedb

import (
	"errors"
	"reflect"
)

type (
	// Iterator iterates over database entries in key order.
	Iterator interface {
		Valid() bool
		Next()
		Prev()
		Key() []byte
		Value(value any) error
		Close() error
	}

	// DBTransaction is a write transaction: either all writes become durable
	// on Commit or none do.
	DBTransaction interface {
		Read(key []byte, value any) (bool, error)
		Write(key []byte, value any) error
		Delete(key []byte) error
		Commit() error
		Rollback() error
	}

	// KeyValueDB is the durable base-state abstraction the savepoint stack
	// flushes into.
	KeyValueDB interface {
		Read(key []byte, value any) (bool, error)
		Write(key []byte, value any) error
		Delete(key []byte) error
		First() Iterator
		Last() Iterator
		Find(key []byte) Iterator
		StartTx() (DBTransaction, error)
	}
)

var (
	ErrKeyIsNil     = errors.New("key is nil or empty")
	ErrValueIsNil   = errors.New("value is nil")
	ErrDBIsNil      = errors.New("db is nil")
)

func CheckKey(key []byte) error {
	if len(key) == 0 {
		return ErrKeyIsNil
	}
	return nil
}

func CheckKeyAndValue(key []byte, value any) error {
	if err := CheckKey(key); err != nil {
		return err
	}
	if value == nil {
		return ErrValueIsNil
	}
	// a typed nil pointer is as useless as an untyped nil
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Ptr && v.IsNil() {
		return ErrValueIsNil
	}
	return nil
}

// IsEmpty returns true if the db contains no entries.
func IsEmpty(db KeyValueDB) (bool, error) {
	if db == nil {
		return true, ErrDBIsNil
	}
	it := db.First()
	defer func() { _ = it.Close() }()
	return !it.Valid(), nil
}
