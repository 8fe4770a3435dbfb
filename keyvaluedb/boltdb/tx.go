package boltdb

import (
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/quartzledger/quartz/keyvaluedb"
)

// BoltTx wraps a bolt write transaction behind the DBTransaction interface.
type BoltTx struct {
	tx      *bolt.Tx
	bucket  []byte
	encoder EncodeFn
	decoder DecodeFn
	closed  bool
}

func NewBoltTx(db *bolt.DB, bucket []byte, encoder EncodeFn, decoder DecodeFn) (*BoltTx, error) {
	if db == nil {
		return nil, errors.New("bolt db is nil")
	}
	tx, err := db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("starting bolt write tx: %w", err)
	}
	return &BoltTx{tx: tx, bucket: bucket, encoder: encoder, decoder: decoder}, nil
}

func (t *BoltTx) Read(key []byte, value any) (bool, error) {
	if err := keyvaluedb.CheckKey(key); err != nil {
		return false, err
	}
	if t.closed {
		return false, errors.New("tx is closed")
	}
	data := t.tx.Bucket(t.bucket).Get(key)
	if data == nil {
		return false, nil
	}
	if value == nil {
		return true, nil
	}
	return true, t.decoder(data, value)
}

func (t *BoltTx) Write(key []byte, value any) error {
	if err := keyvaluedb.CheckKeyAndValue(key, value); err != nil {
		return err
	}
	if t.closed {
		return errors.New("tx is closed")
	}
	b, err := t.encoder(value)
	if err != nil {
		return err
	}
	return t.tx.Bucket(t.bucket).Put(key, b)
}

func (t *BoltTx) Delete(key []byte) error {
	if err := keyvaluedb.CheckKey(key); err != nil {
		return err
	}
	if t.closed {
		return errors.New("tx is closed")
	}
	return t.tx.Bucket(t.bucket).Delete(key)
}

func (t *BoltTx) Commit() error {
	if t.closed {
		return errors.New("tx is closed")
	}
	t.closed = true
	return t.tx.Commit()
}

func (t *BoltTx) Rollback() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.tx.Rollback()
}
