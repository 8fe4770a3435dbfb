package boltdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quartzledger/quartz/keyvaluedb"
)

func newBoltDB(t *testing.T) *BoltDB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	return db
}

func TestBoltDB_WriteAndRead(t *testing.T) {
	db := newBoltDB(t)
	var balance uint64
	found, err := db.Read([]byte("balance"), &balance)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, db.Write([]byte("balance"), uint64(42)))
	found, err = db.Read([]byte("balance"), &balance)
	require.NoError(t, err)
	require.True(t, found)
	require.EqualValues(t, 42, balance)
}

func TestBoltDB_InvalidInputs(t *testing.T) {
	db := newBoltDB(t)
	require.ErrorIs(t, db.Write(nil, uint64(1)), keyvaluedb.ErrKeyIsNil)
	require.ErrorIs(t, db.Write([]byte("key"), nil), keyvaluedb.ErrValueIsNil)
	found, err := db.Read([]byte{}, nil)
	require.ErrorIs(t, err, keyvaluedb.ErrKeyIsNil)
	require.False(t, found)
}

func TestBoltDB_Delete(t *testing.T) {
	db := newBoltDB(t)
	require.NoError(t, db.Write([]byte("key"), uint64(1)))
	require.NoError(t, db.Delete([]byte("key")))
	found, err := db.Read([]byte("key"), nil)
	require.NoError(t, err)
	require.False(t, found)
}

func TestBoltDB_Persistence(t *testing.T) {
	file := filepath.Join(t.TempDir(), "state.db")
	db, err := New(file)
	require.NoError(t, err)
	require.NoError(t, db.Write([]byte("key"), uint64(7)))
	require.NoError(t, db.Close())

	db, err = New(file)
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close()) }()
	var v uint64
	found, err := db.Read([]byte("key"), &v)
	require.NoError(t, err)
	require.True(t, found)
	require.EqualValues(t, 7, v)
}

func TestBoltDB_Iteration(t *testing.T) {
	db := newBoltDB(t)
	require.NoError(t, db.Write([]byte("b"), uint64(2)))
	require.NoError(t, db.Write([]byte("a"), uint64(1)))
	require.NoError(t, db.Write([]byte("c"), uint64(3)))

	it := db.First()
	var keys []string
	var values []uint64
	for ; it.Valid(); it.Next() {
		var v uint64
		require.NoError(t, it.Value(&v))
		keys = append(keys, string(it.Key()))
		values = append(values, v)
	}
	require.NoError(t, it.Close())
	require.Equal(t, []string{"a", "b", "c"}, keys)
	require.Equal(t, []uint64{1, 2, 3}, values)

	find := db.Find([]byte("b"))
	require.True(t, find.Valid())
	require.Equal(t, []byte("b"), find.Key())
	find.Prev()
	require.Equal(t, []byte("a"), find.Key())
	require.NoError(t, find.Close())

	last := db.Last()
	require.True(t, last.Valid())
	require.Equal(t, []byte("c"), last.Key())
	require.NoError(t, last.Close())
}

func TestBoltDB_Tx(t *testing.T) {
	t.Run("commit makes writes visible", func(t *testing.T) {
		db := newBoltDB(t)
		tx, err := db.StartTx()
		require.NoError(t, err)
		require.NoError(t, tx.Write([]byte("key"), uint64(1)))
		require.NoError(t, tx.Commit())
		var v uint64
		found, err := db.Read([]byte("key"), &v)
		require.NoError(t, err)
		require.True(t, found)
		require.EqualValues(t, 1, v)
	})

	t.Run("rollback discards writes", func(t *testing.T) {
		db := newBoltDB(t)
		tx, err := db.StartTx()
		require.NoError(t, err)
		require.NoError(t, tx.Write([]byte("key"), uint64(1)))
		require.NoError(t, tx.Rollback())
		empty, err := keyvaluedb.IsEmpty(db)
		require.NoError(t, err)
		require.True(t, empty)
	})
}
