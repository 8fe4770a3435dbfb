package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	testobserve "github.com/quartzledger/quartz/internal/testutils/observability"
	testtransaction "github.com/quartzledger/quartz/internal/testutils/transaction"
	"github.com/quartzledger/quartz/keyvaluedb/memorydb"
	"github.com/quartzledger/quartz/throttle"
	"github.com/quartzledger/quartz/types"
)

func Test_NewWorkflow(t *testing.T) {
	registry := Registry{}

	t.Run("nil database", func(t *testing.T) {
		_, err := NewWorkflow(nil, registry, testNetwork(), testobserve.NOP())
		require.EqualError(t, err, "state database is nil")
	})

	t.Run("nil network info", func(t *testing.T) {
		_, err := NewWorkflow(memorydb.New(), registry, nil, testobserve.NOP())
		require.EqualError(t, err, "network info is nil")
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.RecordCacheSize = 0
		_, err := NewWorkflow(memorydb.New(), registry, testNetwork(), testobserve.NOP(), WithConfig(cfg))
		require.ErrorContains(t, err, "record cache size must be positive")
	})
}

func Test_HandleRound_unparsableTransaction(t *testing.T) {
	db := memorydb.New()
	w := newTestWorkflow(t, db, Registry{})

	recs, err := w.HandleRound(context.Background(), testRound([]byte("not a transaction")))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, types.StatusInvalidTransactionBody, recs[0].Status)
	require.True(t, recs[0].TransactionID.IsZero())
	require.NotEmpty(t, recs[0].TransactionHash)
}

func Test_HandleRound_unregisteredKind(t *testing.T) {
	db := memorydb.New()
	seedAccount(t, db, payerAccount, payerBalance, payerKey)
	w := newTestWorkflow(t, db, Registry{})

	recs, err := w.HandleRound(context.Background(), testRound(signedTransferBytes(t)))
	require.NoError(t, err)
	require.Equal(t, types.StatusNotSupported, recs[0].Status)
}

func Test_HandleRound_duplicateTransaction(t *testing.T) {
	db := memorydb.New()
	seedAccount(t, db, payerAccount, payerBalance, payerKey)
	registry := Registry{}
	require.NoError(t, registry.Add(map[types.TransactionKind]Handler{
		types.KindCryptoTransfer: &stubHandler{},
	}))
	w := newTestWorkflow(t, db, registry)

	raw := signedTransferBytes(t)
	recs, err := w.HandleRound(context.Background(), testRound(raw, raw))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, types.StatusOK, recs[0].Status)
	require.Equal(t, types.StatusDuplicateTransaction, recs[1].Status)
	// the duplicate pays node and network fees but no service component
	require.EqualValues(t, 0, recs[1].Fees.ServiceFee)
	require.NotZero(t, recs[1].Fees.Total())
	require.Equal(t, payerBalance-recs[0].Fees.Total()-recs[1].Fees.Total(), balanceOf(t, db, payerAccount))
}

func Test_HandleRound_consensusTimeOffsets(t *testing.T) {
	db := memorydb.New()
	seedAccount(t, db, payerAccount, payerBalance, payerKey)
	registry := Registry{}
	require.NoError(t, registry.Add(map[types.TransactionKind]Handler{
		types.KindCryptoTransfer: &stubHandler{},
	}))
	w := newTestWorkflow(t, db, registry)

	recs, err := w.HandleRound(context.Background(), testRound(
		signedTransferBytes(t),
		signedTransferBytes(t, testtransaction.WithMemo("two")),
		signedTransferBytes(t, testtransaction.WithMemo("three")),
	))
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i, rec := range recs {
		require.Equal(t, roundTime.AddNanos(int64(i)*1000), rec.ConsensusTime, "record %d", i)
	}
	require.True(t, recs[0].ConsensusTime.Before(recs[1].ConsensusTime))
	require.True(t, recs[1].ConsensusTime.Before(recs[2].ConsensusTime))
}

func Test_HandleRound_recordSink(t *testing.T) {
	db := memorydb.New()
	seedAccount(t, db, payerAccount, payerBalance, payerKey)
	registry := Registry{}
	require.NoError(t, registry.Add(map[types.TransactionKind]Handler{
		types.KindCryptoTransfer: &stubHandler{},
	}))
	sink := &collectingSink{}
	w := newTestWorkflow(t, db, registry, WithRecordSink(sink))

	recs, err := w.HandleRound(context.Background(), testRound(signedTransferBytes(t)))
	require.NoError(t, err)
	require.Equal(t, recs, sink.records)
}

type collectingSink struct {
	records []*types.TransactionRecord
}

func (s *collectingSink) Externalize(records []*types.TransactionRecord) error {
	s.records = append(s.records, records...)
	return nil
}

func Test_HandleRound_deterministicReplay(t *testing.T) {
	registry := Registry{}
	require.NoError(t, registry.Add(map[types.TransactionKind]Handler{
		types.KindCryptoTransfer: &stubHandler{handle: func(ctx *Context) error {
			_, err := ctx.DispatchChildTransaction(&types.TransactionBody{Kind: types.KindTokenTransfer}, ctx.Payer(), NoOpVerifier())
			return err
		}},
		types.KindTokenTransfer: &stubHandler{handle: func(ctx *Context) error {
			ctx.Store().Put([]byte("unit/7"), []byte{7})
			return nil
		}},
	}))
	round := testRound(signedTransferBytes(t), signedTransferBytes(t, testtransaction.WithMemo("two")))

	run := func() []byte {
		db := memorydb.New()
		seedAccount(t, db, payerAccount, payerBalance, payerKey)
		w := newTestWorkflow(t, db, registry)
		recs, err := w.HandleRound(context.Background(), round)
		require.NoError(t, err)
		data, err := types.Cbor.Marshal(recs)
		require.NoError(t, err)
		return data
	}

	// two replicas handling the same round must externalize identical bytes
	require.Equal(t, run(), run())
}

func Test_SubmitCheck(t *testing.T) {
	db := memorydb.New()
	seedAccount(t, db, payerAccount, payerBalance, payerKey)
	registry := Registry{}
	require.NoError(t, registry.Add(map[types.TransactionKind]Handler{
		types.KindCryptoTransfer: &stubHandler{},
	}))
	w := newTestWorkflow(t, db, registry)

	t.Run("accepts a fresh transaction", func(t *testing.T) {
		require.NoError(t, w.SubmitCheck(signedTransferBytes(t), roundTime))
	})

	t.Run("refuses garbage", func(t *testing.T) {
		err := w.SubmitCheck([]byte("garbage"), roundTime)
		st, ok := types.StatusOf(err)
		require.True(t, ok)
		require.Equal(t, types.StatusInvalidTransactionBody, st)
	})

	t.Run("refuses an already handled transaction", func(t *testing.T) {
		raw := signedTransferBytes(t, testtransaction.WithMemo("handled"))
		_, err := w.HandleRound(context.Background(), testRound(raw))
		require.NoError(t, err)
		err = w.SubmitCheck(raw, roundTime)
		st, ok := types.StatusOf(err)
		require.True(t, ok)
		require.Equal(t, types.StatusDuplicateTransaction, st)
	})

	t.Run("refuses implicit creations past frontend capacity", func(t *testing.T) {
		raw := signedTransferBytes(t,
			testtransaction.WithImplicitCreations(100),
			testtransaction.WithValidStart(types.NewTimestamp(1700000001, 0)))
		var throttled *throttle.Error
		require.ErrorAs(t, w.SubmitCheck(raw, roundTime), &throttled)
		require.Equal(t, types.StatusBusy, throttled.Status)
	})
}

func Test_throttleUsageSurvivesRestart(t *testing.T) {
	db := memorydb.New()
	seedAccount(t, db, payerAccount, payerBalance, payerKey)
	registry := Registry{}
	require.NoError(t, registry.Add(map[types.TransactionKind]Handler{
		types.KindContractCall: &stubHandler{handle: func(ctx *Context) error {
			ctx.SetGasUsed(42_000)
			return nil
		}},
	}))

	w := newTestWorkflow(t, db, registry)
	_, err := w.HandleRound(context.Background(), testRound(
		signedTransferBytes(t, testtransaction.WithKind(types.KindContractCall), testtransaction.WithGasLimit(100_000))))
	require.NoError(t, err)
	require.EqualValues(t, 42_000, w.usage.GasThrottle().Used())

	// a restarted node picks the persisted usage up from the base state
	restarted := newTestWorkflow(t, db, registry)
	require.EqualValues(t, 42_000, restarted.usage.GasThrottle().Used())
}
