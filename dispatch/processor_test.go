package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	testtransaction "github.com/quartzledger/quartz/internal/testutils/transaction"
	"github.com/quartzledger/quartz/keyvaluedb/memorydb"
	"github.com/quartzledger/quartz/record"
	"github.com/quartzledger/quartz/state"
	"github.com/quartzledger/quartz/throttle"
	"github.com/quartzledger/quartz/types"
)

var roundTime = types.NewTimestamp(1700000100, 0)

func testRound(txs ...[]byte) *types.Round {
	return &types.Round{Number: 7, ConsensusTime: roundTime, Transactions: txs}
}

func Test_processDispatch_success(t *testing.T) {
	db := memorydb.New()
	seedAccount(t, db, payerAccount, payerBalance, payerKey)

	unitKey := []byte("unit/42")
	registry := Registry{}
	require.NoError(t, registry.Add(map[types.TransactionKind]Handler{
		types.KindCryptoTransfer: &stubHandler{handle: func(ctx *Context) error {
			ctx.Store().Put(unitKey, []byte{1})
			return nil
		}},
	}))
	w := newTestWorkflow(t, db, registry)

	recs, err := w.HandleRound(context.Background(), testRound(signedTransferBytes(t)))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	rec := recs[0]
	require.Equal(t, types.StatusOK, rec.Status)
	require.Equal(t, roundTime, rec.ConsensusTime)
	require.Positive(t, rec.Fees.Total())

	// fee conservation: payer debit equals node + collection credits
	require.Equal(t, payerBalance-rec.Fees.Total(), balanceOf(t, db, payerAccount))
	require.Equal(t, rec.Fees.NodeFee, balanceOf(t, db, selfNodeAccount))
	require.Equal(t, rec.Fees.NetworkFee+rec.Fees.ServiceFee, balanceOf(t, db, types.FeeCollectionAccount))

	// handler mutations and bookkeeping flushed atomically to the base state
	base := state.NewStack(db).BaseFrame()
	_, found, err := base.Get(unitKey)
	require.NoError(t, err)
	require.True(t, found)
	var lastHandled types.Timestamp
	found, err = base.ReadObject(LastHandledTimeKey, &lastHandled)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, roundTime, lastHandled)
	found, err = base.Has(throttle.SnapshotKey)
	require.NoError(t, err)
	require.True(t, found)
}

func Test_processDispatch_handlerFailureRollsBackButCharges(t *testing.T) {
	db := memorydb.New()
	seedAccount(t, db, payerAccount, payerBalance, payerKey)

	unitKey := []byte("unit/42")
	registry := Registry{}
	require.NoError(t, registry.Add(map[types.TransactionKind]Handler{
		types.KindCryptoTransfer: &stubHandler{handle: func(ctx *Context) error {
			ctx.Store().Put(unitKey, []byte{1})
			return types.NewHandleErrorf(types.StatusAccountDeleted, "target account deleted")
		}},
	}))
	w := newTestWorkflow(t, db, registry)

	recs, err := w.HandleRound(context.Background(), testRound(signedTransferBytes(t)))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, types.StatusAccountDeleted, recs[0].Status)
	require.Positive(t, recs[0].Fees.Total())

	// the handler's write did not survive, the fee charge did
	_, found, err := state.NewStack(db).BaseFrame().Get(unitKey)
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, payerBalance-recs[0].Fees.Total(), balanceOf(t, db, payerAccount))
}

func Test_processDispatch_panicIsContained(t *testing.T) {
	db := memorydb.New()
	seedAccount(t, db, payerAccount, payerBalance, payerKey)

	registry := Registry{}
	require.NoError(t, registry.Add(map[types.TransactionKind]Handler{
		types.KindCryptoTransfer: &stubHandler{handle: func(ctx *Context) error {
			ctx.Store().Put([]byte("unit/42"), []byte{1})
			panic("handler bug")
		}},
	}))
	w := newTestWorkflow(t, db, registry)

	recs, err := w.HandleRound(context.Background(), testRound(signedTransferBytes(t)))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, types.StatusInternalError, recs[0].Status)

	_, found, err := state.NewStack(db).BaseFrame().Get([]byte("unit/42"))
	require.NoError(t, err)
	require.False(t, found)
	// the node keeps handling after the panic
	recs, err = w.HandleRound(context.Background(), testRound(signedTransferBytes(t,
		testtransaction.WithMemo("second"),
		testtransaction.WithValidStart(types.NewTimestamp(1700000001, 0)))))
	require.NoError(t, err)
	require.Equal(t, types.StatusInternalError, recs[0].Status)
}

func Test_processDispatch_invalidSignature(t *testing.T) {
	db := memorydb.New()
	seedAccount(t, db, payerAccount, payerBalance, payerKey)

	registry := Registry{}
	require.NoError(t, registry.Add(map[types.TransactionKind]Handler{
		types.KindCryptoTransfer: &stubHandler{},
	}))
	w := newTestWorkflow(t, db, registry)

	body := testtransaction.NewBody(t, testtransaction.WithPayer(payerAccount))
	raw := testtransaction.NewEnvelopeBytes(t, body, selfNode, types.Signature{PubKey: payerKey, Sig: []byte("forged")})

	recs, err := w.HandleRound(context.Background(), testRound(raw))
	require.NoError(t, err)
	require.Equal(t, types.StatusInvalidSignature, recs[0].Status)
	// due diligence failed after pricing: the fee is still charged
	require.Equal(t, payerBalance-recs[0].Fees.Total(), balanceOf(t, db, payerAccount))
}

func Test_processDispatch_insufficientBalance(t *testing.T) {
	db := memorydb.New()
	seedAccount(t, db, payerAccount, 1, payerKey)

	registry := Registry{}
	require.NoError(t, registry.Add(map[types.TransactionKind]Handler{
		types.KindCryptoTransfer: &stubHandler{handle: func(ctx *Context) error {
			t.Fatal("handler must not run when the payer cannot cover the fee")
			return nil
		}},
	}))
	w := newTestWorkflow(t, db, registry)

	recs, err := w.HandleRound(context.Background(), testRound(signedTransferBytes(t)))
	require.NoError(t, err)
	require.Equal(t, types.StatusInsufficientPayerBalance, recs[0].Status)
	require.True(t, recs[0].Fees.IsZero())
	require.Equal(t, uint64(1), balanceOf(t, db, payerAccount))
}

func Test_processDispatch_maxFeeTooLow(t *testing.T) {
	db := memorydb.New()
	seedAccount(t, db, payerAccount, payerBalance, payerKey)

	registry := Registry{}
	require.NoError(t, registry.Add(map[types.TransactionKind]Handler{
		types.KindCryptoTransfer: &stubHandler{},
	}))
	w := newTestWorkflow(t, db, registry)

	recs, err := w.HandleRound(context.Background(), testRound(signedTransferBytes(t, testtransaction.WithMaxFee(1))))
	require.NoError(t, err)
	require.Equal(t, types.StatusInsufficientTxFee, recs[0].Status)
	require.Equal(t, payerBalance, balanceOf(t, db, payerAccount))
}

func Test_processDispatch_privilegedAuthorization(t *testing.T) {
	registry := Registry{}
	require.NoError(t, registry.Add(map[types.TransactionKind]Handler{
		types.KindFreeze: &stubHandler{},
	}))

	t.Run("treasury may freeze without signatures being checked", func(t *testing.T) {
		db := memorydb.New()
		seedAccount(t, db, types.TreasuryAccount, payerBalance, payerKey)
		w := newTestWorkflow(t, db, registry)

		body := testtransaction.NewBody(t, testtransaction.WithPayer(types.TreasuryAccount), testtransaction.WithKind(types.KindFreeze))
		raw := testtransaction.NewEnvelopeBytes(t, body, selfNode)

		recs, err := w.HandleRound(context.Background(), testRound(raw))
		require.NoError(t, err)
		require.Equal(t, types.StatusOK, recs[0].Status)
		// system authority also waives the fee
		require.True(t, recs[0].Fees.IsZero())
		require.Equal(t, payerBalance, balanceOf(t, db, types.TreasuryAccount))
	})

	t.Run("ordinary payer is refused", func(t *testing.T) {
		db := memorydb.New()
		seedAccount(t, db, payerAccount, payerBalance, payerKey)
		w := newTestWorkflow(t, db, registry)

		recs, err := w.HandleRound(context.Background(), testRound(signedTransferBytes(t, testtransaction.WithKind(types.KindFreeze))))
		require.NoError(t, err)
		require.Equal(t, types.StatusUnauthorized, recs[0].Status)
	})
}

func Test_childDispatch_failureIsContained(t *testing.T) {
	db := memorydb.New()
	seedAccount(t, db, payerAccount, payerBalance, payerKey)

	childKey := []byte("assoc/7")
	registry := Registry{}
	require.NoError(t, registry.Add(map[types.TransactionKind]Handler{
		types.KindCryptoTransfer: &stubHandler{handle: func(ctx *Context) error {
			childBody := &types.TransactionBody{Kind: types.KindTokenTransfer, MaxFee: 1_000_000}
			builder, err := ctx.DispatchChildTransaction(childBody, ctx.Payer(), NoOpVerifier())
			if err != nil {
				return err
			}
			// a failed child does not fail the parent; the parent inspects
			// the outcome and carries on
			if builder.Status() != types.StatusTokenNotAssociatedToAccount {
				t.Errorf("unexpected child status %s", builder.Status())
			}
			ctx.Store().Put([]byte("parent/1"), []byte{1})
			return nil
		}},
		types.KindTokenTransfer: &stubHandler{handle: func(ctx *Context) error {
			ctx.Store().Put(childKey, []byte{1})
			return types.NewHandleErrorf(types.StatusTokenNotAssociatedToAccount, "token not associated to account")
		}},
	}))
	w := newTestWorkflow(t, db, registry)

	recs, err := w.HandleRound(context.Background(), testRound(signedTransferBytes(t)))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, types.StatusOK, recs[0].Status)
	require.Equal(t, types.StatusTokenNotAssociatedToAccount, recs[1].Status)
	require.Equal(t, roundTime, recs[1].ParentConsensusTime)
	require.Equal(t, roundTime.AddNanos(1), recs[1].ConsensusTime)
	// child txID derives from the parent with a fresh nonce
	require.Equal(t, payerAccount, recs[1].TransactionID.Payer)
	require.Equal(t, uint32(1), recs[1].TransactionID.Nonce)

	base := state.NewStack(db).BaseFrame()
	_, found, err := base.Get(childKey)
	require.NoError(t, err)
	require.False(t, found)
	_, found, err = base.Get([]byte("parent/1"))
	require.NoError(t, err)
	require.True(t, found)
}

func Test_childDispatch_revertedWithParent(t *testing.T) {
	db := memorydb.New()
	seedAccount(t, db, payerAccount, payerBalance, payerKey)

	childKey := []byte("minted/1")
	registry := Registry{}
	require.NoError(t, registry.Add(map[types.TransactionKind]Handler{
		types.KindCryptoTransfer: &stubHandler{handle: func(ctx *Context) error {
			if _, err := ctx.DispatchChildTransaction(&types.TransactionBody{Kind: types.KindTokenTransfer}, ctx.Payer(), NoOpVerifier()); err != nil {
				return err
			}
			return types.NewHandleErrorf(types.StatusInvalidTransaction, "parent gives up after the child succeeded")
		}},
		types.KindTokenTransfer: &stubHandler{handle: func(ctx *Context) error {
			ctx.Store().Put(childKey, []byte{1})
			return nil
		}},
	}))
	w := newTestWorkflow(t, db, registry)

	recs, err := w.HandleRound(context.Background(), testRound(signedTransferBytes(t)))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, types.StatusInvalidTransaction, recs[0].Status)
	require.Equal(t, types.StatusRevertedSuccess, recs[1].Status)

	_, found, err := state.NewStack(db).BaseFrame().Get(childKey)
	require.NoError(t, err)
	require.False(t, found)
}

func Test_childDispatch_removableChildVanishesOnParentFailure(t *testing.T) {
	db := memorydb.New()
	seedAccount(t, db, payerAccount, payerBalance, payerKey)

	registry := Registry{}
	require.NoError(t, registry.Add(map[types.TransactionKind]Handler{
		types.KindCryptoTransfer: &stubHandler{handle: func(ctx *Context) error {
			if _, err := ctx.DispatchRemovableChildTransaction(&types.TransactionBody{Kind: types.KindTokenTransfer}, ctx.Payer(), NoOpVerifier(), nil); err != nil {
				return err
			}
			return types.NewHandleErrorf(types.StatusInvalidTransaction, "parent fails")
		}},
		types.KindTokenTransfer: &stubHandler{},
	}))
	w := newTestWorkflow(t, db, registry)

	recs, err := w.HandleRound(context.Background(), testRound(signedTransferBytes(t)))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, types.StatusInvalidTransaction, recs[0].Status)
}

func Test_precedingDispatch_visibleToParentAndOrderedFirst(t *testing.T) {
	db := memorydb.New()
	seedAccount(t, db, payerAccount, payerBalance, payerKey)

	hollowKey := []byte("acctalias/ab")
	registry := Registry{}
	require.NoError(t, registry.Add(map[types.TransactionKind]Handler{
		types.KindCryptoTransfer: &stubHandler{handle: func(ctx *Context) error {
			body := &types.TransactionBody{Kind: types.KindCryptoCreate}
			if _, err := ctx.DispatchPrecedingTransaction(body, ctx.Payer(), NoOpVerifier(), record.LimitChecked); err != nil {
				return err
			}
			// the preceding's state changes are committed into our frame
			found, err := ctx.Store().Has(hollowKey)
			if err != nil {
				return err
			}
			if !found {
				t.Error("preceding dispatch changes not visible to the parent")
			}
			return nil
		}},
		types.KindCryptoCreate: &stubHandler{handle: func(ctx *Context) error {
			ctx.Store().Put(hollowKey, []byte{1})
			ctx.AddCreatedEntity(types.EntityID(9001))
			return nil
		}},
	}))
	w := newTestWorkflow(t, db, registry)

	recs, err := w.HandleRound(context.Background(), testRound(signedTransferBytes(t)))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	// preceding first, one nanosecond before the user transaction
	require.Equal(t, types.KindCryptoCreate, recs[0].Kind)
	require.Equal(t, roundTime.AddNanos(-1), recs[0].ConsensusTime)
	require.Equal(t, []types.EntityID{9001}, recs[0].CreatedEntities)
	require.Equal(t, types.KindCryptoTransfer, recs[1].Kind)
}

func Test_precedingDispatch_irreversibleRecordSurvivesUserFailure(t *testing.T) {
	db := memorydb.New()
	seedAccount(t, db, payerAccount, payerBalance, payerKey)

	registry := Registry{}
	require.NoError(t, registry.Add(map[types.TransactionKind]Handler{
		types.KindCryptoTransfer: &stubHandler{handle: func(ctx *Context) error {
			if _, err := ctx.DispatchPrecedingTransaction(&types.TransactionBody{Kind: types.KindNodeStakeUpdate}, types.TreasuryAccount, NoOpVerifier(), record.LimitUnchecked); err != nil {
				return err
			}
			return types.NewHandleErrorf(types.StatusInvalidTransaction, "user work fails")
		}},
		types.KindNodeStakeUpdate: &stubHandler{},
	}))
	w := newTestWorkflow(t, db, registry)

	recs, err := w.HandleRound(context.Background(), testRound(signedTransferBytes(t)))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, types.StatusOK, recs[0].Status)
	require.Equal(t, types.KindNodeStakeUpdate, recs[0].Kind)
	require.Equal(t, types.StatusInvalidTransaction, recs[1].Status)
}

func Test_precedingDispatch_revertedOnUserFailure(t *testing.T) {
	db := memorydb.New()
	seedAccount(t, db, payerAccount, payerBalance, payerKey)

	hollowKey := []byte("acctalias/cd")
	registry := Registry{}
	require.NoError(t, registry.Add(map[types.TransactionKind]Handler{
		types.KindCryptoTransfer: &stubHandler{handle: func(ctx *Context) error {
			if _, err := ctx.DispatchReversiblePrecedingTransaction(&types.TransactionBody{Kind: types.KindCryptoCreate}, ctx.Payer(), NoOpVerifier(), record.LimitChecked); err != nil {
				return err
			}
			if _, err := ctx.DispatchRemovablePrecedingTransaction(&types.TransactionBody{Kind: types.KindNodeStakeUpdate}, types.TreasuryAccount, NoOpVerifier(), record.LimitUnchecked); err != nil {
				return err
			}
			return types.NewHandleErrorf(types.StatusInvalidTransaction, "user work fails after its precedings ran")
		}},
		types.KindCryptoCreate: &stubHandler{handle: func(ctx *Context) error {
			ctx.Store().Put(hollowKey, []byte{1})
			return nil
		}},
		types.KindNodeStakeUpdate: &stubHandler{},
	}))
	w := newTestWorkflow(t, db, registry)

	recs, err := w.HandleRound(context.Background(), testRound(signedTransferBytes(t)))
	require.NoError(t, err)
	// the removable preceding's record vanished with the user failure
	require.Len(t, recs, 2)
	require.Equal(t, types.KindCryptoCreate, recs[0].Kind)
	require.Equal(t, types.StatusRevertedSuccess, recs[0].Status)
	require.Equal(t, types.StatusInvalidTransaction, recs[1].Status)

	_, found, err := state.NewStack(db).BaseFrame().Get(hollowKey)
	require.NoError(t, err)
	require.False(t, found)
}

func Test_childDispatch_parentWriteAfterChildWins(t *testing.T) {
	db := memorydb.New()
	seedAccount(t, db, payerAccount, payerBalance, payerKey)

	sharedKey := []byte("counter/1")
	registry := Registry{}
	require.NoError(t, registry.Add(map[types.TransactionKind]Handler{
		types.KindCryptoTransfer: &stubHandler{handle: func(ctx *Context) error {
			if _, err := ctx.DispatchChildTransaction(&types.TransactionBody{Kind: types.KindTokenTransfer}, ctx.Payer(), NoOpVerifier()); err != nil {
				return err
			}
			// written after the child returned, so it must land above the
			// child's frames and win the commit fold
			ctx.Store().Put(sharedKey, []byte("parent-later"))
			return nil
		}},
		types.KindTokenTransfer: &stubHandler{handle: func(ctx *Context) error {
			ctx.Store().Put(sharedKey, []byte("child-earlier"))
			return nil
		}},
	}))
	w := newTestWorkflow(t, db, registry)

	recs, err := w.HandleRound(context.Background(), testRound(signedTransferBytes(t)))
	require.NoError(t, err)
	require.Equal(t, types.StatusOK, recs[0].Status)
	require.Equal(t, types.StatusOK, recs[1].Status)

	val, found, err := state.NewStack(db).BaseFrame().Get(sharedKey)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("parent-later"), val)
}

func Test_childDispatch_recordLimit(t *testing.T) {
	db := memorydb.New()
	seedAccount(t, db, payerAccount, payerBalance, payerKey)

	registry := Registry{}
	require.NoError(t, registry.Add(map[types.TransactionKind]Handler{
		types.KindCryptoTransfer: &stubHandler{handle: func(ctx *Context) error {
			for {
				if _, err := ctx.DispatchChildTransaction(&types.TransactionBody{Kind: types.KindTokenTransfer}, ctx.Payer(), NoOpVerifier()); err != nil {
					return err
				}
			}
		}},
		types.KindTokenTransfer: &stubHandler{},
	}))
	cfg := DefaultConfig()
	cfg.Records.MaxChildRecords = 2
	w := newTestWorkflow(t, db, registry, WithConfig(cfg))

	recs, err := w.HandleRound(context.Background(), testRound(signedTransferBytes(t)))
	require.NoError(t, err)
	// the limit fails the user dispatch; its reversible children are reverted
	require.Equal(t, types.StatusMaxChildRecordsExceeded, recs[0].Status)
	for _, rec := range recs[1:] {
		require.Equal(t, types.StatusRevertedSuccess, rec.Status)
	}
}

func Test_processDispatch_gasThrottle(t *testing.T) {
	registry := Registry{}
	require.NoError(t, registry.Add(map[types.TransactionKind]Handler{
		types.KindContractCall: &stubHandler{handle: func(ctx *Context) error {
			ctx.SetGasUsed(42_000)
			return nil
		}},
	}))

	t.Run("unused gas is leaked back after execution", func(t *testing.T) {
		db := memorydb.New()
		seedAccount(t, db, payerAccount, payerBalance, payerKey)
		w := newTestWorkflow(t, db, registry)

		recs, err := w.HandleRound(context.Background(), testRound(
			signedTransferBytes(t, testtransaction.WithKind(types.KindContractCall), testtransaction.WithGasLimit(100_000))))
		require.NoError(t, err)
		require.Equal(t, types.StatusOK, recs[0].Status)
		require.EqualValues(t, 42_000, recs[0].GasUsed)
		// 100k reserved at screening, 58k returned when the result reported
		// only 42k consumed
		require.EqualValues(t, 42_000, w.usage.GasThrottle().Used())
	})

	t.Run("exhausted gas capacity refuses the dispatch", func(t *testing.T) {
		db := memorydb.New()
		seedAccount(t, db, payerAccount, payerBalance, payerKey)
		cfg := DefaultConfig()
		cfg.Throttles.Gas.GasPerSec = 50_000
		cfg.Throttles.Gas.BurstSeconds = 1
		w := newTestWorkflow(t, db, registry, WithConfig(cfg))

		recs, err := w.HandleRound(context.Background(), testRound(
			signedTransferBytes(t, testtransaction.WithKind(types.KindContractCall), testtransaction.WithGasLimit(100_000))))
		require.NoError(t, err)
		require.Equal(t, types.StatusConsensusGasExhausted, recs[0].Status)
		// screened out before execution, still paid for
		require.Positive(t, recs[0].Fees.Total())
	})
}
