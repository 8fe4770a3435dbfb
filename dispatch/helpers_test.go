package dispatch

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quartzledger/quartz/fees"
	testobserve "github.com/quartzledger/quartz/internal/testutils/observability"
	testtransaction "github.com/quartzledger/quartz/internal/testutils/transaction"
	"github.com/quartzledger/quartz/keyvaluedb/memorydb"
	"github.com/quartzledger/quartz/state"
	"github.com/quartzledger/quartz/types"
)

const (
	selfNode  types.NodeID = 1
	otherNode types.NodeID = 2

	selfNodeAccount  types.AccountID = 1003
	otherNodeAccount types.AccountID = 1004

	payerAccount types.AccountID = 2001
	payerBalance uint64          = 1_000_000_000
)

var payerKey = types.Key("payer-public-key")

// testVerify treats a signature as valid when it equals the key bytes,
// replacing real cryptography in pipeline tests.
func testVerify(key types.Key, _ []byte, sig []byte) bool {
	return bytes.Equal(key, sig)
}

type stubHandler struct {
	pure   func(*types.TransactionBody) error
	pre    func(*PreHandleContext) error
	handle func(*Context) error
}

func (h *stubHandler) PureChecks(body *types.TransactionBody) error {
	if h.pure != nil {
		return h.pure(body)
	}
	return nil
}

func (h *stubHandler) PreHandle(ctx *PreHandleContext) error {
	if h.pre != nil {
		return h.pre(ctx)
	}
	return nil
}

func (h *stubHandler) Handle(ctx *Context) error {
	if h.handle != nil {
		return h.handle(ctx)
	}
	return nil
}

func testNetwork() *StaticNetworkInfo {
	return &StaticNetworkInfo{
		Self: selfNode,
		Nodes: map[types.NodeID]NodeInfo{
			selfNode:  {NodeID: selfNode, AccountID: selfNodeAccount},
			otherNode: {NodeID: otherNode, AccountID: otherNodeAccount},
		},
	}
}

func newTestWorkflow(t *testing.T, db *memorydb.MemoryDB, registry Registry, opts ...Option) *Workflow {
	t.Helper()
	opts = append([]Option{WithVerifyFn(testVerify)}, opts...)
	w, err := NewWorkflow(db, registry, testNetwork(), testobserve.Default(t), opts...)
	require.NoError(t, err)
	return w
}

func seedAccount(t *testing.T, db *memorydb.MemoryDB, id types.AccountID, balance uint64, key types.Key) {
	t.Helper()
	stack := state.NewStack(db)
	view := fees.NewAccountsView(stack.BaseFrame())
	require.NoError(t, view.Put(&fees.Account{ID: id, Balance: balance, Key: key}))
	require.NoError(t, stack.Flush())
}

func balanceOf(t *testing.T, db *memorydb.MemoryDB, id types.AccountID) uint64 {
	t.Helper()
	acc, err := fees.NewAccountsView(state.NewStack(db).BaseFrame()).Get(id)
	require.NoError(t, err)
	if acc == nil {
		return 0
	}
	return acc.Balance
}

// signedTransferBytes builds the default payer-signed crypto transfer.
func signedTransferBytes(t *testing.T, opts ...testtransaction.Option) []byte {
	t.Helper()
	opts = append([]testtransaction.Option{testtransaction.WithPayer(payerAccount)}, opts...)
	body := testtransaction.NewBody(t, opts...)
	return testtransaction.NewEnvelopeBytes(t, body, selfNode, testtransaction.SignatureFor(payerKey))
}
