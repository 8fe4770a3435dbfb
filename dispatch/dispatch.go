package dispatch

import (
	"log/slog"

	"github.com/quartzledger/quartz/fees"
	"github.com/quartzledger/quartz/record"
	"github.com/quartzledger/quartz/state"
	"github.com/quartzledger/quartz/throttle"
	"github.com/quartzledger/quartz/types"
)

// Dispatch is one unit of work flowing through the processor: the user
// transaction itself or a synthesized preceding/child/scheduled transaction.
// Each dispatch owns exactly one savepoint frame and one record builder.
type Dispatch struct {
	category types.DispatchCategory
	behavior types.ReversingBehavior

	body        *types.TransactionBody
	txHash      []byte
	payer       types.AccountID
	nodeAccount types.AccountID
	creatorNode types.NodeID

	consensusTime types.Timestamp

	requiredKeys *types.KeySet
	verifier     *Verifier
	handler      Handler
	sigCount     int

	recordBuilder *record.Builder
	// frameDepth is the stack depth right after this dispatch's frame was
	// pushed. Rolling back truncates to frameDepth-1, dropping any
	// uncommitted descendant frames along with our own.
	frameDepth int

	fees        types.Fees
	feesCharged bool

	// commitStack commits this dispatch's frames into the parent immediately
	// on success, so later steps of the parent observe the changes before the
	// top-level boundary.
	commitStack bool

	// preHandleErr carries a failure determined before execution (pure checks
	// or key gathering); the processor externalizes it without invoking the
	// handler.
	preHandleErr error
}

func (d *Dispatch) Category() types.DispatchCategory { return d.category }
func (d *Dispatch) Body() *types.TransactionBody     { return d.body }
func (d *Dispatch) Payer() types.AccountID           { return d.payer }

// scope holds the singletons shared by a top-level user dispatch and every
// descendant it spawns. One scope lives exactly as long as one user
// transaction.
type scope struct {
	config   *Config
	registry Registry
	calc     *fees.Calculator
	usage    *throttle.UsageManager
	network  NetworkInfo
	stack    *state.Stack
	records  *record.ListBuilder
	verify   VerifyFn
	log      *slog.Logger

	userConsensusTime types.Timestamp
	// nextNonce numbers synthesized child transaction IDs within the scope.
	nextNonce uint32
	// precedingSeq and childSeq drive the deterministic nanosecond offsets of
	// synthesized record consensus times around the user time.
	precedingSeq int64
	childSeq     int64

	paidRewards map[types.AccountID]uint64
}

func (s *scope) allocateNonce() uint32 {
	s.nextNonce++
	return s.nextNonce
}

// selfNodeID resolves this node's own identifier, or nil while the address
// book has no entry for us yet.
func (s *scope) selfNodeID() *types.NodeID {
	info, ok := s.network.SelfNodeInfo()
	if !ok {
		return nil
	}
	id := info.NodeID
	return &id
}

// nodeAccountFor resolves the fee collection account of the given node,
// falling back to the network fee collection account for unknown nodes.
func (s *scope) nodeAccountFor(id types.NodeID) types.AccountID {
	if acc, ok := s.network.NodeAccount(id); ok {
		return acc
	}
	return types.FeeCollectionAccount
}
