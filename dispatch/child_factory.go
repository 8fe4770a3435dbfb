package dispatch

import (
	"crypto/sha256"
	"fmt"

	"github.com/quartzledger/quartz/record"
	"github.com/quartzledger/quartz/types"
)

// childSpec carries everything a parent dispatch supplies when synthesizing a
// nested dispatch.
type childSpec struct {
	body        *types.TransactionBody
	payer       types.AccountID
	category    types.DispatchCategory
	behavior    types.ReversingBehavior
	verifier    *Verifier
	policy      record.CapacityPolicy
	customizer  record.ExternalizationCustomizer
	commitStack bool
}

// createChildDispatch builds a nested dispatch: it resolves the handler, runs
// the pure checks and key gathering, allocates the record builder slot and
// pushes a fresh savepoint frame on top of the parent's. A pure-check or key
// gathering failure does not abort creation; the dispatch carries the failure
// and the processor externalizes it without executing the handler.
func createChildDispatch(s *scope, parent *Dispatch, spec childSpec) (*Dispatch, error) {
	handler, err := s.registry.handlerFor(spec.body.Kind)
	if err != nil {
		return nil, &types.HandleError{Code: types.StatusNotSupported, Cause: err}
	}

	if spec.body.TransactionID.IsZero() {
		spec.body.TransactionID = parent.body.TransactionID.WithNonce(s.allocateNonce())
	}

	builder, err := allocateBuilder(s, spec)
	if err != nil {
		// record-limit errors carry their own status and fail the parent
		return nil, err
	}

	d := &Dispatch{
		category:      spec.category,
		behavior:      spec.behavior,
		body:          spec.body,
		txHash:        synthesizedHash(spec.body),
		payer:         spec.payer,
		nodeAccount:   parent.nodeAccount,
		creatorNode:   parent.creatorNode,
		consensusTime: childConsensusTime(s, spec.category),
		verifier:      spec.verifier,
		handler:       handler,
		recordBuilder: builder,
		commitStack:   spec.commitStack,
	}
	if d.verifier == nil {
		d.verifier = NoOpVerifier()
	}

	builder.SetTransaction(spec.body.TransactionID, d.txHash, spec.body.Kind, spec.body.Memo)
	builder.SetConsensusTime(d.consensusTime)
	if spec.category != types.CategoryPreceding {
		builder.SetParentConsensusTime(s.userConsensusTime)
	}

	if err := handler.PureChecks(spec.body); err != nil {
		d.preHandleErr = err
	} else {
		d.requiredKeys, d.preHandleErr = gatherKeys(s, handler, spec)
	}

	if d.preHandleErr == nil {
		d.fees, err = s.calc.ComputeFeesForChild(spec.category, spec.body, spec.payer, 0, parent.body.Kind)
		if err != nil {
			return nil, fmt.Errorf("pricing child dispatch: %w", err)
		}
	}

	s.stack.Push()
	d.frameDepth = s.stack.Depth()
	return d, nil
}

func allocateBuilder(s *scope, spec childSpec) (*record.Builder, error) {
	if spec.category == types.CategoryPreceding {
		switch spec.behavior {
		case types.Reversible:
			return s.records.AddReversiblePreceding(spec.policy)
		case types.Removable:
			return s.records.AddRemovablePreceding(spec.policy)
		default:
			return s.records.AddPreceding(spec.policy)
		}
	}
	if spec.behavior == types.Removable {
		return s.records.AddRemovableChildWithCustomizer(spec.category, spec.customizer)
	}
	return s.records.AddChild(spec.category)
}

// childConsensusTime assigns deterministic nanosecond offsets around the user
// transaction's consensus time: precedings count backwards, children forward.
func childConsensusTime(s *scope, category types.DispatchCategory) types.Timestamp {
	if category == types.CategoryPreceding {
		s.precedingSeq++
		return s.userConsensusTime.AddNanos(-s.precedingSeq)
	}
	s.childSeq++
	return s.userConsensusTime.AddNanos(s.childSeq)
}

func gatherKeys(s *scope, handler Handler, spec childSpec) (*types.KeySet, error) {
	pre := &PreHandleContext{
		body:     spec.body,
		payer:    spec.payer,
		frame:    s.stack.Peek(),
		required: types.NewKeySet(),
	}
	if acc, err := pre.Accounts().Get(spec.payer); err != nil {
		return nil, err
	} else if acc != nil && len(acc.Key) > 0 {
		pre.required.Add(acc.Key)
	}
	if err := handler.PreHandle(pre); err != nil {
		return nil, err
	}
	return pre.required, nil
}

// synthesizedHash derives the record transaction hash for a dispatch that has
// no wire envelope of its own.
func synthesizedHash(body *types.TransactionBody) []byte {
	data, err := types.Cbor.Marshal(body)
	if err != nil {
		return nil
	}
	h := sha256.Sum256(data)
	return h[:]
}
