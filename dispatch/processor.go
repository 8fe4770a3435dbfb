package dispatch

import (
	"errors"

	"github.com/quartzledger/quartz/fees"
	"github.com/quartzledger/quartz/logger"
	"github.com/quartzledger/quartz/record"
	"github.com/quartzledger/quartz/throttle"
	"github.com/quartzledger/quartz/types"
)

// outcome is the processor's verdict on one dispatch.
type outcome struct {
	status   types.Status
	fees     types.Fees
	workDone types.WorkDone
}

// processDispatch runs one dispatch to completion: capacity screening,
// authorization, fee charging, handler execution and failure containment.
// Business failures never escape as errors; they are externalized through the
// dispatch's record builder. The returned error is reserved for conditions
// the parent itself must fail on, which the current flow has none of.
func processDispatch(s *scope, d *Dispatch) error {
	childMark := s.records.ChildCount()

	out := executeGuarded(s, d, childMark)

	d.recordBuilder.SetStatus(out.status).SetFees(out.fees)

	if out.status.IsSuccess() && d.commitStack {
		s.stack.CommitToDepth(d.frameDepth - 1)
	}

	// the manager only consumes top-level usage; nested dispatches ride on
	// the capacity their user transaction already paid for
	s.usage.TrackUsage(throttle.Usage{
		Category:          d.category,
		Kind:              d.body.Kind,
		WorkDone:          out.workDone,
		Status:            out.status,
		GasLimit:          d.body.GasLimit,
		GasUsed:           d.recordBuilder.GasUsed(),
		HasContractResult: d.body.Kind.IsGasThrottled() && out.workDone == types.UserTransactionWork,
		ImplicitCreations: d.body.ImplicitCreations,
		CreatorNode:       d.creatorNode,
		SelfNode:          s.selfNodeID(),
		ConsensusTime:     d.consensusTime,
	})
	return nil
}

// executeGuarded is the panic boundary around handler execution. A panicking
// handler must not take the node down over one transaction: the dispatch is
// rolled back and externalized as an internal failure.
func executeGuarded(s *scope, d *Dispatch, childMark int) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("recovered panic while handling transaction",
				logger.TransactionID(d.body.TransactionID), logger.Kind(d.body.Kind), logger.Data(r))
			out = failDispatch(s, d, childMark, types.StatusInternalError)
		}
	}()
	return execute(s, d, childMark)
}

func execute(s *scope, d *Dispatch, childMark int) outcome {
	if d.preHandleErr != nil {
		status := statusOf(d.preHandleErr, types.StatusInvalidTransactionBody)
		if d.category == types.CategoryUser && status == types.StatusDuplicateTransaction {
			// the payer's node let a duplicate through to consensus; the
			// payer still owes the node and network components
			d.fees = s.calc.ComputeFees(d.body, d.payer, d.sigCount).WithoutServiceComponent()
		}
		return failDispatch(s, d, childMark, status)
	}

	// price the work up front so every later failure path still charges;
	// child dispatches were priced by the factory
	if d.category == types.CategoryUser {
		d.fees = s.calc.ComputeFees(d.body, d.payer, d.sigCount)
		if d.fees.Total() > d.body.MaxFee {
			d.fees = types.FreeFees
			return failDispatch(s, d, childMark, types.StatusInsufficientTxFee)
		}
	}

	if err := s.usage.ScreenForCapacity(d.body.Kind, d.body.GasLimit, d.consensusTime); err != nil {
		return failDispatch(s, d, childMark, statusOf(err, types.StatusBusy))
	}

	authorizer := s.calc.Authorizer()
	switch authorizer.HasPrivilegedAuthorization(d.payer, d.body.Kind) {
	case fees.Unauthorized:
		return failDispatch(s, d, childMark, types.StatusUnauthorized)
	case fees.Authorized:
		// treasury and system admin act with system authority; individual
		// signature checks do not apply
	default:
		if err := d.verifier.VerifyAll(d.requiredKeys); err != nil {
			return failDispatch(s, d, childMark, statusOf(err, types.StatusInvalidSignature))
		}
	}

	charged, err := chargeFees(s, d)
	if err != nil {
		st := statusOf(err, types.StatusInsufficientPayerBalance)
		s.stack.RollbackToDepth(d.frameDepth - 1)
		s.stack.Push()
		return outcome{status: st, fees: types.FreeFees, workDone: types.FeesOnly}
	}

	if err := d.handler.Handle(&Context{scope: s, dispatch: d}); err != nil {
		out := failDispatch(s, d, childMark, statusOf(err, types.StatusInvalidTransaction))
		out.workDone = types.UserTransactionWork
		return out
	}

	return outcome{status: types.StatusOK, fees: charged, workDone: types.UserTransactionWork}
}

// failDispatch contains a failed dispatch: every frame from the dispatch's
// own upwards is discarded, descendant records are reverted per their
// reversing behavior, and the fee charge is reapplied on a fresh frame so the
// rollback does not refund the payer.
func failDispatch(s *scope, d *Dispatch, childMark int, status types.Status) outcome {
	s.stack.RollbackToDepth(d.frameDepth - 1)
	s.stack.Push()
	if d.category == types.CategoryUser {
		// a user failure reverts every descendant record, precedings included
		s.records.RevertAll()
	} else {
		s.records.RevertChildrenFrom(childMark)
	}

	charged, err := chargeFees(s, d)
	if err != nil {
		// the payer cannot cover the fee on the restored state either;
		// nothing is charged
		return outcome{status: status, fees: types.FreeFees, workDone: types.FeesOnly}
	}
	return outcome{status: status, fees: charged, workDone: types.FeesOnly}
}

func chargeFees(s *scope, d *Dispatch) (types.Fees, error) {
	acc := fees.NewAccumulator(fees.NewAccountsView(s.stack.Peek()))
	if err := acc.Charge(d.payer, d.nodeAccount, d.fees); err != nil {
		return types.FreeFees, err
	}
	return acc.Charged(), nil
}

// statusOf maps any error raised inside the pipeline to an externalizable
// status, falling back when the error carries none.
func statusOf(err error, fallback types.Status) types.Status {
	if st, ok := types.StatusOf(err); ok {
		return st
	}
	var throttled *throttle.Error
	if errors.As(err, &throttled) {
		return throttled.Status
	}
	var limit *record.MaxChildRecordsExceededError
	if errors.As(err, &limit) {
		return limit.Status()
	}
	return fallback
}
