package dispatch

import (
	"log/slog"

	"github.com/quartzledger/quartz/fees"
	"github.com/quartzledger/quartz/record"
	"github.com/quartzledger/quartz/state"
	"github.com/quartzledger/quartz/types"
)

// Context is handed to Handler.Handle. It exposes the dispatch's own savepoint
// frame, fee computation, key resolution for prospective inner transactions
// and the child dispatch entry points.
type Context struct {
	scope    *scope
	dispatch *Dispatch
}

func (c *Context) Body() *types.TransactionBody     { return c.dispatch.body }
func (c *Context) Payer() types.AccountID           { return c.dispatch.payer }
func (c *Context) Category() types.DispatchCategory { return c.dispatch.category }
func (c *Context) ConsensusTime() types.Timestamp   { return c.dispatch.consensusTime }
func (c *Context) Config() *Config                  { return c.scope.config }
func (c *Context) Logger() *slog.Logger             { return c.scope.log }

// Store returns the current top savepoint frame. Writes through it share the
// dispatch's fate on rollback. The top frame, not the dispatch's own, so that
// writes made after a child dispatch returned stay ordered above the child's
// uncommitted frames.
func (c *Context) Store() *state.Savepoint { return c.scope.stack.Peek() }

// Accounts returns a writable account view over the current top frame.
func (c *Context) Accounts() *fees.AccountsView {
	return fees.NewAccountsView(c.scope.stack.Peek())
}

// Savepoint pushes an additional savepoint inside the handler, for partial
// rollback of a multi-step operation. The handler must balance it with
// CommitSavepoint or RollbackSavepoint before returning.
func (c *Context) Savepoint() *state.Savepoint  { return c.scope.stack.Push() }
func (c *Context) CommitSavepoint()             { c.scope.stack.Commit() }
func (c *Context) RollbackSavepoint()           { c.scope.stack.Rollback() }

// ComputeFees prices a prospective transaction body at the current congestion
// level, without charging anything.
func (c *Context) ComputeFees(body *types.TransactionBody, payer types.AccountID, sigCount int) types.Fees {
	return c.scope.calc.ComputeFees(body, payer, sigCount)
}

func (c *Context) ExchangeRate() fees.ExchangeRate {
	return c.scope.calc.ExchangeRate()
}

// VerificationFor reports whether the given key is satisfied for this
// dispatch. Handlers use it to build delegating verifiers for children.
func (c *Context) VerificationFor(key types.Key) bool {
	return c.dispatch.verifier.KeySatisfied(key)
}

// AllKeysForTransaction resolves the full required-key set of a prospective
// inner transaction by running the target handler's pure checks and key
// gathering against the current state. Any failure is reported as an
// unresolvable-signers business error so schedulers can externalize it.
func (c *Context) AllKeysForTransaction(body *types.TransactionBody, payer types.AccountID) (*types.KeySet, error) {
	h, err := c.scope.registry.handlerFor(body.Kind)
	if err != nil {
		return nil, &types.HandleError{Code: types.StatusUnresolvableRequiredSigners, Cause: err}
	}
	if err := h.PureChecks(body); err != nil {
		return nil, &types.HandleError{Code: types.StatusUnresolvableRequiredSigners, Cause: err}
	}
	pre := &PreHandleContext{
		body:     body,
		payer:    payer,
		frame:    c.scope.stack.Peek(),
		required: types.NewKeySet(),
	}
	if acc, err := pre.Accounts().Get(payer); err != nil || acc == nil {
		return nil, types.NewHandleErrorf(types.StatusUnresolvableRequiredSigners, "payer account %d not resolvable", payer)
	} else if len(acc.Key) > 0 {
		pre.required.Add(acc.Key)
	}
	if err := h.PreHandle(pre); err != nil {
		return nil, &types.HandleError{Code: types.StatusUnresolvableRequiredSigners, Cause: err}
	}
	return pre.required, nil
}

// RecordBuilder exposes this dispatch's own record builder so the handler can
// attach outcome data: created entities, gas usage, operation output.
func (c *Context) RecordBuilder() *record.Builder { return c.dispatch.recordBuilder }

func (c *Context) SetGasUsed(gas uint64) { c.dispatch.recordBuilder.SetGasUsed(gas) }

func (c *Context) SetOutput(out types.RawCBOR) { c.dispatch.recordBuilder.SetOutput(out) }

func (c *Context) AddCreatedEntity(id types.EntityID) { c.dispatch.recordBuilder.AddCreatedEntity(id) }

// RecordPaidReward records a staking reward payment made by this dispatch.
func (c *Context) RecordPaidReward(account types.AccountID, amount uint64) {
	c.dispatch.recordBuilder.AddPaidReward(account, amount)
	if c.scope.paidRewards == nil {
		c.scope.paidRewards = make(map[types.AccountID]uint64)
	}
	c.scope.paidRewards[account] += amount
}

// DispatchPaidRewards returns every staking reward paid so far within the
// current top-level dispatch, across all its nested dispatches.
func (c *Context) DispatchPaidRewards() map[types.AccountID]uint64 {
	out := make(map[types.AccountID]uint64, len(c.scope.paidRewards))
	for acc, amt := range c.scope.paidRewards {
		out[acc] = amt
	}
	return out
}

// DispatchPrecedingTransaction synthesizes an irreversible dispatch whose
// record precedes the user record. Only a user-category dispatch may create
// precedings.
func (c *Context) DispatchPrecedingTransaction(body *types.TransactionBody, payer types.AccountID, verifier *Verifier, policy record.CapacityPolicy) (*record.Builder, error) {
	return c.dispatchPreceding(body, payer, verifier, types.Irreversible, policy)
}

// DispatchReversiblePrecedingTransaction is DispatchPrecedingTransaction with
// a record that is reverted if the user dispatch later fails.
func (c *Context) DispatchReversiblePrecedingTransaction(body *types.TransactionBody, payer types.AccountID, verifier *Verifier, policy record.CapacityPolicy) (*record.Builder, error) {
	return c.dispatchPreceding(body, payer, verifier, types.Reversible, policy)
}

// DispatchRemovablePrecedingTransaction is DispatchPrecedingTransaction with
// a record that is dropped entirely if the user dispatch later fails.
func (c *Context) DispatchRemovablePrecedingTransaction(body *types.TransactionBody, payer types.AccountID, verifier *Verifier, policy record.CapacityPolicy) (*record.Builder, error) {
	return c.dispatchPreceding(body, payer, verifier, types.Removable, policy)
}

func (c *Context) dispatchPreceding(body *types.TransactionBody, payer types.AccountID, verifier *Verifier, behavior types.ReversingBehavior, policy record.CapacityPolicy) (*record.Builder, error) {
	if c.dispatch.category != types.CategoryUser {
		return nil, types.NewHandleErrorf(types.StatusInvalidTransaction, "only a user dispatch may create preceding dispatches")
	}
	child, err := createChildDispatch(c.scope, c.dispatch, childSpec{
		body:        body,
		payer:       payer,
		category:    types.CategoryPreceding,
		behavior:    behavior,
		verifier:    verifier,
		policy:      policy,
		commitStack: true,
	})
	if err != nil {
		return nil, err
	}
	return child.recordBuilder, processDispatch(c.scope, child)
}

// DispatchChildTransaction synthesizes a reversible child dispatch. Its
// record follows the user record and is reverted with the parent.
func (c *Context) DispatchChildTransaction(body *types.TransactionBody, payer types.AccountID, verifier *Verifier) (*record.Builder, error) {
	return c.dispatchChild(body, payer, verifier, types.CategoryChild, types.Reversible, nil)
}

// DispatchRemovableChildTransaction synthesizes a child whose record vanishes
// entirely on parent failure. The optional customizer rewrites or suppresses
// the record at externalization time.
func (c *Context) DispatchRemovableChildTransaction(body *types.TransactionBody, payer types.AccountID, verifier *Verifier, customizer record.ExternalizationCustomizer) (*record.Builder, error) {
	return c.dispatchChild(body, payer, verifier, types.CategoryChild, types.Removable, customizer)
}

// DispatchScheduledTransaction executes a previously scheduled inner
// transaction. Its record only carries the service fee component.
func (c *Context) DispatchScheduledTransaction(body *types.TransactionBody, payer types.AccountID, verifier *Verifier) (*record.Builder, error) {
	return c.dispatchChild(body, payer, verifier, types.CategoryScheduled, types.Reversible, nil)
}

func (c *Context) dispatchChild(body *types.TransactionBody, payer types.AccountID, verifier *Verifier, category types.DispatchCategory, behavior types.ReversingBehavior, customizer record.ExternalizationCustomizer) (*record.Builder, error) {
	child, err := createChildDispatch(c.scope, c.dispatch, childSpec{
		body:       body,
		payer:      payer,
		category:   category,
		behavior:   behavior,
		verifier:   verifier,
		policy:     record.LimitChecked,
		customizer: customizer,
	})
	if err != nil {
		return nil, err
	}
	return child.recordBuilder, processDispatch(c.scope, child)
}
