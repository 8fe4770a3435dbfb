package dispatch

import (
	"errors"
	"fmt"

	"github.com/quartzledger/quartz/fees"
	"github.com/quartzledger/quartz/state"
	"github.com/quartzledger/quartz/types"
)

// Handler implements the business logic of one transaction kind. PureChecks
// validates the body without any state, PreHandle gathers the required
// signing keys against a read-only view, and Handle applies the transaction
// to the dispatch frame.
type Handler interface {
	PureChecks(body *types.TransactionBody) error
	PreHandle(ctx *PreHandleContext) error
	Handle(ctx *Context) error
}

// PreHandleContext is the read-only context handed to Handler.PreHandle for
// key gathering. Writes are not possible; the accounts view is backed by the
// current top frame but the frame itself is not exposed.
type PreHandleContext struct {
	body     *types.TransactionBody
	payer    types.AccountID
	frame    *state.Savepoint
	required *types.KeySet
}

func (c *PreHandleContext) Body() *types.TransactionBody { return c.body }

func (c *PreHandleContext) Payer() types.AccountID { return c.payer }

// Accounts returns a view for reading account records during key gathering.
func (c *PreHandleContext) Accounts() *fees.AccountsView {
	return fees.NewAccountsView(c.frame)
}

// RequireKey adds a key to the set that must be satisfied before Handle runs.
func (c *PreHandleContext) RequireKey(key types.Key) {
	c.required.Add(key)
}

func (c *PreHandleContext) RequiredKeys() *types.KeySet { return c.required }

// Registry maps transaction kinds to their handlers.
type Registry map[types.TransactionKind]Handler

// Add registers the handlers produced by the given constructors, rejecting
// nil entries and duplicate kinds.
func (r Registry) Add(items map[types.TransactionKind]Handler) error {
	for kind, h := range items {
		if h == nil {
			return fmt.Errorf("registering nil handler for transaction kind %s", kind)
		}
		if _, ok := r[kind]; ok {
			return fmt.Errorf("handler for transaction kind %s already registered", kind)
		}
		r[kind] = h
	}
	return nil
}

var errUnknownKind = errors.New("no handler registered for transaction kind")

func (r Registry) handlerFor(kind types.TransactionKind) (Handler, error) {
	h, ok := r[kind]
	if !ok {
		return nil, fmt.Errorf("%w %s", errUnknownKind, kind)
	}
	return h, nil
}
