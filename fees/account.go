// Package fees implements the fee and authorization engine: fee computation
// from the schedule and exchange rate, category fee policies for nested
// dispatches, privileged-account authorization and the account store through
// which fees are charged.
package fees

import (
	"fmt"

	"github.com/quartzledger/quartz/state"
	"github.com/quartzledger/quartz/types"
)

// Account is the ledger account entity as far as the dispatch engine is
// concerned: balance for fee charging, key for authorization, hollow marker
// for implicit creations.
type Account struct {
	_        struct{} `cbor:",toarray"`
	ID       types.AccountID
	Balance  uint64
	Key      types.Key
	Alias    []byte
	Deleted  bool
	Hollow   bool
	StakedTo types.NodeID
}

const accountKeyPrefix = "acct/"

func AccountKey(id types.AccountID) []byte {
	return append([]byte(accountKeyPrefix), id.Bytes()...)
}

// AccountsView is a read/write account store scoped to a savepoint frame;
// every mutation is subject to that frame's commit/rollback.
type AccountsView struct {
	frame *state.Savepoint
}

func NewAccountsView(frame *state.Savepoint) *AccountsView {
	return &AccountsView{frame: frame}
}

// Get returns the account or nil when it does not exist.
func (v *AccountsView) Get(id types.AccountID) (*Account, error) {
	acc := &Account{}
	found, err := v.frame.ReadObject(AccountKey(id), acc)
	if err != nil {
		return nil, fmt.Errorf("reading account %s: %w", id, err)
	}
	if !found {
		return nil, nil
	}
	return acc, nil
}

func (v *AccountsView) Put(acc *Account) error {
	if err := v.frame.WriteObject(AccountKey(acc.ID), acc); err != nil {
		return fmt.Errorf("writing account %s: %w", acc.ID, err)
	}
	return nil
}

// Credit adds amount to the account's balance, creating the account entry on
// demand. Fee collection and node fee accounts need no prior funding; a
// credit to an unseeded account must never fail the charge.
func (v *AccountsView) Credit(id types.AccountID, amount uint64) error {
	acc, err := v.Get(id)
	if err != nil {
		return err
	}
	if acc == nil {
		acc = &Account{ID: id}
	}
	acc.Balance += amount
	return v.Put(acc)
}

// Debit subtracts amount from the account's balance.
func (v *AccountsView) Debit(id types.AccountID, amount uint64) error {
	acc, err := v.Get(id)
	if err != nil {
		return err
	}
	if acc == nil {
		return types.NewHandleError(types.StatusPayerAccountNotFound)
	}
	if acc.Deleted {
		return types.NewHandleError(types.StatusAccountDeleted)
	}
	if acc.Balance < amount {
		return types.NewHandleErrorf(types.StatusInsufficientPayerBalance,
			"account %s balance %d, needed %d", id, acc.Balance, amount)
	}
	acc.Balance -= amount
	return v.Put(acc)
}
