package fees

import (
	"fmt"

	"github.com/quartzledger/quartz/types"
)

// Accumulator debits the payer and distributes fee components through the
// writable account state of the current savepoint frame. Because charging
// happens inside the dispatch's own frame, a later rollback undoes the
// charge together with everything else.
type Accumulator struct {
	accounts *AccountsView
	charged  types.Fees
}

func NewAccumulator(accounts *AccountsView) *Accumulator {
	return &Accumulator{accounts: accounts}
}

// Charge debits fees.Total() from the payer, credits the node fee to the
// creator node's fee account and the network+service components to the fee
// collection account. An insufficient balance aborts with a HandleError; no
// partial transfer is left behind within the frame.
func (a *Accumulator) Charge(payer types.AccountID, nodeAccount types.AccountID, fees types.Fees) error {
	if fees.IsZero() {
		return nil
	}
	if err := a.accounts.Debit(payer, fees.Total()); err != nil {
		return fmt.Errorf("charging payer %s: %w", payer, err)
	}
	if fees.NodeFee > 0 {
		if err := a.accounts.Credit(nodeAccount, fees.NodeFee); err != nil {
			return fmt.Errorf("crediting node account %s: %w", nodeAccount, err)
		}
	}
	if rest := fees.NetworkFee + fees.ServiceFee; rest > 0 {
		if err := a.accounts.Credit(types.FeeCollectionAccount, rest); err != nil {
			return fmt.Errorf("crediting fee collection account: %w", err)
		}
	}
	a.charged = a.charged.Add(fees)
	return nil
}

// Charged returns the total fees charged through this accumulator.
func (a *Accumulator) Charged() types.Fees {
	return a.charged
}
