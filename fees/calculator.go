package fees

import (
	"errors"

	"github.com/quartzledger/quartz/types"
)

// ErrUserCategoryFees - a dispatch must not request top-level fee computation
// for itself through the nested-dispatch fee policy; this is a logic bug in
// the caller, not a business failure.
var ErrUserCategoryFees = errors.New("fee policy for category USER must be computed at the top level")

// UtilizationFn reports current throttle utilization in basis points; the
// calculator derives its congestion multiplier from it.
type UtilizationFn func() uint64

// Calculator computes dispatch fees from the schedule, the active exchange
// rate, the congestion level and the transaction's resource-usage profile.
type Calculator struct {
	schedule    *Schedule
	rate        ExchangeRate
	utilization UtilizationFn
	authorizer  *Authorizer
}

func NewCalculator(schedule *Schedule, rate ExchangeRate, utilization UtilizationFn, authorizer *Authorizer) *Calculator {
	if schedule == nil {
		schedule = DefaultSchedule()
	}
	if utilization == nil {
		utilization = func() uint64 { return 0 }
	}
	if authorizer == nil {
		authorizer = NewAuthorizer()
	}
	return &Calculator{schedule: schedule, rate: rate, utilization: utilization, authorizer: authorizer}
}

// congestionMultiplier maps throttle utilization (basis points) to a fee
// multiplier. The tiers are consensus-critical configuration.
func (c *Calculator) congestionMultiplier() uint64 {
	switch u := c.utilization(); {
	case u >= 9_500:
		return 25
	case u >= 9_000:
		return 10
	case u >= 7_500:
		return 5
	default:
		return 1
	}
}

// ComputeFees computes the (node, network, service) fee triple for a
// transaction body. A payer holding a fee waiver for the functionality pays
// nothing.
func (c *Calculator) ComputeFees(body *types.TransactionBody, payer types.AccountID, sigCount int) types.Fees {
	if c.authorizer.HasFeeWaiver(payer, body.Kind) {
		return types.FreeFees
	}
	price := c.schedule.priceFor(body.Kind)
	usage := uint64(len(body.Payload)+len(body.Memo))*c.schedule.BytePrice +
		uint64(sigCount)*c.schedule.SigPrice
	mult := c.congestionMultiplier()

	return types.Fees{
		NodeFee:    c.rate.ToCoin(price.Node * mult),
		NetworkFee: c.rate.ToCoin((price.Network + usage) * mult),
		ServiceFee: c.rate.ToCoin(price.Service * mult),
	}
}

// ComputeFeesForChild selects the fee-component-subset policy for a nested
// dispatch by category:
//   - Scheduled: only the service component (node/network fees were charged
//     at schedule creation time);
//   - Preceding: free when the top-level transaction is a contract operation
//     or a crypto update (fees already accounted elsewhere), else fully
//     computed;
//   - Child: always free, the cost is absorbed into the parent's fee;
//   - User: invalid.
func (c *Calculator) ComputeFeesForChild(category types.DispatchCategory, body *types.TransactionBody, payer types.AccountID, sigCount int, parentKind types.TransactionKind) (types.Fees, error) {
	switch category {
	case types.CategoryScheduled:
		return c.ComputeFees(body, payer, sigCount).OnlyServiceComponent(), nil
	case types.CategoryPreceding:
		if parentKind.IsContractOperation() || parentKind == types.KindCryptoUpdate {
			return types.FreeFees, nil
		}
		return c.ComputeFees(body, payer, sigCount), nil
	case types.CategoryChild:
		return types.FreeFees, nil
	default:
		return types.FreeFees, ErrUserCategoryFees
	}
}

// ExchangeRate returns the active conversion rate.
func (c *Calculator) ExchangeRate() ExchangeRate {
	return c.rate
}

// Authorizer exposes the privileged-authorization engine.
func (c *Calculator) Authorizer() *Authorizer {
	return c.authorizer
}
