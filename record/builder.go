// Package record assembles the externally visible outcome records of a
// top-level dispatch and its nested children.
package record

import (
	"github.com/quartzledger/quartz/types"
)

// ExternalizationCustomizer may rewrite a record before it is externalized,
// or suppress it entirely by returning nil. Used for example to merge a
// contract call child's result into its parent's record.
type ExternalizationCustomizer func(*types.TransactionRecord) *types.TransactionRecord

// Builder accumulates the outcome of a single dispatch. A builder is owned by
// exactly one dispatch and becomes immutable once the dispatch is finalized.
type Builder struct {
	category   types.DispatchCategory
	behavior   types.ReversingBehavior
	customizer ExternalizationCustomizer
	reversed   bool

	txID            types.TransactionID
	txHash          []byte
	kind            types.TransactionKind
	consensusTime   types.Timestamp
	parentConsensus types.Timestamp
	status          types.Status
	fees            types.Fees
	createdEntities []types.EntityID
	touchedEntities []types.EntityID
	gasUsed         uint64
	output          types.RawCBOR
	paidRewards     map[types.AccountID]uint64
	memo            string
}

func newBuilder(category types.DispatchCategory, behavior types.ReversingBehavior) *Builder {
	return &Builder{category: category, behavior: behavior, status: types.StatusOK}
}

func (b *Builder) Category() types.DispatchCategory   { return b.category }
func (b *Builder) ReversingBehavior() types.ReversingBehavior { return b.behavior }
func (b *Builder) Status() types.Status               { return b.status }
func (b *Builder) Fees() types.Fees                   { return b.fees }
func (b *Builder) GasUsed() uint64                    { return b.gasUsed }
func (b *Builder) TransactionID() types.TransactionID { return b.txID }

func (b *Builder) SetTransaction(txID types.TransactionID, txHash []byte, kind types.TransactionKind, memo string) *Builder {
	b.txID, b.txHash, b.kind, b.memo = txID, txHash, kind, memo
	return b
}

func (b *Builder) SetConsensusTime(ts types.Timestamp) *Builder {
	b.consensusTime = ts
	return b
}

func (b *Builder) SetParentConsensusTime(ts types.Timestamp) *Builder {
	b.parentConsensus = ts
	return b
}

func (b *Builder) SetStatus(status types.Status) *Builder {
	b.status = status
	return b
}

func (b *Builder) SetFees(fees types.Fees) *Builder {
	b.fees = fees
	return b
}

func (b *Builder) SetGasUsed(gas uint64) *Builder {
	b.gasUsed = gas
	return b
}

func (b *Builder) SetOutput(out types.RawCBOR) *Builder {
	b.output = out
	return b
}

func (b *Builder) AddCreatedEntity(id types.EntityID) *Builder {
	b.createdEntities = append(b.createdEntities, id)
	return b
}

func (b *Builder) AddTouchedEntity(id types.EntityID) *Builder {
	b.touchedEntities = append(b.touchedEntities, id)
	return b
}

func (b *Builder) AddPaidReward(account types.AccountID, amount uint64) *Builder {
	if b.paidRewards == nil {
		b.paidRewards = make(map[types.AccountID]uint64)
	}
	b.paidRewards[account] += amount
	return b
}

func (b *Builder) PaidRewards() map[types.AccountID]uint64 {
	return b.paidRewards
}

// reverse applies the builder's reversing behavior for an ancestor failure.
// Returns false when the record must be removed from the output. A dispatch
// that failed on its own keeps its own status; only successes are rewritten.
func (b *Builder) reverse() bool {
	switch b.behavior {
	case types.Irreversible:
		return true
	case types.Removable:
		return false
	default: // Reversible
		if b.status == types.StatusOK {
			b.status = types.StatusRevertedSuccess
		}
		b.reversed = true
		return true
	}
}

// Build produces the immutable record, running the externalization customizer
// if one is set. A nil result means the record is suppressed.
func (b *Builder) Build() *types.TransactionRecord {
	rec := &types.TransactionRecord{
		TransactionID:       b.txID,
		TransactionHash:     b.txHash,
		Kind:                b.kind,
		ConsensusTime:       b.consensusTime,
		ParentConsensusTime: b.parentConsensus,
		Status:              b.status,
		Fees:                b.fees,
		CreatedEntities:     b.createdEntities,
		TouchedEntities:     b.touchedEntities,
		GasUsed:             b.gasUsed,
		Output:              b.output,
		PaidRewards:         b.paidRewards,
		Memo:                b.memo,
	}
	if b.reversed {
		// state changes were rolled back, entity creations did not survive
		rec.CreatedEntities = nil
	}
	if b.customizer != nil {
		return b.customizer(rec)
	}
	return rec
}
