package record

import (
	"github.com/quartzledger/quartz/types"
)

// CapacityPolicy controls whether exceeding the configured child record limit
// is a hard failure or silently ignored. Unchecked is reserved for
// network-critical synthetic transactions that must never be dropped by the
// limit (e.g. node stake updates).
type CapacityPolicy uint8

const (
	LimitChecked CapacityPolicy = iota
	LimitUnchecked
)

// Config caps the number of records one user transaction may spawn.
type Config struct {
	MaxPrecedingRecords int `yaml:"maxPrecedingRecords"`
	MaxChildRecords     int `yaml:"maxChildRecords"`
}

// ListBuilder owns every record builder of one top-level user dispatch. Only
// the owning top-level scope may call Build; child dispatches receive their
// builder as a capability to append outcome data, never the list itself.
//
// Output order is part of the external contract: preceding records in
// creation order, then the user record, then child records in dispatch order.
type ListBuilder struct {
	config    Config
	preceding []*Builder
	user      *Builder
	children  []*Builder
}

// MaxChildRecordsExceededError is returned when a dispatch tries to allocate
// a record past the configured limit and the capacity policy is checked.
type MaxChildRecordsExceededError struct {
	Limit int
}

func (e *MaxChildRecordsExceededError) Error() string {
	return "maximum number of child records exceeded"
}

// Status returns the dedicated failure status for the initiating dispatch.
func (e *MaxChildRecordsExceededError) Status() types.Status {
	return types.StatusMaxChildRecordsExceeded
}

func NewListBuilder(config Config) *ListBuilder {
	return &ListBuilder{config: config}
}

// UserTransactionRecordBuilder returns the singular user record builder,
// creating it on first call.
func (lb *ListBuilder) UserTransactionRecordBuilder() *Builder {
	if lb.user == nil {
		lb.user = newBuilder(types.CategoryUser, types.Reversible)
	}
	return lb.user
}

// AddPreceding allocates an irreversible preceding record builder, positioned
// before the user record.
func (lb *ListBuilder) AddPreceding(policy CapacityPolicy) (*Builder, error) {
	return lb.addPreceding(types.Irreversible, policy)
}

func (lb *ListBuilder) AddReversiblePreceding(policy CapacityPolicy) (*Builder, error) {
	return lb.addPreceding(types.Reversible, policy)
}

func (lb *ListBuilder) AddRemovablePreceding(policy CapacityPolicy) (*Builder, error) {
	return lb.addPreceding(types.Removable, policy)
}

func (lb *ListBuilder) addPreceding(behavior types.ReversingBehavior, policy CapacityPolicy) (*Builder, error) {
	if policy == LimitChecked && len(lb.preceding) >= lb.config.MaxPrecedingRecords {
		return nil, &MaxChildRecordsExceededError{Limit: lb.config.MaxPrecedingRecords}
	}
	b := newBuilder(types.CategoryPreceding, behavior)
	lb.preceding = append(lb.preceding, b)
	return b, nil
}

// AddChild allocates a reversible child record builder positioned after the
// user record, in dispatch order.
func (lb *ListBuilder) AddChild(category types.DispatchCategory) (*Builder, error) {
	return lb.addChild(category, types.Reversible, nil)
}

func (lb *ListBuilder) AddRemovableChild(category types.DispatchCategory) (*Builder, error) {
	return lb.addChild(category, types.Removable, nil)
}

// AddRemovableChildWithCustomizer allocates a removable child whose record is
// rewritten (or suppressed) by the customizer at externalization time.
func (lb *ListBuilder) AddRemovableChildWithCustomizer(category types.DispatchCategory, customizer ExternalizationCustomizer) (*Builder, error) {
	return lb.addChild(category, types.Removable, customizer)
}

func (lb *ListBuilder) addChild(category types.DispatchCategory, behavior types.ReversingBehavior, customizer ExternalizationCustomizer) (*Builder, error) {
	if len(lb.children) >= lb.config.MaxChildRecords {
		return nil, &MaxChildRecordsExceededError{Limit: lb.config.MaxChildRecords}
	}
	b := newBuilder(category, behavior)
	b.customizer = customizer
	lb.children = append(lb.children, b)
	return b, nil
}

// ChildCount returns the number of child record builders allocated so far.
// Used as the revert point marker before invoking a nested handler.
func (lb *ListBuilder) ChildCount() int {
	return len(lb.children)
}

// RevertChildrenFrom applies the reversing rules to every child builder
// created at or after index idx: removable children are dropped from the
// output, successful reversible ones become RevertedSuccess, irreversible
// ones are untouched.
func (lb *ListBuilder) RevertChildrenFrom(idx int) {
	kept := lb.children[:idx]
	for _, b := range lb.children[idx:] {
		if b.reverse() {
			kept = append(kept, b)
		}
	}
	lb.children = kept
}

// RevertAll applies the reversing rules to every preceding and child builder.
// Called when the user dispatch itself fails.
func (lb *ListBuilder) RevertAll() {
	keptPreceding := lb.preceding[:0]
	for _, b := range lb.preceding {
		if b.reverse() {
			keptPreceding = append(keptPreceding, b)
		}
	}
	lb.preceding = keptPreceding
	lb.RevertChildrenFrom(0)
}

// Build produces the final ordered record sequence. Records suppressed by
// their externalization customizer are excluded.
func (lb *ListBuilder) Build() []*types.TransactionRecord {
	out := make([]*types.TransactionRecord, 0, len(lb.preceding)+1+len(lb.children))
	for _, b := range lb.preceding {
		if rec := b.Build(); rec != nil {
			out = append(out, rec)
		}
	}
	if lb.user != nil {
		if rec := lb.user.Build(); rec != nil {
			out = append(out, rec)
		}
	}
	for _, b := range lb.children {
		if rec := b.Build(); rec != nil {
			out = append(out, rec)
		}
	}
	return out
}
