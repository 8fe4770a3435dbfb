package types

// Fees is the node/network/service fee split of one dispatch, in coin units.
type Fees struct {
	_          struct{} `cbor:",toarray"`
	NodeFee    uint64
	NetworkFee uint64
	ServiceFee uint64
}

// FreeFees is the zero fee triple charged for dispatch categories that are
// not independently billed.
var FreeFees = Fees{}

func (f Fees) Add(other Fees) Fees {
	return Fees{
		NodeFee:    f.NodeFee + other.NodeFee,
		NetworkFee: f.NetworkFee + other.NetworkFee,
		ServiceFee: f.ServiceFee + other.ServiceFee,
	}
}

func (f Fees) Total() uint64 {
	return f.NodeFee + f.NetworkFee + f.ServiceFee
}

// OnlyServiceComponent drops the node and network components. Used for
// scheduled dispatches whose node/network fees were charged at schedule
// creation time.
func (f Fees) OnlyServiceComponent() Fees {
	return Fees{ServiceFee: f.ServiceFee}
}

// WithoutServiceComponent drops the service component. Charged for
// transactions that failed before any service work, such as duplicates.
func (f Fees) WithoutServiceComponent() Fees {
	return Fees{NodeFee: f.NodeFee, NetworkFee: f.NetworkFee}
}

func (f Fees) IsZero() bool {
	return f == Fees{}
}
