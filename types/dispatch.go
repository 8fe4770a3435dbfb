package types

// DispatchCategory determines a dispatch's position in the record list, its
// fee treatment and its failure propagation rules.
type DispatchCategory uint8

const (
	CategoryUser DispatchCategory = iota
	CategoryPreceding
	CategoryChild
	CategoryScheduled
)

func (c DispatchCategory) String() string {
	switch c {
	case CategoryUser:
		return "USER"
	case CategoryPreceding:
		return "PRECEDING"
	case CategoryChild:
		return "CHILD"
	case CategoryScheduled:
		return "SCHEDULED"
	}
	return "UNKNOWN"
}

// ReversingBehavior is the policy applied to a record when an ancestor
// dispatch fails.
type ReversingBehavior uint8

const (
	// Reversible records stay in the output with their status overwritten to
	// RevertedSuccess; their state changes are rolled back.
	Reversible ReversingBehavior = iota
	// Removable records are deleted from the output entirely.
	Removable
	// Irreversible records are kept verbatim regardless of ancestor outcome.
	Irreversible
)

func (b ReversingBehavior) String() string {
	switch b {
	case Reversible:
		return "REVERSIBLE"
	case Removable:
		return "REMOVABLE"
	case Irreversible:
		return "IRREVERSIBLE"
	}
	return "UNKNOWN"
}

// WorkDone describes how much of a dispatch actually executed, for usage
// tracking purposes.
type WorkDone uint8

const (
	// FeesOnly - the dispatch was screened out before the handler ran; only
	// the fee payment consumed capacity.
	FeesOnly WorkDone = iota
	// UserTransactionWork - the handler executed (successfully or not).
	UserTransactionWork
)

// TransactionKind is the functionality of a transaction body. The engine is
// agnostic of the business semantics; kinds only select the handler and the
// resource/fee profile.
type TransactionKind uint16

const (
	KindUnknown TransactionKind = iota
	KindCryptoTransfer
	KindCryptoCreate
	KindCryptoUpdate
	KindTokenAssociate
	KindTokenTransfer
	KindContractCall
	KindContractCreate
	KindEthereumTx
	KindScheduleCreate
	KindScheduleSign
	KindNodeStakeUpdate
	KindFileUpdate
	KindFreeze
)

// IsGasThrottled reports whether the kind is metered by the consensus gas
// throttle rather than the plain transactions-per-second buckets.
func (k TransactionKind) IsGasThrottled() bool {
	switch k {
	case KindContractCall, KindContractCreate, KindEthereumTx:
		return true
	}
	return false
}

// IsContractOperation reports whether the kind is a smart contract operation.
// Preceding dispatches under a contract operation are not separately charged.
func (k TransactionKind) IsContractOperation() bool {
	return k.IsGasThrottled()
}

func (k TransactionKind) String() string {
	switch k {
	case KindCryptoTransfer:
		return "CRYPTO_TRANSFER"
	case KindCryptoCreate:
		return "CRYPTO_CREATE"
	case KindCryptoUpdate:
		return "CRYPTO_UPDATE"
	case KindTokenAssociate:
		return "TOKEN_ASSOCIATE"
	case KindTokenTransfer:
		return "TOKEN_TRANSFER"
	case KindContractCall:
		return "CONTRACT_CALL"
	case KindContractCreate:
		return "CONTRACT_CREATE"
	case KindEthereumTx:
		return "ETHEREUM_TX"
	case KindScheduleCreate:
		return "SCHEDULE_CREATE"
	case KindScheduleSign:
		return "SCHEDULE_SIGN"
	case KindNodeStakeUpdate:
		return "NODE_STAKE_UPDATE"
	case KindFileUpdate:
		return "FILE_UPDATE"
	case KindFreeze:
		return "FREEZE"
	}
	return "UNKNOWN"
}
