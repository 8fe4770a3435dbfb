package types

// TransactionRecord is the externally visible outcome of one dispatch. The
// record stream consumers require byte-for-byte identical records on every
// replica, so the record must be assembled exclusively from consensus inputs
// and deterministic state.
type TransactionRecord struct {
	_                   struct{} `cbor:",toarray"`
	TransactionID       TransactionID
	TransactionHash     []byte
	Kind                TransactionKind
	ConsensusTime       Timestamp
	ParentConsensusTime Timestamp
	Status              Status
	Fees                Fees
	CreatedEntities     []EntityID
	TouchedEntities     []EntityID
	GasUsed             uint64
	Output              RawCBOR
	PaidRewards         map[AccountID]uint64
	Memo                string
}

func (r *TransactionRecord) Bytes() ([]byte, error) {
	return Cbor.Marshal(r)
}
