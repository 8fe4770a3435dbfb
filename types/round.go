package types

// Round is one consensus round as delivered by the platform: an ordered batch
// of encoded transaction envelopes sharing a round consensus timestamp. Each
// transaction gets a deterministic nanosecond offset from the round time when
// it is handled.
type Round struct {
	_             struct{} `cbor:",toarray"`
	Number        uint64
	ConsensusTime Timestamp
	Transactions  [][]byte
}
