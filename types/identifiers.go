package types

import (
	"encoding/binary"
	"fmt"
)

type (
	// AccountID is the entity number of a ledger account.
	AccountID uint64

	// EntityID identifies any entity (account, token, contract, schedule)
	// created or touched by a transaction.
	EntityID uint64

	// NodeID is the consensus-node identifier assigned in the address book.
	NodeID uint64
)

// Well known system accounts. Accounts up to LastSystemAccount are reserved
// for the network itself and are subject to privileged authorization rules.
const (
	TreasuryAccount      AccountID = 2
	SystemAdminAccount   AccountID = 50
	AddressBookAdmin     AccountID = 55
	FeeSchedulesAdmin    AccountID = 56
	ThrottleAdmin        AccountID = 57
	FeeCollectionAccount AccountID = 98
	StakingRewardAccount AccountID = 800
	NodeRewardAccount    AccountID = 801
	LastSystemAccount    AccountID = 1000
)

func (id AccountID) IsSystem() bool {
	return id != 0 && id <= LastSystemAccount
}

func (id AccountID) Bytes() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func (id AccountID) String() string {
	return fmt.Sprintf("%d", uint64(id))
}

// TransactionID identifies a transaction for deduplication purposes. Child
// dispatches reuse the parent's payer and valid-start time but get a unique
// non-zero nonce.
type TransactionID struct {
	_          struct{} `cbor:",toarray"`
	Payer      AccountID
	ValidStart Timestamp
	Nonce      uint32
}

func (id TransactionID) IsZero() bool {
	return id.Payer == 0 && id.ValidStart.IsZero() && id.Nonce == 0
}

func (id TransactionID) WithNonce(nonce uint32) TransactionID {
	id.Nonce = nonce
	return id
}

func (id TransactionID) String() string {
	return fmt.Sprintf("%s@%d.%09d#%d", id.Payer, id.ValidStart.Seconds, id.ValidStart.Nanos, id.Nonce)
}

// Key returns a stable byte representation usable as a cache/store key.
func (id TransactionID) Key() []byte {
	b := make([]byte, 8+8+4+4)
	binary.BigEndian.PutUint64(b, uint64(id.Payer))
	binary.BigEndian.PutUint64(b[8:], uint64(id.ValidStart.Seconds))
	binary.BigEndian.PutUint32(b[16:], uint32(id.ValidStart.Nanos))
	binary.BigEndian.PutUint32(b[20:], id.Nonce)
	return b
}
