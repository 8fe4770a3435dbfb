package types

// Status is the terminal outcome code of a dispatch. Codes are part of the
// external record contract and must be identical across replicas.
type Status uint32

const (
	StatusOK Status = iota
	StatusInvalidTransaction
	StatusInvalidTransactionBody
	StatusDuplicateTransaction
	StatusPayerAccountNotFound
	StatusInsufficientPayerBalance
	StatusInsufficientTxFee
	StatusInvalidSignature
	StatusUnauthorized
	StatusBusy
	StatusConsensusGasExhausted
	StatusMaxChildRecordsExceeded
	StatusUnresolvableRequiredSigners
	StatusRevertedSuccess
	StatusInnerTransactionFailed
	StatusTokenNotAssociatedToAccount
	StatusAccountDeleted
	StatusInvalidPayerSignature
	StatusHollowAccountCreationFailed
	StatusNotSupported
	StatusInternalError
)

var statusNames = map[Status]string{
	StatusOK:                          "OK",
	StatusInvalidTransaction:          "INVALID_TRANSACTION",
	StatusInvalidTransactionBody:      "INVALID_TRANSACTION_BODY",
	StatusDuplicateTransaction:        "DUPLICATE_TRANSACTION",
	StatusPayerAccountNotFound:        "PAYER_ACCOUNT_NOT_FOUND",
	StatusInsufficientPayerBalance:    "INSUFFICIENT_PAYER_BALANCE",
	StatusInsufficientTxFee:           "INSUFFICIENT_TX_FEE",
	StatusInvalidSignature:            "INVALID_SIGNATURE",
	StatusUnauthorized:                "UNAUTHORIZED",
	StatusBusy:                        "BUSY",
	StatusConsensusGasExhausted:       "CONSENSUS_GAS_EXHAUSTED",
	StatusMaxChildRecordsExceeded:     "MAX_CHILD_RECORDS_EXCEEDED",
	StatusUnresolvableRequiredSigners: "UNRESOLVABLE_REQUIRED_SIGNERS",
	StatusRevertedSuccess:             "REVERTED_SUCCESS",
	StatusInnerTransactionFailed:      "INNER_TRANSACTION_FAILED",
	StatusTokenNotAssociatedToAccount: "TOKEN_NOT_ASSOCIATED_TO_ACCOUNT",
	StatusAccountDeleted:              "ACCOUNT_DELETED",
	StatusInvalidPayerSignature:       "INVALID_PAYER_SIGNATURE",
	StatusHollowAccountCreationFailed: "HOLLOW_ACCOUNT_CREATION_FAILED",
	StatusNotSupported:                "NOT_SUPPORTED",
	StatusInternalError:               "INTERNAL_ERROR",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN_STATUS"
}

func (s Status) IsSuccess() bool {
	return s == StatusOK || s == StatusRevertedSuccess
}
