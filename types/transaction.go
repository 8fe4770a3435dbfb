package types

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

var (
	ErrEnvelopeIsNil = errors.New("transaction envelope is nil")
	ErrBodyIsNil     = errors.New("transaction body is nil")
)

type (
	// TransactionBody is the decoded content of a transaction envelope. The
	// Payload is opaque to the engine; only the registered handler for Kind
	// interprets it.
	TransactionBody struct {
		_                 struct{} `cbor:",toarray"`
		Kind              TransactionKind
		TransactionID     TransactionID
		NodeAccount       AccountID
		MaxFee            uint64
		ValidDuration     int64
		GasLimit          uint64
		ImplicitCreations uint32
		Memo              string
		Payload           RawCBOR
	}

	// Signature pairs a public key with the signature produced by it over the
	// body bytes.
	Signature struct {
		_      struct{} `cbor:",toarray"`
		PubKey Key
		Sig    []byte
	}

	// Envelope is the wire form of a transaction as ordered by consensus:
	// encoded body bytes plus the signatures over them. CreatorNode and
	// Version are attached by the consensus layer.
	Envelope struct {
		_           struct{} `cbor:",toarray"`
		BodyBytes   []byte
		Signatures  []Signature
		CreatorNode NodeID
		Version     uint32
	}
)

func (e *Envelope) Body() (*TransactionBody, error) {
	if e == nil {
		return nil, ErrEnvelopeIsNil
	}
	body := &TransactionBody{}
	if err := Cbor.Unmarshal(e.BodyBytes, body); err != nil {
		return nil, fmt.Errorf("decoding transaction body: %w", err)
	}
	return body, nil
}

// Hash returns the SHA-256 hash of the encoded envelope. Used as the record's
// transaction hash and for unit log entries.
func (e *Envelope) Hash() ([]byte, error) {
	b, err := Cbor.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	h := sha256.Sum256(b)
	return h[:], nil
}

func (e *Envelope) Bytes() ([]byte, error) {
	return Cbor.Marshal(e)
}

func ParseEnvelope(data []byte) (*Envelope, error) {
	e := &Envelope{}
	if err := Cbor.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("decoding transaction envelope: %w", err)
	}
	return e, nil
}

// NewEnvelope encodes the body and wraps it with the given signatures.
func NewEnvelope(body *TransactionBody, sigs ...Signature) (*Envelope, error) {
	if body == nil {
		return nil, ErrBodyIsNil
	}
	bodyBytes, err := Cbor.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding transaction body: %w", err)
	}
	return &Envelope{BodyBytes: bodyBytes, Signatures: sigs}, nil
}
