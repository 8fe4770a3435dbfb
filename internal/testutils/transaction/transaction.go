package transaction

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quartzledger/quartz/types"
)

type Option func(*types.TransactionBody)

func WithKind(kind types.TransactionKind) Option {
	return func(b *types.TransactionBody) { b.Kind = kind }
}

func WithPayer(payer types.AccountID) Option {
	return func(b *types.TransactionBody) { b.TransactionID.Payer = payer }
}

func WithValidStart(ts types.Timestamp) Option {
	return func(b *types.TransactionBody) { b.TransactionID.ValidStart = ts }
}

func WithMaxFee(fee uint64) Option {
	return func(b *types.TransactionBody) { b.MaxFee = fee }
}

func WithGasLimit(gas uint64) Option {
	return func(b *types.TransactionBody) { b.GasLimit = gas }
}

func WithImplicitCreations(n uint32) Option {
	return func(b *types.TransactionBody) { b.ImplicitCreations = n }
}

func WithMemo(memo string) Option {
	return func(b *types.TransactionBody) { b.Memo = memo }
}

func WithPayload(payload types.RawCBOR) Option {
	return func(b *types.TransactionBody) { b.Payload = payload }
}

// NewBody builds a transaction body with sensible defaults for tests.
func NewBody(t testing.TB, opts ...Option) *types.TransactionBody {
	t.Helper()
	body := &types.TransactionBody{
		Kind: types.KindCryptoTransfer,
		TransactionID: types.TransactionID{
			Payer:      1001,
			ValidStart: types.NewTimestamp(1700000000, 0),
		},
		MaxFee:        1_000_000,
		ValidDuration: 120,
	}
	for _, opt := range opts {
		opt(body)
	}
	return body
}

// SignatureFor pairs the key with itself as the signature value, matching the
// key-equality verify function tests install in place of real cryptography.
func SignatureFor(key types.Key) types.Signature {
	return types.Signature{PubKey: key, Sig: []byte(key)}
}

// NewEnvelopeBytes encodes a ready-to-order envelope around the body.
func NewEnvelopeBytes(t testing.TB, body *types.TransactionBody, creator types.NodeID, sigs ...types.Signature) []byte {
	t.Helper()
	envelope, err := types.NewEnvelope(body, sigs...)
	require.NoError(t, err)
	envelope.CreatorNode = creator
	data, err := envelope.Bytes()
	require.NoError(t, err)
	return data
}
