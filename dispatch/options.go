package dispatch

import (
	"github.com/libp2p/go-libp2p/core/crypto"

	"github.com/quartzledger/quartz/types"
)

type (
	Options struct {
		config *Config
		sink   RecordSink
		verify VerifyFn
	}

	Option func(*Options)
)

func defaultOptions() *Options {
	return &Options{
		config: DefaultConfig(),
		verify: DefaultVerifyFn,
	}
}

func WithConfig(cfg *Config) Option {
	return func(o *Options) {
		o.config = cfg
	}
}

// WithRecordSink registers the consumer of externalized records, typically
// the record stream writer.
func WithRecordSink(sink RecordSink) Option {
	return func(o *Options) {
		o.sink = sink
	}
}

// WithVerifyFn overrides signature verification. Tests inject predicates
// here; production uses DefaultVerifyFn.
func WithVerifyFn(fn VerifyFn) Option {
	return func(o *Options) {
		o.verify = fn
	}
}

// DefaultVerifyFn verifies a signature against a marshalled public key.
func DefaultVerifyFn(key types.Key, signedBytes []byte, sig []byte) bool {
	pub, err := crypto.UnmarshalPublicKey(key)
	if err != nil {
		return false
	}
	ok, err := pub.Verify(signedBytes, sig)
	return err == nil && ok
}
