package types

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Cbor is the codec used for all wire and state encoding. Core deterministic
// encoding is required: every replica must produce byte-identical output for
// the same value.
var Cbor = cborCodec{}

type cborCodec struct{}

var (
	encMode = func() cbor.EncMode {
		mode, err := cbor.CoreDetEncOptions().EncMode()
		if err != nil {
			panic(err)
		}
		return mode
	}()
	decMode = func() cbor.DecMode {
		mode, err := cbor.DecOptions{}.DecMode()
		if err != nil {
			panic(err)
		}
		return mode
	}()
)

func (cborCodec) Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func (cborCodec) Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

func (cborCodec) GetEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

func (cborCodec) GetDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// RawCBOR is an opaque, already encoded CBOR value. A nil value encodes as
// CBOR null and decodes back to nil, so values survive a store round trip
// unchanged.
type RawCBOR []byte

const cborNull = 0xf6

func (r RawCBOR) MarshalCBOR() ([]byte, error) {
	if len(r) == 0 {
		return []byte{cborNull}, nil
	}
	return r, nil
}

func (r *RawCBOR) UnmarshalCBOR(data []byte) error {
	if len(data) == 1 && data[0] == cborNull {
		*r = nil
		return nil
	}
	*r = append((*r)[:0], data...)
	return nil
}
