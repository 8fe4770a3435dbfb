package dispatch

import (
	"fmt"

	"github.com/quartzledger/quartz/types"
)

// VerifyFn checks one signature over the signed transaction bytes against a
// public key. Implementations must be deterministic.
type VerifyFn func(key types.Key, signedBytes []byte, sig []byte) bool

type verifierKind uint8

const (
	verifierNoOp verifierKind = iota
	verifierDelegating
	verifierFull
)

// Verifier answers whether required signing keys are satisfied for a
// dispatch. The variant set is closed: no-op (synthesized system work),
// delegating (capability granted by the parent dispatch) and full
// (cryptographic verification against the envelope signatures).
type Verifier struct {
	kind        verifierKind
	delegate    func(types.Key) bool
	verify      VerifyFn
	signedBytes []byte
	signatures  []types.Signature
}

// NoOpVerifier satisfies every key. Used for synthesized dispatches whose
// authority comes from the system itself.
func NoOpVerifier() *Verifier {
	return &Verifier{kind: verifierNoOp}
}

// DelegatingVerifier satisfies exactly the keys the given predicate admits.
// The parent dispatch decides, per key, whether its own authority extends to
// the child.
func DelegatingVerifier(delegate func(types.Key) bool) *Verifier {
	return &Verifier{kind: verifierDelegating, delegate: delegate}
}

// FullVerifier checks keys against the envelope signatures using the given
// verification function.
func FullVerifier(verify VerifyFn, signedBytes []byte, signatures []types.Signature) *Verifier {
	return &Verifier{kind: verifierFull, verify: verify, signedBytes: signedBytes, signatures: signatures}
}

// KeySatisfied reports whether a single key is satisfied under this verifier.
func (v *Verifier) KeySatisfied(key types.Key) bool {
	switch v.kind {
	case verifierNoOp:
		return true
	case verifierDelegating:
		return v.delegate(key)
	default:
		for _, sig := range v.signatures {
			if key.Eq(sig.PubKey) && v.verify(key, v.signedBytes, sig.Sig) {
				return true
			}
		}
		return false
	}
}

// VerifyAll checks every key in the set, failing on the first unsatisfied one.
func (v *Verifier) VerifyAll(required *types.KeySet) error {
	for _, key := range required.Keys() {
		if !v.KeySatisfied(key) {
			return types.NewHandleErrorf(types.StatusInvalidSignature, "required key %x not satisfied", key)
		}
	}
	return nil
}

func (v *Verifier) String() string {
	switch v.kind {
	case verifierNoOp:
		return "no-op"
	case verifierDelegating:
		return "delegating"
	default:
		return fmt.Sprintf("full(%d signatures)", len(v.signatures))
	}
}
