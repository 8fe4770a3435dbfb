package types

import "bytes"

// Key is a raw public key. The engine never interprets key bytes; signature
// verification is delegated to the injected verifier capability.
type Key []byte

func (k Key) Eq(other Key) bool {
	return bytes.Equal(k, other)
}

// KeySet is an insertion-ordered set of required signing keys. Order matters
// for determinism of verification failure reporting.
type KeySet struct {
	keys []Key
}

func NewKeySet(keys ...Key) *KeySet {
	s := &KeySet{}
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

func (s *KeySet) Add(key Key) {
	if len(key) == 0 || s.Contains(key) {
		return
	}
	s.keys = append(s.keys, bytes.Clone(key))
}

func (s *KeySet) Contains(key Key) bool {
	for _, k := range s.keys {
		if k.Eq(key) {
			return true
		}
	}
	return false
}

func (s *KeySet) Keys() []Key {
	return s.keys
}

func (s *KeySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}
