package state

import (
	"bytes"
	"fmt"

	"github.com/quartzledger/quartz/types"
)

type mutation struct {
	value   []byte
	deleted bool
}

// Savepoint is one overlay frame of the stack. It exclusively owns the
// mutations made while it is the top frame; reads that miss locally delegate
// to the parent frame and ultimately to the durable base store. Mutations are
// invisible to ancestor frames until the savepoint is committed into its
// parent.
type Savepoint struct {
	stack  *Stack
	index  int
	writes map[string]mutation
}

func newSavepoint(stack *Stack, index int) *Savepoint {
	return &Savepoint{
		stack:  stack,
		index:  index,
		writes: make(map[string]mutation),
	}
}

// Get reads a key through the frame chain: local writes first, then ancestor
// frames, terminating at the durable base state.
func (sp *Savepoint) Get(key []byte) ([]byte, bool, error) {
	k := string(key)
	for i := sp.index; i >= 0; i-- {
		if m, ok := sp.stack.frames[i].writes[k]; ok {
			if m.deleted {
				return nil, false, nil
			}
			return bytes.Clone(m.value), true, nil
		}
	}
	var data []byte
	found, err := sp.stack.base.Read(key, &data)
	if err != nil {
		return nil, false, fmt.Errorf("reading base state: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	return data, true, nil
}

func (sp *Savepoint) Put(key, value []byte) {
	sp.writes[string(key)] = mutation{value: bytes.Clone(value)}
}

func (sp *Savepoint) Delete(key []byte) {
	sp.writes[string(key)] = mutation{deleted: true}
}

func (sp *Savepoint) Has(key []byte) (bool, error) {
	_, found, err := sp.Get(key)
	return found, err
}

// ReadObject decodes the value stored under key into v.
func (sp *Savepoint) ReadObject(key []byte, v any) (bool, error) {
	data, found, err := sp.Get(key)
	if err != nil || !found {
		return found, err
	}
	if err := types.Cbor.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("decoding state value: %w", err)
	}
	return true, nil
}

// WriteObject encodes v and stores it under key in this frame.
func (sp *Savepoint) WriteObject(key []byte, v any) error {
	data, err := types.Cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding state value: %w", err)
	}
	sp.writes[string(key)] = mutation{value: data}
	return nil
}

// mergeInto folds this frame's writes into the parent frame's write set.
func (sp *Savepoint) mergeInto(parent *Savepoint) {
	for k, m := range sp.writes {
		parent.writes[k] = m
	}
}
