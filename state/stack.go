package state

import (
	"fmt"
	"sort"

	"github.com/quartzledger/quartz/keyvaluedb"
)

// Stack is a last-in-first-out sequence of savepoints over a durable base
// store. The base frame (depth 1) accumulates the committed effects of a
// top-level dispatch until Flush writes them out; frames above it belong to
// nested dispatch scopes.
//
// A stack instance is owned exclusively by the single-threaded execution of
// one top-level dispatch and its synchronous descendants.
type Stack struct {
	base   keyvaluedb.KeyValueDB
	frames []*Savepoint
}

func NewStack(base keyvaluedb.KeyValueDB) *Stack {
	s := &Stack{base: base}
	s.frames = []*Savepoint{newSavepoint(s, 0)}
	return s
}

// Push creates a new savepoint whose parent is the current top and makes it
// the new top.
func (s *Stack) Push() *Savepoint {
	sp := newSavepoint(s, len(s.frames))
	s.frames = append(s.frames, sp)
	return sp
}

// Peek returns the current top savepoint.
func (s *Stack) Peek() *Savepoint {
	return s.frames[len(s.frames)-1]
}

// Depth returns the number of frames, including the base frame.
func (s *Stack) Depth() int {
	return len(s.frames)
}

func (s *Stack) BaseFrame() *Savepoint {
	return s.frames[0]
}

// Commit merges the top frame's writes into its parent and pops the stack.
// The writes are still not durable; durability happens at Flush.
func (s *Stack) Commit() {
	top := s.pop()
	top.mergeInto(s.Peek())
}

// Rollback discards the top frame's writes entirely and pops the stack. After
// rollback no trace of the frame's mutations is observable by any reader.
func (s *Stack) Rollback() {
	top := s.pop()
	top.writes = nil
	top.stack = nil
}

// CommitFullStack commits repeatedly until only the base frame remains.
func (s *Stack) CommitFullStack() {
	for len(s.frames) > 1 {
		s.Commit()
	}
}

// RollbackFullStack rolls back repeatedly until only the base frame remains.
func (s *Stack) RollbackFullStack() {
	for len(s.frames) > 1 {
		s.Rollback()
	}
}

// RollbackToDepth discards every frame above the given depth in one
// truncation. Used when a failing dispatch must drop its own frame together
// with any uncommitted descendant frames stacked above it.
func (s *Stack) RollbackToDepth(depth int) {
	if depth < 1 {
		panic("savepoint stack: attempt to roll back the base frame")
	}
	for i := depth; i < len(s.frames); i++ {
		s.frames[i].writes = nil
		s.frames[i].stack = nil
	}
	s.frames = s.frames[:depth]
}

// CommitToDepth commits repeatedly until the stack is at the given depth.
func (s *Stack) CommitToDepth(depth int) {
	if depth < 1 {
		panic("savepoint stack: attempt to commit the base frame")
	}
	for len(s.frames) > depth {
		s.Commit()
	}
}

// pop removes and returns the top frame. Popping the base frame is a logic
// bug, not a business-rule failure, and panics.
func (s *Stack) pop() *Savepoint {
	if len(s.frames) == 1 {
		panic("savepoint stack: attempt to pop the base frame")
	}
	top := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	return top
}

// Flush atomically writes the base frame's accumulated mutations into the
// durable store and clears the frame. Throttle snapshots and other system
// entries are ordinary keys in the same write set, so state and admission
// control can never diverge across a crash.
func (s *Stack) Flush() error {
	if len(s.frames) != 1 {
		return fmt.Errorf("unexpected stack depth %d at flush, commit or roll back nested frames first", len(s.frames))
	}
	base := s.frames[0]
	if len(base.writes) == 0 {
		return nil
	}
	tx, err := s.base.StartTx()
	if err != nil {
		return fmt.Errorf("starting base state tx: %w", err)
	}
	// deterministic write order
	keys := make([]string, 0, len(base.writes))
	for k := range base.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m := base.writes[k]
		if m.deleted {
			err = tx.Delete([]byte(k))
		} else {
			err = tx.Write([]byte(k), m.value)
		}
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("writing base state: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing base state: %w", err)
	}
	base.writes = make(map[string]mutation)
	return nil
}
