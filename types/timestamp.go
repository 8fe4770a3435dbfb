package types

import "fmt"

// Timestamp is a consensus timestamp with nanosecond precision. Consensus
// timestamps are strictly increasing within a round; the workflow guarantees
// this by applying a deterministic nanosecond offset per transaction.
type Timestamp struct {
	_       struct{} `cbor:",toarray"`
	Seconds int64
	Nanos   int32
}

const nanosPerSecond = 1_000_000_000

func NewTimestamp(seconds int64, nanos int32) Timestamp {
	return Timestamp{Seconds: seconds, Nanos: nanos}
}

// AddNanos returns the timestamp shifted forward by n nanoseconds.
func (t Timestamp) AddNanos(n int64) Timestamp {
	total := int64(t.Nanos) + n
	t.Seconds += total / nanosPerSecond
	t.Nanos = int32(total % nanosPerSecond)
	if t.Nanos < 0 {
		t.Seconds--
		t.Nanos += nanosPerSecond
	}
	return t
}

// Compare returns -1, 0 or 1 if t is before, equal to or after other.
func (t Timestamp) Compare(other Timestamp) int {
	switch {
	case t.Seconds < other.Seconds:
		return -1
	case t.Seconds > other.Seconds:
		return 1
	case t.Nanos < other.Nanos:
		return -1
	case t.Nanos > other.Nanos:
		return 1
	}
	return 0
}

func (t Timestamp) Before(other Timestamp) bool {
	return t.Compare(other) < 0
}

func (t Timestamp) IsZero() bool {
	return t.Seconds == 0 && t.Nanos == 0
}

// UnixNanos returns the timestamp as nanoseconds since the epoch.
func (t Timestamp) UnixNanos() int64 {
	return t.Seconds*nanosPerSecond + int64(t.Nanos)
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%d.%09d", t.Seconds, t.Nanos)
}
