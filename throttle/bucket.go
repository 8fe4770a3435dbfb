// Package throttle implements deterministic admission control for the
// dispatch pipeline: token-bucket throttles for transaction kinds, a
// network-wide gas throttle for contract operations and the usage manager
// reconciling reserved capacity with actual work done.
//
// All refill arithmetic is driven by consensus time, never wall clock, so
// every replica makes identical admission decisions.
package throttle

import (
	"fmt"

	"github.com/quartzledger/quartz/types"
)

// Bucket is a token bucket: capacity units accumulate at a fixed rate up to
// a burst ceiling and are consumed by admitted transactions.
type Bucket struct {
	name string
	// capacity units added per second; one admitted op consumes unitsPerOp
	opsPerSec  uint64
	burstSecs  uint64
	used       uint64
	lastRefill types.Timestamp
}

const capacityUnitsPerOp = 1_000_000_000 // nanosecond-granularity accounting

func newBucket(name string, opsPerSec, burstSecs uint64) *Bucket {
	if burstSecs == 0 {
		burstSecs = 1
	}
	return &Bucket{name: name, opsPerSec: opsPerSec, burstSecs: burstSecs}
}

func (b *Bucket) capacity() uint64 {
	return b.opsPerSec * b.burstSecs * capacityUnitsPerOp
}

// refill releases capacity proportional to consensus time elapsed since the
// last refill.
func (b *Bucket) refill(now types.Timestamp) {
	if b.lastRefill.IsZero() {
		b.lastRefill = now
		return
	}
	elapsed := now.UnixNanos() - b.lastRefill.UnixNanos()
	if elapsed <= 0 {
		return
	}
	b.lastRefill = now
	// an idle gap covering the whole burst window refills everything; the
	// clamp also keeps the multiplication below from overflowing
	if uint64(elapsed) >= b.burstSecs*nanosPerSecond {
		b.used = 0
		return
	}
	freed := uint64(elapsed) * b.opsPerSec
	if freed >= b.used {
		b.used = 0
	} else {
		b.used -= freed
	}
}

// Allow reserves capacity for n operations at the given consensus time.
func (b *Bucket) Allow(n uint64, now types.Timestamp) bool {
	b.refill(now)
	needed := n * capacityUnitsPerOp
	if b.used+needed > b.capacity() {
		return false
	}
	b.used += needed
	return true
}

// Leak returns previously reserved capacity for n operations.
func (b *Bucket) Leak(n uint64) {
	amount := n * capacityUnitsPerOp
	if amount >= b.used {
		b.used = 0
	} else {
		b.used -= amount
	}
}

// utilization in parts per ten thousand of the burst capacity.
func (b *Bucket) utilization() uint64 {
	cap := b.capacity()
	if cap == 0 {
		return 0
	}
	return b.used * 10_000 / cap
}

func (b *Bucket) snapshot() BucketSnapshot {
	return BucketSnapshot{Name: b.name, Used: b.used, LastRefill: b.lastRefill}
}

func (b *Bucket) restore(s BucketSnapshot) error {
	if s.Name != b.name {
		return fmt.Errorf("snapshot is for bucket %q, not %q", s.Name, b.name)
	}
	b.used = s.Used
	b.lastRefill = s.LastRefill
	return nil
}

// GasThrottle bounds the total gas admitted per second for gas-metered
// transaction kinds.
type GasThrottle struct {
	gasPerSec  uint64
	burstSecs  uint64
	used       uint64
	lastRefill types.Timestamp
}

func newGasThrottle(gasPerSec, burstSecs uint64) *GasThrottle {
	if burstSecs == 0 {
		burstSecs = 1
	}
	return &GasThrottle{gasPerSec: gasPerSec, burstSecs: burstSecs}
}

func (g *GasThrottle) capacity() uint64 {
	return g.gasPerSec * g.burstSecs
}

func (g *GasThrottle) refill(now types.Timestamp) {
	if g.lastRefill.IsZero() {
		g.lastRefill = now
		return
	}
	elapsed := now.UnixNanos() - g.lastRefill.UnixNanos()
	if elapsed <= 0 {
		return
	}
	g.lastRefill = now
	if uint64(elapsed) >= g.burstSecs*nanosPerSecond {
		g.used = 0
		return
	}
	// split the multiplication so it cannot overflow within the burst window
	secs, nanos := uint64(elapsed)/nanosPerSecond, uint64(elapsed)%nanosPerSecond
	freed := secs*g.gasPerSec + nanos*g.gasPerSec/nanosPerSecond
	if freed >= g.used {
		g.used = 0
	} else {
		g.used -= freed
	}
}

// Allow reserves gas capacity at the given consensus time.
func (g *GasThrottle) Allow(gas uint64, now types.Timestamp) bool {
	g.refill(now)
	if g.used+gas > g.capacity() {
		return false
	}
	g.used += gas
	return true
}

// LeakUnusedGasPreviouslyReserved returns unused gas to the throttle
// immediately rather than waiting for refill, preventing systematic
// under-utilization when transactions reserve more than they burn.
func (g *GasThrottle) LeakUnusedGasPreviouslyReserved(unused uint64) {
	if unused >= g.used {
		g.used = 0
	} else {
		g.used -= unused
	}
}

func (g *GasThrottle) Used() uint64 { return g.used }

const nanosPerSecond = 1_000_000_000
