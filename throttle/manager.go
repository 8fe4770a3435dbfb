package throttle

import (
	"fmt"
	"log/slog"

	"github.com/quartzledger/quartz/logger"
	"github.com/quartzledger/quartz/state"
	"github.com/quartzledger/quartz/types"
)

// Error signals resource exhaustion: the dispatch was refused admission
// before its handler executed. It never escapes the dispatch processor.
type Error struct {
	Status types.Status
}

func (e *Error) Error() string {
	return fmt.Sprintf("throttled: %s", e.Status)
}

// SnapshotKey is the base-state key the throttle snapshot is persisted
// under. It is an ordinary state entry and rides the same atomic flush as
// the business state it gates.
var SnapshotKey = []byte("sys/throttle/snapshot")

type (
	BucketSnapshot struct {
		_          struct{} `cbor:",toarray"`
		Name       string
		Used       uint64
		LastRefill types.Timestamp
	}

	// Snapshot is the persisted usage state of every throttle. It survives
	// restarts so capacity does not reset when a node comes back up.
	Snapshot struct {
		_        struct{} `cbor:",toarray"`
		Buckets  []BucketSnapshot
		GasUsed  uint64
		GasTime  types.Timestamp
		Frontend BucketSnapshot
	}

	// Usage describes one completed dispatch to TrackUsage.
	Usage struct {
		Category          types.DispatchCategory
		Kind              types.TransactionKind
		WorkDone          types.WorkDone
		Status            types.Status
		GasLimit          uint64
		GasUsed           uint64
		HasContractResult bool
		ImplicitCreations uint32
		CreatorNode       types.NodeID
		// SelfNode is nil when network info cannot resolve this node's own
		// identity; the implicit-creation reclaim is skipped in that case.
		SelfNode      *types.NodeID
		ConsensusTime types.Timestamp
	}

	// UsageManager is the resource accounting engine: it screens dispatches
	// for admission capacity before execution and reconciles reserved
	// capacity with actual usage afterwards.
	UsageManager struct {
		buckets      []*Bucket
		bucketByKind map[types.TransactionKind]*Bucket
		gas          *GasThrottle
		frontend     *Bucket
		log          *slog.Logger
	}
)

func NewUsageManager(cfg *Config, log *slog.Logger) (*UsageManager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid throttle config: %w", err)
	}
	m := &UsageManager{
		bucketByKind: make(map[types.TransactionKind]*Bucket),
		gas:          newGasThrottle(cfg.Gas.GasPerSec, cfg.Gas.BurstSeconds),
		frontend:     newBucket("frontend", cfg.Frontend.CreationsPerSec, cfg.Frontend.BurstSeconds),
		log:          log,
	}
	for _, def := range cfg.Buckets {
		b := newBucket(def.Name, def.OpsPerSec, def.BurstSeconds)
		m.buckets = append(m.buckets, b)
		for _, kindName := range def.Kinds {
			m.bucketByKind[kindsByName[kindName]] = b
		}
	}
	return m, nil
}

// ScreenForCapacity checks whether a gas-metered dispatch can be admitted at
// the given consensus time. Non-gas-metered dispatches are not screened here;
// their usage is tracked in aggregate after execution.
func (m *UsageManager) ScreenForCapacity(kind types.TransactionKind, gasLimit uint64, now types.Timestamp) error {
	if !kind.IsGasThrottled() {
		return nil
	}
	if !m.gas.Allow(gasLimit, now) {
		return &Error{Status: types.StatusConsensusGasExhausted}
	}
	return nil
}

// ReserveFrontendCapacity provisionally reserves implicit-creation capacity
// before execution.
func (m *UsageManager) ReserveFrontendCapacity(n uint32, now types.Timestamp) error {
	if n == 0 {
		return nil
	}
	if !m.frontend.Allow(uint64(n), now) {
		return &Error{Status: types.StatusBusy}
	}
	return nil
}

// TrackUsage reconciles throttle state with the work a dispatch actually did.
// It is called exactly once per top-level dispatch regardless of outcome.
func (m *UsageManager) TrackUsage(u Usage) {
	// child and preceding dispatches do not independently consume top-level
	// throttle capacity
	if u.Category != types.CategoryUser {
		return
	}

	if u.WorkDone == types.FeesOnly {
		m.trackFeePayment(u.ConsensusTime)
	} else {
		m.trackKind(u.Kind, u.ConsensusTime)
		if u.Kind.IsGasThrottled() && u.HasContractResult && u.GasLimit >= u.GasUsed {
			m.gas.LeakUnusedGasPreviouslyReserved(u.GasLimit - u.GasUsed)
		}
	}

	if m.shouldReclaimImplicitCreations(u) {
		m.frontend.Leak(uint64(u.ImplicitCreations))
		m.log.Debug("reclaimed frontend capacity for failed implicit creation",
			logger.NodeID(u.CreatorNode), slog.Uint64("creations", uint64(u.ImplicitCreations)))
	}
}

// shouldReclaimImplicitCreations - a hollow-account auto-creation attempt
// failed; the provisionally reserved frontend capacity is given back, but
// only when this node originated the attempt. If self identity cannot be
// resolved the reclaim is skipped (fail safe, no capacity adjustment).
func (m *UsageManager) shouldReclaimImplicitCreations(u Usage) bool {
	if u.Status != types.StatusHollowAccountCreationFailed {
		return false
	}
	if u.ImplicitCreations == 0 {
		return false
	}
	if u.SelfNode == nil {
		return false
	}
	return *u.SelfNode == u.CreatorNode
}

func (m *UsageManager) trackKind(kind types.TransactionKind, now types.Timestamp) {
	if b, ok := m.bucketByKind[kind]; ok {
		// over-capacity at track time is not an error: the dispatch already
		// happened, its usage is recorded regardless
		_ = b.Allow(1, now)
	}
}

// trackFeePayment records the fee-payment-sized usage of a dispatch that did
// no real work.
func (m *UsageManager) trackFeePayment(now types.Timestamp) {
	m.trackKind(types.KindCryptoTransfer, now)
}

// UtilizationRatio returns the highest bucket utilization in basis points
// (parts per ten thousand); the fee calculator derives its congestion
// multiplier from it.
func (m *UsageManager) UtilizationRatio() uint64 {
	var highest uint64
	for _, b := range m.buckets {
		if u := b.utilization(); u > highest {
			highest = u
		}
	}
	return highest
}

// PersistSnapshot writes the current usage state into the given savepoint
// frame. Always called at the end of usage tracking so the snapshot is part
// of the same commit boundary as the business state.
func (m *UsageManager) PersistSnapshot(frame *state.Savepoint) error {
	snap := Snapshot{
		GasUsed:  m.gas.used,
		GasTime:  m.gas.lastRefill,
		Frontend: m.frontend.snapshot(),
	}
	for _, b := range m.buckets {
		snap.Buckets = append(snap.Buckets, b.snapshot())
	}
	if err := frame.WriteObject(SnapshotKey, &snap); err != nil {
		return fmt.Errorf("persisting throttle snapshot: %w", err)
	}
	return nil
}

// RestoreSnapshot loads a previously persisted usage state, if any.
func (m *UsageManager) RestoreSnapshot(frame *state.Savepoint) error {
	var snap Snapshot
	found, err := frame.ReadObject(SnapshotKey, &snap)
	if err != nil {
		return fmt.Errorf("reading throttle snapshot: %w", err)
	}
	if !found {
		return nil
	}
	for _, bs := range snap.Buckets {
		for _, b := range m.buckets {
			if b.name == bs.Name {
				if err := b.restore(bs); err != nil {
					return err
				}
				break
			}
		}
	}
	m.gas.used = snap.GasUsed
	m.gas.lastRefill = snap.GasTime
	if snap.Frontend.Name != "" {
		if err := m.frontend.restore(snap.Frontend); err != nil {
			return err
		}
	}
	return nil
}

// GasThrottle exposes the gas throttle for tests and the execution context.
func (m *UsageManager) GasThrottle() *GasThrottle {
	return m.gas
}
