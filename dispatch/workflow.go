// Package dispatch implements the transaction processing pipeline of a
// consensus node: each round's ordered transactions are dispatched to their
// registered handlers inside savepoint-scoped state frames, with resource
// screening, fee charging and record externalization around every dispatch.
package dispatch

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/quartzledger/quartz/fees"
	"github.com/quartzledger/quartz/keyvaluedb"
	"github.com/quartzledger/quartz/logger"
	"github.com/quartzledger/quartz/observability"
	"github.com/quartzledger/quartz/record"
	"github.com/quartzledger/quartz/state"
	"github.com/quartzledger/quartz/throttle"
	"github.com/quartzledger/quartz/types"
)

// LastHandledTimeKey is the base-state key recording the consensus time of
// the last handled user transaction. It is flushed atomically with the
// transaction's own state changes.
var LastHandledTimeKey = []byte("sys/lastHandledTime")

// RecordSink receives the complete, ordered record list of one user
// transaction after its commit boundary.
type RecordSink interface {
	Externalize(records []*types.TransactionRecord) error
}

// Workflow drives the per-round transaction handling: decode, deduplicate,
// dispatch, commit, externalize. All HandleRound calls must come from the
// single handle thread; the workflow holds no locks.
type Workflow struct {
	log      *slog.Logger
	db       keyvaluedb.KeyValueDB
	registry Registry
	usage    *throttle.UsageManager
	calc     *fees.Calculator
	config   *Config
	network  NetworkInfo
	cache    *record.Cache
	sink     RecordSink
	verify   VerifyFn

	handledCnt   metric.Int64Counter
	throttledCnt metric.Int64Counter
}

func NewWorkflow(db keyvaluedb.KeyValueDB, registry Registry, network NetworkInfo, obs observability.Observability, opts ...Option) (*Workflow, error) {
	if db == nil {
		return nil, fmt.Errorf("state database is nil")
	}
	if network == nil {
		return nil, fmt.Errorf("network info is nil")
	}
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if err := options.config.IsValid(); err != nil {
		return nil, err
	}

	log := obs.Logger()
	usage, err := throttle.NewUsageManager(options.config.Throttles, log)
	if err != nil {
		return nil, fmt.Errorf("creating usage manager: %w", err)
	}
	// throttle usage survives restarts; reload it from the base state
	if err := usage.RestoreSnapshot(state.NewStack(db).BaseFrame()); err != nil {
		return nil, fmt.Errorf("restoring throttle snapshot: %w", err)
	}
	cache, err := record.NewCache(options.config.RecordCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating record cache: %w", err)
	}

	w := &Workflow{
		log:      log,
		db:       db,
		registry: registry,
		usage:    usage,
		calc:     fees.NewCalculator(options.config.FeeSchedule, options.config.ExchangeRate, usage.UtilizationRatio, fees.NewAuthorizer()),
		config:   options.config,
		network:  network,
		cache:    cache,
		sink:     options.sink,
		verify:   options.verify,
	}

	m := obs.Meter("dispatch")
	if w.handledCnt, err = m.Int64Counter("handled", metric.WithDescription("Number of transactions handled, by status class")); err != nil {
		return nil, fmt.Errorf("creating handled counter: %w", err)
	}
	if w.throttledCnt, err = m.Int64Counter("throttled", metric.WithDescription("Number of transactions refused for capacity")); err != nil {
		return nil, fmt.Errorf("creating throttled counter: %w", err)
	}
	return w, nil
}

// HandleRound processes one consensus round. Each transaction gets a
// deterministic nanosecond offset from the round consensus time, a fresh
// savepoint stack over the base state and its own record list. The returned
// records are in externalization order across the whole round.
func (w *Workflow) HandleRound(ctx context.Context, round *types.Round) ([]*types.TransactionRecord, error) {
	var all []*types.TransactionRecord
	for i, raw := range round.Transactions {
		// 1000 ns apart: strictly increasing for any round size, and each
		// transaction keeps the 0..999 ns window after its own timestamp
		// for the consensus times of its child dispatches
		now := round.ConsensusTime.AddNanos(int64(i) * 1000)

		recs, err := w.handleTransaction(ctx, raw, now)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", round.Number, err)
		}
		if w.sink != nil {
			if err := w.sink.Externalize(recs); err != nil {
				return nil, fmt.Errorf("externalizing records: %w", err)
			}
		}
		all = append(all, recs...)
	}
	w.log.Debug("round handled", logger.Round(round.Number), logger.Data(len(round.Transactions)))
	return all, nil
}

// SubmitCheck screens a candidate transaction before it is handed to
// consensus ordering: decodability, duplicate detection and provisional
// implicit-creation capacity. A refusal here never reaches the record stream;
// the submitter gets the error directly.
func (w *Workflow) SubmitCheck(raw []byte, now types.Timestamp) error {
	envelope, err := types.ParseEnvelope(raw)
	if err != nil {
		return &types.HandleError{Code: types.StatusInvalidTransactionBody, Cause: err}
	}
	body, err := envelope.Body()
	if err != nil {
		return &types.HandleError{Code: types.StatusInvalidTransactionBody, Cause: err}
	}
	if w.cache.IsDuplicate(body.TransactionID) {
		return types.NewHandleErrorf(types.StatusDuplicateTransaction, "transaction %s already handled", body.TransactionID)
	}
	return w.usage.ReserveFrontendCapacity(body.ImplicitCreations, now)
}

// handleTransaction runs one user transaction to its commit boundary. Only
// infrastructure failures (a broken flush) surface as errors; every
// transaction-level failure is externalized as a record.
func (w *Workflow) handleTransaction(ctx context.Context, raw []byte, now types.Timestamp) ([]*types.TransactionRecord, error) {
	envelope, err := types.ParseEnvelope(raw)
	if err != nil {
		w.log.Warn("dropping undecodable transaction", logger.Error(err))
		return w.externalizeUnparsable(raw, now), nil
	}
	body, err := envelope.Body()
	if err != nil {
		w.log.Warn("dropping transaction with undecodable body", logger.Error(err))
		return w.externalizeUnparsable(raw, now), nil
	}
	txHash, err := envelope.Hash()
	if err != nil {
		return nil, fmt.Errorf("hashing envelope: %w", err)
	}

	stack := state.NewStack(w.db)
	s := &scope{
		config:            w.config,
		registry:          w.registry,
		calc:              w.calc,
		usage:             w.usage,
		network:           w.network,
		stack:             stack,
		records:           record.NewListBuilder(w.config.Records),
		verify:            w.verify,
		log:               w.log,
		userConsensusTime: now,
	}

	builder := s.records.UserTransactionRecordBuilder()
	builder.SetTransaction(body.TransactionID, txHash, body.Kind, body.Memo).SetConsensusTime(now)

	d := w.newUserDispatch(s, envelope, body, txHash)
	if w.cache.IsDuplicate(body.TransactionID) {
		d.preHandleErr = types.NewHandleErrorf(types.StatusDuplicateTransaction, "transaction %s already handled", body.TransactionID)
	}

	if err := processDispatch(s, d); err != nil {
		return nil, err
	}

	// commit boundary: the processor has already contained any failure, so
	// whatever frames remain (fee charges at minimum) are committed and
	// flushed atomically together with the bookkeeping entries
	stack.CommitFullStack()
	if err := w.usage.PersistSnapshot(stack.BaseFrame()); err != nil {
		return nil, fmt.Errorf("persisting throttle snapshot: %w", err)
	}
	if err := stack.BaseFrame().WriteObject(LastHandledTimeKey, now); err != nil {
		return nil, fmt.Errorf("recording last handled time: %w", err)
	}
	if err := stack.Flush(); err != nil {
		return nil, fmt.Errorf("flushing state: %w", err)
	}

	recs := s.records.Build()
	for _, rec := range recs {
		w.cache.Put(rec)
		w.handledCnt.Add(ctx, 1, metric.WithAttributes(attribute.String("status", rec.Status.String())))
		if rec.Status == types.StatusBusy || rec.Status == types.StatusConsensusGasExhausted {
			w.throttledCnt.Add(ctx, 1)
		}
	}
	return recs, nil
}

func (w *Workflow) newUserDispatch(s *scope, envelope *types.Envelope, body *types.TransactionBody, txHash []byte) *Dispatch {
	d := &Dispatch{
		category:      types.CategoryUser,
		behavior:      types.Reversible,
		body:          body,
		txHash:        txHash,
		payer:         body.TransactionID.Payer,
		nodeAccount:   s.nodeAccountFor(envelope.CreatorNode),
		creatorNode:   envelope.CreatorNode,
		consensusTime: s.userConsensusTime,
		verifier:      FullVerifier(s.verify, envelope.BodyBytes, envelope.Signatures),
		sigCount:      len(envelope.Signatures),
		recordBuilder: s.records.UserTransactionRecordBuilder(),
	}
	s.stack.Push()
	d.frameDepth = s.stack.Depth()

	h, err := s.registry.handlerFor(body.Kind)
	if err != nil {
		d.preHandleErr = &types.HandleError{Code: types.StatusNotSupported, Cause: err}
		return d
	}
	d.handler = h
	if err := h.PureChecks(body); err != nil {
		d.preHandleErr = err
		return d
	}
	d.requiredKeys, d.preHandleErr = gatherKeys(s, h, childSpec{body: body, payer: d.payer})
	return d
}

// externalizeUnparsable produces the single failure record of a transaction
// that never made it past decoding. No state is touched and no fee charged;
// the creator node wore the cost of gossiping garbage.
func (w *Workflow) externalizeUnparsable(raw []byte, now types.Timestamp) []*types.TransactionRecord {
	h := sha256.Sum256(raw)
	lb := record.NewListBuilder(w.config.Records)
	lb.UserTransactionRecordBuilder().
		SetTransaction(types.TransactionID{}, h[:], 0, "").
		SetConsensusTime(now).
		SetStatus(types.StatusInvalidTransactionBody)
	return lb.Build()
}
