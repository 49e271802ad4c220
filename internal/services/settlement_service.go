// Package services – SettlementService
//
// This file implements the settlement processor: it drains unprocessed
// pending votes per proposal, submits them through the chain gateway in one
// batch, and atomically transitions state between the pending queue and the
// committed ledger. Per attempt the state machine is
//
//	COLLECTING → SUBMITTING → COMMITTED (terminal success)
//	COLLECTING → SUBMITTING → FAILED    (terminal for this attempt)
//
// On failure nothing is marked processed; the batch is retried on a later
// cycle with exponential backoff, and failures past the retry budget raise an
// operational alert without dropping votes.
//
// Concurrency: at most one in-flight attempt per proposal, enforced by a
// per-proposal mutex table. The gateway call is the only network suspension
// point; an attempt may be cancelled before the call is issued, but once
// issued the outcome is awaited before the lock is released.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/brandvote/go-voting-backend/internal/cache"
	"github.com/brandvote/go-voting-backend/internal/chain"
	"github.com/brandvote/go-voting-backend/internal/domain"
	"github.com/brandvote/go-voting-backend/internal/repo"
)

// Settlement attempt states, recorded on spans and logs.
const (
	stateCollecting = "COLLECTING"
	stateSubmitting = "SUBMITTING"
	stateCommitted  = "COMMITTED"
	stateFailed     = "FAILED"
)

var (
	// settleBatches counts settlement attempts by terminal state.
	settleBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vote_settlement_batches_total",
			Help: "Total number of settlement attempts by terminal state.",
		},
		[]string{"state"},
	)

	// settleVotes counts votes committed to the ledger.
	settleVotes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vote_settlement_votes_total",
			Help: "Total number of votes committed to the ledger.",
		},
	)

	// settleDuration records end-to-end settlement attempt duration.
	settleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vote_settlement_duration_seconds",
			Help:    "Duration of settlement attempts in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// settleAlerts counts proposals whose retry budget was exhausted.
	settleAlerts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vote_settlement_alerts_total",
			Help: "Total number of retry-budget-exhausted alerts.",
		},
	)
)

func init() {
	prometheus.MustRegister(settleBatches, settleVotes, settleDuration, settleAlerts)
}

// retryState tracks the backoff schedule of one proposal.
type retryState struct {
	failures  int
	notBefore time.Time
	alerted   bool
}

// SettlementService drains pending votes through the chain gateway and keeps
// the pending queue and the committed ledger consistent.
type SettlementService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Gateway submits batches to the external ledger.
	Gateway chain.Gateway
	// Resolver maps a business to its deployed contract address.
	Resolver chain.ContractResolver
	// Cache is invalidated on commit; may be nil in tests.
	Cache *cache.Cache
	// Log is the service logger.
	Log zerolog.Logger

	// BatchSize caps how many votes one attempt drains (default 100).
	BatchSize int
	// BackoffBase is the first retry delay (default 1s); each failure
	// doubles it up to BackoffCap (default 60s).
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// RetryBudget is the number of consecutive failures after which a
	// fatal alert is raised (default 5). Votes are never dropped.
	RetryBudget int

	// locks serializes settlement per proposal; retries holds per-proposal
	// backoff state guarded by the same lock.
	locks   *xsync.Map[string, *sync.Mutex]
	retries *xsync.Map[string, *retryState]
	once    sync.Once
}

func (s *SettlementService) initMaps() {
	s.once.Do(func() {
		s.locks = xsync.NewMap[string, *sync.Mutex]()
		s.retries = xsync.NewMap[string, *retryState]()
	})
}

func (s *SettlementService) batchSize() int {
	if s.BatchSize > 0 {
		return s.BatchSize
	}
	return 100
}

func (s *SettlementService) backoffBase() time.Duration {
	if s.BackoffBase > 0 {
		return s.BackoffBase
	}
	return time.Second
}

func (s *SettlementService) backoffCap() time.Duration {
	if s.BackoffCap > 0 {
		return s.BackoffCap
	}
	return 60 * time.Second
}

func (s *SettlementService) retryBudget() int {
	if s.RetryBudget > 0 {
		return s.RetryBudget
	}
	return 5
}

func proposalKey(businessID string, proposalID int64) string {
	return fmt.Sprintf("%s/%d", businessID, proposalID)
}

// backoffDelay returns the delay before retry n (1-based): base doubling up
// to the cap, i.e. 1s, 2s, 4s, ... capped at 60s with the defaults.
func (s *SettlementService) backoffDelay(failures int) time.Duration {
	d := s.backoffBase()
	capd := s.backoffCap()
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= capd {
			return capd
		}
	}
	if d > capd {
		return capd
	}
	return d
}

// SettleProposal runs one settlement attempt for a proposal. It returns the
// number of votes committed by this attempt; zero with a nil error means the
// queue was empty or the proposal is still inside its backoff window.
//
// Errors: ErrNoContract when the business has no deployed contract (the
// backlog stays pending); a *SettlementError for retryable gateway failures.
func (s *SettlementService) SettleProposal(ctx context.Context, businessID string, proposalID int64) (int, error) {
	s.initMaps()

	tr := otel.Tracer("services/SettlementService")
	ctx, span := tr.Start(ctx, "SettleProposal",
		trace.WithAttributes(
			attribute.String("business.id", businessID),
			attribute.Int64("proposal.id", proposalID),
		),
	)
	defer span.End()

	key := proposalKey(businessID, proposalID)
	mu, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	mu.Lock()
	defer mu.Unlock()

	start := time.Now()
	log := s.Log.With().Str("business_id", businessID).Int64("proposal_id", proposalID).Logger()

	// Backoff window: skip silently until the next attempt is due.
	if rs, ok := s.retries.Load(key); ok && time.Now().Before(rs.notBefore) {
		log.Debug().Time("not_before", rs.notBefore).Msg("settlement backoff in effect")
		return 0, nil
	}

	// COLLECTING: drain up to one batch, oldest first.
	span.SetAttributes(attribute.String("settlement.state", stateCollecting))
	batch, err := repo.ListUnprocessed(ctx, s.DB,
		repo.PendingFilter{BusinessID: businessID, ProposalID: &proposalID}, s.batchSize(), 0)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	addr, err := s.Resolver.ContractAddress(ctx, businessID)
	if err != nil {
		return 0, err
	}
	if addr == "" {
		return 0, ErrNoContract
	}

	// Idempotency diff: drop votes a prior partially-observed attempt
	// already committed, and mark them processed without resubmission.
	ids := make([]string, 0, len(batch))
	for _, v := range batch {
		ids = append(ids, v.ID)
	}
	committed, err := repo.CommittedVoteIDs(ctx, s.DB, ids)
	if err != nil {
		return 0, err
	}
	if len(committed) > 0 {
		already := make([]string, 0, len(committed))
		submit := batch[:0]
		for _, v := range batch {
			if _, ok := committed[v.ID]; ok {
				already = append(already, v.ID)
			} else {
				submit = append(submit, v)
			}
		}
		batch = submit
		if _, err := repo.MarkProcessed(ctx, s.DB, already); err != nil {
			return 0, err
		}
		// Reconciliation changed queue state even if nothing is left to
		// submit, so cached listings and counts are stale now.
		if s.Cache != nil {
			s.Cache.InvalidateByTags(ctx, cache.VoteWriteTags(businessID)...)
		}
		log.Info().Int("count", len(already)).Msg("reconciled votes already committed on chain")
	}
	if len(batch) == 0 {
		return 0, nil
	}

	// Last cancellation point: once SubmitBatch is issued we must await the
	// outcome before releasing the proposal lock.
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// SUBMITTING
	span.SetAttributes(attribute.String("settlement.state", stateSubmitting))
	votes := make([]chain.BatchVote, 0, len(batch))
	for _, v := range batch {
		votes = append(votes, chain.BatchVote{
			VoteID:            v.ID,
			ProposalID:        v.ProposalID,
			UserID:            v.UserID,
			SelectedProductID: v.SelectedProductID,
		})
	}
	receipt, err := s.Gateway.SubmitBatch(ctx, addr, votes)
	if err != nil {
		// FAILED: pending rows stay unprocessed for a later attempt.
		span.SetAttributes(attribute.String("settlement.state", stateFailed))
		settleBatches.WithLabelValues(stateFailed).Inc()
		settleDuration.Observe(time.Since(start).Seconds())
		s.recordFailure(key, log)
		return 0, &SettlementError{BusinessID: businessID, ProposalID: proposalID, Op: "submit", Err: err}
	}

	ts := receipt.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	records := make([]domain.VotingRecord, 0, len(batch))
	for _, v := range batch {
		records = append(records, domain.VotingRecord{
			ID:                uuid.NewString(),
			BusinessID:        v.BusinessID,
			ProposalID:        v.ProposalID,
			VoteID:            v.ID,
			VoterRef:          v.UserID,
			SelectedProductID: v.SelectedProductID,
			ProductName:       v.ProductName,
			TransactionHash:   receipt.TransactionHash,
			BlockNumber:       receipt.BlockNumber,
			GasUsed:           receipt.GasUsed,
			Timestamp:         ts,
		})
	}

	// COMMITTED: ledger append and queue transition in one transaction, so
	// a pending vote is never deleted-from-queue before its record exists.
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.AppendRecords(ctx, tx, records); err != nil {
			return err
		}
		ids := make([]string, 0, len(batch))
		for _, v := range batch {
			ids = append(ids, v.ID)
		}
		_, err := repo.MarkProcessed(ctx, tx, ids)
		return err
	})
	if err != nil {
		settleBatches.WithLabelValues(stateFailed).Inc()
		settleDuration.Observe(time.Since(start).Seconds())
		s.recordFailure(key, log)
		return 0, &SettlementError{BusinessID: businessID, ProposalID: proposalID, Op: "commit", Err: err}
	}

	span.SetAttributes(attribute.String("settlement.state", stateCommitted))
	settleBatches.WithLabelValues(stateCommitted).Inc()
	settleVotes.Add(float64(len(records)))
	settleDuration.Observe(time.Since(start).Seconds())
	s.retries.Delete(key)

	if s.Cache != nil {
		s.Cache.InvalidateByTags(ctx, cache.VoteWriteTags(businessID)...)
	}

	log.Info().
		Int("votes", len(records)).
		Str("tx_hash", receipt.TransactionHash).
		Uint64("block", receipt.BlockNumber).
		Msg("settlement batch committed")
	return len(records), nil
}

// recordFailure advances the proposal's backoff schedule and raises a fatal
// alert once the retry budget is exhausted. Retries continue at the capped
// delay; votes are never dropped.
func (s *SettlementService) recordFailure(key string, log zerolog.Logger) {
	rs, _ := s.retries.LoadOrStore(key, &retryState{})
	rs.failures++
	delay := s.backoffDelay(rs.failures)
	rs.notBefore = time.Now().Add(delay)

	log.Warn().
		Int("failures", rs.failures).
		Dur("retry_in", delay).
		Msg("settlement attempt failed, backing off")

	if rs.failures >= s.retryBudget() && !rs.alerted {
		rs.alerted = true
		settleAlerts.Inc()
		log.Error().
			Bool("alert", true).
			Int("failures", rs.failures).
			Msg("settlement retry budget exhausted, operator attention required")
	}
}

// SweepOnce scans every business with unprocessed backlog and runs one
// settlement attempt per backlogged proposal. Retryable settlement errors
// are absorbed (the backoff schedule already recorded them); other errors
// abort the sweep.
func (s *SettlementService) SweepOnce(ctx context.Context) error {
	tr := otel.Tracer("services/SettlementService")
	ctx, span := tr.Start(ctx, "SweepOnce")
	defer span.End()

	businesses, err := repo.BusinessesWithBacklog(ctx, s.DB)
	if err != nil {
		return err
	}
	for _, biz := range businesses {
		proposals, err := repo.ProposalsWithBacklog(ctx, s.DB, biz)
		if err != nil {
			return err
		}
		for _, pid := range proposals {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := s.SettleProposal(ctx, biz, pid); err != nil {
				var se *SettlementError
				if errors.As(err, &se) || errors.Is(err, ErrNoContract) {
					continue
				}
				return err
			}
		}
	}
	return nil
}
