// Package services – AnalyticsService
//
// This file implements AnalyticsService, which derives voting stats, trends,
// projections and recommendations from the union of pending and committed
// vote data. Contract-level counters from the chain gateway are the preferred
// source for proposal/vote totals; when the gateway call fails or no contract
// is deployed, the numbers degrade to local store counts. Pending counts
// always come from the local queue. Expensive aggregates go through the cache
// layer with short TTLs.
package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rs/zerolog"

	"github.com/brandvote/go-voting-backend/internal/cache"
	"github.com/brandvote/go-voting-backend/internal/chain"
	"github.com/brandvote/go-voting-backend/internal/domain"
	"github.com/brandvote/go-voting-backend/internal/repo"
)

// Trend directions.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// Recommendation texts, in the order the rules are checked. The order of
// checks is fixed; tests assert on content.
const (
	RecommendIncentives     = "Participation is below 25%. Consider incentives such as rewards or discounts to increase voter turnout."
	RecommendNewProposals   = "No voting activity in this period. Create new proposals to re-engage your audience."
	RecommendSettleOftener  = "Pending vote backlog is high. Run settlement more frequently to keep the on-chain ledger current."
	RecommendDeployContract = "No voting contract is deployed. Deploy one to commit votes to the blockchain."
)

// AnalyticsOptions controls GetAnalytics. Zero From/To default to the last
// 30 days. Projection and recommendations are included unless skipped.
type AnalyticsOptions struct {
	From                time.Time
	To                  time.Time
	SkipProjection      bool
	SkipRecommendations bool
}

// AnalyticsService computes dashboard and report queries over both stores,
// cache-first for the expensive aggregates.
type AnalyticsService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Gateway reads contract counters; may be nil (local-only deployments).
	Gateway chain.Gateway
	// Resolver maps a business to its deployed contract address.
	Resolver chain.ContractResolver
	// Cache is the best-effort analytics cache; may be nil in tests.
	Cache *cache.Cache
	// Log is the service logger.
	Log zerolog.Logger

	// BacklogThreshold is the pending-queue depth above which more frequent
	// settlement is recommended (default 50).
	BacklogThreshold int64
}

func (s *AnalyticsService) backlogThreshold() int64 {
	if s.BacklogThreshold > 0 {
		return s.BacklogThreshold
	}
	return 50
}

// GetStats returns the voting summary for a business. Contract counters are
// preferred when a contract is deployed; a gateway failure falls back to
// local counts (logged, not surfaced). PendingVotes always comes from the
// local queue.
func (s *AnalyticsService) GetStats(ctx context.Context, businessID string) (*domain.VotingStats, error) {
	tr := otel.Tracer("services/AnalyticsService")
	ctx, span := tr.Start(ctx, "GetStats",
		trace.WithAttributes(attribute.String("business.id", businessID)),
	)
	defer span.End()

	if strings.TrimSpace(businessID) == "" {
		return nil, ErrMissingBusinessID
	}

	if s.Cache != nil {
		var cached domain.VotingStats
		if s.Cache.Get(ctx, cache.DomainVotingStats, businessID, &cached) {
			return &cached, nil
		}
	}

	stats, err := s.computeStats(ctx, businessID)
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		s.Cache.Set(ctx, cache.DomainVotingStats, businessID, stats,
			cache.Tag(cache.DomainVotingStats, businessID))
	}
	return stats, nil
}

func (s *AnalyticsService) computeStats(ctx context.Context, businessID string) (*domain.VotingStats, error) {
	stats := &domain.VotingStats{}

	addr := ""
	if s.Resolver != nil {
		a, err := s.Resolver.ContractAddress(ctx, businessID)
		if err != nil {
			return nil, err
		}
		addr = a
	}
	stats.ContractAddress = addr

	fromContract := false
	if addr != "" && s.Gateway != nil {
		info, err := s.contractInfo(ctx, addr)
		if err != nil {
			s.Log.Warn().Err(err).Str("business_id", businessID).
				Msg("contract info unavailable, falling back to local counts")
		} else {
			stats.TotalProposals = info.TotalProposals
			stats.TotalVotes = info.TotalVotes
			stats.ActiveProposals = info.ActiveProposals
			fromContract = true
		}
	}

	if !fromContract {
		proposals, err := repo.DistinctProposals(ctx, s.DB, businessID)
		if err != nil {
			return nil, err
		}
		votes, err := repo.CountForBusiness(ctx, s.DB, businessID)
		if err != nil {
			return nil, err
		}
		active, err := repo.ProposalsWithBacklog(ctx, s.DB, businessID)
		if err != nil {
			return nil, err
		}
		stats.TotalProposals = proposals
		stats.TotalVotes = votes
		stats.ActiveProposals = int64(len(active))
	}

	pending, err := repo.CountUnprocessed(ctx, s.DB, businessID)
	if err != nil {
		return nil, err
	}
	stats.PendingVotes = pending
	stats.ParticipationRate = participationRate(stats.TotalVotes, stats.TotalProposals)
	return stats, nil
}

// contractInfo reads the contract counters through the 600s cache domain.
func (s *AnalyticsService) contractInfo(ctx context.Context, addr string) (*chain.ContractInfo, error) {
	if s.Cache != nil {
		var cached chain.ContractInfo
		if s.Cache.Get(ctx, cache.DomainContractInfo, addr, &cached) {
			return &cached, nil
		}
	}
	info, err := s.Gateway.GetContractInfo(ctx, addr)
	if err != nil {
		return nil, err
	}
	if s.Cache != nil {
		s.Cache.Set(ctx, cache.DomainContractInfo, addr, info)
	}
	return info, nil
}

// participationRate renders round(votes/proposals*100) as a percentage
// string, "0%" when there are no proposals.
func participationRate(votes, proposals int64) string {
	if proposals <= 0 {
		return "0%"
	}
	pct := math.Round(float64(votes) / float64(proposals) * 100)
	return fmt.Sprintf("%d%%", int64(pct))
}

// GetAnalytics composes stats, the daily activity trend for the requested
// range (default: last 30 days), and optionally a projection and rule-based
// recommendations. Only the default shape (zero range, nothing skipped) is
// cached, to keep cache-key cardinality bounded.
func (s *AnalyticsService) GetAnalytics(ctx context.Context, businessID string, opts AnalyticsOptions) (*domain.VotingAnalytics, error) {
	tr := otel.Tracer("services/AnalyticsService")
	ctx, span := tr.Start(ctx, "GetAnalytics",
		trace.WithAttributes(attribute.String("business.id", businessID)),
	)
	defer span.End()

	if strings.TrimSpace(businessID) == "" {
		return nil, ErrMissingBusinessID
	}

	cacheable := s.Cache != nil && opts.From.IsZero() && opts.To.IsZero() &&
		!opts.SkipProjection && !opts.SkipRecommendations
	if cacheable {
		var cached domain.VotingAnalytics
		if s.Cache.Get(ctx, cache.DomainVotingAnalytics, businessID, &cached) {
			return &cached, nil
		}
	}

	to := opts.To
	if to.IsZero() {
		to = time.Now().UTC()
	}
	from := opts.From
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}

	stats, err := s.computeStats(ctx, businessID)
	if err != nil {
		return nil, err
	}

	trend, daily, err := s.computeTrend(ctx, businessID, from, to)
	if err != nil {
		return nil, err
	}

	out := &domain.VotingAnalytics{
		BusinessID: businessID,
		Stats:      *stats,
		Trend:      *trend,
	}
	if !opts.SkipProjection {
		out.Projection = projectActivity(daily)
	}
	if !opts.SkipRecommendations {
		out.Recommendations = s.recommend(stats, trend)
	}

	if cacheable {
		s.Cache.Set(ctx, cache.DomainVotingAnalytics, businessID, out,
			cache.Tag(cache.DomainVotingAnalytics, businessID))
	}
	return out, nil
}

// computeTrend buckets vote intake by calendar day across [from, to],
// zero-filling days without activity. The returned slice holds the counts in
// chronological day order for the projection.
func (s *AnalyticsService) computeTrend(ctx context.Context, businessID string, from, to time.Time) (*domain.VotingTrend, []int64, error) {
	buckets, err := repo.DailyActivity(ctx, s.DB, businessID, from, to)
	if err != nil {
		return nil, nil, err
	}

	daily := make(map[string]int64)
	var total int64
	for day := from.UTC().Truncate(24 * time.Hour); !day.After(to); day = day.AddDate(0, 0, 1) {
		k := day.Format("2006-01-02")
		daily[k] = buckets[k]
		total += buckets[k]
	}

	keys := make([]string, 0, len(daily))
	for k := range daily {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([]int64, len(keys))
	for i, k := range keys {
		ordered[i] = daily[k]
	}

	return &domain.VotingTrend{
		From:                  from.UTC().Format("2006-01-02"),
		To:                    to.UTC().Format("2006-01-02"),
		DailyActivity:         daily,
		TotalActivityInPeriod: total,
	}, ordered, nil
}

// projectActivity estimates next week's intake and classifies the trend.
// The estimate is round(mean(daily) * 7); direction compares the mean of the
// most recent 7 buckets against the mean of the earliest 7: increasing above
// +10%, decreasing below -10%, stable otherwise.
func projectActivity(daily []int64) *domain.VotingProjection {
	p := &domain.VotingProjection{TrendDirection: TrendStable}
	if len(daily) == 0 {
		return p
	}

	var sum int64
	for _, n := range daily {
		sum += n
	}
	p.NextWeekEstimate = int64(math.Round(float64(sum) / float64(len(daily)) * 7))

	window := 7
	if len(daily) < window {
		window = len(daily)
	}
	early := mean(daily[:window])
	recent := mean(daily[len(daily)-window:])
	switch {
	case recent > early*1.1:
		p.TrendDirection = TrendIncreasing
	case recent < early*0.9:
		p.TrendDirection = TrendDecreasing
	}
	return p
}

func mean(xs []int64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum int64
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}

// recommend applies the rule set in fixed order. Each rule is independent;
// matching rules all contribute their recommendation.
func (s *AnalyticsService) recommend(stats *domain.VotingStats, trend *domain.VotingTrend) []string {
	var out []string

	if stats.TotalProposals > 0 {
		pct := float64(stats.TotalVotes) / float64(stats.TotalProposals) * 100
		if pct < 25 {
			out = append(out, RecommendIncentives)
		}
	}
	if trend.TotalActivityInPeriod == 0 {
		out = append(out, RecommendNewProposals)
	}
	if stats.PendingVotes > s.backlogThreshold() {
		out = append(out, RecommendSettleOftener)
	}
	if stats.ContractAddress == "" {
		out = append(out, RecommendDeployContract)
	}
	return out
}
