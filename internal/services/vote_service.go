// Package services – VoteService
//
// This file implements VoteService, the intake and read side of the vote
// pipeline. Cast admits a vote to the pending queue (the sole admission gate
// against double voting before settlement) and invalidates the affected
// cache tags. The listing methods are cache-first for the default first-page
// shape only; arbitrary pagination bypasses the cache to keep key cardinality
// bounded. When the local ledger is empty, the committed-vote read path falls
// back to the chain gateway's event log and synthesizes records for read
// purposes only.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// business/proposal identifiers and pagination parameters where applicable.
package services

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/brandvote/go-voting-backend/internal/cache"
	"github.com/brandvote/go-voting-backend/internal/chain"
	"github.com/brandvote/go-voting-backend/internal/domain"
	"github.com/brandvote/go-voting-backend/internal/repo"
)

// DefaultPageSize is the page size served by the cached "first page" shape
// of the listing queries.
const DefaultPageSize = 20

// CastVoteInput carries one vote intake request.
type CastVoteInput struct {
	BusinessID        string
	ProposalID        int64
	UserID            string
	SelectedProductID string
	ProductName       string
	ProductImageURL   string
	SelectionReason   string
}

// VoteService owns vote intake and the read paths over the pending queue and
// committed ledger.
type VoteService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Cache is the best-effort analytics cache; it may be nil in tests.
	Cache *cache.Cache
	// Gateway reads the contract event log for the empty-ledger fallback.
	Gateway chain.Gateway
	// Resolver maps a business to its deployed contract address, if any.
	Resolver chain.ContractResolver
}

// Cast validates and admits a vote to the pending queue. The generated vote
// ID (a UUID) is returned with the persisted row; it is the idempotency key
// for the whole settlement path.
//
// Errors: ErrMissingBusinessID / ErrMissingProposalID / ErrMissingUserID /
// ErrMissingProductID on invalid input; ErrDuplicateVote when the user
// already has an unprocessed vote for this proposal.
func (s *VoteService) Cast(ctx context.Context, in CastVoteInput) (*domain.PendingVote, error) {
	tr := otel.Tracer("services/VoteService")
	ctx, span := tr.Start(ctx, "Cast",
		trace.WithAttributes(
			attribute.String("business.id", in.BusinessID),
			attribute.Int64("proposal.id", in.ProposalID),
			attribute.String("user.id", in.UserID),
		),
	)
	defer span.End()

	if strings.TrimSpace(in.BusinessID) == "" {
		return nil, ErrMissingBusinessID
	}
	if in.ProposalID <= 0 {
		return nil, ErrMissingProposalID
	}
	if strings.TrimSpace(in.UserID) == "" {
		return nil, ErrMissingUserID
	}
	if strings.TrimSpace(in.SelectedProductID) == "" {
		return nil, ErrMissingProductID
	}

	v := &domain.PendingVote{
		ID:                uuid.NewString(),
		BusinessID:        in.BusinessID,
		ProposalID:        in.ProposalID,
		UserID:            in.UserID,
		SelectedProductID: in.SelectedProductID,
		ProductName:       in.ProductName,
		ProductImageURL:   in.ProductImageURL,
		SelectionReason:   in.SelectionReason,
		Status:            domain.StatusUnprocessed,
	}
	if _, err := repo.EnqueuePendingVote(ctx, s.DB, v); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicateVote
		}
		return nil, err
	}

	// Cached stats and analytics embed the pending count, so every vote
	// write drops the whole tag set for the business.
	if s.Cache != nil {
		s.Cache.InvalidateByTags(ctx, cache.VoteWriteTags(in.BusinessID)...)
	}
	return v, nil
}

// ListPending returns unprocessed votes for a business, optionally narrowed
// to a proposal. Only the default first-page shape (limit DefaultPageSize,
// offset 0, no proposal filter) is cached.
func (s *VoteService) ListPending(ctx context.Context, businessID string, proposalID *int64, limit, offset int) ([]domain.PendingVote, error) {
	tr := otel.Tracer("services/VoteService")
	ctx, span := tr.Start(ctx, "ListPending",
		trace.WithAttributes(
			attribute.String("business.id", businessID),
			attribute.Int("limit", limit),
			attribute.Int("offset", offset),
		),
	)
	defer span.End()

	if strings.TrimSpace(businessID) == "" {
		return nil, ErrMissingBusinessID
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	cacheable := s.Cache != nil && proposalID == nil && limit == DefaultPageSize && offset == 0
	if cacheable {
		var cached []domain.PendingVote
		if s.Cache.Get(ctx, cache.DomainPendingVotes, businessID, &cached) {
			return cached, nil
		}
	}

	out, err := repo.ListUnprocessed(ctx, s.DB, repo.PendingFilter{BusinessID: businessID, ProposalID: proposalID}, limit, offset)
	if err != nil {
		return nil, err
	}
	if cacheable {
		s.Cache.Set(ctx, cache.DomainPendingVotes, businessID, out,
			cache.Tag(cache.DomainPendingVotes, businessID))
	}
	return out, nil
}

// ListBusinessVotes returns a page of a business's committed votes, sorted by
// submission timestamp or proposal ID. When the local ledger has no rows for
// the business (fresh deployment), the contract's vote event log is read
// through the gateway and equivalent records are synthesized for the response;
// nothing is persisted on that path. Only the default shape (first page,
// DefaultPageSize, timestamp descending) is cached.
func (s *VoteService) ListBusinessVotes(ctx context.Context, businessID string, limit, offset int, sortBy, sortOrder string) ([]domain.VotingRecord, error) {
	tr := otel.Tracer("services/VoteService")
	ctx, span := tr.Start(ctx, "ListBusinessVotes",
		trace.WithAttributes(
			attribute.String("business.id", businessID),
			attribute.Int("limit", limit),
			attribute.Int("offset", offset),
			attribute.String("sort.by", sortBy),
		),
	)
	defer span.End()

	if strings.TrimSpace(businessID) == "" {
		return nil, ErrMissingBusinessID
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if sortBy == "" {
		sortBy = repo.SortByTimestamp
	}
	if sortOrder == "" {
		sortOrder = "desc"
	}

	cacheable := s.Cache != nil && limit == DefaultPageSize && offset == 0 &&
		sortBy == repo.SortByTimestamp && sortOrder == "desc"
	if cacheable {
		var cached []domain.VotingRecord
		if s.Cache.Get(ctx, cache.DomainBusinessVotes, businessID, &cached) {
			return cached, nil
		}
	}

	total, err := repo.CountForBusiness(ctx, s.DB, businessID)
	if err != nil {
		return nil, err
	}

	var out []domain.VotingRecord
	if total == 0 {
		out, err = s.votesFromEventLog(ctx, businessID, limit, offset)
	} else {
		out, err = repo.ListForBusiness(ctx, s.DB, businessID, limit, offset, sortBy, sortOrder)
	}
	if err != nil {
		return nil, err
	}

	if cacheable {
		s.Cache.Set(ctx, cache.DomainBusinessVotes, businessID, out,
			cache.Tag(cache.DomainBusinessVotes, businessID))
	}
	return out, nil
}

// votesFromEventLog synthesizes read-only ledger records from the contract's
// vote events. Returns an empty slice when no contract is deployed.
func (s *VoteService) votesFromEventLog(ctx context.Context, businessID string, limit, offset int) ([]domain.VotingRecord, error) {
	if s.Gateway == nil || s.Resolver == nil {
		return []domain.VotingRecord{}, nil
	}
	addr, err := s.Resolver.ContractAddress(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if addr == "" {
		return []domain.VotingRecord{}, nil
	}

	events, err := s.Gateway.GetVoteEvents(ctx, addr)
	if err != nil {
		return nil, err
	}

	out := make([]domain.VotingRecord, 0, len(events))
	for _, ev := range events {
		out = append(out, domain.VotingRecord{
			ID:              "event-" + ev.TxHash + "-" + strconv.FormatInt(ev.ProposalID, 10),
			BusinessID:      businessID,
			ProposalID:      ev.ProposalID,
			VoterRef:        ev.Voter,
			TransactionHash: ev.TxHash,
			BlockNumber:     ev.BlockNumber,
			Timestamp:       ev.Timestamp,
		})
	}
	if offset >= len(out) {
		return []domain.VotingRecord{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
