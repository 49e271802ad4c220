// Package repo implements the data persistence layer for the vote settlement
// core, backed by GORM. This file provides repository functions for the
// VotingRecord model: the local, append-only mirror of the committed ledger.
//
// Functions:
//
//   - AppendRecords(ctx, db, records) -> error
//     Atomic batch insert of ledger rows; rows are immutable afterwards.
//
//   - CommittedVoteIDs(ctx, db, voteIDs) -> set of already-committed IDs
//     Idempotency diff used before re-inserting a retried batch.
//
//   - CountForProposal / CountForBusiness: committed tallies.
//
//   - ListForBusiness(ctx, db, businessID, limit, offset, sortBy, sortOrder)
//     Paginated read of a business's ledger with whitelisted sort keys.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/brandvote/go-voting-backend/internal/domain"
)

// Sort keys accepted by ListForBusiness. Anything else falls back to
// SortByTimestamp so user input can never reach the ORDER BY clause raw.
const (
	SortByTimestamp = "timestamp"
	SortByProposal  = "proposal_id"
)

// AppendRecords inserts a batch of ledger rows in a single transaction.
// Either every record is inserted or none is. The caller is expected to have
// diffed out already-committed vote IDs (see CommittedVoteIDs); a residual
// unique-index violation on vote_id aborts the whole batch.
func AppendRecords(ctx context.Context, db *gorm.DB, records []domain.VotingRecord) error {
	if len(records) == 0 {
		return nil
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&records).Error
	})
}

// CommittedVoteIDs returns, out of the given vote IDs, the subset that is
// already present in the ledger. Used to keep retried batch submissions from
// recording a vote twice.
func CommittedVoteIDs(ctx context.Context, db *gorm.DB, voteIDs []string) (map[string]struct{}, error) {
	if len(voteIDs) == 0 {
		return map[string]struct{}{}, nil
	}
	var found []string
	err := db.WithContext(ctx).
		Model(&domain.VotingRecord{}).
		Where("vote_id IN ?", voteIDs).
		Pluck("vote_id", &found).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(found))
	for _, id := range found {
		out[id] = struct{}{}
	}
	return out, nil
}

// CountForProposal returns the number of committed votes for one proposal.
func CountForProposal(ctx context.Context, db *gorm.DB, businessID string, proposalID int64) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.VotingRecord{}).
		Where("business_id = ? AND proposal_id = ?", businessID, proposalID).
		Count(&n).Error
	return n, err
}

// CountForBusiness returns the total number of committed votes for a business.
func CountForBusiness(ctx context.Context, db *gorm.DB, businessID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.VotingRecord{}).
		Where("business_id = ?", businessID).
		Count(&n).Error
	return n, err
}

// DistinctProposals returns how many distinct proposals appear in the ledger
// for a business. Used as the local fallback for the contract's proposal
// counter when the chain gateway is unreachable.
func DistinctProposals(ctx context.Context, db *gorm.DB, businessID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.VotingRecord{}).
		Where("business_id = ?", businessID).
		Distinct("proposal_id").
		Count(&n).Error
	return n, err
}

// ListForBusiness returns a page of a business's committed votes. sortBy is
// whitelisted to SortByTimestamp or SortByProposal; sortOrder other than
// "asc" sorts descending. limit <= 0 means no limit.
func ListForBusiness(ctx context.Context, db *gorm.DB, businessID string, limit, offset int, sortBy, sortOrder string) ([]domain.VotingRecord, error) {
	col := "timestamp"
	if sortBy == SortByProposal {
		col = "proposal_id"
	}
	dir := "desc"
	if sortOrder == "asc" {
		dir = "asc"
	}

	q := db.WithContext(ctx).
		Where("business_id = ?", businessID).
		Order(col + " " + dir)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}

	var out []domain.VotingRecord
	err := q.Find(&out).Error
	return out, err
}
