// Package repo implements the data persistence layer for the vote settlement
// core, backed by GORM. This file provides repository functions for the
// PendingVote model: the durable queue of votes awaiting settlement.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - EnqueuePendingVote returns ErrDuplicate when an unprocessed vote already
//     exists for the same (business, proposal, user) triple. This is the sole
//     admission-control gate preventing double voting pre-settlement.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - EnqueuePendingVote(ctx, db, vote) -> voteID, error
//     Admits a vote to the pending queue, rejecting duplicates.
//
//   - ListUnprocessed(ctx, db, f, limit, offset) -> []domain.PendingVote
//     Returns unprocessed votes for a business (optionally narrowed to a
//     proposal and/or user), ordered by creation time ascending so that
//     settlement batches drain oldest-first.
//
//   - MarkProcessed(ctx, db, voteIDs) -> count
//     Flips unprocessed rows to processed; returns the rows affected.
//
//   - CountUnprocessed / CountEnqueued: queue depth and all-time intake.
//
//   - DailyActivity(ctx, db, businessID, from, to) -> day -> count
//     Buckets vote intake by calendar day for trend analysis.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/brandvote/go-voting-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that an unprocessed pending vote already exists for
// the same (business_id, proposal_id, user_id) triple.
var ErrDuplicate = errors.New("duplicate pending vote")

// PendingFilter narrows pending-vote queries. BusinessID is required;
// ProposalID and UserID are applied only when set.
type PendingFilter struct {
	BusinessID string
	ProposalID *int64
	UserID     string
}

// EnqueuePendingVote admits a vote to the pending queue. It runs inside a
// transaction: the duplicate check and the insert are atomic, so two
// concurrent enqueues for the same triple cannot both succeed.
//
// The vote's ID must already be set (a UUID generated by the caller); it is
// the idempotency key carried end-to-end through chain submission. Returns
// the vote ID on success or ErrDuplicate when an unprocessed row exists for
// the same (business, proposal, user).
func EnqueuePendingVote(ctx context.Context, db *gorm.DB, v *domain.PendingVote) (string, error) {
	if v.Status == "" {
		v.Status = domain.StatusUnprocessed
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		err := tx.Model(&domain.PendingVote{}).
			Where("business_id = ? AND proposal_id = ? AND user_id = ? AND status = ?",
				v.BusinessID, v.ProposalID, v.UserID, domain.StatusUnprocessed).
			Count(&n).Error
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicate
		}
		if err := tx.Create(v).Error; err != nil {
			// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
			low := strings.ToLower(err.Error())
			if errors.Is(err, gorm.ErrDuplicatedKey) ||
				strings.Contains(low, "unique constraint failed") ||
				strings.Contains(low, "constraint failed: unique") {
				return ErrDuplicate
			}
			return err
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return v.ID, nil
}

// ListUnprocessed returns unprocessed pending votes matching the filter,
// ordered by creation time ascending (oldest-first fairness for settlement).
// limit <= 0 means no limit. On DB error, it returns the error.
func ListUnprocessed(ctx context.Context, db *gorm.DB, f PendingFilter, limit, offset int) ([]domain.PendingVote, error) {
	q := db.WithContext(ctx).
		Where("business_id = ? AND status = ?", f.BusinessID, domain.StatusUnprocessed)
	if f.ProposalID != nil {
		q = q.Where("proposal_id = ?", *f.ProposalID)
	}
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}

	var out []domain.PendingVote
	err := q.Order("created_at asc").Find(&out).Error
	return out, err
}

// MarkProcessed flips the given votes from unprocessed to processed and
// returns the number of rows affected. Votes already processed (or unknown
// IDs) are skipped silently, which keeps the operation idempotent on retry.
func MarkProcessed(ctx context.Context, db *gorm.DB, voteIDs []string) (int64, error) {
	if len(voteIDs) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Model(&domain.PendingVote{}).
		Where("id IN ? AND status = ?", voteIDs, domain.StatusUnprocessed).
		Update("status", domain.StatusProcessed)
	return res.RowsAffected, res.Error
}

// CountUnprocessed returns the current pending-queue depth for a business.
func CountUnprocessed(ctx context.Context, db *gorm.DB, businessID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.PendingVote{}).
		Where("business_id = ? AND status = ?", businessID, domain.StatusUnprocessed).
		Count(&n).Error
	return n, err
}

// CountEnqueued returns the all-time number of votes admitted for a business,
// regardless of status. Together with CountUnprocessed and the ledger count
// this supports the conservation check: no vote is lost or double-counted.
func CountEnqueued(ctx context.Context, db *gorm.DB, businessID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.PendingVote{}).
		Where("business_id = ?", businessID).
		Count(&n).Error
	return n, err
}

// ProposalsWithBacklog returns the distinct proposal IDs that currently have
// unprocessed votes for a business, in ascending order. The settlement sweep
// uses this to decide which proposals need a drain cycle.
func ProposalsWithBacklog(ctx context.Context, db *gorm.DB, businessID string) ([]int64, error) {
	var out []int64
	err := db.WithContext(ctx).
		Model(&domain.PendingVote{}).
		Where("business_id = ? AND status = ?", businessID, domain.StatusUnprocessed).
		Distinct("proposal_id").
		Order("proposal_id asc").
		Pluck("proposal_id", &out).Error
	return out, err
}

// BusinessesWithBacklog returns the distinct business IDs that currently have
// unprocessed votes, for the periodic settlement sweep.
func BusinessesWithBacklog(ctx context.Context, db *gorm.DB) ([]string, error) {
	var out []string
	err := db.WithContext(ctx).
		Model(&domain.PendingVote{}).
		Where("status = ?", domain.StatusUnprocessed).
		Distinct("business_id").
		Order("business_id asc").
		Pluck("business_id", &out).Error
	return out, err
}

// DailyActivity buckets pending-vote creation timestamps by calendar day
// (UTC, "2006-01-02" keys) within [from, to). Days without activity are
// absent from the map; callers fill gaps as needed.
func DailyActivity(ctx context.Context, db *gorm.DB, businessID string, from, to time.Time) (map[string]int64, error) {
	var rows []domain.PendingVote
	err := db.WithContext(ctx).
		Select("created_at").
		Where("business_id = ? AND created_at >= ? AND created_at < ?", businessID, from, to).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	// Bucket in Go rather than SQL so the date math stays driver-agnostic.
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.CreatedAt.UTC().Format("2006-01-02")]++
	}
	return out, nil
}
