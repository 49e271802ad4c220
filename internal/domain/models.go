// Package domain defines the persistence models for the vote settlement
// core: pending votes awaiting on-chain commitment and the committed voting
// ledger mirroring the chain. These types are mapped with GORM and are shared
// across the repository and service layers.
package domain

import "time"

// Vote lifecycle statuses. A pending vote is created unprocessed and becomes
// processed only once a matching ledger record exists.
const (
	StatusUnprocessed = "unprocessed"
	StatusProcessed   = "processed"
)

// PendingVote represents a vote admitted off-chain and queued for batched
// settlement. The row is never deleted before its VotingRecord exists.
//
// Fields:
//   - ID: globally unique vote ID (UUID, char(36)); doubles as the
//     idempotency key carried through chain submission.
//   - BusinessID / ProposalID / UserID: the voting triple. At most one
//     unprocessed row may exist per triple (enforced at enqueue time).
//   - SelectedProductID: the product the user voted for.
//   - ProductName / ProductImageURL / SelectionReason: optional display
//     metadata captured at intake.
//   - Status: "unprocessed" or "processed" (enforced by DB constraint).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM; CreatedAt orders
//     settlement batches oldest-first.
type PendingVote struct {
	ID                string    `json:"vote_id"    gorm:"type:char(36);primaryKey"`
	BusinessID        string    `json:"business_id" gorm:"type:varchar(64);not null;index:idx_pending_triple,priority:1"`
	ProposalID        int64     `json:"proposal_id" gorm:"not null;index:idx_pending_triple,priority:2"`
	UserID            string    `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_pending_triple,priority:3"`
	SelectedProductID string    `json:"selected_product_id" gorm:"type:varchar(64);not null"`
	ProductName       string    `json:"product_name,omitempty" gorm:"type:varchar(255)"`
	ProductImageURL   string    `json:"product_image_url,omitempty" gorm:"type:text"`
	SelectionReason   string    `json:"selection_reason,omitempty" gorm:"type:text"`
	Status            string    `json:"status"     gorm:"type:varchar(16);not null;default:'unprocessed';index;check:status IN ('unprocessed','processed')"`
	CreatedAt         time.Time `json:"created_at" gorm:"index"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName returns the database table name for PendingVote.
func (PendingVote) TableName() string { return "pending_votes" }

// VotingRecord is one row of the committed ledger: the local mirror of a vote
// settled on the external chain. Rows are append-only and immutable after
// creation; every record traces back to exactly one settled PendingVote (or
// an on-chain event absorbed during reconciliation).
//
// Fields:
//   - ID: UUID primary key.
//   - VoteID: the settled pending vote's ID; unique so a retried batch can
//     never commit the same vote twice.
//   - VoterRef: voter address (on-chain records) or user ID (local records).
//   - TransactionHash: shared by every record of one batch submission.
//   - BlockNumber / GasUsed: optional chain metadata from the receipt.
//   - Timestamp: submission time reported by the gateway.
type VotingRecord struct {
	ID                string    `json:"id"          gorm:"type:char(36);primaryKey"`
	BusinessID        string    `json:"business_id" gorm:"type:varchar(64);not null;index"`
	ProposalID        int64     `json:"proposal_id" gorm:"not null;index"`
	VoteID            string    `json:"vote_id"     gorm:"type:char(36);not null;uniqueIndex:ux_ledger_vote"`
	VoterRef          string    `json:"voter_ref"   gorm:"type:varchar(128);not null"`
	SelectedProductID string    `json:"selected_product_id" gorm:"type:varchar(64);not null"`
	ProductName       string    `json:"product_name,omitempty" gorm:"type:varchar(255)"`
	TransactionHash   string    `json:"transaction_hash" gorm:"type:varchar(128);not null;index"`
	BlockNumber       uint64    `json:"block_number,omitempty"`
	GasUsed           uint64    `json:"gas_used,omitempty"`
	Timestamp         time.Time `json:"timestamp"   gorm:"index"`
	CreatedAt         time.Time `json:"created_at"`
}

// TableName returns the database table name for VotingRecord.
func (VotingRecord) TableName() string { return "voting_records" }
