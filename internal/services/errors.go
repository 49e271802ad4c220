// Package services defines the business logic for vote intake, batch
// settlement, and analytics. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or transport status codes should be performed by
// whatever outer layer consumes these services.
package services

import (
	"errors"
	"fmt"
)

// Validation errors. Deterministic, returned synchronously, never retried.
var (
	// ErrMissingBusinessID is returned when an operation lacks a business ID.
	ErrMissingBusinessID = errors.New("business id is required")

	// ErrMissingProposalID is returned when a vote lacks a proposal ID.
	ErrMissingProposalID = errors.New("proposal id is required")

	// ErrMissingUserID is returned when a vote lacks a user ID.
	ErrMissingUserID = errors.New("user id is required")

	// ErrMissingProductID is returned when a vote lacks a product selection.
	ErrMissingProductID = errors.New("selected product id is required")

	// ErrDuplicateVote is returned when the user already has an unprocessed
	// vote for the same proposal. A user may not double-vote while a prior
	// vote is unsettled.
	ErrDuplicateVote = errors.New("duplicate vote for this proposal")

	// ErrNoContract indicates the business has no deployed voting contract
	// and the operation requires one.
	ErrNoContract = errors.New("no voting contract deployed for business")
)

// SettlementError wraps a retryable failure of a settlement attempt: gateway
// timeout, network failure, or contract revert. Pending votes are left
// untouched; the processor's retry loop handles it and only a degraded health
// signal surfaces, never a per-vote failure.
type SettlementError struct {
	BusinessID string
	ProposalID int64
	Op         string
	Err        error
}

// Error implements the error interface.
func (e *SettlementError) Error() string {
	return fmt.Sprintf("settlement %s failed for business %s proposal %d: %v",
		e.Op, e.BusinessID, e.ProposalID, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *SettlementError) Unwrap() error { return e.Err }
