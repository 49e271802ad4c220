// Package chain defines the consumed contract of the external blockchain
// gateway: batched vote submission plus read access to contract counters and
// event logs. The gateway itself lives outside this codebase; this package
// only carries its call contract and the wrappers the settlement core needs
// (bounded timeouts, submission rate limiting).
package chain

import (
	"context"
	"time"
)

// BatchVote is one vote inside a batch submission. VoteID is the end-to-end
// idempotency key: a gateway seeing the same VoteID twice must not record the
// vote again.
type BatchVote struct {
	VoteID            string `json:"vote_id"`
	ProposalID        int64  `json:"proposal_id"`
	UserID            string `json:"user_id"`
	SelectedProductID string `json:"selected_product_id"`
}

// BatchReceipt is the single shared result for a whole batch submission.
// Every vote in the batch is committed under the same transaction hash.
// Partial acceptance is not modeled; a gateway that accepts only part of a
// batch must fail the whole call.
type BatchReceipt struct {
	TransactionHash string    `json:"transaction_hash"`
	BlockNumber     uint64    `json:"block_number,omitempty"`
	GasUsed         uint64    `json:"gas_used,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// ContractInfo carries the contract-level counters used as the preferred
// source for voting stats.
type ContractInfo struct {
	TotalProposals  int64 `json:"total_proposals"`
	TotalVotes      int64 `json:"total_votes"`
	ActiveProposals int64 `json:"active_proposals"`
}

// VoteEvent is one historical vote from the contract's event log. The ledger
// read path synthesizes records from these when the local mirror is empty.
type VoteEvent struct {
	Voter       string    `json:"voter"`
	ProposalID  int64     `json:"proposal_id"`
	TxHash      string    `json:"tx_hash"`
	BlockNumber uint64    `json:"block_number"`
	Timestamp   time.Time `json:"timestamp"`
}

// ProposalEvent is one proposal-creation event from the contract log.
type ProposalEvent struct {
	ProposalID  int64  `json:"proposal_id"`
	Description string `json:"description"`
	TxHash      string `json:"tx_hash"`
}

// Gateway is the consumed interface to the external chain. SubmitBatch is
// the only network-bound suspension point in the settlement path; callers
// must bound it with a context deadline and treat a timeout as a retryable
// failure, never as success.
type Gateway interface {
	SubmitBatch(ctx context.Context, contractAddress string, votes []BatchVote) (*BatchReceipt, error)
	GetContractInfo(ctx context.Context, contractAddress string) (*ContractInfo, error)
	GetVoteEvents(ctx context.Context, contractAddress string) ([]VoteEvent, error)
	GetProposalEvents(ctx context.Context, contractAddress string) ([]ProposalEvent, error)
}

// ContractResolver resolves a business's deployed voting contract address.
// An empty address with a nil error means the business has no on-chain
// voting yet; stats then degrade to local-only counts.
type ContractResolver interface {
	ContractAddress(ctx context.Context, businessID string) (string, error)
}

// ContractResolverFunc adapts a function to the ContractResolver interface.
type ContractResolverFunc func(ctx context.Context, businessID string) (string, error)

// ContractAddress implements ContractResolver.
func (f ContractResolverFunc) ContractAddress(ctx context.Context, businessID string) (string, error) {
	return f(ctx, businessID)
}
