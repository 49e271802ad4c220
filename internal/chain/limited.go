package chain

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// LimitedGateway decorates a Gateway with a bounded per-call timeout and a
// token-bucket limiter on batch submission. The external ledger enforces
// ordering/nonce semantics per contract, so submissions are additionally
// throttled to keep the node RPC within its accepted rate.
type LimitedGateway struct {
	next    Gateway
	limiter *rate.Limiter
	timeout time.Duration
}

// NewLimitedGateway wraps next. rps <= 0 disables throttling; timeout <= 0
// disables the per-call deadline (the caller's context still applies).
func NewLimitedGateway(next Gateway, rps float64, burst int, timeout time.Duration) *LimitedGateway {
	var lim *rate.Limiter
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &LimitedGateway{next: next, limiter: lim, timeout: timeout}
}

func (g *LimitedGateway) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.timeout)
}

// SubmitBatch waits for a limiter token, then forwards the call under the
// configured deadline. A deadline expiry surfaces as the context error; the
// settlement processor treats it as a retryable failure since the outcome on
// chain is unknown.
func (g *LimitedGateway) SubmitBatch(ctx context.Context, contractAddress string, votes []BatchVote) (*BatchReceipt, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return g.next.SubmitBatch(ctx, contractAddress, votes)
}

// GetContractInfo forwards the call under the configured deadline.
func (g *LimitedGateway) GetContractInfo(ctx context.Context, contractAddress string) (*ContractInfo, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return g.next.GetContractInfo(ctx, contractAddress)
}

// GetVoteEvents forwards the call under the configured deadline.
func (g *LimitedGateway) GetVoteEvents(ctx context.Context, contractAddress string) ([]VoteEvent, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return g.next.GetVoteEvents(ctx, contractAddress)
}

// GetProposalEvents forwards the call under the configured deadline.
func (g *LimitedGateway) GetProposalEvents(ctx context.Context, contractAddress string) ([]ProposalEvent, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return g.next.GetProposalEvents(ctx, contractAddress)
}
