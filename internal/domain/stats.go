// Package domain defines the core models for the application. This file
// holds the derived (non-persisted) analytics types computed from the union
// of pending and committed vote data. They are JSON-serializable so the
// cache layer can round-trip them.
package domain

// VotingStats is the dashboard summary for one business. It is computed on
// demand and cached with a short TTL; it is never persisted.
type VotingStats struct {
	TotalProposals    int64  `json:"total_proposals"`
	TotalVotes        int64  `json:"total_votes"`
	PendingVotes      int64  `json:"pending_votes"`
	ActiveProposals   int64  `json:"active_proposals"`
	ParticipationRate string `json:"participation_rate"`
	// ContractAddress is empty when the business has no on-chain voting yet;
	// in that case all counts are sourced from local stores.
	ContractAddress string `json:"contract_address,omitempty"`
}

// VotingTrend buckets vote intake activity by calendar day over a date range.
// Keys of DailyActivity are "2006-01-02" dates.
type VotingTrend struct {
	From                  string           `json:"from"`
	To                    string           `json:"to"`
	DailyActivity         map[string]int64 `json:"daily_activity"`
	TotalActivityInPeriod int64            `json:"total_activity_in_period"`
}

// VotingProjection estimates near-term activity from the trend buckets.
// Direction is one of "increasing", "decreasing" or "stable".
type VotingProjection struct {
	NextWeekEstimate int64  `json:"next_week_estimate"`
	TrendDirection   string `json:"trend_direction"`
}

// VotingAnalytics composes the full analytics payload for a business.
// Projection and Recommendations are optional expansions.
type VotingAnalytics struct {
	BusinessID      string            `json:"business_id"`
	Stats           VotingStats       `json:"stats"`
	Trend           VotingTrend       `json:"trend"`
	Projection      *VotingProjection `json:"projection,omitempty"`
	Recommendations []string          `json:"recommendations,omitempty"`
}
