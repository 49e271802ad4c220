package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLTable(t *testing.T) {
	assert.Equal(t, 180*time.Second, TTL(DomainVotingStats))
	assert.Equal(t, 300*time.Second, TTL(DomainVotingAnalytics))
	assert.Equal(t, 180*time.Second, TTL(DomainBusinessVotes))
	assert.Equal(t, 300*time.Second, TTL(DomainBusinessProposals))
	assert.Equal(t, 60*time.Second, TTL(DomainPendingVotes))
	assert.Equal(t, 600*time.Second, TTL(DomainContractInfo))

	// Unknown domains fall back to the default.
	assert.Equal(t, DefaultTTL, TTL("nonexistent"))
}

func TestTag(t *testing.T) {
	assert.Equal(t, "voting-stats:B1", Tag(DomainVotingStats, "B1"))
}

func TestVoteWriteTags(t *testing.T) {
	tags := VoteWriteTags("B1")
	assert.Equal(t, []string{
		"voting-analytics:B1",
		"voting-stats:B1",
		"business-votes:B1",
		"pending-votes:B1",
		"business-proposals:B1",
	}, tags)
}
