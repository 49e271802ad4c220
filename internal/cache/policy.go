// Package cache implements the TTL-keyed, tag-invalidated read cache sitting
// in front of the stats/analytics/listing queries. The backing store is Redis;
// every failure of the backing store is non-fatal: reads fall through to the
// authoritative stores, writes are logged and dropped.
//
// This file is the policy table: cache domains, their TTLs, and the tag sets
// write paths invalidate. It is plain data so it can be unit-tested
// independently of the store logic.
package cache

import (
	"fmt"
	"time"
)

// Cache domains. A full cache key is "cache:{domain}:{key}".
const (
	DomainVotingStats       = "voting-stats"
	DomainVotingAnalytics   = "voting-analytics"
	DomainBusinessVotes     = "business-votes"
	DomainBusinessProposals = "business-proposals"
	DomainPendingVotes      = "pending-votes"
	DomainContractInfo      = "contract-info"
)

// TTLs per domain. Unknown domains fall back to DefaultTTL.
var ttls = map[string]time.Duration{
	DomainVotingStats:       180 * time.Second,
	DomainVotingAnalytics:   300 * time.Second,
	DomainBusinessVotes:     180 * time.Second,
	DomainBusinessProposals: 300 * time.Second,
	DomainPendingVotes:      60 * time.Second,
	DomainContractInfo:      600 * time.Second,
}

// DefaultTTL applies to domains missing from the policy table.
const DefaultTTL = 60 * time.Second

// TTL returns the configured time-to-live for a domain.
func TTL(domain string) time.Duration {
	if d, ok := ttls[domain]; ok {
		return d
	}
	return DefaultTTL
}

// Tag returns the invalidation tag scoping a domain to one business,
// e.g. "voting-stats:B1".
func Tag(domain, businessID string) string {
	return fmt.Sprintf("%s:%s", domain, businessID)
}

// VoteWriteTags is the tag set every vote write path (enqueue, settlement
// commit) invalidates for the affected business.
func VoteWriteTags(businessID string) []string {
	return []string{
		Tag(DomainVotingAnalytics, businessID),
		Tag(DomainVotingStats, businessID),
		Tag(DomainBusinessVotes, businessID),
		Tag(DomainPendingVotes, businessID),
		Tag(DomainBusinessProposals, businessID),
	}
}
