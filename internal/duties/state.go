// Package duties implements the duty pipelines the scheduler runs every
// tick: rewards, distributor rewards, validator exits, cross-chain price
// sync, leverage force-exit, and vault LTV update.
package duties

import (
	"sort"
	"sync"

	"github.com/oracle-committee/keeper/internal/aggregator"
)

// AppState holds the process-wide soft rate-limit timestamps duties
// consult and mutate. Owned by the scheduler and lent to duties by
// reference — never a package-level singleton (spec §9 design note).
type AppState struct {
	mu sync.Mutex

	LastPriceUpdatedTimestamp int64
	ForceExitsUpdatedTimestamp int64
	LTVUpdatedTimestamp       int64
}

// LastPriceUpdated returns the stored timestamp, 0 meaning unset.
func (s *AppState) LastPriceUpdated() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastPriceUpdatedTimestamp
}

// SetLastPriceUpdated records a new price-sync timestamp.
func (s *AppState) SetLastPriceUpdated(ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastPriceUpdatedTimestamp = ts
}

// ClearLastPriceUpdated resets the waiting window (spec §4.9 step 3).
func (s *AppState) ClearLastPriceUpdated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastPriceUpdatedTimestamp = 0
}

// ForceExitsUpdated returns the timestamp of the last force-exit pass that
// reached its handlers, whether or not they reported errors.
func (s *AppState) ForceExitsUpdated() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ForceExitsUpdatedTimestamp
}

// SetForceExitsUpdated records a force-exit pass completion.
func (s *AppState) SetForceExitsUpdated(ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ForceExitsUpdatedTimestamp = ts
}

// LTVUpdated returns the last LTV-update pass timestamp.
func (s *AppState) LTVUpdated() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LTVUpdatedTimestamp
}

// SetLTVUpdated records an LTV-update pass completion.
func (s *AppState) SetLTVUpdated(ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LTVUpdatedTimestamp = ts
}

// DefaultCacheSize bounds the number of distinct update_timestamp buckets
// RewardsCache retains (spec §4.6, DEFAULT_CACHE_SIZE).
const DefaultCacheSize = 100

// RewardsCache buckets reward votes by update_timestamp so the rewards
// duty can catch up across ticks when oracles synchronize at slightly
// different paces (spec §4.6). Bounded to DefaultCacheSize buckets,
// oldest evicted.
type RewardsCache struct {
	mu      sync.Mutex
	buckets map[int64][]aggregator.Vote[RewardVoteBody]
	order   []int64 // insertion order of bucket keys, oldest first
}

// NewRewardsCache builds an empty cache.
func NewRewardsCache() *RewardsCache {
	return &RewardsCache{buckets: make(map[int64][]aggregator.Vote[RewardVoteBody])}
}

// Merge inserts votes into their update_timestamp buckets, deduping by
// (timestamp, vote) identity — an identical vote already present in its
// bucket is not re-added. Evicts the oldest bucket(s) if capacity is
// exceeded.
func (c *RewardsCache) Merge(votes []aggregator.Vote[RewardVoteBody]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, v := range votes {
		ts := v.Body.UpdateTimestamp
		existing, ok := c.buckets[ts]
		if !ok {
			c.order = append(c.order, ts)
		}
		if containsVote(existing, v) {
			continue
		}
		c.buckets[ts] = append(existing, v)
	}

	for len(c.order) > DefaultCacheSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.buckets, oldest)
	}
}

func containsVote(votes []aggregator.Vote[RewardVoteBody], v aggregator.Vote[RewardVoteBody]) bool {
	for _, existing := range votes {
		if existing.OracleAddress == v.OracleAddress && existing.Nonce == v.Nonce && existing.Body == v.Body {
			return true
		}
	}
	return false
}

// OrderedBuckets returns cached buckets in ascending update_timestamp
// order, the order the rewards duty scans them in.
func (c *RewardsCache) OrderedBuckets() [][]aggregator.Vote[RewardVoteBody] {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]int64, len(c.order))
	copy(keys, c.order)
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([][]aggregator.Vote[RewardVoteBody], 0, len(keys))
	for _, k := range keys {
		bucket := make([]aggregator.Vote[RewardVoteBody], len(c.buckets[k]))
		copy(bucket, c.buckets[k])
		out = append(out, bucket)
	}
	return out
}

// Clear empties the cache (spec §4.6: cleared after a submission attempt
// regardless of receipt status — see DESIGN.md open-question decision).
func (c *RewardsCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buckets = make(map[int64][]aggregator.Vote[RewardVoteBody])
	c.order = nil
}

// Size reports the number of buckets currently cached.
func (c *RewardsCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

