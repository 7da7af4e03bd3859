package moderation

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"

	"github.com/armorybot/armory/internal/cache"
)

// Cache tags grouping the derived moderation aggregates. A mutation
// invalidates by tag, so it never has to know every derived key.
const (
	TagStats  cache.Tag = "stats"
	TagCounts cache.Tag = "counts"
	TagTops   cache.Tag = "tops"
)

const (
	// statsTTL is the default staleness tolerance of dashboard aggregates.
	// Minutes, not seconds: dashboards tolerate more staleness than
	// access control does.
	statsTTL = 5 * time.Minute

	// profileTTL bounds the batch user-profile lookups.
	profileTTL = 15 * time.Minute

	statsKey = "stats"

	statsCacheCapacity = 256
	usersCacheCapacity = 2048
)

// StatsCache is a read-through cache over the expensive moderation
// aggregate queries. Every accessor takes a force flag so the dashboard's
// refresh button can bypass TTL without waiting for expiry.
type StatsCache struct {
	store Store
	ttl   time.Duration

	stats   *cache.Cache[StatsSnapshot]
	weapons *cache.Cache[[]WeaponCount]
	users   *cache.Cache[[]ContributorCount]
	counts  *cache.Cache[int]
	batches *cache.Cache[[]UserProfile]
}

// NewStatsCache creates a StatsCache over the given store.
// A non-positive ttl falls back to the 5 minute default.
func NewStatsCache(store Store, ttl time.Duration) *StatsCache {
	ttl = lang.Check(ttl, statsTTL)
	return &StatsCache{
		store:   store,
		ttl:     ttl,
		stats:   cache.New[StatsSnapshot](statsCacheCapacity, ttl),
		weapons: cache.New[[]WeaponCount](statsCacheCapacity, ttl),
		users:   cache.New[[]ContributorCount](statsCacheCapacity, ttl),
		counts:  cache.New[int](statsCacheCapacity, ttl),
		batches: cache.New[[]UserProfile](usersCacheCapacity, profileTTL),
	}
}

// Stats returns the aggregate dashboard snapshot.
func (c *StatsCache) Stats(ctx context.Context, force bool) (StatsSnapshot, error) {
	if !force {
		if snap, ok := c.stats.Get(statsKey); ok {
			return snap, nil
		}
	}

	snap, err := c.store.QueryStats(ctx)
	if err != nil {
		return StatsSnapshot{}, errm.Wrap(err, "query stats")
	}

	c.stats.SetTagged(statsKey, snap, c.ttl, TagStats)
	return snap, nil
}

// TopWeapons returns the most submitted weapons ranking.
func (c *StatsCache) TopWeapons(ctx context.Context, limit int, force bool) ([]WeaponCount, error) {
	key := fmt.Sprintf("top_weapons_%d", limit)
	if !force {
		if top, ok := c.weapons.Get(key); ok {
			return top, nil
		}
	}

	top, err := c.store.QueryTopWeapons(ctx, limit)
	if err != nil {
		return nil, errm.Wrap(err, "query top weapons")
	}

	c.weapons.SetTagged(key, top, c.ttl, TagTops)
	return top, nil
}

// TopUsers returns the most approved contributors ranking.
func (c *StatsCache) TopUsers(ctx context.Context, limit int, force bool) ([]ContributorCount, error) {
	key := fmt.Sprintf("top_users_%d", limit)
	if !force {
		if top, ok := c.users.Get(key); ok {
			return top, nil
		}
	}

	top, err := c.store.QueryTopUsers(ctx, limit)
	if err != nil {
		return nil, errm.Wrap(err, "query top users")
	}

	c.users.SetTagged(key, top, c.ttl, TagTops)
	return top, nil
}

// CountByStatus returns the number of submissions in the given status.
func (c *StatsCache) CountByStatus(ctx context.Context, status Status, force bool) (int, error) {
	key := "count_" + status.String()
	if !force {
		if count, ok := c.counts.Get(key); ok {
			return count, nil
		}
	}

	count, err := c.store.CountByStatus(ctx, status)
	if err != nil {
		return 0, errm.Wrap(err, "count by status", "status", status)
	}

	c.counts.SetTagged(key, count, c.ttl, TagCounts)
	return count, nil
}

// UsersBatch returns profiles for the given user ids in one store round
// trip, cached under a key derived from the id set.
func (c *StatsCache) UsersBatch(ctx context.Context, userIDs []int64) ([]UserProfile, error) {
	key := usersBatchKey(userIDs)
	if profiles, ok := c.batches.Get(key); ok {
		return profiles, nil
	}

	profiles, err := c.store.GetUsersBatch(ctx, userIDs)
	if err != nil {
		return nil, errm.Wrap(err, "get users batch")
	}

	// Each batch is registered under a tag per member id, so a change to
	// one user drops exactly the batches that contain that user.
	tags := make([]cache.Tag, 0, len(userIDs))
	for _, id := range userIDs {
		tags = append(tags, userTag(id))
	}
	c.batches.SetTagged(key, profiles, profileTTL, tags...)
	return profiles, nil
}

// InvalidateTags drops every derived aggregate registered under the given
// tags across all key families.
func (c *StatsCache) InvalidateTags(tags ...cache.Tag) {
	for _, tag := range tags {
		c.stats.InvalidateTag(tag)
		c.weapons.InvalidateTag(tag)
		c.users.InvalidateTag(tag)
		c.counts.InvalidateTag(tag)
	}
}

// InvalidateUser drops every cached profile batch containing the user.
func (c *StatsCache) InvalidateUser(userID int64) {
	c.batches.InvalidateTag(userTag(userID))
}

// CacheStats returns diagnostic counters per key family.
func (c *StatsCache) CacheStats() map[string]cache.Stats {
	return map[string]cache.Stats{
		"stats":        c.stats.Stats(),
		"top_weapons":  c.weapons.Stats(),
		"top_users":    c.users.Stats(),
		"counts":       c.counts.Stats(),
		"user_batches": c.batches.Stats(),
	}
}

func usersBatchKey(userIDs []int64) string {
	ids := slices.Clone(userIDs)
	slices.Sort(ids)

	var b strings.Builder
	b.WriteString("users")
	for _, id := range ids {
		fmt.Fprintf(&b, "_%d", id)
	}
	return b.String()
}

func userTag(userID int64) cache.Tag {
	return cache.Tag(fmt.Sprintf("user_%d", userID))
}
