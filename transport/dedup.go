package transport

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rns-go/reticulum/identity"
)

// dedupSet is a bounded LRU of recently seen packet hashes with an explicit
// TTL, matching spec.md §4.2: "A bounded LRU of recent packet_hash values
// (size tuned to announce rate x TTL) drops replays across interfaces."
// The LRU bounds memory; the stored timestamp enforces the TTL independent
// of capacity-driven eviction, so a hash is only ever treated as "seen" for
// the configured window even under light load.
type dedupSet struct {
	cache *lru.Cache[[identity.HashLen]byte, time.Time]
	ttl   time.Duration
}

func newDedupSet(capacity int, ttl time.Duration) *dedupSet {
	cache, err := lru.New[[identity.HashLen]byte, time.Time](capacity)
	if err != nil {
		// capacity <= 0 is a programmer error; fall back to a sane minimum
		// rather than panicking a running engine.
		cache, _ = lru.New[[identity.HashLen]byte, time.Time](1)
	}
	return &dedupSet{cache: cache, ttl: ttl}
}

// seen reports whether hash was already recorded within its TTL, and records
// it if not. The dedup set never causes a distinct hash to be dropped as a
// replay (spec.md §8 invariant 5): each hash is keyed by its own value, so
// only a true repeat of the identical packet hash can collide.
func (d *dedupSet) seen(hash [identity.HashLen]byte, now time.Time) bool {
	if t, ok := d.cache.Get(hash); ok {
		if now.Sub(t) < d.ttl {
			return true
		}
	}
	d.cache.Add(hash, now)
	return false
}

// cull evicts entries past their TTL, bounding memory independent of traffic bursts.
func (d *dedupSet) cull(now time.Time) {
	for _, hash := range d.cache.Keys() {
		t, ok := d.cache.Peek(hash)
		if ok && now.Sub(t) >= d.ttl {
			d.cache.Remove(hash)
		}
	}
}
