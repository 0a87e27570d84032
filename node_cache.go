package hstore

import lru "github.com/hashicorp/golang-lru"

// NodeCache caches materialized Values by their content address. It is
// also used as an existence proof to avoid re-storing blocks whose
// hash has already been persisted, so care should be taken to
// switch/invalidate the cache when the Persist is changed.
type NodeCache interface {
	// Add records the Value materialized for a freshly-persisted or
	// freshly-read block.
	Add(key, value interface{})
	// Contains indicates the block with the given hash has already
	// been persisted.
	Contains(key interface{}) bool
	// Get retrieves the already-materialized Value with the given
	// hash, if cached.
	Get(key interface{}) (value interface{}, ok bool)
}

// NewNodeCache creates a new LRU-based cache of the given size. One
// cache can be shared by any number of object stores backed by the
// same Persist.
func NewNodeCache(size int) NodeCache {
	cache, err := lru.NewARC(size)
	if err != nil {
		panic(err)
	}
	return cache
}
