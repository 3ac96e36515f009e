package cache

import "time"

// Cache is a TTL key/value cache. It backs market status lookups and
// the reconstructed position book.
type Cache interface {
	// Get returns (value, true) on a hit.
	Get(key string) (interface{}, bool)

	// Set stores a value with a TTL. Returns false when the write was dropped.
	Set(key string, value interface{}, ttl time.Duration) bool

	Delete(key string)
	Clear()
	Close()
}
