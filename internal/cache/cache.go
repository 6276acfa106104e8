// Package cache provides the time-boxed key/value store that backs the
// request governor. Values are opaque: the cache never inspects, copies or
// transforms what it is given. The default implementation is Memory.
package cache

// Cache defines the interface for response caching.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Delete(key string)
	Len() int
	Clear()
}
