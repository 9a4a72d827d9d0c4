// Package accesscache provides rbac.Cache backends.
//
// MemoryCache is a bounded, expiring LRU local to one process. RedisCache is
// shared across processes so an invalidation issued by any instance is seen
// by all of them. Keys in Redis have the form
//
//	access:role:{userID}:{projectID}
//
// and per-user invalidation uses SCAN over access:role:{userID}:*.
package accesscache
