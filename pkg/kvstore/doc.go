// Package kvstore defines the key-value store boundary used for all RBAC
// persistence, plus the Redis-backed production implementation.
//
// The RBAC core treats the store as an abstract associative store: string
// values, sets of strings, and prefix enumeration. Any implementation
// satisfying the Store interface is substitutable; tests run against
// miniredis through the same RedisStore code path as production.
package kvstore
