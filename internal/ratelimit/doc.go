// Package ratelimit provides per-client sliding-window rate limiting for the
// contact API.
//
// Each client key (normally the resolved client IP) keeps the timestamps of its
// admitted requests in a bounded LRU recency cache. A request is admitted when
// fewer than limit timestamps fall inside the last interval. Stale timestamps are
// pruned when the key is checked, and whole entries leave the cache through its
// own capacity and per-entry expiry policy. There is no background sweep.
//
// This is a single-process, in-memory guard. State is lost on restart and is not
// shared between instances, so it does not protect against distributed abuse.
// Use an upstream WAF or CDN-level limit for that.
package ratelimit
