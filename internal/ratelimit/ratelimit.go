package ratelimit

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/keithlinneman/clubdesk-web/internal/xerrors"
)

const (
	DefaultInterval               = 15 * time.Minute
	DefaultUniqueTokenPerInterval = 500
	DefaultLimit                  = 5
)

// Result is the outcome of a single check. Reset is in epoch milliseconds.
type Result struct {
	Success   bool  `json:"success"`
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
}

// entry is the per-key state held in the recency cache
type entry struct {
	// hits are epoch-millisecond timestamps of admitted requests, oldest first
	hits []int64
	// expiresAt is when the cache treats the entry as gone, refreshed on every admitted request
	expiresAt int64
	// logged tracks whether we have already emitted the first-denial hook
	// resets when the entry is evicted and re-created
	logged bool
}

// Limiter tracks recent request timestamps per client key
type Limiter struct {
	mu    sync.Mutex
	cache *simplelru.LRU[string, *entry]

	interval               time.Duration
	uniqueTokenPerInterval int
	limit                  int
	now                    func() time.Time

	// OnDenied is called on every denied request, used for incrementing prometheus counter
	OnDenied func(key string)

	// OnFirstDenied is called once per cache entry when it is first denied
	OnFirstDenied func(key string)

	// OnCapacity is called when admitting a new key pushed the least recently used key out of the cache
	OnCapacity func()
}

type Option func(*Limiter)

// WithInterval sets the sliding window length. Entries expire from the cache one interval after their last admitted request.
func WithInterval(d time.Duration) Option {
	return func(l *Limiter) {
		l.interval = d
	}
}

// WithUniqueTokenPerInterval bounds how many distinct keys are tracked at once
func WithUniqueTokenPerInterval(n int) Option {
	return func(l *Limiter) {
		l.uniqueTokenPerInterval = n
	}
}

// WithLimit sets the default number of requests admitted per key per interval
func WithLimit(n int) Option {
	return func(l *Limiter) {
		l.limit = n
	}
}

// WithClock overrides time.Now, used by tests to move through windows without sleeping
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithOnDenied sets a callback for every denied request. used for incrementing prometheus counters
func WithOnDenied(fn func(key string)) Option {
	return func(l *Limiter) {
		l.OnDenied = fn
	}
}

// WithOnFirstDenied sets a callback for the first denial per cache entry, used for logging.
// Separate from OnDenied so we log once but still count every denial
func WithOnFirstDenied(fn func(key string)) Option {
	return func(l *Limiter) {
		l.OnFirstDenied = fn
	}
}

// WithOnCapacity sets a callback for when the recency cache is full and a key had to be evicted
func WithOnCapacity(fn func()) Option {
	return func(l *Limiter) {
		l.OnCapacity = fn
	}
}

// New creates a Limiter. Defaults: 15 minute interval, 500 tracked keys, 5 requests per key.
func New(opts ...Option) (*Limiter, error) {
	l := &Limiter{
		interval:               DefaultInterval,
		uniqueTokenPerInterval: DefaultUniqueTokenPerInterval,
		limit:                  DefaultLimit,
		now:                    time.Now,
	}
	for _, o := range opts {
		o(l)
	}

	if l.interval < time.Millisecond {
		return nil, xerrors.Newf("ratelimit: interval must be at least 1ms (got %s)", l.interval)
	}
	if l.uniqueTokenPerInterval < 1 {
		return nil, xerrors.Newf("ratelimit: unique token per interval must be positive (got %d)", l.uniqueTokenPerInterval)
	}
	if l.limit < 1 {
		return nil, xerrors.Newf("ratelimit: limit must be positive (got %d)", l.limit)
	}
	if l.now == nil {
		l.now = time.Now
	}

	cache, err := simplelru.NewLRU[string, *entry](l.uniqueTokenPerInterval, nil)
	if err != nil {
		return nil, xerrors.Wrap(err, "ratelimit: create recency cache")
	}
	l.cache = cache
	return l, nil
}

// Limit returns the default per-key limit
func (l *Limiter) Limit() int { return l.limit }

// Interval returns the sliding window length
func (l *Limiter) Interval() time.Duration { return l.interval }

// Len returns the number of keys currently held in the recency cache, including ones that expired but were not touched since
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cache.Len()
}

// Check runs CheckLimit with the default limit
func (l *Limiter) Check(key string) Result {
	return l.CheckLimit(key, 0)
}

// CheckLimit decides whether one more request from key fits in the last interval and records it if so.
// limit <= 0 uses the limiter default. It never fails, any string is treated as an opaque key.
func (l *Limiter) CheckLimit(key string, limit int) Result {
	if limit <= 0 {
		limit = l.limit
	}

	nowMs := l.now().UnixMilli()
	windowMs := l.interval.Milliseconds()

	l.mu.Lock()
	e, found := l.cache.Get(key)
	if found && nowMs >= e.expiresAt {
		l.cache.Remove(key)
		found = false
	}
	if !found {
		e = &entry{}
	}

	// prune lazily, keeping only hits strictly within interval of now
	e.hits = pruneBefore(e.hits, nowMs-windowMs)

	res := Result{Limit: limit}
	res.Success = len(e.hits) < limit

	var firstDenied, atCapacity bool
	if res.Success {
		e.hits = append(e.hits, nowMs)
		e.expiresAt = nowMs + windowMs
		// Add on a new key reports whether the least recently used key was evicted to make room
		atCapacity = l.cache.Add(key, e)
	} else if !e.logged {
		e.logged = true
		firstDenied = true
	}

	res.Remaining = max(0, limit-len(e.hits))
	if len(e.hits) > 0 {
		res.Reset = e.hits[0] + windowMs
	} else {
		res.Reset = nowMs + windowMs
	}

	// release lock before calling hooks, they may log or do other slow work
	l.mu.Unlock()

	if atCapacity && l.OnCapacity != nil {
		l.OnCapacity()
	}
	if !res.Success {
		if firstDenied && l.OnFirstDenied != nil {
			l.OnFirstDenied(key)
		}
		if l.OnDenied != nil {
			l.OnDenied(key)
		}
	}
	return res
}

// pruneBefore drops timestamps <= cutoff in place. hits are ordered so we only need to find the first one to keep
func pruneBefore(hits []int64, cutoff int64) []int64 {
	i := 0
	for i < len(hits) && hits[i] <= cutoff {
		i++
	}
	if i == 0 {
		return hits
	}
	n := copy(hits, hits[i:])
	return hits[:n]
}
