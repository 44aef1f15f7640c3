package api

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	clocks "github.com/vimeo/go-clocks"
)

// BucketStore is the injected state store behind the rate limiter. The
// default is an in-process expirable LRU; a multi-instance deployment can
// swap in a shared store with the same TTL semantics.
type BucketStore interface {
	Get(key string) (*TokenBucket, bool)
	Add(key string, bucket *TokenBucket)
}

type TokenBucket struct {
	Tokens   float64
	LastTime time.Time
}

type ExpirableBucketStore struct {
	lru *expirable.LRU[string, *TokenBucket]
}

func NewExpirableBucketStore(size int, ttl time.Duration) *ExpirableBucketStore {
	return &ExpirableBucketStore{
		lru: expirable.NewLRU[string, *TokenBucket](size, nil, ttl),
	}
}

func (s *ExpirableBucketStore) Get(key string) (*TokenBucket, bool) {
	return s.lru.Get(key)
}

func (s *ExpirableBucketStore) Add(key string, bucket *TokenBucket) {
	s.lru.Add(key, bucket)
}

// RateLimiter implements token bucket rate limiting per client.
type RateLimiter struct {
	mu        sync.Mutex
	store     BucketStore
	clock     clocks.Clock
	capacity  float64
	refillPer float64 // tokens per second
}

func NewRateLimiter(store BucketStore, clock clocks.Clock, requestsPerMinute int) *RateLimiter {
	return &RateLimiter{
		store:     store,
		clock:     clock,
		capacity:  float64(requestsPerMinute),
		refillPer: float64(requestsPerMinute) / 60.0,
	}
}

func (rl *RateLimiter) Allow(clientID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()

	bucket, ok := rl.store.Get(clientID)
	if !ok {
		bucket = &TokenBucket{
			Tokens:   rl.capacity,
			LastTime: now,
		}
		rl.store.Add(clientID, bucket)
	}

	elapsed := now.Sub(bucket.LastTime).Seconds()
	bucket.Tokens += elapsed * rl.refillPer
	if bucket.Tokens > rl.capacity {
		bucket.Tokens = rl.capacity
	}
	bucket.LastTime = now

	if bucket.Tokens >= 1.0 {
		bucket.Tokens -= 1.0
		return true
	}

	return false
}
