// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package semantic

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrRateLimited is returned when the wait queue is already full.
var ErrRateLimited = errors.New("semantic rate limit queue full")

// errLimiterStopped is returned for acquisitions after Close.
var errLimiterStopped = errors.New("rate limiter stopped")

// tokenPollInterval is how often a queued caller re-checks the bucket.
const tokenPollInterval = 20 * time.Millisecond

// RateLimiter is a token bucket guarding the semantic LLM endpoint. The
// bucket holds capacity tokens and refills continuously at capacity tokens
// per period. Callers that find the bucket empty wait in a bounded queue;
// when the queue is full, Acquire fails fast with ErrRateLimited.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time

	waiters    atomic.Int64
	maxWaiters int64

	stopCh chan struct{}
	closed atomic.Bool
}

// NewRateLimiter creates a limiter admitting capacity calls per period with
// at most maxQueued callers waiting for tokens.
func NewRateLimiter(capacity int, period time.Duration, maxQueued int) *RateLimiter {
	if capacity < 1 {
		capacity = 1
	}
	if period <= 0 {
		period = time.Second
	}
	return &RateLimiter{
		tokens:     float64(capacity),
		capacity:   float64(capacity),
		refillRate: float64(capacity) / period.Seconds(),
		lastRefill: time.Now(),
		maxWaiters: int64(maxQueued),
		stopCh:     make(chan struct{}),
	}
}

// Acquire takes one token, waiting in the queue if the bucket is empty.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	if rl.closed.Load() {
		return errLimiterStopped
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if rl.takeToken() {
		return nil
	}

	// Bucket empty: join the bounded queue or fail fast.
	if rl.waiters.Add(1) > rl.maxWaiters {
		rl.waiters.Add(-1)
		return ErrRateLimited
	}
	defer rl.waiters.Add(-1)

	ticker := time.NewTicker(tokenPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if rl.takeToken() {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-rl.stopCh:
			return errLimiterStopped
		}
	}
}

// takeToken refills the bucket from elapsed time and consumes one token when
// available.
func (rl *RateLimiter) takeToken() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.tokens = min(rl.capacity, rl.tokens+elapsed*rl.refillRate)
	rl.lastRefill = now

	if rl.tokens >= 1.0 {
		rl.tokens -= 1.0
		return true
	}
	return false
}

// QueueDepth reports the number of callers currently waiting for tokens.
func (rl *RateLimiter) QueueDepth() int64 {
	return rl.waiters.Load()
}

// Close releases queued callers. Idempotent.
func (rl *RateLimiter) Close() error {
	if !rl.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(rl.stopCh)
	return nil
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
