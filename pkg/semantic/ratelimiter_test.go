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
	"testing"
	"time"
)

func TestRateLimiterAdmitsBurstUpToCapacity(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute, 0)
	defer rl.Close()

	for i := 0; i < 5; i++ {
		if err := rl.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if err := rl.Acquire(context.Background()); !errors.Is(err, ErrRateLimited) {
		t.Errorf("sixth acquire = %v, want ErrRateLimited", err)
	}
}

func TestRateLimiterNeverExceedsCapacityUnderBurst(t *testing.T) {
	const capacity = 5
	rl := NewRateLimiter(capacity, time.Minute, 3)
	defer rl.Close()

	var admitted, limited atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < capacity*10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			switch err := rl.Acquire(ctx); {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, ErrRateLimited):
				limited.Add(1)
			}
		}()
	}
	wg.Wait()

	// A minute-long refill period contributes no tokens within the test.
	if got := admitted.Load(); got > capacity {
		t.Errorf("admitted %d calls under burst, capacity is %d", got, capacity)
	}
	if limited.Load() == 0 {
		t.Error("expected queue overflow under a 10x burst")
	}
}

func TestRateLimiterRefills(t *testing.T) {
	rl := NewRateLimiter(2, 100*time.Millisecond, 5)
	defer rl.Close()

	for i := 0; i < 2; i++ {
		if err := rl.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rl.Acquire(ctx); err != nil {
		t.Fatalf("queued acquire should succeed after refill: %v", err)
	}
}

func TestRateLimiterQueueRespectsContext(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, 5)
	defer rl.Close()

	if err := rl.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := rl.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("queued acquire = %v, want deadline exceeded", err)
	}
}

func TestRateLimiterCloseReleasesWaiters(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, 5)

	if err := rl.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- rl.Acquire(context.Background())
	}()

	time.Sleep(30 * time.Millisecond)
	if err := rl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := rl.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Error("waiter should fail after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter not released by Close")
	}
}
