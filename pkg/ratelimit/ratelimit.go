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

// Package ratelimit implements per-key token-bucket rate limiting.
package ratelimit

import (
	"hash/fnv"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/relay/internal/log"
	"github.com/teradata-labs/relay/pkg/apierr"
	"github.com/teradata-labs/relay/pkg/store"
)

const numShards = 32

// idleMultiplier: buckets untouched for this many windows are reaped.
const idleMultiplier = 10

// Config holds limiter settings.
type Config struct {
	// Enabled switches the limiter on. When false Admit always allows.
	Enabled bool
	// DefaultCapacity is used when a key record carries no rate_limit.
	DefaultCapacity int
	// Window is the refill window.
	Window time.Duration
}

// DefaultConfig returns the stock limiter configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		DefaultCapacity: 60,
		Window:          time.Minute,
	}
}

// Result reports bucket state for response headers.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// Reset is the wall-clock epoch second at which a rejected caller may
	// retry (or, when allowed, when the bucket is full again).
	Reset int64
}

type bucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	lastRefill time.Time // monotonic
	lastSeen   time.Time // monotonic, for the reaper
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// Limiter is a sharded in-memory token-bucket limiter. Buckets are created
// lazily and reaped after long idleness; state is not persisted.
type Limiter struct {
	cfg    Config
	shards [numShards]*shard

	stopCh chan struct{}
	wg     sync.WaitGroup

	now func() time.Time
}

// New creates a Limiter and starts its reaper.
func New(cfg Config) *Limiter {
	if cfg.DefaultCapacity <= 0 {
		cfg.DefaultCapacity = DefaultConfig().DefaultCapacity
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	l := &Limiter{
		cfg:    cfg,
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
	for i := range l.shards {
		l.shards[i] = &shard{buckets: make(map[string]*bucket)}
	}
	if cfg.Enabled {
		l.wg.Add(1)
		go l.reap()
	}
	return l
}

// Close stops the reaper.
func (l *Limiter) Close() {
	close(l.stopCh)
	l.wg.Wait()
}

func (l *Limiter) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return l.shards[h.Sum32()%numShards]
}

// Admit takes one token from the key's bucket. Master (unlimited) records
// bypass the limiter entirely.
func (l *Limiter) Admit(rec *store.APIKeyRecord) (Result, error) {
	capacity := rec.RateLimit
	if capacity <= 0 {
		capacity = l.cfg.DefaultCapacity
	}

	if !l.cfg.Enabled || rec.Unlimited {
		return Result{
			Allowed:   true,
			Limit:     capacity,
			Remaining: capacity,
			Reset:     time.Now().Unix(),
		}, nil
	}

	b := l.bucketFor(rec.APIKey, capacity)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	rate := b.capacity / l.cfg.Window.Seconds()
	b.tokens = math.Min(b.capacity, b.tokens+elapsed*rate)
	b.lastRefill = now
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return Result{
			Allowed:   true,
			Limit:     capacity,
			Remaining: int(math.Floor(b.tokens)),
			Reset:     time.Now().Add(l.timeToFull(b)).Unix(),
		}, nil
	}

	wait := time.Duration(math.Ceil((1-b.tokens)/rate)) * time.Second
	reset := time.Now().Add(wait).Unix()
	res := Result{
		Allowed:   false,
		Limit:     capacity,
		Remaining: 0,
		Reset:     reset,
	}
	return res, apierr.New(apierr.KindRateLimited, "rate limit exceeded, retry after %d seconds", int64(wait.Seconds()))
}

// Peek reports the key's bucket state without taking a token. Used for
// rate headers on read-only endpoints.
func (l *Limiter) Peek(rec *store.APIKeyRecord) Result {
	capacity := rec.RateLimit
	if capacity <= 0 {
		capacity = l.cfg.DefaultCapacity
	}

	if !l.cfg.Enabled || rec.Unlimited {
		return Result{
			Allowed:   true,
			Limit:     capacity,
			Remaining: capacity,
			Reset:     time.Now().Unix(),
		}
	}

	b := l.bucketFor(rec.APIKey, capacity)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	rate := b.capacity / l.cfg.Window.Seconds()
	b.tokens = math.Min(b.capacity, b.tokens+elapsed*rate)
	b.lastRefill = now

	return Result{
		Allowed:   true,
		Limit:     capacity,
		Remaining: int(math.Floor(b.tokens)),
		Reset:     time.Now().Add(l.timeToFull(b)).Unix(),
	}
}

func (l *Limiter) timeToFull(b *bucket) time.Duration {
	missing := b.capacity - b.tokens
	if missing <= 0 {
		return 0
	}
	rate := b.capacity / l.cfg.Window.Seconds()
	return time.Duration(math.Ceil(missing/rate)) * time.Second
}

// bucketFor fetches or lazily creates the bucket. A record whose rate_limit
// changed gets a resized bucket with tokens clamped to the new capacity.
func (l *Limiter) bucketFor(key string, capacity int) *bucket {
	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		now := l.now()
		b = &bucket{
			capacity:   float64(capacity),
			tokens:     float64(capacity),
			lastRefill: now,
			lastSeen:   now,
		}
		s.buckets[key] = b
		return b
	}
	b.mu.Lock()
	if b.capacity != float64(capacity) {
		b.capacity = float64(capacity)
		b.tokens = math.Min(b.tokens, b.capacity)
	}
	b.mu.Unlock()
	return b
}

// reap evicts buckets idle for more than idleMultiplier windows.
func (l *Limiter) reap() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.cfg.Window)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.reapOnce()
		}
	}
}

func (l *Limiter) reapOnce() {
	cutoff := l.now().Add(-idleMultiplier * l.cfg.Window)
	evicted := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for key, b := range s.buckets {
			b.mu.Lock()
			idle := b.lastSeen.Before(cutoff)
			b.mu.Unlock()
			if idle {
				delete(s.buckets, key)
				evicted++
			}
		}
		s.mu.Unlock()
	}
	if evicted > 0 {
		log.Debug("rate limiter reaped idle buckets", zap.Int("evicted", evicted))
	}
}

// size returns the total bucket count, for tests.
func (l *Limiter) size() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += len(s.buckets)
		s.mu.Unlock()
	}
	return n
}
