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
package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/relay/pkg/apierr"
	"github.com/teradata-labs/relay/pkg/store"
)

func testLimiter(capacity int, window time.Duration) (*Limiter, func(time.Duration)) {
	l := New(Config{Enabled: true, DefaultCapacity: capacity, Window: window})
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	advance := func(d time.Duration) { now = now.Add(d) }
	return l, advance
}

func TestAdmitWithinCapacity(t *testing.T) {
	l, _ := testLimiter(60, time.Minute)
	defer l.Close()
	rec := &store.APIKeyRecord{APIKey: "sk-a", RateLimit: 2}

	res, err := l.Admit(rec)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Limit)
	assert.Equal(t, 1, res.Remaining)

	res, err = l.Admit(rec)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
}

func TestRejectWhenExhausted(t *testing.T) {
	l, _ := testLimiter(60, time.Minute)
	defer l.Close()
	rec := &store.APIKeyRecord{APIKey: "sk-b", RateLimit: 2}

	_, err := l.Admit(rec)
	require.NoError(t, err)
	_, err = l.Admit(rec)
	require.NoError(t, err)

	res, err := l.Admit(rec)
	require.Error(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Greater(t, res.Reset, time.Now().Unix()-1)

	ae := apierr.From(err)
	assert.Equal(t, apierr.KindRateLimited, ae.Kind)
}

func TestRefillOverTime(t *testing.T) {
	l, advance := testLimiter(60, time.Minute)
	defer l.Close()
	rec := &store.APIKeyRecord{APIKey: "sk-c", RateLimit: 2}

	_, err := l.Admit(rec)
	require.NoError(t, err)
	_, err = l.Admit(rec)
	require.NoError(t, err)
	_, err = l.Admit(rec)
	require.Error(t, err)

	// capacity 2 / 60s window: one token back after 30s.
	advance(31 * time.Second)
	res, err := l.Admit(rec)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRefillNeverExceedsCapacity(t *testing.T) {
	l, advance := testLimiter(60, time.Minute)
	defer l.Close()
	rec := &store.APIKeyRecord{APIKey: "sk-d", RateLimit: 3}

	_, err := l.Admit(rec)
	require.NoError(t, err)

	advance(time.Hour)
	res, err := l.Admit(rec)
	require.NoError(t, err)
	// Full bucket minus this admission.
	assert.Equal(t, 2, res.Remaining)
}

func TestMasterBypass(t *testing.T) {
	l, _ := testLimiter(60, time.Minute)
	defer l.Close()
	rec := &store.APIKeyRecord{APIKey: "sk-master", RateLimit: 1, Unlimited: true}

	for i := 0; i < 100; i++ {
		res, err := l.Admit(rec)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	assert.Equal(t, 0, l.size())
}

func TestDisabledLimiterAlwaysAdmits(t *testing.T) {
	l := New(Config{Enabled: false})
	defer l.Close()
	rec := &store.APIKeyRecord{APIKey: "sk-e", RateLimit: 1}

	for i := 0; i < 10; i++ {
		res, err := l.Admit(rec)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
}

func TestDefaultCapacityWhenRecordOmits(t *testing.T) {
	l, _ := testLimiter(5, time.Minute)
	defer l.Close()
	rec := &store.APIKeyRecord{APIKey: "sk-f"}

	res, err := l.Admit(rec)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Limit)
	assert.Equal(t, 4, res.Remaining)
}

func TestReaperEvictsIdleBuckets(t *testing.T) {
	l, advance := testLimiter(60, time.Minute)
	defer l.Close()

	_, err := l.Admit(&store.APIKeyRecord{APIKey: "sk-idle", RateLimit: 5})
	require.NoError(t, err)
	_, err = l.Admit(&store.APIKeyRecord{APIKey: "sk-busy", RateLimit: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, l.size())

	advance(9 * time.Minute)
	_, err = l.Admit(&store.APIKeyRecord{APIKey: "sk-busy", RateLimit: 5})
	require.NoError(t, err)

	advance(2 * time.Minute)
	l.reapOnce()
	assert.Equal(t, 1, l.size())
}

func TestPeekDoesNotConsume(t *testing.T) {
	l, _ := testLimiter(60, time.Minute)
	defer l.Close()
	rec := &store.APIKeyRecord{APIKey: "sk-peek", RateLimit: 2}

	res := l.Peek(rec)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Limit)
	assert.Equal(t, 2, res.Remaining)

	// Peeking again leaves the bucket untouched.
	res = l.Peek(rec)
	assert.Equal(t, 2, res.Remaining)

	_, err := l.Admit(rec)
	require.NoError(t, err)
	res = l.Peek(rec)
	assert.Equal(t, 1, res.Remaining)
}

func TestCapacityChangeResizesBucket(t *testing.T) {
	l, _ := testLimiter(60, time.Minute)
	defer l.Close()

	_, err := l.Admit(&store.APIKeyRecord{APIKey: "sk-g", RateLimit: 10})
	require.NoError(t, err)

	// Admin lowered the key's limit; tokens clamp to the new capacity.
	res, err := l.Admit(&store.APIKeyRecord{APIKey: "sk-g", RateLimit: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Limit)
	assert.Equal(t, 2, res.Remaining)
}
