package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "join-voice:r1:u1", Key("join-voice", "r1", "u1"))
}

func TestSlidingWindowLimitsPerKey(t *testing.T) {
	mock := clock.NewMock()
	sw := NewSlidingWindow(3, 10*time.Second, mock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := sw.Allow(ctx, "a")
		require.NoError(t, err)
		require.True(t, d.Allowed, "hit %d", i)
		mock.Add(time.Second)
	}

	d, _ := sw.Allow(ctx, "a")
	assert.False(t, d.Allowed)
	assert.Equal(t, 7*time.Second, d.RetryAfter, "oldest hit leaves the window in 7s")
	assert.Equal(t, 7, d.RetryAfterSeconds())

	other, _ := sw.Allow(ctx, "b")
	assert.True(t, other.Allowed, "keys are independent")
}

func TestSlidingWindowSlides(t *testing.T) {
	mock := clock.NewMock()
	sw := NewSlidingWindow(2, 10*time.Second, mock)

	assert.True(t, sw.AllowNow("k"))
	mock.Add(6 * time.Second)
	assert.True(t, sw.AllowNow("k"))
	assert.False(t, sw.AllowNow("k"))

	// First hit expires exactly at the window boundary.
	mock.Add(4 * time.Second)
	assert.True(t, sw.AllowNow("k"))
	assert.False(t, sw.AllowNow("k"))
}

func TestSlidingWindowDeniedHitsDoNotCount(t *testing.T) {
	mock := clock.NewMock()
	sw := NewSlidingWindow(1, time.Second, mock)

	assert.True(t, sw.AllowNow("k"))
	for i := 0; i < 10; i++ {
		assert.False(t, sw.AllowNow("k"))
	}
	mock.Add(time.Second)
	assert.True(t, sw.AllowNow("k"))
}

func TestSlidingWindowForgetAndSweep(t *testing.T) {
	mock := clock.NewMock()
	sw := NewSlidingWindow(1, time.Second, mock)

	sw.AllowNow("a")
	sw.AllowNow("b")
	assert.Equal(t, 2, sw.Len())

	sw.Forget("a")
	assert.Equal(t, 1, sw.Len())
	assert.True(t, sw.AllowNow("a"))

	mock.Add(2 * time.Second)
	sw.AllowNow("c")
	assert.Equal(t, 1, sw.Len(), "idle keys are swept")
}

func TestSlidingWindowDisabled(t *testing.T) {
	sw := NewSlidingWindow(0, time.Second, nil)
	for i := 0; i < 100; i++ {
		require.True(t, sw.AllowNow("k"))
	}

	var nilWindow *SlidingWindow
	assert.True(t, nilWindow.AllowNow("k"))
}

func TestDecisionRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 0, Decision{Allowed: true}.RetryAfterSeconds())
	assert.Equal(t, 1, Decision{RetryAfter: 10 * time.Millisecond}.RetryAfterSeconds())
	assert.Equal(t, 2, Decision{RetryAfter: 1500 * time.Millisecond}.RetryAfterSeconds())
	assert.Equal(t, 1, Decision{}.RetryAfterSeconds())
}

func TestRedisSlidingWindow(t *testing.T) {
	addr := os.Getenv("PLAZA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PLAZA_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	client, err := Connect(ctx, addr)
	require.NoError(t, err)
	defer client.Close()

	mock := clock.NewMock()
	mock.Set(time.Now())
	prefix := "plaza-test:" + t.Name() + ":"
	rl := NewRedis(client, prefix, 2, 10*time.Second, mock)
	t.Cleanup(func() { client.Del(context.Background(), prefix+"k") })

	for i := 0; i < 2; i++ {
		d, err := rl.Allow(ctx, "k")
		require.NoError(t, err)
		require.True(t, d.Allowed)
		mock.Add(time.Second)
	}

	d, err := rl.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 8*time.Second, d.RetryAfter)

	mock.Add(9 * time.Second)
	d, err = rl.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
