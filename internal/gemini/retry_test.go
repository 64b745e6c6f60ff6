package gemini

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetrySucceedsAfterRateLimits(t *testing.T) {
	calls := 0
	fn := func() (string, error) {
		calls++
		if calls < 3 {
			return "", &Error{Kind: KindRateLimited, Status: 429, Message: "quota exceeded"}
		}
		return "ok", nil
	}

	got, err := withRetry(context.Background(), fn, 3, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestWithRetryExhaustsBudget(t *testing.T) {
	rateErr := &Error{Kind: KindRateLimited, Status: 429, Message: "quota exceeded"}
	calls := 0
	fn := func() (string, error) {
		calls++
		return "", rateErr
	}

	_, err := withRetry(context.Background(), fn, 3, time.Millisecond)
	require.Error(t, err)
	// budget of 3 retries means 4 invocations total
	assert.Equal(t, 4, calls)
	assert.True(t, IsKind(err, KindRateLimited))
}

func TestWithRetryDoesNotRetryOtherFailures(t *testing.T) {
	authErr := &Error{Kind: KindAuthOrPermission, Status: 403, Message: "forbidden"}
	calls := 0
	fn := func() (string, error) {
		calls++
		return "", authErr
	}

	_, err := withRetry(context.Background(), fn, 3, time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsKind(err, KindAuthOrPermission))
}

func TestWithRetryTreatsSubstringAsRateLimit(t *testing.T) {
	calls := 0
	fn := func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("upstream said RESOURCE_EXHAUSTED, try later")
		}
		return 42, nil
	}

	got, err := withRetry(context.Background(), fn, 3, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 2, calls)
}

func TestWithRetryHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	fn := func() (string, error) {
		calls++
		cancel()
		return "", &Error{Kind: KindRateLimited, Status: 429, Message: "quota exceeded"}
	}

	_, err := withRetry(ctx, fn, 5, 50*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryableClassification(t *testing.T) {
	assert.True(t, retryable(&Error{Kind: KindRateLimited}))
	assert.True(t, retryable(errors.New("got 429 from upstream")))
	assert.True(t, retryable(errors.New("RESOURCE_EXHAUSTED")))
	assert.False(t, retryable(&Error{Kind: KindTransport, Status: 500}))
	assert.False(t, retryable(errors.New("connection reset")))
	assert.False(t, retryable(nil))
}

func TestAPIErrorClassification(t *testing.T) {
	assert.Equal(t, KindRateLimited, apiError(429, "slow down").Kind)
	assert.Equal(t, KindRateLimited, apiError(500, `{"status":"RESOURCE_EXHAUSTED"}`).Kind)
	assert.Equal(t, KindAuthOrPermission, apiError(401, "bad key").Kind)
	assert.Equal(t, KindAuthOrPermission, apiError(403, "no access").Kind)
	assert.Equal(t, KindAuthOrPermission, apiError(404, "Requested entity was not found.").Kind)
	assert.Equal(t, KindTransport, apiError(500, "boom").Kind)
}
