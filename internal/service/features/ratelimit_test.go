package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"antbox-backend/pkg/errors"
)

func TestRateLimiterAdmitsUpToMax(t *testing.T) {
	l := newRateLimiter(10, 10*time.Second)

	for i := 0; i < 10; i++ {
		require.NoError(t, l.acquire("feat-12345678", channelAction))
	}
	err := l.acquire("feat-12345678", channelAction)
	require.Error(t, err)
	assert.True(t, errors.IsTooMany(err))
}

func TestRateLimiterKeysByFeatureAndChannel(t *testing.T) {
	l := newRateLimiter(10, 10*time.Second)

	for i := 0; i < 10; i++ {
		require.NoError(t, l.acquire("feat-12345678", channelAction))
	}
	assert.Error(t, l.acquire("feat-12345678", channelAction))

	// Other channels and other features keep their own budget.
	assert.NoError(t, l.acquire("feat-12345678", channelExtension))
	assert.NoError(t, l.acquire("feat-12345678", channelTool))
	assert.NoError(t, l.acquire("other-12345678", channelAction))
}

func TestRateLimiterWindowSlides(t *testing.T) {
	now := time.Unix(1000, 0)
	l := newRateLimiter(10, 10*time.Second)
	l.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		require.NoError(t, l.acquire("feat-12345678", channelAction))
	}
	assert.Error(t, l.acquire("feat-12345678", channelAction))

	// Inside the window the budget stays spent even though nothing is
	// still running.
	now = now.Add(9 * time.Second)
	assert.Error(t, l.acquire("feat-12345678", channelAction))

	// Once the first admissions age out, capacity returns.
	now = now.Add(2 * time.Second)
	assert.NoError(t, l.acquire("feat-12345678", channelAction))
}
