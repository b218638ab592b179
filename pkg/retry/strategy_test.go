package retry

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-escrow/pkg/retry/backoff"
)

func TestLimit(t *testing.T) {
	failure := errors.New("rpc unavailable")

	strategy := Limit(3)
	assert.True(t, strategy(1, failure))
	assert.True(t, strategy(2, failure))
	assert.False(t, strategy(3, failure))

	attempts, err := Retry(func() error { return failure }, Limit(3))
	assert.Equal(t, failure, err)
	assert.EqualValues(t, 3, attempts)
}

func TestErrorStrategies(t *testing.T) {
	rateLimited := errors.New("rate limited")
	unavailable := errors.New("service unavailable")
	notFound := errors.New("account not found")

	for _, tc := range []struct {
		name     string
		strategy Strategy
		err      error
		expected bool
	}{
		{"retriable", RetriableErrors(rateLimited, unavailable), rateLimited, true},
		{"retriable wrapped", RetriableErrors(rateLimited, unavailable), errors.Wrap(unavailable, "getAccountInfo"), true},
		{"retriable other", RetriableErrors(rateLimited, unavailable), notFound, false},
		{"non retriable", NonRetriableErrors(notFound), notFound, false},
		{"non retriable wrapped", NonRetriableErrors(notFound), errors.Wrap(notFound, "escrow"), false},
		{"non retriable other", NonRetriableErrors(notFound), rateLimited, true},
		{"filter accepted", Filter(func(err error) bool { return errors.Is(err, rateLimited) }), errors.Wrap(rateLimited, "x"), true},
		{"filter rejected", Filter(func(err error) bool { return errors.Is(err, rateLimited) }), notFound, false},
	} {
		assert.Equal(t, tc.expected, tc.strategy(1, tc.err), tc.name)
	}
}

func TestContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	strategy := Context(ctx)
	assert.True(t, strategy(1, errors.New("err")))

	cancel()
	assert.False(t, strategy(2, errors.New("err")))
}

func TestBackoff(t *testing.T) {
	ts := useTestSleeper(t)

	strategy := Backoff(backoff.BinaryExponential(100*time.Millisecond), 500*time.Millisecond)
	for i := uint(1); i <= 5; i++ {
		assert.True(t, strategy(i, errors.New("err")))
	}

	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond,
		500 * time.Millisecond,
	}, ts.sleeps)
}

func TestBackoffWithJitter(t *testing.T) {
	ts := useTestSleeper(t)

	delay := 10 * time.Millisecond
	strategy := BackoffWithJitter(backoff.Constant(delay), time.Second, 0.1)
	for i := 0; i < 1000; i++ {
		require.True(t, strategy(1, errors.New("err")))
	}

	var total time.Duration
	for _, d := range ts.sleeps {
		assert.GreaterOrEqual(t, d, 9*time.Millisecond)
		assert.LessOrEqual(t, d, 11*time.Millisecond)
		total += d
	}

	mean := total / time.Duration(len(ts.sleeps))
	assert.InDelta(t, float64(delay), float64(mean), 0.02*float64(delay))
}

func TestBackoffContext(t *testing.T) {
	ts := useTestSleeper(t)

	strategy := BackoffContext(context.Background(), backoff.BinaryExponential(10*time.Millisecond), 35*time.Millisecond)
	for i := uint(1); i <= 4; i++ {
		assert.True(t, strategy(i, errors.New("err")))
	}
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 35 * time.Millisecond, 35 * time.Millisecond}, ts.sleeps)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	strategy = BackoffContext(ctx, backoff.Constant(time.Millisecond), time.Second)
	assert.False(t, strategy(1, errors.New("err")))
}

func TestRealSleeper_SleepContext(t *testing.T) {
	s := &realSleeper{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	assert.False(t, s.SleepContext(ctx, time.Minute))
	assert.Less(t, time.Since(start), time.Second)

	assert.True(t, s.SleepContext(context.Background(), time.Millisecond))
}

// testSleeper records requested sleeps instead of waiting.
type testSleeper struct {
	sleeps []time.Duration
}

func useTestSleeper(t *testing.T) *testSleeper {
	ts := &testSleeper{}

	previous := sleeperImpl
	sleeperImpl = ts
	t.Cleanup(func() { sleeperImpl = previous })

	return ts
}

func (t *testSleeper) Sleep(d time.Duration) {
	t.sleeps = append(t.sleeps, d)
}

func (t *testSleeper) SleepContext(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}

	t.sleeps = append(t.sleeps, d)
	return true
}
