package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct{ waits []time.Duration }

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func TestDoBacksOffExponentially(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("locked")
	calls := 0

	err := Do(context.Background(), Policy{MaxAttempts: 5, InitialWait: time.Second, Sleep: rec.sleep},
		func(context.Context, int) error {
			calls++
			return boom
		})

	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 5, ex.Attempts)
	assert.Equal(t, 5, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, rec.waits)
}

func TestDoStopsOnSuccess(t *testing.T) {
	rec := &recorder{}
	err := Do(context.Background(), Policy{MaxAttempts: 3, InitialWait: 2 * time.Second, Sleep: rec.sleep},
		func(_ context.Context, attempt int) error {
			if attempt < 2 {
				return errors.New("empty")
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second}, rec.waits)
}

func TestDoReturnsNonRetryableUnchanged(t *testing.T) {
	fatal := errors.New("constraint failed")
	calls := 0
	err := Do(context.Background(), Policy{
		MaxAttempts: 5,
		Sleep:       (&recorder{}).sleep,
		Retryable:   func(err error) bool { return !errors.Is(err, fatal) },
	}, func(context.Context, int) error {
		calls++
		return fatal
	})
	assert.Same(t, fatal, err)
	assert.Equal(t, 1, calls)
}

func TestDoCapsWait(t *testing.T) {
	rec := &recorder{}
	_ = Do(context.Background(), Policy{MaxAttempts: 4, InitialWait: time.Second, MaxWait: 3 * time.Second, Sleep: rec.sleep},
		func(context.Context, int) error { return errors.New("x") })
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, rec.waits)
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, Policy{MaxAttempts: 2, InitialWait: time.Hour},
		func(context.Context, int) error { return errors.New("x") })
	assert.ErrorIs(t, err, context.Canceled)
}
