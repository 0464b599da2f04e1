package circuit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fail() error { return errBoom }
func ok() error   { return nil }

func TestBreakerOpensAndRecovers(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var changes []State
	b := New("binance", 2, time.Minute,
		WithClock(func() time.Time { return now }),
		OnStateChange(func(_ string, _, to State) { changes = append(changes, to) }))

	assert.ErrorIs(t, b.Execute(fail), errBoom)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Execute(fail), errBoom)
	assert.Equal(t, StateOpen, b.State())

	ran := false
	err := b.Execute(func() error { ran = true; return nil })
	require.ErrorIs(t, err, ErrOpen)
	assert.False(t, ran)

	now = now.Add(61 * time.Second)
	assert.ErrorIs(t, b.Execute(fail), errBoom, "probe runs after the cooldown")
	assert.Equal(t, StateOpen, b.State(), "a failed probe reopens")

	now = now.Add(61 * time.Second)
	require.NoError(t, b.Execute(ok))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateOpen, StateHalfOpen, StateClosed}, changes)
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := New("x", 2, time.Minute)
	_ = b.Execute(fail)
	_ = b.Execute(ok)
	_ = b.Execute(fail)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerIgnoresUncountedErrors(t *testing.T) {
	errReject := errors.New("rejected")
	b := New("x", 1, time.Minute, CountIf(func(err error) bool {
		return err != nil && !errors.Is(err, errReject)
	}))
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(func() error { return errReject }), errReject)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenAdmitsSingleProbe(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New("x", 1, time.Second, WithClock(func() time.Time { return now }))
	_ = b.Execute(fail)
	now = now.Add(2 * time.Second)

	err := b.Execute(func() error {
		assert.Equal(t, StateHalfOpen, b.State())
		assert.ErrorIs(t, b.Execute(ok), ErrOpen, "second caller rejected while probing")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}
