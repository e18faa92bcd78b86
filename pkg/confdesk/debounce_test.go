package confdesk

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blockUntilTimers(t *testing.T, clock *clockwork.FakeClock, n int) {
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	require.NoError(t, clock.BlockUntilContext(ctx, n))
}

func TestDebouncerCoalescesBurst(t *testing.T) {
	clock := clockwork.NewFakeClock()

	var fired atomic.Int32
	d := newDebouncer(clock, 50*time.Millisecond, func() { fired.Add(1) })

	d.Trigger()
	d.Trigger()
	d.Trigger()

	blockUntilTimers(t, clock, 1)

	clock.Advance(49 * time.Millisecond)
	assert.Zero(t, fired.Load())

	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, waitFor, tick)

	// the next trigger opens a new window
	d.Trigger()
	blockUntilTimers(t, clock, 1)
	clock.Advance(50 * time.Millisecond)
	require.Eventually(t, func() bool { return fired.Load() == 2 }, waitFor, tick)
}

func TestDebouncerWindowIsNotExtended(t *testing.T) {
	clock := clockwork.NewFakeClock()

	var fired atomic.Int32
	d := newDebouncer(clock, 50*time.Millisecond, func() { fired.Add(1) })

	d.Trigger()
	blockUntilTimers(t, clock, 1)

	clock.Advance(40 * time.Millisecond)
	d.Trigger()
	clock.Advance(10 * time.Millisecond)

	require.Eventually(t, func() bool { return fired.Load() == 1 }, waitFor, tick)
}

func TestDebouncerStopDropsPendingCall(t *testing.T) {
	clock := clockwork.NewFakeClock()

	var fired atomic.Int32
	d := newDebouncer(clock, 50*time.Millisecond, func() { fired.Add(1) })

	d.Trigger()
	blockUntilTimers(t, clock, 1)
	d.Stop()

	clock.Advance(time.Second)
	assert.Never(t, func() bool { return fired.Load() > 0 }, 50*time.Millisecond, tick)
}

func TestDebouncerSetWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()

	var fired atomic.Int32
	d := newDebouncer(clock, 0, func() { fired.Add(1) })
	assert.Equal(t, defaultReconfigureDebounce, d.window)

	d.SetWindow(-time.Second)
	assert.Equal(t, defaultReconfigureDebounce, d.window)

	d.SetWindow(200 * time.Millisecond)
	d.Trigger()
	blockUntilTimers(t, clock, 1)

	clock.Advance(defaultReconfigureDebounce)
	assert.Zero(t, fired.Load())

	clock.Advance(150 * time.Millisecond)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, waitFor, tick)
}
