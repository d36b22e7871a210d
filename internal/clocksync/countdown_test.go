package clocksync

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)

func TestRemainingFloorsElapsedSeconds(t *testing.T) {
	cases := []struct {
		name string
		at   time.Duration
		want int
	}{
		{"at start", 0, 60},
		{"sub-second", 999 * time.Millisecond, 60},
		{"three and a half", 3500 * time.Millisecond, 57},
		{"exactly at deadline", 60 * time.Second, 0},
		{"long after", 5 * time.Minute, 0},
		{"client behind server", -4 * time.Second, 60},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Remaining(60, t0, t0.Add(tc.at)))
		})
	}
}

func TestRemainingIsMonotonic(t *testing.T) {
	prev := Remaining(30, t0, t0)
	for ms := 0; ms <= 40_000; ms += 137 {
		cur := Remaining(30, t0, t0.Add(time.Duration(ms)*time.Millisecond))
		require.LessOrEqual(t, cur, prev, "remaining went up at %dms", ms)
		require.GreaterOrEqual(t, cur, 0)
		prev = cur
	}
}

func TestClockJumpMatchesContinuousTicking(t *testing.T) {
	ticking := clockwork.NewFakeClockAt(t0)
	jumping := clockwork.NewFakeClockAt(t0)
	continuous := New(ticking)
	suspended := New(jumping)
	continuous.Resync(60, t0.Add(-1200*time.Millisecond))
	suspended.Resync(60, t0.Add(-1200*time.Millisecond))

	for i := 0; i < 25; i++ {
		ticking.Advance(time.Second)
		continuous.Sync()
	}
	jumping.Advance(25 * time.Second)
	got := suspended.Sync()

	require.InDelta(t, continuous.Remaining(), got, 1)
	require.Equal(t, 34, got)
}

func TestTimeUpFiresOncePerEpoch(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	var fired int32
	c := New(clock, WithTimeUp(func() { atomic.AddInt32(&fired, 1) }))

	c.Resync(5, t0)
	clock.Advance(5 * time.Second)
	require.Equal(t, 0, c.Sync())
	c.Sync()
	clock.Advance(10 * time.Second)
	c.Sync()
	require.EqualValues(t, 1, atomic.LoadInt32(&fired))
	require.True(t, c.TimeUp())

	c.Resync(5, clock.Now())
	require.False(t, c.TimeUp())
	clock.Advance(6 * time.Second)
	c.Sync()
	require.EqualValues(t, 2, atomic.LoadInt32(&fired))
}

func TestPauseResumeDoesNotDoubleFire(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	var fired int32
	c := New(clock, WithTimeUp(func() { atomic.AddInt32(&fired, 1) }))

	c.Resync(3, t0)
	clock.Advance(4 * time.Second)
	c.Sync()
	require.EqualValues(t, 1, atomic.LoadInt32(&fired))

	c.Pause()
	clock.Advance(time.Second)
	require.Equal(t, 0, c.Sync())
	require.Equal(t, 0, c.Resume())
	require.EqualValues(t, 1, atomic.LoadInt32(&fired))
}

func TestPauseFreezesDisplayUntilResume(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	c := New(clock)
	c.Resync(60, t0)

	clock.Advance(10 * time.Second)
	c.Pause()
	require.Equal(t, 50, c.Remaining())
	require.False(t, c.Active())

	clock.Advance(5 * time.Second)
	require.Equal(t, 50, c.Sync())
	require.Equal(t, 45, c.Resume())
}

func TestStopDisarms(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	var fired int32
	c := New(clock, WithTimeUp(func() { atomic.AddInt32(&fired, 1) }))
	c.Resync(2, t0)
	c.Stop()
	clock.Advance(time.Minute)
	c.Sync()
	require.Zero(t, atomic.LoadInt32(&fired))
}

func TestRunTicksFromClock(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	var ticks int32
	c := New(clock, WithTick(func(int) { atomic.AddInt32(&ticks, 1) }))
	c.Resync(10, t0)
	atomic.StoreInt32(&ticks, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		want := int32(i + 1)
		require.Eventually(t, func() bool { return atomic.LoadInt32(&ticks) >= want }, time.Second, time.Millisecond)
	}
	require.Equal(t, 7, c.Remaining())

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
