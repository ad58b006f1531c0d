package linefollow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gridrunner/internal/hal"
	"github.com/banshee-data/gridrunner/internal/timeutil"
)

type rangesFunc func() hal.Ranges

func (f rangesFunc) Latest() hal.Ranges { return f() }

func forwardAt(cm float64) rangesFunc {
	return func() hal.Ranges { return hal.Ranges{Forward: hal.Echo{CM: cm, OK: true}} }
}

func newTestFollower(line hal.LineSensor, prox ProximitySource) (*Follower, *hal.RecordingDrive, *timeutil.MockClock) {
	drive := &hal.RecordingDrive{}
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	return NewFollower(drive, line, prox, clock, DefaultConfig()), drive, clock
}

func modes(calls []hal.DriveCall) map[hal.DriveMode]int {
	out := make(map[hal.DriveMode]int)
	for _, c := range calls {
		if !c.Stop && !c.PWM {
			out[c.Mode]++
		}
	}
	return out
}

func TestHysteresis(t *testing.T) {
	h := NewHysteresis(0.1, 0.63, 0.37)
	dt := 10 * time.Millisecond

	for i := 0; i < 9; i++ {
		assert.False(t, h.Update(1, dt), "sample %d", i)
	}
	assert.True(t, h.Update(1, dt))

	// Inside the band the state holds.
	h.level = 0.5
	assert.True(t, h.Update(0.5, dt))
	assert.True(t, h.State())
	h.state = false
	assert.False(t, h.Update(0.5, dt))

	// A long gap snaps to the raw value instead of overshooting.
	h.Update(1, time.Hour)
	assert.Equal(t, 1.0, h.Level())
	assert.True(t, h.State())

	h.Reset()
	assert.Equal(t, 0.0, h.Level())
	assert.False(t, h.State())
}

func TestDetectors_SideFreezesOffLine(t *testing.T) {
	d := NewDetectors(DefaultConfig())
	dt := 10 * time.Millisecond
	for i := 0; i < 50; i++ {
		d.Update(hal.ParseLineReading("100"), dt)
	}
	require.Equal(t, SideLeft, d.Side())
	level := d.SideLevel()

	for i := 0; i < 50; i++ {
		d.Update(hal.ParseLineReading("000"), dt)
	}
	assert.Equal(t, SideLeft, d.Side())
	assert.Equal(t, level, d.SideLevel())
	assert.False(t, d.End.State(), "off-center loss must not count as end")

	for i := 0; i < 100; i++ {
		d.Update(hal.ParseLineReading("001"), dt)
	}
	assert.Equal(t, SideRight, d.Side())

	d.Reset()
	assert.Equal(t, SideCenter, d.Side())
}

func TestRawSide(t *testing.T) {
	cases := map[string]float64{
		"100": 1, "110": 0.5, "010": 0, "111": 0, "011": -0.5, "001": -1, "101": 0,
	}
	for p, want := range cases {
		assert.Equal(t, want, rawSide(hal.ParseLineReading(p)), p)
	}
}

func TestFollowLine_Intersection(t *testing.T) {
	line := hal.NewScriptedLine().Repeat("010", 10).Repeat("011", 5).Repeat("111", 1)
	f, drive, _ := newTestFollower(line, nil)

	ev, err := f.FollowLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EventIntersection, ev)

	last, ok := drive.Last()
	require.True(t, ok)
	assert.True(t, last.Stop)
	m := modes(drive.Calls())
	assert.Greater(t, m[hal.Straight], 10)
	assert.Equal(t, 5, m[hal.TurnRight])
	assert.Equal(t, 0.0, f.Detectors().Intersection.Level(), "detectors reset on return")
}

func TestFollowLine_EndOfStreet(t *testing.T) {
	line := hal.NewScriptedLine().Repeat("010", 10).Repeat("000", 1)
	f, drive, clock := newTestFollower(line, nil)

	start := clock.Now()
	ev, err := f.FollowLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EventEnd, ev)
	// Fired by the end detector well before the line-lost ceiling.
	assert.Less(t, clock.Since(start), 600*time.Millisecond)
	last, _ := drive.Last()
	assert.True(t, last.Stop)
}

func TestFollowLine_LostLineSearchesFrozenSide(t *testing.T) {
	line := hal.NewScriptedLine().Repeat("100", 50).Repeat("000", 1)
	f, drive, clock := newTestFollower(line, nil)

	start := clock.Now()
	ev, err := f.FollowLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EventEnd, ev)
	assert.Greater(t, clock.Since(start), time.Second)

	m := modes(drive.Calls())
	assert.Greater(t, m[hal.SpinLeft], 90)
	assert.Zero(t, m[hal.SpinRight])
	assert.Equal(t, 50, m[hal.HookLeft])
}

func TestFollowLine_PausesForObstacle(t *testing.T) {
	blocked := true
	prox := rangesFunc(func() hal.Ranges {
		if blocked {
			return hal.Ranges{Forward: hal.Echo{CM: 5, OK: true}}
		}
		return hal.Ranges{Forward: hal.Echo{CM: 15, OK: true}}
	})
	line := hal.NewScriptedLine().Repeat("010", 5).Repeat("111", 1)
	f, _, clock := newTestFollower(line, prox)
	clock.OnSleep(func(time.Duration) {
		if clock.Slept() >= 2*time.Second {
			blocked = false
		}
	})

	ev, err := f.FollowLine(context.Background())
	require.NoError(t, err)
	// 15cm is still inside the clear threshold, so the pause outlasts
	// the persistence window.
	assert.Equal(t, EventBlocked, ev)
	assert.Zero(t, line.Consumed(), "no samples taken while paused")
}

func TestFollowLine_ResumesWhenClear(t *testing.T) {
	blocked := true
	prox := rangesFunc(func() hal.Ranges {
		if blocked {
			return hal.Ranges{Forward: hal.Echo{CM: 5, OK: true}}
		}
		return hal.Ranges{}
	})
	line := hal.NewScriptedLine().Repeat("010", 5).Repeat("111", 1)
	f, _, clock := newTestFollower(line, prox)
	clock.OnSleep(func(time.Duration) {
		if clock.Slept() >= time.Second {
			blocked = false
		}
	})

	ev, err := f.FollowLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EventIntersection, ev)
}

func TestFollowLine_Cancelled(t *testing.T) {
	f, drive, _ := newTestFollower(hal.NewScriptedLine("010"), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ev, err := f.FollowLine(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, EventNone, ev)
	last, _ := drive.Last()
	assert.True(t, last.Stop)
}

func TestPullForward(t *testing.T) {
	t.Run("street continues", func(t *testing.T) {
		f, drive, clock := newTestFollower(hal.NewScriptedLine("010"), nil)
		start := clock.Now()
		ahead, err := f.PullForward(context.Background())
		require.NoError(t, err)
		assert.True(t, ahead)
		assert.GreaterOrEqual(t, clock.Since(start), 360*time.Millisecond)
		last, _ := drive.Last()
		assert.True(t, last.Stop)
	})

	t.Run("no street", func(t *testing.T) {
		f, _, _ := newTestFollower(hal.NewScriptedLine("000"), nil)
		ahead, err := f.PullForward(context.Background())
		require.NoError(t, err)
		assert.False(t, ahead)
	})

	t.Run("street fades out", func(t *testing.T) {
		line := hal.NewScriptedLine().Repeat("010", 8).Repeat("000", 1)
		f, _, _ := newTestFollower(line, nil)
		ahead, err := f.PullForward(context.Background())
		require.NoError(t, err)
		assert.False(t, ahead)
	})
}

func TestForwardBlocked(t *testing.T) {
	f, _, _ := newTestFollower(hal.NewScriptedLine("010"), forwardAt(30))
	assert.True(t, f.ForwardBlocked())

	f, _, _ = newTestFollower(hal.NewScriptedLine("010"), forwardAt(50))
	assert.False(t, f.ForwardBlocked())

	f, _, _ = newTestFollower(hal.NewScriptedLine("010"), rangesFunc(func() hal.Ranges { return hal.Ranges{} }))
	assert.False(t, f.ForwardBlocked(), "missing echo is never blocked")

	f, _, _ = newTestFollower(hal.NewScriptedLine("010"), nil)
	assert.False(t, f.ForwardBlocked())
}

func TestOnLine(t *testing.T) {
	f, _, _ := newTestFollower(hal.NewScriptedLine("001"), nil)
	assert.True(t, f.OnLine())

	f, _, _ = newTestFollower(hal.NewScriptedLine("000"), nil)
	assert.False(t, f.OnLine())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.ClearCM = bad.BlockCM
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.ThresholdLow = 0.9
	assert.Error(t, bad.Validate())
}
