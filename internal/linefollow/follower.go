package linefollow

import (
	"context"
	"time"

	"github.com/banshee-data/gridrunner/internal/hal"
	"github.com/banshee-data/gridrunner/internal/timeutil"
)

// Event is the terminal outcome of a FollowLine call.
type Event uint8

const (
	EventNone Event = iota
	EventIntersection
	EventEnd
	EventBlocked
)

func (e Event) String() string {
	switch e {
	case EventIntersection:
		return "intersection"
	case EventEnd:
		return "end"
	case EventBlocked:
		return "blocked"
	default:
		return "none"
	}
}

// ProximitySource exposes the latest proximity snapshot without blocking.
type ProximitySource interface {
	Latest() hal.Ranges
}

// steering maps an on-line sensor pattern to a drive mode.
var steering = map[hal.LineReading]hal.DriveMode{
	{Middle: true}:                          hal.Straight,
	{Middle: true, Right: true}:             hal.TurnRight,
	{Right: true}:                           hal.HookRight,
	{Left: true, Middle: true}:              hal.TurnLeft,
	{Left: true}:                            hal.HookLeft,
	{Left: true, Middle: true, Right: true}: hal.Straight,
	{Left: true, Right: true}:               hal.Straight,
}

// Follower runs the line-following primitives against the hardware.
// It is not safe for concurrent use; the planner owns it.
type Follower struct {
	drive hal.Drive
	line  hal.LineSensor
	prox  ProximitySource
	clock timeutil.Clock
	cfg   Config
	det   *Detectors
}

// NewFollower creates a Follower. prox may be nil when the robot has no
// proximity array.
func NewFollower(drive hal.Drive, line hal.LineSensor, prox ProximitySource, clock timeutil.Clock, cfg Config) *Follower {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Follower{
		drive: drive,
		line:  line,
		prox:  prox,
		clock: clock,
		cfg:   cfg,
		det:   NewDetectors(cfg),
	}
}

// Detectors exposes the detector state for inspection.
func (f *Follower) Detectors() *Detectors { return f.det }

func (f *Follower) ranges() hal.Ranges {
	if f.prox == nil {
		return hal.Ranges{}
	}
	return f.prox.Latest()
}

// FollowLine follows the street until an intersection crossbar, the end of
// the street, or an obstruction that outlasts the block persistence
// window. The drive is stopped and the detectors reset before it returns.
// The only error is context cancellation.
func (f *Follower) FollowLine(ctx context.Context) (Event, error) {
	f.det.Reset()
	last := f.clock.Now().Add(-f.cfg.SamplePeriod)
	var lostSince time.Time

	finish := func(ev Event) (Event, error) {
		_ = f.drive.Stop()
		f.det.Reset()
		diagf("follow: %s", ev)
		return ev, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			_ = f.drive.Stop()
			return EventNone, err
		}

		if f.ranges().Forward.Below(f.cfg.BlockCM) {
			ok, err := f.waitClear(ctx)
			if err != nil {
				return EventNone, err
			}
			if !ok {
				opsf("street ahead blocked for %v", f.cfg.BlockPersist)
				return finish(EventBlocked)
			}
			last = f.clock.Now().Add(-f.cfg.SamplePeriod)
			lostSince = time.Time{}
		}

		now := f.clock.Now()
		dt := now.Sub(last)
		last = now

		r, err := f.line.Read()
		if err != nil {
			// A failed read counts toward the line-lost ceiling but feeds
			// no evidence to the detectors.
			if lostSince.IsZero() {
				lostSince = now
			}
			if f.clock.Since(lostSince) > f.cfg.MaxLineLost {
				opsf("line sensor unreadable for %v: %v", f.cfg.MaxLineLost, err)
				return finish(EventEnd)
			}
			f.clock.Sleep(f.cfg.SamplePeriod)
			continue
		}

		f.det.Update(r, dt)
		tracef("follow %s int=%.3f end=%.3f side=%.3f", r, f.det.Intersection.Level(), f.det.End.Level(), f.det.SideLevel())

		switch {
		case f.det.Intersection.State():
			return finish(EventIntersection)
		case f.det.End.State():
			return finish(EventEnd)
		case r.AllOff():
			if lostSince.IsZero() {
				lostSince = now
			}
			if f.clock.Since(lostSince) > f.cfg.MaxLineLost {
				opsf("line lost for %v, treating as end of street", f.cfg.MaxLineLost)
				return finish(EventEnd)
			}
			_ = f.drive.Drive(searchMode(f.det.Side()), false)
		default:
			lostSince = time.Time{}
			mode, ok := steering[r]
			if !ok {
				mode = hal.Straight
			}
			_ = f.drive.Drive(mode, false)
		}

		f.clock.Sleep(f.cfg.SamplePeriod)
	}
}

// waitClear stops and idles until the forward range clears. It returns
// false if the obstruction is still there after BlockPersist.
func (f *Follower) waitClear(ctx context.Context) (bool, error) {
	_ = f.drive.Stop()
	start := f.clock.Now()
	diagf("paused: obstacle at %s cm", f.ranges().Forward)
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if !f.ranges().Forward.Below(f.cfg.ClearCM) {
			diagf("path clear after %v", f.clock.Since(start))
			return true, nil
		}
		if f.clock.Since(start) >= f.cfg.BlockPersist {
			return false, nil
		}
		f.clock.Sleep(f.cfg.SamplePeriod)
	}
}

func searchMode(s Side) hal.DriveMode {
	switch s {
	case SideLeft:
		return hal.SpinLeft
	case SideRight:
		return hal.SpinRight
	default:
		return hal.Straight
	}
}

// PullForward drives straight across the crossbar for the configured
// duration and reports whether a street continues ahead, judged by the
// middle sensor's presence level.
func (f *Follower) PullForward(ctx context.Context) (bool, error) {
	presence := NewHysteresis(f.cfg.EndTau, f.cfg.ThresholdHigh, f.cfg.ThresholdLow)
	start := f.clock.Now()
	last := start.Add(-f.cfg.SamplePeriod)
	defer f.det.Reset()

	for f.clock.Since(start) < f.cfg.PullForward {
		if err := ctx.Err(); err != nil {
			_ = f.drive.Stop()
			return false, err
		}
		now := f.clock.Now()
		dt := now.Sub(last)
		last = now

		if r, err := f.line.Read(); err == nil {
			raw := 0.0
			if r.Middle {
				raw = 1
			}
			presence.Update(raw, dt)
		}
		_ = f.drive.Drive(hal.Straight, false)
		f.clock.Sleep(f.cfg.SamplePeriod)
	}
	_ = f.drive.Stop()

	ahead := presence.Level() > f.cfg.PullForwardThreshold
	diagf("pull forward: presence=%.3f street ahead=%t", presence.Level(), ahead)
	return ahead, nil
}

// ForwardBlocked reports an obstacle within the blockage check distance.
// A missing echo is never blocked.
func (f *Follower) ForwardBlocked() bool {
	blocked := f.ranges().Forward.Below(f.cfg.BlockageCheckCM)
	if blocked {
		diagf("forward blocked at %s cm", f.ranges().Forward)
	}
	return blocked
}

// OnLine reports whether any line sensor currently sees tape.
func (f *Follower) OnLine() bool {
	r, err := f.line.Read()
	if err != nil {
		return false
	}
	return !r.AllOff()
}
