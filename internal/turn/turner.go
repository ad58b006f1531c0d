package turn

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/banshee-data/gridrunner/internal/config"
	"github.com/banshee-data/gridrunner/internal/hal"
	"github.com/banshee-data/gridrunner/internal/linefollow"
	"github.com/banshee-data/gridrunner/internal/timeutil"
)

// ErrNoStreet is returned when a spin finds no street within MaxSpin.
var ErrNoStreet = errors.New("no street found while turning")

// Direction is the spin direction. Its value is the sign of the heading
// change, left positive.
type Direction int8

const (
	Left  Direction = 1
	Right Direction = -1
)

func (d Direction) String() string {
	if d == Right {
		return "right"
	}
	return "left"
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction { return -d }

// Config holds the turn parameters.
type Config struct {
	Model          TimeModel
	Weights        Weights
	SpinTau        float64       // seconds (default: 0.1)
	SpinThreshold  float64       // default: 0.63
	SamplePeriod   time.Duration // default: 10ms
	MaxSpin        time.Duration // default: 6s
	RealignTimeout time.Duration // default: 1.5s
	RealignPower   float64       // default: 0.6
}

// DefaultConfig returns a Config loaded from the canonical tuning defaults
// file. Panics if the file cannot be found.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Model: TimeModel{
			A:     cfg.GetTurnModelA(),
			B:     cfg.GetTurnModelB(),
			C:     cfg.GetTurnModelC(),
			Scale: cfg.GetTurnScale(),
		},
		Weights:        Weights{Time: cfg.GetTimeWeight(), Sensor: cfg.GetSensorWeight()},
		SpinTau:        cfg.GetSpinTau(),
		SpinThreshold:  cfg.GetSpinThreshold(),
		SamplePeriod:   cfg.GetSamplePeriod(),
		MaxSpin:        cfg.GetMaxSpin(),
		RealignTimeout: cfg.GetRealignTimeout(),
		RealignPower:   cfg.GetRealignPower(),
	}
}

// Result describes a completed turn.
type Result struct {
	Estimate
	Elapsed   time.Duration
	Realigned bool
}

// Turner performs spin turns from one street to the next.
type Turner struct {
	drive   hal.Drive
	line    hal.LineSensor
	heading hal.HeadingSensor
	clock   timeutil.Clock
	cfg     Config
}

// NewTurner creates a Turner. heading may be nil, in which case turns are
// estimated from time alone.
func NewTurner(drive hal.Drive, line hal.LineSensor, heading hal.HeadingSensor, clock timeutil.Clock, cfg Config) *Turner {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Turner{drive: drive, line: line, heading: heading, clock: clock, cfg: cfg}
}

func (t *Turner) readHeading(h *HeadingIntegrator) {
	if t.heading == nil {
		return
	}
	if a, err := t.heading.ReadAngle(); err == nil {
		h.Add(a)
	}
}

// Turn spins in dir until the robot leaves the current street and lands on
// the next one, then re-centers on the new line. The returned estimate is
// signed, left positive.
func (t *Turner) Turn(ctx context.Context, dir Direction) (Result, error) {
	spin := hal.SpinLeft
	if dir == Right {
		spin = hal.SpinRight
	}

	level := linefollow.NewHysteresis(t.cfg.SpinTau, t.cfg.SpinThreshold, 0)
	var heading HeadingIntegrator
	start := t.clock.Now()
	last := start.Add(-t.cfg.SamplePeriod)
	t.readHeading(&heading)
	_ = t.drive.Drive(spin, false)

	// Phase 1 waits to leave the starting street, phase 2 to find the next.
	phase := 1
	for {
		if err := ctx.Err(); err != nil {
			_ = t.drive.Stop()
			return Result{}, err
		}
		if t.clock.Since(start) > t.cfg.MaxSpin {
			_ = t.drive.Stop()
			opsf("turn %s: no street after %v (phase %d)", dir, t.cfg.MaxSpin, phase)
			return Result{Elapsed: t.clock.Since(start)}, ErrNoStreet
		}

		t.readHeading(&heading)
		if r, err := t.line.Read(); err == nil {
			now := t.clock.Now()
			dt := now.Sub(last)
			last = now

			raw := 0.0
			if r.Middle == (phase == 2) {
				raw = 1
			}
			if level.Update(raw, dt) {
				if phase == 2 {
					break
				}
				phase = 2
				level.Reset()
			}
			tracef("turn %s phase=%d %s level=%.3f heading=%.1f", dir, phase, r, level.Level(), heading.Total())
		}
		t.clock.Sleep(t.cfg.SamplePeriod)
	}
	_ = t.drive.Stop()

	elapsed := t.clock.Since(start)
	sign := float64(dir)
	timeAngle := sign * t.cfg.Model.Predict(elapsed)
	realigned := t.realign(ctx, dir)

	var est Estimate
	if heading.Samples() < 2 {
		est = Combine(Weights{Time: 1}, timeAngle, 0)
	} else {
		sensorAngle := sign * math.Abs(heading.Total())
		est = Combine(t.cfg.Weights, timeAngle, sensorAngle)
	}
	diagf("turn %s: elapsed=%v time=%.1f sensor=%.1f weighted=%.1f steps=%d",
		dir, elapsed, est.TimeAngle, est.SensorAngle, est.Weighted, est.Steps)

	return Result{Estimate: est, Elapsed: elapsed, Realigned: realigned}, nil
}

// realign spins back against the turn at reduced power until the line is
// centered under the middle sensor or the timeout passes.
func (t *Turner) realign(ctx context.Context, dir Direction) bool {
	p := t.cfg.RealignPower
	if dir == Left {
		_ = t.drive.SetPWM(p, -p)
	} else {
		_ = t.drive.SetPWM(-p, p)
	}
	defer func() { _ = t.drive.Stop() }()

	start := t.clock.Now()
	for t.clock.Since(start) < t.cfg.RealignTimeout {
		if ctx.Err() != nil {
			return false
		}
		if r, err := t.line.Read(); err == nil && r.Centered() {
			return true
		}
		t.clock.Sleep(t.cfg.SamplePeriod)
	}
	diagf("realign %s: not centered after %v", dir, t.cfg.RealignTimeout)
	return false
}
