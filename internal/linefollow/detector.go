// Package linefollow drives the robot along a taped street and turns the
// noisy three-sensor line readings into discrete events: an intersection
// crossbar, the end of the street, or a persistent forward obstruction.
package linefollow

import (
	"time"

	"github.com/banshee-data/gridrunner/internal/hal"
)

// Hysteresis is a leaky integrator followed by a Schmitt trigger. The level
// tracks raw evidence with time constant Tau; the state turns on when the
// level reaches High and off when it falls to Low, holding in between.
type Hysteresis struct {
	Tau  float64 // seconds
	High float64
	Low  float64

	level float64
	state bool
}

// NewHysteresis returns a detector at level 0, state off.
func NewHysteresis(tau, high, low float64) *Hysteresis {
	return &Hysteresis{Tau: tau, High: high, Low: low}
}

// Update feeds one raw sample observed dt after the previous one and
// returns the new state.
func (h *Hysteresis) Update(raw float64, dt time.Duration) bool {
	h.level += gain(dt, h.Tau) * (raw - h.level)
	if h.level >= h.High {
		h.state = true
	} else if h.level <= h.Low {
		h.state = false
	}
	return h.state
}

// Level returns the integrator level.
func (h *Hysteresis) Level() float64 { return h.level }

// State returns the trigger state.
func (h *Hysteresis) State() bool { return h.state }

// Reset returns the detector to level 0, state off.
func (h *Hysteresis) Reset() {
	h.level = 0
	h.state = false
}

// gain is dt/tau, clamped to 1 so a long gap snaps the level to raw rather
// than overshooting.
func gain(dt time.Duration, tau float64) float64 {
	if tau <= 0 {
		return 1
	}
	g := dt.Seconds() / tau
	if g > 1 {
		return 1
	}
	if g < 0 {
		return 0
	}
	return g
}

// Side is which way the line last drifted relative to the sensor cluster.
type Side int8

const (
	SideCenter Side = iota
	SideLeft
	SideRight
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return "center"
	}
}

// rawSide maps a sensor pattern to signed side evidence, positive when
// the line sits under the left sensor.
func rawSide(r hal.LineReading) float64 {
	switch r {
	case hal.LineReading{Left: true}:
		return 1
	case hal.LineReading{Left: true, Middle: true}:
		return 0.5
	case hal.LineReading{Middle: true, Right: true}:
		return -0.5
	case hal.LineReading{Right: true}:
		return -1
	default:
		return 0
	}
}

// Detectors bundles the intersection and end detectors with the side
// estimator. All three advance together on every sample.
type Detectors struct {
	Intersection *Hysteresis
	End          *Hysteresis

	sideTau       float64
	sideThreshold float64
	sideLevel     float64
	side          Side
}

// NewDetectors builds the detector set from cfg.
func NewDetectors(cfg Config) *Detectors {
	return &Detectors{
		Intersection:  NewHysteresis(cfg.IntersectionTau, cfg.ThresholdHigh, cfg.ThresholdLow),
		End:           NewHysteresis(cfg.EndTau, cfg.ThresholdHigh, cfg.ThresholdLow),
		sideTau:       cfg.SideTau,
		sideThreshold: cfg.SideThreshold,
	}
}

// Update advances every detector by one sample.
func (d *Detectors) Update(r hal.LineReading, dt time.Duration) {
	intersection := 0.0
	if r.AllOn() {
		intersection = 1
	}
	d.Intersection.Update(intersection, dt)

	// Only a centered robot that loses all three sensors has reached the
	// end; drifting off one edge is handled by the side search.
	end := 0.0
	if r.AllOff() && d.side == SideCenter {
		end = 1
	}
	d.End.Update(end, dt)

	// The side estimate freezes while off-line so the search direction
	// survives until the line is reacquired.
	if !r.AllOff() {
		d.sideLevel += gain(dt, d.sideTau) * (rawSide(r) - d.sideLevel)
		switch {
		case d.sideLevel > d.sideThreshold:
			d.side = SideLeft
		case d.sideLevel < -d.sideThreshold:
			d.side = SideRight
		default:
			d.side = SideCenter
		}
	}
}

// Side returns the current side estimate.
func (d *Detectors) Side() Side { return d.side }

// SideLevel returns the side integrator level.
func (d *Detectors) SideLevel() float64 { return d.sideLevel }

// Reset clears all levels and states.
func (d *Detectors) Reset() {
	d.Intersection.Reset()
	d.End.Reset()
	d.sideLevel = 0
	d.side = SideCenter
}
