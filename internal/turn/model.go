// Package turn spins the robot onto a neighboring street and estimates how
// far it turned, fusing a time-based model with the heading sensor and
// quantizing the result to 45-degree heading steps.
package turn

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// StepDegrees is the angle of one heading step.
const StepDegrees = 45.0

// TimeModel predicts the angle turned from spin duration:
// base = A t² + B t + C, then a scale correction that grows toward Scale
// for large angles.
type TimeModel struct {
	A, B, C float64
	Scale   float64
}

// DefaultTimeModel returns the coefficients fitted for the reference robot.
func DefaultTimeModel() TimeModel {
	return TimeModel{A: -14.88, B: 162.92, C: -40.47, Scale: 1.14}
}

// Base returns the uncorrected quadratic prediction in degrees.
func (m TimeModel) Base(elapsed time.Duration) float64 {
	t := elapsed.Seconds()
	return m.A*t*t + m.B*t + m.C
}

// Predict returns the predicted unsigned turn angle in degrees, never
// negative.
func (m TimeModel) Predict(elapsed time.Duration) float64 {
	base := m.Base(elapsed)
	scale := m.Scale
	if base <= 180 {
		scale = 1 + (base/180)*(m.Scale-1)
	}
	return math.Max(0, base*scale)
}

// TimeFor inverts the quadratic: it returns the shortest non-negative spin
// duration whose base prediction equals degrees. ok is false when the
// model never reaches that angle.
func (m TimeModel) TimeFor(degrees float64) (d time.Duration, ok bool) {
	a, b, c := m.A, m.B, m.C-degrees
	var roots []float64
	if a == 0 {
		if b == 0 {
			return 0, false
		}
		roots = []float64{-c / b}
	} else {
		disc := b*b - 4*a*c
		if disc < 0 {
			return 0, false
		}
		s := math.Sqrt(disc)
		roots = []float64{(-b + s) / (2 * a), (-b - s) / (2 * a)}
	}
	best := math.Inf(1)
	for _, r := range roots {
		if r >= 0 && r < best {
			best = r
		}
	}
	if math.IsInf(best, 1) {
		return 0, false
	}
	return time.Duration(best * float64(time.Second)), true
}

// Weights balance the two turn estimates.
type Weights struct {
	Time   float64
	Sensor float64
}

// DefaultWeights favors the heading sensor.
func DefaultWeights() Weights { return Weights{Time: 0.4, Sensor: 0.6} }

// Estimate is a fused turn estimate. Angles are signed, left positive.
type Estimate struct {
	Steps       int
	Weighted    float64
	TimeAngle   float64
	SensorAngle float64
}

// Combine fuses the time and sensor angles and rounds the weighted mean to
// the nearest whole step, halves away from zero.
func Combine(w Weights, timeAngle, sensorAngle float64) Estimate {
	total := w.Time + w.Sensor
	weighted := timeAngle
	if total > 0 {
		weighted = (w.Time*timeAngle + w.Sensor*sensorAngle) / total
	}
	return Estimate{
		Steps:       int(math.Round(weighted / StepDegrees)),
		Weighted:    weighted,
		TimeAngle:   timeAngle,
		SensorAngle: sensorAngle,
	}
}

// Measured is the best signed angle available for the turn: the sensor's
// when it saw any rotation, otherwise the fused one.
func (e Estimate) Measured() float64 {
	if e.SensorAngle != 0 {
		return e.SensorAngle
	}
	return e.Weighted
}

// HeadingIntegrator accumulates the signed rotation seen by an absolute
// heading sensor, unwrapping across the ±180 seam.
type HeadingIntegrator struct {
	prev    float64
	total   float64
	started bool
	samples int
}

// Add feeds one absolute heading in degrees.
func (h *HeadingIntegrator) Add(angle float64) {
	h.samples++
	if !h.started {
		h.prev = angle
		h.started = true
		return
	}
	h.total += WrapDelta(angle - h.prev)
	h.prev = angle
}

// Total returns the accumulated rotation, counter-clockwise positive.
func (h *HeadingIntegrator) Total() float64 { return h.total }

// Samples returns the number of headings fed so far.
func (h *HeadingIntegrator) Samples() int { return h.samples }

// WrapDelta folds an angle difference into (-180, 180].
func WrapDelta(d float64) float64 {
	d = math.Mod(d, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}

// Sample is one observed spin for calibration.
type Sample struct {
	Elapsed time.Duration
	Degrees float64
}

// ErrTooFewSamples is returned by Calibrate when the fit is underdetermined.
var ErrTooFewSamples = errors.New("calibration needs at least 3 distinct durations")

// Calibrate fits the quadratic coefficients to samples by least squares.
// scale is carried into the returned model unchanged.
func Calibrate(samples []Sample, scale float64) (TimeModel, error) {
	distinct := make(map[time.Duration]struct{})
	for _, s := range samples {
		distinct[s.Elapsed] = struct{}{}
	}
	if len(distinct) < 3 {
		return TimeModel{}, ErrTooFewSamples
	}

	n := len(samples)
	x := mat.NewDense(n, 3, nil)
	y := mat.NewVecDense(n, nil)
	for i, s := range samples {
		t := s.Elapsed.Seconds()
		x.SetRow(i, []float64{t * t, t, 1})
		y.SetVec(i, s.Degrees)
	}

	var beta mat.VecDense
	if err := beta.SolveVec(x, y); err != nil {
		return TimeModel{}, fmt.Errorf("least squares fit: %w", err)
	}
	return TimeModel{A: beta.AtVec(0), B: beta.AtVec(1), C: beta.AtVec(2), Scale: scale}, nil
}

// RMSE returns the root mean square error of the base prediction over
// samples.
func (m TimeModel) RMSE(samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		e := m.Base(s.Elapsed) - s.Degrees
		sum += e * e
	}
	return math.Sqrt(sum / float64(len(samples)))
}
