// Package hal defines the hardware capabilities the robot's control code
// consumes: differential drive, the three-element line sensor, the heading
// sensor and the proximity array.
package hal

import (
	"fmt"
	"strconv"
)

// DriveMode is a named differential drive setting.
type DriveMode uint8

const (
	Straight DriveMode = iota
	VeerLeft
	VeerRight
	SteerLeft
	SteerRight
	TurnLeft
	TurnRight
	HookLeft
	HookRight
	SpinLeft
	SpinRight
)

var driveLevels = map[DriveMode][2]float64{
	Straight:   {0.85, 0.83},
	VeerLeft:   {0.71, 0.80},
	VeerRight:  {0.84, 0.69},
	SteerLeft:  {0.70, 0.86},
	SteerRight: {0.90, 0.65},
	TurnLeft:   {0.60, 0.92},
	TurnRight:  {0.90, 0.55},
	HookLeft:   {0, 0.77},
	HookRight:  {0.77, 0},
	SpinLeft:   {-0.79, 0.79},
	SpinRight:  {0.79, -0.79},
}

var driveNames = map[DriveMode]string{
	Straight:   "straight",
	VeerLeft:   "veer-left",
	VeerRight:  "veer-right",
	SteerLeft:  "steer-left",
	SteerRight: "steer-right",
	TurnLeft:   "turn-left",
	TurnRight:  "turn-right",
	HookLeft:   "hook-left",
	HookRight:  "hook-right",
	SpinLeft:   "spin-left",
	SpinRight:  "spin-right",
}

// Levels returns the normalized (left, right) motor power for the mode.
// reverse negates both.
func (m DriveMode) Levels(reverse bool) (left, right float64) {
	l := driveLevels[m]
	if reverse {
		return -l[0], -l[1]
	}
	return l[0], l[1]
}

func (m DriveMode) String() string {
	if s, ok := driveNames[m]; ok {
		return s
	}
	return "DriveMode(" + strconv.Itoa(int(m)) + ")"
}

// Drive is the differential drive actuator.
type Drive interface {
	Drive(mode DriveMode, reverse bool) error
	Stop() error
	SetPWM(left, right float64) error
}

// LineReading is one sample of the three line sensors; true means the
// sensor sees the line.
type LineReading struct {
	Left, Middle, Right bool
}

// AllOn reports a solid crossbar under the sensors.
func (r LineReading) AllOn() bool { return r.Left && r.Middle && r.Right }

// AllOff reports that no sensor sees the line.
func (r LineReading) AllOff() bool { return !r.Left && !r.Middle && !r.Right }

// Centered reports the 010 pattern.
func (r LineReading) Centered() bool { return !r.Left && r.Middle && !r.Right }

func (r LineReading) String() string {
	b := func(v bool) byte {
		if v {
			return '1'
		}
		return '0'
	}
	return string([]byte{b(r.Left), b(r.Middle), b(r.Right)})
}

// LineSensor reads the line sensors.
type LineSensor interface {
	Read() (LineReading, error)
}

// HeadingSensor reads an absolute heading in degrees within (-180,180].
type HeadingSensor interface {
	ReadAngle() (float64, error)
}

// Echo is one ultrasonic range; OK is false when nothing answered.
type Echo struct {
	CM float64
	OK bool
}

// Below reports a valid echo closer than cm.
func (e Echo) Below(cm float64) bool { return e.OK && e.CM < cm }

func (e Echo) String() string {
	if !e.OK {
		return "-"
	}
	return fmt.Sprintf("%.1f", e.CM)
}

// Ranges is one reading of the left, forward and right proximity sensors.
type Ranges struct {
	Left, Forward, Right Echo
}

// ProximitySensor reads the proximity array.
type ProximitySensor interface {
	ReadAll() (Ranges, error)
}

// Triggerer is implemented by proximity sensors that must be pinged
// before each reading.
type Triggerer interface {
	Trigger() error
}
