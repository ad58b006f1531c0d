// Package bridge speaks the line protocol of the motor and sensor
// controller. A Link caches the latest telemetry from the serial mux and
// implements the hal interfaces on top of it.
package bridge

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/gridrunner/internal/hal"
	"github.com/banshee-data/gridrunner/internal/monitoring"
	"github.com/banshee-data/gridrunner/internal/serialmux"
	"github.com/banshee-data/gridrunner/internal/timeutil"
)

// ErrNoTelemetry is returned by sensor reads when the controller has not
// reported recently.
var ErrNoTelemetry = errors.New("no telemetry")

// DefaultMaxAge is how old a cached reading may be before it is refused.
const DefaultMaxAge = 200 * time.Millisecond

// DefaultRateHz is the telemetry rate requested at start-up.
const DefaultRateHz = 100

// Sender writes one command line to the controller.
type Sender interface {
	SendCommand(string) error
}

// InitCommands is the start-up sequence for the controller.
func InitCommands(rateHz int) []string {
	return []string{"RESET", fmt.Sprintf("RATE %d", rateHz)}
}

type reading[T any] struct {
	v  T
	at time.Time
	ok bool
}

// Link is the controller as seen by the robot. It is safe for concurrent
// use: the dispatcher goroutine writes telemetry while control loops read.
type Link struct {
	out    Sender
	clock  timeutil.Clock
	maxAge time.Duration

	mu      sync.RWMutex
	line    reading[hal.LineReading]
	heading reading[float64]
	prox    reading[hal.Ranges]
	lastAck string
	errs    int

	commands chan string
}

// NewLink creates a Link that sends commands through out.
func NewLink(out Sender, clock timeutil.Clock, maxAge time.Duration) *Link {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Link{out: out, clock: clock, maxAge: maxAge, commands: make(chan string, 16)}
}

// Commands delivers console lines received as CMD telemetry, e.g. from a
// radio remote attached to the controller.
func (l *Link) Commands() <-chan string { return l.commands }

// Dispatcher routes controller lines into the Link.
func (l *Link) Dispatcher() serialmux.Dispatcher {
	return serialmux.Dispatcher{
		serialmux.EventTypeLine:      l.handleLine,
		serialmux.EventTypeHeading:   l.handleHeading,
		serialmux.EventTypeProximity: l.handleProximity,
		serialmux.EventTypeCommand:   l.handleCommand,
		serialmux.EventTypeAck:       l.handleAck,
	}
}

func fields(payload string, n int) ([]string, error) {
	f := strings.Fields(payload)
	if len(f) != n+1 {
		return nil, fmt.Errorf("%q: want %d values, got %d", payload, n, len(f)-1)
	}
	return f[1:], nil
}

func (l *Link) handleLine(payload string) error {
	f, err := fields(payload, 3)
	if err != nil {
		return err
	}
	var bits [3]bool
	for i, v := range f {
		switch v {
		case "0":
		case "1":
			bits[i] = true
		default:
			return fmt.Errorf("%q: bad sensor value %q", payload, v)
		}
	}
	r := hal.LineReading{Left: bits[0], Middle: bits[1], Right: bits[2]}
	l.mu.Lock()
	l.line = reading[hal.LineReading]{v: r, at: l.clock.Now(), ok: true}
	l.mu.Unlock()
	return nil
}

func (l *Link) handleHeading(payload string) error {
	f, err := fields(payload, 1)
	if err != nil {
		return err
	}
	deg, err := strconv.ParseFloat(f[0], 64)
	if err != nil || math.IsNaN(deg) || math.IsInf(deg, 0) {
		return fmt.Errorf("%q: bad heading", payload)
	}
	l.mu.Lock()
	l.heading = reading[float64]{v: deg, at: l.clock.Now(), ok: true}
	l.mu.Unlock()
	return nil
}

func parseEcho(v string) (hal.Echo, error) {
	if v == "-" {
		return hal.Echo{}, nil
	}
	cm, err := strconv.ParseFloat(v, 64)
	if err != nil || cm < 0 {
		return hal.Echo{}, fmt.Errorf("bad range %q", v)
	}
	return hal.Echo{CM: cm, OK: true}, nil
}

func (l *Link) handleProximity(payload string) error {
	f, err := fields(payload, 3)
	if err != nil {
		return err
	}
	var echoes [3]hal.Echo
	for i, v := range f {
		if echoes[i], err = parseEcho(v); err != nil {
			return fmt.Errorf("%q: %w", payload, err)
		}
	}
	r := hal.Ranges{Left: echoes[0], Forward: echoes[1], Right: echoes[2]}
	l.mu.Lock()
	l.prox = reading[hal.Ranges]{v: r, at: l.clock.Now(), ok: true}
	l.mu.Unlock()
	return nil
}

func (l *Link) handleCommand(payload string) error {
	line := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(payload), "CMD"))
	if line == "" {
		return nil
	}
	select {
	case l.commands <- line:
	default:
		monitoring.Logf("bridge: dropped remote command %q, queue full", line)
	}
	return nil
}

func (l *Link) handleAck(payload string) error {
	payload = strings.TrimSpace(payload)
	l.mu.Lock()
	l.lastAck = payload
	if strings.HasPrefix(payload, "ERR") {
		l.errs++
	}
	l.mu.Unlock()
	if strings.HasPrefix(payload, "ERR") {
		monitoring.Logf("bridge: controller reported %q", payload)
	}
	return nil
}

// LastAck returns the most recent OK/ERR line and the number of errors
// the controller has reported.
func (l *Link) LastAck() (string, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastAck, l.errs
}

func (l *Link) fresh(at time.Time, ok bool) bool {
	return ok && l.clock.Since(at) <= l.maxAge
}

// Read implements hal.LineSensor.
func (l *Link) Read() (hal.LineReading, error) {
	l.mu.RLock()
	r := l.line
	l.mu.RUnlock()
	if !l.fresh(r.at, r.ok) {
		return hal.LineReading{}, fmt.Errorf("line sensor: %w", ErrNoTelemetry)
	}
	return r.v, nil
}

// ReadAngle implements hal.HeadingSensor.
func (l *Link) ReadAngle() (float64, error) {
	l.mu.RLock()
	r := l.heading
	l.mu.RUnlock()
	if !l.fresh(r.at, r.ok) {
		return 0, fmt.Errorf("heading: %w", ErrNoTelemetry)
	}
	return r.v, nil
}

// ReadAll implements hal.ProximitySensor.
func (l *Link) ReadAll() (hal.Ranges, error) {
	l.mu.RLock()
	r := l.prox
	l.mu.RUnlock()
	if !l.fresh(r.at, r.ok) {
		return hal.Ranges{}, fmt.Errorf("proximity: %w", ErrNoTelemetry)
	}
	return r.v, nil
}

// Trigger implements hal.Triggerer by asking for a proximity ping.
func (l *Link) Trigger() error { return l.out.SendCommand("PING") }

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

// SetPWM implements hal.Drive. Levels are clamped to [-1,1].
func (l *Link) SetPWM(left, right float64) error {
	return l.out.SendCommand(fmt.Sprintf("PWM %.2f %.2f", clamp(left), clamp(right)))
}

// Drive implements hal.Drive using the mode's motor levels.
func (l *Link) Drive(mode hal.DriveMode, reverse bool) error {
	left, right := mode.Levels(reverse)
	return l.SetPWM(left, right)
}

// Stop implements hal.Drive.
func (l *Link) Stop() error { return l.out.SendCommand("STOP") }

var (
	_ hal.Drive           = (*Link)(nil)
	_ hal.LineSensor      = (*Link)(nil)
	_ hal.HeadingSensor   = (*Link)(nil)
	_ hal.ProximitySensor = (*Link)(nil)
	_ hal.Triggerer       = (*Link)(nil)
)
