// Package sim is a grid world that stands in for the robot's motion
// primitives. The planner drives it exactly as it drives the hardware, so
// exploration and navigation can be exercised without sensors.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/gridrunner/internal/linefollow"
	"github.com/banshee-data/gridrunner/internal/streetmap"
	"github.com/banshee-data/gridrunner/internal/turn"
)

// Kind is what physically leaves an intersection in one heading.
type Kind uint8

const (
	None   Kind = iota
	Street      // reaches the neighboring intersection
	Stub        // stops short of the next intersection
)

type edge struct {
	c streetmap.Coord
	h streetmap.Heading
}

type obstacle struct {
	// visible obstacles are seen from the intersection; hidden ones only
	// stop the robot partway along the street.
	visible bool
}

// World is the simulated grid plus the robot's true position. It is safe
// for concurrent use.
type World struct {
	mu        sync.Mutex
	streets   map[streetmap.Coord][streetmap.NumHeadings]Kind
	obstacles map[edge]obstacle

	at      streetmap.Coord
	heading streetmap.Heading
	// mid means the robot is partway along the street leaving at in
	// street; it faces either along it or back toward at.
	mid     bool
	street  streetmap.Heading
	offLine bool

	// AngleBias is added to every sensor angle, in the turn's direction.
	AngleBias float64
	// Model converts turn angles to synthetic spin durations.
	Model turn.TimeModel

	turns   int
	follows int
}

// NewWorld returns an empty world with the robot at the origin facing
// heading 0.
func NewWorld() *World {
	return &World{
		streets:   make(map[streetmap.Coord][streetmap.NumHeadings]Kind),
		obstacles: make(map[edge]obstacle),
		Model:     turn.DefaultTimeModel(),
	}
}

// Grid builds a cols×rows lattice of cardinal streets with corners at
// (0,0) and (cols-1,rows-1).
func Grid(cols, rows int) *World {
	w := NewWorld()
	for x := 0; x < cols; x++ {
		for y := 0; y < rows; y++ {
			if x+1 < cols {
				w.AddStreet(x, y, 6)
			}
			if y+1 < rows {
				w.AddStreet(x, y, 0)
			}
		}
	}
	return w
}

func (w *World) set(c streetmap.Coord, h streetmap.Heading, k Kind) {
	s := w.streets[c]
	s[h] = k
	w.streets[c] = s
}

// AddStreet connects (x,y) to its neighbor in heading h.
func (w *World) AddStreet(x, y int, h streetmap.Heading) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c := streetmap.Coord{X: x, Y: y}
	w.set(c, h, Street)
	w.set(c.Step(h), h.Reverse(), Street)
}

// AddStub adds a dead-end street leaving (x,y) in heading h.
func (w *World) AddStub(x, y int, h streetmap.Heading) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c := streetmap.Coord{X: x, Y: y}
	w.set(c, h, Stub)
	if _, ok := w.streets[c]; !ok {
		w.streets[c] = [streetmap.NumHeadings]Kind{}
	}
}

// Block puts an obstacle on the street leaving (x,y) in heading h. A
// visible obstacle is reported by ForwardBlocked from either end; a hidden
// one is only met while following the line.
func (w *World) Block(x, y int, h streetmap.Heading, visible bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c := streetmap.Coord{X: x, Y: y}
	w.obstacles[edge{c, h}] = obstacle{visible: visible}
	w.obstacles[edge{c.Step(h), h.Reverse()}] = obstacle{visible: visible}
}

// Unblock removes an obstacle placed by Block.
func (w *World) Unblock(x, y int, h streetmap.Heading) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c := streetmap.Coord{X: x, Y: y}
	delete(w.obstacles, edge{c, h})
	delete(w.obstacles, edge{c.Step(h), h.Reverse()})
}

// Place stands the robot on the crossbar of (x,y) facing h.
func (w *World) Place(x, y int, h streetmap.Heading) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.at, w.heading, w.mid, w.offLine = streetmap.Coord{X: x, Y: y}, h, false, false
}

// PlaceOnStreet puts the robot on the street that arrives at (x,y)
// travelling in heading h, short of the intersection.
func (w *World) PlaceOnStreet(x, y int, h streetmap.Heading) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.at, w.heading, w.mid, w.street, w.offLine = streetmap.Coord{X: x, Y: y}, h, true, h.Reverse(), false
}

// PlaceOffLine is PlaceOnStreet with the sensors beside the tape; the
// first turn finds the line.
func (w *World) PlaceOffLine(x, y int, h streetmap.Heading) {
	w.PlaceOnStreet(x, y, h)
	w.mu.Lock()
	w.offLine = true
	w.mu.Unlock()
}

// Robot returns the robot's true intersection and heading, and whether it
// is partway along a street.
func (w *World) Robot() (streetmap.Coord, streetmap.Heading, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.at, w.heading, w.mid
}

// Counts returns how many turns and line follows the robot performed.
func (w *World) Counts() (turns, follows int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.turns, w.follows
}

// Expected is the status a complete exploration should record.
func (w *World) Expected(x, y int, h streetmap.Heading) streetmap.StreetStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.streets[streetmap.Coord{X: x, Y: y}][h] {
	case Street:
		return streetmap.Connected
	case Stub:
		return streetmap.DeadEnd
	default:
		return streetmap.Nonexistent
	}
}

// Intersections lists every coordinate with at least one street.
func (w *World) Intersections() []streetmap.Coord {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]streetmap.Coord, 0, len(w.streets))
	for c := range w.streets {
		out = append(out, c)
	}
	return out
}

func (w *World) kind(c streetmap.Coord, h streetmap.Heading) Kind {
	return w.streets[c][h]
}

// FollowLine drives to the next event along the current street.
func (w *World) FollowLine(ctx context.Context) (linefollow.Event, error) {
	if err := ctx.Err(); err != nil {
		return linefollow.EventNone, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.follows++

	if w.offLine {
		return linefollow.EventEnd, nil
	}
	if w.mid && w.heading == w.street.Reverse() {
		w.mid = false
		return linefollow.EventIntersection, nil
	}
	if !w.mid {
		w.street = w.heading
	}
	if _, ok := w.obstacles[edge{w.at, w.street}]; ok {
		w.mid = true
		return linefollow.EventBlocked, nil
	}
	switch w.kind(w.at, w.street) {
	case Street:
		w.at = w.at.Step(w.street)
		w.mid = false
		return linefollow.EventIntersection, nil
	default:
		// A stub, or tape that was never there: either way the line ends.
		w.mid = true
		return linefollow.EventEnd, nil
	}
}

// PullForward reports whether a street leaves the intersection ahead.
func (w *World) PullForward(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.mid || w.offLine {
		return false, nil
	}
	return w.kind(w.at, w.heading) != None, nil
}

// Turn spins in dir to the next street, as seen by the line sensors.
func (w *World) Turn(ctx context.Context, dir turn.Direction) (turn.Result, error) {
	if err := ctx.Err(); err != nil {
		return turn.Result{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turns++

	switch {
	case w.offLine:
		w.offLine = false
		return w.result(dir, 1), nil
	case w.mid:
		// The only tape in reach is the street itself, half a turn away.
		w.heading = w.heading.Reverse()
		return w.result(dir, 4), nil
	}
	for s := 1; s <= streetmap.NumHeadings; s++ {
		h := w.heading.Add(int(dir) * s)
		if w.kind(w.at, h) != None {
			w.heading = h
			return w.result(dir, s), nil
		}
	}
	return turn.Result{Elapsed: 6 * time.Second}, fmt.Errorf("sim at %v: %w", w.at, turn.ErrNoStreet)
}

func (w *World) result(dir turn.Direction, steps int) turn.Result {
	angle := float64(dir) * float64(steps) * turn.StepDegrees
	sensor := angle + float64(dir)*w.AngleBias
	elapsed, _ := w.Model.TimeFor(float64(steps) * turn.StepDegrees)
	return turn.Result{
		Estimate:  turn.Combine(turn.DefaultWeights(), angle, sensor),
		Elapsed:   elapsed,
		Realigned: true,
	}
}

// ForwardBlocked reports a visible obstacle on the street ahead.
func (w *World) ForwardBlocked() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.mid || w.offLine {
		return false
	}
	o, ok := w.obstacles[edge{w.at, w.heading}]
	return ok && o.visible
}

// OnLine reports whether the sensors see tape.
func (w *World) OnLine() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.offLine
}
