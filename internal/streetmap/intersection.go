package streetmap

import (
	"fmt"
	"math"
)

// Coord identifies an intersection on the grid.
type Coord struct {
	X, Y int
}

// Step returns the neighboring coordinate along h.
func (c Coord) Step(h Heading) Coord {
	dx, dy := h.Delta()
	return Coord{X: c.X + dx, Y: c.Y + dy}
}

// Distance is the straight-line distance between two coordinates.
func (c Coord) Distance(o Coord) float64 {
	return math.Hypot(float64(c.X-o.X), float64(c.Y-o.Y))
}

func (c Coord) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Y) }

// Intersection is a node of the street graph with one edge slot per heading.
type Intersection struct {
	Coord
	Streets [NumHeadings]StreetStatus
	Blocked [NumHeadings]bool

	cost      float64
	direction Heading
	routed    bool
}

func newIntersection(c Coord) *Intersection {
	return &Intersection{Coord: c, cost: math.Inf(1)}
}

// Cost is the last computed path cost to the goal, +Inf when unreached.
func (i *Intersection) Cost() float64 { return i.cost }

// Direction is the heading to take from here to move one hop closer to the
// goal. ok is false when no route was found.
func (i *Intersection) Direction() (h Heading, ok bool) {
	return i.direction, i.routed
}

// Routable reports whether the edge along h may be used for routing.
func (i *Intersection) Routable(h Heading) bool {
	return i.Streets[h] == Connected && !i.Blocked[h]
}

// Unvisited reports whether any unblocked street still needs exploring.
func (i *Intersection) Unvisited() bool {
	for h := Heading(0); h < NumHeadings; h++ {
		if i.Streets[h].Explorable() && !i.Blocked[h] {
			return true
		}
	}
	return false
}

func (i *Intersection) resetRoute() {
	i.cost = math.Inf(1)
	i.direction = 0
	i.routed = false
}
