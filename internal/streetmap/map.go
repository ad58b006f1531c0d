// Package streetmap holds the robot's graph of line-marked streets: which
// intersections exist, what is known about each street leaving them, where
// the robot believes it is, and the shortest routes toward an active goal.
//
// A Map is owned by a single goroutine. Readers on other goroutines work from
// a Snapshot.
package streetmap

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownIntersection is returned when a coordinate has never been seen.
var ErrUnknownIntersection = errors.New("unknown intersection")

// Pose is the robot's believed location and orientation.
type Pose struct {
	X, Y    int
	Heading Heading
}

// Coord returns the pose's grid coordinate.
func (p Pose) Coord() Coord { return Coord{X: p.X, Y: p.Y} }

func (p Pose) String() string { return fmt.Sprintf("(%d,%d) h%d", p.X, p.Y, p.Heading) }

// Map is the aggregate of discovered intersections, the robot pose and the
// optional goal.
type Map struct {
	intersections map[Coord]*Intersection
	pose          Pose
	goal          *Coord
}

// New returns an empty map with the robot at the origin facing heading 0.
func New() *Map {
	return &Map{intersections: make(map[Coord]*Intersection)}
}

// Lookup returns the intersection at (x,y) without creating it.
func (m *Map) Lookup(x, y int) (*Intersection, bool) {
	i, ok := m.intersections[Coord{X: x, Y: y}]
	return i, ok
}

// GetOrCreate returns the intersection at (x,y), creating it with every
// street Unknown and unblocked when first referenced.
func (m *Map) GetOrCreate(x, y int) *Intersection {
	c := Coord{X: x, Y: y}
	if i, ok := m.intersections[c]; ok {
		return i
	}
	i := newIntersection(c)
	m.intersections[c] = i
	diagf("created intersection %v", c)
	return i
}

// Len is the number of known intersections.
func (m *Map) Len() int { return len(m.intersections) }

// Intersections returns all known intersections ordered by x then y.
func (m *Map) Intersections() []*Intersection {
	out := make([]*Intersection, 0, len(m.intersections))
	for _, i := range m.intersections {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].X != out[b].X {
			return out[a].X < out[b].X
		}
		return out[a].Y < out[b].Y
	})
	return out
}

// Street returns the status at (x,y,h); unknown intersections read Unknown.
func (m *Map) Street(x, y int, h Heading) StreetStatus {
	if i, ok := m.Lookup(x, y); ok {
		return i.Streets[h]
	}
	return Unknown
}

// IsBlocked reports the blocked flag at (x,y,h).
func (m *Map) IsBlocked(x, y int, h Heading) bool {
	if i, ok := m.Lookup(x, y); ok {
		return i.Blocked[h]
	}
	return false
}

// SetStreet records status for the street at (x,y,h). Writes that would
// overwrite a confirmed street, or otherwise violate the status transition
// rules, are refused and reported by a false return. Connected is mirrored
// onto the neighbor's reverse street, creating the neighbor if needed.
// Nonexistent is mirrored only when that neighbor is already known.
func (m *Map) SetStreet(x, y int, h Heading, status StreetStatus) bool {
	i := m.GetOrCreate(x, y)
	if !setLocal(i, h, status) {
		return false
	}
	next := i.Coord.Step(h)
	switch status {
	case Connected:
		setLocal(m.GetOrCreate(next.X, next.Y), h.Reverse(), Connected)
	case Nonexistent:
		if n, ok := m.intersections[next]; ok {
			setLocal(n, h.Reverse(), status)
		}
	case Unknown, Unexplored, DeadEnd:
	}
	return true
}

func setLocal(i *Intersection, h Heading, status StreetStatus) bool {
	cur := i.Streets[h]
	if !cur.CanBecome(status) {
		if cur != status {
			diagf("refused %v h%d %v -> %v", i.Coord, h, cur, status)
		}
		return false
	}
	i.Streets[h] = status
	if !status.Blockable() {
		i.Blocked[h] = false
	}
	return true
}

// SetBlocked sets the blocked flag at (x,y,h) and on the reverse street of
// a known neighbor. Nonexistent and DeadEnd streets are never blocked.
func (m *Map) SetBlocked(x, y int, h Heading, blocked bool) bool {
	i := m.GetOrCreate(x, y)
	if blocked && !i.Streets[h].Blockable() {
		return false
	}
	i.Blocked[h] = blocked
	if n, ok := m.intersections[i.Coord.Step(h)]; ok {
		back := h.Reverse()
		if !blocked || n.Streets[back].Blockable() {
			n.Blocked[back] = blocked
		}
	}
	if blocked {
		opsf("street %v h%d marked blocked", i.Coord, h)
	}
	return true
}

// ClearBlockages unblocks every street. Only an operator should do this.
func (m *Map) ClearBlockages() int {
	n := 0
	for _, i := range m.intersections {
		for h := range i.Blocked {
			if i.Blocked[h] {
				i.Blocked[h] = false
				n++
			}
		}
	}
	opsf("cleared %d blocked street ends", n)
	return n
}

// Pose returns the robot pose.
func (m *Map) Pose() Pose { return m.pose }

// Here returns the intersection the robot is at.
func (m *Map) Here() *Intersection { return m.GetOrCreate(m.pose.X, m.pose.Y) }

// SetPose overrides the robot pose. Normal motion goes through
// UpdateConnection, MarkTurn and MarkUTurn instead.
func (m *Map) SetPose(p Pose) {
	p.Heading %= NumHeadings
	m.pose = p
	m.GetOrCreate(p.X, p.Y)
	diagf("pose set to %v", p)
}

// Goal returns the active goal, if any.
func (m *Map) Goal() (Coord, bool) {
	if m.goal == nil {
		return Coord{}, false
	}
	return *m.goal, true
}

// AtGoal reports whether the robot stands on the active goal.
func (m *Map) AtGoal() bool {
	g, ok := m.Goal()
	return ok && g == m.pose.Coord()
}
