package streetmap

import "math"

// turnWindow bounds how far MarkTurn may move the committed heading away
// from the requested one.
const turnWindow = 2

// DiagonalPolicy controls which neighboring streets are ruled out when a
// street is classified on arrival at an intersection.
type DiagonalPolicy struct {
	// Enabled applies the exclusion at all. Grids with coexisting cardinal
	// and diagonal streets should disable it.
	Enabled bool
	// Adjacent excludes headings ±1 from a street that continues ahead.
	Adjacent bool
	// Back excludes headings ±3, the diagonals beside the street just driven.
	Back bool
}

// DefaultDiagonalPolicy matches a grid where a street never has a diagonal
// neighbor 45° away from it.
func DefaultDiagonalPolicy() DiagonalPolicy {
	return DiagonalPolicy{Enabled: true, Adjacent: true, Back: true}
}

// MarkTurn commits a rotation of delta steps (positive is left). measured is
// the sensor's signed angle in degrees; zero means no measurement, and the
// nominal angle of delta is used. When the requested heading lands on a
// street known not to exist, the nearest heading within two steps whose
// expected rotation best matches measured is used instead. Headings swept
// past on the way are recorded as Nonexistent.
func (m *Map) MarkTurn(delta int, measured float64) Heading {
	if measured == 0 {
		measured = float64(delta) * 45
	}
	here := m.Here()
	prev := m.pose.Heading
	naive := prev.Add(delta)
	chosen := naive

	if here.Streets[naive] == Nonexistent {
		best := -1
		bestErr := math.Inf(1)
		for d := 1; d <= turnWindow; d++ {
			for _, off := range []int{d, -d} {
				c := naive.Add(off)
				if here.Streets[c] == Nonexistent || (c == prev && delta%NumHeadings != 0) {
					continue
				}
				err := math.Abs(expectedAngle(prev, c, measured) - measured)
				if err < bestErr {
					best, bestErr = int(c), err
				}
			}
		}
		if best >= 0 {
			chosen = Heading(best)
			diagf("turn correction at %v: requested h%d, measured %.1f°, chose h%d, candidates %v",
				here.Coord, naive, measured, chosen, PossibleAngles(prev, here.Streets))
		} else {
			opsf("turn at %v landed on nonexistent h%d with no alternative", here.Coord, naive)
		}
	}

	if here.Streets[chosen] == Unknown {
		setLocal(here, chosen, Unexplored)
	}

	dir := 1
	if measured < 0 {
		dir = -1
	}
	steps := ((int(chosen) - int(prev)) * dir) % NumHeadings
	if steps < 0 {
		steps += NumHeadings
	}
	if chosen == prev && delta != 0 && delta%NumHeadings == 0 {
		// A full revolution passed every other heading.
		steps = NumHeadings
	}
	for s := 1; s < steps; s++ {
		h := prev.Add(s * dir)
		if here.Streets[h].Explorable() {
			setLocal(here, h, Nonexistent)
		}
	}

	m.pose.Heading = chosen
	tracef("turn delta=%d measured=%.1f %v -> h%d", delta, measured, here.Coord, chosen)
	return chosen
}

// expectedAngle is the signed rotation from prev to c, taken in the same
// rotational sense as measured.
func expectedAngle(prev, c Heading, measured float64) float64 {
	if measured >= 0 {
		return float64(((int(c)-int(prev))%NumHeadings+NumHeadings)%NumHeadings) * 45
	}
	return -float64(((int(prev)-int(c))%NumHeadings+NumHeadings)%NumHeadings) * 45
}

// PossibleAngles lists the signed rotation to every heading at here whose
// street may exist. Left rotations are positive, right negative.
func PossibleAngles(prev Heading, streets [NumHeadings]StreetStatus) map[Heading][2]float64 {
	out := make(map[Heading][2]float64)
	for h := Heading(0); h < NumHeadings; h++ {
		if streets[h] == Nonexistent || h == prev {
			continue
		}
		out[h] = [2]float64{expectedAngle(prev, h, 1), expectedAngle(prev, h, -1)}
	}
	return out
}

// UpdateConnection records that the robot drove the street ahead and arrived
// at the next intersection.
func (m *Map) UpdateConnection() Pose {
	here := m.Here()
	h := m.pose.Heading
	if here.Streets[h] != DeadEnd {
		if here.Streets[h] != Connected && !setLocal(here, h, Connected) {
			opsf("could not confirm street %v h%d (%v)", here.Coord, h, here.Streets[h])
		}
	}
	next := m.GetOrCreate(here.Coord.Step(h).X, here.Coord.Step(h).Y)
	if back := h.Reverse(); next.Streets[back] != DeadEnd && next.Streets[back] != Connected {
		setLocal(next, back, Connected)
	}
	m.pose.X, m.pose.Y = next.X, next.Y
	diagf("advanced to %v", m.pose)
	return m.pose
}

// MarkDeadEnd records that the street ahead ends before the next
// intersection and returns the pose at detection. A Connected street is
// overwritten too, along with the neighbor's Connected reverse street, so no
// route uses it from either end. Nonexistent streets are left alone.
func (m *Map) MarkDeadEnd() Pose {
	here := m.Here()
	h := m.pose.Heading
	if here.Streets[h] == Connected {
		opsf("connected street %v h%d now ends", here.Coord, h)
		if n, ok := m.intersections[here.Coord.Step(h)]; ok && n.Streets[h.Reverse()] == Connected {
			forceDeadEnd(n, h.Reverse())
		}
	}
	forceDeadEnd(here, h)
	opsf("dead end at %v", m.pose)
	return m.pose
}

func forceDeadEnd(i *Intersection, h Heading) {
	if i.Streets[h] == Nonexistent {
		return
	}
	i.Streets[h] = DeadEnd
	i.Blocked[h] = false
}

// MarkUTurn commits a half turn in place.
func (m *Map) MarkUTurn() Pose {
	m.pose.Heading = m.pose.Heading.Reverse()
	return m.pose
}

// ClassifyArrival records what a pull-forward found beyond the intersection
// the robot just reached.
func (m *Map) ClassifyArrival(streetAhead bool, policy DiagonalPolicy) {
	p := m.pose
	if streetAhead {
		m.SetStreet(p.X, p.Y, p.Heading, Unexplored)
	} else {
		m.SetStreet(p.X, p.Y, p.Heading, Nonexistent)
	}
	if !policy.Enabled {
		return
	}
	var offsets []int
	if streetAhead && policy.Adjacent {
		offsets = append(offsets, 1, -1)
	}
	if policy.Back {
		offsets = append(offsets, 3, -3)
	}
	for _, off := range offsets {
		h := p.Heading.Add(off)
		if m.Street(p.X, p.Y, h) == Unknown {
			m.SetStreet(p.X, p.Y, h, Nonexistent)
		}
	}
}
