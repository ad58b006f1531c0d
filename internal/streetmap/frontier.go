package streetmap

import (
	"math"
	"sort"
)

// FrontierKind says where the next exploration target lies.
type FrontierKind uint8

const (
	// FrontierDone means no unblocked Unknown or Unexplored street remains
	// anywhere reachable.
	FrontierDone FrontierKind = iota
	// FrontierLocalUnknown is an Unknown street at the robot's intersection.
	FrontierLocalUnknown
	// FrontierLocalUnexplored is an Unexplored street at the robot's
	// intersection.
	FrontierLocalUnexplored
	// FrontierRemote is another intersection; it has been set as the goal.
	FrontierRemote
)

func (k FrontierKind) String() string {
	switch k {
	case FrontierDone:
		return "done"
	case FrontierLocalUnknown:
		return "local-unknown"
	case FrontierLocalUnexplored:
		return "local-unexplored"
	case FrontierRemote:
		return "remote"
	}
	return "invalid"
}

// FrontierChoice is the result of Frontier.
type FrontierChoice struct {
	Kind    FrontierKind
	Heading Heading // local choices
	Target  Coord   // remote choice
	Score   float64 // remote choice
}

// Frontier picks the next exploration target. Streets at the robot's own
// intersection win, Unknown before Unexplored, turning as little as
// possible. Otherwise the intersection with an open street that minimizes
// path cost plus, when far is set, the straight-line distance from the
// candidate to far becomes the Dijkstra goal.
func (m *Map) Frontier(far *Coord) FrontierChoice {
	here := m.Here()
	for _, want := range []StreetStatus{Unknown, Unexplored} {
		if h, ok := nearestHeading(here, m.pose.Heading, want); ok {
			kind := FrontierLocalUnknown
			if want == Unexplored {
				kind = FrontierLocalUnexplored
			}
			return FrontierChoice{Kind: kind, Heading: h}
		}
	}

	costs := m.sweep(here, nil)
	type candidate struct {
		c     Coord
		score float64
	}
	var cands []candidate
	for _, i := range m.intersections {
		if i == here || !i.Unvisited() {
			continue
		}
		cost, ok := costs[i.Coord]
		if !ok || math.IsInf(cost, 1) {
			continue
		}
		score := cost
		if far != nil {
			score += i.Coord.Distance(*far)
		}
		cands = append(cands, candidate{c: i.Coord, score: score})
	}
	if len(cands) == 0 {
		m.ClearGoal()
		diagf("frontier exhausted at %v", m.pose)
		return FrontierChoice{Kind: FrontierDone}
	}
	sort.Slice(cands, func(a, b int) bool {
		if cands[a].score != cands[b].score {
			return cands[a].score < cands[b].score
		}
		if cands[a].c.X != cands[b].c.X {
			return cands[a].c.X < cands[b].c.X
		}
		return cands[a].c.Y < cands[b].c.Y
	})
	best := cands[0]
	// The candidate is known and was reached by the sweep, so this cannot fail.
	_ = m.Dijkstra(best.c.X, best.c.Y)
	diagf("frontier target %v score %.2f (%d candidates)", best.c, best.score, len(cands))
	return FrontierChoice{Kind: FrontierRemote, Target: best.c, Score: best.score}
}

// nearestHeading returns the unblocked heading with status want that needs
// the least rotation from cur. Equal rotations prefer turning left.
func nearestHeading(i *Intersection, cur Heading, want StreetStatus) (Heading, bool) {
	found := false
	var best Heading
	bestSteps := NumHeadings
	for h := Heading(0); h < NumHeadings; h++ {
		if i.Streets[h] != want || i.Blocked[h] {
			continue
		}
		s := StepsBetween(cur, h)
		abs := s
		if abs < 0 {
			abs = -abs
		}
		if abs < bestSteps || (abs == bestSteps && s > 0) {
			best, bestSteps, found = h, abs, true
		}
	}
	return best, found
}
