package streetmap

import (
	"container/heap"
	"fmt"
	"math"
)

type pqItem struct {
	node  *Intersection
	cost  float64
	index int
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].cost != pq[j].cost {
		return pq[i].cost < pq[j].cost
	}
	a, b := pq[i].node.Coord, pq[j].node.Coord
	if a.X != b.X {
		return a.X < b.X
	}
	return a.Y < b.Y
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	item := x.(*pqItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// sweep runs a shortest-path search over routable streets starting at src.
// relax is called each time a node's cost improves, with the heading that
// leads from the node back toward the node it was reached from.
func (m *Map) sweep(src *Intersection, relax func(n *Intersection, cost float64, back Heading)) map[Coord]float64 {
	dist := map[Coord]float64{src.Coord: 0}
	pq := &priorityQueue{}
	heap.Push(pq, &pqItem{node: src, cost: 0})

	for pq.Len() > 0 {
		item := heap.Pop(pq).(*pqItem)
		u := item.node
		if item.cost > dist[u.Coord] {
			continue
		}
		for h := Heading(0); h < NumHeadings; h++ {
			if !u.Routable(h) {
				continue
			}
			n, ok := m.intersections[u.Coord.Step(h)]
			if !ok {
				continue
			}
			c := item.cost + h.StepCost()
			if old, seen := dist[n.Coord]; seen && c >= old {
				continue
			}
			dist[n.Coord] = c
			if relax != nil {
				relax(n, c, h.Reverse())
			}
			heap.Push(pq, &pqItem{node: n, cost: c})
		}
	}
	return dist
}

// Dijkstra sets (gx,gy) as the goal and records, for every intersection that
// can reach it over connected unblocked streets, the path cost and the
// heading of the first hop. Calling it again replans.
func (m *Map) Dijkstra(gx, gy int) error {
	m.ClearGoal()
	goal, ok := m.Lookup(gx, gy)
	if !ok {
		return fmt.Errorf("goal (%d,%d): %w", gx, gy, ErrUnknownIntersection)
	}
	g := goal.Coord
	m.goal = &g
	goal.cost = 0

	m.sweep(goal, func(n *Intersection, cost float64, back Heading) {
		n.cost = cost
		n.direction = back
		n.routed = true
	})
	if here, ok := m.Lookup(m.pose.X, m.pose.Y); ok {
		diagf("planned to %v: cost from %v is %.2f", g, here.Coord, here.cost)
	}
	return nil
}

// Replan reruns Dijkstra toward the active goal. It is a no-op without one.
func (m *Map) Replan() error {
	g, ok := m.Goal()
	if !ok {
		return nil
	}
	return m.Dijkstra(g.X, g.Y)
}

// ClearGoal drops the goal and every intersection's route state.
func (m *Map) ClearGoal() {
	m.goal = nil
	for _, i := range m.intersections {
		i.resetRoute()
	}
}

// Cost returns the last computed cost at (x,y) or +Inf.
func (m *Map) Cost(x, y int) float64 {
	if i, ok := m.Lookup(x, y); ok {
		return i.cost
	}
	return math.Inf(1)
}

// NextHop is the heading to drive from the robot's intersection toward the
// goal. ok is false without a goal, at the goal, or with no route.
func (m *Map) NextHop() (Heading, bool) {
	i, ok := m.Lookup(m.pose.X, m.pose.Y)
	if !ok {
		return 0, false
	}
	return i.Direction()
}

// Route follows directions from the robot to the goal. It is empty when no
// route exists.
func (m *Map) Route() []Coord {
	g, ok := m.Goal()
	if !ok {
		return nil
	}
	cur, ok := m.Lookup(m.pose.X, m.pose.Y)
	if !ok {
		return nil
	}
	route := []Coord{cur.Coord}
	for steps := 0; cur.Coord != g && steps <= len(m.intersections); steps++ {
		h, ok := cur.Direction()
		if !ok {
			return nil
		}
		next, ok := m.intersections[cur.Coord.Step(h)]
		if !ok {
			return nil
		}
		route = append(route, next.Coord)
		cur = next
	}
	if cur.Coord != g {
		return nil
	}
	return route
}
