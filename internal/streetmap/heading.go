package streetmap

import (
	"fmt"
	"math"
)

// NumHeadings is the number of discrete directions on the grid.
const NumHeadings = 8

// Heading is one of eight grid directions spaced 45° apart. Increasing values
// rotate counterclockwise (left); 0 points along +y.
type Heading uint8

var headingDelta = [NumHeadings][2]int{
	{0, 1},
	{-1, 1},
	{-1, 0},
	{-1, -1},
	{0, -1},
	{1, -1},
	{1, 0},
	{1, 1},
}

var headingNames = [NumHeadings]string{"N", "NW", "W", "SW", "S", "SE", "E", "NE"}

// Delta returns the grid displacement for one step along h.
func (h Heading) Delta() (dx, dy int) {
	d := headingDelta[h%NumHeadings]
	return d[0], d[1]
}

// PlotVector is the half-length displacement used when drawing edge stubs.
func (h Heading) PlotVector() (dx, dy float64) {
	x, y := h.Delta()
	return 0.5 * float64(x), 0.5 * float64(y)
}

// Add rotates h by n steps (positive is left) and wraps into [0,8).
func (h Heading) Add(n int) Heading {
	v := (int(h) + n) % NumHeadings
	if v < 0 {
		v += NumHeadings
	}
	return Heading(v)
}

// Reverse returns the opposite heading.
func (h Heading) Reverse() Heading { return h.Add(NumHeadings / 2) }

// IsDiagonal reports whether h is one of the odd (diagonal) headings.
func (h Heading) IsDiagonal() bool { return h%2 == 1 }

// StepCost is the octile cost of one hop along h.
func (h Heading) StepCost() float64 {
	if h.IsDiagonal() {
		return math.Sqrt2
	}
	return 1
}

// Degrees is the heading's rotation from heading 0 in degrees.
func (h Heading) Degrees() float64 { return float64(h%NumHeadings) * 45 }

// Valid reports whether h is within [0,8).
func (h Heading) Valid() bool { return h < NumHeadings }

func (h Heading) String() string {
	if !h.Valid() {
		return fmt.Sprintf("Heading(%d)", uint8(h))
	}
	return headingNames[h]
}

// StepsBetween is the signed minimal rotation in steps from a to b, in
// [-3,4]. A half turn is reported as +4 (left).
func StepsBetween(a, b Heading) int {
	d := (int(b) - int(a)) % NumHeadings
	if d < 0 {
		d += NumHeadings
	}
	if d > NumHeadings/2 {
		d -= NumHeadings
	}
	return d
}
