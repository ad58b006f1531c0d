package streetmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadingTables(t *testing.T) {
	t.Parallel()

	for h := Heading(0); h < NumHeadings; h++ {
		dx, dy := h.Delta()
		rx, ry := h.Reverse().Delta()
		assert.Equal(t, -dx, rx, "heading %d", h)
		assert.Equal(t, -dy, ry, "heading %d", h)
		assert.Equal(t, h%2 == 1, dx != 0 && dy != 0, "heading %d diagonal", h)

		px, py := h.PlotVector()
		assert.InDelta(t, float64(dx)/2, px, 1e-9)
		assert.InDelta(t, float64(dy)/2, py, 1e-9)
	}
	assert.Equal(t, Heading(7), Heading(0).Add(-1))
	assert.Equal(t, Heading(1), Heading(7).Add(2))
	assert.Equal(t, 4, StepsBetween(0, 4))
	assert.Equal(t, -1, StepsBetween(0, 7))
	assert.Equal(t, 3, StepsBetween(6, 1))
}

func TestStreetStatusTransitions(t *testing.T) {
	t.Parallel()

	all := []StreetStatus{Unknown, Nonexistent, Unexplored, Connected, DeadEnd}
	for _, from := range all {
		for _, to := range all {
			got := from.CanBecome(to)
			switch {
			case to == Unknown:
				assert.False(t, got, "%v -> %v", from, to)
			case from == Connected || from == DeadEnd:
				assert.False(t, got, "%v -> %v", from, to)
			case from == Unknown && to != Unknown:
				assert.True(t, got, "%v -> %v", from, to)
			}
		}
	}
	assert.True(t, Nonexistent.CanBecome(Connected))
	assert.False(t, Nonexistent.CanBecome(Unexplored))

	s, err := ParseStreetStatus("DEADEND")
	require.NoError(t, err)
	assert.Equal(t, DeadEnd, s)
	_, err = ParseStreetStatus("bogus")
	assert.Error(t, err)
}

func TestGetOrCreate(t *testing.T) {
	t.Parallel()

	m := New()
	i := m.GetOrCreate(2, -1)
	assert.Equal(t, Coord{X: 2, Y: -1}, i.Coord)
	for h := range i.Streets {
		assert.Equal(t, Unknown, i.Streets[h])
		assert.False(t, i.Blocked[h])
	}
	assert.Same(t, i, m.GetOrCreate(2, -1))
	assert.Equal(t, 1, m.Len())
}

func TestGetOrCreate_StartsBlank(t *testing.T) {
	t.Parallel()

	m := New()
	o := m.GetOrCreate(0, 0)
	o.Streets[0] = Connected
	o.Blocked[0] = true

	n := m.GetOrCreate(0, 1)
	assert.Equal(t, [NumHeadings]StreetStatus{}, n.Streets)
	assert.Equal(t, [NumHeadings]bool{}, n.Blocked)
}

func TestSetStreetSymmetry(t *testing.T) {
	t.Parallel()

	m := New()
	m.GetOrCreate(0, 0)
	m.GetOrCreate(-1, 1)

	require.True(t, m.SetStreet(0, 0, 1, Connected))
	assert.Equal(t, Connected, m.Street(-1, 1, 5))

	// Connecting creates the far end.
	require.True(t, m.SetStreet(0, 0, 6, Connected))
	n, ok := m.Lookup(1, 0)
	require.True(t, ok)
	assert.Equal(t, Connected, n.Streets[2])
	assert.Equal(t, 3, m.Len())

	// Nonexistent does not.
	require.True(t, m.SetStreet(0, 0, 4, Nonexistent))
	_, ok = m.Lookup(0, -1)
	assert.False(t, ok)

	// Unexplored stays at the originating end.
	m.GetOrCreate(0, 1)
	require.True(t, m.SetStreet(0, 0, 0, Unexplored))
	assert.Equal(t, Unknown, m.Street(0, 1, 4))
}

func TestSetStreetGuard(t *testing.T) {
	t.Parallel()

	m := New()
	m.SetStreet(0, 0, 0, Connected)
	m.SetStreet(0, 0, 2, DeadEnd)
	m.SetStreet(0, 0, 4, Nonexistent)

	for _, s := range []StreetStatus{Unknown, Nonexistent, Unexplored, DeadEnd} {
		assert.False(t, m.SetStreet(0, 0, 0, s))
		assert.Equal(t, Connected, m.Street(0, 0, 0))
	}
	for _, s := range []StreetStatus{Unknown, Nonexistent, Unexplored, Connected} {
		assert.False(t, m.SetStreet(0, 0, 2, s))
		assert.Equal(t, DeadEnd, m.Street(0, 0, 2))
	}
	assert.False(t, m.SetStreet(0, 0, 4, Unknown))
	assert.False(t, m.SetStreet(0, 0, 4, Unexplored))
	assert.Equal(t, Nonexistent, m.Street(0, 0, 4))
}

func TestSetStreetPropagationRespectsGuard(t *testing.T) {
	t.Parallel()

	m := New()
	m.SetStreet(0, 1, 4, DeadEnd)
	require.True(t, m.SetStreet(0, 0, 0, Nonexistent))
	assert.Equal(t, DeadEnd, m.Street(0, 1, 4))
}

func TestSetBlocked(t *testing.T) {
	t.Parallel()

	m := New()
	m.SetStreet(0, 0, 0, Connected)
	m.GetOrCreate(0, 1)
	m.SetStreet(0, 0, 2, DeadEnd)
	m.SetStreet(0, 0, 4, Nonexistent)

	assert.True(t, m.SetBlocked(0, 0, 0, true))
	assert.True(t, m.IsBlocked(0, 0, 0))
	assert.True(t, m.IsBlocked(0, 1, 4))
	assert.Equal(t, Connected, m.Street(0, 0, 0), "blocking keeps the status")

	assert.False(t, m.SetBlocked(0, 0, 2, true))
	assert.False(t, m.SetBlocked(0, 0, 4, true))
	assert.False(t, m.IsBlocked(0, 0, 2))
	assert.False(t, m.IsBlocked(0, 0, 4))

	assert.True(t, m.SetBlocked(0, 1, 4, false))
	assert.False(t, m.IsBlocked(0, 0, 0))
}

func TestClearBlockages(t *testing.T) {
	t.Parallel()

	m := New()
	m.SetStreet(0, 0, 0, Connected)
	m.SetStreet(0, 1, 0, Connected)
	m.SetBlocked(0, 0, 0, true)
	m.SetBlocked(0, 1, 0, true)

	assert.Equal(t, 3, m.ClearBlockages())
	for _, i := range m.Intersections() {
		for h := range i.Blocked {
			assert.False(t, i.Blocked[h])
		}
	}
}

func TestEdgeSymmetryInvariant(t *testing.T) {
	t.Parallel()

	m := New()
	ops := []struct {
		x, y int
		h    Heading
		s    StreetStatus
	}{
		{0, 0, 0, Connected}, {0, 1, 7, Connected}, {1, 2, 4, Unexplored},
		{1, 2, 2, Connected}, {0, 2, 5, Nonexistent}, {3, 3, 3, Connected},
		{2, 2, 6, Connected}, {1, 2, 4, Connected},
	}
	for _, op := range ops {
		m.SetStreet(op.x, op.y, op.h, op.s)
	}
	m.GetOrCreate(4, 4)
	m.GetOrCreate(2, 2)

	for _, i := range m.Intersections() {
		for h := Heading(0); h < NumHeadings; h++ {
			if i.Streets[h] != Connected {
				continue
			}
			n, ok := m.Lookup(i.Coord.Step(h).X, i.Coord.Step(h).Y)
			if !ok {
				continue
			}
			assert.Equal(t, Connected, n.Streets[h.Reverse()], "%v h%d", i.Coord, h)
		}
	}
}
