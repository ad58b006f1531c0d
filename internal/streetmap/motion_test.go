package streetmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkTurn_Plain(t *testing.T) {
	t.Parallel()

	m := New()
	m.SetPose(Pose{X: 0, Y: 0, Heading: 0})

	got := m.MarkTurn(2, 91)
	assert.Equal(t, Heading(2), got)
	assert.Equal(t, Heading(2), m.Pose().Heading)
	assert.Equal(t, Unexplored, m.Street(0, 0, 2))
	assert.Equal(t, Nonexistent, m.Street(0, 0, 1), "swept heading")

	// Heading 1 was swept, so the nearest plausible street is taken instead.
	got = m.MarkTurn(-1, -44)
	assert.Equal(t, Heading(0), got)
	assert.Equal(t, Nonexistent, m.Street(0, 0, 1))
	assert.Equal(t, Unexplored, m.Street(0, 0, 0))
}

func TestMarkTurn_CorrectsTowardMeasuredAngle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		delta    int
		measured float64
		want     Heading
		swept    []Heading
	}{
		{"undershoot left", 1, 84, 2, []Heading{1}},
		{"overshoot left", 3, 96, 2, []Heading{1}},
		{"right turn", -3, -95, 6, []Heading{7}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := New()
			m.SetPose(Pose{Heading: 0})
			m.SetStreet(0, 0, 0, Connected)
			m.SetStreet(0, 0, 1, Nonexistent)
			m.SetStreet(0, 0, 3, Nonexistent)
			m.SetStreet(0, 0, 5, Nonexistent)
			m.SetStreet(0, 0, 7, Nonexistent)

			got := m.MarkTurn(tt.delta, tt.measured)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, Unexplored, m.Street(0, 0, got))
			for _, h := range tt.swept {
				assert.Equal(t, Nonexistent, m.Street(0, 0, h))
			}
			assert.Equal(t, Connected, m.Street(0, 0, 0))
		})
	}
}

func TestMarkTurn_SweepDowngradesUnexplored(t *testing.T) {
	t.Parallel()

	m := New()
	m.SetPose(Pose{Heading: 4})
	m.SetStreet(0, 0, 5, Unexplored)
	m.SetStreet(0, 0, 6, Connected)

	m.MarkTurn(3, 135)
	assert.Equal(t, Heading(7), m.Pose().Heading)
	assert.Equal(t, Nonexistent, m.Street(0, 0, 5))
	assert.Equal(t, Connected, m.Street(0, 0, 6), "confirmed streets survive a sweep")
}

func TestUpdateConnection(t *testing.T) {
	t.Parallel()

	m := New()
	m.SetPose(Pose{X: 0, Y: 0, Heading: 1})
	p := m.UpdateConnection()

	assert.Equal(t, Pose{X: -1, Y: 1, Heading: 1}, p)
	assert.Equal(t, Connected, m.Street(0, 0, 1))
	assert.Equal(t, Connected, m.Street(-1, 1, 5))
}

func TestUpdateConnection_KeepsDeadEnd(t *testing.T) {
	t.Parallel()

	m := New()
	m.SetPose(Pose{Heading: 0})
	m.SetStreet(0, 0, 0, DeadEnd)
	m.UpdateConnection()
	assert.Equal(t, DeadEnd, m.Street(0, 0, 0))
	assert.Equal(t, Connected, m.Street(0, 1, 4))
}

func TestMarkDeadEnd(t *testing.T) {
	t.Parallel()

	m := New()
	m.SetPose(Pose{X: 0, Y: 0, Heading: 0})
	p := m.MarkDeadEnd()
	assert.Equal(t, Pose{}, p)
	assert.Equal(t, DeadEnd, m.Street(0, 0, 0))

	m.SetStreet(0, 0, 2, Nonexistent)
	m.SetPose(Pose{Heading: 2})
	m.MarkDeadEnd()
	assert.Equal(t, Nonexistent, m.Street(0, 0, 2))
}

func TestMarkTurn_NoMeasurementFollowsDelta(t *testing.T) {
	t.Parallel()

	m := New()
	m.SetPose(Pose{Heading: 0})
	m.SetStreet(0, 0, 7, Nonexistent)
	m.SetStreet(0, 0, 6, Unexplored)

	got := m.MarkTurn(-1, 0)
	assert.Equal(t, Heading(6), got)
	assert.Equal(t, Unexplored, m.Street(0, 0, 6))
	assert.Equal(t, Nonexistent, m.Street(0, 0, 7))
	for _, h := range []Heading{1, 2, 3, 4, 5} {
		assert.Equal(t, Unknown, m.Street(0, 0, h), "h%d", h)
	}
}

func TestMarkTurn_ZeroDelta(t *testing.T) {
	t.Parallel()

	m := New()
	m.SetPose(Pose{Heading: 3})
	m.SetStreet(0, 0, 2, Unexplored)
	before := m.Here().Streets

	assert.Equal(t, Heading(3), m.MarkTurn(0, 12))
	assert.Equal(t, Heading(3), m.Pose().Heading)
	want := before
	want[3] = Unexplored
	assert.Equal(t, want, m.Here().Streets)

	assert.Equal(t, Heading(3), m.MarkTurn(0, 0))
	assert.Equal(t, want, m.Here().Streets)
}

func TestMarkDeadEnd_OverwritesConnected(t *testing.T) {
	t.Parallel()

	m := New()
	connect(m, 0, 0, 0)
	connect(m, 0, 0, 6)
	connect(m, 1, 0, 0)
	connect(m, 1, 1, 2)
	m.SetPose(Pose{Heading: 0})
	require.NoError(t, m.Dijkstra(0, 1))
	h, ok := m.NextHop()
	require.True(t, ok)
	require.Equal(t, Heading(0), h)

	m.MarkDeadEnd()
	assert.Equal(t, DeadEnd, m.Street(0, 0, 0))
	assert.Equal(t, DeadEnd, m.Street(0, 1, 4))
	assert.False(t, m.SetStreet(0, 0, 0, Connected))

	require.NoError(t, m.Replan())
	h, ok = m.NextHop()
	require.True(t, ok)
	assert.Equal(t, Heading(6), h, "detour around the dead end")
	assert.Equal(t, []Coord{{0, 0}, {1, 0}, {1, 1}, {0, 1}}, m.Route())
}

func TestScenario_StraightExploration(t *testing.T) {
	t.Parallel()

	m := New()
	m.SetPose(Pose{X: 0, Y: 0, Heading: 0})
	m.ClassifyArrival(true, DefaultDiagonalPolicy())

	assert.Equal(t, Unexplored, m.Street(0, 0, 0))
	assert.Equal(t, Nonexistent, m.Street(0, 0, 1))
	assert.Equal(t, Nonexistent, m.Street(0, 0, 7))
	assert.Equal(t, Nonexistent, m.Street(0, 0, 3))
	assert.Equal(t, Nonexistent, m.Street(0, 0, 5))
	assert.Equal(t, Unknown, m.Street(0, 0, 2))
	assert.Equal(t, Unknown, m.Street(0, 0, 4))
}

func TestClassifyArrival_Policies(t *testing.T) {
	t.Parallel()

	m := New()
	m.SetPose(Pose{Heading: 2})
	m.ClassifyArrival(false, DefaultDiagonalPolicy())
	assert.Equal(t, Nonexistent, m.Street(0, 0, 2))
	assert.Equal(t, Unknown, m.Street(0, 0, 1))
	assert.Equal(t, Nonexistent, m.Street(0, 0, 5))
	assert.Equal(t, Nonexistent, m.Street(0, 0, 7))

	off := New()
	off.SetPose(Pose{Heading: 0})
	off.ClassifyArrival(true, DiagonalPolicy{})
	assert.Equal(t, Unexplored, off.Street(0, 0, 0))
	for _, h := range []Heading{1, 3, 5, 7} {
		assert.Equal(t, Unknown, off.Street(0, 0, h))
	}
}

func TestScenario_DeadEndAndUTurn(t *testing.T) {
	t.Parallel()

	m := New()
	m.SetPose(Pose{X: 0, Y: 0, Heading: 0})
	at := m.MarkDeadEnd()
	m.MarkUTurn()

	assert.Equal(t, Pose{}, at)
	assert.Equal(t, DeadEnd, m.Street(0, 0, 0))
	assert.Equal(t, Pose{X: 0, Y: 0, Heading: 4}, m.Pose())
}

func TestPossibleAngles(t *testing.T) {
	t.Parallel()

	var streets [NumHeadings]StreetStatus
	streets[1] = Nonexistent
	got := PossibleAngles(0, streets)
	assert.NotContains(t, got, Heading(0))
	assert.NotContains(t, got, Heading(1))
	assert.Equal(t, [2]float64{90, -270}, got[2])
	assert.Equal(t, [2]float64{315, -45}, got[7])
}

func TestMarkTurn_FullRevolutionSweepsEverything(t *testing.T) {
	t.Parallel()

	m := New()
	m.SetPose(Pose{Heading: 4})
	m.SetStreet(0, 0, 4, Connected)
	m.SetStreet(0, 0, 0, Nonexistent)

	got := m.MarkTurn(8, 361)
	assert.Equal(t, Heading(4), got)
	for h := Heading(0); h < NumHeadings; h++ {
		if h == 4 {
			assert.Equal(t, Connected, m.Street(0, 0, h))
			continue
		}
		assert.Equal(t, Nonexistent, m.Street(0, 0, h), "h%d", h)
	}
}
