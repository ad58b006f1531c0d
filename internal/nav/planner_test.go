package nav

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gridrunner/internal/hal"
	"github.com/banshee-data/gridrunner/internal/linefollow"
	"github.com/banshee-data/gridrunner/internal/sim"
	"github.com/banshee-data/gridrunner/internal/streetmap"
	"github.com/banshee-data/gridrunner/internal/timeutil"
	"github.com/banshee-data/gridrunner/internal/turn"
)

func testConfig(start streetmap.Pose) Config {
	return Config{
		MaxTurnSteps:     4,
		MaxUTurnAttempts: 3,
		MaxAlignAttempts: 4,
		Policy:           streetmap.DefaultDiagonalPolicy(),
		Start:            start,
		LoopPeriod:       time.Millisecond,
	}
}

func alignedPlanner(t *testing.T, w *sim.World, start streetmap.Pose) *Planner {
	t.Helper()
	p := NewPlanner(nil, w, testConfig(start))
	require.NoError(t, p.AlignToRoad(context.Background()))
	return p
}

func exploreAll(t *testing.T, p *Planner) {
	t.Helper()
	for i := 0; i < 500; i++ {
		more, err := p.ExploreStep(context.Background())
		require.NoError(t, err)
		if !more {
			return
		}
	}
	t.Fatal("exploration did not finish")
}

func assertMatchesWorld(t *testing.T, m *streetmap.Map, w *sim.World) {
	t.Helper()
	coords := w.Intersections()
	assert.Equal(t, len(coords), m.Len())
	for _, c := range coords {
		i, ok := m.Lookup(c.X, c.Y)
		if !assert.True(t, ok, "missing %v", c) {
			continue
		}
		for h := streetmap.Heading(0); h < streetmap.NumHeadings; h++ {
			assert.Equal(t, w.Expected(c.X, c.Y, h), i.Streets[h], "%v h%d", c, h)
		}
	}
}

// fakeMotion replays scripted line events and returns fixed turns.
type fakeMotion struct {
	events    []linefollow.Event
	turnSteps int
	turnErr   error
	offLine   bool
	ahead     bool
	turns     int
}

func (f *fakeMotion) FollowLine(ctx context.Context) (linefollow.Event, error) {
	if len(f.events) == 0 {
		return linefollow.EventIntersection, nil
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, nil
}

func (f *fakeMotion) PullForward(ctx context.Context) (bool, error) { return f.ahead, nil }

func (f *fakeMotion) Turn(ctx context.Context, dir turn.Direction) (turn.Result, error) {
	f.turns++
	if f.turnErr != nil {
		return turn.Result{}, f.turnErr
	}
	deg := float64(int(dir)*f.turnSteps) * turn.StepDegrees
	return turn.Result{Estimate: turn.Combine(turn.DefaultWeights(), deg, deg)}, nil
}

func (f *fakeMotion) ForwardBlocked() bool { return false }
func (f *fakeMotion) OnLine() bool         { return !f.offLine }

func TestAlignToRoad_FromStreet(t *testing.T) {
	w := sim.Grid(1, 2)
	w.PlaceOnStreet(0, 1, 0)
	p := alignedPlanner(t, w, streetmap.Pose{X: 0, Y: 1, Heading: 0})

	assert.True(t, p.Aligned())
	assert.Equal(t, ModeAligning, p.Mode())
	assert.Equal(t, streetmap.Pose{X: 0, Y: 1, Heading: 0}, p.Map().Pose())
	assert.Equal(t, streetmap.Nonexistent, p.Map().Street(0, 1, 0), "nothing ahead of the top row")
}

func TestAlignToRoad_FindsLineFirst(t *testing.T) {
	w := sim.Grid(1, 2)
	w.PlaceOffLine(0, 1, 0)
	alignedPlanner(t, w, streetmap.Pose{})

	turns, follows := w.Counts()
	assert.Equal(t, 1, turns)
	assert.Equal(t, 1, follows)
	assert.True(t, w.OnLine())
}

func TestAlignToRoad_TurnsAroundAtDeadEnd(t *testing.T) {
	w := sim.NewWorld()
	w.AddStub(0, 0, 0)
	w.AddStreet(0, 0, 6)
	w.Place(0, 0, 0)

	p := alignedPlanner(t, w, streetmap.Pose{Heading: 4})
	at, h, mid := w.Robot()
	assert.Equal(t, streetmap.Coord{}, at)
	assert.Equal(t, streetmap.Heading(4), h)
	assert.False(t, mid)
	assert.Equal(t, streetmap.Heading(4), p.Map().Pose().Heading)
}

func TestAlignToRoad_NoLine(t *testing.T) {
	f := &fakeMotion{offLine: true, turnErr: turn.ErrNoStreet}
	p := NewPlanner(nil, f, testConfig(streetmap.Pose{}))

	err := p.AlignToRoad(context.Background())
	assert.ErrorIs(t, err, ErrAlignFailed)
	assert.Equal(t, 4, f.turns)
	assert.False(t, p.Aligned())
}

func TestAlignToRoad_NeverReachesIntersection(t *testing.T) {
	f := &fakeMotion{
		events:    []linefollow.Event{linefollow.EventEnd, linefollow.EventEnd, linefollow.EventEnd, linefollow.EventEnd},
		turnSteps: 4,
	}
	p := NewPlanner(nil, f, testConfig(streetmap.Pose{}))
	assert.ErrorIs(t, p.AlignToRoad(context.Background()), ErrAlignFailed)
}

func TestExplore_Grid2x2(t *testing.T) {
	w := sim.Grid(2, 2)
	w.PlaceOnStreet(0, 1, 0)
	p := alignedPlanner(t, w, streetmap.Pose{X: 0, Y: 1, Heading: 0})

	exploreAll(t, p)
	assertMatchesWorld(t, p.Map(), w)
	_, ok := p.Map().Goal()
	assert.False(t, ok, "exhausted frontier clears the goal")

	at, _, _ := w.Robot()
	assert.Equal(t, at, p.Map().Pose().Coord(), "map pose tracks the robot")
}

func TestExplore_Grid3x3WithSensorBias(t *testing.T) {
	w := sim.Grid(3, 3)
	w.AngleBias = 15
	w.PlaceOnStreet(1, 1, 0)
	p := alignedPlanner(t, w, streetmap.Pose{X: 1, Y: 1, Heading: 0})

	exploreAll(t, p)
	assertMatchesWorld(t, p.Map(), w)
	at, h, _ := w.Robot()
	assert.Equal(t, streetmap.Pose{X: at.X, Y: at.Y, Heading: h}, p.Map().Pose())
}

func TestExplore_DeadEnd(t *testing.T) {
	w := sim.Grid(2, 1)
	w.AddStub(0, 0, 0)
	w.PlaceOnStreet(1, 0, 6)
	p := alignedPlanner(t, w, streetmap.Pose{X: 1, Y: 0, Heading: 6})

	exploreAll(t, p)
	assertMatchesWorld(t, p.Map(), w)
	assert.Equal(t, streetmap.DeadEnd, p.Map().Street(0, 0, 0))
	assert.Equal(t, ModeAligning, p.Mode(), "dead-end handling restores the mode")
}

func TestExplore_VisibleObstacleSkipsStreet(t *testing.T) {
	w := sim.Grid(3, 1)
	w.Block(1, 0, 6, true)
	w.PlaceOnStreet(1, 0, 6)
	p := alignedPlanner(t, w, streetmap.Pose{X: 1, Y: 0, Heading: 6})

	exploreAll(t, p)
	m := p.Map()
	assert.True(t, m.IsBlocked(1, 0, 6))
	assert.Equal(t, streetmap.Unexplored, m.Street(1, 0, 6))
	assert.Equal(t, streetmap.Connected, m.Street(1, 0, 2))
	_, known := m.Lookup(2, 0)
	assert.False(t, known, "never reached past the obstacle")
}

func exploredGrid2x2(t *testing.T) (*sim.World, *Planner) {
	t.Helper()
	w := sim.Grid(2, 2)
	w.PlaceOnStreet(0, 1, 0)
	p := alignedPlanner(t, w, streetmap.Pose{X: 0, Y: 1, Heading: 0})
	exploreAll(t, p)
	return w, p
}

func driveToGoal(t *testing.T, p *Planner) {
	t.Helper()
	for i := 0; i < 20; i++ {
		arrived, err := p.StepTowardGoal(context.Background())
		require.NoError(t, err)
		if arrived {
			return
		}
	}
	t.Fatal("goal not reached")
}

func TestStepTowardGoal_Direct(t *testing.T) {
	w, p := exploredGrid2x2(t)
	m := p.Map()
	start := m.Pose().Coord()
	goal := streetmap.Coord{X: 1 - start.X, Y: 1 - start.Y}

	require.NoError(t, m.Dijkstra(goal.X, goal.Y))
	driveToGoal(t, p)

	at, _, _ := w.Robot()
	assert.Equal(t, goal, at)
	assert.Equal(t, goal, m.Pose().Coord())
	_, ok := m.Goal()
	assert.False(t, ok)
}

func TestStepTowardGoal_ReroutesAroundHiddenObstacle(t *testing.T) {
	w := sim.Grid(2, 2)
	w.PlaceOnStreet(1, 1, 0)
	p := alignedPlanner(t, w, streetmap.Pose{X: 1, Y: 1, Heading: 0})
	exploreAll(t, p)
	m := p.Map()

	// Walk to (1,1) so the direct street to (0,1) is the only short route.
	require.NoError(t, m.Dijkstra(1, 1))
	driveToGoal(t, p)
	w.Block(1, 1, 2, false)

	require.NoError(t, m.Dijkstra(0, 1))
	driveToGoal(t, p)

	at, _, _ := w.Robot()
	assert.Equal(t, streetmap.Coord{X: 0, Y: 1}, at)
	assert.Equal(t, at, m.Pose().Coord())
	assert.True(t, m.IsBlocked(1, 1, 2))
	assert.True(t, m.IsBlocked(0, 1, 6))
}

// exploredCorridor explores two intersections joined by one street and
// returns the robot's end point and the heading toward the other end.
func exploredCorridor(t *testing.T) (*sim.World, *Planner, streetmap.Coord, streetmap.Heading) {
	t.Helper()
	w := sim.Grid(2, 1)
	w.PlaceOnStreet(1, 0, 6)
	p := alignedPlanner(t, w, streetmap.Pose{X: 1, Y: 0, Heading: 6})
	exploreAll(t, p)
	here := p.Map().Pose().Coord()
	toward := streetmap.Heading(6)
	if here.X == 1 {
		toward = 2
	}
	return w, p, here, toward
}

func TestStepTowardGoal_AbandonsUnreachable(t *testing.T) {
	w, p, here, toward := exploredCorridor(t)
	m := p.Map()
	w.Block(here.X, here.Y, toward, false)

	require.NoError(t, m.Dijkstra(1-here.X, 0))
	_, err := p.StepTowardGoal(context.Background())
	assert.ErrorIs(t, err, ErrNoPath)
	_, ok := m.Goal()
	assert.False(t, ok)
	assert.Equal(t, here, m.Pose().Coord(), "back where it started")
	at, _, mid := w.Robot()
	assert.Equal(t, here, at)
	assert.False(t, mid)
	assert.True(t, m.IsBlocked(here.X, here.Y, toward))
}

func TestStepTowardGoal_VisibleObstacleReplans(t *testing.T) {
	w, p, here, toward := exploredCorridor(t)
	w.Block(here.X, here.Y, toward, true)
	_, follows := w.Counts()

	require.NoError(t, p.Map().Dijkstra(1-here.X, 0))
	_, err := p.StepTowardGoal(context.Background())
	assert.ErrorIs(t, err, ErrNoPath)
	_, followsAfter := w.Counts()
	assert.Equal(t, follows, followsAfter, "never drove onto the blocked street")
	assert.True(t, p.Map().IsBlocked(here.X, here.Y, toward))
}

func TestStepTowardGoal_NoGoal(t *testing.T) {
	p := NewPlanner(nil, &fakeMotion{}, testConfig(streetmap.Pose{}))
	arrived, err := p.StepTowardGoal(context.Background())
	require.NoError(t, err)
	assert.True(t, arrived)
}

func TestHandleDeadEnd_UTurnFails(t *testing.T) {
	f := &fakeMotion{turnSteps: 8}
	p := NewPlanner(nil, f, testConfig(streetmap.Pose{}))
	p.Map().SetPose(streetmap.Pose{})
	p.SetMode(ModeExploring)

	err := p.HandleDeadEnd(context.Background())
	assert.ErrorIs(t, err, ErrUTurnFailed)
	assert.Equal(t, 3, f.turns)
	assert.Equal(t, streetmap.DeadEnd, p.Map().Street(0, 0, 0))
	assert.Equal(t, ModeExploring, p.Mode())
}

func TestTurnToward_NotConverged(t *testing.T) {
	// Every turn reports a full revolution, so the heading never changes.
	f := &fakeMotion{turnSteps: 8}
	cfg := testConfig(streetmap.Pose{})
	p := NewPlanner(nil, f, cfg)
	p.Map().SetPose(streetmap.Pose{})

	err := p.TurnToward(context.Background(), 2)
	require.NoError(t, err, "no progress stops without error")
	assert.Equal(t, 1, f.turns)

	f.turnSteps = 1
	p.cfg.MaxTurnSteps = 1
	err = p.TurnToward(context.Background(), 4)
	assert.ErrorIs(t, err, ErrTurnNotConverged)
}

// turnerMotion runs real turns against scripted sensors.
type turnerMotion struct {
	fakeMotion
	turner *turn.Turner
}

func (m *turnerMotion) Turn(ctx context.Context, dir turn.Direction) (turn.Result, error) {
	m.turns++
	return m.turner.Turn(ctx, dir)
}

func TestTurnOnce_WithoutHeadingSensor(t *testing.T) {
	line := hal.NewScriptedLine().Repeat("010", 40).Repeat("000", 50).Repeat("010", 10)
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	m := &turnerMotion{turner: turn.NewTurner(&hal.RecordingDrive{}, line, nil, clock, turn.DefaultConfig())}
	p := NewPlanner(nil, m, testConfig(streetmap.Pose{}))
	p.Map().SetPose(streetmap.Pose{})
	p.Map().SetStreet(0, 0, 7, streetmap.Nonexistent)
	p.Map().SetStreet(0, 0, 6, streetmap.Unexplored)
	p.Map().SetStreet(0, 0, 5, streetmap.Nonexistent)

	require.NoError(t, p.TurnOnce(context.Background(), turn.Right))
	assert.Equal(t, streetmap.Heading(6), p.Map().Pose().Heading)
	assert.Equal(t, streetmap.Unexplored, p.Map().Street(0, 0, 6))
	for _, h := range []streetmap.Heading{1, 2, 3, 4} {
		assert.Equal(t, streetmap.Unknown, p.Map().Street(0, 0, h), "h%d", h)
	}
}

func TestUTurn_RequiresHalfTurn(t *testing.T) {
	f := &fakeMotion{turnSteps: 2}
	p := NewPlanner(nil, f, testConfig(streetmap.Pose{}))
	p.Map().SetPose(streetmap.Pose{})
	require.NoError(t, p.uTurn(context.Background()))
	assert.Equal(t, 2, f.turns)

	f = &fakeMotion{turnSteps: 3}
	p = NewPlanner(nil, f, testConfig(streetmap.Pose{}))
	assert.ErrorIs(t, p.uTurn(context.Background()), ErrUTurnFailed)
	assert.Equal(t, 3, f.turns)
}

func TestHandleDeadEnd_OnConnectedStreet(t *testing.T) {
	f := &fakeMotion{turnSteps: 4}
	p := NewPlanner(nil, f, testConfig(streetmap.Pose{}))
	m := p.Map()
	m.SetStreet(0, 0, 0, streetmap.Connected)
	m.SetPose(streetmap.Pose{})

	require.NoError(t, p.HandleDeadEnd(context.Background()))
	assert.Equal(t, streetmap.DeadEnd, m.Street(0, 0, 0))
	assert.Equal(t, streetmap.DeadEnd, m.Street(0, 1, 4))
	assert.Equal(t, streetmap.Heading(4), m.Pose().Heading)
	assert.Equal(t, 1, f.turns)
}

func TestTowardsPrefersLeftOnHalfTurn(t *testing.T) {
	p := NewPlanner(nil, &fakeMotion{}, testConfig(streetmap.Pose{}))
	p.Map().SetPose(streetmap.Pose{Heading: 2})
	assert.Equal(t, turn.Left, p.towards(6))
	assert.Equal(t, turn.Left, p.towards(3))
	assert.Equal(t, turn.Right, p.towards(1))
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "navigating", ModeNavigating.String())
	assert.Equal(t, "Mode(42)", Mode(42).String())
	b, err := ModeDeadEnd.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "dead-end", string(b))
}
