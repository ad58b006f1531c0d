package nav

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gridrunner/internal/console"
	"github.com/banshee-data/gridrunner/internal/sim"
	"github.com/banshee-data/gridrunner/internal/streetmap"
	"github.com/banshee-data/gridrunner/internal/timeutil"
)

type memStore struct {
	snaps   map[string]streetmap.Snapshot
	reasons map[string]string
	loadErr error
}

func newMemStore() *memStore {
	return &memStore{snaps: map[string]streetmap.Snapshot{}, reasons: map[string]string{}}
}

func (s *memStore) Save(ctx context.Context, name string, snap streetmap.Snapshot, reason string) (string, error) {
	s.snaps[name] = snap
	s.reasons[name] = reason
	return "id-" + name, nil
}

func (s *memStore) Load(ctx context.Context, name string) (streetmap.Snapshot, error) {
	if s.loadErr != nil {
		return streetmap.Snapshot{}, s.loadErr
	}
	snap, ok := s.snaps[name]
	if !ok {
		return streetmap.Snapshot{}, errors.New("not found")
	}
	return snap, nil
}

type runnerFixture struct {
	w     *sim.World
	p     *Planner
	r     *Runner
	mail  *console.Mailbox
	store *memStore
	board *StatusBoard
	clock *timeutil.MockClock
	out   *bytes.Buffer
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()
	f := &runnerFixture{
		w:     sim.Grid(2, 2),
		mail:  console.NewMailbox(8),
		store: newMemStore(),
		board: NewStatusBoard(),
		clock: timeutil.NewMockClock(time.Unix(1700000000, 0)),
		out:   &bytes.Buffer{},
	}
	f.w.PlaceOnStreet(0, 1, 0)
	f.p = NewPlanner(nil, f.w, testConfig(streetmap.Pose{X: 0, Y: 1, Heading: 0}))
	f.r = NewRunner(f.p, f.mail, f.store, f.board, f.clock, f.out)
	return f
}

func (f *runnerFixture) post(t *testing.T, line string) {
	t.Helper()
	_, err := f.mail.PostLine(line, "test")
	require.NoError(t, err)
}

// runUntilIdle cycles until the planner stops working.
func (f *runnerFixture) runUntilIdle(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 500; i++ {
		require.False(t, f.r.Cycle(ctx))
		if f.p.Mode() == ModeIdle && f.mail.Len() == 0 {
			return
		}
	}
	t.Fatal("runner never went idle")
}

func TestRunner_ExploreAutosaves(t *testing.T) {
	f := newRunnerFixture(t)
	f.post(t, "explore")
	f.runUntilIdle(t)

	require.NoError(t, f.r.LastError())
	assert.True(t, f.p.Aligned())
	assertMatchesWorld(t, f.p.Map(), f.w)

	snap, ok := f.store.snaps[AutosaveName]
	require.True(t, ok)
	assert.Equal(t, "explored", f.store.reasons[AutosaveName])
	assert.Len(t, snap.Intersections, 4)

	st := f.board.Get()
	assert.Equal(t, ModeIdle, st.Mode)
	assert.Equal(t, f.p.Map().Pose(), st.Pose)
	assert.Len(t, st.Map.Intersections, 4)
	assert.NotZero(t, st.Cycles)
	assert.Equal(t, f.clock.Now(), st.Updated)
}

func TestRunner_GoalAfterExplore(t *testing.T) {
	f := newRunnerFixture(t)
	f.post(t, "explore")
	f.runUntilIdle(t)

	here := f.p.Map().Pose().Coord()
	f.post(t, "goal 1 0")
	if here == (streetmap.Coord{X: 1, Y: 0}) {
		f.post(t, "goal 0 1")
	}
	f.runUntilIdle(t)

	at, _, _ := f.w.Robot()
	assert.Equal(t, f.p.Map().Pose().Coord(), at)
	assert.NotEqual(t, here, at)
	assert.Contains(t, f.out.String(), "route: ")
}

func TestRunner_UnknownGoalStaysIdle(t *testing.T) {
	f := newRunnerFixture(t)
	f.post(t, "goal 9 9")
	assert.False(t, f.r.Cycle(context.Background()))

	assert.Equal(t, ModeIdle, f.p.Mode())
	assert.ErrorIs(t, f.r.LastError(), streetmap.ErrUnknownIntersection)
	assert.Contains(t, f.out.String(), "unknown intersection")
	assert.Contains(t, f.board.Get().LastError, "unknown intersection")
	assert.Equal(t, f.p.cfg.LoopPeriod, f.clock.Slept(), "idle cycles sleep")
}

func TestRunner_PauseAndStep(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	f.post(t, "pause")
	f.post(t, "explore")
	f.r.Cycle(ctx)
	f.r.Cycle(ctx)

	assert.True(t, f.r.Paused())
	assert.Equal(t, ModeExploring, f.p.Mode())
	_, follows := f.w.Counts()
	assert.Zero(t, follows, "paused runner does no work")

	f.post(t, "step")
	f.r.Cycle(ctx)
	assert.True(t, f.r.Paused(), "step pauses again after one unit")
	assert.True(t, f.p.Aligned())
	_, follows = f.w.Counts()
	assert.Equal(t, 1, follows)

	f.r.Cycle(ctx)
	_, again := f.w.Counts()
	assert.Equal(t, follows, again)
	assert.True(t, f.board.Get().Paused)

	f.post(t, "resume")
	f.runUntilIdle(t)
	assert.False(t, f.r.Paused())
	assertMatchesWorld(t, f.p.Map(), f.w)
}

func TestRunner_PoseMarksAligned(t *testing.T) {
	f := newRunnerFixture(t)
	f.post(t, "pose 3 4 2")
	f.r.Cycle(context.Background())

	assert.True(t, f.p.Aligned())
	assert.Equal(t, streetmap.Pose{X: 3, Y: 4, Heading: 2}, f.p.Map().Pose())
}

func TestRunner_SaveLoad(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	f.post(t, "explore")
	f.runUntilIdle(t)
	f.post(t, "save lab")
	f.r.Cycle(ctx)
	require.Contains(t, f.store.snaps, "lab")
	assert.Equal(t, "operator", f.store.reasons["lab"])

	saved := f.p.Map().Snapshot()
	f.post(t, "pose 0 0 0")
	f.post(t, "load lab")
	f.r.Cycle(ctx)
	f.r.Cycle(ctx)
	assert.Equal(t, saved, f.p.Map().Snapshot())
	assert.Contains(t, f.out.String(), `loaded "lab"`)
}

func TestRunner_LoadFailureKeepsMap(t *testing.T) {
	f := newRunnerFixture(t)
	before := f.p.Map()
	f.store.loadErr = errors.New("disk on fire")
	f.post(t, "load lab")
	f.r.Cycle(context.Background())

	assert.Same(t, before, f.p.Map())
	assert.EqualError(t, f.r.LastError(), "disk on fire")
}

func TestRunner_NoStore(t *testing.T) {
	f := newRunnerFixture(t)
	f.r = NewRunner(f.p, f.mail, nil, nil, f.clock, nil)
	f.post(t, "save x")
	f.r.Cycle(context.Background())
	assert.Error(t, f.r.LastError())
}

func TestRunner_ManualMoves(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	f.post(t, "pose 0 1 4")
	f.w.Place(0, 1, 4)
	f.post(t, "straight")
	f.post(t, "left")
	f.r.Cycle(ctx)
	f.r.Cycle(ctx)
	f.r.Cycle(ctx)

	assert.NoError(t, f.r.LastError())
	assert.Equal(t, ModeIdle, f.p.Mode())
	at, h, _ := f.w.Robot()
	assert.Equal(t, streetmap.Coord{}, at)
	assert.Equal(t, streetmap.Heading(6), h)
	assert.Equal(t, streetmap.Pose{X: 0, Y: 0, Heading: 6}, f.p.Map().Pose())
	assert.Equal(t, streetmap.Connected, f.p.Map().Street(0, 1, 4))
}

func TestRunner_ShowAndClearBlockages(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	f.post(t, "pose 0 0 0")
	f.r.Cycle(ctx)
	m := f.p.Map()
	m.SetBlocked(0, 0, 2, true)
	m.SetStreet(0, 0, 0, streetmap.Connected)

	f.post(t, "show")
	f.r.Cycle(ctx)
	assert.Contains(t, f.out.String(), "+?#?????")

	f.post(t, "clear-blockages")
	f.r.Cycle(ctx)
	assert.False(t, m.IsBlocked(0, 0, 2))
	assert.Contains(t, f.out.String(), "cleared 1 blocked street ends")
}

func TestRunner_RunStopsOnQuit(t *testing.T) {
	f := newRunnerFixture(t)
	f.post(t, "quit")
	assert.NoError(t, f.r.Run(context.Background()))
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	f := newRunnerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.clock.OnSleep(func(time.Duration) { cancel() })
	assert.ErrorIs(t, f.r.Run(ctx), context.Canceled)
}

func TestStatusBoard_CopiesAreIndependent(t *testing.T) {
	b := NewStatusBoard()
	goal := streetmap.Coord{X: 1, Y: 2}
	s := Status{
		Goal:  &goal,
		Route: []streetmap.Coord{{}, {X: 1}},
		Map:   streetmap.Snapshot{Intersections: []streetmap.IntersectionRecord{{X: 1}}},
	}
	b.Publish(s)
	goal.X = 99
	s.Route[0].X = 99

	got := b.Get()
	assert.Equal(t, 1, got.Goal.X)
	assert.Equal(t, 0, got.Route[0].X)

	got.Map.Intersections[0].X = 42
	assert.Equal(t, 1, b.Get().Map.Intersections[0].X)
}

func TestFormatStreets(t *testing.T) {
	m := streetmap.New()
	m.SetStreet(0, 0, 0, streetmap.Connected)
	m.SetStreet(0, 0, 1, streetmap.Nonexistent)
	m.SetStreet(0, 0, 2, streetmap.Unexplored)
	m.SetStreet(0, 0, 3, streetmap.DeadEnd)
	m.SetBlocked(0, 0, 2, true)
	i, _ := m.Lookup(0, 0)
	assert.Equal(t, "+.#x????", FormatStreets(i))
	assert.Equal(t, "none", formatRoute(nil))
	assert.Equal(t, "(0,0) -> (1,0)", formatRoute([]streetmap.Coord{{}, {X: 1}}))
}
