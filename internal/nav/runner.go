package nav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/banshee-data/gridrunner/internal/console"
	"github.com/banshee-data/gridrunner/internal/streetmap"
	"github.com/banshee-data/gridrunner/internal/timeutil"
	"github.com/banshee-data/gridrunner/internal/turn"
)

// AutosaveName is the snapshot written when exploration completes.
const AutosaveName = "autosave"

// CommandSource delivers operator commands without blocking.
type CommandSource interface {
	Poll() (console.Command, bool)
}

// SnapshotStore persists maps by name.
type SnapshotStore interface {
	Save(ctx context.Context, name string, snap streetmap.Snapshot, reason string) (string, error)
	Load(ctx context.Context, name string) (streetmap.Snapshot, error)
}

// Runner is the single planner loop. Each cycle applies at most one
// command, then performs one unit of work for the current mode.
type Runner struct {
	planner  *Planner
	commands CommandSource
	store    SnapshotStore
	board    *StatusBoard
	clock    timeutil.Clock
	out      io.Writer

	paused   bool
	stepOnce bool
	cycles   uint64
	lastErr  error
}

// NewRunner creates a Runner. store and board may be nil; out receives
// command replies and defaults to io.Discard.
func NewRunner(p *Planner, commands CommandSource, store SnapshotStore, board *StatusBoard, clock timeutil.Clock, out io.Writer) *Runner {
	if out == nil {
		out = io.Discard
	}
	return &Runner{planner: p, commands: commands, store: store, board: board, clock: clock, out: out}
}

// Paused reports whether work is suspended.
func (r *Runner) Paused() bool { return r.paused }

// LastError returns the most recent planner or command error.
func (r *Runner) LastError() error { return r.lastErr }

// Run cycles until a quit command arrives or ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	opsf("runner started in %s mode", r.planner.Mode())
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.Cycle(ctx) {
			opsf("runner stopped by operator")
			return nil
		}
	}
}

// Cycle runs one loop iteration and reports whether the operator asked to
// quit.
func (r *Runner) Cycle(ctx context.Context) bool {
	r.cycles++
	if c, ok := r.commands.Poll(); ok {
		if r.apply(ctx, c) {
			r.publish()
			return true
		}
	}

	worked := false
	if !r.paused {
		worked = r.work(ctx)
		if worked && r.stepOnce {
			r.paused, r.stepOnce = true, false
		}
	}
	r.publish()
	if !worked {
		r.clock.Sleep(r.planner.cfg.LoopPeriod)
	}
	return false
}

func (r *Runner) work(ctx context.Context) bool {
	p := r.planner
	mode := p.Mode()
	if mode != ModeExploring && mode != ModeNavigating {
		return false
	}
	if !p.Aligned() {
		if err := p.AlignToRoad(ctx); err != nil {
			r.fail(ctx, err)
			return true
		}
		p.SetMode(mode)
		return true
	}

	switch mode {
	case ModeExploring:
		more, err := p.ExploreStep(ctx)
		if err != nil {
			r.fail(ctx, err)
			return true
		}
		if !more {
			opsf("exploration complete: %d intersections", p.Map().Len())
			p.SetMode(ModeIdle)
			p.SetFar(nil)
			r.save(ctx, AutosaveName, "explored")
		}
	case ModeNavigating:
		arrived, err := p.StepTowardGoal(ctx)
		if err != nil {
			r.fail(ctx, err)
			return true
		}
		if arrived {
			p.SetMode(ModeIdle)
		}
	}
	return true
}

func (r *Runner) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	r.lastErr = err
	opsf("%s failed at %v: %v", r.planner.Mode(), r.planner.Map().Pose(), err)
	r.planner.SetMode(ModeIdle)
}

func (r *Runner) reply(format string, args ...interface{}) {
	fmt.Fprintf(r.out, format+"\n", args...)
}

// apply executes one command. Errors are reported and never stop the loop.
func (r *Runner) apply(ctx context.Context, c console.Command) bool {
	p := r.planner
	diagf("command %s from %s", c, c.Source)
	var err error

	switch c.Kind {
	case console.Explore:
		p.SetFar(nil)
		p.Map().ClearGoal()
		p.SetMode(ModeExploring)
	case console.ExploreToward:
		p.SetFar(&streetmap.Coord{X: c.X, Y: c.Y})
		p.Map().ClearGoal()
		p.SetMode(ModeExploring)
	case console.Pause:
		r.paused = true
	case console.Resume:
		r.paused, r.stepOnce = false, false
	case console.Step:
		r.paused, r.stepOnce = false, true
	case console.Goal:
		if err = p.Map().Dijkstra(c.X, c.Y); err == nil {
			p.SetFar(nil)
			p.SetMode(ModeNavigating)
			r.reply("route: %s", formatRoute(p.Map().Route()))
		}
	case console.SetPose:
		p.Map().SetPose(streetmap.Pose{X: c.X, Y: c.Y, Heading: streetmap.Heading(c.Heading)})
		p.MarkAligned()
		err = p.Map().Replan()
	case console.Left, console.Right:
		dir := turn.Left
		if c.Kind == console.Right {
			dir = turn.Right
		}
		err = r.manual(func() error { return p.TurnOnce(ctx, dir) })
	case console.Straight:
		err = r.manual(func() error { return p.GoStraight(ctx) })
	case console.Save:
		err = r.save(ctx, c.Name, "operator")
	case console.Load:
		err = r.load(ctx, c.Name)
	case console.ClearBlockages:
		n := p.Map().ClearBlockages()
		r.reply("cleared %d blocked street ends", n)
		err = p.Map().Replan()
	case console.Show:
		r.show()
	case console.Quit:
		return true
	default:
		err = fmt.Errorf("%s: %w", c, console.ErrUnknownCommand)
	}

	if err != nil {
		r.lastErr = err
		r.reply("%s: %v", c, err)
		opsf("command %s: %v", c, err)
	}
	return false
}

// manual runs one operator-requested move, leaving the planner idle.
func (r *Runner) manual(move func() error) error {
	r.planner.SetMode(ModeExecuting)
	defer r.planner.SetMode(ModeIdle)
	return move()
}

func (r *Runner) save(ctx context.Context, name, reason string) error {
	if r.store == nil {
		return errors.New("no map store configured")
	}
	id, err := r.store.Save(ctx, name, r.planner.Map().Snapshot(), reason)
	if err != nil {
		opsf("save %q: %v", name, err)
		return err
	}
	r.reply("saved %q (%s)", name, id)
	return nil
}

// load replaces the map only when the snapshot is valid.
func (r *Runner) load(ctx context.Context, name string) error {
	if r.store == nil {
		return errors.New("no map store configured")
	}
	snap, err := r.store.Load(ctx, name)
	if err != nil {
		return err
	}
	m, err := streetmap.FromSnapshot(snap)
	if err != nil {
		return fmt.Errorf("load %q: %w", name, err)
	}
	p := r.planner
	p.SetMap(m)
	p.MarkAligned()
	p.SetFar(nil)
	p.SetMode(ModeIdle)
	r.reply("loaded %q: %d intersections, robot at %v", name, m.Len(), m.Pose())
	return nil
}

func (r *Runner) show() {
	p := r.planner
	m := p.Map()
	r.reply("pose %v mode %s paused %t", m.Pose(), p.Mode(), r.paused)
	if g, ok := m.Goal(); ok {
		r.reply("goal %v route %s", g, formatRoute(m.Route()))
	}
	for _, i := range m.Intersections() {
		r.reply("  %-10v %s", i.Coord, FormatStreets(i))
	}
}

func (r *Runner) publish() {
	if r.board == nil {
		return
	}
	p := r.planner
	m := p.Map()
	s := Status{
		Pose:    m.Pose(),
		Mode:    p.Mode(),
		Paused:  r.paused,
		Aligned: p.Aligned(),
		Far:     p.Far(),
		Route:   m.Route(),
		Map:     m.Snapshot(),
		Cycles:  r.cycles,
		Updated: r.clock.Now(),
	}
	if g, ok := m.Goal(); ok {
		s.Goal = &g
	}
	if r.lastErr != nil {
		s.LastError = r.lastErr.Error()
	}
	r.board.Publish(s)
}

var statusGlyph = map[streetmap.StreetStatus]byte{
	streetmap.Unknown:     '?',
	streetmap.Nonexistent: '.',
	streetmap.Unexplored:  'o',
	streetmap.Connected:   '+',
	streetmap.DeadEnd:     'x',
}

// FormatStreets renders an intersection's eight streets from heading 0 to
// 7, one glyph each: ? unknown, . none, o unexplored, + connected, x dead
// end, # blocked.
func FormatStreets(i *streetmap.Intersection) string {
	var b strings.Builder
	for h := 0; h < streetmap.NumHeadings; h++ {
		if i.Blocked[h] {
			b.WriteByte('#')
			continue
		}
		b.WriteByte(statusGlyph[i.Streets[h]])
	}
	return b.String()
}

func formatRoute(route []streetmap.Coord) string {
	if len(route) == 0 {
		return "none"
	}
	parts := make([]string, len(route))
	for i, c := range route {
		parts[i] = c.String()
	}
	return strings.Join(parts, " -> ")
}
