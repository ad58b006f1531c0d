// Package nav decides what the robot does next: align to the grid, explore
// the unknown streets, or drive to a goal, recovering from dead ends and
// blocked streets on the way.
package nav

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/gridrunner/internal/config"
	"github.com/banshee-data/gridrunner/internal/linefollow"
	"github.com/banshee-data/gridrunner/internal/streetmap"
	"github.com/banshee-data/gridrunner/internal/turn"
)

var (
	// ErrNoPath means the goal cannot be reached over known streets. The
	// goal has been abandoned.
	ErrNoPath = errors.New("no path to goal")
	// ErrTurnNotConverged means the robot did not face the wanted heading
	// within the turn limit.
	ErrTurnNotConverged = errors.New("turn did not converge")
	// ErrUTurnFailed means the robot could not turn around on a street.
	ErrUTurnFailed = errors.New("u-turn failed")
	// ErrAlignFailed means no first intersection was found at startup.
	ErrAlignFailed = errors.New("alignment failed")
)

// Motion is the set of primitives the planner drives. Robot implements it
// on hardware and sim.World in simulation.
type Motion interface {
	FollowLine(ctx context.Context) (linefollow.Event, error)
	PullForward(ctx context.Context) (bool, error)
	Turn(ctx context.Context, dir turn.Direction) (turn.Result, error)
	ForwardBlocked() bool
	OnLine() bool
}

// Mode is what the planner is currently doing.
type Mode uint8

const (
	ModeAligning Mode = iota
	ModeIdle
	ModeExecuting
	ModeExploring
	ModeNavigating
	ModeDeadEnd
)

func (m Mode) String() string {
	switch m {
	case ModeAligning:
		return "aligning"
	case ModeIdle:
		return "idle"
	case ModeExecuting:
		return "executing"
	case ModeExploring:
		return "exploring"
	case ModeNavigating:
		return "navigating"
	case ModeDeadEnd:
		return "dead-end"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// MarshalText renders the mode by name in JSON.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Config holds the planner limits and policies.
type Config struct {
	MaxTurnSteps     int // default: 4
	MaxUTurnAttempts int // default: 3
	MaxAlignAttempts int // default: 4
	Policy           streetmap.DiagonalPolicy
	Start            streetmap.Pose
	LoopPeriod       time.Duration // idle sleep between runner cycles (default: 50ms)
}

// DefaultConfig returns a Config loaded from the canonical tuning defaults
// file. Panics if the file cannot be found.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	policy := streetmap.DefaultDiagonalPolicy()
	policy.Enabled = cfg.GetDiagonalExclusion()
	x, y, h := cfg.GetStartPose()
	return Config{
		MaxTurnSteps:     cfg.GetMaxTurnSteps(),
		MaxUTurnAttempts: cfg.GetMaxUTurnAttempts(),
		MaxAlignAttempts: cfg.GetMaxAlignAttempts(),
		Policy:           policy,
		Start:            streetmap.Pose{X: x, Y: y, Heading: streetmap.Heading(h)},
		LoopPeriod:       cfg.GetLoopPeriod(),
	}
}

// Planner owns the map and sequences motion primitives. It is driven from a
// single goroutine.
type Planner struct {
	m       *streetmap.Map
	motion  Motion
	cfg     Config
	mode    Mode
	far     *streetmap.Coord
	aligned bool
}

// NewPlanner creates a Planner in ModeIdle. The robot is not aligned until
// AlignToRoad succeeds or MarkAligned is called.
func NewPlanner(m *streetmap.Map, motion Motion, cfg Config) *Planner {
	if m == nil {
		m = streetmap.New()
	}
	return &Planner{m: m, motion: motion, cfg: cfg, mode: ModeIdle}
}

// Map returns the planner's map.
func (p *Planner) Map() *streetmap.Map { return p.m }

// SetMap replaces the map, e.g. after loading a snapshot.
func (p *Planner) SetMap(m *streetmap.Map) { p.m = m }

// Mode returns the current mode.
func (p *Planner) Mode() Mode { return p.mode }

// SetMode changes the mode.
func (p *Planner) SetMode(m Mode) {
	if m != p.mode {
		diagf("mode %s -> %s", p.mode, m)
	}
	p.mode = m
}

// Aligned reports whether the map pose is known to match the robot.
func (p *Planner) Aligned() bool { return p.aligned }

// MarkAligned records that the map pose matches the robot, as when the
// operator declares the pose.
func (p *Planner) MarkAligned() { p.aligned = true }

// Far returns the directed-exploration target, if any.
func (p *Planner) Far() *streetmap.Coord { return p.far }

// SetFar sets or clears the directed-exploration target.
func (p *Planner) SetFar(c *streetmap.Coord) { p.far = c }

// AlignToRoad finds the first street from wherever the robot was put down,
// follows it to an intersection and seeds the map there with the configured
// start pose.
func (p *Planner) AlignToRoad(ctx context.Context) error {
	p.SetMode(ModeAligning)

	for attempt := 0; !p.motion.OnLine(); attempt++ {
		if attempt >= p.cfg.MaxAlignAttempts {
			return fmt.Errorf("no line after %d turns: %w", attempt, ErrAlignFailed)
		}
		if _, err := p.motion.Turn(ctx, turn.Left); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			diagf("align: search turn %d: %v", attempt+1, err)
		}
	}

	for attempt := 1; ; attempt++ {
		ev, err := p.motion.FollowLine(ctx)
		if err != nil {
			return err
		}
		if ev == linefollow.EventIntersection {
			break
		}
		if attempt >= p.cfg.MaxAlignAttempts {
			return fmt.Errorf("%s after %d attempts: %w", ev, attempt, ErrAlignFailed)
		}
		opsf("align: %s before the first intersection, turning around", ev)
		if err := p.uTurn(ctx); err != nil {
			return fmt.Errorf("align: %w", err)
		}
	}

	p.m.SetPose(p.cfg.Start)
	ahead, err := p.motion.PullForward(ctx)
	if err != nil {
		return err
	}
	p.m.ClassifyArrival(ahead, p.cfg.Policy)
	p.aligned = true
	opsf("aligned at %v", p.m.Pose())
	return nil
}

// uTurn spins left until the accumulated rotation is a half turn, possibly
// after extra full revolutions. It runs mid-street, where the only line to
// find is the one behind, so the caller commits exactly a half turn.
func (p *Planner) uTurn(ctx context.Context) error {
	total := 0
	for attempt := 1; attempt <= p.cfg.MaxUTurnAttempts; attempt++ {
		res, err := p.motion.Turn(ctx, turn.Left)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			diagf("u-turn attempt %d: %v", attempt, err)
			continue
		}
		total += res.Steps
		if total%streetmap.NumHeadings == streetmap.NumHeadings/2 {
			return nil
		}
		diagf("u-turn attempt %d: %d steps so far", attempt, total)
	}
	return fmt.Errorf("%d attempts, %d steps: %w", p.cfg.MaxUTurnAttempts, total, ErrUTurnFailed)
}

// Advance drives the street ahead and records what was found at its end.
func (p *Planner) Advance(ctx context.Context) error {
	ev, err := p.motion.FollowLine(ctx)
	if err != nil {
		return err
	}
	switch ev {
	case linefollow.EventIntersection:
		ahead, err := p.motion.PullForward(ctx)
		if err != nil {
			return err
		}
		p.m.UpdateConnection()
		p.m.ClassifyArrival(ahead, p.cfg.Policy)
		return nil
	case linefollow.EventEnd:
		return p.HandleDeadEnd(ctx)
	case linefollow.EventBlocked:
		return p.RecoverBlocked(ctx)
	}
	return fmt.Errorf("follow line: unexpected %s", ev)
}

// HandleDeadEnd records the dead end ahead, turns around and returns to
// the intersection, classifying the street on its far side.
func (p *Planner) HandleDeadEnd(ctx context.Context) error {
	prev := p.mode
	p.SetMode(ModeDeadEnd)
	defer p.SetMode(prev)

	p.m.MarkDeadEnd()
	if err := p.uTurn(ctx); err != nil {
		return fmt.Errorf("dead end at %v: %w", p.m.Pose(), err)
	}
	p.m.MarkUTurn()
	return p.returnToIntersection(ctx, true)
}

// RecoverBlocked marks the street being driven as blocked, returns to the
// intersection it left and replans.
func (p *Planner) RecoverBlocked(ctx context.Context) error {
	pose := p.m.Pose()
	p.m.SetBlocked(pose.X, pose.Y, pose.Heading, true)
	opsf("street %v blocked, returning", pose)

	if err := p.uTurn(ctx); err != nil {
		return fmt.Errorf("blocked at %v: %w", pose, err)
	}
	p.m.MarkUTurn()
	if err := p.returnToIntersection(ctx, false); err != nil {
		return err
	}
	return p.replanOrAbandon()
}

func (p *Planner) returnToIntersection(ctx context.Context, classify bool) error {
	ev, err := p.motion.FollowLine(ctx)
	if err != nil {
		return err
	}
	if ev != linefollow.EventIntersection {
		return fmt.Errorf("returning to %v: unexpected %s", p.m.Pose().Coord(), ev)
	}
	ahead, err := p.motion.PullForward(ctx)
	if err != nil {
		return err
	}
	if classify {
		p.m.ClassifyArrival(ahead, p.cfg.Policy)
	}
	return nil
}

// replanOrAbandon reruns Dijkstra toward the active goal and drops the goal
// if the robot can no longer reach it.
func (p *Planner) replanOrAbandon() error {
	g, ok := p.m.Goal()
	if !ok {
		return nil
	}
	if err := p.m.Replan(); err != nil {
		p.m.ClearGoal()
		return err
	}
	if p.m.AtGoal() {
		return nil
	}
	if _, ok := p.m.NextHop(); !ok {
		p.m.ClearGoal()
		opsf("goal %v unreachable from %v, abandoned", g, p.m.Pose())
		return fmt.Errorf("goal %v: %w", g, ErrNoPath)
	}
	return nil
}

// checkBlocked probes the street ahead and marks it blocked if an obstacle
// is in range.
func (p *Planner) checkBlocked() bool {
	if !p.motion.ForwardBlocked() {
		return false
	}
	pose := p.m.Pose()
	if p.m.SetBlocked(pose.X, pose.Y, pose.Heading, true) {
		opsf("street %v blocked", pose)
	}
	return true
}

func (p *Planner) towards(target streetmap.Heading) turn.Direction {
	if streetmap.StepsBetween(p.m.Pose().Heading, target) > 0 {
		return turn.Left
	}
	return turn.Right
}

// TurnOnce performs one turn primitive and commits it to the map.
func (p *Planner) TurnOnce(ctx context.Context, dir turn.Direction) error {
	res, err := p.motion.Turn(ctx, dir)
	if err != nil {
		return fmt.Errorf("turn %s at %v: %w", dir, p.m.Pose(), err)
	}
	before := p.m.Pose().Heading
	after := p.m.MarkTurn(res.Steps, res.Measured())
	diagf("turn %s: %d steps (measured %.1f°, sensor %.1f°) h%d -> h%d", dir, res.Steps, res.Measured(), res.SensorAngle, before, after)
	return nil
}

// TurnToward turns one primitive at a time toward target. It stops early,
// without error, when a turn fails to make progress or passes the target;
// the map then records the street that was actually found. Intermediate
// headings are probed for obstacles.
func (p *Planner) TurnToward(ctx context.Context, target streetmap.Heading) error {
	for turns := 0; p.m.Pose().Heading != target; turns++ {
		if turns >= p.cfg.MaxTurnSteps {
			return fmt.Errorf("h%d toward h%d: %w", p.m.Pose().Heading, target, ErrTurnNotConverged)
		}
		before := p.m.Pose().Heading
		want := streetmap.StepsBetween(before, target)
		if err := p.TurnOnce(ctx, p.towards(target)); err != nil {
			return err
		}
		h := p.m.Pose().Heading
		if h == target {
			return nil
		}
		p.checkBlocked()
		left := streetmap.StepsBetween(h, target)
		if h == before || (left > 0) != (want > 0) || abs(left) >= abs(want) {
			diagf("turn toward h%d stopped at h%d", target, h)
			return nil
		}
	}
	return nil
}

// ExploreStep performs one unit of exploration. It returns false once no
// reachable street remains unexplored.
func (p *Planner) ExploreStep(ctx context.Context) (bool, error) {
	choice := p.m.Frontier(p.far)
	switch choice.Kind {
	case streetmap.FrontierDone:
		return false, nil
	case streetmap.FrontierRemote:
		diagf("explore: heading for %v", choice.Target)
		_, err := p.StepTowardGoal(ctx)
		if errors.Is(err, ErrNoPath) {
			// The next frontier pick accounts for whatever blocked the way.
			return true, nil
		}
		return true, err
	}

	diagf("explore: %s street at h%d", choice.Kind, choice.Heading)
	if err := p.TurnToward(ctx, choice.Heading); err != nil {
		return true, err
	}
	if p.m.Pose().Heading != choice.Heading {
		return true, nil
	}
	if p.checkBlocked() {
		return true, nil
	}
	return true, p.Advance(ctx)
}

// StepTowardGoal moves one street along the planned route. It returns true
// when the robot stands on the goal, which is then cleared.
func (p *Planner) StepTowardGoal(ctx context.Context) (bool, error) {
	g, ok := p.m.Goal()
	if !ok {
		return true, nil
	}
	if p.m.AtGoal() {
		p.m.ClearGoal()
		opsf("goal %v reached", g)
		return true, nil
	}

	dir, ok := p.m.NextHop()
	if !ok {
		if err := p.replanOrAbandon(); err != nil {
			return false, err
		}
		dir, _ = p.m.NextHop()
	}

	for turns := 0; p.m.Pose().Heading != dir; turns++ {
		if turns >= p.cfg.MaxTurnSteps {
			return false, fmt.Errorf("h%d toward h%d: %w", p.m.Pose().Heading, dir, ErrTurnNotConverged)
		}
		if err := p.TurnOnce(ctx, p.towards(dir)); err != nil {
			return false, err
		}
		if p.checkBlocked() && p.m.Pose().Heading == dir {
			if err := p.replanOrAbandon(); err != nil {
				return false, err
			}
			dir, _ = p.m.NextHop()
			turns = -1
		}
	}

	if p.checkBlocked() {
		return false, p.replanOrAbandon()
	}
	if err := p.Advance(ctx); err != nil {
		return false, err
	}
	return false, p.replanOrAbandon()
}

// GoStraight drives the street ahead once, unless it is blocked.
func (p *Planner) GoStraight(ctx context.Context) error {
	if p.checkBlocked() {
		return fmt.Errorf("street %v is blocked", p.m.Pose())
	}
	return p.Advance(ctx)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
