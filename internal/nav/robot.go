package nav

import (
	"context"

	"github.com/banshee-data/gridrunner/internal/linefollow"
	"github.com/banshee-data/gridrunner/internal/turn"
)

// Robot is the hardware Motion: line following and intersection probes
// from a Follower, spins from a Turner.
type Robot struct {
	*linefollow.Follower
	turner *turn.Turner
}

// NewRobot combines a Follower and a Turner that share the same drive.
func NewRobot(f *linefollow.Follower, t *turn.Turner) *Robot {
	return &Robot{Follower: f, turner: t}
}

// Turn spins to the next street in dir.
func (r *Robot) Turn(ctx context.Context, dir turn.Direction) (turn.Result, error) {
	return r.turner.Turn(ctx, dir)
}

var _ Motion = (*Robot)(nil)
