package nav

import (
	"sync"
	"time"

	"github.com/banshee-data/gridrunner/internal/streetmap"
)

// Status is what the runner publishes after every cycle.
type Status struct {
	Pose      streetmap.Pose
	Mode      Mode
	Paused    bool
	Aligned   bool
	Goal      *streetmap.Coord
	Far       *streetmap.Coord
	Route     []streetmap.Coord
	Map       streetmap.Snapshot
	LastError string
	Cycles    uint64
	Updated   time.Time
}

// StatusBoard hands the latest Status from the planner loop to readers
// such as the HTTP API. Readers always get their own copy.
type StatusBoard struct {
	mu     sync.RWMutex
	status Status
}

// NewStatusBoard returns an empty board.
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{status: Status{Mode: ModeIdle}}
}

// Publish replaces the current status.
func (b *StatusBoard) Publish(s Status) {
	s = copyStatus(s)
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
}

// Get returns a copy of the current status.
func (b *StatusBoard) Get() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copyStatus(b.status)
}

func copyStatus(s Status) Status {
	out := s
	if s.Goal != nil {
		g := *s.Goal
		out.Goal = &g
	}
	if s.Far != nil {
		f := *s.Far
		out.Far = &f
	}
	if s.Map.Goal != nil {
		g := *s.Map.Goal
		out.Map.Goal = &g
	}
	out.Route = append([]streetmap.Coord(nil), s.Route...)
	out.Map.Intersections = append([]streetmap.IntersectionRecord(nil), s.Map.Intersections...)
	return out
}
