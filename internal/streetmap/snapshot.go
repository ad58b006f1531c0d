package streetmap

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
)

// IntersectionRecord is the persisted form of an Intersection.
type IntersectionRecord struct {
	X, Y    int
	Streets [NumHeadings]StreetStatus
	Blocked [NumHeadings]bool
}

// Snapshot is a deep copy of a Map's logical content. Route state is not
// part of it; restoring a snapshot with a goal replans.
type Snapshot struct {
	Intersections []IntersectionRecord
	Pose          Pose
	Goal          *Coord
}

// Snapshot copies the map. Records are ordered by x then y.
func (m *Map) Snapshot() Snapshot {
	s := Snapshot{Pose: m.pose}
	if m.goal != nil {
		g := *m.goal
		s.Goal = &g
	}
	for _, i := range m.Intersections() {
		s.Intersections = append(s.Intersections, IntersectionRecord{
			X: i.X, Y: i.Y, Streets: i.Streets, Blocked: i.Blocked,
		})
	}
	return s
}

// Lookup finds a record by coordinate.
func (s Snapshot) Lookup(x, y int) (IntersectionRecord, bool) {
	for _, r := range s.Intersections {
		if r.X == x && r.Y == y {
			return r, true
		}
	}
	return IntersectionRecord{}, false
}

// FromSnapshot rebuilds a Map. Statuses are restored verbatim.
func FromSnapshot(s Snapshot) (*Map, error) {
	m := New()
	for _, r := range s.Intersections {
		c := Coord{X: r.X, Y: r.Y}
		if _, dup := m.intersections[c]; dup {
			return nil, fmt.Errorf("duplicate intersection %v in snapshot", c)
		}
		for h, st := range r.Streets {
			if st > DeadEnd {
				return nil, fmt.Errorf("intersection %v h%d: invalid status %d", c, h, st)
			}
		}
		i := newIntersection(c)
		i.Streets = r.Streets
		i.Blocked = r.Blocked
		m.intersections[c] = i
	}
	m.pose = s.Pose
	m.pose.Heading %= NumHeadings
	if s.Goal != nil {
		if err := m.Dijkstra(s.Goal.X, s.Goal.Y); err != nil {
			return nil, fmt.Errorf("restore goal: %w", err)
		}
	}
	return m, nil
}

// EncodeSnapshot compresses a snapshot with gob and gzip.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(s); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot reverses EncodeSnapshot.
func DecodeSnapshot(blob []byte) (Snapshot, error) {
	var s Snapshot
	if len(blob) == 0 {
		return s, fmt.Errorf("empty map blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return s, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()
	if err := gob.NewDecoder(gz).Decode(&s); err != nil {
		return s, fmt.Errorf("failed to decode map snapshot: %w", err)
	}
	return s, nil
}
