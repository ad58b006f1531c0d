package streetmap

import "fmt"

// StreetStatus is what is known about the street leaving an intersection in
// one heading.
type StreetStatus uint8

const (
	Unknown StreetStatus = iota
	Nonexistent
	Unexplored
	Connected
	DeadEnd
)

func (s StreetStatus) String() string {
	switch s {
	case Unknown:
		return "UNKNOWN"
	case Nonexistent:
		return "NONEXISTENT"
	case Unexplored:
		return "UNEXPLORED"
	case Connected:
		return "CONNECTED"
	case DeadEnd:
		return "DEADEND"
	}
	return fmt.Sprintf("StreetStatus(%d)", uint8(s))
}

// ParseStreetStatus is the inverse of String.
func ParseStreetStatus(v string) (StreetStatus, error) {
	for _, s := range []StreetStatus{Unknown, Nonexistent, Unexplored, Connected, DeadEnd} {
		if s.String() == v {
			return s, nil
		}
	}
	return Unknown, fmt.Errorf("unknown street status %q", v)
}

// CanBecome reports whether exploration logic may replace s with next.
// Connected and DeadEnd are terminal, and nothing returns to Unknown.
// Nonexistent may only be corrected to Connected, which requires having
// physically driven the street.
func (s StreetStatus) CanBecome(next StreetStatus) bool {
	if next == Unknown || next == s {
		return false
	}
	switch s {
	case Unknown:
		return true
	case Unexplored:
		return next == Nonexistent || next == Connected || next == DeadEnd
	case Nonexistent:
		return next == Connected
	case Connected, DeadEnd:
		return false
	}
	return false
}

// Explorable reports whether the street still needs a visit.
func (s StreetStatus) Explorable() bool {
	switch s {
	case Unknown, Unexplored:
		return true
	case Nonexistent, Connected, DeadEnd:
		return false
	}
	return false
}

// Blockable reports whether a blocked flag is meaningful for the street.
func (s StreetStatus) Blockable() bool {
	switch s {
	case Nonexistent, DeadEnd:
		return false
	case Unknown, Unexplored, Connected:
		return true
	}
	return false
}
