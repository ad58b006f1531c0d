package hal

import "sync"

// DriveCall records one actuator request on a RecordingDrive.
type DriveCall struct {
	Mode    DriveMode
	Reverse bool
	Stop    bool
	PWM     bool
	Left    float64
	Right   float64
}

// RecordingDrive is a Drive that remembers every request. It is safe for
// concurrent use.
type RecordingDrive struct {
	mu    sync.Mutex
	calls []DriveCall
	// Err is returned by every call when set.
	Err error
}

func (d *RecordingDrive) record(c DriveCall) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, c)
	return d.Err
}

func (d *RecordingDrive) Drive(mode DriveMode, reverse bool) error {
	l, r := mode.Levels(reverse)
	return d.record(DriveCall{Mode: mode, Reverse: reverse, Left: l, Right: r})
}

func (d *RecordingDrive) Stop() error { return d.record(DriveCall{Stop: true}) }

func (d *RecordingDrive) SetPWM(left, right float64) error {
	return d.record(DriveCall{PWM: true, Left: left, Right: right})
}

// Calls returns a copy of the recorded requests.
func (d *RecordingDrive) Calls() []DriveCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DriveCall(nil), d.calls...)
}

// Last returns the most recent request.
func (d *RecordingDrive) Last() (DriveCall, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.calls) == 0 {
		return DriveCall{}, false
	}
	return d.calls[len(d.calls)-1], true
}

// ScriptedLine replays a fixed sequence of readings and then repeats the
// last one. Each entry is consumed once per Read.
type ScriptedLine struct {
	mu       sync.Mutex
	readings []LineReading
	pos      int
	Err      error
}

// NewScriptedLine builds a ScriptedLine from patterns such as "010".
func NewScriptedLine(patterns ...string) *ScriptedLine {
	s := &ScriptedLine{}
	s.Append(patterns...)
	return s
}

// Append adds patterns to the end of the script.
func (s *ScriptedLine) Append(patterns ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range patterns {
		s.readings = append(s.readings, ParseLineReading(p))
	}
}

// Repeat appends pattern n times.
func (s *ScriptedLine) Repeat(pattern string, n int) *ScriptedLine {
	for i := 0; i < n; i++ {
		s.Append(pattern)
	}
	return s
}

func (s *ScriptedLine) Read() (LineReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return LineReading{}, s.Err
	}
	if len(s.readings) == 0 {
		return LineReading{}, nil
	}
	r := s.readings[s.pos]
	if s.pos < len(s.readings)-1 {
		s.pos++
	}
	return r, nil
}

// Consumed is the number of readings served so far.
func (s *ScriptedLine) Consumed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// ParseLineReading converts a three-character pattern like "110".
func ParseLineReading(p string) LineReading {
	on := func(i int) bool { return len(p) > i && p[i] == '1' }
	return LineReading{Left: on(0), Middle: on(1), Right: on(2)}
}

// StaticProximity always returns the same ranges.
type StaticProximity struct {
	mu     sync.Mutex
	ranges Ranges
	Err    error
}

// Set replaces the ranges returned by ReadAll.
func (p *StaticProximity) Set(r Ranges) {
	p.mu.Lock()
	p.ranges = r
	p.mu.Unlock()
}

func (p *StaticProximity) ReadAll() (Ranges, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ranges, p.Err
}

// FuncHeading adapts a function to HeadingSensor.
type FuncHeading func() (float64, error)

func (f FuncHeading) ReadAngle() (float64, error) { return f() }
