// Package monitoring is the process-wide log sink for infrastructure code:
// the serial link, the HTTP surface, and the map store. The decision core
// packages keep their own ops/diag/trace streams.
package monitoring

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

// Logf defaults to log.Printf. Replace it with SetLogger or SetOutput.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetOutput sends Logf to w with microsecond timestamps. A nil w mutes it.
func SetOutput(w io.Writer) {
	if w == nil {
		SetLogger(nil)
		return
	}
	SetLogger(log.New(w, "", log.LstdFlags|log.Lmicroseconds).Printf)
}

// Throttle passes at most one message per key per interval to Logf and
// counts the rest. It keeps telemetry-rate failures from flooding the log.
type Throttle struct {
	every time.Duration
	now   func() time.Time

	mu         sync.Mutex
	last       map[string]time.Time
	suppressed map[string]int
}

func NewThrottle(every time.Duration) *Throttle {
	return &Throttle{
		every:      every,
		now:        time.Now,
		last:       make(map[string]time.Time),
		suppressed: make(map[string]int),
	}
}

// Logf logs under key unless key was logged less than the interval ago.
func (t *Throttle) Logf(key, format string, v ...interface{}) {
	t.mu.Lock()
	now := t.now()
	if last, ok := t.last[key]; ok && now.Sub(last) < t.every {
		t.suppressed[key]++
		t.mu.Unlock()
		return
	}
	n := t.suppressed[key]
	t.last[key] = now
	delete(t.suppressed, key)
	t.mu.Unlock()

	msg := fmt.Sprintf(format, v...)
	if n > 0 {
		msg = fmt.Sprintf("%s (%d similar suppressed)", msg, n)
	}
	Logf("%s", msg)
}
