// Package proximity samples the ultrasonic array in the background so the
// line follower can check for obstacles without waiting on echoes.
package proximity

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/gridrunner/internal/hal"
	"github.com/banshee-data/gridrunner/internal/monitoring"
	"github.com/banshee-data/gridrunner/internal/timeutil"
)

// Sampler polls a ProximitySensor on a ticker and keeps the latest Ranges.
// A failed trigger or read publishes an empty reading, which never counts
// as blocked.
type Sampler struct {
	sensor hal.ProximitySensor
	clock  timeutil.Clock
	period time.Duration

	mu       sync.RWMutex
	latest   hal.Ranges
	at       time.Time
	reads    uint64
	failures uint64
}

// NewSampler creates a Sampler; Run starts it.
func NewSampler(sensor hal.ProximitySensor, clock timeutil.Clock, period time.Duration) *Sampler {
	return &Sampler{sensor: sensor, clock: clock, period: period}
}

// Sample takes one reading now.
func (s *Sampler) Sample() {
	r, err := s.read()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if err != nil {
		s.failures++
		// Log the first failure after a good reading, not every tick.
		if s.failures == 1 || s.latest != (hal.Ranges{}) {
			monitoring.Logf("proximity: %v", err)
		}
		r = hal.Ranges{}
	}
	s.latest = r
	s.at = s.clock.Now()
}

func (s *Sampler) read() (hal.Ranges, error) {
	if t, ok := s.sensor.(hal.Triggerer); ok {
		if err := t.Trigger(); err != nil {
			return hal.Ranges{}, err
		}
	}
	return s.sensor.ReadAll()
}

// Run samples every period until ctx is done.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.period)
	defer ticker.Stop()
	s.Sample()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			s.Sample()
		}
	}
}

// Latest returns the most recent reading. It satisfies
// linefollow.ProximitySource.
func (s *Sampler) Latest() hal.Ranges {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Stats returns the number of samples, how many failed, and when the last
// one was taken.
func (s *Sampler) Stats() (reads, failures uint64, at time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads, s.failures, s.at
}
