package linefollow

import (
	"fmt"
	"time"

	"github.com/banshee-data/gridrunner/internal/config"
)

// Config holds the line-following parameters.
type Config struct {
	IntersectionTau float64 // seconds (default: 0.17)
	EndTau          float64 // seconds (default: 0.35)
	SideTau         float64 // seconds (default: 0.30)
	ThresholdHigh   float64 // default: 0.63
	ThresholdLow    float64 // default: 0.37
	SideThreshold   float64 // band half-width (default: 0.30)

	SamplePeriod time.Duration // default: 10ms
	MaxLineLost  time.Duration // default: 1s

	BlockCM         float64       // pause below this forward range (default: 10)
	ClearCM         float64       // resume above this forward range (default: 20)
	BlockPersist    time.Duration // pause length reported as blocked (default: 5s)
	BlockageCheckCM float64       // default: 40

	PullForward          time.Duration // default: 360ms
	PullForwardThreshold float64       // default: 0.41
}

// DefaultConfig returns a Config loaded from the canonical tuning defaults
// file. Panics if the file cannot be found.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		IntersectionTau:      cfg.GetIntersectionTau(),
		EndTau:               cfg.GetEndTau(),
		SideTau:              cfg.GetSideTau(),
		ThresholdHigh:        cfg.GetThresholdHigh(),
		ThresholdLow:         cfg.GetThresholdLow(),
		SideThreshold:        cfg.GetSideThreshold(),
		SamplePeriod:         cfg.GetSamplePeriod(),
		MaxLineLost:          cfg.GetMaxLineLost(),
		BlockCM:              cfg.GetBlockCM(),
		ClearCM:              cfg.GetClearCM(),
		BlockPersist:         cfg.GetBlockPersist(),
		BlockageCheckCM:      cfg.GetBlockageCheckCM(),
		PullForward:          cfg.GetPullForward(),
		PullForwardThreshold: cfg.GetPullForwardThreshold(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.IntersectionTau <= 0 || c.EndTau <= 0 || c.SideTau <= 0 {
		return fmt.Errorf("time constants must be positive, got %f/%f/%f", c.IntersectionTau, c.EndTau, c.SideTau)
	}
	if c.ThresholdLow >= c.ThresholdHigh {
		return fmt.Errorf("ThresholdLow (%f) must be below ThresholdHigh (%f)", c.ThresholdLow, c.ThresholdHigh)
	}
	if c.SamplePeriod <= 0 {
		return fmt.Errorf("SamplePeriod must be positive, got %v", c.SamplePeriod)
	}
	if c.ClearCM <= c.BlockCM {
		return fmt.Errorf("ClearCM (%f) must exceed BlockCM (%f)", c.ClearCM, c.BlockCM)
	}
	return nil
}
