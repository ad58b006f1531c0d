package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the calibration constants of one physical robot.
// Every field is optional; the Get* methods supply defaults for anything
// the JSON file leaves out.
type TuningConfig struct {
	// Line detectors. Time constants are seconds.
	IntersectionTau *float64 `json:"intersection_tau,omitempty"`
	EndTau          *float64 `json:"end_tau,omitempty"`
	SideTau         *float64 `json:"side_tau,omitempty"`
	ThresholdHigh   *float64 `json:"threshold_high,omitempty"`
	ThresholdLow    *float64 `json:"threshold_low,omitempty"`
	SideThreshold   *float64 `json:"side_threshold,omitempty"`
	SamplePeriod    *string  `json:"sample_period,omitempty"` // duration string like "10ms"
	MaxLineLost     *string  `json:"max_line_lost,omitempty"`

	// Obstacles. Distances are centimeters.
	BlockCM         *float64 `json:"block_cm,omitempty"`
	ClearCM         *float64 `json:"clear_cm,omitempty"`
	BlockageCheckCM *float64 `json:"blockage_check_cm,omitempty"`
	BlockPersist    *string  `json:"block_persist,omitempty"`
	ProximityPeriod *string  `json:"proximity_period,omitempty"`

	// Pull forward past a crossbar.
	PullForward          *string  `json:"pull_forward,omitempty"`
	PullForwardThreshold *float64 `json:"pull_forward_threshold,omitempty"`

	// Turn model: angle = A t² + B t + C, scaled up toward TurnScale.
	TurnModelA     *float64 `json:"turn_model_a,omitempty"`
	TurnModelB     *float64 `json:"turn_model_b,omitempty"`
	TurnModelC     *float64 `json:"turn_model_c,omitempty"`
	TurnScale      *float64 `json:"turn_scale,omitempty"`
	TimeWeight     *float64 `json:"time_weight,omitempty"`
	SensorWeight   *float64 `json:"sensor_weight,omitempty"`
	SpinTau        *float64 `json:"spin_tau,omitempty"`
	SpinThreshold  *float64 `json:"spin_threshold,omitempty"`
	MaxSpin        *string  `json:"max_spin,omitempty"`
	RealignTimeout *string  `json:"realign_timeout,omitempty"`
	RealignPower   *float64 `json:"realign_power,omitempty"`

	// Planner.
	LoopPeriod        *string `json:"loop_period,omitempty"`
	MaxTurnSteps      *int    `json:"max_turn_steps,omitempty"`
	MaxUTurnAttempts  *int    `json:"max_uturn_attempts,omitempty"`
	MaxAlignAttempts  *int    `json:"max_align_attempts,omitempty"`
	DiagonalExclusion *bool   `json:"diagonal_exclusion,omitempty"`
	StartX            *int    `json:"start_x,omitempty"`
	StartY            *int    `json:"start_y,omitempty"`
	StartHeading      *int    `json:"start_heading,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// from the built-in defaults. cmd/turncal writes it out as a starting point.
func DefaultTuningConfig() *TuningConfig {
	e := EmptyTuningConfig()
	x, y, h := e.GetStartPose()
	return &TuningConfig{
		IntersectionTau:      ptrFloat64(e.GetIntersectionTau()),
		EndTau:               ptrFloat64(e.GetEndTau()),
		SideTau:              ptrFloat64(e.GetSideTau()),
		ThresholdHigh:        ptrFloat64(e.GetThresholdHigh()),
		ThresholdLow:         ptrFloat64(e.GetThresholdLow()),
		SideThreshold:        ptrFloat64(e.GetSideThreshold()),
		SamplePeriod:         ptrString("10ms"),
		MaxLineLost:          ptrString("1s"),
		BlockCM:              ptrFloat64(e.GetBlockCM()),
		ClearCM:              ptrFloat64(e.GetClearCM()),
		BlockageCheckCM:      ptrFloat64(e.GetBlockageCheckCM()),
		BlockPersist:         ptrString("5s"),
		ProximityPeriod:      ptrString("50ms"),
		PullForward:          ptrString("360ms"),
		PullForwardThreshold: ptrFloat64(e.GetPullForwardThreshold()),
		TurnModelA:           ptrFloat64(e.GetTurnModelA()),
		TurnModelB:           ptrFloat64(e.GetTurnModelB()),
		TurnModelC:           ptrFloat64(e.GetTurnModelC()),
		TurnScale:            ptrFloat64(e.GetTurnScale()),
		TimeWeight:           ptrFloat64(e.GetTimeWeight()),
		SensorWeight:         ptrFloat64(e.GetSensorWeight()),
		SpinTau:              ptrFloat64(e.GetSpinTau()),
		SpinThreshold:        ptrFloat64(e.GetSpinThreshold()),
		MaxSpin:              ptrString("6s"),
		RealignTimeout:       ptrString("1.5s"),
		RealignPower:         ptrFloat64(e.GetRealignPower()),
		LoopPeriod:           ptrString("50ms"),
		MaxTurnSteps:         ptrInt(e.GetMaxTurnSteps()),
		MaxUTurnAttempts:     ptrInt(e.GetMaxUTurnAttempts()),
		MaxAlignAttempts:     ptrInt(e.GetMaxAlignAttempts()),
		DiagonalExclusion:    ptrBool(e.GetDiagonalExclusion()),
		StartX:               ptrInt(x),
		StartY:               ptrInt(y),
		StartHeading:         ptrInt(h),
	}
}

// SetTurnModel replaces the turn model coefficients, as fitted by
// cmd/turncal.
func (c *TuningConfig) SetTurnModel(a, b, cc, scale float64) {
	c.TurnModelA = ptrFloat64(a)
	c.TurnModelB = ptrFloat64(b)
	c.TurnModelC = ptrFloat64(cc)
	c.TurnScale = ptrFloat64(scale)
}

// Save writes the configuration as indented JSON.
func (c *TuningConfig) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file fall back to the Get* defaults.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are usable.
func (c *TuningConfig) Validate() error {
	for name, tau := range map[string]*float64{
		"intersection_tau": c.IntersectionTau,
		"end_tau":          c.EndTau,
		"side_tau":         c.SideTau,
		"spin_tau":         c.SpinTau,
	} {
		if tau != nil && *tau <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *tau)
		}
	}

	if high, low := c.GetThresholdHigh(), c.GetThresholdLow(); high <= low || low <= 0 || high >= 1 {
		return fmt.Errorf("thresholds must satisfy 0 < threshold_low < threshold_high < 1, got %f/%f", low, high)
	}
	if s := c.GetSideThreshold(); s <= 0 || s >= 1 {
		return fmt.Errorf("side_threshold must be between 0 and 1, got %f", s)
	}
	if s := c.GetSpinThreshold(); s <= 0 || s >= 1 {
		return fmt.Errorf("spin_threshold must be between 0 and 1, got %f", s)
	}
	if c.GetClearCM() <= c.GetBlockCM() {
		return fmt.Errorf("clear_cm (%f) must exceed block_cm (%f)", c.GetClearCM(), c.GetBlockCM())
	}
	if c.GetTimeWeight() < 0 || c.GetSensorWeight() < 0 || c.GetTimeWeight()+c.GetSensorWeight() <= 0 {
		return fmt.Errorf("turn weights must be non-negative with a positive sum")
	}

	for name, d := range map[string]*string{
		"sample_period":    c.SamplePeriod,
		"max_line_lost":    c.MaxLineLost,
		"block_persist":    c.BlockPersist,
		"proximity_period": c.ProximityPeriod,
		"pull_forward":     c.PullForward,
		"max_spin":         c.MaxSpin,
		"realign_timeout":  c.RealignTimeout,
		"loop_period":      c.LoopPeriod,
	} {
		if d == nil || *d == "" {
			continue
		}
		v, err := time.ParseDuration(*d)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *d, err)
		}
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *d)
		}
	}

	for name, n := range map[string]*int{
		"max_turn_steps":     c.MaxTurnSteps,
		"max_uturn_attempts": c.MaxUTurnAttempts,
		"max_align_attempts": c.MaxAlignAttempts,
	} {
		if n != nil && *n < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", name, *n)
		}
	}

	if c.StartHeading != nil && (*c.StartHeading < 0 || *c.StartHeading > 7) {
		return fmt.Errorf("start_heading must be in [0,7], got %d", *c.StartHeading)
	}
	return nil
}

func getFloat(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func getInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func getDuration(p *string, def time.Duration) time.Duration {
	if p == nil || *p == "" {
		return def
	}
	d, err := time.ParseDuration(*p)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetIntersectionTau returns the intersection detector time constant.
func (c *TuningConfig) GetIntersectionTau() float64 { return getFloat(c.IntersectionTau, 0.17) }

// GetEndTau returns the end-of-street detector time constant.
func (c *TuningConfig) GetEndTau() float64 { return getFloat(c.EndTau, 0.35) }

// GetSideTau returns the side estimator time constant.
func (c *TuningConfig) GetSideTau() float64 { return getFloat(c.SideTau, 0.3) }

// GetThresholdHigh returns the upper Schmitt threshold.
func (c *TuningConfig) GetThresholdHigh() float64 { return getFloat(c.ThresholdHigh, 0.63) }

// GetThresholdLow returns the lower Schmitt threshold.
func (c *TuningConfig) GetThresholdLow() float64 { return getFloat(c.ThresholdLow, 0.37) }

// GetSideThreshold returns the side estimator's band half-width.
func (c *TuningConfig) GetSideThreshold() float64 { return getFloat(c.SideThreshold, 0.30) }

// GetSamplePeriod returns the line sampling period.
func (c *TuningConfig) GetSamplePeriod() time.Duration {
	return getDuration(c.SamplePeriod, 10*time.Millisecond)
}

// GetMaxLineLost returns how long the line may be lost before the street
// is treated as ended.
func (c *TuningConfig) GetMaxLineLost() time.Duration {
	return getDuration(c.MaxLineLost, time.Second)
}

// GetBlockCM returns the distance that pauses line following.
func (c *TuningConfig) GetBlockCM() float64 { return getFloat(c.BlockCM, 10) }

// GetClearCM returns the distance that resumes line following.
func (c *TuningConfig) GetClearCM() float64 { return getFloat(c.ClearCM, 20) }

// GetBlockageCheckCM returns the distance under which a street ahead is
// considered blocked before driving it.
func (c *TuningConfig) GetBlockageCheckCM() float64 { return getFloat(c.BlockageCheckCM, 40) }

// GetBlockPersist returns how long a pause may last before the street is
// reported blocked.
func (c *TuningConfig) GetBlockPersist() time.Duration {
	return getDuration(c.BlockPersist, 5*time.Second)
}

// GetProximityPeriod returns the proximity sampling cadence.
func (c *TuningConfig) GetProximityPeriod() time.Duration {
	return getDuration(c.ProximityPeriod, 50*time.Millisecond)
}

// GetPullForward returns the pull-forward duration.
func (c *TuningConfig) GetPullForward() time.Duration {
	return getDuration(c.PullForward, 360*time.Millisecond)
}

// GetPullForwardThreshold returns the presence level that means a street
// continues.
func (c *TuningConfig) GetPullForwardThreshold() float64 {
	return getFloat(c.PullForwardThreshold, 0.41)
}

// GetTurnModelA returns the quadratic coefficient of the turn model.
func (c *TuningConfig) GetTurnModelA() float64 { return getFloat(c.TurnModelA, -14.88) }

// GetTurnModelB returns the linear coefficient of the turn model.
func (c *TuningConfig) GetTurnModelB() float64 { return getFloat(c.TurnModelB, 162.92) }

// GetTurnModelC returns the constant term of the turn model.
func (c *TuningConfig) GetTurnModelC() float64 { return getFloat(c.TurnModelC, -40.47) }

// GetTurnScale returns the large-angle scale correction.
func (c *TuningConfig) GetTurnScale() float64 { return getFloat(c.TurnScale, 1.14) }

// GetTimeWeight returns the weight of the time-based turn estimate.
func (c *TuningConfig) GetTimeWeight() float64 { return getFloat(c.TimeWeight, 0.4) }

// GetSensorWeight returns the weight of the heading-sensor turn estimate.
func (c *TuningConfig) GetSensorWeight() float64 { return getFloat(c.SensorWeight, 0.6) }

// GetSpinTau returns the time constant used while spinning.
func (c *TuningConfig) GetSpinTau() float64 { return getFloat(c.SpinTau, 0.1) }

// GetSpinThreshold returns the threshold used while spinning.
func (c *TuningConfig) GetSpinThreshold() float64 { return getFloat(c.SpinThreshold, 0.63) }

// GetMaxSpin returns the longest a turn may spin before failing.
func (c *TuningConfig) GetMaxSpin() time.Duration {
	return getDuration(c.MaxSpin, 6*time.Second)
}

// GetRealignTimeout returns the longest the post-turn realignment may run.
func (c *TuningConfig) GetRealignTimeout() time.Duration {
	return getDuration(c.RealignTimeout, 1500*time.Millisecond)
}

// GetRealignPower returns the motor power used while realigning.
func (c *TuningConfig) GetRealignPower() float64 { return getFloat(c.RealignPower, 0.6) }

// GetLoopPeriod returns the planner idle period.
func (c *TuningConfig) GetLoopPeriod() time.Duration {
	return getDuration(c.LoopPeriod, 50*time.Millisecond)
}

// GetMaxTurnSteps returns the most turn primitives used to face one heading.
func (c *TuningConfig) GetMaxTurnSteps() int { return getInt(c.MaxTurnSteps, 4) }

// GetMaxUTurnAttempts returns the most spins used to complete a U-turn.
func (c *TuningConfig) GetMaxUTurnAttempts() int { return getInt(c.MaxUTurnAttempts, 3) }

// GetMaxAlignAttempts returns the most attempts to find the first
// intersection at startup.
func (c *TuningConfig) GetMaxAlignAttempts() int { return getInt(c.MaxAlignAttempts, 4) }

// GetDiagonalExclusion reports whether arrival classification rules out
// diagonal neighbors.
func (c *TuningConfig) GetDiagonalExclusion() bool {
	if c.DiagonalExclusion == nil {
		return true
	}
	return *c.DiagonalExclusion
}

// GetStartPose returns the operator-declared starting intersection and
// heading.
func (c *TuningConfig) GetStartPose() (x, y, heading int) {
	return getInt(c.StartX, 0), getInt(c.StartY, 0), getInt(c.StartHeading, 0)
}
