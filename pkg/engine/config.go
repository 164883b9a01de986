package engine

import (
	"fmt"
	"time"
)

// EngineConfig contains configuration for the rule dispatcher.
type EngineConfig struct {
	// RuleTimeout bounds the evaluation of a single rule. A rule that exceeds
	// it fails for the run. Zero disables the limit.
	// Default: 0.
	RuleTimeout time.Duration

	// MaxGroups caps correlation groups for pair rules that set no limit of
	// their own. Zero means unlimited.
	// Default: 0.
	MaxGroups int

	// MaxDiagnostics caps the diagnostics kept in a Report. Further
	// diagnostics are counted but not stored.
	// Default: 1000.
	MaxDiagnostics int

	// EnableTrace starts a span for every evaluated rule.
	// Default: false.
	EnableTrace bool
}

// DefaultEngineConfig returns the default engine configuration.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		RuleTimeout:    0,
		MaxGroups:      0,
		MaxDiagnostics: 1000,
		EnableTrace:    false,
	}
}

// Validate validates the engine configuration.
func (c *EngineConfig) Validate() error {
	if c.RuleTimeout < 0 {
		return fmt.Errorf("%w: rule timeout cannot be negative", ErrInvalidConfig)
	}
	if c.MaxGroups < 0 {
		return fmt.Errorf("%w: max groups cannot be negative", ErrInvalidConfig)
	}
	if c.MaxDiagnostics <= 0 {
		return fmt.Errorf("%w: max diagnostics must be positive", ErrInvalidConfig)
	}
	return nil
}

// WithRuleTimeout sets the per-rule timeout.
func (c *EngineConfig) WithRuleTimeout(timeout time.Duration) *EngineConfig {
	c.RuleTimeout = timeout
	return c
}

// WithMaxGroups sets the default correlation group limit.
func (c *EngineConfig) WithMaxGroups(max int) *EngineConfig {
	c.MaxGroups = max
	return c
}

// WithMaxDiagnostics sets the diagnostics cap.
func (c *EngineConfig) WithMaxDiagnostics(max int) *EngineConfig {
	c.MaxDiagnostics = max
	return c
}

// WithTrace enables or disables per-rule spans.
func (c *EngineConfig) WithTrace(enabled bool) *EngineConfig {
	c.EnableTrace = enabled
	return c
}
