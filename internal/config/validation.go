package config

import (
	"fmt"
	"strings"

	"github.com/iwvelando/npk-advisor/pkg/constants"
	"github.com/iwvelando/npk-advisor/pkg/validation"
)

// ValidateConfiguration performs general validation of the configuration and returns warnings
func (c *Configuration) ValidateConfiguration() []string {
	warnings := c.Warnings()

	risk := c.Model.Risk
	if risk.Z <= 0 {
		warnings = append(warnings, fmt.Sprintf("model.risk.z is %v; the objective no longer penalizes yield risk", risk.Z))
	}
	if risk.Z != constants.DefaultZScore {
		warnings = append(warnings, fmt.Sprintf("model.risk.z overridden to %v (default %v)", risk.Z, constants.DefaultZScore))
	}

	if c.Solver.FallbackMaxIterations > c.Solver.PrimaryMaxIterations {
		warnings = append(warnings, fmt.Sprintf("solver.fallbackMaxIterations (%d) exceeds solver.primaryMaxIterations (%d)",
			c.Solver.FallbackMaxIterations, c.Solver.PrimaryMaxIterations))
	}
	if c.Solver.Timeout <= 0 {
		warnings = append(warnings, "solver.timeout is not set; optimizations are bounded by iteration caps only")
	}

	if c.Jobs.Timeout > 0 && c.Solver.Timeout > c.Jobs.Timeout {
		warnings = append(warnings, fmt.Sprintf("solver.timeout (%s) exceeds jobs.timeout (%s)", c.Solver.Timeout, c.Jobs.Timeout))
	}

	if c.Weather.Enabled && strings.TrimSpace(c.Weather.BaseURL) == "" {
		warnings = append(warnings, "weather is enabled but weather.baseURL is empty")
	}

	return warnings
}

// Validate returns an error for settings the application cannot run with.
func (c *Configuration) Validate() error {
	if _, err := c.CostParameters(); err != nil {
		return err
	}
	if c.Solver.Tolerance <= 0 {
		return fmt.Errorf("solver.tolerance must be positive, got %v", c.Solver.Tolerance)
	}
	if c.Solver.PrimaryMaxIterations <= 0 {
		return fmt.Errorf("solver.primaryMaxIterations must be positive, got %d", c.Solver.PrimaryMaxIterations)
	}
	if c.Solver.FallbackMaxIterations <= 0 {
		return fmt.Errorf("solver.fallbackMaxIterations must be positive, got %d", c.Solver.FallbackMaxIterations)
	}
	if c.Model.Risk.NitrogenReference <= 0 {
		return fmt.Errorf("model.risk.nitrogenReference must be positive, got %v", c.Model.Risk.NitrogenReference)
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("jobs.workers must be positive, got %d", c.Jobs.Workers)
	}
	if c.Jobs.QueueSize <= 0 {
		return fmt.Errorf("jobs.queueSize must be positive, got %d", c.Jobs.QueueSize)
	}
	if err := validation.ValidateOutputFormat(c.Output.Format); err != nil {
		return fmt.Errorf("output.format: %w", err)
	}
	return nil
}
