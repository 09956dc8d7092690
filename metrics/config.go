package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/kbukum/gowizard/lifecycle"
	"github.com/kbukum/gowizard/logger"
	"github.com/kbukum/gowizard/util"
)

// Config is the metrics section of the application configuration.
type Config struct {
	// Frequency is the default reporting interval.
	Frequency util.Duration `yaml:"frequency" mapstructure:"frequency" validate:"duration_min=1s"`
	// Reporters lists scheduled reporters.
	Reporters []ReporterConfig `yaml:"reporters" mapstructure:"reporters" validate:"dive"`
	// ReportOnStop runs every reporter once more when the application stops.
	ReportOnStop bool `yaml:"reportOnStop" mapstructure:"reportOnStop"`
}

// ReporterConfig configures one reporter.
type ReporterConfig struct {
	Type string `yaml:"type" mapstructure:"type" validate:"oneof=log"`
	// Logger names the component logger reports are written to.
	Logger string `yaml:"logger" mapstructure:"logger"`
	// Frequency overrides the section frequency for this reporter.
	Frequency util.Duration `yaml:"frequency,omitempty" mapstructure:"frequency"`
	// Cron schedules the reporter with a cron expression instead of a
	// fixed frequency.
	Cron     string   `yaml:"cron,omitempty" mapstructure:"cron"`
	Includes []string `yaml:"includes,omitempty" mapstructure:"includes"`
	Excludes []string `yaml:"excludes,omitempty" mapstructure:"excludes"`
}

// ApplyDefaults fills in unset values.
func (c *Config) ApplyDefaults() {
	if c.Frequency == 0 {
		c.Frequency = util.Duration(time.Minute)
	}
	for i := range c.Reporters {
		c.Reporters[i].ApplyDefaults()
	}
}

// ApplyDefaults fills in unset values.
func (r *ReporterConfig) ApplyDefaults() {
	if r.Type == "" {
		r.Type = "log"
	}
	if r.Logger == "" {
		r.Logger = "metrics"
	}
}

// ScheduleReporters builds the configured reporters and schedules them on
// an executor managed by env. It returns the reporters in configuration
// order.
func (c *Config) ScheduleReporters(env *lifecycle.Environment, registry *Registry, log *logger.Logger) ([]Reporter, error) {
	if len(c.Reporters) == 0 {
		return nil, nil
	}
	scheduler, err := env.ScheduledExecutorService("metrics-reporter-%d").Build()
	if err != nil {
		return nil, err
	}

	reporters := make([]Reporter, 0, len(c.Reporters))
	for i, rc := range c.Reporters {
		reporter := NewLogReporter(registry, log.WithComponent(rc.Logger), rc.Includes, rc.Excludes)
		run := func() {
			if err := reporter.Report(context.Background()); err != nil {
				log.Warn("Metrics report failed", map[string]interface{}{logger.FieldError: err.Error()})
			}
		}

		if rc.Cron != "" {
			if _, err := scheduler.ScheduleCron(rc.Cron, run); err != nil {
				return nil, fmt.Errorf("metrics reporter %d: %w", i, err)
			}
		} else {
			freq := rc.Frequency
			if freq == 0 {
				freq = c.Frequency
			}
			if _, err := scheduler.ScheduleAtFixedRate(freq.Std(), freq.Std(), run); err != nil {
				return nil, fmt.Errorf("metrics reporter %d: %w", i, err)
			}
		}
		reporters = append(reporters, reporter)
	}

	if c.ReportOnStop {
		env.ManageFuncs("metrics-report-on-stop", nil, func(ctx context.Context) error {
			for _, r := range reporters {
				if err := r.Report(ctx); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return reporters, nil
}
