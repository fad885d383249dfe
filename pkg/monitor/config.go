package monitor

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	iferrors "github.com/vnykmshr/intervalflow/pkg/common/errors"
	"github.com/vnykmshr/intervalflow/pkg/common/validation"
)

// Config describes one monitor instance.
type Config struct {
	ID   string `yaml:"id"`
	Type string `yaml:"type"`

	// Interval is a Go duration ("10s") or a cron constant-delay
	// descriptor ("@every 10s").
	Interval string `yaml:"interval"`

	// RunImmediately defaults to true, so a new monitor reports right away.
	RunImmediately *bool `yaml:"runImmediately,omitempty"`

	// Timeout bounds one collection. Defaults to the interval.
	Timeout string `yaml:"timeout,omitempty"`

	Dimensions map[string]string      `yaml:"dimensions,omitempty"`
	Options    map[string]interface{} `yaml:"options,omitempty"`
}

// Validate checks the fields the manager relies on.
func (c Config) Validate() error {
	if err := validation.ValidateNotEmpty("monitor", "id", c.ID); err != nil {
		return err
	}
	if err := validation.ValidateNotEmpty("monitor", "type", c.Type); err != nil {
		return err
	}
	if _, err := c.IntervalDuration(); err != nil {
		return err
	}
	if _, err := c.TimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// IntervalDuration parses Interval.
func (c Config) IntervalDuration() (time.Duration, error) {
	d, err := ParseInterval(c.Interval)
	if err != nil {
		return 0, iferrors.NewValidationError("monitor", "interval", c.Interval, err.Error()).
			WithHint(`use a duration such as "10s" or "@every 10s"`)
	}
	return d, nil
}

// TimeoutDuration parses Timeout, falling back to the interval.
func (c Config) TimeoutDuration() (time.Duration, error) {
	if strings.TrimSpace(c.Timeout) == "" {
		return c.IntervalDuration()
	}
	d, err := time.ParseDuration(strings.TrimSpace(c.Timeout))
	if err != nil || d <= 0 {
		return 0, iferrors.NewValidationError("monitor", "timeout", c.Timeout, "must be a positive duration")
	}
	return d, nil
}

// Immediate reports whether the first run happens on registration.
func (c Config) Immediate() bool {
	return c.RunImmediately == nil || *c.RunImmediately
}

// Equal reports whether two configs would produce the same job.
func (c Config) Equal(other Config) bool {
	return reflect.DeepEqual(c, other)
}

// ParseInterval accepts a Go duration or an "@every" descriptor. Other cron
// expressions are rejected since they do not describe a fixed interval.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("interval cannot be empty")
	}

	var d time.Duration
	if strings.HasPrefix(s, "@") {
		sched, err := cron.ParseStandard(s)
		if err != nil {
			return 0, fmt.Errorf("invalid descriptor: %w", err)
		}
		every, ok := sched.(cron.ConstantDelaySchedule)
		if !ok {
			return 0, fmt.Errorf("descriptor %q has no fixed interval, use @every", s)
		}
		d = every.Delay
	} else {
		var err error
		d, err = time.ParseDuration(s)
		if err != nil {
			return 0, err
		}
	}

	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	return d, nil
}
