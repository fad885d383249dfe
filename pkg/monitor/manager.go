package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	ifcontext "github.com/vnykmshr/intervalflow/pkg/common/context"
	iferrors "github.com/vnykmshr/intervalflow/pkg/common/errors"
	"github.com/vnykmshr/intervalflow/pkg/common/validation"
	"github.com/vnykmshr/intervalflow/pkg/metrics"
	"github.com/vnykmshr/intervalflow/pkg/scheduling/interval"
)

// Scheduler is the part of *interval.Scheduler the manager needs.
type Scheduler interface {
	Schedule(every time.Duration, fn interval.Func, runImmediately bool) (*interval.CancelHandle, error)
}

// ManagerConfig holds manager configuration.
type ManagerConfig struct {
	Name      string
	Scheduler Scheduler
	Sink      Sink
	Logger    *zerolog.Logger
	Metrics   *metrics.Registry
}

type activeMonitor struct {
	cfg    Config
	handle *interval.CancelHandle
}

// Manager keeps one scheduled job per configured monitor.
type Manager struct {
	name    string
	sched   Scheduler
	sink    Sink
	log     zerolog.Logger
	metrics *metrics.Registry

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	factories map[string]Factory
	active    map[string]*activeMonitor
	closed    bool
}

// NewManager creates a manager. Scheduler and Sink are required.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Scheduler == nil {
		return nil, validation.ValidateNotNil("monitor", "scheduler", nil)
	}
	if cfg.Sink == nil {
		return nil, validation.ValidateNotNil("monitor", "sink", nil)
	}

	name := cfg.Name
	if name == "" {
		name = interval.DefaultName
	}

	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("manager", name).Logger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		name:      name,
		sched:     cfg.Scheduler,
		sink:      cfg.Sink,
		log:       log,
		metrics:   cfg.Metrics,
		ctx:       ctx,
		cancel:    cancel,
		factories: make(map[string]Factory),
		active:    make(map[string]*activeMonitor),
	}, nil
}

// Register makes a monitor type available to Configure.
func (m *Manager) Register(monitorType string, factory Factory) error {
	if err := validation.ValidateNotEmpty("monitor", "type", monitorType); err != nil {
		return err
	}
	if factory == nil {
		return validation.ValidateNotNil("monitor", "factory", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.factories[monitorType]; exists {
		return fmt.Errorf("monitor type %q already registered", monitorType)
	}
	m.factories[monitorType] = factory
	return nil
}

// RegisteredTypes returns the registered monitor types, sorted.
func (m *Manager) RegisteredTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	types := make([]string, 0, len(m.factories))
	for t := range m.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Configure starts the monitor described by cfg, replacing any running
// monitor with the same ID.
func (m *Manager) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	every, _ := cfg.IntervalDuration()
	timeout, _ := cfg.TimeoutDuration()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return iferrors.ErrClosed
	}

	factory, ok := m.factories[cfg.Type]
	if !ok {
		return fmt.Errorf("monitor %q: type %q: %w", cfg.ID, cfg.Type, iferrors.ErrNotFound)
	}
	collector, err := factory(cfg)
	if err != nil {
		return fmt.Errorf("monitor %q: create collector: %w", cfg.ID, err)
	}

	if prev, exists := m.active[cfg.ID]; exists {
		prev.handle.Cancel()
		delete(m.active, cfg.ID)
		m.log.Info().Str("monitor", cfg.ID).Msg("monitor reconfiguring")
	}

	handle, err := m.sched.Schedule(every, m.job(cfg, timeout, collector), cfg.Immediate())
	if err != nil {
		m.recordActiveLocked()
		return fmt.Errorf("monitor %q: schedule: %w", cfg.ID, err)
	}
	m.active[cfg.ID] = &activeMonitor{cfg: cfg, handle: handle}
	m.recordActiveLocked()

	m.log.Info().
		Str("monitor", cfg.ID).
		Str("type", cfg.Type).
		Dur("interval", every).
		Msg("monitor configured")
	return nil
}

// Remove stops the monitor with the given ID. It reports whether one existed.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	am, exists := m.active[id]
	if !exists {
		return false
	}
	am.handle.Cancel()
	delete(m.active, id)
	m.recordActiveLocked()

	m.log.Info().Str("monitor", id).Msg("monitor removed")
	return true
}

// Apply reconciles the running monitors with cfgs: monitors missing from
// cfgs are removed, changed ones reconfigured and new ones added. Unchanged
// monitors keep their schedule. All failures are returned joined.
func (m *Manager) Apply(cfgs []Config) error {
	desired := make(map[string]struct{}, len(cfgs))
	unique := make([]Config, 0, len(cfgs))
	var errs []error
	for _, cfg := range cfgs {
		if _, dup := desired[cfg.ID]; dup {
			errs = append(errs, fmt.Errorf("monitor %q: duplicate id", cfg.ID))
			continue
		}
		desired[cfg.ID] = struct{}{}
		unique = append(unique, cfg)
	}

	for _, cfg := range m.Active() {
		if _, keep := desired[cfg.ID]; !keep {
			m.Remove(cfg.ID)
		}
	}

	for _, cfg := range unique {
		if m.isActive(cfg) {
			continue
		}
		if err := m.Configure(cfg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Active returns the configs of running monitors sorted by ID.
func (m *Manager) Active() []Config {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfgs := make([]Config, 0, len(m.active))
	for _, am := range m.active {
		cfgs = append(cfgs, am.cfg)
	}
	sort.Slice(cfgs, func(i, j int) bool { return cfgs[i].ID < cfgs[j].ID })
	return cfgs
}

// Close cancels every monitor and aborts in-flight collections. Further
// Configure calls fail with errors.ErrClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	for id, am := range m.active {
		am.handle.Cancel()
		delete(m.active, id)
	}
	m.cancel()
	m.recordActiveLocked()
}

// isActive reports whether cfg is already running unchanged.
func (m *Manager) isActive(cfg Config) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	am, exists := m.active[cfg.ID]
	return exists && am.cfg.Equal(cfg)
}

// job adapts a collector to the scheduler's callback contract.
func (m *Manager) job(cfg Config, timeout time.Duration, c Collector) interval.Func {
	return func() error {
		ctx, cancel := ifcontext.WithTimeoutOrCancel(m.ctx, timeout)
		defer cancel()

		dps, err := c.Collect(ctx)
		if err != nil {
			if m.metrics != nil {
				m.metrics.CollectFailures.WithLabelValues(cfg.Type).Inc()
			}
			detail := "monitor " + cfg.ID
			if ifcontext.IsTimeout(err) {
				detail += ", timed out after " + timeout.String()
			}
			return iferrors.NewOperationError("monitor", "Collect", err).WithContext(detail)
		}
		if len(dps) == 0 {
			return nil
		}

		now := time.Now()
		for i := range dps {
			dps[i].stamp(cfg.ID, now, cfg.Dimensions)
		}

		if err := m.sink.Send(ctx, dps); err != nil {
			if m.metrics != nil {
				m.metrics.SinkFailures.WithLabelValues(cfg.Type).Inc()
			}
			return iferrors.NewOperationError("monitor", "Send", err).WithContext("monitor " + cfg.ID)
		}
		if m.metrics != nil {
			m.metrics.DatapointsSent.WithLabelValues(cfg.Type).Add(float64(len(dps)))
		}
		return nil
	}
}

func (m *Manager) recordActiveLocked() {
	if m.metrics != nil {
		m.metrics.MonitorsActive.WithLabelValues(m.name).Set(float64(len(m.active)))
	}
}
