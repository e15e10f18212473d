package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/womgr-core/internal/device"
)

// Defaults for Options.
const (
	DefaultInterval        = 60 * time.Second
	DefaultConcurrency     = 8
	DefaultConfirmAttempts = 12
	DefaultConfirmInterval = 5 * time.Second
)

// ChannelStateChanged is the WebSocket channel for reachability changes.
const ChannelStateChanged = "device.state_changed"

// Logger defines the logging interface used by the Monitor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Lister returns the devices to probe. *device.Registry satisfies it.
type Lister interface {
	List() []*device.Record
}

// StatePublisher publishes retained device state. *mqtt.Client satisfies it.
type StatePublisher interface {
	PublishState(slug string, online bool, at time.Time) error
}

// Broadcaster fans events out to WebSocket subscribers. *api.Hub satisfies it.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// MetricsWriter records every probe. *influxdb.Client satisfies it.
type MetricsWriter interface {
	WriteReachability(device, ip string, online bool, took time.Duration, at time.Time)
}

// HistoryRecorder appends device events. device.HistoryRepository satisfies it.
type HistoryRecorder interface {
	Record(ctx context.Context, device, event, source, detail string) error
}

// Sinks receive monitor output. Leave a field nil to skip it; do not
// assign a typed nil pointer.
type Sinks struct {
	State   StatePublisher
	Events  Broadcaster
	Metrics MetricsWriter
	History HistoryRecorder
}

// Options configures a Monitor.
type Options struct {
	Interval    time.Duration
	Concurrency int

	// ConfirmAttempts and ConfirmInterval bound ConfirmWake.
	ConfirmAttempts int
	ConfirmInterval time.Duration
}

// Transition is a change in a device's reachability.
type Transition struct {
	Device   string    `json:"device"`
	Slug     string    `json:"slug"`
	IP       string    `json:"ip"`
	Online   bool      `json:"online"`
	Previous *bool     `json:"previous,omitempty"`
	At       time.Time `json:"ts"`
}

// Monitor tracks the last known reachability of each device.
type Monitor struct {
	devices Lister
	opts    Options
	sinks   Sinks
	logger  Logger

	mu    sync.Mutex
	state map[string]bool
}

// New creates a monitor over devices.
func New(devices Lister, opts Options, sinks Sinks) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.ConfirmAttempts <= 0 {
		opts.ConfirmAttempts = DefaultConfirmAttempts
	}
	if opts.ConfirmInterval <= 0 {
		opts.ConfirmInterval = DefaultConfirmInterval
	}
	return &Monitor{
		devices: devices,
		opts:    opts,
		sinks:   sinks,
		logger:  noopLogger{},
		state:   make(map[string]bool),
	}
}

// SetLogger sets the logger for the monitor.
func (m *Monitor) SetLogger(logger Logger) {
	m.logger = logger
}

// Run probes all devices immediately and then every interval until ctx is
// cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("reachability monitor started",
		"interval", m.opts.Interval,
		"concurrency", m.opts.Concurrency,
	)

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	m.Cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("reachability monitor stopped")
			return
		case <-ticker.C:
			m.Cycle(ctx)
		}
	}
}

// Cycle probes every registered device once and returns how many were
// probed.
func (m *Monitor) Cycle(ctx context.Context) int {
	recs := m.devices.List()

	sem := make(chan struct{}, m.opts.Concurrency)
	var wg sync.WaitGroup
	probed := 0

	for _, rec := range recs {
		select {
		case <-ctx.Done():
			wg.Wait()
			return probed
		case sem <- struct{}{}:
		}

		probed++
		wg.Add(1)
		go func(rec *device.Record) {
			defer wg.Done()
			defer func() { <-sem }()
			_, _ = m.ProbeDevice(ctx, rec, device.HistorySourceMonitor)
		}(rec)
	}

	wg.Wait()
	m.logger.Debug("probe cycle finished", "devices", probed)
	return probed
}

// ProbeDevice probes rec once and reports the result to the sinks. It
// returns device.ErrRemoved if rec is no longer registered, and ctx.Err()
// without reporting anything if ctx ended during the probe.
func (m *Monitor) ProbeDevice(ctx context.Context, rec *device.Record, source string) (bool, error) {
	sensor := rec.Probe()
	if sensor == nil {
		return false, device.ErrRemoved
	}

	online := sensor.Probe(ctx)
	if err := ctx.Err(); err != nil {
		return false, err
	}
	res, ok := sensor.LastResult()
	if !ok {
		res = device.ProbeResult{Online: online, At: time.Now()}
	}
	m.observe(ctx, rec, res, source)
	return online, nil
}

// ConfirmWake probes rec until it answers, up to the configured number of
// attempts spaced by the configured interval. It returns false if the device
// never came online, and ctx.Err() if ctx ends first.
func (m *Monitor) ConfirmWake(ctx context.Context, rec *device.Record) (bool, error) {
	for attempt := 1; attempt <= m.opts.ConfirmAttempts; attempt++ {
		online, err := m.ProbeDevice(ctx, rec, device.HistorySourceAPI)
		if err != nil {
			return false, err
		}
		if online {
			m.logger.Info("wake confirmed", "device", rec.Name, "attempt", attempt)
			return true, nil
		}
		if attempt == m.opts.ConfirmAttempts {
			break
		}

		timer := time.NewTimer(m.opts.ConfirmInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}
	m.logger.Warn("device did not come online after wake",
		"device", rec.Name,
		"attempts", m.opts.ConfirmAttempts,
	)
	return false, nil
}

// State returns the last observed reachability of the named device.
func (m *Monitor) State(name string) (online, known bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	online, known = m.state[name]
	return online, known
}

// Snapshot returns the last known state of every registered device that
// has been probed at least once, in registry order. Previous is always nil.
func (m *Monitor) Snapshot() []Transition {
	recs := m.devices.List()
	out := make([]Transition, 0, len(recs))
	for _, rec := range recs {
		online, known := m.State(rec.Name)
		if !known {
			continue
		}
		t := Transition{Device: rec.Name, Slug: rec.Slug(), IP: rec.IP.String(), Online: online}
		if p := rec.Probe(); p != nil {
			if res, ok := p.LastResult(); ok {
				t.At = res.At.UTC()
			}
		}
		out = append(out, t)
	}
	return out
}

// Forget drops the stored state of a removed device so a later
// registration under the same name starts fresh.
func (m *Monitor) Forget(name string) {
	m.mu.Lock()
	delete(m.state, name)
	m.mu.Unlock()
}

// observe records res and notifies the sinks. A result for a record removed
// while it was being probed is dropped; removal detaches the record before
// Forget runs, so checking under mu keeps Forget's delete final.
func (m *Monitor) observe(ctx context.Context, rec *device.Record, res device.ProbeResult, source string) {
	m.mu.Lock()
	if !rec.Registered() {
		m.mu.Unlock()
		return
	}
	prev, known := m.state[rec.Name]
	m.state[rec.Name] = res.Online
	m.mu.Unlock()

	ip := rec.IP.String()
	if m.sinks.Metrics != nil {
		m.sinks.Metrics.WriteReachability(rec.Name, ip, res.Online, res.Duration, res.At)
	}

	if known && prev == res.Online {
		return
	}

	t := Transition{
		Device: rec.Name,
		Slug:   rec.Slug(),
		IP:     ip,
		Online: res.Online,
		At:     res.At.UTC(),
	}
	if known {
		t.Previous = &prev
	}
	m.changed(ctx, t, source)
}

func (m *Monitor) changed(ctx context.Context, t Transition, source string) {
	switch {
	case t.Previous != nil && !t.Online:
		m.logger.Warn("device went offline", "device", t.Device, "ip", t.IP)
	case t.Previous != nil:
		m.logger.Info("device came online", "device", t.Device, "ip", t.IP)
	default:
		m.logger.Debug("device state observed", "device", t.Device, "online", t.Online)
	}

	if m.sinks.State != nil {
		if err := m.sinks.State.PublishState(t.Slug, t.Online, t.At); err != nil {
			m.logger.Debug("publishing device state", "device", t.Device, "error", err)
		}
	}
	if m.sinks.Events != nil {
		m.sinks.Events.Broadcast(ChannelStateChanged, t)
	}
	if m.sinks.History != nil {
		event := device.HistoryOffline
		if t.Online {
			event = device.HistoryOnline
		}
		if err := m.sinks.History.Record(ctx, t.Device, event, source, ""); err != nil {
			m.logger.Warn("recording device history", "device", t.Device, "error", err)
		}
	}
}
