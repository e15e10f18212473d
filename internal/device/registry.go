package device

import (
	"context"
	"fmt"
	"net/netip"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/womgr-core/internal/netaddr"
)

// Logger defines the logging interface used by the Registry and the
// capabilities. This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// EventType identifies a registry lifecycle event.
type EventType string

const (
	EventRegistered EventType = "registered"
	EventRemoved    EventType = "removed"
)

// Event is delivered to observers after a registration or removal has
// completed.
type Event struct {
	Type   EventType
	Record *Record
}

// Observer receives registry events. Observers run synchronously on the
// caller's goroutine and must not block.
type Observer func(Event)

// Options configures the capabilities created for each device.
type Options struct {
	// Executor runs ping and system commands. Defaults to OSExecutor.
	Executor Executor

	// Dialer opens wake sockets. Defaults to net.Dialer.
	Dialer Dialer

	Wake         WakeTarget
	ProbeTimeout time.Duration
	RemovalGrace time.Duration
	UseSudo      bool

	// GOOS selects ping flags. Defaults to runtime.GOOS.
	GOOS string
}

// Registry owns the set of registered devices and their uniqueness index.
//
// All public methods are thread-safe.
type Registry struct {
	opts   Options
	logger Logger

	mu        sync.RWMutex
	byName    map[string]*Record
	macs      map[netaddr.MAC]string
	ips       map[netip.Addr]string
	observers []Observer
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.RemovalGrace <= 0 {
		opts.RemovalGrace = DefaultRemovalGrace
	}
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	r := &Registry{
		opts:   opts,
		logger: noopLogger{},
		byName: make(map[string]*Record),
		macs:   make(map[netaddr.MAC]string),
		ips:    make(map[netip.Addr]string),
	}
	if r.opts.Executor == nil {
		r.opts.Executor = NewOSExecutor(r.logger)
	}
	return r
}

// SetLogger sets the logger for the registry and the capabilities it
// creates afterwards. Call it before the first Register.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
	if e, ok := r.opts.Executor.(*OSExecutor); ok {
		e.logger = logger
	}
}

// AddObserver registers fn to receive lifecycle events.
func (r *Registry) AddObserver(fn Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Executor returns the executor shared by all capabilities.
func (r *Registry) Executor() Executor {
	return r.opts.Executor
}

// Register validates p, reserves its name, MAC and IP, and creates the
// device's capabilities.
//
// Address and os validation happen before the registry is touched. The
// duplicate checks and the reservation happen under one lock. On any error
// nothing is reserved and no capability is created.
func (r *Registry) Register(ctx context.Context, p Params) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(p.Name)
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	ip, err := netaddr.ParseIP(p.IP)
	if err != nil {
		return nil, err
	}
	mac, err := netaddr.ParseMAC(p.MAC)
	if err != nil {
		return nil, err
	}
	osType, err := ParseOSType(p.OS)
	if err != nil {
		return nil, err
	}

	color := strings.TrimSpace(p.Color)
	if color == "" {
		color = netaddr.DeriveColor(name).String()
	}

	rec := &Record{
		ID:            GenerateID(),
		Name:          name,
		MAC:           mac,
		IP:            ip,
		OS:            osType,
		Location:      p.Location,
		Username:      p.Username,
		Password:      p.Password,
		Color:         color,
		Icon:          p.Icon,
		Area:          p.Area,
		DashboardPath: strings.TrimSpace(p.DashboardPath),
		CreatedAt:     time.Now().UTC(),
	}

	r.mu.Lock()
	if _, ok := r.byName[name]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	if owner, ok := r.macs[mac]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is used by %q", ErrDuplicateMAC, mac, owner)
	}
	if owner, ok := r.ips[ip]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is used by %q", ErrDuplicateIP, ip, owner)
	}

	logger := r.logger
	ids := rec.EntityIDs()
	rec.attach(
		NewWakeSwitch(ids.Wake, mac, r.opts.Wake, r.opts.Dialer, logger),
		NewPingSensor(ids.Probe, ip, r.opts.Executor, r.opts.ProbeTimeout, r.opts.GOOS, logger),
		NewSystemSwitch(ids.System, osType, r.opts.Executor, r.opts.UseSudo, r.opts.RemovalGrace, logger),
	)
	r.byName[name] = rec
	r.macs[mac] = name
	r.ips[ip] = name
	observers := r.observers
	r.mu.Unlock()

	logger.Info("device registered",
		"device", name,
		"mac", mac.String(),
		"ip", ip.String(),
		"os", osType,
	)
	notify(observers, Event{Type: EventRegistered, Record: rec})
	return rec, nil
}

// Remove tears down rec: the uniqueness keys are released, the capabilities
// are cleared and any running system command is stopped (grace period, then
// killed) outside the registry lock. Removing an already removed record is a
// no-op.
//
// The name, MAC and IP can be registered again as soon as the keys are
// released, while the old command is still being stopped. The wait for it
// is bounded by the removal grace period rather than ctx.
func (r *Registry) Remove(_ context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}
	sys, ok := rec.detach()
	if !ok {
		return nil
	}

	r.mu.Lock()
	if r.byName[rec.Name] == rec {
		delete(r.byName, rec.Name)
		delete(r.macs, rec.MAC)
		delete(r.ips, rec.IP)
	}
	logger := r.logger
	observers := r.observers
	r.mu.Unlock()

	var stopErr error
	if sys != nil {
		stopErr = sys.Close()
	}
	if stopErr != nil {
		logger.Warn("system command cleanup failed", "device", rec.Name, "error", stopErr)
	}
	logger.Info("device removed", "device", rec.Name)
	notify(observers, Event{Type: EventRemoved, Record: rec})
	return nil
}

// RemoveByName looks up and removes a device.
func (r *Registry) RemoveByName(ctx context.Context, name string) (*Record, error) {
	rec, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return rec, r.Remove(ctx, rec)
}

// Get returns the registered record with the given name.
func (r *Registry) Get(name string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byName[strings.TrimSpace(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return rec, nil
}

// List returns all registered records sorted by name.
func (r *Registry) List() []*Record {
	r.mu.RLock()
	records := make([]*Record, 0, len(r.byName))
	for _, rec := range r.byName {
		records = append(records, rec)
	}
	r.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].Name < records[j].Name
	})
	return records
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Close removes every device. Used on shutdown so launched commands are
// cleaned up.
func (r *Registry) Close(ctx context.Context) error {
	for _, rec := range r.List() {
		if err := r.Remove(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func notify(observers []Observer, ev Event) {
	for _, fn := range observers {
		fn(ev)
	}
}
