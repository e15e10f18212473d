package device

import (
	"context"
	"net/netip"
	"sync"
	"time"
)

// DefaultProbeTimeout is used when Options.ProbeTimeout is zero.
const DefaultProbeTimeout = 2 * time.Second

// pingBinary is resolved through the command search path.
const pingBinary = "ping"

// ProbeResult is the outcome of one probe.
type ProbeResult struct {
	Online   bool          `json:"online"`
	At       time.Time     `json:"at"`
	Duration time.Duration `json:"duration"`
}

// PingSensor reports whether a device answers an ICMP echo.
type PingSensor struct {
	entityID string
	ip       netip.Addr
	exec     Executor
	timeout  time.Duration
	goos     string
	logger   Logger

	mu     sync.RWMutex
	last   ProbeResult
	probed bool
}

// NewPingSensor creates a reachability capability. goos selects the ping
// flags and is normally runtime.GOOS.
func NewPingSensor(entityID string, ip netip.Addr, exec Executor, timeout time.Duration, goos string, logger Logger) *PingSensor {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &PingSensor{
		entityID: entityID,
		ip:       ip,
		exec:     exec,
		timeout:  timeout,
		goos:     goos,
		logger:   logger,
	}
}

// EntityID returns the capability identifier.
func (p *PingSensor) EntityID() string {
	return p.entityID
}

// pingArgs returns one-packet, one-second ping flags for the platform.
func pingArgs(goos string, ip netip.Addr) []string {
	if goos == "windows" {
		return []string{"-n", "1", "-w", "1000", ip.String()}
	}
	return []string{"-c", "1", "-W", "1", ip.String()}
}

// Probe sends a single echo request and reports whether it was answered.
// It never blocks longer than the configured timeout. A missing ping
// binary, a timeout and a non-zero exit all count as unreachable.
func (p *PingSensor) Probe(ctx context.Context) bool {
	start := time.Now()
	online := p.run(ctx)
	res := ProbeResult{Online: online, At: time.Now(), Duration: time.Since(start)}

	p.mu.Lock()
	p.last = res
	p.probed = true
	p.mu.Unlock()

	p.logger.Debug("probe finished",
		"entity", p.entityID,
		"ip", p.ip.String(),
		"online", online,
		"duration", res.Duration,
	)
	return online
}

func (p *PingSensor) run(ctx context.Context) bool {
	bin, err := p.exec.LookPath(pingBinary)
	if err != nil {
		p.logger.Warn("ping command not found, reporting unreachable", "entity", p.entityID, "error", err)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.exec.Run(ctx, bin, pingArgs(p.goos, p.ip)...); err != nil {
		if ctx.Err() != nil {
			p.logger.Debug("probe timed out", "entity", p.entityID, "timeout", p.timeout)
		}
		return false
	}
	return true
}

// LastResult returns the most recent probe outcome. ok is false until the
// first probe completes.
func (p *PingSensor) LastResult() (res ProbeResult, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, p.probed
}
