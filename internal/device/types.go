package device

import (
	"net/netip"
	"sync"
	"time"

	"github.com/nerrad567/womgr-core/internal/netaddr"
)

// OSType selects the restart/shutdown command templates for a device.
type OSType string

const (
	OSLinux   OSType = "linux"
	OSWindows OSType = "windows"
)

// AllOSTypes returns all supported os types.
func AllOSTypes() []OSType {
	return []OSType{OSLinux, OSWindows}
}

// Capability names used in entity identifiers.
const (
	CapabilityWake   = "wol"
	CapabilityProbe  = "ping"
	CapabilitySystem = "system"
)

// entityPrefix namespaces every entity identifier.
const entityPrefix = "womgr_"

// EntityID derives the identifier of one capability of a device.
func EntityID(name, capability string) string {
	return entityPrefix + netaddr.Slugify(name) + "_" + capability
}

// Params is the input to Register. It is also the export format, so field
// names follow the configuration keys.
type Params struct {
	Name          string `json:"device_name" yaml:"name"`
	MAC           string `json:"mac" yaml:"mac"`
	IP            string `json:"ip" yaml:"ip"`
	OS            string `json:"os_type" yaml:"os"`
	Location      string `json:"location,omitempty" yaml:"location"`
	Username      string `json:"username,omitempty" yaml:"username"`
	Password      string `json:"password,omitempty" yaml:"password"`
	Color         string `json:"color,omitempty" yaml:"color"`
	Icon          string `json:"icon,omitempty" yaml:"icon"`
	Area          string `json:"area,omitempty" yaml:"area"`
	DashboardPath string `json:"dashboard,omitempty" yaml:"dashboard"`
}

// Record is one registered device.
//
// Identity fields are immutable after registration. The capabilities are
// reachable through Wake, Probe and System until the record is removed,
// after which those accessors return nil.
type Record struct {
	ID            string
	Name          string
	MAC           netaddr.MAC
	IP            netip.Addr
	OS            OSType
	Location      string
	Username      string
	Password      string
	Color         string
	Icon          string
	Area          string
	DashboardPath string
	CreatedAt     time.Time

	mu      sync.RWMutex
	wake    *WakeSwitch
	probe   *PingSensor
	system  *SystemSwitch
	removed bool
}

// Wake returns the wake capability, or nil once removed.
func (r *Record) Wake() *WakeSwitch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.wake
}

// Probe returns the reachability capability, or nil once removed.
func (r *Record) Probe() *PingSensor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.probe
}

// System returns the restart/shutdown capability, or nil once removed.
func (r *Record) System() *SystemSwitch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.system
}

// Registered reports whether the record still holds its capabilities.
func (r *Record) Registered() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.removed
}

// Slug returns the normalised name used in identifiers.
func (r *Record) Slug() string {
	return netaddr.Slugify(r.Name)
}

// EntityIDs returns the identifiers of the three capabilities. They are
// derived from the name, so they stay valid after removal.
func (r *Record) EntityIDs() EntityIDs {
	return EntityIDs{
		Wake:   EntityID(r.Name, CapabilityWake),
		Probe:  EntityID(r.Name, CapabilityProbe),
		System: EntityID(r.Name, CapabilitySystem),
	}
}

// attach installs the capabilities. Called once by the registry.
func (r *Record) attach(w *WakeSwitch, p *PingSensor, s *SystemSwitch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wake, r.probe, r.system = w, p, s
}

// detach clears the capabilities and returns the system switch for cleanup.
// The second return is false if the record was already removed.
func (r *Record) detach() (*SystemSwitch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.removed {
		return nil, false
	}
	sys := r.system
	r.wake, r.probe, r.system = nil, nil, nil
	r.removed = true
	return sys, true
}

// Params returns the registration parameters, including credentials.
func (r *Record) Params() Params {
	return Params{
		Name:          r.Name,
		MAC:           r.MAC.String(),
		IP:            r.IP.String(),
		OS:            string(r.OS),
		Location:      r.Location,
		Username:      r.Username,
		Password:      r.Password,
		Color:         r.Color,
		Icon:          r.Icon,
		Area:          r.Area,
		DashboardPath: r.DashboardPath,
	}
}

// Info returns a JSON-friendly view of the record without credentials.
func (r *Record) Info() Info {
	info := Info{
		ID:            r.ID,
		Name:          r.Name,
		Slug:          r.Slug(),
		MAC:           r.MAC.String(),
		IP:            r.IP.String(),
		OS:            r.OS,
		Location:      r.Location,
		Username:      r.Username,
		Color:         r.Color,
		Icon:          r.Icon,
		Area:          r.Area,
		DashboardPath: r.DashboardPath,
		Entities:      r.EntityIDs(),
		CreatedAt:     r.CreatedAt,
		Registered:    r.Registered(),
	}
	if p := r.Probe(); p != nil {
		if res, ok := p.LastResult(); ok {
			info.Online = &res.Online
			info.LastProbe = &res.At
		}
	}
	if w := r.Wake(); w != nil {
		if at := w.LastSent(); !at.IsZero() {
			info.LastWake = &at
		}
	}
	return info
}

// EntityIDs holds the identifiers of a device's capabilities.
type EntityIDs struct {
	Wake   string `json:"wake"`
	Probe  string `json:"probe"`
	System string `json:"system"`
}

// Info is the public view of a record.
type Info struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Slug          string     `json:"slug"`
	MAC           string     `json:"mac"`
	IP            string     `json:"ip"`
	OS            OSType     `json:"os_type"`
	Location      string     `json:"location,omitempty"`
	Username      string     `json:"username,omitempty"`
	Color         string     `json:"color"`
	Icon          string     `json:"icon,omitempty"`
	Area          string     `json:"area,omitempty"`
	DashboardPath string     `json:"dashboard,omitempty"`
	Entities      EntityIDs  `json:"entities"`
	CreatedAt     time.Time  `json:"created_at"`
	Registered    bool       `json:"registered"`
	Online        *bool      `json:"online,omitempty"`
	LastProbe     *time.Time `json:"last_probe,omitempty"`
	LastWake      *time.Time `json:"last_wake,omitempty"`
}

// Commands reports which system commands resolve on this host.
type Commands struct {
	Restart  bool `json:"restart"`
	Shutdown bool `json:"shutdown"`
}
