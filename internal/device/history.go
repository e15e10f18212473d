package device

import (
	"context"
	"time"
)

// History event values.
const (
	HistoryOnline     = "online"
	HistoryOffline    = "offline"
	HistoryWake       = "wake"
	HistoryRestart    = "restart"
	HistoryShutdown   = "shutdown"
	HistoryRegistered = "registered"
	HistoryRemoved    = "removed"
)

// History source values.
const (
	HistorySourceMonitor = "monitor"
	HistorySourceAPI     = "api"
	HistorySourceMQTT    = "mqtt"
)

// HistoryEntry is one recorded device event.
//
// The history is an audit trail of reachability transitions and actions. It
// is not used to restore the registry.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	Device    string    `json:"device"`
	Event     string    `json:"event"`
	Source    string    `json:"source"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryRepository stores and retrieves device events.
//
// Implementations must be thread-safe and use UTC timestamps.
type HistoryRepository interface {
	// Record appends an event for the device.
	Record(ctx context.Context, device, event, source, detail string) error

	// List returns recent events for the device, newest first. The
	// implementation may clamp limit.
	List(ctx context.Context, device string, limit int) ([]HistoryEntry, error)
}
