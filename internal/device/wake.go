package device

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/womgr-core/internal/netaddr"
)

// Magic packet layout.
const (
	magicHeaderLen   = 6
	magicRepetitions = 16

	// MagicPacketLen is the size of a Wake-on-LAN payload.
	MagicPacketLen = magicHeaderLen + magicRepetitions*len(netaddr.MAC{})
)

// Wake target defaults.
const (
	DefaultBroadcast = "255.255.255.255"
	DefaultWakePort  = 9

	// broadcastAlias is accepted in place of the limited broadcast address.
	broadcastAlias = "<broadcast>"
)

// BuildMagicPacket returns six 0xFF bytes followed by mac repeated sixteen
// times.
func BuildMagicPacket(mac netaddr.MAC) []byte {
	pkt := make([]byte, 0, MagicPacketLen)
	for i := 0; i < magicHeaderLen; i++ {
		pkt = append(pkt, 0xFF)
	}
	for i := 0; i < magicRepetitions; i++ {
		pkt = append(pkt, mac[:]...)
	}
	return pkt
}

// WakeTarget is where magic packets are sent.
type WakeTarget struct {
	Broadcast string
	Port      int
}

// Addr returns the host:port destination with defaults applied.
func (t WakeTarget) Addr() string {
	host := t.Broadcast
	if host == "" || host == broadcastAlias {
		host = DefaultBroadcast
	}
	port := t.Port
	if port == 0 {
		port = DefaultWakePort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Dialer opens the UDP socket used for wake packets. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// WakeSwitch sends Wake-on-LAN packets for one device.
type WakeSwitch struct {
	entityID string
	mac      netaddr.MAC
	target   WakeTarget
	dialer   Dialer
	logger   Logger

	mu       sync.Mutex
	lastSent time.Time
}

// NewWakeSwitch creates a wake capability. A nil dialer uses net.Dialer.
func NewWakeSwitch(entityID string, mac netaddr.MAC, target WakeTarget, dialer Dialer, logger Logger) *WakeSwitch {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &WakeSwitch{
		entityID: entityID,
		mac:      mac,
		target:   target,
		dialer:   dialer,
		logger:   logger,
	}
}

// EntityID returns the capability identifier.
func (w *WakeSwitch) EntityID() string {
	return w.entityID
}

// TurnOn sends one magic packet as a single UDP datagram. There is no retry
// and no confirmation that the device woke. A send failure is logged and
// returned wrapped in ErrWakeFailed so the caller may decide to try again.
func (w *WakeSwitch) TurnOn(ctx context.Context) error {
	addr := w.target.Addr()
	if err := w.send(ctx, addr); err != nil {
		w.logger.Warn("wake packet not sent",
			"entity", w.entityID,
			"mac", w.mac.String(),
			"target", addr,
			"error", err,
		)
		return fmt.Errorf("%w: %w", ErrWakeFailed, err)
	}

	w.mu.Lock()
	w.lastSent = time.Now()
	w.mu.Unlock()

	w.logger.Info("wake packet sent", "entity", w.entityID, "mac", w.mac.String(), "target", addr)
	return nil
}

func (w *WakeSwitch) send(ctx context.Context, addr string) error {
	conn, err := w.dialer.DialContext(ctx, "udp", addr)
	if err != nil {
		return fmt.Errorf("opening socket: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}

	pkt := BuildMagicPacket(w.mac)
	n, err := conn.Write(pkt)
	if err != nil {
		return fmt.Errorf("writing packet: %w", err)
	}
	if n != len(pkt) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(pkt))
	}
	return nil
}

// LastSent returns when a packet was last sent successfully.
func (w *WakeSwitch) LastSent() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSent
}
