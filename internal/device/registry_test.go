package device

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T, exec *fakeExecutor) *Registry {
	t.Helper()
	if exec == nil {
		exec = newFakeExecutor("ping", "reboot", "shutdown", "sudo")
	}
	return NewRegistry(Options{
		Executor:     exec,
		ProbeTimeout: time.Second,
		RemovalGrace: 50 * time.Millisecond,
		UseSudo:      true,
		GOOS:         "linux",
	})
}

func serverParams() Params {
	return Params{
		Name: "server",
		MAC:  "AA:BB:CC:DD:EE:FF",
		IP:   "192.168.1.10",
		OS:   "linux",
	}
}

func TestRegister_Success(t *testing.T) {
	reg := newTestRegistry(t, nil)
	ctx := context.Background()

	p := serverParams()
	p.Location = "rack"
	p.DashboardPath = "servers"

	rec, err := reg.Register(ctx, p)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if rec.ID == "" {
		t.Error("ID is empty")
	}
	if rec.MAC.String() != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("MAC = %v", rec.MAC)
	}
	if rec.IP.String() != "192.168.1.10" {
		t.Errorf("IP = %v", rec.IP)
	}
	if rec.OS != OSLinux {
		t.Errorf("OS = %q, want linux", rec.OS)
	}
	if rec.Color == "" {
		t.Error("Color not derived")
	}
	if rec.DashboardPath != "servers" {
		t.Errorf("DashboardPath = %q, want servers", rec.DashboardPath)
	}
	if rec.Wake() == nil || rec.Probe() == nil || rec.System() == nil {
		t.Fatal("capabilities not attached")
	}
	if got := rec.Wake().EntityID(); got != "womgr_server_wol" {
		t.Errorf("wake entity = %q", got)
	}
	if got := rec.Probe().EntityID(); got != "womgr_server_ping" {
		t.Errorf("probe entity = %q", got)
	}
	if got := rec.System().EntityID(); got != "womgr_server_system" {
		t.Errorf("system entity = %q", got)
	}

	got, err := reg.Get("server")
	if err != nil || got != rec {
		t.Errorf("Get() = %v, %v; want registered record", got, err)
	}
}

func TestRegister_ColorPreservedWhenSet(t *testing.T) {
	reg := newTestRegistry(t, nil)
	p := serverParams()
	p.Color = "rgb(1,2,3)"

	rec, err := reg.Register(context.Background(), p)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if rec.Color != "rgb(1,2,3)" {
		t.Errorf("Color = %q, want rgb(1,2,3)", rec.Color)
	}
}

func TestRegister_Duplicates(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr error
	}{
		{
			name:    "same name",
			mutate:  func(p *Params) { p.MAC = "11:22:33:44:55:66"; p.IP = "192.168.1.11" },
			wantErr: ErrDuplicateName,
		},
		{
			name:    "same name with padding",
			mutate:  func(p *Params) { p.Name = "  server "; p.MAC = "11:22:33:44:55:66"; p.IP = "192.168.1.11" },
			wantErr: ErrDuplicateName,
		},
		{
			name:    "same MAC",
			mutate:  func(p *Params) { p.Name = "other"; p.IP = "192.168.1.11" },
			wantErr: ErrDuplicateMAC,
		},
		{
			name:    "same MAC different notation",
			mutate:  func(p *Params) { p.Name = "other"; p.MAC = "aa-bb-cc-dd-ee-ff"; p.IP = "192.168.1.11" },
			wantErr: ErrDuplicateMAC,
		},
		{
			name:    "same IP",
			mutate:  func(p *Params) { p.Name = "other"; p.MAC = "11:22:33:44:55:66" },
			wantErr: ErrDuplicateIP,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newTestRegistry(t, nil)
			ctx := context.Background()

			first, err := reg.Register(ctx, serverParams())
			if err != nil {
				t.Fatalf("first Register() error = %v", err)
			}

			p := serverParams()
			tt.mutate(&p)
			rec, err := reg.Register(ctx, p)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("second Register() error = %v, want %v", err, tt.wantErr)
			}
			if rec != nil {
				t.Error("second Register() returned a record on error")
			}

			if reg.Len() != 1 {
				t.Errorf("Len() = %d, want 1", reg.Len())
			}
			got, err := reg.Get("server")
			if err != nil || got != first {
				t.Errorf("first record no longer queryable: %v", err)
			}
			if !first.Registered() || first.Wake() == nil {
				t.Error("first record was disturbed by the failed registration")
			}
		})
	}
}

func TestRegister_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr error
	}{
		{"empty name", func(p *Params) { p.Name = "  " }, ErrInvalidName},
		{"bad IP", func(p *Params) { p.IP = "999.1.1.1" }, ErrInvalidAddress},
		{"hostname as IP", func(p *Params) { p.IP = "server.lan" }, ErrInvalidAddress},
		{"bad MAC", func(p *Params) { p.MAC = "AA:BB:CC" }, ErrInvalidAddress},
		{"unsupported os", func(p *Params) { p.OS = "plan9" }, ErrUnsupportedOS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newTestRegistry(t, nil)
			var events int
			reg.AddObserver(func(Event) { events++ })

			p := serverParams()
			tt.mutate(&p)
			_, err := reg.Register(context.Background(), p)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Register() error = %v, want %v", err, tt.wantErr)
			}
			if reg.Len() != 0 {
				t.Errorf("Len() = %d, want 0 (no partial state)", reg.Len())
			}
			if events != 0 {
				t.Errorf("observer called %d times on failed registration", events)
			}

			// Nothing was reserved: the valid form registers cleanly.
			if _, err := reg.Register(context.Background(), serverParams()); err != nil {
				t.Errorf("Register() after failure error = %v", err)
			}
		})
	}
}

func TestRegister_OSTypeCaseInsensitive(t *testing.T) {
	reg := newTestRegistry(t, nil)
	p := serverParams()
	p.OS = "Windows"

	rec, err := reg.Register(context.Background(), p)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if rec.OS != OSWindows {
		t.Errorf("OS = %q, want windows", rec.OS)
	}
}

func TestRegister_ConcurrentSameKey(t *testing.T) {
	reg := newTestRegistry(t, nil)
	ctx := context.Background()

	const workers = 32
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		dupes     atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := Params{
				Name: fmt.Sprintf("host-%d", i),
				MAC:  fmt.Sprintf("02:00:00:00:00:%02X", i),
				IP:   "10.0.0.1", // every worker fights for the same IP
				OS:   "linux",
			}
			_, err := reg.Register(ctx, p)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrDuplicateIP):
				dupes.Add(1)
			default:
				t.Errorf("Register() unexpected error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes.Load() != 1 {
		t.Errorf("successes = %d, want exactly 1", successes.Load())
	}
	if dupes.Load() != workers-1 {
		t.Errorf("duplicates = %d, want %d", dupes.Load(), workers-1)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}

func TestRemove_ReleasesKeys(t *testing.T) {
	reg := newTestRegistry(t, nil)
	ctx := context.Background()

	rec, err := reg.Register(ctx, serverParams())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := reg.Remove(ctx, rec); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if rec.Registered() {
		t.Error("Registered() = true after Remove()")
	}
	if rec.Wake() != nil || rec.Probe() != nil || rec.System() != nil {
		t.Error("capabilities not cleared on Remove()")
	}
	if _, err := reg.Get("server"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Remove() error = %v, want ErrNotFound", err)
	}

	// Removed is terminal but the name, MAC and IP can be reused.
	again, err := reg.Register(ctx, serverParams())
	if err != nil {
		t.Fatalf("re-Register() error = %v", err)
	}
	if again == rec {
		t.Error("re-Register() returned the removed record")
	}
}

func TestRemove_Idempotent(t *testing.T) {
	reg := newTestRegistry(t, nil)
	ctx := context.Background()

	var removed int
	reg.AddObserver(func(ev Event) {
		if ev.Type == EventRemoved {
			removed++
		}
	})

	rec, err := reg.Register(ctx, serverParams())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := reg.Remove(ctx, rec); err != nil {
			t.Fatalf("Remove() call %d error = %v", i+1, err)
		}
	}
	if removed != 1 {
		t.Errorf("removed events = %d, want 1", removed)
	}
	if err := reg.Remove(ctx, nil); err != nil {
		t.Errorf("Remove(nil) error = %v", err)
	}
}

func TestRemove_StaleRecordDoesNotEvictReplacement(t *testing.T) {
	reg := newTestRegistry(t, nil)
	ctx := context.Background()

	old, _ := reg.Register(ctx, serverParams())
	if err := reg.Remove(ctx, old); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	current, err := reg.Register(ctx, serverParams())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// Removing the old record again must not touch the new one.
	if err := reg.Remove(ctx, old); err != nil {
		t.Fatalf("Remove(old) error = %v", err)
	}
	got, err := reg.Get("server")
	if err != nil || got != current {
		t.Errorf("replacement evicted: got %v, err %v", got, err)
	}
}

func TestRemove_StopsRunningCommand(t *testing.T) {
	exec := newFakeExecutor("ping", "reboot", "shutdown", "sudo")
	reg := newTestRegistry(t, exec)
	ctx := context.Background()

	rec, err := reg.Register(ctx, serverParams())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := rec.System().Restart(ctx); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}
	proc := exec.lastProcess()

	if err := reg.Remove(ctx, rec); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if proc.Alive() {
		t.Error("process still alive after Remove()")
	}
	if proc.stopCount() != 1 {
		t.Errorf("Stop() called %d times, want 1", proc.stopCount())
	}
	if proc.lastGrace != 50*time.Millisecond {
		t.Errorf("grace = %v, want removal grace 50ms", proc.lastGrace)
	}

	// A second removal does not stop again.
	_ = reg.Remove(ctx, rec)
	if proc.stopCount() != 1 {
		t.Errorf("Stop() called %d times after second Remove(), want 1", proc.stopCount())
	}
}

func TestRemove_KeysReleasedBeforeCommandStops(t *testing.T) {
	exec := newFakeExecutor("ping", "reboot", "shutdown", "sudo")
	reg := newTestRegistry(t, exec)
	ctx := context.Background()

	rec, err := reg.Register(ctx, serverParams())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := rec.System().Restart(ctx); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}
	proc := exec.lastProcess()
	release := make(chan struct{})
	proc.mu.Lock()
	proc.release = release
	proc.mu.Unlock()

	removed := make(chan error, 1)
	go func() { removed <- reg.Remove(ctx, rec) }()

	deadline := time.Now().Add(2 * time.Second)
	for proc.stopCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if proc.stopCount() == 0 {
		close(release)
		t.Fatal("Remove() never stopped the running command")
	}

	// The old command is still stopping; its keys must already be free.
	again, err := reg.Register(ctx, serverParams())
	if err != nil {
		t.Errorf("Register() during stop error = %v, want nil", err)
	}
	close(release)
	if err := <-removed; err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if got, err := reg.Get("server"); err != nil || got != again {
		t.Errorf("Get() = %v, %v, want the new record", got, err)
	}
}

func TestRemove_StubbornProcessTreatedAsTerminated(t *testing.T) {
	exec := newFakeExecutor("ping", "reboot", "shutdown", "sudo")
	reg := newTestRegistry(t, exec)
	ctx := context.Background()

	rec, _ := reg.Register(ctx, serverParams())
	if err := rec.System().Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	exec.lastProcess().ignoreStop = true

	if err := reg.Remove(ctx, rec); err != nil {
		t.Fatalf("Remove() error = %v, want nil despite stubborn process", err)
	}
	if _, err := reg.Get("server"); !errors.Is(err, ErrNotFound) {
		t.Error("keys not released when process ignored stop")
	}
}

func TestRemoveByName(t *testing.T) {
	reg := newTestRegistry(t, nil)
	ctx := context.Background()

	if _, err := reg.RemoveByName(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RemoveByName(ghost) error = %v, want ErrNotFound", err)
	}

	rec, _ := reg.Register(ctx, serverParams())
	got, err := reg.RemoveByName(ctx, "server")
	if err != nil {
		t.Fatalf("RemoveByName() error = %v", err)
	}
	if got != rec || rec.Registered() {
		t.Error("RemoveByName() did not remove the registered record")
	}
}

func TestList_SortedByName(t *testing.T) {
	reg := newTestRegistry(t, nil)
	ctx := context.Background()

	for i, name := range []string{"zeta", "alpha", "mid"} {
		_, err := reg.Register(ctx, Params{
			Name: name,
			MAC:  fmt.Sprintf("02:00:00:00:00:%02X", i),
			IP:   fmt.Sprintf("10.0.0.%d", i+1),
			OS:   "linux",
		})
		if err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}

	list := reg.List()
	if len(list) != 3 {
		t.Fatalf("List() len = %d, want 3", len(list))
	}
	for i, want := range []string{"alpha", "mid", "zeta"} {
		if list[i].Name != want {
			t.Errorf("List()[%d] = %q, want %q", i, list[i].Name, want)
		}
	}
}

func TestObserver_ReceivesLifecycle(t *testing.T) {
	reg := newTestRegistry(t, nil)
	ctx := context.Background()

	var events []EventType
	reg.AddObserver(func(ev Event) {
		if ev.Record.Name != "server" {
			t.Errorf("event record = %q", ev.Record.Name)
		}
		events = append(events, ev.Type)
	})

	rec, _ := reg.Register(ctx, serverParams())
	_ = reg.Remove(ctx, rec)

	if len(events) != 2 || events[0] != EventRegistered || events[1] != EventRemoved {
		t.Errorf("events = %v, want [registered removed]", events)
	}
}

func TestClose_RemovesEverything(t *testing.T) {
	exec := newFakeExecutor("ping", "reboot", "shutdown", "sudo")
	reg := newTestRegistry(t, exec)
	ctx := context.Background()

	rec, _ := reg.Register(ctx, serverParams())
	_ = rec.System().Restart(ctx)

	if err := reg.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("Len() = %d after Close(), want 0", reg.Len())
	}
	if exec.lastProcess().Alive() {
		t.Error("process alive after Close()")
	}
}

func TestRecord_InfoOmitsPassword(t *testing.T) {
	reg := newTestRegistry(t, nil)
	p := serverParams()
	p.Username = "admin"
	p.Password = "hunter2"

	rec, _ := reg.Register(context.Background(), p)

	if rec.Params().Password != "hunter2" {
		t.Error("Params() should carry the password for export")
	}
	info := rec.Info()
	if info.Username != "admin" {
		t.Errorf("Info().Username = %q", info.Username)
	}
	if info.Online != nil {
		t.Error("Info().Online set before any probe")
	}
	if info.Entities.Wake != "womgr_server_wol" {
		t.Errorf("Info().Entities.Wake = %q", info.Entities.Wake)
	}
	if info.LastWake != nil {
		t.Error("Info().LastWake set before any wake")
	}
}

func TestRecord_InfoLastWake(t *testing.T) {
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen on loopback: %v", err)
	}
	defer conn.Close()

	reg := NewRegistry(Options{
		Executor:     newFakeExecutor("ping"),
		Wake:         WakeTarget{Broadcast: "127.0.0.1", Port: conn.LocalAddr().(*net.UDPAddr).Port},
		ProbeTimeout: time.Second,
		RemovalGrace: 50 * time.Millisecond,
		GOOS:         "linux",
	})
	rec, err := reg.Register(context.Background(), serverParams())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := rec.Wake().TurnOn(context.Background()); err != nil {
		t.Fatalf("TurnOn() error = %v", err)
	}

	if info := rec.Info(); info.LastWake == nil || info.LastWake.IsZero() {
		t.Errorf("Info().LastWake = %v, want time of the wake", info.LastWake)
	}
}

func TestEntityID(t *testing.T) {
	tests := []struct {
		name, capability, want string
	}{
		{"server", CapabilityWake, "womgr_server_wol"},
		{"Media Server", CapabilityProbe, "womgr_media_server_ping"},
		{"Game-PC", CapabilitySystem, "womgr_game_pc_system"},
	}
	for _, tt := range tests {
		if got := EntityID(tt.name, tt.capability); got != tt.want {
			t.Errorf("EntityID(%q, %q) = %q, want %q", tt.name, tt.capability, got, tt.want)
		}
	}
}

func TestParseOSType(t *testing.T) {
	for _, os := range AllOSTypes() {
		got, err := ParseOSType(" " + strings.ToUpper(string(os)) + " ")
		if err != nil || got != os {
			t.Errorf("ParseOSType(%q) = %q, %v, want %q", os, got, err, os)
		}
	}
	for _, raw := range []string{"", "plan9", "darwin"} {
		if _, err := ParseOSType(raw); !errors.Is(err, ErrUnsupportedOS) {
			t.Errorf("ParseOSType(%q) error = %v, want ErrUnsupportedOS", raw, err)
		}
	}
}
