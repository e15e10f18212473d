package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/womgr-core/internal/device"
)

type fakeExecutor struct {
	mu     sync.Mutex
	paths  map[string]bool
	online bool
	alive  bool
	starts [][]string
	stops  int
}

func (e *fakeExecutor) LookPath(file string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.paths[file] {
		return "/usr/sbin/" + file, nil
	}
	return "", &exec.Error{Name: file, Err: exec.ErrNotFound}
}

func (e *fakeExecutor) Run(context.Context, string, ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.online {
		return nil
	}
	return errors.New("exit status 1")
}

func (e *fakeExecutor) Start(name string, args ...string) (device.Process, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts = append(e.starts, append([]string{name}, args...))
	return &fakeProcess{exec: e}, nil
}

type fakeProcess struct {
	exec *fakeExecutor
}

func (p *fakeProcess) Alive() bool {
	p.exec.mu.Lock()
	defer p.exec.mu.Unlock()
	return p.exec.alive
}

func (p *fakeProcess) Stop(time.Duration) error {
	p.exec.mu.Lock()
	defer p.exec.mu.Unlock()
	p.exec.stops++
	p.exec.alive = false
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	addrs []string
}

func (d *fakeDialer) DialContext(_ context.Context, _, address string) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addrs = append(d.addrs, address)
	return &fakeConn{}, nil
}

type fakeConn struct {
	net.Conn
}

func (*fakeConn) Write(b []byte) (int, error)      { return len(b), nil }
func (*fakeConn) Close() error                     { return nil }
func (*fakeConn) SetWriteDeadline(time.Time) error { return nil }

func newTestEnv(binaries ...string) (*env, *fakeExecutor, *fakeDialer) {
	ex := &fakeExecutor{paths: make(map[string]bool)}
	for _, b := range binaries {
		ex.paths[b] = true
	}
	d := &fakeDialer{}
	return &env{executor: ex, dialer: d}, ex, d
}

func execute(t *testing.T, e *env, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	e.out = &out
	cmd := newRootCmd(e)
	cmd.SetArgs(args)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

var target = []string{"--mac", "aa-bb-cc-dd-ee-ff", "--ip", "192.168.1.50"}

func TestWake(t *testing.T) {
	e, _, d := newTestEnv()
	out, err := execute(t, e, append([]string{"wake", "--broadcast", "192.168.1.255", "--port", "7"}, target...)...)
	if err != nil {
		t.Fatalf("wake error = %v", err)
	}
	if !strings.Contains(out, "AA:BB:CC:DD:EE:FF") {
		t.Errorf("output = %q, want canonical MAC", out)
	}
	if len(d.addrs) != 1 || d.addrs[0] != "192.168.1.255:7" {
		t.Errorf("dialled %v, want [192.168.1.255:7]", d.addrs)
	}
}

func TestRequiresAddresses(t *testing.T) {
	e, _, _ := newTestEnv()
	if _, err := execute(t, e, "wake", "--ip", "192.168.1.50"); err == nil {
		t.Error("wake without --mac should fail")
	}
	_, err := execute(t, e, "wake", "--mac", "nope", "--ip", "192.168.1.50")
	if !errors.Is(err, device.ErrInvalidAddress) {
		t.Errorf("error = %v, want ErrInvalidAddress", err)
	}
}

func TestPing(t *testing.T) {
	tests := []struct {
		name    string
		online  bool
		want    string
		wantErr error
	}{
		{name: "online", online: true, want: "is online"},
		{name: "offline", online: false, want: "is offline", wantErr: errOffline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ex, _ := newTestEnv("ping")
			ex.online = tt.online
			out, err := execute(t, e, append([]string{"ping"}, target...)...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestSystemCommands(t *testing.T) {
	tests := []struct {
		args []string
		want []string
	}{
		{args: []string{"restart"}, want: []string{"/usr/sbin/reboot"}},
		{args: []string{"shutdown"}, want: []string{"/usr/sbin/shutdown", "-h", "now"}},
		{args: []string{"restart", "--sudo"}, want: []string{"sudo", "/usr/sbin/reboot"}},
		{args: []string{"shutdown", "--os", "windows"}, want: []string{"/usr/sbin/shutdown", "/s", "/t", "0"}},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			e, ex, _ := newTestEnv("reboot", "shutdown", "sudo")
			if _, err := execute(t, e, append(tt.args, target...)...); err != nil {
				t.Fatalf("error = %v", err)
			}
			if len(ex.starts) != 1 {
				t.Fatalf("starts = %d, want 1", len(ex.starts))
			}
			if got := strings.Join(ex.starts[0], " "); got != strings.Join(tt.want, " ") {
				t.Errorf("command = %q, want %q", got, strings.Join(tt.want, " "))
			}
		})
	}
}

func TestSystemCommand_NotFound(t *testing.T) {
	e, ex, _ := newTestEnv()
	_, err := execute(t, e, append([]string{"restart"}, target...)...)
	if !errors.Is(err, device.ErrCommandNotFound) {
		t.Fatalf("error = %v, want ErrCommandNotFound", err)
	}
	if guidance(err) == "" {
		t.Error("guidance() is empty for ErrCommandNotFound")
	}
	if len(ex.starts) != 0 {
		t.Errorf("starts = %d, want 0", len(ex.starts))
	}
}

func TestSystemCommand_StillRunning(t *testing.T) {
	e, ex, _ := newTestEnv("reboot")
	ex.alive = true
	_, err := execute(t, e, append([]string{"restart", "--wait", "50ms"}, target...)...)
	if err == nil || !strings.Contains(err.Error(), "still running") {
		t.Fatalf("error = %v, want still running", err)
	}
	if ex.stops != 1 {
		t.Errorf("stops = %d, want 1", ex.stops)
	}
}

func TestCommands(t *testing.T) {
	e, _, _ := newTestEnv("shutdown")
	out, err := execute(t, e, append([]string{"commands"}, target...)...)
	if !errors.Is(err, device.ErrCommandNotFound) {
		t.Errorf("error = %v, want ErrCommandNotFound", err)
	}
	if !strings.Contains(out, "restart:  missing") || !strings.Contains(out, "shutdown: available") {
		t.Errorf("output = %q", out)
	}

	e, _, _ = newTestEnv("shutdown")
	if _, err := execute(t, e, append([]string{"commands", "--os", "windows"}, target...)...); err != nil {
		t.Errorf("windows commands error = %v", err)
	}
}

// fakeLovelace keeps one document per url_path.
type fakeLovelace struct {
	mu    sync.Mutex
	docs  map[string][]byte
	auth  string
	saves int
}

func (f *fakeLovelace) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = r.Header.Get("Authorization")
	path := r.URL.Query().Get("url_path")
	switch r.Method {
	case http.MethodGet:
		doc, ok := f.docs[path]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Write(doc) //nolint:errcheck // test server
	case http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		f.docs[path] = body
		f.saves++
		w.WriteHeader(http.StatusOK)
	}
}

func (f *fakeLovelace) cards(t *testing.T, path string) []any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var doc struct {
		Views []struct {
			Path  string `json:"path"`
			Cards []any  `json:"cards"`
		} `json:"views"`
	}
	if err := json.Unmarshal(f.docs[path], &doc); err != nil {
		t.Fatalf("stored document: %v", err)
	}
	for _, v := range doc.Views {
		if v.Path == path {
			return v.Cards
		}
	}
	return nil
}

func TestDashboardCards(t *testing.T) {
	lv := &fakeLovelace{docs: make(map[string][]byte)}
	srv := httptest.NewServer(lv)
	defer srv.Close()

	e, _, _ := newTestEnv()

	out, err := execute(t, e, "dashboard", "cards", "--url", srv.URL)
	if err != nil {
		t.Fatalf("dashboard cards error = %v", err)
	}
	if !strings.Contains(out, "no dashboard at womgr") {
		t.Errorf("output = %q, want missing dashboard notice", out)
	}

	args := append([]string{"dashboard", "add", "--name", "Media Server", "--url", srv.URL}, target...)
	if _, err := execute(t, e, args...); err != nil {
		t.Fatalf("dashboard add error = %v", err)
	}

	out, err = execute(t, e, "dashboard", "cards", "--url", srv.URL)
	if err != nil {
		t.Fatalf("dashboard cards error = %v", err)
	}
	if strings.TrimSpace(out) != "Media Server" {
		t.Errorf("output = %q, want the one card title", out)
	}
}

func TestDashboardAddRemove(t *testing.T) {
	lv := &fakeLovelace{docs: make(map[string][]byte)}
	srv := httptest.NewServer(lv)
	defer srv.Close()

	e, _, _ := newTestEnv()
	args := append([]string{"--name", "Media Server", "--url", srv.URL, "--token", "secret"}, target...)

	out, err := execute(t, e, append([]string{"dashboard", "add"}, args...)...)
	if err != nil {
		t.Fatalf("dashboard add error = %v", err)
	}
	if !strings.Contains(out, "womgr") {
		t.Errorf("output = %q, want default path", out)
	}
	if lv.auth != "Bearer secret" {
		t.Errorf("Authorization = %q, want Bearer secret", lv.auth)
	}
	if got := len(lv.cards(t, "womgr")); got != 1 {
		t.Fatalf("cards = %d, want 1", got)
	}

	if _, err := execute(t, e, append([]string{"dashboard", "remove"}, args...)...); err != nil {
		t.Fatalf("dashboard remove error = %v", err)
	}
	if got := len(lv.cards(t, "womgr")); got != 0 {
		t.Errorf("cards after remove = %d, want 0", got)
	}
}

func TestDashboard_RequiresURL(t *testing.T) {
	e, _, _ := newTestEnv()
	if _, err := execute(t, e, append([]string{"dashboard", "add"}, target...)...); err == nil {
		t.Error("dashboard add without --url should fail")
	}
}

func TestGuidance(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{err: device.ErrCommandNotFound, want: true},
		{err: device.ErrLaunchFailed, want: true},
		{err: device.ErrInvalidAddress, want: true},
		{err: errOffline, want: false},
	}
	for _, tt := range tests {
		if got := guidance(tt.err) != ""; got != tt.want {
			t.Errorf("guidance(%v) present = %v, want %v", tt.err, got, tt.want)
		}
	}
}
