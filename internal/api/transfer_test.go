package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/nerrad567/womgr-core/internal/dashboard"
	"github.com/nerrad567/womgr-core/internal/device"
	"github.com/nerrad567/womgr-core/internal/infrastructure/mqtt"
)

func TestExportImport_RoundTrip(t *testing.T) {
	src, _ := testServer(t)
	registerDevice(t, src, "beta", "AA:BB:CC:DD:EE:02", "10.0.0.2", "windows")
	registerDevice(t, src, "alpha", "AA:BB:CC:DD:EE:01", "10.0.0.1", "linux")

	w := do(t, src, http.MethodGet, "/api/v1/export", "")
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d", w.Code)
	}
	var file ExportFile
	decode(t, w, &file)
	if file.Version != ExportVersion {
		t.Errorf("version = %d, want %d", file.Version, ExportVersion)
	}
	if len(file.Devices) != 2 || file.Devices[0].Name != "alpha" {
		t.Fatalf("devices = %+v, want alpha then beta", file.Devices)
	}
	if file.Devices[1].OS != "windows" || file.Devices[1].MAC != "AA:BB:CC:DD:EE:02" {
		t.Errorf("beta = %+v", file.Devices[1])
	}

	dst, _ := testServer(t)
	w = do(t, dst, http.MethodPost, "/api/v1/import", w.Body.String())
	if w.Code != http.StatusOK {
		t.Fatalf("import status = %d, body %s", w.Code, w.Body.String())
	}
	var res ImportResult
	decode(t, w, &res)
	if res.Imported != 2 || res.Skipped != 0 || len(res.Failed) != 0 {
		t.Errorf("result = %+v, want 2 imported", res)
	}
	if dst.registry.Len() != 2 {
		t.Errorf("registry holds %d devices, want 2", dst.registry.Len())
	}
}

func TestImport_SkipsDuplicatesAndReportsFailures(t *testing.T) {
	srv, _ := testServer(t)
	registerDevice(t, srv, "server", "AA:BB:CC:DD:EE:FF", "192.168.1.10", "linux")

	body := `{"version":1,"devices":[
		{"device_name":"server","mac":"AA:BB:CC:DD:EE:01","ip":"10.0.0.1","os_type":"linux"},
		{"device_name":"new","mac":"AA:BB:CC:DD:EE:02","ip":"10.0.0.2","os_type":"linux"},
		{"device_name":"broken","mac":"nope","ip":"10.0.0.3","os_type":"linux"}
	]}`
	w := do(t, srv, http.MethodPost, "/api/v1/import", body)
	var res ImportResult
	decode(t, w, &res)

	if res.Imported != 1 || res.Skipped != 1 {
		t.Errorf("imported = %d, skipped = %d, want 1 and 1", res.Imported, res.Skipped)
	}
	if len(res.Failed) != 1 || res.Failed[0].Device != "broken" {
		t.Errorf("failed = %+v, want broken", res.Failed)
	}
}

func TestImport_BareArray(t *testing.T) {
	srv, _ := testServer(t)
	body := `[{"device_name":"nas","mac":"AA:BB:CC:DD:EE:05","ip":"10.0.0.5","os_type":"linux"}]`

	w := do(t, srv, http.MethodPost, "/api/v1/import", body)
	var res ImportResult
	decode(t, w, &res)
	if res.Imported != 1 {
		t.Errorf("imported = %d, want 1", res.Imported)
	}
}

func TestDecodeExportFile_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `devices`},
		{"wrong version", `{"version":2,"devices":[]}`},
		{"missing version", `{"devices":[]}`},
		{"broken array", `[{"device_name":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeExportFile([]byte(tt.body)); err == nil {
				t.Error("decodeExportFile() error = nil, want error")
			}
		})
	}
}

func TestReconcileDashboard(t *testing.T) {
	srv, env := testServer(t)
	ctx := context.Background()
	registerDevice(t, srv, "server", "AA:BB:CC:DD:EE:FF", "192.168.1.10", "linux")
	srv.waitBackground()

	// A stale managed card and a user card in the default view.
	doc, err := env.store.Load(ctx, dashboard.DefaultPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	views := doc["views"].([]any)
	view := views[0].(map[string]any)
	view["cards"] = append(view["cards"].([]any),
		map[string]any{"type": "vertical-stack", "title": "gone", "womgr": true},
		map[string]any{"type": "markdown", "title": "notes"},
	)
	if err := env.store.Save(ctx, dashboard.DefaultPath, doc); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	w := do(t, srv, http.MethodPost, "/api/v1/dashboard/reconcile", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Results []dashboard.Result `json:"results"`
	}
	decode(t, w, &resp)
	if len(resp.Results) != 1 || resp.Results[0].Removed != 1 || !resp.Results[0].Saved {
		t.Errorf("results = %+v, want one saved result removing one card", resp.Results)
	}

	doc, _ = env.store.Load(ctx, dashboard.DefaultPath)
	titles := doc.Titles(dashboard.DefaultPath)
	if len(titles) != 2 || titles[0] != "server" || titles[1] != "notes" {
		t.Errorf("titles = %v, want [server notes]", titles)
	}

	// Reconciling again changes nothing.
	w = do(t, srv, http.MethodPost, "/api/v1/dashboard/reconcile?path="+dashboard.DefaultPath, "")
	decode(t, w, &resp)
	if len(resp.Results) != 1 || resp.Results[0].Saved {
		t.Errorf("second reconcile = %+v, want unsaved", resp.Results)
	}
}

func TestHandleCommand(t *testing.T) {
	srv, env := testServer(t)
	registerDevice(t, srv, "Media Server", "AA:BB:CC:DD:EE:FF", "192.168.1.10", "linux")

	if err := srv.HandleCommand("media_server", mqtt.CommandPayload{Action: mqtt.ActionRestart}); err != nil {
		t.Fatalf("HandleCommand() error = %v", err)
	}
	if err := srv.HandleCommand("media_server", mqtt.CommandPayload{Action: mqtt.ActionWake}); err != nil {
		t.Fatalf("HandleCommand() error = %v", err)
	}
	srv.waitBackground()

	if n := len(env.exec.startCalls()); n != 1 {
		t.Errorf("launches = %d, want 1", n)
	}
	if n := env.dialer.count(); n != 2 {
		t.Errorf("wake dials = %d, want 2", n)
	}

	events := env.history.events("Media Server")
	var fromMQTT int
	for _, e := range events {
		if e == "restart/mqtt" || e == "wake/mqtt" {
			fromMQTT++
		}
	}
	if fromMQTT != 2 {
		t.Errorf("history = %v, want restart and wake from mqtt", events)
	}
}

func TestHandleCommand_Errors(t *testing.T) {
	srv, _ := testServer(t)
	registerDevice(t, srv, "server", "AA:BB:CC:DD:EE:FF", "192.168.1.10", "linux")

	err := srv.HandleCommand("ghost", mqtt.CommandPayload{Action: mqtt.ActionWake})
	if !errors.Is(err, device.ErrNotFound) {
		t.Errorf("unknown slug error = %v, want ErrNotFound", err)
	}

	err = srv.HandleCommand("server", mqtt.CommandPayload{Action: "dance"})
	if !errors.Is(err, mqtt.ErrInvalidCommand) {
		t.Errorf("unknown action error = %v, want ErrInvalidCommand", err)
	}
}
