package dashboard

import (
	"context"
	"strings"
	"testing"

	"github.com/nerrad567/womgr-core/internal/device"
)

func TestSpecFor(t *testing.T) {
	reg := device.NewRegistry(device.Options{})
	rec, err := reg.Register(context.Background(), device.Params{
		Name: "Media Server",
		MAC:  "AA:BB:CC:DD:EE:FF",
		IP:   "192.168.1.20",
		OS:   "linux",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	defer func() { _ = reg.Remove(context.Background(), rec) }()

	s := SpecFor(rec)
	if s.Name != "Media Server" || s.Slug != "media_server" {
		t.Errorf("Name/Slug = %q/%q", s.Name, s.Slug)
	}
	if s.ProbeEntity != "binary_sensor.womgr_media_server_ping" {
		t.Errorf("ProbeEntity = %q", s.ProbeEntity)
	}
	if s.WakeEntity != "switch.womgr_media_server_wol" {
		t.Errorf("WakeEntity = %q", s.WakeEntity)
	}
	if s.RestartEntity != "button.womgr_media_server_system_restart" {
		t.Errorf("RestartEntity = %q", s.RestartEntity)
	}
	if s.ShutdownEntity != "button.womgr_media_server_system_shutdown" {
		t.Errorf("ShutdownEntity = %q", s.ShutdownEntity)
	}
	if !strings.HasPrefix(s.Color, "rgb(") {
		t.Errorf("Color = %q, want derived rgb()", s.Color)
	}
}

func TestBuildCard(t *testing.T) {
	card := BuildCard(spec("server"), "womgr")

	if card["type"] != "vertical-stack" || card["title"] != "server" {
		t.Errorf("card header = %v/%v", card["type"], card["title"])
	}
	if card[managedKey] != true {
		t.Error("card not marked as managed")
	}

	children := card["cards"].([]any)
	if len(children) != 2 {
		t.Fatalf("children = %d, want 2", len(children))
	}

	popup := children[0].(map[string]any)
	if popup["card_type"] != "pop-up" || popup["hash"] != "#womgr-server" {
		t.Errorf("popup = %v", popup)
	}
	elems := popup["cards"].([]any)
	wantEntities := []string{
		"binary_sensor.womgr_server_ping",
		"switch.womgr_server_wol",
		"button.womgr_server_system_restart",
		"button.womgr_server_system_shutdown",
	}
	if len(elems) != len(wantEntities) {
		t.Fatalf("popup elements = %d, want %d", len(elems), len(wantEntities))
	}
	for i, want := range wantEntities {
		if got := elems[i].(map[string]any)["entity"]; got != want {
			t.Errorf("element %d entity = %v, want %s", i, got, want)
		}
	}

	button := children[1].(map[string]any)
	if button["icon"] != DefaultIcon {
		t.Errorf("icon = %v, want %s", button["icon"], DefaultIcon)
	}
	styles, _ := button["styles"].(string)
	if !strings.Contains(styles, "rgb(200,150,180)") {
		t.Errorf("styles = %q, want device color", styles)
	}
	tap := button["button_action"].(map[string]any)["tap_action"].(map[string]any)
	if tap["navigation_path"] != "#womgr-server" {
		t.Errorf("navigation_path = %v", tap["navigation_path"])
	}
}
