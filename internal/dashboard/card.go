package dashboard

import (
	"fmt"

	"github.com/nerrad567/womgr-core/internal/device"
)

const (
	// managedKey marks cards written by the reconciler. Reconcile only
	// deletes cards that carry it.
	managedKey = "womgr"

	// DefaultIcon is used when a device has no icon.
	DefaultIcon = "mdi:server-network"
)

// CardSpec is everything needed to render one device card.
type CardSpec struct {
	Name  string
	Slug  string
	Path  string
	Icon  string
	Color string

	ProbeEntity    string
	WakeEntity     string
	RestartEntity  string
	ShutdownEntity string
}

// SpecFor derives the card of a registered device. Path is the device's own
// dashboard path and may be empty.
func SpecFor(rec *device.Record) CardSpec {
	ids := rec.EntityIDs()
	return CardSpec{
		Name:           rec.Name,
		Slug:           rec.Slug(),
		Path:           rec.DashboardPath,
		Icon:           rec.Icon,
		Color:          rec.Color,
		ProbeEntity:    "binary_sensor." + ids.Probe,
		WakeEntity:     "switch." + ids.Wake,
		RestartEntity:  "button." + ids.System + "_restart",
		ShutdownEntity: "button." + ids.System + "_shutdown",
	}
}

// hash is the pop-up anchor for the card within the view at path.
func (s CardSpec) hash(path string) string {
	return "#" + path + "-" + s.Slug
}

// BuildCard renders the card for a device in the view at path. The
// top-level title is the match key used by the reconciler.
func BuildCard(spec CardSpec, path string) map[string]any {
	icon := spec.Icon
	if icon == "" {
		icon = DefaultIcon
	}
	hash := spec.hash(path)

	popup := map[string]any{
		"type":      "custom:bubble-card",
		"card_type": "pop-up",
		"hash":      hash,
		"cards": []any{
			map[string]any{"type": "entity", "entity": spec.ProbeEntity},
			map[string]any{"type": "entity", "entity": spec.WakeEntity},
			map[string]any{"type": "button", "entity": spec.RestartEntity},
			map[string]any{"type": "button", "entity": spec.ShutdownEntity},
		},
	}

	button := map[string]any{
		"type":      "custom:bubble-card",
		"card_type": "button",
		"name":      spec.Name,
		"icon":      icon,
		"button_action": map[string]any{
			"tap_action": map[string]any{
				"action":          "navigate",
				"navigation_path": hash,
			},
		},
		"show_state": false,
	}
	if spec.Color != "" {
		button["styles"] = fmt.Sprintf(".bubble-button-card-container { background: %s !important; }", spec.Color)
	}

	return map[string]any{
		"type":     "vertical-stack",
		"title":    spec.Name,
		managedKey: true,
		"cards":    []any{popup, button},
	}
}
