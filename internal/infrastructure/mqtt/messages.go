package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Command actions accepted on device command topics.
const (
	ActionWake     = "wake"
	ActionProbe    = "probe"
	ActionRestart  = "restart"
	ActionShutdown = "shutdown"
)

// StatusPayload is published retained on womgr/system/status. The broker
// sends the offline variant as the will when the service disappears.
type StatusPayload struct {
	Status    string    `json:"status"`
	ClientID  string    `json:"client_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StatePayload is published retained on womgr/device/{slug}/state.
type StatePayload struct {
	Online    bool      `json:"online"`
	Timestamp time.Time `json:"ts"`
}

// EventPayload is published on womgr/device/{slug}/event.
type EventPayload struct {
	Event     string    `json:"event"`
	Device    string    `json:"device"`
	OK        bool      `json:"ok"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// CommandPayload is received on womgr/device/{slug}/command.
//
//	{"action": "wake"}
type CommandPayload struct {
	Action string `json:"action"`
}

// ParseCommand decodes and validates a command payload. The action is
// matched case-insensitively and returned lower-cased.
func ParseCommand(payload []byte) (CommandPayload, error) {
	var cmd CommandPayload
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return CommandPayload{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	cmd.Action = strings.ToLower(strings.TrimSpace(cmd.Action))
	switch cmd.Action {
	case ActionWake, ActionProbe, ActionRestart, ActionShutdown:
		return cmd, nil
	case "":
		return CommandPayload{}, fmt.Errorf("%w: action is required", ErrInvalidCommand)
	}
	return CommandPayload{}, fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, cmd.Action)
}
