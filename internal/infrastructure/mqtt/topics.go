package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for womgr.
//
// Device topics use the scheme womgr/device/{slug}/{kind}, where slug is the
// normalised device name.
const (
	TopicPrefix       = "womgr"
	TopicPrefixDevice = TopicPrefix + "/device"
	TopicPrefixSystem = TopicPrefix + "/system"
)

// Per-device topic kinds.
const (
	kindState   = "state"
	kindEvent   = "event"
	kindCommand = "command"
)

// Topics provides builders for womgr MQTT topics.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("media_server")
//	// Returns: "womgr/device/media_server/state"
type Topics struct{}

// SystemStatus returns the service status topic. It carries the LWT.
//
// Example: womgr/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// DeviceState returns the retained reachability topic of a device.
//
// Example: womgr/device/media_server/state
func (Topics) DeviceState(slug string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevice, slug, kindState)
}

// DeviceEvent returns the lifecycle and action event topic of a device.
//
// Example: womgr/device/media_server/event
func (Topics) DeviceEvent(slug string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevice, slug, kindEvent)
}

// DeviceCommand returns the topic womgr listens on for device commands.
//
// Example: womgr/device/media_server/command
func (Topics) DeviceCommand(slug string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevice, slug, kindCommand)
}

// AllDeviceCommands returns a pattern matching every device command topic.
//
// Pattern: womgr/device/+/command
func (Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/+/%s", TopicPrefixDevice, kindCommand)
}

// DeviceSlug extracts the slug from a device topic such as
// womgr/device/media_server/command. ok is false for any other topic.
func DeviceSlug(topic string) (slug string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixDevice+"/")
	if !found {
		return "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		return "", false
	}
	switch parts[1] {
	case kindState, kindEvent, kindCommand:
		return parts[0], true
	}
	return "", false
}
