// Package mqtt provides MQTT client connectivity for womgr.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Retained device state and device event publishing
//   - Device command subscriptions
//   - Last Will and Testament (LWT) for offline detection
//
// # Topics
//
//	womgr/system/status              online/offline (LWT, retained)
//	womgr/device/{slug}/state        {"online":true,"ts":...} (retained)
//	womgr/device/{slug}/event        {"event":"wake","device":...,"ok":true}
//	womgr/device/{slug}/command      {"action":"wake|probe|restart|shutdown"}
//
// # Security Considerations
//
//   - TLS should be enabled when the broker is not on localhost (cfg.Broker.TLS=true)
//   - Anyone who can publish to a command topic can wake or shut down a
//     device; restrict the topic with broker ACLs
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.SubscribeCommands(func(slug string, cmd mqtt.CommandPayload) error {
//	    return handle(slug, cmd.Action)
//	})
//
//	client.PublishState("media_server", true, time.Now())
package mqtt
