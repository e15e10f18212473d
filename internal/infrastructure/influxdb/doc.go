// Package influxdb provides InfluxDB connectivity for womgr.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, point writing, and health monitoring.
//
// # Measurements
//
//	device_reachability  tags: device, ip      fields: online, probe_ms
//	device_action        tags: device, action  fields: ok
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without history
//	}
//	defer client.Close()
//
//	client.WriteReachability("nas", "192.168.1.20", true, 9*time.Millisecond, time.Now())
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are reported via
// SetOnError. Connection and health check errors are returned directly.
package influxdb
