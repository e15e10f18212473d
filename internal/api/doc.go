// Package api implements the HTTP REST API and WebSocket server for womgr.
//
// This package provides:
//   - REST endpoints for device registration, wake, probe and system commands
//   - Export and import of the device list
//   - Dashboard reconciliation on demand and after registry changes
//   - WebSocket hub for real-time reachability broadcasts
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Architecture
//
// The server sits between clients (dashboards, scripts, womgrctl) and the
// device registry. Device actions run directly against the registry's
// capabilities. Results fan out to the device history, the MQTT event topic
// and InfluxDB when those are configured.
//
// The same actions are reachable over MQTT through HandleCommand, which is
// subscribed to womgr/device/+/command by the service entry point.
//
// # Graceful Degradation
//
// MQTT, InfluxDB and the history repository are optional. Without them the
// REST API and WebSocket hub still work; only the corresponding side effects
// are skipped.
package api
