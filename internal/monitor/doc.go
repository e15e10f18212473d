// Package monitor probes registered devices on an interval and reports
// reachability changes.
//
// Each cycle probes every registered device concurrently, bounded by a
// semaphore. Every probe result is written to the metrics sink. When a
// device changes between online and offline (or is observed for the first
// time) the monitor publishes the retained MQTT state, broadcasts a
// "device.state_changed" WebSocket event and appends to the device history.
//
// Sinks are optional; a nil sink is skipped.
package monitor
