package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	MeasurementReachability = "device_reachability"
	MeasurementAction       = "device_action"
)

// WriteReachability records one probe of device at ip.
func (c *Client) WriteReachability(device, ip string, online bool, took time.Duration, at time.Time) {
	c.write(write.NewPointWithMeasurement(MeasurementReachability).
		AddTag("device", device).
		AddTag("ip", ip).
		AddField("online", online).
		AddField("probe_ms", took.Milliseconds()).
		SetTime(at))
}

// WriteAction records a wake, restart or shutdown request and whether it
// was carried out.
func (c *Client) WriteAction(device, action string, ok bool, at time.Time) {
	c.write(write.NewPointWithMeasurement(MeasurementAction).
		AddTag("device", device).
		AddTag("action", action).
		AddField("ok", ok).
		SetTime(at))
}

func (c *Client) write(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(p)
}
