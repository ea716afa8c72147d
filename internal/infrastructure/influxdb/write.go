package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteTelegram records a single bus telegram observation.
//
// This is the primary method for recording bus traffic. The write is
// non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - groupAddress: Destination group address (e.g., "1/2/3")
//   - apci: Telegram type ("write", "read", "response")
//   - source: Individual address of the sending device (e.g., "1.1.5")
//   - payloadBytes: Length of the telegram value in bytes
//
// Example:
//
//	client.WriteTelegram("1/2/3", "write", "1.1.5", 1)
func (c *Client) WriteTelegram(groupAddress string, apci string, source string, payloadBytes int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"knx_telegrams",
		map[string]string{
			"group_address": groupAddress,
			"apci":          apci,
			"source":        source,
		},
		map[string]interface{}{
			"payload_bytes": payloadBytes,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteTunnelStats records a snapshot of tunnel connection counters.
//
// Used for tracking gateway link health over time: throughput, drops,
// sequence mismatches and heartbeat activity.
//
// Parameters:
//   - gateway: Gateway endpoint the tunnel is connected to (e.g., "192.168.1.10:3671")
//   - fields: Counter values keyed by name (e.g., "messages_tx", "sequence_mismatches")
func (c *Client) WriteTunnelStats(gateway string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"tunnel_stats",
		map[string]string{
			"gateway": gateway,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "knxipd-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
