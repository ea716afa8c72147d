package bridge

import (
	"github.com/nerrad567/gray-logic-knxip/internal/knxip"
)

// MetricsWriter is the time-series sink for bus and tunnel metrics.
// Satisfied by *influxdb.Client. Writes must be non-blocking.
type MetricsWriter interface {
	// WriteTelegram records a single bus telegram observation.
	WriteTelegram(groupAddress string, apci string, source string, payloadBytes int)

	// WriteTunnelStats records a snapshot of tunnel counters.
	WriteTunnelStats(gateway string, fields map[string]interface{})
}

// Telemetry feeds bus traffic and tunnel counters to a time-series
// store. A nil writer disables all recording, so callers never need
// to guard their calls.
type Telemetry struct {
	writer  MetricsWriter
	gateway string
}

// NewTelemetry creates a telemetry recorder.
//
// Parameters:
//   - writer: Metrics sink, may be nil to disable recording
//   - gateway: Gateway endpoint tag for tunnel stats (host:port)
func NewTelemetry(writer MetricsWriter, gateway string) *Telemetry {
	return &Telemetry{
		writer:  writer,
		gateway: gateway,
	}
}

// RecordTelegram records a received telegram.
func (t *Telemetry) RecordTelegram(msg knxip.Message) {
	if t == nil || t.writer == nil {
		return
	}
	t.writer.WriteTelegram(
		msg.Destination.String(),
		apciString(msg.APCI),
		msg.Source.String(),
		len(msg.Data),
	)
}

// RecordStats records a tunnel counter snapshot.
func (t *Telemetry) RecordStats(stats knxip.ClientStats) {
	if t == nil || t.writer == nil {
		return
	}
	t.writer.WriteTunnelStats(t.gateway, map[string]interface{}{
		"messages_tx":         stats.MessagesTx,
		"messages_rx":         stats.MessagesRx,
		"messages_dropped":    stats.MessagesDropped,
		"errors":              stats.ErrorsTotal,
		"sequence_mismatches": stats.SequenceMismatches,
		"heartbeats":          stats.Heartbeats,
	})
}
