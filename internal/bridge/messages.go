package bridge

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-knxip/internal/knx"
	"github.com/nerrad567/gray-logic-knxip/internal/knxip"
)

// MQTT payload types for the daemon's topics.

// SetCommand is the payload a controller publishes to request a group
// write. Topic: knxip/set/{address}
//
// Two forms are accepted:
//   - {"dpt": "1.001", "value": true}   - value encoded by DPT
//   - {"data": "80ff"}                  - raw hex bytes sent verbatim
type SetCommand struct {
	// DPT selects the datapoint encoding for Value (e.g., "1.001").
	DPT string `json:"dpt,omitempty"`

	// Value is the typed value to encode. Interpretation depends on DPT.
	Value any `json:"value,omitempty"`

	// Data is hex-encoded raw bytes, used instead of DPT/Value.
	Data string `json:"data,omitempty"`
}

// ParseSetCommand parses and validates a set command payload.
func ParseSetCommand(payload []byte) (SetCommand, error) {
	var cmd SetCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return SetCommand{}, fmt.Errorf("parsing set command: %w", err)
	}
	if cmd.Data == "" && cmd.DPT == "" {
		return SetCommand{}, fmt.Errorf("set command needs either dpt or data")
	}
	return cmd, nil
}

// Encode produces the telegram payload bytes for the command.
func (cmd SetCommand) Encode() ([]byte, error) {
	if cmd.Data != "" {
		data, err := hex.DecodeString(cmd.Data)
		if err != nil {
			return nil, fmt.Errorf("decoding data hex: %w", err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("data must not be empty")
		}
		return data, nil
	}
	return encodeValue(cmd.DPT, cmd.Value)
}

// encodeValue encodes a JSON-typed value according to its DPT family.
// JSON numbers arrive as float64 regardless of the target width.
func encodeValue(dpt string, value any) ([]byte, error) {
	switch {
	case strings.HasPrefix(dpt, "1."):
		b, err := asBool(value)
		if err != nil {
			return nil, err
		}
		return knx.EncodeDPT1(b), nil

	case dpt == "5.003":
		f, err := asFloat(value)
		if err != nil {
			return nil, err
		}
		return knx.EncodeDPT5Angle(f), nil

	case strings.HasPrefix(dpt, "5."):
		f, err := asFloat(value)
		if err != nil {
			return nil, err
		}
		return knx.EncodeDPT5(f), nil

	case strings.HasPrefix(dpt, "7."):
		f, err := asFloat(value)
		if err != nil {
			return nil, err
		}
		if f < 0 || f > 65535 {
			return nil, fmt.Errorf("value %g out of range for DPT 7", f)
		}
		return knx.EncodeDPT7(uint16(f)), nil

	case strings.HasPrefix(dpt, "9."):
		f, err := asFloat(value)
		if err != nil {
			return nil, err
		}
		return knx.EncodeDPT9(f)

	case strings.HasPrefix(dpt, "13."):
		f, err := asFloat(value)
		if err != nil {
			return nil, err
		}
		if f < -2147483648 || f > 2147483647 {
			return nil, fmt.Errorf("value %g out of range for DPT 13", f)
		}
		return knx.EncodeDPT13(int32(f)), nil

	case strings.HasPrefix(dpt, "17."):
		f, err := asFloat(value)
		if err != nil {
			return nil, err
		}
		if f < 0 || f > 63 {
			return nil, fmt.Errorf("scene %g out of range for DPT 17", f)
		}
		return knx.EncodeDPT17(uint8(f))

	default:
		return nil, fmt.Errorf("unsupported dpt: %s", dpt)
	}
}

// asBool coerces a JSON value to bool. Accepts booleans and 0/1 numbers.
func asBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case float64:
		switch v {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
	}
	return false, fmt.Errorf("value %v is not a boolean", value)
}

// asFloat coerces a JSON value to float64.
func asFloat(value any) (float64, error) {
	v, ok := value.(float64)
	if !ok {
		return 0, fmt.Errorf("value %v is not a number", value)
	}
	return v, nil
}

// StateMessage is published when a group telegram is observed on the
// bus. Topic: knxip/state/{address}, QoS 1, retained.
type StateMessage struct {
	// Address is the destination group address (e.g., "1/2/3").
	Address string `json:"address"`

	// Source is the individual address of the sending device.
	Source string `json:"source"`

	// APCI is the telegram type: "write" or "response".
	APCI string `json:"apci"`

	// Data is the hex-encoded telegram payload.
	Data string `json:"data"`

	// Timestamp is when the telegram was observed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`
}

// NewStateMessage builds a state message from a received telegram.
func NewStateMessage(msg knxip.Message) StateMessage {
	return StateMessage{
		Address:   msg.Destination.String(),
		Source:    msg.Source.String(),
		APCI:      apciString(msg.APCI),
		Data:      hex.EncodeToString(msg.Data),
		Timestamp: time.Now().UTC(),
	}
}

// apciString returns the wire name for an APCI code.
func apciString(apci knxip.APCI) string {
	switch apci {
	case knxip.APCIGroupRead:
		return "read"
	case knxip.APCIGroupResponse:
		return "response"
	case knxip.APCIGroupWrite:
		return "write"
	default:
		return fmt.Sprintf("0x%03x", uint16(apci))
	}
}

// HealthStatus represents the daemon's operational status.
type HealthStatus string

const (
	// HealthHealthy indicates both the broker and the tunnel are up.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates one of the connections is down.
	HealthDegraded HealthStatus = "degraded"

	// HealthOffline indicates the daemon is gone (set via LWT).
	HealthOffline HealthStatus = "offline"

	// HealthStarting indicates the daemon is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the daemon is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// StatusMessage reports daemon health.
// Topic: knxip/status, QoS 1, retained.
type StatusMessage struct {
	// Service identifies the reporter.
	Service string `json:"service"`

	// Status is the current operational status.
	Status HealthStatus `json:"status"`

	// Version is the daemon version.
	Version string `json:"version"`

	// UptimeSeconds is how long the daemon has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Timestamp is when the status was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Connection describes the tunnel connection, if established.
	Connection *ConnectionStatus `json:"connection,omitempty"`

	// Statistics contains tunnel counters.
	Statistics *TunnelStatistics `json:"statistics,omitempty"`

	// Reason explains degraded or stopping statuses.
	Reason string `json:"reason,omitempty"`
}

// ConnectionStatus describes the tunnel connection state.
type ConnectionStatus struct {
	// Status is "connected" or "disconnected".
	Status string `json:"status"`

	// Gateway is the gateway endpoint (host:port).
	Gateway string `json:"gateway"`

	// Channel is the gateway-assigned tunnel channel ID.
	Channel uint8 `json:"channel"`
}

// TunnelStatistics contains tunnel operational counters.
type TunnelStatistics struct {
	MessagesTx         uint64 `json:"messages_tx"`
	MessagesRx         uint64 `json:"messages_rx"`
	MessagesDropped    uint64 `json:"messages_dropped"`
	Errors             uint64 `json:"errors"`
	SequenceMismatches uint64 `json:"sequence_mismatches"`
	Heartbeats         uint64 `json:"heartbeats"`
}

// NewStatusMessage builds a status message from current tunnel stats.
func NewStatusMessage(version string, status HealthStatus, gateway string, stats knxip.ClientStats, startTime time.Time) StatusMessage {
	connStatus := "disconnected"
	if stats.Connected {
		connStatus = "connected"
	}

	return StatusMessage{
		Service:       "knxipd",
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		Timestamp:     time.Now().UTC(),
		Connection: &ConnectionStatus{
			Status:  connStatus,
			Gateway: gateway,
			Channel: stats.Channel,
		},
		Statistics: &TunnelStatistics{
			MessagesTx:         stats.MessagesTx,
			MessagesRx:         stats.MessagesRx,
			MessagesDropped:    stats.MessagesDropped,
			Errors:             stats.ErrorsTotal,
			SequenceMismatches: stats.SequenceMismatches,
			Heartbeats:         stats.Heartbeats,
		},
	}
}

// NewLWTMessage builds the Last Will payload the broker publishes when
// the daemon drops off without a clean shutdown.
func NewLWTMessage() StatusMessage {
	return StatusMessage{
		Service:   "knxipd",
		Status:    HealthOffline,
		Timestamp: time.Now().UTC(),
		Reason:    "connection lost",
	}
}

// GatewaysMessage announces gateways found during discovery.
// Topic: knxip/gateways, QoS 1, retained.
type GatewaysMessage struct {
	// Timestamp is when discovery completed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Gateways lists the responding endpoints.
	Gateways []GatewayInfo `json:"gateways"`
}

// GatewayInfo describes a single discovered gateway.
type GatewayInfo struct {
	// Address is the gateway IP address.
	Address string `json:"address"`

	// Port is the gateway control port.
	Port uint16 `json:"port"`

	// IndividualAddress is the gateway device address (e.g. "1.1.0"),
	// empty when the search response carried no device info.
	IndividualAddress string `json:"individual_address,omitempty"`

	// Name is the gateway friendly name, empty when not reported.
	Name string `json:"name,omitempty"`
}

// NewGatewaysMessage builds a discovery announcement.
func NewGatewaysMessage(gateways []knxip.Gateway) GatewaysMessage {
	infos := make([]GatewayInfo, 0, len(gateways))
	for _, g := range gateways {
		info := GatewayInfo{
			Address: fmt.Sprintf("%d.%d.%d.%d", g.Addr[0], g.Addr[1], g.Addr[2], g.Addr[3]),
			Port:    g.Port,
			Name:    g.Name,
		}
		if g.IndividualAddress != (knx.IndividualAddress{}) {
			info.IndividualAddress = g.IndividualAddress.String()
		}
		infos = append(infos, info)
	}
	return GatewaysMessage{
		Timestamp: time.Now().UTC(),
		Gateways:  infos,
	}
}
