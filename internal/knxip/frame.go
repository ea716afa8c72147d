// Package knxip implements the client side of the KNXnet/IP tunneling
// protocol: frame and structure codecs, the connection state machine,
// and the UDP tunnel client.
package knxip

import (
	"encoding/binary"
	"fmt"
)

// KNXnet/IP framing constants.
const (
	// HeaderSize is the fixed size of the KNXnet/IP header in bytes.
	HeaderSize = 6

	// headerLengthOctet is the value of the first header byte.
	headerLengthOctet = 0x06

	// protocolVersion10 identifies KNXnet/IP protocol version 1.0.
	protocolVersion10 = 0x10

	// MaxFrameSize is the largest frame this client will build or accept.
	MaxFrameSize = 256

	// DefaultPort is the standard KNXnet/IP UDP port.
	DefaultPort = 3671
)

// ServiceType identifies a KNXnet/IP service.
type ServiceType uint16

// Service type identifiers for the core and tunneling protocols.
const (
	ServiceSearchRequest      ServiceType = 0x0201
	ServiceSearchResponse     ServiceType = 0x0202
	ServiceConnectRequest     ServiceType = 0x0205
	ServiceConnectResponse    ServiceType = 0x0206
	ServiceConnStateRequest   ServiceType = 0x0207
	ServiceConnStateResponse  ServiceType = 0x0208
	ServiceDisconnectRequest  ServiceType = 0x0209
	ServiceDisconnectResponse ServiceType = 0x020A
	ServiceTunnelingRequest   ServiceType = 0x0420
	ServiceTunnelingAck       ServiceType = 0x0421
)

// String returns the protocol name of the service type.
func (s ServiceType) String() string {
	switch s {
	case ServiceSearchRequest:
		return "SEARCH_REQUEST"
	case ServiceSearchResponse:
		return "SEARCH_RESPONSE"
	case ServiceConnectRequest:
		return "CONNECT_REQUEST"
	case ServiceConnectResponse:
		return "CONNECT_RESPONSE"
	case ServiceConnStateRequest:
		return "CONNECTIONSTATE_REQUEST"
	case ServiceConnStateResponse:
		return "CONNECTIONSTATE_RESPONSE"
	case ServiceDisconnectRequest:
		return "DISCONNECT_REQUEST"
	case ServiceDisconnectResponse:
		return "DISCONNECT_RESPONSE"
	case ServiceTunnelingRequest:
		return "TUNNELING_REQUEST"
	case ServiceTunnelingAck:
		return "TUNNELING_ACK"
	default:
		return fmt.Sprintf("UNKNOWN(0x%04X)", uint16(s))
	}
}

func (s ServiceType) known() bool {
	switch s {
	case ServiceSearchRequest, ServiceSearchResponse,
		ServiceConnectRequest, ServiceConnectResponse,
		ServiceConnStateRequest, ServiceConnStateResponse,
		ServiceDisconnectRequest, ServiceDisconnectResponse,
		ServiceTunnelingRequest, ServiceTunnelingAck:
		return true
	default:
		return false
	}
}

// Frame is a parsed KNXnet/IP frame: the service identifier from the
// header plus the body bytes that follow it.
type Frame struct {
	Service ServiceType
	Body    []byte
}

// BuildFrame assembles a KNXnet/IP frame from a service type and body.
//
// Layout:
//
//	Byte 0:   Header length (0x06)
//	Byte 1:   Protocol version (0x10)
//	Byte 2-3: Service type (big-endian)
//	Byte 4-5: Total length (big-endian, header + body)
//
// Parameters:
//   - service: Service type identifier
//   - body: Frame body (may be empty)
//
// Returns:
//   - []byte: Complete frame
//   - error: If the frame would exceed MaxFrameSize
func BuildFrame(service ServiceType, body []byte) ([]byte, error) {
	total := HeaderSize + len(body)
	if total > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds maximum %d", ErrLengthMismatch, total, MaxFrameSize)
	}

	frame := make([]byte, total)
	frame[0] = headerLengthOctet
	frame[1] = protocolVersion10
	binary.BigEndian.PutUint16(frame[2:4], uint16(service))
	binary.BigEndian.PutUint16(frame[4:6], uint16(total)) //nolint:gosec // bounded by MaxFrameSize
	copy(frame[HeaderSize:], body)
	return frame, nil
}

// ParseFrame parses and validates a KNXnet/IP frame.
//
// Validation:
//   - At least HeaderSize bytes present
//   - Header length octet is 0x06
//   - Protocol version is 0x10
//   - Service type is one this client understands
//   - Buffer holds at least the declared total length
//
// Parameters:
//   - data: Raw datagram bytes
//
// Returns:
//   - Frame: Service type and body slice (shares backing array with data)
//   - error: Validation failure
func ParseFrame(data []byte) (Frame, error) {
	if len(data) < HeaderSize {
		return Frame{}, fmt.Errorf("%w: need %d header bytes, got %d", ErrBufferTooSmall, HeaderSize, len(data))
	}

	if data[0] != headerLengthOctet {
		return Frame{}, fmt.Errorf("%w: header length 0x%02X, expected 0x%02X", ErrHeaderMismatch, data[0], headerLengthOctet)
	}

	if data[1] != protocolVersion10 {
		return Frame{}, fmt.Errorf("%w: protocol version 0x%02X, expected 0x%02X", ErrInvalidFrame, data[1], protocolVersion10)
	}

	service := ServiceType(binary.BigEndian.Uint16(data[2:4]))
	if !service.known() {
		return Frame{}, fmt.Errorf("%w: 0x%04X", ErrUnsupportedService, uint16(service))
	}

	total := int(binary.BigEndian.Uint16(data[4:6]))
	if total < HeaderSize {
		return Frame{}, fmt.Errorf("%w: declared total length %d below header size", ErrLengthMismatch, total)
	}
	if len(data) < total {
		return Frame{}, fmt.Errorf("%w: declared total length %d, have %d bytes", ErrLengthMismatch, total, len(data))
	}

	return Frame{Service: service, Body: data[HeaderSize:total]}, nil
}

// HPAI structure constants.
const (
	// hpaiSize is the size of a Host Protocol Address Information
	// structure in bytes.
	hpaiSize = 8

	// hpaiProtocolUDP identifies IPv4 over UDP.
	hpaiProtocolUDP = 0x01
)

// HPAI is a Host Protocol Address Information structure: an IPv4
// endpoint in KNXnet/IP wire format. The zero value (0.0.0.0:0) tells
// the gateway to reply to the datagram's source address (NAT mode).
type HPAI struct {
	Addr [4]byte
	Port uint16
}

// Encode returns the 8-byte wire representation of the HPAI.
//
// Layout:
//
//	Byte 0:   Structure length (0x08)
//	Byte 1:   Host protocol (0x01 = IPv4 UDP)
//	Byte 2-5: IPv4 address
//	Byte 6-7: Port (big-endian)
func (h HPAI) Encode() []byte {
	buf := make([]byte, hpaiSize)
	buf[0] = hpaiSize
	buf[1] = hpaiProtocolUDP
	copy(buf[2:6], h.Addr[:])
	binary.BigEndian.PutUint16(buf[6:8], h.Port)
	return buf
}

// ParseHPAI parses an HPAI from the start of data.
//
// Parameters:
//   - data: Buffer beginning with an HPAI structure
//
// Returns:
//   - HPAI: Parsed endpoint
//   - error: If the structure is truncated or malformed
func ParseHPAI(data []byte) (HPAI, error) {
	if len(data) < hpaiSize {
		return HPAI{}, fmt.Errorf("%w: HPAI needs %d bytes, got %d", ErrBufferTooSmall, hpaiSize, len(data))
	}
	if data[0] != hpaiSize {
		return HPAI{}, fmt.Errorf("%w: HPAI structure length 0x%02X, expected 0x%02X", ErrLengthMismatch, data[0], hpaiSize)
	}
	if data[1] != hpaiProtocolUDP {
		return HPAI{}, fmt.Errorf("%w: HPAI host protocol 0x%02X, expected UDP (0x%02X)", ErrHeaderMismatch, data[1], hpaiProtocolUDP)
	}

	var h HPAI
	copy(h.Addr[:], data[2:6])
	h.Port = binary.BigEndian.Uint16(data[6:8])
	return h, nil
}

// String returns the endpoint in host:port form.
func (h HPAI) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", h.Addr[0], h.Addr[1], h.Addr[2], h.Addr[3], h.Port)
}
