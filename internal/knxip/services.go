package knxip

import (
	"fmt"
)

// StatusCode is a KNXnet/IP error code as carried in connect,
// connection state, disconnect and tunneling ack responses.
type StatusCode uint8

// Gateway status codes.
const (
	StatusNoError             StatusCode = 0x00
	StatusHostProtocolType    StatusCode = 0x01
	StatusVersionNotSupported StatusCode = 0x02
	StatusSequenceNumber      StatusCode = 0x04
	StatusConnectionID        StatusCode = 0x21
	StatusConnectionType      StatusCode = 0x22
	StatusConnectionOption    StatusCode = 0x23
	StatusNoMoreConnections   StatusCode = 0x24
	StatusDataConnection      StatusCode = 0x26
	StatusKNXConnection       StatusCode = 0x27
	StatusTunnelingLayer      StatusCode = 0x29
)

// String returns the protocol name of the status code.
func (c StatusCode) String() string {
	switch c {
	case StatusNoError:
		return "E_NO_ERROR"
	case StatusHostProtocolType:
		return "E_HOST_PROTOCOL_TYPE"
	case StatusVersionNotSupported:
		return "E_VERSION_NOT_SUPPORTED"
	case StatusSequenceNumber:
		return "E_SEQUENCE_NUMBER"
	case StatusConnectionID:
		return "E_CONNECTION_ID"
	case StatusConnectionType:
		return "E_CONNECTION_TYPE"
	case StatusConnectionOption:
		return "E_CONNECTION_OPTION"
	case StatusNoMoreConnections:
		return "E_NO_MORE_CONNECTIONS"
	case StatusDataConnection:
		return "E_DATA_CONNECTION"
	case StatusKNXConnection:
		return "E_KNX_CONNECTION"
	case StatusTunnelingLayer:
		return "E_TUNNELING_LAYER"
	default:
		return fmt.Sprintf("E_UNKNOWN(0x%02X)", uint8(c))
	}
}

// Connection request information constants.
const (
	criSize = 4

	// criTunnelConnection requests a tunneling connection.
	criTunnelConnection = 0x04

	// criTunnelLinkLayer requests link layer (cEMI) access.
	criTunnelLinkLayer = 0x02
)

// Connection header constants.
const (
	// connHeaderSize is the size of the connection header that prefixes
	// tunneling request and ack bodies.
	connHeaderSize = 4
)

// encodeConnectionHeader writes the 4-byte connection header.
//
// Layout: [length 0x04][channel][sequence][reserved 0x00]
func encodeConnectionHeader(channel, sequence uint8) []byte {
	return []byte{connHeaderSize, channel, sequence, 0x00}
}

// BuildConnectRequest builds a complete CONNECT_REQUEST frame.
//
// The frame is always 26 bytes: header, control endpoint HPAI, data
// endpoint HPAI and the tunneling CRI. Pass zero-value HPAIs to run in
// NAT mode where the gateway replies to the datagram source.
//
// Parameters:
//   - control: Local control endpoint
//   - data: Local data endpoint
//
// Returns:
//   - []byte: Complete frame ready to send
//   - error: If assembly fails
func BuildConnectRequest(control, data HPAI) ([]byte, error) {
	body := make([]byte, 0, 2*hpaiSize+criSize)
	body = append(body, control.Encode()...)
	body = append(body, data.Encode()...)
	body = append(body, criSize, criTunnelConnection, criTunnelLinkLayer, 0x00)
	return BuildFrame(ServiceConnectRequest, body)
}

// ConnectResponse is the parsed body of a CONNECT_RESPONSE.
type ConnectResponse struct {
	Channel uint8
	Status  StatusCode
	Data    HPAI
}

// connectResponseMinSize is channel + status + HPAI + CRD.
const connectResponseMinSize = 2 + hpaiSize + criSize

// ParseConnectResponse parses a CONNECT_RESPONSE body.
//
// An error status from the gateway is not an error here: the caller
// inspects Status to decide whether the connection was accepted. The
// data endpoint and CRD are only present on success, so a short body
// with a non-zero status is valid.
//
// Parameters:
//   - body: Frame body (after the 6-byte header)
//
// Returns:
//   - ConnectResponse: Parsed response
//   - error: If the body is malformed
func ParseConnectResponse(body []byte) (ConnectResponse, error) {
	if len(body) < 2 {
		return ConnectResponse{}, fmt.Errorf("%w: connect response needs 2 bytes, got %d", ErrBufferTooSmall, len(body))
	}

	resp := ConnectResponse{
		Channel: body[0],
		Status:  StatusCode(body[1]),
	}

	if resp.Status != StatusNoError {
		return resp, nil
	}

	if len(body) < connectResponseMinSize {
		return ConnectResponse{}, fmt.Errorf("%w: connect response needs %d bytes, got %d", ErrBufferTooSmall, connectResponseMinSize, len(body))
	}

	data, err := ParseHPAI(body[2 : 2+hpaiSize])
	if err != nil {
		return ConnectResponse{}, err
	}
	resp.Data = data
	return resp, nil
}

// BuildConnStateRequest builds a complete CONNECTIONSTATE_REQUEST frame.
//
// The frame is always 16 bytes: header, channel, reserved byte and the
// local control endpoint HPAI.
func BuildConnStateRequest(channel uint8, control HPAI) ([]byte, error) {
	body := make([]byte, 0, 2+hpaiSize)
	body = append(body, channel, 0x00)
	body = append(body, control.Encode()...)
	return BuildFrame(ServiceConnStateRequest, body)
}

// ParseConnStateResponse parses a CONNECTIONSTATE_RESPONSE body.
//
// Returns:
//   - channel: Channel the response refers to
//   - status: Gateway status code
//   - error: If the body is malformed
func ParseConnStateResponse(body []byte) (channel uint8, status StatusCode, err error) {
	if len(body) < 2 {
		return 0, 0, fmt.Errorf("%w: connection state response needs 2 bytes, got %d", ErrBufferTooSmall, len(body))
	}
	return body[0], StatusCode(body[1]), nil
}

// BuildDisconnectRequest builds a complete DISCONNECT_REQUEST frame.
//
// Same layout as CONNECTIONSTATE_REQUEST, 16 bytes total.
func BuildDisconnectRequest(channel uint8, control HPAI) ([]byte, error) {
	body := make([]byte, 0, 2+hpaiSize)
	body = append(body, channel, 0x00)
	body = append(body, control.Encode()...)
	return BuildFrame(ServiceDisconnectRequest, body)
}

// ParseDisconnectResponse parses a DISCONNECT_RESPONSE body.
func ParseDisconnectResponse(body []byte) (channel uint8, status StatusCode, err error) {
	if len(body) < 2 {
		return 0, 0, fmt.Errorf("%w: disconnect response needs 2 bytes, got %d", ErrBufferTooSmall, len(body))
	}
	return body[0], StatusCode(body[1]), nil
}

// BuildTunnelingRequest builds a complete TUNNELING_REQUEST frame
// carrying a cEMI payload.
//
// Parameters:
//   - channel: Tunnel channel identifier
//   - sequence: Send sequence counter
//   - cemi: cEMI frame bytes
//
// Returns:
//   - []byte: Complete frame ready to send
//   - error: If the frame would exceed MaxFrameSize
func BuildTunnelingRequest(channel, sequence uint8, cemi []byte) ([]byte, error) {
	body := make([]byte, 0, connHeaderSize+len(cemi))
	body = append(body, encodeConnectionHeader(channel, sequence)...)
	body = append(body, cemi...)
	return BuildFrame(ServiceTunnelingRequest, body)
}

// TunnelingRequest is the parsed body of a TUNNELING_REQUEST.
type TunnelingRequest struct {
	Channel  uint8
	Sequence uint8
	CEMI     []byte
}

// ParseTunnelingRequest parses a TUNNELING_REQUEST body.
//
// Parameters:
//   - body: Frame body (after the 6-byte header)
//
// Returns:
//   - TunnelingRequest: Channel, sequence and cEMI payload slice
//   - error: If the connection header is truncated
func ParseTunnelingRequest(body []byte) (TunnelingRequest, error) {
	if len(body) < connHeaderSize {
		return TunnelingRequest{}, fmt.Errorf("%w: tunneling request needs %d bytes, got %d", ErrBufferTooSmall, connHeaderSize, len(body))
	}
	return TunnelingRequest{
		Channel:  body[1],
		Sequence: body[2],
		CEMI:     body[connHeaderSize:],
	}, nil
}

// BuildTunnelingAck builds a complete TUNNELING_ACK frame.
//
// The frame is always 11 bytes: header, connection header and status.
func BuildTunnelingAck(channel, sequence uint8, status StatusCode) ([]byte, error) {
	body := make([]byte, 0, connHeaderSize+1)
	body = append(body, encodeConnectionHeader(channel, sequence)...)
	body = append(body, uint8(status))
	return BuildFrame(ServiceTunnelingAck, body)
}

// TunnelingAck is the parsed body of a TUNNELING_ACK.
type TunnelingAck struct {
	Channel  uint8
	Sequence uint8
	Status   StatusCode
}

// ParseTunnelingAck parses a TUNNELING_ACK body.
func ParseTunnelingAck(body []byte) (TunnelingAck, error) {
	if len(body) < connHeaderSize+1 {
		return TunnelingAck{}, fmt.Errorf("%w: tunneling ack needs %d bytes, got %d", ErrBufferTooSmall, connHeaderSize+1, len(body))
	}
	return TunnelingAck{
		Channel:  body[1],
		Sequence: body[2],
		Status:   StatusCode(body[4]),
	}, nil
}
