package knxip

import (
	"fmt"
)

// TunnelState is the lifecycle state of a tunnel connection.
type TunnelState uint8

// Tunnel lifecycle states.
const (
	StateIdle TunnelState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

// String returns the state name.
func (s TunnelState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Tunnel is the tunneling connection state machine. It builds outgoing
// frames and validates incoming bodies, tracking the channel identifier
// and both sequence counters. It performs no I/O; Client drives it from
// the UDP socket.
//
// Tunnel is not safe for concurrent use. Client serializes access.
type Tunnel struct {
	state   TunnelState
	channel uint8
	sendSeq uint8
	recvSeq uint8

	// control is the local endpoint advertised in requests. The zero
	// value selects NAT mode.
	control HPAI
}

// NewTunnel creates an idle tunnel state machine.
//
// Parameters:
//   - control: Local control endpoint, or the zero HPAI for NAT mode
func NewTunnel(control HPAI) *Tunnel {
	return &Tunnel{control: control}
}

// State returns the current lifecycle state.
func (t *Tunnel) State() TunnelState { return t.state }

// Channel returns the gateway-assigned channel identifier. Zero until
// a connect response is accepted.
func (t *Tunnel) Channel() uint8 { return t.channel }

// SendSequence returns the next outgoing sequence counter.
func (t *Tunnel) SendSequence() uint8 { return t.sendSeq }

// RecvSequence returns the next expected incoming sequence counter.
func (t *Tunnel) RecvSequence() uint8 { return t.recvSeq }

// Reset drops all connection state and returns the tunnel to idle.
func (t *Tunnel) Reset() {
	t.state = StateIdle
	t.channel = 0
	t.sendSeq = 0
	t.recvSeq = 0
}

// ConnectRequest builds a CONNECT_REQUEST and moves to the connecting
// state. Only valid while idle.
func (t *Tunnel) ConnectRequest() ([]byte, error) {
	if t.state != StateIdle {
		return nil, fmt.Errorf("%w: connect while %s", ErrUnsupportedOperation, t.state)
	}

	frame, err := BuildConnectRequest(t.control, t.control)
	if err != nil {
		return nil, err
	}
	t.state = StateConnecting
	return frame, nil
}

// HandleConnectResponse processes a CONNECT_RESPONSE body.
//
// On success the tunnel is connected with both sequence counters at
// zero. A gateway refusal returns ErrConnectionFailed and drops the
// tunnel back to idle.
func (t *Tunnel) HandleConnectResponse(body []byte) error {
	if t.state != StateConnecting {
		return fmt.Errorf("%w: connect response while %s", ErrUnsupportedOperation, t.state)
	}

	resp, err := ParseConnectResponse(body)
	if err != nil {
		t.Reset()
		return err
	}

	if resp.Status != StatusNoError {
		t.Reset()
		return fmt.Errorf("%w: gateway refused with %s", ErrConnectionFailed, resp.Status)
	}

	t.state = StateConnected
	t.channel = resp.Channel
	t.sendSeq = 0
	t.recvSeq = 0
	return nil
}

// TunnelingRequest builds a TUNNELING_REQUEST carrying cemi and
// post-increments the send sequence counter, wrapping at 256.
func (t *Tunnel) TunnelingRequest(cemi []byte) ([]byte, error) {
	if t.state != StateConnected {
		return nil, fmt.Errorf("%w: tunneling request while %s", ErrNotConnected, t.state)
	}

	frame, err := BuildTunnelingRequest(t.channel, t.sendSeq, cemi)
	if err != nil {
		return nil, err
	}
	t.sendSeq++
	return frame, nil
}

// HandleTunnelingRequest processes an incoming TUNNELING_REQUEST body.
//
// When the sequence counter matches the expected value, the receive
// counter advances and a TUNNELING_ACK echoing the received sequence
// is returned alongside the cEMI payload. A mismatch produces
// ErrSequenceMismatch and leaves counters and state untouched: no
// ack is generated and the gateway will retransmit.
//
// Parameters:
//   - body: Frame body of the tunneling request
//
// Returns:
//   - cemi: The cEMI payload bytes
//   - ack: Complete TUNNELING_ACK frame to send back
//   - error: Sequence mismatch or malformed body
func (t *Tunnel) HandleTunnelingRequest(body []byte) (cemi, ack []byte, err error) {
	if t.state != StateConnected {
		return nil, nil, fmt.Errorf("%w: tunneling request while %s", ErrNotConnected, t.state)
	}

	req, err := ParseTunnelingRequest(body)
	if err != nil {
		return nil, nil, err
	}

	if req.Sequence != t.recvSeq {
		return nil, nil, fmt.Errorf("%w: got %d, expected %d", ErrSequenceMismatch, req.Sequence, t.recvSeq)
	}

	ack, err = BuildTunnelingAck(t.channel, req.Sequence, StatusNoError)
	if err != nil {
		return nil, nil, err
	}

	t.recvSeq++
	return req.CEMI, ack, nil
}

// HandleTunnelingAck processes a TUNNELING_ACK body.
//
// A non-zero status returns ErrTunnelingAckFailed. The caller matches
// the returned sequence against the request it is waiting on.
func (t *Tunnel) HandleTunnelingAck(body []byte) (TunnelingAck, error) {
	if t.state != StateConnected {
		return TunnelingAck{}, fmt.Errorf("%w: tunneling ack while %s", ErrNotConnected, t.state)
	}

	tack, err := ParseTunnelingAck(body)
	if err != nil {
		return TunnelingAck{}, err
	}

	if tack.Status != StatusNoError {
		return tack, fmt.Errorf("%w: %s for sequence %d", ErrTunnelingAckFailed, tack.Status, tack.Sequence)
	}
	return tack, nil
}

// ConnStateRequest builds a CONNECTIONSTATE_REQUEST heartbeat frame.
func (t *Tunnel) ConnStateRequest() ([]byte, error) {
	if t.state != StateConnected {
		return nil, fmt.Errorf("%w: connection state request while %s", ErrNotConnected, t.state)
	}
	return BuildConnStateRequest(t.channel, t.control)
}

// HandleConnStateResponse processes a CONNECTIONSTATE_RESPONSE body.
//
// A non-zero status means the gateway no longer recognises the
// channel. State is left untouched; the caller decides whether to
// tear down and reconnect.
func (t *Tunnel) HandleConnStateResponse(body []byte) error {
	_, status, err := ParseConnStateResponse(body)
	if err != nil {
		return err
	}
	if status != StatusNoError {
		return fmt.Errorf("%w: heartbeat refused with %s", ErrConnectionFailed, status)
	}
	return nil
}

// DisconnectRequest builds a DISCONNECT_REQUEST and moves to the
// disconnecting state.
func (t *Tunnel) DisconnectRequest() ([]byte, error) {
	if t.state != StateConnected {
		return nil, fmt.Errorf("%w: disconnect while %s", ErrNotConnected, t.state)
	}

	frame, err := BuildDisconnectRequest(t.channel, t.control)
	if err != nil {
		return nil, err
	}
	t.state = StateDisconnecting
	return frame, nil
}

// HandleDisconnectResponse processes a DISCONNECT_RESPONSE body.
//
// The tunnel always returns to idle, even when the gateway reports an
// error status: the connection is gone either way.
func (t *Tunnel) HandleDisconnectResponse(body []byte) error {
	_, _, err := ParseDisconnectResponse(body)
	t.Reset()
	return err
}

// HandleDisconnectRequest processes a gateway-initiated
// DISCONNECT_REQUEST and returns the DISCONNECT_RESPONSE to send back.
// The tunnel returns to idle.
func (t *Tunnel) HandleDisconnectRequest(body []byte) ([]byte, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("%w: disconnect request needs 2 bytes, got %d", ErrBufferTooSmall, len(body))
	}
	channel := body[0]

	resp, err := BuildFrame(ServiceDisconnectResponse, []byte{channel, uint8(StatusNoError)})
	if err != nil {
		return nil, err
	}
	t.Reset()
	return resp, nil
}
