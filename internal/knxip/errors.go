package knxip

import "errors"

// Domain errors for the KNXnet/IP protocol package.
var (
	// ErrBufferTooSmall is returned when a buffer is shorter than the
	// structure being parsed claims to need.
	ErrBufferTooSmall = errors.New("knxip: buffer too small")

	// ErrInvalidFrame is returned when a frame violates the KNXnet/IP
	// framing rules (bad header length or protocol version).
	ErrInvalidFrame = errors.New("knxip: invalid frame")

	// ErrHeaderMismatch is returned when a header field does not carry
	// the expected constant value.
	ErrHeaderMismatch = errors.New("knxip: header mismatch")

	// ErrLengthMismatch is returned when a declared length disagrees
	// with the actual payload length.
	ErrLengthMismatch = errors.New("knxip: length mismatch")

	// ErrUnsupportedService is returned when a frame carries a service
	// type identifier this client does not implement.
	ErrUnsupportedService = errors.New("knxip: unsupported service type")

	// ErrUnsupportedOperation is returned when an operation is not valid
	// for the current connection state.
	ErrUnsupportedOperation = errors.New("knxip: unsupported operation")

	// ErrSequenceMismatch is returned when a tunneling request arrives
	// with a sequence counter that does not match the expected value.
	ErrSequenceMismatch = errors.New("knxip: sequence counter mismatch")

	// ErrNotConnected is returned when an operation requires an
	// established tunnel but none exists.
	ErrNotConnected = errors.New("knxip: not connected")

	// ErrConnectionFailed is returned when the gateway refuses a
	// connection request.
	ErrConnectionFailed = errors.New("knxip: connection failed")

	// ErrTunnelingAckFailed is returned when the gateway acknowledges a
	// tunneling request with a non-zero status.
	ErrTunnelingAckFailed = errors.New("knxip: tunneling ack reported failure")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("knxip: operation timed out")

	// ErrTransport is returned when the underlying UDP transport fails.
	ErrTransport = errors.New("knxip: transport error")
)
