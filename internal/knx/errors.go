package knx

import "errors"

// Domain errors for KNX addresses and datapoint types.
var (
	// ErrInvalidAddress is returned when a group or individual address
	// string cannot be parsed or a component is out of range.
	ErrInvalidAddress = errors.New("knx: invalid address")

	// ErrInvalidDPT is returned when a datapoint type identifier is invalid.
	ErrInvalidDPT = errors.New("knx: invalid datapoint type")

	// ErrEncodingFailed is returned when encoding a value to KNX format fails.
	ErrEncodingFailed = errors.New("knx: encoding failed")

	// ErrDecodingFailed is returned when decoding KNX data to a value fails.
	ErrDecodingFailed = errors.New("knx: decoding failed")
)
