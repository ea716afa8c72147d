package knx

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// GroupAddress represents a KNX group address in 3-level format.
//
// Format: Main/Middle/Sub
//   - Main:   0-31 (5 bits)
//   - Middle: 0-7  (3 bits)
//   - Sub:    0-255 (8 bits)
//
// Total: 16 bits (0x0000 - 0xFFFF)
type GroupAddress struct {
	Main   uint8
	Middle uint8
	Sub    uint8
}

// Group address limits per KNX specification.
const (
	maxMain   = 31
	maxMiddle = 7
	maxSub    = 255

	// max2LevelSub is the sub group limit in 2-level format (11 bits).
	max2LevelSub = 2047

	// gaLevelCount is the number of levels in a 3-level group address.
	gaLevelCount = 3

	// Bit masks for extracting group address parts from uint16.
	gaMainMask   = 0x1F // 5 bits
	gaMiddleMask = 0x07 // 3 bits
	gaSubMask    = 0xFF // 8 bits
)

// Individual address limits per KNX specification.
const (
	maxArea = 15
	maxLine = 15

	iaLevelCount = 3

	iaAreaMask = 0x0F
	iaLineMask = 0x0F
)

// NewGroupAddress builds a 3-level group address from numeric parts.
//
// Parameters:
//   - main: Main group (0-31)
//   - middle: Middle group (0-7)
//   - sub: Sub group (0-255)
//
// Returns:
//   - GroupAddress: Validated address
//   - error: ErrInvalidAddress if a part is out of range
func NewGroupAddress(main, middle, sub uint8) (GroupAddress, error) {
	if main > maxMain {
		return GroupAddress{}, fmt.Errorf("%w: main group must be 0-%d, got %d", ErrInvalidAddress, maxMain, main)
	}
	if middle > maxMiddle {
		return GroupAddress{}, fmt.Errorf("%w: middle group must be 0-%d, got %d", ErrInvalidAddress, maxMiddle, middle)
	}
	return GroupAddress{Main: main, Middle: middle, Sub: sub}, nil
}

// ParseGroupAddress parses a 3-level group address string.
//
// Accepts formats:
//   - "1/2/3" — Standard 3-level format
//
// Parameters:
//   - s: Group address string
//
// Returns:
//   - GroupAddress: Parsed address
//   - error: ErrInvalidAddress if parsing fails
//
// Example:
//
//	addr, err := ParseGroupAddress("1/2/3")
//	if err != nil {
//	    return err
//	}
func ParseGroupAddress(s string) (GroupAddress, error) {
	parts := strings.Split(s, "/")
	if len(parts) != gaLevelCount {
		return GroupAddress{}, fmt.Errorf("%w: expected 3-level format (main/middle/sub), got %q", ErrInvalidAddress, s)
	}

	main, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil || main > maxMain {
		return GroupAddress{}, fmt.Errorf("%w: main group must be 0-%d, got %q", ErrInvalidAddress, maxMain, parts[0])
	}

	middle, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil || middle > maxMiddle {
		return GroupAddress{}, fmt.Errorf("%w: middle group must be 0-%d, got %q", ErrInvalidAddress, maxMiddle, parts[1])
	}

	sub, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil || sub > maxSub {
		return GroupAddress{}, fmt.Errorf("%w: sub group must be 0-%d, got %q", ErrInvalidAddress, maxSub, parts[2])
	}

	return GroupAddress{
		Main:   uint8(main),
		Middle: uint8(middle),
		Sub:    uint8(sub),
	}, nil
}

// String returns the group address in 3-level format.
//
// Example: "1/2/3"
func (ga GroupAddress) String() string {
	return fmt.Sprintf("%d/%d/%d", ga.Main, ga.Middle, ga.Sub)
}

// ToUint16 converts the group address to a 16-bit integer.
//
// Layout: MMMM MSSS SSSS SSSS
//   - M = Main (5 bits)
//   - S = Middle (3 bits) + Sub (8 bits)
func (ga GroupAddress) ToUint16() uint16 {
	return uint16(ga.Main)<<11 | uint16(ga.Middle)<<8 | uint16(ga.Sub)
}

// GroupAddressFromUint16 creates a GroupAddress from a 16-bit integer.
//
// Parameters:
//   - value: 16-bit group address value
//
// Returns:
//   - GroupAddress: Decoded address
func GroupAddressFromUint16(value uint16) GroupAddress {
	// Bit masks ensure values fit in uint8 (no overflow possible).
	return GroupAddress{
		Main:   uint8((value >> 11) & gaMainMask),  //nolint:gosec // masked to 5 bits (0-31)
		Middle: uint8((value >> 8) & gaMiddleMask), //nolint:gosec // masked to 3 bits (0-7)
		Sub:    uint8(value & gaSubMask),           //nolint:gosec // masked to 8 bits (0-255)
	}
}

// URLEncode returns the group address as a URL-encoded string.
//
// This is used in MQTT topics where "/" is a level separator.
//
// Example: "1/2/3" → "1%2F2%2F3"
func (ga GroupAddress) URLEncode() string {
	return url.PathEscape(ga.String())
}

// ParseGroupAddressFromURL parses a URL-encoded group address.
//
// Parameters:
//   - encoded: URL-encoded group address (e.g., "1%2F2%2F3")
//
// Returns:
//   - GroupAddress: Parsed address
//   - error: If decoding or parsing fails
func ParseGroupAddressFromURL(encoded string) (GroupAddress, error) {
	decoded, err := url.PathUnescape(encoded)
	if err != nil {
		return GroupAddress{}, fmt.Errorf("%w: URL decode failed: %w", ErrInvalidAddress, err)
	}
	return ParseGroupAddress(decoded)
}

// IsValid returns true if the group address values are within valid ranges.
func (ga GroupAddress) IsValid() bool {
	return ga.Main <= maxMain && ga.Middle <= maxMiddle && ga.Sub <= maxSub
}

// GroupAddress2Level represents a KNX group address in 2-level format.
//
// Format: Main/Sub
//   - Main: 0-31   (5 bits)
//   - Sub:  0-2047 (11 bits)
//
// Some installations (mostly older ETS projects) address the bus this
// way. On the wire both formats share the same 16-bit encoding.
type GroupAddress2Level struct {
	Main uint8
	Sub  uint16
}

// NewGroupAddress2Level builds a 2-level group address from numeric parts.
//
// Parameters:
//   - main: Main group (0-31)
//   - sub: Sub group (0-2047)
//
// Returns:
//   - GroupAddress2Level: Validated address
//   - error: ErrInvalidAddress if a part is out of range
func NewGroupAddress2Level(main uint8, sub uint16) (GroupAddress2Level, error) {
	if main > maxMain {
		return GroupAddress2Level{}, fmt.Errorf("%w: main group must be 0-%d, got %d", ErrInvalidAddress, maxMain, main)
	}
	if sub > max2LevelSub {
		return GroupAddress2Level{}, fmt.Errorf("%w: sub group must be 0-%d, got %d", ErrInvalidAddress, max2LevelSub, sub)
	}
	return GroupAddress2Level{Main: main, Sub: sub}, nil
}

// ParseGroupAddress2Level parses a 2-level group address string.
//
// Parameters:
//   - s: Group address string (e.g., "5/1234")
//
// Returns:
//   - GroupAddress2Level: Parsed address
//   - error: ErrInvalidAddress if parsing fails
func ParseGroupAddress2Level(s string) (GroupAddress2Level, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return GroupAddress2Level{}, fmt.Errorf("%w: expected 2-level format (main/sub), got %q", ErrInvalidAddress, s)
	}

	main, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil || main > maxMain {
		return GroupAddress2Level{}, fmt.Errorf("%w: main group must be 0-%d, got %q", ErrInvalidAddress, maxMain, parts[0])
	}

	sub, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || sub > max2LevelSub {
		return GroupAddress2Level{}, fmt.Errorf("%w: sub group must be 0-%d, got %q", ErrInvalidAddress, max2LevelSub, parts[1])
	}

	return GroupAddress2Level{
		Main: uint8(main),
		Sub:  uint16(sub),
	}, nil
}

// String returns the group address in 2-level format.
//
// Example: "5/1234"
func (ga GroupAddress2Level) String() string {
	return fmt.Sprintf("%d/%d", ga.Main, ga.Sub)
}

// ToUint16 converts the 2-level group address to a 16-bit integer.
//
// Layout: MMMM MSSS SSSS SSSS
//   - M = Main (5 bits)
//   - S = Sub (11 bits)
func (ga GroupAddress2Level) ToUint16() uint16 {
	return uint16(ga.Main)<<11 | ga.Sub&0x07FF
}

// GroupAddress2LevelFromUint16 creates a 2-level address from a 16-bit integer.
func GroupAddress2LevelFromUint16(value uint16) GroupAddress2Level {
	return GroupAddress2Level{
		Main: uint8((value >> 11) & gaMainMask), //nolint:gosec // masked to 5 bits (0-31)
		Sub:  value & 0x07FF,
	}
}

// ThreeLevel converts a 2-level address to its 3-level equivalent.
func (ga GroupAddress2Level) ThreeLevel() GroupAddress {
	return GroupAddressFromUint16(ga.ToUint16())
}

// IsValid returns true if the 2-level address values are within valid ranges.
func (ga GroupAddress2Level) IsValid() bool {
	return ga.Main <= maxMain && ga.Sub <= max2LevelSub
}

// IndividualAddress represents the physical address of a KNX device.
//
// Format: Area.Line.Device
//   - Area:   0-15  (4 bits)
//   - Line:   0-15  (4 bits)
//   - Device: 0-255 (8 bits)
//
// Total: 16 bits (0x0000 - 0xFFFF)
type IndividualAddress struct {
	Area   uint8
	Line   uint8
	Device uint8
}

// NewIndividualAddress builds an individual address from numeric parts.
//
// Parameters:
//   - area: Area (0-15)
//   - line: Line (0-15)
//   - device: Device (0-255)
//
// Returns:
//   - IndividualAddress: Validated address
//   - error: ErrInvalidAddress if a part is out of range
func NewIndividualAddress(area, line, device uint8) (IndividualAddress, error) {
	if area > maxArea {
		return IndividualAddress{}, fmt.Errorf("%w: area must be 0-%d, got %d", ErrInvalidAddress, maxArea, area)
	}
	if line > maxLine {
		return IndividualAddress{}, fmt.Errorf("%w: line must be 0-%d, got %d", ErrInvalidAddress, maxLine, line)
	}
	return IndividualAddress{Area: area, Line: line, Device: device}, nil
}

// ParseIndividualAddress parses an individual address string.
//
// Parameters:
//   - s: Individual address string (e.g., "1.1.42")
//
// Returns:
//   - IndividualAddress: Parsed address
//   - error: ErrInvalidAddress if parsing fails
//
// Example:
//
//	addr, err := ParseIndividualAddress("1.1.42")
//	if err != nil {
//	    return err
//	}
func ParseIndividualAddress(s string) (IndividualAddress, error) {
	parts := strings.Split(s, ".")
	if len(parts) != iaLevelCount {
		return IndividualAddress{}, fmt.Errorf("%w: expected format area.line.device, got %q", ErrInvalidAddress, s)
	}

	area, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil || area > maxArea {
		return IndividualAddress{}, fmt.Errorf("%w: area must be 0-%d, got %q", ErrInvalidAddress, maxArea, parts[0])
	}

	line, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil || line > maxLine {
		return IndividualAddress{}, fmt.Errorf("%w: line must be 0-%d, got %q", ErrInvalidAddress, maxLine, parts[1])
	}

	device, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil {
		return IndividualAddress{}, fmt.Errorf("%w: device must be 0-255, got %q", ErrInvalidAddress, parts[2])
	}

	return IndividualAddress{
		Area:   uint8(area),
		Line:   uint8(line),
		Device: uint8(device),
	}, nil
}

// String returns the individual address in dotted format.
//
// Example: "1.1.42"
func (ia IndividualAddress) String() string {
	return fmt.Sprintf("%d.%d.%d", ia.Area, ia.Line, ia.Device)
}

// ToUint16 converts the individual address to a 16-bit integer.
//
// Layout: AAAA LLLL DDDD DDDD
//   - A = Area (4 bits)
//   - L = Line (4 bits)
//   - D = Device (8 bits)
func (ia IndividualAddress) ToUint16() uint16 {
	return uint16(ia.Area)<<12 | uint16(ia.Line)<<8 | uint16(ia.Device)
}

// IndividualAddressFromUint16 creates an IndividualAddress from a 16-bit integer.
func IndividualAddressFromUint16(value uint16) IndividualAddress {
	return IndividualAddress{
		Area:   uint8((value >> 12) & iaAreaMask), //nolint:gosec // masked to 4 bits (0-15)
		Line:   uint8((value >> 8) & iaLineMask),  //nolint:gosec // masked to 4 bits (0-15)
		Device: uint8(value & 0xFF),               //nolint:gosec // masked to 8 bits (0-255)
	}
}

// IsValid returns true if the individual address values are within valid ranges.
func (ia IndividualAddress) IsValid() bool {
	return ia.Area <= maxArea && ia.Line <= maxLine
}
