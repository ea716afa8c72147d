package knxip

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-knxip/internal/knx"
)

// MessageCode identifies the cEMI service.
type MessageCode uint8

// cEMI message codes for link layer data frames.
const (
	// LDataReq is a data request from client to bus (L_Data.req).
	LDataReq MessageCode = 0x11

	// LDataInd is a data indication from bus to client (L_Data.ind).
	LDataInd MessageCode = 0x29

	// LDataCon is a data confirmation from the gateway (L_Data.con).
	LDataCon MessageCode = 0x2E
)

// String returns the cEMI service name of the message code.
func (c MessageCode) String() string {
	switch c {
	case LDataReq:
		return "L_Data.req"
	case LDataInd:
		return "L_Data.ind"
	case LDataCon:
		return "L_Data.con"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(c))
	}
}

// APCI is a 10-bit application layer service code.
type APCI uint16

// APCI codes for group communication.
const (
	// APCIGroupRead asks the device listening on a group address for
	// its current value.
	APCIGroupRead APCI = 0x000

	// APCIGroupResponse answers a group read.
	APCIGroupResponse APCI = 0x040

	// APCIGroupWrite sends a value to devices listening on a group address.
	APCIGroupWrite APCI = 0x080
)

// Control field defaults for standard group telegrams.
//
//	Control1 0xBC: standard frame, do not repeat, broadcast, low priority
//	Control2 0xE0: group addressed, hop count 6
const (
	Control1Default = 0xBC
	Control2Default = 0xE0
)

// cEMI frame layout constants.
const (
	// cemiMinSize is message code + additional info length.
	cemiMinSize = 2

	// ldataMinSize is the fixed part of an L_Data payload:
	// ctrl1 + ctrl2 + source(2) + dest(2) + NPDU length + TPCI + APCI.
	ldataMinSize = 9

	// sixBitMax is the largest value that fits in the APCI octet itself.
	sixBitMax = 0x3F
)

// Message is a decoded cEMI L_Data frame: a single group telegram as
// carried inside a tunneling request.
type Message struct {
	// Code is the cEMI service (request, indication or confirmation).
	Code MessageCode

	// Control1 and Control2 are the raw control fields.
	Control1 uint8
	Control2 uint8

	// Source is the sender's individual address.
	Source knx.IndividualAddress

	// Destination is the target group address. Only meaningful when
	// IsGroupAddressed reports true.
	Destination knx.GroupAddress

	// APCI indicates the telegram type (read, response, or write).
	APCI APCI

	// Data contains the DPT-encoded payload. Values of six bits or
	// fewer travel inside the APCI octet; they surface here as a
	// single byte. Empty for read requests.
	Data []byte

	// Timestamp records when the message was received or created.
	Timestamp time.Time
}

// NewGroupWrite creates an L_Data.req carrying a group value write.
//
// Parameters:
//   - source: Individual address to send as
//   - dest: Target group address
//   - data: DPT-encoded payload
//
// Returns:
//   - Message: Ready to encode and tunnel
func NewGroupWrite(source knx.IndividualAddress, dest knx.GroupAddress, data []byte) Message {
	return Message{
		Code:        LDataReq,
		Control1:    Control1Default,
		Control2:    Control2Default,
		Source:      source,
		Destination: dest,
		APCI:        APCIGroupWrite,
		Data:        data,
		Timestamp:   time.Now(),
	}
}

// NewGroupRead creates an L_Data.req carrying a group value read request.
func NewGroupRead(source knx.IndividualAddress, dest knx.GroupAddress) Message {
	return Message{
		Code:        LDataReq,
		Control1:    Control1Default,
		Control2:    Control2Default,
		Source:      source,
		Destination: dest,
		APCI:        APCIGroupRead,
		Timestamp:   time.Now(),
	}
}

// NewGroupResponse creates an L_Data.req answering a group value read.
func NewGroupResponse(source knx.IndividualAddress, dest knx.GroupAddress, data []byte) Message {
	m := NewGroupWrite(source, dest, data)
	m.APCI = APCIGroupResponse
	return m
}

// Encode returns the wire representation of the message.
//
// Layout:
//
//	Byte 0:   Message code
//	Byte 1:   Additional info length (always 0 when encoding)
//	Byte 2:   Control field 1
//	Byte 3:   Control field 2
//	Byte 4-5: Source individual address (big-endian)
//	Byte 6-7: Destination group address (big-endian)
//	Byte 8:   NPDU length (TPCI/APCI octets + data octets)
//	Byte 9:   TPCI (0x00, unnumbered data) | APCI high bits
//	Byte 10:  APCI low bits | 6-bit value
//	Byte 11+: Data bytes for payloads wider than 6 bits
//
// A single data byte up to 0x3F is packed into the APCI octet; larger
// payloads follow it.
func (m Message) Encode() []byte {
	apciHigh := uint8(m.APCI>>8) & 0x03 //nolint:gosec // 2-bit field
	apciLow := uint8(m.APCI) & 0xC0     //nolint:gosec // high bits of low octet

	small := len(m.Data) == 1 && m.Data[0] <= sixBitMax && m.APCI != APCIGroupRead

	extra := m.Data
	if small || m.APCI == APCIGroupRead {
		extra = nil
	}

	buf := make([]byte, cemiMinSize+ldataMinSize+len(extra))
	buf[0] = uint8(m.Code)
	buf[1] = 0x00
	buf[2] = m.Control1
	buf[3] = m.Control2

	src := m.Source.ToUint16()
	buf[4] = byte(src >> 8)
	buf[5] = byte(src)

	dst := m.Destination.ToUint16()
	buf[6] = byte(dst >> 8)
	buf[7] = byte(dst)

	buf[8] = uint8(2 + len(extra)) //nolint:gosec // bounded by MaxFrameSize upstream
	buf[9] = apciHigh
	buf[10] = apciLow
	if small {
		buf[10] |= m.Data[0] & sixBitMax
	}
	copy(buf[11:], extra)
	return buf
}

// ParseMessage decodes a cEMI frame into a Message.
//
// Additional info bytes are skipped. Control frames (TPCI with the
// high bit set) carry no APCI and are rejected since a tunneling
// client only handles group data telegrams.
//
// Parameters:
//   - data: Raw cEMI bytes from a tunneling request
//
// Returns:
//   - Message: Decoded telegram with timestamp set to now
//   - error: If the frame is truncated or not an L_Data frame
func ParseMessage(data []byte) (Message, error) {
	if len(data) < cemiMinSize {
		return Message{}, fmt.Errorf("%w: cEMI needs %d bytes, got %d", ErrBufferTooSmall, cemiMinSize, len(data))
	}

	code := MessageCode(data[0])
	switch code {
	case LDataReq, LDataInd, LDataCon:
	default:
		return Message{}, fmt.Errorf("%w: cEMI message code 0x%02X", ErrInvalidFrame, data[0])
	}

	serviceStart := cemiMinSize + int(data[1])
	if len(data) < serviceStart {
		return Message{}, fmt.Errorf("%w: additional info of %d bytes exceeds frame", ErrLengthMismatch, data[1])
	}

	ldata := data[serviceStart:]
	if len(ldata) < ldataMinSize {
		return Message{}, fmt.Errorf("%w: L_Data needs %d bytes, got %d", ErrBufferTooSmall, ldataMinSize, len(ldata))
	}

	tpci := ldata[7]
	if tpci&0x80 != 0 {
		return Message{}, fmt.Errorf("%w: control frame (TPCI 0x%02X)", ErrUnsupportedOperation, tpci)
	}

	npduEnd := 7 + int(ldata[6])
	if npduEnd < ldataMinSize || len(ldata) < npduEnd {
		return Message{}, fmt.Errorf("%w: NPDU length %d exceeds frame", ErrLengthMismatch, ldata[6])
	}

	apci := APCI(uint16(tpci&0x03)<<8 | uint16(ldata[8]&0xC0))

	var payload []byte
	if npduEnd > ldataMinSize {
		// Long frame: data bytes follow the APCI octet.
		payload = make([]byte, npduEnd-ldataMinSize)
		copy(payload, ldata[ldataMinSize:npduEnd])
	} else if apci == APCIGroupWrite || apci == APCIGroupResponse {
		// Short frame: value in the lower 6 bits of the APCI octet.
		payload = []byte{ldata[8] & sixBitMax}
	}

	return Message{
		Code:        code,
		Control1:    ldata[0],
		Control2:    ldata[1],
		Source:      knx.IndividualAddressFromUint16(uint16(ldata[2])<<8 | uint16(ldata[3])),
		Destination: knx.GroupAddressFromUint16(uint16(ldata[4])<<8 | uint16(ldata[5])),
		APCI:        apci,
		Data:        payload,
		Timestamp:   time.Now(),
	}, nil
}

// IsGroupAddressed returns true if the destination is a group address.
func (m Message) IsGroupAddressed() bool {
	return m.Control2&0x80 != 0
}

// IsWrite returns true if this is a group write telegram.
func (m Message) IsWrite() bool {
	return m.APCI == APCIGroupWrite
}

// IsRead returns true if this is a group read request.
func (m Message) IsRead() bool {
	return m.APCI == APCIGroupRead
}

// IsResponse returns true if this is a group read response.
func (m Message) IsResponse() bool {
	return m.APCI == APCIGroupResponse
}

// String returns a human-readable representation of the message.
func (m Message) String() string {
	apciStr := "UNKNOWN"
	switch m.APCI {
	case APCIGroupRead:
		apciStr = "READ"
	case APCIGroupResponse:
		apciStr = "RESPONSE"
	case APCIGroupWrite:
		apciStr = "WRITE"
	}

	return fmt.Sprintf("Message{%s, Src:%s, GA:%s, APCI:%s, Data:%X}",
		m.Code, m.Source, m.Destination, apciStr, m.Data)
}
