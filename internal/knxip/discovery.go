package knxip

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/nerrad567/gray-logic-knxip/internal/knx"
)

// Discovery constants.
const (
	// MulticastAddr is the KNXnet/IP system setup multicast group.
	MulticastAddr = "224.0.23.12"

	// searchResponseMinSize is header + HPAI.
	searchResponseMinSize = HeaderSize + hpaiSize

	// defaultDiscoveryTimeout bounds how long Discover listens for
	// responses when the config does not say.
	defaultDiscoveryTimeout = 3 * time.Second

	// dibTypeDeviceInfo is the description type code of the device
	// information DIB in a SEARCH_RESPONSE.
	dibTypeDeviceInfo = 0x01

	// deviceInfoDIBSize is the fixed size of the device info DIB.
	deviceInfoDIBSize = 54

	// deviceInfoIAOffset is where the KNX individual address sits
	// inside the device info DIB.
	deviceInfoIAOffset = 4

	// deviceInfoNameOffset is where the 30-byte friendly name starts.
	deviceInfoNameOffset = 24
)

// Gateway describes a KNXnet/IP gateway found during discovery.
// IndividualAddress and Name come from the device info DIB and are
// zero values when the gateway sent none.
type Gateway struct {
	Addr              [4]byte
	Port              uint16
	IndividualAddress knx.IndividualAddress
	Name              string
}

// String returns the gateway endpoint in host:port form.
func (g Gateway) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", g.Addr[0], g.Addr[1], g.Addr[2], g.Addr[3], g.Port)
}

// BuildSearchRequest builds a SEARCH_REQUEST announcing the local
// endpoint gateways should respond to. The frame is always 14 bytes.
func BuildSearchRequest(local HPAI) ([]byte, error) {
	return BuildFrame(ServiceSearchRequest, local.Encode())
}

// ParseSearchResponse parses a complete SEARCH_RESPONSE datagram. The
// control endpoint HPAI is mandatory; if a device info DIB follows it,
// the gateway's individual address and friendly name are extracted
// from it. Other DIB types (supported services) are skipped.
//
// Parameters:
//   - data: Raw datagram bytes
//
// Returns:
//   - Gateway: Responding gateway endpoint
//   - error: If the datagram is not a valid search response
func ParseSearchResponse(data []byte) (Gateway, error) {
	frame, err := ParseFrame(data)
	if err != nil {
		return Gateway{}, err
	}
	if frame.Service != ServiceSearchResponse {
		return Gateway{}, fmt.Errorf("%w: got %s, expected SEARCH_RESPONSE", ErrHeaderMismatch, frame.Service)
	}

	h, err := ParseHPAI(frame.Body)
	if err != nil {
		return Gateway{}, err
	}

	gw := Gateway{Addr: h.Addr, Port: h.Port}
	parseDeviceInfo(frame.Body[hpaiSize:], &gw)
	return gw, nil
}

// parseDeviceInfo walks the DIB blocks after the HPAI and fills in the
// individual address and friendly name from the device info DIB.
// Malformed or absent DIBs leave the gateway untouched; the control
// endpoint alone is enough to connect.
func parseDeviceInfo(dibs []byte, gw *Gateway) {
	for len(dibs) >= 2 {
		dibLen := int(dibs[0])
		if dibLen < 2 || dibLen > len(dibs) {
			return
		}
		if dibs[1] == dibTypeDeviceInfo && dibLen >= deviceInfoDIBSize {
			ia := binary.BigEndian.Uint16(dibs[deviceInfoIAOffset : deviceInfoIAOffset+2])
			gw.IndividualAddress = knx.IndividualAddressFromUint16(ia)

			name := dibs[deviceInfoNameOffset:deviceInfoDIBSize]
			if i := bytes.IndexByte(name, 0); i >= 0 {
				name = name[:i]
			}
			gw.Name = string(name)
			return
		}
		dibs = dibs[dibLen:]
	}
}

// CalculateBroadcast returns the directed broadcast address for an
// IPv4 network, e.g. 192.168.1.0/24 gives 192.168.1.255.
func CalculateBroadcast(ip [4]byte, prefixLen uint8) [4]byte {
	if prefixLen > 32 {
		prefixLen = 32
	}

	addr := binary.BigEndian.Uint32(ip[:])
	var mask uint32
	if prefixLen > 0 {
		mask = ^uint32(0) << (32 - prefixLen)
	}

	var out [4]byte
	binary.BigEndian.PutUint32(out[:], addr|^mask)
	return out
}

// DiscoveryConfig controls gateway discovery.
type DiscoveryConfig struct {
	// LocalIP is the IPv4 address announced in the search request. When
	// zero, the first routable IPv4 address of the host is used.
	LocalIP [4]byte

	// PrefixLen enables an additional directed broadcast probe for
	// networks where multicast is filtered. Zero disables it.
	PrefixLen uint8

	// Timeout bounds how long to collect responses.
	Timeout time.Duration
}

// Discover sends SEARCH_REQUESTs and collects responding gateways.
//
// The request goes to the KNX multicast group and, when PrefixLen is
// set, to the subnet broadcast address as well. All responses arriving
// within the timeout are collected and deduplicated.
//
// Parameters:
//   - ctx: Cancels the listen loop early
//   - cfg: Discovery options
//
// Returns:
//   - []Gateway: Gateways that responded, in arrival order
//   - error: Socket failures; an empty result with nil error means
//     nothing answered
func Discover(ctx context.Context, cfg DiscoveryConfig) ([]Gateway, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultDiscoveryTimeout
	}

	localIP := cfg.LocalIP
	if localIP == ([4]byte{}) {
		ip, err := routableIPv4()
		if err != nil {
			return nil, err
		}
		localIP = ip
	}

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer conn.Close()

	localPort := uint16(conn.LocalAddr().(*net.UDPAddr).Port) //nolint:gosec // port fits uint16

	request, err := BuildSearchRequest(HPAI{Addr: localIP, Port: localPort})
	if err != nil {
		return nil, err
	}

	targets := []net.Addr{
		&net.UDPAddr{IP: net.ParseIP(MulticastAddr), Port: DefaultPort},
	}
	if cfg.PrefixLen > 0 {
		bcast := CalculateBroadcast(localIP, cfg.PrefixLen)
		targets = append(targets, &net.UDPAddr{IP: net.IP(bcast[:]), Port: DefaultPort})
	}

	for _, target := range targets {
		if _, err := conn.WriteTo(request, target); err != nil {
			return nil, fmt.Errorf("%w: search request to %s: %w", ErrTransport, target, err)
		}
	}

	deadline := time.Now().Add(timeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	type endpoint struct {
		addr [4]byte
		port uint16
	}

	var gateways []Gateway
	seen := make(map[endpoint]bool)
	buf := make([]byte, MaxFrameSize)

	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			// Deadline or cancellation ends collection; whatever was
			// gathered so far is the result.
			if ctx.Err() != nil {
				return gateways, ctx.Err()
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return gateways, nil
			}
			return gateways, fmt.Errorf("%w: %w", ErrTransport, err)
		}

		gw, err := ParseSearchResponse(buf[:n])
		if err != nil {
			// Unrelated or malformed datagrams are skipped.
			continue
		}
		key := endpoint{addr: gw.Addr, port: gw.Port}
		if !seen[key] {
			seen[key] = true
			gateways = append(gateways, gw)
		}
	}
}

// routableIPv4 returns the first non-loopback IPv4 address of the host.
func routableIPv4() ([4]byte, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return [4]byte{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			var out [4]byte
			copy(out[:], ip4)
			return out, nil
		}
	}
	return [4]byte{}, fmt.Errorf("%w: no routable IPv4 address found", ErrTransport)
}
