package knxip

import (
	"bytes"
	"errors"
	"testing"
)

// ─── CONNECT ───────────────────────────────────────────────────────

func TestBuildConnectRequest(t *testing.T) {
	local := HPAI{Addr: [4]byte{192, 168, 1, 50}, Port: 3671}
	frame, err := BuildConnectRequest(local, local)
	if err != nil {
		t.Fatalf("BuildConnectRequest() error = %v", err)
	}

	want := []byte{
		0x06, 0x10, 0x02, 0x05, 0x00, 0x1A, // header, total 26
		0x08, 0x01, 192, 168, 1, 50, 0x0E, 0x57, // control HPAI
		0x08, 0x01, 192, 168, 1, 50, 0x0E, 0x57, // data HPAI
		0x04, 0x04, 0x02, 0x00, // CRI: tunnel, link layer
	}
	if !bytes.Equal(frame, want) {
		t.Errorf("BuildConnectRequest() = % X, want % X", frame, want)
	}
}

func TestBuildConnectRequestNATMode(t *testing.T) {
	frame, err := BuildConnectRequest(HPAI{}, HPAI{})
	if err != nil {
		t.Fatalf("BuildConnectRequest() error = %v", err)
	}
	if len(frame) != 26 {
		t.Fatalf("BuildConnectRequest() length = %d, want 26", len(frame))
	}
	// Both HPAIs must be 0.0.0.0:0 so the gateway replies to the
	// datagram source.
	for _, off := range []int{6, 14} {
		if frame[off] != 0x08 || frame[off+1] != 0x01 {
			t.Errorf("HPAI at %d has framing % X, want 08 01", off, frame[off:off+2])
		}
		for i := off + 2; i < off+8; i++ {
			if frame[i] != 0 {
				t.Errorf("HPAI at %d not zeroed: % X", off, frame[off:off+8])
				break
			}
		}
	}
}

func TestParseConnectResponse(t *testing.T) {
	tests := []struct {
		name    string
		body    []byte
		want    ConnectResponse
		wantErr error
	}{
		{
			name: "accepted",
			body: []byte{0x05, 0x00, 0x08, 0x01, 192, 168, 1, 10, 0x0E, 0x57, 0x04, 0x04, 0x02, 0x00},
			want: ConnectResponse{
				Channel: 5,
				Status:  StatusNoError,
				Data:    HPAI{Addr: [4]byte{192, 168, 1, 10}, Port: 3671},
			},
		},
		{
			name: "refused no more connections",
			body: []byte{0x00, 0x24},
			want: ConnectResponse{Channel: 0, Status: StatusNoMoreConnections},
		},
		{
			name:    "empty body",
			body:    []byte{},
			wantErr: ErrBufferTooSmall,
		},
		{
			name:    "accepted but truncated",
			body:    []byte{0x05, 0x00, 0x08, 0x01},
			wantErr: ErrBufferTooSmall,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConnectResponse(tt.body)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ParseConnectResponse() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseConnectResponse() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseConnectResponse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// ─── CONNECTIONSTATE / DISCONNECT ──────────────────────────────────

func TestBuildConnStateRequest(t *testing.T) {
	local := HPAI{Addr: [4]byte{10, 0, 0, 2}, Port: 50000}
	frame, err := BuildConnStateRequest(0x15, local)
	if err != nil {
		t.Fatalf("BuildConnStateRequest() error = %v", err)
	}

	want := []byte{
		0x06, 0x10, 0x02, 0x07, 0x00, 0x10, // header, total 16
		0x15, 0x00, // channel, reserved
		0x08, 0x01, 10, 0, 0, 2, 0xC3, 0x50, // control HPAI
	}
	if !bytes.Equal(frame, want) {
		t.Errorf("BuildConnStateRequest() = % X, want % X", frame, want)
	}
}

func TestBuildDisconnectRequest(t *testing.T) {
	frame, err := BuildDisconnectRequest(0x2A, HPAI{})
	if err != nil {
		t.Fatalf("BuildDisconnectRequest() error = %v", err)
	}
	if len(frame) != 16 {
		t.Errorf("BuildDisconnectRequest() length = %d, want 16", len(frame))
	}
	if frame[2] != 0x02 || frame[3] != 0x09 {
		t.Errorf("service = % X, want 02 09", frame[2:4])
	}
	if frame[6] != 0x2A {
		t.Errorf("channel = 0x%02X, want 0x2A", frame[6])
	}
}

func TestParseConnStateResponse(t *testing.T) {
	channel, status, err := ParseConnStateResponse([]byte{0x05, 0x21})
	if err != nil {
		t.Fatalf("ParseConnStateResponse() error = %v", err)
	}
	if channel != 5 || status != StatusConnectionID {
		t.Errorf("got channel=%d status=%v, want channel=5 status=E_CONNECTION_ID", channel, status)
	}

	if _, _, err := ParseConnStateResponse([]byte{0x05}); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("short body error = %v, want ErrBufferTooSmall", err)
	}
}

func TestParseDisconnectResponse(t *testing.T) {
	channel, status, err := ParseDisconnectResponse([]byte{0x07, 0x00})
	if err != nil {
		t.Fatalf("ParseDisconnectResponse() error = %v", err)
	}
	if channel != 7 || status != StatusNoError {
		t.Errorf("got channel=%d status=%v, want channel=7 status=E_NO_ERROR", channel, status)
	}
}

// ─── TUNNELING ─────────────────────────────────────────────────────

func TestBuildTunnelingRequest(t *testing.T) {
	cemi := []byte{0x11, 0x00, 0xBC, 0xE0, 0x11, 0x01, 0x0A, 0x03, 0x02, 0x00, 0x81}
	frame, err := BuildTunnelingRequest(0x05, 0x07, cemi)
	if err != nil {
		t.Fatalf("BuildTunnelingRequest() error = %v", err)
	}

	wantPrefix := []byte{
		0x06, 0x10, 0x04, 0x20, 0x00, 0x15, // header, total 21
		0x04, 0x05, 0x07, 0x00, // connection header
	}
	if !bytes.Equal(frame[:10], wantPrefix) {
		t.Errorf("frame prefix = % X, want % X", frame[:10], wantPrefix)
	}
	if !bytes.Equal(frame[10:], cemi) {
		t.Errorf("cEMI payload = % X, want % X", frame[10:], cemi)
	}
}

func TestParseTunnelingRequest(t *testing.T) {
	body := []byte{0x04, 0x05, 0x03, 0x00, 0x29, 0x00, 0xBC, 0xE0}
	req, err := ParseTunnelingRequest(body)
	if err != nil {
		t.Fatalf("ParseTunnelingRequest() error = %v", err)
	}
	if req.Channel != 5 || req.Sequence != 3 {
		t.Errorf("got channel=%d sequence=%d, want channel=5 sequence=3", req.Channel, req.Sequence)
	}
	if !bytes.Equal(req.CEMI, []byte{0x29, 0x00, 0xBC, 0xE0}) {
		t.Errorf("cEMI = % X, want 29 00 BC E0", req.CEMI)
	}

	if _, err := ParseTunnelingRequest([]byte{0x04, 0x05}); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("short body error = %v, want ErrBufferTooSmall", err)
	}
}

func TestBuildTunnelingAck(t *testing.T) {
	frame, err := BuildTunnelingAck(0x05, 0x03, StatusNoError)
	if err != nil {
		t.Fatalf("BuildTunnelingAck() error = %v", err)
	}

	want := []byte{0x06, 0x10, 0x04, 0x21, 0x00, 0x0B, 0x04, 0x05, 0x03, 0x00, 0x00}
	if !bytes.Equal(frame, want) {
		t.Errorf("BuildTunnelingAck() = % X, want % X", frame, want)
	}
}

func TestParseTunnelingAck(t *testing.T) {
	tests := []struct {
		name    string
		body    []byte
		want    TunnelingAck
		wantErr error
	}{
		{
			name: "ok",
			body: []byte{0x04, 0x05, 0x03, 0x00, 0x00},
			want: TunnelingAck{Channel: 5, Sequence: 3, Status: StatusNoError},
		},
		{
			name: "tunneling layer error",
			body: []byte{0x04, 0x05, 0x03, 0x00, 0x29},
			want: TunnelingAck{Channel: 5, Sequence: 3, Status: StatusTunnelingLayer},
		},
		{
			name:    "too short",
			body:    []byte{0x04, 0x05, 0x03, 0x00},
			wantErr: ErrBufferTooSmall,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTunnelingAck(tt.body)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ParseTunnelingAck() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTunnelingAck() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseTunnelingAck() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStatusCodeString(t *testing.T) {
	tests := []struct {
		code StatusCode
		want string
	}{
		{StatusNoError, "E_NO_ERROR"},
		{StatusNoMoreConnections, "E_NO_MORE_CONNECTIONS"},
		{StatusTunnelingLayer, "E_TUNNELING_LAYER"},
		{StatusCode(0x55), "E_UNKNOWN(0x55)"},
	}

	for _, tt := range tests {
		if got := tt.code.String(); got != tt.want {
			t.Errorf("StatusCode(0x%02X).String() = %q, want %q", uint8(tt.code), got, tt.want)
		}
	}
}
