package link

import (
	"net"
	"testing"
)

func TestParseHostPortValid(t *testing.T) {
	addr, err := ParseHostPort("127.0.0.1:29900")
	if err != nil {
		t.Fatalf("ParseHostPort: %v", err)
	}
	if !addr.IP.Equal(net.IPv4(127, 0, 0, 1)) || addr.Port != 29900 {
		t.Fatalf("unexpected addr: %+v", addr)
	}
}

func TestParseHostPortRejectsMalformed(t *testing.T) {
	cases := []string{"", "no-port-here", "127.0.0.1:0", "127.0.0.1:70000", "127.0.0.1"}
	for _, c := range cases {
		if _, err := ParseHostPort(c); err == nil {
			t.Fatalf("ParseHostPort(%q): expected error", c)
		}
	}
}

func TestIPv4Uint32RoundTrip(t *testing.T) {
	ip := net.IPv4(192, 168, 1, 42)
	v := ipv4ToUint32(ip)
	back := uint32ToIPv4(v)
	if !back.Equal(ip) {
		t.Fatalf("round trip mismatch: got %v, want %v", back, ip)
	}
}

func TestFormatClientID(t *testing.T) {
	v := ipv4ToUint32(net.IPv4(10, 0, 0, 1))
	if got, want := FormatClientID(v), "10.0.0.1"; got != want {
		t.Fatalf("FormatClientID = %q, want %q", got, want)
	}
}

func TestLoopbackID(t *testing.T) {
	if uint32ToIPv4(loopbackID).String() != "127.0.0.1" {
		t.Fatalf("loopbackID does not decode back to 127.0.0.1")
	}
}
