package link

import (
	"net"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

// hostPortMatcher is adapted from the source tool's multi-port address
// parser (used there to match "host:min-max" port ranges for KCP
// listeners); this protocol has exactly one server port, so it is trimmed
// to a single-port matcher.
var hostPortMatcher = regexp.MustCompile(`^(.*):([0-9]{1,5})$`)

// ParseHostPort splits "host:port" into a UDP address, rejecting anything
// outside the valid port range. Client.SetServerHostPort uses it, which is
// how the client CLI's server address is parsed.
func ParseHostPort(addr string) (*net.UDPAddr, error) {
	matches := hostPortMatcher.FindStringSubmatch(addr)
	if len(matches) != 3 {
		return nil, errors.Errorf("link: malformed address %q", addr)
	}

	port, err := strconv.Atoi(matches[2])
	if err != nil || port == 0 || port > 65535 {
		return nil, errors.Errorf("link: invalid port in address %q", addr)
	}

	ip := net.ParseIP(matches[1])
	if ip == nil {
		ips, err := net.LookupIP(matches[1])
		if err != nil || len(ips) == 0 {
			return nil, errors.Wrapf(err, "link: cannot resolve host in address %q", addr)
		}
		ip = ips[0]
	}

	return &net.UDPAddr{IP: ip, Port: port}, nil
}

// ipv4ToUint32 converts an IPv4 address to its big-endian uint32
// representation, the client-identity scheme this protocol uses (see
// SPEC_FULL.md §17.3 for the known limitation this carries forward).
func ipv4ToUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
}

// uint32ToIPv4 is the inverse of ipv4ToUint32, used when an endpoint needs to
// report its assigned id back as a dotted address.
func uint32ToIPv4(v uint32) net.IP {
	return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// loopbackID is the IPv4-as-u32 identity of 127.0.0.1, used by the client to
// eagerly self-assign its id when connecting to a loopback server (see
// Client.TryOpenConnection).
var loopbackID = ipv4ToUint32(net.IPv4(127, 0, 0, 1))

// FormatClientID renders a client id back as the dotted IPv4 address it was
// derived from, for logging (see SPEC_FULL.md §17.3 for the limits of using
// the id as a client identity).
func FormatClientID(id uint32) string {
	return uint32ToIPv4(id).String()
}
