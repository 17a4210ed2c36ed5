package link

import (
	"strconv"
	"sync/atomic"
)

// Stats are endpoint-wide observational counters. They never participate in
// any protocol invariant; they exist purely to back the CLI's periodic stats
// log (see std.StatsLogger), replacing the KCP SNMP table the source tool
// collected since KCP itself is not part of this protocol.
type Stats struct {
	FramesReceived atomic.Uint64
	FramesDropped  atomic.Uint64
	BytesIn        atomic.Uint64
	BytesOut       atomic.Uint64

	// OpenClients is maintained by a Server's admission/disconnect/timeout
	// paths (see server.go); it stays at zero on a Client endpoint.
	OpenClients atomic.Int64
}

// Snapshot is a point-in-time copy of Stats suitable for logging.
type Snapshot struct {
	FramesReceived uint64
	FramesDropped  uint64
	BytesIn        uint64
	BytesOut       uint64
	OpenClients    int64
}

// Header names the Snapshot fields in the order Row emits them, for a CSV
// writer's header row.
func (Snapshot) Header() []string {
	return []string{"FramesReceived", "FramesDropped", "BytesIn", "BytesOut", "OpenClients"}
}

// Row renders the snapshot as the string fields of a single CSV row.
func (s Snapshot) Row() []string {
	return []string{
		strconv.FormatUint(s.FramesReceived, 10),
		strconv.FormatUint(s.FramesDropped, 10),
		strconv.FormatUint(s.BytesIn, 10),
		strconv.FormatUint(s.BytesOut, 10),
		strconv.FormatInt(s.OpenClients, 10),
	}
}

// Snapshot takes a point-in-time copy of s suitable for logging or a CSV row.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		FramesReceived: s.FramesReceived.Load(),
		FramesDropped:  s.FramesDropped.Load(),
		BytesIn:        s.BytesIn.Load(),
		BytesOut:       s.BytesOut.Load(),
		OpenClients:    s.OpenClients.Load(),
	}
}
