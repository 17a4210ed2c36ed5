package link

import (
	"os"
	"testing"
)

// TestMain stubs the public-IP HTTP lookup so the test suite never makes a
// real network call; endpoint identity in tests comes entirely from the
// loopback address each Client dials.
func TestMain(m *testing.M) {
	ResolvePublicIPv4 = func() uint32 { return 0 }
	os.Exit(m.Run())
}
