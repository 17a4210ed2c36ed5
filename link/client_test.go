package link

import (
	"net"
	"testing"
	"time"
)

func TestClientSendToServerWithoutAddressFails(t *testing.T) {
	c := NewClient()
	if err := c.SendToServer(DataFrame{Payload: []byte("x")}); err == nil {
		t.Fatalf("expected error sending without a configured server address")
	}
}

func TestClientTryOpenConnectionWithoutAddressFails(t *testing.T) {
	c := NewClient()
	if c.TryOpenConnection() {
		t.Fatalf("expected TryOpenConnection to fail without a server address")
	}
}

func TestClientSelfClosesOnTimeoutWithoutNotifyingServer(t *testing.T) {
	server := newTestServer(t, nil)
	client := newTestClient(t, server.Endpoint().Port())
	client.Endpoint().SetTimeout(0.2)
	client.Endpoint().SetUpdateInterval(200)

	var closeReason string
	client.Endpoint().OnConnectionClose(func(reason string) { closeReason = reason })

	if !client.TryOpenConnection() {
		t.Fatalf("client failed to connect")
	}
	waitUntil(t, time.Second, client.Endpoint().ConnectionOpen)

	waitUntil(t, 2*time.Second, func() bool { return !client.Endpoint().ReceivingPackets() })
	if closeReason != "Timedout" {
		t.Fatalf("expected close reason Timedout, got %q", closeReason)
	}

	// The server never received a ConnectionClose frame, so it should time
	// the client out independently rather than seeing an immediate close.
	waitUntil(t, 3*time.Second, func() bool { return server.ClientsSize() == 0 })
}

func TestClientGracefulCloseNotifiesServer(t *testing.T) {
	server := newTestServer(t, nil)
	client := newTestClient(t, server.Endpoint().Port())

	var disconnectReason string
	server.OnClientDisconnected(func(id uint32, reason string) { disconnectReason = reason })

	if !client.TryOpenConnection() {
		t.Fatalf("client failed to connect")
	}
	waitUntil(t, time.Second, client.Endpoint().ConnectionOpen)
	waitUntil(t, time.Second, func() bool { return server.ClientsSize() == 1 })

	client.CloseConnection("bye")
	waitUntil(t, time.Second, func() bool { return server.ClientsSize() == 0 })
	if disconnectReason != "bye" {
		t.Fatalf("expected server to observe reason %q, got %q", "bye", disconnectReason)
	}
}

func TestClientReactsToServerInitiatedClose(t *testing.T) {
	server := newTestServer(t, nil)
	client := newTestClient(t, server.Endpoint().Port())

	if !client.TryOpenConnection() {
		t.Fatalf("client failed to connect")
	}
	waitUntil(t, time.Second, client.Endpoint().ConnectionOpen)
	waitUntil(t, time.Second, func() bool { return server.ClientsSize() == 1 })

	var closeReason string
	client.Endpoint().OnConnectionClose(func(reason string) { closeReason = reason })

	ok := server.DisconnectClient(client.Endpoint().ID(), "kicked")
	if !ok {
		t.Fatalf("DisconnectClient reported no such client")
	}

	waitUntil(t, time.Second, func() bool { return !client.Endpoint().ConnectionOpen() })
	if closeReason != "kicked" {
		t.Fatalf("expected client to observe reason %q, got %q", "kicked", closeReason)
	}
}

func TestClientCloseConnectionIsIdempotent(t *testing.T) {
	server := newTestServer(t, nil)
	client := newTestClient(t, server.Endpoint().Port())

	if !client.TryOpenConnection() {
		t.Fatalf("client failed to connect")
	}
	waitUntil(t, time.Second, client.Endpoint().ConnectionOpen)

	var closes int
	client.Endpoint().OnConnectionClose(func(reason string) { closes++ })

	client.CloseConnection("first")
	client.CloseConnection("second")

	Drain()
	if closes != 1 {
		t.Fatalf("expected exactly one close event, got %d", closes)
	}
}

func TestClientSetServerAddrNoOpWhileOpen(t *testing.T) {
	server := newTestServer(t, nil)
	client := newTestClient(t, server.Endpoint().Port())

	if !client.TryOpenConnection() {
		t.Fatalf("client failed to connect")
	}
	waitUntil(t, time.Second, client.Endpoint().ConnectionOpen)

	other := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 9), Port: 1}
	client.SetServerAddr(other)
	if client.ServerIP().Equal(other.IP) {
		t.Fatalf("SetServerAddr should be a no-op while the connection is open")
	}
}
