package link

import (
	"net"
	"sync"

	"github.com/pkg/errors"
)

// Client is the dial-out endpoint role: it targets a single server address,
// drives the connection-request/confirm handshake (with an optional
// password challenge round-trip), and tracks only its own liveness rather
// than a whole client table (see SPEC_FULL.md §9).
type Client struct {
	ep *Endpoint

	mu                  sync.RWMutex
	serverAddr          *net.UDPAddr
	needsPassword       bool
	wrongPassword       bool
	timeSinceLastPacket float64
	suppressCloseFrame  bool

	onPasswordRequest   *Signal
	onServerPortChanged *Signal
	onServerIPChanged   *Signal
}

// NewClient constructs a Client ready to be pointed at a server address.
func NewClient() *Client {
	c := &Client{
		onPasswordRequest:   NewSignal(Deferred, false),
		onServerPortChanged: NewSignal(Deferred, true),
		onServerIPChanged:   NewSignal(Deferred, true),
	}
	c.ep = newEndpoint()
	c.ep.role = c
	return c
}

// Endpoint exposes the shared getters/setters described in SPEC_FULL.md §12.
func (c *Client) Endpoint() *Endpoint { return c.ep }

// --- server address ------------------------------------------------------

// SetServerAddr points the client at a server. Permitted only while closed,
// same as every other endpoint setter (SPEC_FULL.md §7); a call while open
// is a no-op.
func (c *Client) SetServerAddr(addr *net.UDPAddr) {
	if c.ep.ConnectionOpen() {
		return
	}

	c.mu.Lock()
	old := c.serverAddr
	c.serverAddr = addr
	c.mu.Unlock()

	if addr == nil {
		return
	}
	if old == nil || !old.IP.Equal(addr.IP) {
		c.onServerIPChanged.Emit(addr.IP)
	}
	if old == nil || old.Port != addr.Port {
		c.onServerPortChanged.Emit(uint16(addr.Port))
	}
}

// SetServerHostPort parses "host:port" and calls SetServerAddr.
func (c *Client) SetServerHostPort(hostPort string) error {
	addr, err := ParseHostPort(hostPort)
	if err != nil {
		return err
	}
	c.SetServerAddr(addr)
	return nil
}

func (c *Client) currentServerAddr() *net.UDPAddr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverAddr
}

func (c *Client) ServerIP() net.IP {
	addr := c.currentServerAddr()
	if addr == nil {
		return nil
	}
	return addr.IP
}

func (c *Client) ServerPort() uint16 {
	addr := c.currentServerAddr()
	if addr == nil {
		return 0
	}
	return uint16(addr.Port)
}

// --- lifecycle -----------------------------------------------------------

// TryOpenConnection binds an ephemeral local port (if not already receiving)
// and sends a ConnectionRequest to the configured server address. It
// returns false without sending anything if no server address is set, or if
// the send itself fails; it does not mean the connection is open — that
// happens only once a ConnectionConfirm arrives (SPEC_FULL.md §9).
func (c *Client) TryOpenConnection() bool {
	addr := c.currentServerAddr()
	if addr == nil {
		return false
	}

	if !c.ep.ReceivingPackets() {
		bind := &net.UDPAddr{IP: net.IPv4zero, Port: 0}
		if err := c.ep.startWorkers(bind); err != nil {
			return false
		}
	}

	// A loopback server runs on this same host; assign the well-known
	// loopback identity eagerly instead of waiting on a confirm that will
	// carry the same value anyway (SPEC_FULL.md §17.3).
	if addr.IP.IsLoopback() {
		c.ep.mu.Lock()
		c.ep.id = loopbackID
		c.ep.mu.Unlock()
	}

	return c.ep.send(ConnectionRequestFrame{}, addr) == nil
}

// CloseConnection runs the normal graceful close: if open, a ConnectionClose
// frame carrying reason is sent to the server before the socket comes down.
func (c *Client) CloseConnection(reason string) {
	c.ep.close(reason)
}

// closeLocally tears the connection down without notifying the server, for
// the two cases the protocol defines that call for it: a local keep-alive
// timeout, and reacting to a ConnectionClose the server already sent us.
//
// Both callers run on one of the endpoint's own workers, which close()
// joins, so the teardown runs on a separate goroutine; further calls while
// it is under way are ignored.
func (c *Client) closeLocally(reason string) {
	c.mu.Lock()
	if c.suppressCloseFrame {
		c.mu.Unlock()
		return
	}
	c.suppressCloseFrame = true
	c.mu.Unlock()
	go func() {
		c.ep.close(reason)
		c.mu.Lock()
		c.suppressCloseFrame = false
		c.mu.Unlock()
	}()
}

// --- sending ---------------------------------------------------------------

// SendToServer sends f to the configured server address. It returns an
// error rather than panicking if no address has been set (SPEC_FULL.md §12).
func (c *Client) SendToServer(f Frame) error {
	addr := c.currentServerAddr()
	if addr == nil {
		return errors.New("link: send_to_server requires a server address")
	}
	return c.ep.send(f, addr)
}

// SetAndSendPassword stores the endpoint password (no-op while open, same
// gating as SetPassword) and immediately sends a Password frame to the
// server regardless of open/closed state, matching the retry flow in
// SPEC_FULL.md §9.
func (c *Client) SetAndSendPassword(secret string) {
	c.ep.SetPassword(secret)
	c.mu.Lock()
	c.wrongPassword = false
	c.mu.Unlock()
	_ = c.SendPasswordToServer()
}

// SendPasswordToServer resends the endpoint's currently configured password
// without changing it, for a caller retrying after WasIncorrectPassword.
func (c *Client) SendPasswordToServer() error {
	return c.SendToServer(PasswordFrame{Secret: c.ep.Password()})
}

// WasIncorrectPassword reports whether the server challenged us for a
// password a second time, meaning the last one we sent was rejected.
func (c *Client) WasIncorrectPassword() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.wrongPassword
}

// NeedsPassword reports whether the server has challenged this client for a
// password at all.
func (c *Client) NeedsPassword() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.needsPassword
}

func (c *Client) TimeSinceLastPacket() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timeSinceLastPacket
}

// --- events --------------------------------------------------------------

func (c *Client) OnPasswordRequest(fn func()) uint64 {
	return c.onPasswordRequest.Subscribe(func([]interface{}) { fn() })
}

func (c *Client) OnServerPortChanged(fn func(port uint16)) uint64 {
	return c.onServerPortChanged.Subscribe(func(args []interface{}) {
		fn(args[0].(uint16))
	})
}

func (c *Client) OnServerIPChanged(fn func(ip net.IP)) uint64 {
	return c.onServerIPChanged.Subscribe(func(args []interface{}) {
		fn(args[0].(net.IP))
	})
}

// --- Role implementation ---------------------------------------------------

func (c *Client) handleData(payload []byte, from *net.UDPAddr) {
	c.mu.Lock()
	c.timeSinceLastPacket = 0
	c.mu.Unlock()
	c.ep.onDataReceived.Emit(payload, ipv4ToUint32(from.IP))
}

func (c *Client) handleConnectionRequest(*net.UDPAddr) {
	// A client never accepts inbound connection requests.
}

func (c *Client) handleConnectionClose(reason string, _ *net.UDPAddr) {
	if reason == "" {
		reason = "Unknown"
	}
	c.closeLocally(reason)
}

func (c *Client) handleConnectionConfirm(id uint32, from *net.UDPAddr) {
	c.mu.Lock()
	c.timeSinceLastPacket = 0
	c.mu.Unlock()

	c.ep.mu.Lock()
	c.ep.open = true
	c.ep.connTime = 0
	c.ep.id = id
	c.ep.mu.Unlock()

	c.ep.onConnectionOpen.Emit()
}

func (c *Client) handlePasswordRequest(*net.UDPAddr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeSinceLastPacket = 0
	if c.needsPassword {
		c.wrongPassword = true
	}
	c.needsPassword = true
	c.onPasswordRequest.Emit()
}

func (c *Client) handlePassword(string, *net.UDPAddr) {
	// A client never receives its own password challenge back.
}

func (c *Client) handleUnknown([]byte, *net.UDPAddr) {}

func (c *Client) onTick(dt float64) {
	if !c.ep.ConnectionOpen() {
		return
	}

	c.mu.Lock()
	c.timeSinceLastPacket += dt
	expired := c.timeSinceLastPacket > c.ep.Timeout()
	c.mu.Unlock()

	if expired {
		c.closeLocally("Timedout")
	}
}

func (c *Client) onSecondTick() {}

func (c *Client) beforeClose(reason string) {
	c.mu.Lock()
	suppress := c.suppressCloseFrame
	c.mu.Unlock()
	if suppress {
		return
	}
	if !c.ep.ConnectionOpen() {
		return
	}
	if addr := c.currentServerAddr(); addr != nil {
		_ = c.ep.send(ConnectionCloseFrame{Reason: reason}, addr)
	}
}

func (c *Client) afterClose() {
	c.mu.Lock()
	c.serverAddr = nil
	c.needsPassword = false
	c.wrongPassword = false
	c.timeSinceLastPacket = 0
	c.suppressCloseFrame = false
	c.mu.Unlock()
}
