package link

import (
	"net"
	"sync"
	"sync/atomic"
)

// ClientRecord is the server's per-peer bookkeeping. Identity is the
// client's remote IPv4 address as a uint32 — a known limitation carried
// forward from the source design (see SPEC_FULL.md §17.3): treat ID as an
// opaque handle, not a reattachment-proof identity.
type ClientRecord struct {
	id   uint32
	addr *net.UDPAddr

	connectionTime      float64
	timeSinceLastPacket float64
	packetsThisInterval uint32
	packetsPerSecond    uint32
}

func (c *ClientRecord) ID() uint32                  { return c.id }
func (c *ClientRecord) Addr() *net.UDPAddr          { return c.addr }
func (c *ClientRecord) ConnectionTime() float64     { return c.connectionTime }
func (c *ClientRecord) TimeSinceLastPacket() float64 { return c.timeSinceLastPacket }
func (c *ClientRecord) PacketsPerSecond() uint32    { return c.packetsPerSecond }

// Server is the listener-style endpoint role: it accepts connection
// requests from many peers, holds one ClientRecord per admitted peer, and
// drives per-tick/per-second liveness bookkeeping across the whole table.
type Server struct {
	ep *Endpoint

	mu               sync.Mutex
	clients          map[uint32]*ClientRecord
	admissionAllowed atomic.Bool
	passwordRequired atomic.Bool

	onClientConnected    *Signal
	onClientDisconnected *Signal
}

// NewServer constructs a Server ready to be configured and opened.
// Admission is enabled by default, matching "accepting many peers" being
// the server's whole purpose; callers that want a closed door call
// AllowClientConnection(false) before TryOpenConnection.
func NewServer() *Server {
	s := &Server{
		clients:              make(map[uint32]*ClientRecord),
		onClientConnected:    NewSignal(Deferred, false),
		onClientDisconnected: NewSignal(Deferred, false),
	}
	s.ep = newEndpoint()
	s.ep.role = s
	s.admissionAllowed.Store(true)
	return s
}

// Endpoint exposes the shared getters/setters (SetPort, SetTimeout, ID,
// ConnectionOpen, ...) described in SPEC_FULL.md §12.
func (s *Server) Endpoint() *Endpoint { return s.ep }

// --- lifecycle -----------------------------------------------------------

// TryOpenConnection binds the configured port and starts accepting clients.
// It returns false (and leaves the endpoint closed) if the bind fails, e.g.
// because the port is already in use.
func (s *Server) TryOpenConnection() bool {
	s.ep.mu.RLock()
	port := s.ep.port
	s.ep.mu.RUnlock()

	addr := &net.UDPAddr{IP: net.IPv4zero, Port: int(port)}
	if err := s.ep.startWorkers(addr); err != nil {
		return false
	}

	s.ep.mu.Lock()
	s.ep.open = true
	s.ep.mu.Unlock()
	s.ep.onConnectionOpen.Emit()
	return true
}

// CloseConnection disconnects every client with reason "Server Closing",
// tears down the socket and workers, and fires connection_close with reason
// (or "Server Closing" when reason is empty). A second call is a no-op (invariant 8 in SPEC_FULL.md §15).
func (s *Server) CloseConnection(reason string) {
	if reason == "" {
		reason = "Server Closing"
	}
	s.ep.close(reason)
}

// --- admission control -----------------------------------------------------

func (s *Server) AllowClientConnection(allowed bool) {
	s.admissionAllowed.Store(allowed)
}

func (s *Server) AllowsClientConnection() bool {
	return s.admissionAllowed.Load()
}

// SetPasswordRequired toggles password admission. When a password is given
// it replaces the endpoint's current one, whatever the value of required
// (no-op while open, same as every other setter).
func (s *Server) SetPasswordRequired(required bool, password ...string) {
	s.ep.mu.Lock()
	if s.ep.open {
		s.ep.mu.Unlock()
		return
	}
	if len(password) > 0 {
		s.ep.password = password[0]
	}
	s.ep.mu.Unlock()
	s.passwordRequired.Store(required)
}

func (s *Server) PasswordRequired() bool { return s.passwordRequired.Load() }

// --- client table ----------------------------------------------------------

func (s *Server) ClientsSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Clients returns a read-only snapshot of the current client table.
func (s *Server) Clients() []*ClientRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ClientRecord, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out
}

// ClientData returns the record for id, or false if no such client exists.
func (s *Server) ClientData(id uint32) (*ClientRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	return c, ok
}

func (s *Server) DisconnectClient(id uint32, reason string) bool {
	s.mu.Lock()
	c, ok := s.clients[id]
	if ok {
		delete(s.clients, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	s.ep.Stats.OpenClients.Add(-1)
	_ = s.ep.send(ConnectionCloseFrame{Reason: reason}, c.addr)
	s.onClientDisconnected.Emit(id, reason)
	return true
}

func (s *Server) DisconnectAllClients(reason string) {
	s.mu.Lock()
	clients := make([]*ClientRecord, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[uint32]*ClientRecord)
	s.mu.Unlock()

	for _, c := range clients {
		s.ep.Stats.OpenClients.Add(-1)
		_ = s.ep.send(ConnectionCloseFrame{Reason: reason}, c.addr)
		s.onClientDisconnected.Emit(c.id, reason)
	}
}

// --- sending -----------------------------------------------------------

// SendToAll sends f to every client whose id is not in blacklist.
func (s *Server) SendToAll(f Frame, blacklist ...uint32) {
	skip := make(map[uint32]struct{}, len(blacklist))
	for _, id := range blacklist {
		skip[id] = struct{}{}
	}

	s.mu.Lock()
	addrs := make([]*net.UDPAddr, 0, len(s.clients))
	for id, c := range s.clients {
		if _, blocked := skip[id]; blocked {
			continue
		}
		addrs = append(addrs, c.addr)
	}
	s.mu.Unlock()

	for _, addr := range addrs {
		_ = s.ep.send(f, addr)
	}
}

// SendTo sends f to exactly one client, reporting whether it was found.
func (s *Server) SendTo(f Frame, id uint32) bool {
	s.mu.Lock()
	c, ok := s.clients[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	_ = s.ep.send(f, c.addr)
	return true
}

// --- events --------------------------------------------------------------

func (s *Server) OnClientConnected(fn func(id uint32)) uint64 {
	return s.onClientConnected.Subscribe(func(args []interface{}) {
		fn(args[0].(uint32))
	})
}

func (s *Server) OnClientDisconnected(fn func(id uint32, reason string)) uint64 {
	return s.onClientDisconnected.Subscribe(func(args []interface{}) {
		fn(args[0].(uint32), args[1].(string))
	})
}

// --- Role implementation ---------------------------------------------------

func (s *Server) admit(id uint32, addr *net.UDPAddr) *ClientRecord {
	c := &ClientRecord{id: id, addr: addr}
	s.mu.Lock()
	s.clients[id] = c
	s.mu.Unlock()
	s.ep.Stats.OpenClients.Add(1)
	s.onClientConnected.Emit(id)
	return c
}

func (s *Server) touch(id uint32) (*ClientRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, false
	}
	c.timeSinceLastPacket = 0
	c.packetsThisInterval++
	return c, true
}

func (s *Server) handleData(payload []byte, from *net.UDPAddr) {
	id := ipv4ToUint32(from.IP)
	if _, ok := s.touch(id); !ok {
		s.admitUnknownPeer(id, from)
		return
	}
	s.ep.onDataReceived.Emit(payload, id)
}

// admitUnknownPeer implements the Data/ConnectionRequest admission rule for
// a peer the server has no record of yet: open admission with no password
// required admits immediately; a required password defers admission behind
// a PasswordRequest challenge.
func (s *Server) admitUnknownPeer(id uint32, from *net.UDPAddr) {
	if !s.admissionAllowed.Load() {
		return
	}

	if s.passwordRequired.Load() {
		_ = s.ep.send(PasswordRequestFrame{}, from)
		return
	}

	s.admit(id, from)
	_ = s.ep.send(ConnectionConfirmFrame{ID: id}, from)
}

func (s *Server) handleConnectionRequest(from *net.UDPAddr) {
	id := ipv4ToUint32(from.IP)
	s.mu.Lock()
	c, known := s.clients[id]
	if known {
		c.timeSinceLastPacket = 0
	}
	s.mu.Unlock()

	if known {
		// Idempotent resend: the original confirm may have been lost.
		_ = s.ep.send(ConnectionConfirmFrame{ID: id}, from)
		return
	}
	s.admitUnknownPeer(id, from)
}

func (s *Server) handleConnectionClose(reason string, from *net.UDPAddr) {
	id := ipv4ToUint32(from.IP)
	s.mu.Lock()
	_, ok := s.clients[id]
	if ok {
		delete(s.clients, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.ep.Stats.OpenClients.Add(-1)
	if reason == "" {
		reason = "Unknown"
	}
	s.onClientDisconnected.Emit(id, reason)
}

func (s *Server) handleConnectionConfirm(uint32, *net.UDPAddr) {
	// A server never receives its own confirm frame back; unrecognized in
	// this role, routed nowhere.
}

func (s *Server) handlePasswordRequest(*net.UDPAddr) {
	// Only a client acts on a password challenge.
}

func (s *Server) handlePassword(secret string, from *net.UDPAddr) {
	id := ipv4ToUint32(from.IP)

	s.mu.Lock()
	if c, ok := s.clients[id]; ok {
		c.timeSinceLastPacket = 0
		s.mu.Unlock()
		_ = s.ep.send(ConnectionConfirmFrame{ID: id}, from)
		return
	}
	s.mu.Unlock()

	if !s.admissionAllowed.Load() {
		return
	}

	s.ep.mu.RLock()
	want := s.ep.password
	s.ep.mu.RUnlock()

	if passwordsEqual(secret, want) {
		s.admit(id, from)
		_ = s.ep.send(ConnectionConfirmFrame{ID: id}, from)
		return
	}
	_ = s.ep.send(PasswordRequestFrame{}, from)
}

func (s *Server) handleUnknown([]byte, *net.UDPAddr) {}

func (s *Server) onTick(dt float64) {
	timeout := s.ep.Timeout()

	s.mu.Lock()
	var expired []*ClientRecord
	for id, c := range s.clients {
		c.connectionTime += dt
		c.timeSinceLastPacket += dt
		if c.timeSinceLastPacket > timeout {
			expired = append(expired, c)
			delete(s.clients, id)
		}
	}
	s.mu.Unlock()

	for _, c := range expired {
		s.ep.Stats.OpenClients.Add(-1)
		_ = s.ep.send(ConnectionCloseFrame{Reason: "Timedout"}, c.addr)
		s.onClientDisconnected.Emit(c.id, "Timedout")
	}
}

func (s *Server) onSecondTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		c.packetsPerSecond = c.packetsThisInterval
		c.packetsThisInterval = 0
	}
}

func (s *Server) beforeClose(string) {
	s.DisconnectAllClients("Server Closing")
}

func (s *Server) afterClose() {
	s.mu.Lock()
	s.clients = make(map[uint32]*ClientRecord)
	s.mu.Unlock()
}
