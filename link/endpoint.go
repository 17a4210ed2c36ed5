package link

import (
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/xtaci/udpconn/std"
)

// Role supplies the six per-tag frame handlers, an unknown-frame handler,
// the tick/second-tick hooks and the close hooks an Endpoint needs. Server and Client each implement it over their
// own *Endpoint, replacing the source library's virtual-handler inheritance
// with a single dispatch function per tag (see SPEC_FULL.md §7).
type Role interface {
	handleData(payload []byte, from *net.UDPAddr)
	handleConnectionRequest(from *net.UDPAddr)
	handleConnectionClose(reason string, from *net.UDPAddr)
	handleConnectionConfirm(id uint32, from *net.UDPAddr)
	handlePasswordRequest(from *net.UDPAddr)
	handlePassword(secret string, from *net.UDPAddr)
	handleUnknown(raw []byte, from *net.UDPAddr)

	onTick(dt float64)
	onSecondTick()

	// beforeClose runs while the endpoint is still receiving, so it may send
	// role-specific close notifications (a broadcast for the server, a
	// single frame for the client).
	beforeClose(reason string)
	// afterClose resets role-specific state once the socket is down.
	afterClose()
}

// ResolvePublicIPv4 discovers the endpoint's public IPv4 address as a
// uint32, or returns 0 if it cannot be resolved within the deadline. It is a
// package variable so tests (and callers that cannot afford the up to one
// second construction stall) can replace it with a stub instead of making a
// real network call.
var ResolvePublicIPv4 = defaultResolvePublicIPv4

func defaultResolvePublicIPv4() uint32 {
	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get("https://api.ipify.org")
	if err != nil {
		return 0
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return 0
	}

	ip := net.ParseIP(string(body))
	if ip == nil {
		return 0
	}
	return ipv4ToUint32(ip)
}

// Endpoint is the role-agnostic networking object embedded by both Server
// and Client. It owns the UDP socket, the receiver/ticker workers, the
// keep-alive cadence, and every piece of shared mutable state the
// concurrency model requires to live behind one lock.
type Endpoint struct {
	role Role

	mu sync.RWMutex

	selfID uint32 // this process's own public-IPv4-as-u32, resolved once
	id     uint32 // current identity on the wire; client overwrites on confirm

	conn      *net.UDPConn
	port      uint16
	password  string
	timeout   float64 // seconds
	connTime  float64 // seconds, monotonic while open
	open      bool    // connection fully established (handshake complete)
	receiving bool    // workers running / socket bound

	sendHook    func()
	sendEnabled bool
	compress    bool

	tick *ticker
	stop chan struct{}
	wg   sync.WaitGroup

	secondAccum float64 // ticker-goroutine only, no lock needed

	Stats Stats

	onConnectionOpen    *Signal
	onConnectionClose   *Signal
	onDataReceived      *Signal
	onUpdateRateChanged *Signal
	onTimeoutChanged    *Signal
	onPortChanged       *Signal
	onPasswordChanged   *Signal
}

// newEndpoint builds the shared state common to both roles. role is wired
// in by the caller immediately after construction, once it has a pointer to
// this Endpoint.
func newEndpoint() *Endpoint {
	ep := &Endpoint{
		selfID:   ResolvePublicIPv4(),
		timeout:  10,
		tick:     newTicker(DefaultTickRate),
		sendEnabled: true,

		onConnectionOpen:    NewSignal(Deferred, false),
		onConnectionClose:   NewSignal(Deferred, false),
		onDataReceived:      NewSignal(Deferred, false),
		onUpdateRateChanged: NewSignal(Deferred, true),
		onTimeoutChanged:    NewSignal(Deferred, true),
		onPortChanged:       NewSignal(Deferred, true),
		onPasswordChanged:   NewSignal(Deferred, true),
	}
	ep.id = ep.selfID
	return ep
}

// --- configuration (no-op while open) ---------------------------------

func (ep *Endpoint) SetPort(port uint16) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.open {
		return
	}
	ep.port = port
	ep.onPortChanged.Emit(port)
}

func (ep *Endpoint) SetPassword(password string) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.open {
		return
	}
	ep.password = password
	ep.onPasswordChanged.Emit(password)
}

func (ep *Endpoint) SetTimeout(seconds float64) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.open {
		return
	}
	ep.timeout = seconds
	ep.onTimeoutChanged.Emit(seconds)
}

func (ep *Endpoint) SetUpdateInterval(ticksPerSecond float64) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.open {
		return
	}
	ep.tick.setRate(ticksPerSecond)
	ep.onUpdateRateChanged.Emit(ticksPerSecond)
}

func (ep *Endpoint) SetPacketSendHook(fn func()) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.open {
		return
	}
	ep.sendHook = fn
}

func (ep *Endpoint) SetSendingPackets(enabled bool) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.open {
		return
	}
	ep.sendEnabled = enabled
}

// SetCompression toggles optional snappy compression of Data frame
// payloads. Both ends must agree out of band (see SPEC_FULL.md §6); it is
// not negotiated on the wire.
func (ep *Endpoint) SetCompression(enabled bool) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.open {
		return
	}
	ep.compress = enabled
}

// --- observation --------------------------------------------------------

func (ep *Endpoint) ID() uint32 {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	return ep.id
}

func (ep *Endpoint) PublicIP() net.IP {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	if ep.selfID == 0 {
		return nil
	}
	return uint32ToIPv4(ep.selfID)
}

func (ep *Endpoint) LocalIP() net.IP {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	if ep.conn == nil {
		return nil
	}
	return ep.conn.LocalAddr().(*net.UDPAddr).IP
}

func (ep *Endpoint) Port() uint16 {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	return ep.port
}

func (ep *Endpoint) ConnectionTime() float64 {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	return ep.connTime
}

func (ep *Endpoint) ConnectionOpen() bool {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	return ep.open
}

func (ep *Endpoint) ReceivingPackets() bool {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	return ep.receiving
}

func (ep *Endpoint) SendingPackets() bool {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	return ep.sendEnabled
}

func (ep *Endpoint) Password() string {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	return ep.password
}

func (ep *Endpoint) UpdateInterval() float64 {
	return ep.tick.getRate()
}

func (ep *Endpoint) Timeout() float64 {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	return ep.timeout
}

// --- events --------------------------------------------------------------

// OnConnectionOpen subscribes to the moment this endpoint's connection
// opens: on the server side as soon as TryOpenConnection has bound its
// port, on the client side on receipt of ConnectionConfirm.
func (ep *Endpoint) OnConnectionOpen(fn func()) uint64 {
	return ep.onConnectionOpen.Subscribe(func([]interface{}) { fn() })
}

// OnConnectionClose subscribes to this endpoint's own teardown, fired once
// per teardown regardless of which side (or which reason) triggered it; a
// close on an endpoint that is already closed fires nothing.
func (ep *Endpoint) OnConnectionClose(fn func(reason string)) uint64 {
	return ep.onConnectionClose.Subscribe(func(args []interface{}) {
		fn(args[0].(string))
	})
}

// OnDataReceived subscribes to every admitted Data frame this endpoint
// receives, tagged with the sender's client id.
func (ep *Endpoint) OnDataReceived(fn func(payload []byte, from uint32)) uint64 {
	return ep.onDataReceived.Subscribe(func(args []interface{}) {
		fn(args[0].([]byte), args[1].(uint32))
	})
}

func (ep *Endpoint) OnUpdateRateChanged(fn func(ticksPerSecond float64)) uint64 {
	return ep.onUpdateRateChanged.Subscribe(func(args []interface{}) {
		fn(args[0].(float64))
	})
}

func (ep *Endpoint) OnTimeoutChanged(fn func(seconds float64)) uint64 {
	return ep.onTimeoutChanged.Subscribe(func(args []interface{}) {
		fn(args[0].(float64))
	})
}

func (ep *Endpoint) OnPortChanged(fn func(port uint16)) uint64 {
	return ep.onPortChanged.Subscribe(func(args []interface{}) {
		fn(args[0].(uint16))
	})
}

func (ep *Endpoint) OnPasswordChanged(fn func(password string)) uint64 {
	return ep.onPasswordChanged.Subscribe(func(args []interface{}) {
		fn(args[0].(string))
	})
}

// --- lifecycle plumbing shared by Server and Client ---------------------

// startWorkers binds bindAddr and starts the receiver and ticker goroutines.
// It is a no-op if the endpoint is already receiving.
func (ep *Endpoint) startWorkers(bindAddr *net.UDPAddr) error {
	ep.mu.Lock()
	if ep.receiving {
		ep.mu.Unlock()
		return nil
	}

	conn, err := net.ListenUDP("udp4", bindAddr)
	if err != nil {
		ep.mu.Unlock()
		return errors.Wrap(err, "link: bind failed")
	}

	ep.conn = conn
	ep.port = uint16(conn.LocalAddr().(*net.UDPAddr).Port)
	ep.stop = make(chan struct{})
	ep.connTime = 0
	ep.secondAccum = 0
	ep.receiving = true
	ep.mu.Unlock()

	ep.wg.Add(2)
	go ep.receiveLoop()
	go ep.tickLoop()
	return nil
}

func (ep *Endpoint) receiveLoop() {
	defer ep.wg.Done()
	buf := make([]byte, 65535)
	for {
		n, from, err := ep.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ep.stop:
				return
			default:
				log.Printf("link: receive error: %v", err)
				continue
			}
		}
		// The self-addressed datagram close() sends lands here; once a stop
		// has been requested nothing more is dispatched.
		select {
		case <-ep.stop:
			return
		default:
		}
		ep.dispatch(from, buf[:n])
	}
}

func (ep *Endpoint) dispatch(from *net.UDPAddr, datagram []byte) {
	ep.Stats.BytesIn.Add(uint64(len(datagram)))

	frame, err := Decode(datagram)
	if err != nil {
		ep.Stats.FramesDropped.Add(1)
		ep.role.handleUnknown(datagram, from)
		return
	}

	ep.Stats.FramesReceived.Add(1)
	switch f := frame.(type) {
	case DataFrame:
		payload := f.Payload
		ep.mu.RLock()
		compress := ep.compress
		ep.mu.RUnlock()
		if compress {
			if dec, derr := std.Decompress(payload); derr == nil {
				payload = dec
			}
		}
		ep.role.handleData(payload, from)
	case ConnectionRequestFrame:
		ep.role.handleConnectionRequest(from)
	case ConnectionCloseFrame:
		ep.role.handleConnectionClose(f.Reason, from)
	case ConnectionConfirmFrame:
		ep.role.handleConnectionConfirm(f.ID, from)
	case PasswordRequestFrame:
		ep.role.handlePasswordRequest(from)
	case PasswordFrame:
		ep.role.handlePassword(f.Secret, from)
	case UnknownFrame:
		ep.Stats.FramesDropped.Add(1)
		ep.role.handleUnknown(f.Raw, from)
	}
}

func (ep *Endpoint) tickLoop() {
	defer ep.wg.Done()
	ep.tick.run(ep.stop, func(dt time.Duration) {
		seconds := dt.Seconds()

		ep.mu.Lock()
		ep.connTime += seconds
		ep.mu.Unlock()

		ep.role.onTick(seconds)

		ep.secondAccum += seconds
		if ep.secondAccum >= 1.0 {
			ep.secondAccum -= 1.0
			ep.role.onSecondTick()
		}

		ep.mu.RLock()
		hook, enabled := ep.sendHook, ep.sendEnabled
		ep.mu.RUnlock()
		if enabled && hook != nil {
			hook()
		}
	})
}

// send transmits a single frame to addr, applying optional payload
// compression for Data frames.
func (ep *Endpoint) send(f Frame, addr *net.UDPAddr) error {
	if df, ok := f.(DataFrame); ok {
		ep.mu.RLock()
		compress := ep.compress
		ep.mu.RUnlock()
		if compress {
			df.Payload = std.Compress(df.Payload)
			f = df
		}
	}

	datagram, err := Encode(f)
	if err != nil {
		return errors.Wrap(err, "link: encode failed")
	}

	ep.mu.RLock()
	conn := ep.conn
	ep.mu.RUnlock()
	if conn == nil {
		return errors.New("link: send on a closed endpoint")
	}

	n, err := conn.WriteToUDP(datagram, addr)
	if err != nil {
		return errors.Wrap(err, "link: send failed")
	}
	ep.Stats.BytesOut.Add(uint64(n))
	return nil
}

// close runs the shared teardown sequence: signal, self-ping, join, close
// socket. reason is forwarded to role.beforeClose so it can emit whatever
// frame its protocol requires while the socket is still usable.
func (ep *Endpoint) close(reason string) {
	ep.mu.Lock()
	if !ep.receiving {
		ep.mu.Unlock()
		return
	}
	conn := ep.conn
	stop := ep.stop
	ep.mu.Unlock()

	ep.role.beforeClose(reason)

	close(stop)
	// Self-addressed Data datagram to unblock the blocking receive; any
	// error here (e.g. socket already gone) is swallowed, so a failed send
	// during shutdown is never reported.
	if local, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		datagram, _ := Encode(DataFrame{})
		_, _ = conn.WriteToUDP(datagram, local)
	}
	ep.wg.Wait()
	conn.Close()

	ep.mu.Lock()
	ep.open = false
	ep.receiving = false
	ep.conn = nil
	ep.mu.Unlock()

	// Reset-then-fire (SPEC_FULL.md §17.2): role state is cleared before the
	// event goes out, so a handler observing the endpoint mid-callback sees
	// it already closed.
	ep.role.afterClose()
	ep.onConnectionClose.Emit(reason)
}
