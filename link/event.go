package link

import "sync"

// DeliveryMode selects when a Signal's subscribers run relative to Emit.
type DeliveryMode int

const (
	// Immediate invokes subscribers synchronously on the emitting goroutine.
	Immediate DeliveryMode = iota
	// Deferred enqueues the invocation; subscribers run on the next call to
	// Drain, on whatever goroutine calls it.
	Deferred
)

type subscriber struct {
	id uint64
	fn func(args []interface{})
}

// Signal is a named event with zero or more subscribers. It is the unit the
// event broker operates on: a value-typed signal with a sink abstraction,
// rather than a single global dispatch table keyed by string name. Deferred
// signals register themselves with the process-wide registry drained by
// Drain, so a GUI host can pump all endpoints' events from one place.
type Signal struct {
	mu       sync.Mutex
	mode     DeliveryMode
	coalesce bool
	subs     []subscriber
	nextID   uint64
	pending  [][]interface{}
}

// NewSignal creates a signal with the given delivery mode. When coalesce is
// true and mode is Deferred, multiple Emit calls between Drain calls collapse
// into a single delivery using the arguments of the last Emit.
func NewSignal(mode DeliveryMode, coalesce bool) *Signal {
	s := &Signal{mode: mode, coalesce: coalesce}
	if mode == Deferred {
		registerSignal(s)
	}
	return s
}

// Subscribe registers fn and returns an id usable with Unsubscribe. The
// broker holds only the callback, not any reference to the subscriber's
// lifetime — it is the caller's responsibility to Unsubscribe.
func (s *Signal) Subscribe(fn func(args []interface{})) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	return id
}

// Unsubscribe removes a previously subscribed callback. A missing id is a
// no-op.
func (s *Signal) Unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

// Emit invokes or enqueues subscribers depending on the signal's delivery
// mode.
func (s *Signal) Emit(args ...interface{}) {
	if s.mode == Immediate {
		s.dispatch(args)
		return
	}

	s.mu.Lock()
	if s.coalesce {
		if len(s.pending) == 0 {
			s.pending = append(s.pending, args)
		} else {
			s.pending[0] = args
		}
	} else {
		s.pending = append(s.pending, args)
	}
	s.mu.Unlock()
}

func (s *Signal) dispatch(args []interface{}) {
	s.mu.Lock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(args)
	}
}

// drain flushes queued deferred invocations. Called only by the package-level
// Drain pump.
func (s *Signal) drain() {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, args := range batch {
		s.dispatch(args)
	}
}

var (
	registryMu sync.Mutex
	registry   []*Signal
)

func registerSignal(s *Signal) {
	registryMu.Lock()
	registry = append(registry, s)
	registryMu.Unlock()
}

// Drain runs every deferred signal's queued invocations. The host (e.g. a
// GUI's frame loop) calls this once per pump; it is process-wide state that
// outlives any single endpoint, matching the broker's scope in the source
// library.
func Drain() {
	registryMu.Lock()
	snapshot := make([]*Signal, len(registry))
	copy(snapshot, registry)
	registryMu.Unlock()

	for _, s := range snapshot {
		s.drain()
	}
}
