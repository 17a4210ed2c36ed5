package link

import "testing"

func TestSignalImmediateDeliversSynchronously(t *testing.T) {
	s := NewSignal(Immediate, false)
	var got int
	s.Subscribe(func(args []interface{}) {
		got = args[0].(int)
	})

	s.Emit(42)
	if got != 42 {
		t.Fatalf("expected immediate delivery, got %d", got)
	}
}

func TestSignalDeferredWaitsForDrain(t *testing.T) {
	s := NewSignal(Deferred, false)
	var calls []int
	s.Subscribe(func(args []interface{}) {
		calls = append(calls, args[0].(int))
	})

	s.Emit(1)
	s.Emit(2)
	if len(calls) != 0 {
		t.Fatalf("expected no delivery before Drain, got %v", calls)
	}

	Drain()
	if len(calls) != 2 || calls[0] != 1 || calls[1] != 2 {
		t.Fatalf("expected both emits delivered in order, got %v", calls)
	}
}

func TestSignalDeferredCoalescesToLast(t *testing.T) {
	s := NewSignal(Deferred, true)
	var calls []int
	s.Subscribe(func(args []interface{}) {
		calls = append(calls, args[0].(int))
	})

	s.Emit(1)
	s.Emit(2)
	s.Emit(3)
	Drain()

	if len(calls) != 1 || calls[0] != 3 {
		t.Fatalf("expected a single coalesced delivery of the last value, got %v", calls)
	}
}

func TestSignalUnsubscribeStopsDelivery(t *testing.T) {
	s := NewSignal(Immediate, false)
	var got int
	id := s.Subscribe(func(args []interface{}) {
		got++
	})

	s.Emit()
	s.Unsubscribe(id)
	s.Emit()

	if got != 1 {
		t.Fatalf("expected exactly one delivery before unsubscribe, got %d", got)
	}
}

func TestDrainOnlyAffectsDeferredSignals(t *testing.T) {
	immediate := NewSignal(Immediate, false)
	var immediateCalls int
	immediate.Subscribe(func(args []interface{}) { immediateCalls++ })

	deferred := NewSignal(Deferred, false)
	var deferredCalls int
	deferred.Subscribe(func(args []interface{}) { deferredCalls++ })

	immediate.Emit()
	deferred.Emit()
	if immediateCalls != 1 {
		t.Fatalf("expected immediate signal delivered synchronously, got %d", immediateCalls)
	}
	if deferredCalls != 0 {
		t.Fatalf("expected deferred signal not yet delivered, got %d", deferredCalls)
	}

	Drain()
	if immediateCalls != 1 {
		t.Fatalf("Drain should not re-deliver an immediate signal, got %d", immediateCalls)
	}
	if deferredCalls != 1 {
		t.Fatalf("expected deferred signal delivered once after Drain, got %d", deferredCalls)
	}
}
