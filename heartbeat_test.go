package main

import (
	"testing"
	"time"
)

func TestHeartbeatSubscribe(t *testing.T) {
	hb := newHeartbeat(time.Hour)
	defer hb.stop()

	// assert no beats
	if hb.len() != 0 {
		t.Fatal("Expectation: 0, Received:", hb.len())
	}

	hb.subscribe()
	if hb.len() != 1 {
		t.Fatal("Expectation: 1, Received:", hb.len())
	}
}

func TestHeartbeatUnsubscribe(t *testing.T) {
	hb := newHeartbeat(time.Hour)
	defer hb.stop()
	b := hb.subscribe()

	hb.unsubscribe(b)
	if hb.len() != 0 {
		t.Fatal("Expectation: 0, Received:", hb.len())
	}

	// assert beat closed
	if _, ok := <-b.tick; ok {
		t.Fatal("Expectation: tick channel should be closed, Received: open channel")
	}

	// a second unsubscribe is harmless
	hb.unsubscribe(b)
}

func TestHeartbeatTick(t *testing.T) {
	hb := newHeartbeat(time.Hour)
	defer hb.stop()
	b1 := hb.subscribe()
	b2 := hb.subscribe()
	b3 := hb.subscribe()
	hb.fire(time.Now())

	// assert identical time stamps are passed to every beat
	t1, ok1 := <-b1.tick
	t2, ok2 := <-b2.tick
	t3, ok3 := <-b3.tick

	if !ok1 || !ok2 || !ok3 || !(t1.Equal(t2) && t1.Equal(t3)) {
		t.Fatal("Expectation: all beats receive identical time stamps, Received:", t1, t2, t3)
	}
}

func TestHeartbeatRuns(t *testing.T) {
	hb := newHeartbeat(10 * time.Millisecond)
	defer hb.stop()
	b := hb.subscribe()

	select {
	case <-b.tick:
	case <-time.After(time.Second):
		t.Fatal("Expectation: a tick within 1s, Received: none")
	}
}

func TestHeartbeatDropsUnreadTicks(t *testing.T) {
	hb := newHeartbeat(time.Hour)
	defer hb.stop()
	b := hb.subscribe()

	first := time.Now()
	hb.fire(first)
	hb.fire(first.Add(time.Second))

	if got := <-b.tick; !got.Equal(first) {
		t.Fatal("Expectation:", first, "Received:", got)
	}
	select {
	case got := <-b.tick:
		t.Fatal("Expectation: second tick dropped, Received:", got)
	default:
	}
}

func TestHeartbeatStop(t *testing.T) {
	hb := newHeartbeat(time.Hour)
	b1 := hb.subscribe()
	b2 := hb.subscribe()

	hb.stop()

	// assert all beats closed
	_, ok1 := <-b1.tick
	_, ok2 := <-b2.tick
	if ok1 || ok2 {
		t.Fatal("Expectation: all tick channels should be closed, Received: open channel")
	}

	// unsubscribing after stop must not close twice
	hb.unsubscribe(b1)
	hb.stop()

	// subscribing after stop yields a closed beat
	if _, ok := <-hb.subscribe().tick; ok {
		t.Fatal("Expectation: closed beat after stop, Received: open channel")
	}
}
