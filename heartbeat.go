package main

import (
	"sync"
	"time"
)

// heartbeatInterval is how often every open connection is pinged so that
// proxies and load balancers do not drop it as idle.
const heartbeatInterval = 30 * time.Second

// heartbeat is one ticker shared by all connections. Each writer pump holds
// a beat and pings its peer when the beat fires.
type heartbeat struct {
	mu      sync.Mutex // Protects beats and stopped
	beats   beats
	stopped bool

	ticker *time.Ticker
	stopCh chan struct{}
}

type beats map[*beat]struct{}

type beat struct {
	tick chan time.Time
}

func newHeartbeat(interval time.Duration) *heartbeat {
	hb := &heartbeat{
		beats:  make(beats),
		ticker: time.NewTicker(interval),
		stopCh: make(chan struct{}),
	}
	go hb.run()
	return hb
}

// subscribe returns a beat whose channel receives ticks. A tick the beat is
// not ready for is dropped. After stop, the returned beat is already closed.
func (hb *heartbeat) subscribe() *beat {
	hb.mu.Lock()
	defer hb.mu.Unlock()

	b := &beat{tick: make(chan time.Time, 1)}
	if hb.stopped {
		close(b.tick)
		return b
	}
	hb.beats[b] = struct{}{}
	return b
}

func (hb *heartbeat) unsubscribe(b *beat) {
	hb.mu.Lock()
	defer hb.mu.Unlock()

	if _, ok := hb.beats[b]; ok {
		close(b.tick)
		delete(hb.beats, b)
	}
}

// stop halts the ticker and closes every subscribed beat.
func (hb *heartbeat) stop() {
	hb.mu.Lock()
	defer hb.mu.Unlock()

	if hb.stopped {
		return
	}
	hb.stopped = true
	hb.ticker.Stop()
	close(hb.stopCh)
	for b := range hb.beats {
		close(b.tick)
	}
	hb.beats = make(beats)
}

func (hb *heartbeat) len() int {
	hb.mu.Lock()
	defer hb.mu.Unlock()

	return len(hb.beats)
}

func (hb *heartbeat) run() {
	for {
		select {
		case now := <-hb.ticker.C:
			hb.fire(now)
		case <-hb.stopCh:
			return
		}
	}
}

func (hb *heartbeat) fire(now time.Time) {
	hb.mu.Lock()
	defer hb.mu.Unlock()

	for b := range hb.beats {
		select {
		case b.tick <- now:
		default:
			mark("heartbeat.dropped", 1)
		}
	}
}
