package main

import (
	"io"
	"net/http"
	"os"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

type metrics struct {
	log  io.Writer
	reg  gometrics.Registry
	tick time.Duration
}

var m = newMetrics(gometrics.DefaultRegistry)

func newMetrics(reg gometrics.Registry) *metrics {
	return &metrics{
		log:  os.Stderr,
		reg:  reg,
		tick: 60 * time.Second,
	}
}

func startMetrics(tick time.Duration) {
	if tick > 0 {
		m.tick = tick
	}
	m.start()
}

func finalMetrics() {
	m.writeOnce(m.log)
}

func incr(name string, i int64) {
	m.incr(name, i)
}

func decr(name string, i int64) {
	m.decr(name, i)
}

func mark(name string, i int64) {
	m.mark(name, i)
}

func (m *metrics) start() {
	go gometrics.WriteJSON(m.reg, m.tick, m.log)
}

func (m *metrics) writeOnce(w io.Writer) {
	gometrics.WriteJSONOnce(m.reg, w)
}

func (m *metrics) incr(name string, i int64) {
	gometrics.GetOrRegisterCounter(name, m.reg).Inc(i)
}

func (m *metrics) decr(name string, i int64) {
	gometrics.GetOrRegisterCounter(name, m.reg).Dec(i)
}

func (m *metrics) mark(name string, i int64) {
	gometrics.GetOrRegisterMeter(name, m.reg).Mark(i)
}

type metricsHandler struct {
	m *metrics
}

func (mh metricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	mh.m.writeOnce(w)
}
