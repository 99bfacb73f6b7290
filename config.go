package main

import (
	"flag"
	"strings"
	"time"
)

var defaultOrigins = []string{
	"http://localhost:5173",
	"http://localhost:3000",
	"https://chat-broadcast-app.onrender.com",
	"https://chat-broadcast-app-fe.onrender.com",
	"https://chat-broadcast.vercel.app",
}

type config struct {
	addr        string
	origins     origins
	envOrigins  string // ALLOWED_ORIGINS as found, for /debug/origins
	stopTimeout time.Duration
	killTimeout time.Duration
	metricsTick time.Duration
	logLevel    string
}

// loadConfig reads the environment first and then args, so flags win.
func loadConfig(args []string, getenv func(string) string) (*config, error) {
	cfg := &config{
		addr:        ":8080",
		origins:     newOrigins(defaultOrigins),
		stopTimeout: 10 * time.Second,
		killTimeout: 1 * time.Second,
		metricsTick: 60 * time.Second,
		logLevel:    "info",
	}
	if port := getenv("PORT"); port != "" {
		cfg.addr = ":" + port
	}
	if env := getenv("ALLOWED_ORIGINS"); env != "" {
		cfg.envOrigins = env
		cfg.origins = newOrigins(splitList(env))
	}
	if level := getenv("LOG_LEVEL"); level != "" {
		cfg.logLevel = level
	}

	fs := flag.NewFlagSet("roomrelay", flag.ContinueOnError)
	fs.StringVar(&cfg.addr, "addr", cfg.addr, "http service address")
	fs.Var(&cfg.origins, "origins", "comma separated origins allowed for CORS and websocket upgrades")
	fs.DurationVar(&cfg.stopTimeout, "stop-timeout", cfg.stopTimeout, "stop timeout")
	fs.DurationVar(&cfg.killTimeout, "kill-timeout", cfg.killTimeout, "kill timeout")
	fs.DurationVar(&cfg.metricsTick, "metrics.tick", cfg.metricsTick, "metrics: duration between reports")
	fs.StringVar(&cfg.logLevel, "log-level", cfg.logLevel, "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// origins is an allow-list of scheme://host[:port] values.
type origins struct {
	list []string
	set  map[string]struct{}
}

func newOrigins(list []string) origins {
	o := origins{set: make(map[string]struct{})}
	for _, origin := range list {
		o.add(origin)
	}
	return o
}

func (o *origins) add(origin string) {
	if o.set == nil {
		o.set = make(map[string]struct{})
	}
	if _, ok := o.set[origin]; ok {
		return
	}
	o.set[origin] = struct{}{}
	o.list = append(o.list, origin)
}

func (o origins) allowed(origin string) bool {
	_, ok := o.set[origin]
	return ok
}

func (o origins) String() string {
	return strings.Join(o.list, ",")
}

// Set replaces the list; it implements flag.Value.
func (o *origins) Set(s string) error {
	*o = newOrigins(splitList(s))
	return nil
}
