package main

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var errShuttingDown = errors.New("relay is shutting down")

// hub owns the registry and drives every connection through its
// lifecycle: onConnect, onMessage for each frame, then onClose.
type hub struct {
	registry  *registry
	router    *router
	heartbeat *heartbeat
	log       *zap.Logger

	mu      sync.Mutex // Protects closing
	closing bool
	wg      sync.WaitGroup
}

func newHub(log *zap.Logger) *hub {
	reg := newRegistry()
	return &hub{
		registry:  reg,
		router:    newRouter(reg, log),
		heartbeat: newHeartbeat(heartbeatInterval),
		log:       log,
	}
}

// serve runs c until its socket closes. It blocks for the life of the
// connection, as the upgrade handler's goroutine does.
func (h *hub) serve(c *connection) error {
	b, err := h.onConnect(c)
	if err != nil {
		c.close(websocket.CloseGoingAway)
		c.writer(nil)
		return err
	}
	defer h.wg.Done()
	defer h.onClose(c, b)

	go func() {
		defer h.wg.Done()
		c.writer(b)
	}()
	c.reader(h.onMessage)
	return nil
}

func (h *hub) onConnect(c *connection) (*beat, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closing {
		return nil, errShuttingDown
	}
	b := h.heartbeat.subscribe()
	// One for the reader, one for the writer.
	h.wg.Add(2)
	h.registry.register(c)
	incr("websockets", 1)
	c.log.Info("connected")
	return b, nil
}

func (h *hub) onMessage(c *connection, raw []byte) {
	h.router.route(c, raw)
}

func (h *hub) onClose(c *connection, b *beat) {
	c.close(websocket.CloseNormalClosure)
	h.heartbeat.unsubscribe(b)
	if h.registry.unregister(c) {
		decr("websockets", 1)
		c.log.Info("disconnected")
	}
}

// publish delivers message to roomID on behalf of a non-websocket client.
func (h *hub) publish(roomID, message string) int {
	return h.router.publish(roomID, message)
}

// shutdown refuses new connections, closes every open one and waits until
// their close frames are written or ctx is done.
func (h *hub) shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()

	h.heartbeat.stop()
	peers := h.registry.all()
	for _, p := range peers {
		if c, ok := p.(*connection); ok {
			c.close(websocket.CloseGoingAway)
		}
	}
	h.log.Info("closing connections", zap.Int("connections", len(peers)))

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
