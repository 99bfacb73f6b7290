package main

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Frames queued for a peer that has not drained them yet. A peer that
// falls this far behind is closed.
const sendBufferSize = 256

var (
	errPeerSend       = errors.New("peer send failed")
	errSendBufferFull = fmt.Errorf("%w: send buffer full", errPeerSend)
	errConnClosed     = fmt.Errorf("%w: connection closed", errPeerSend)
)

type connection struct {
	uid    string
	w      websocketManager
	outbox chan []byte
	log    *zap.Logger

	closeOnce sync.Once
	closeCode int
	done      chan struct{}
}

func newConnection(w websocketManager, log *zap.Logger) *connection {
	uid := uuid.NewString()
	return &connection{
		uid:    uid,
		w:      w,
		outbox: make(chan []byte, sendBufferSize),
		log:    log.With(zap.String("conn", uid), zap.String("remote", w.wsRemoteAddr())),
		done:   make(chan struct{}),
	}
}

func (c *connection) id() string {
	return c.uid
}

// send queues frame for the writer without blocking. It fails if the
// connection is closed or its buffer is full; a full buffer also closes
// the connection.
func (c *connection) send(frame []byte) error {
	if !c.isOpen() {
		return errConnClosed
	}
	select {
	case c.outbox <- frame:
		return nil
	default:
		c.close(websocket.CloseTryAgainLater)
		return errSendBufferFull
	}
}

func (c *connection) isOpen() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// close asks the writer to send a close frame with code and shut the
// socket. Only the first call has an effect.
func (c *connection) close(code int) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		close(c.done)
	})
}

// reader delivers inbound frames to handle one at a time until the socket
// fails or is closed.
func (c *connection) reader(handle func(*connection, []byte)) {
	defer c.close(websocket.CloseNormalClosure)
	c.w.wsPrepareRead()
	for {
		if err := c.readMessage(handle); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				c.log.Info("read failed", zap.Error(err))
			}
			return
		}
	}
}

func (c *connection) readMessage(handle func(*connection, []byte)) error {
	_, message, err := c.w.wsReadMessage()
	if err != nil {
		return err
	}
	mark("conn.recv", 1)
	handle(c, message)
	return nil
}

// writer drains the outbox and pings on every heartbeat. A failed write
// or ping ends the connection; the reader then sees the closed socket.
// A nil beat means no pings.
func (c *connection) writer(b *beat) {
	defer func() {
		c.close(websocket.CloseNormalClosure)
		c.w.wsClose()
	}()

	var tick <-chan time.Time
	if b != nil {
		tick = b.tick
	}
	for {
		select {
		case frame := <-c.outbox:
			if err := c.w.wsWriteText(frame); err != nil {
				c.log.Debug("write failed", zap.Error(err))
				return
			}
			mark("conn.send", 1)
		case _, ok := <-tick:
			if !ok {
				// Heartbeat stopped: the relay is shutting down.
				tick = nil
				c.close(websocket.CloseGoingAway)
				continue
			}
			if err := c.w.wsWritePing(); err != nil {
				c.log.Debug("heartbeat failed", zap.Error(err))
				return
			}
		case <-c.done:
			c.w.wsWriteClose(c.closeCode)
			return
		}
	}
}
