package main

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer. Must be longer
	// than heartbeatInterval.
	pongWait = 2 * heartbeatInterval

	// Maximum inbound frame size. Larger frames close the connection
	// with 1009.
	maxMessageSize = 64 << 10
)

// websocketManager is the part of *websocket.Conn a connection uses.
// Tests substitute a mock.
type websocketManager interface {
	wsPrepareRead()
	wsReadMessage() (int, []byte, error)
	wsWriteText([]byte) error
	wsWritePing() error
	wsWriteClose(code int) error
	wsClose() error
	wsRemoteAddr() string
}

type websocketInteractor struct {
	ws *websocket.Conn
}

func (w websocketInteractor) wsPrepareRead() {
	w.ws.SetReadLimit(maxMessageSize)
	w.ws.SetReadDeadline(time.Now().Add(pongWait))
	w.ws.SetPongHandler(func(string) error {
		return w.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
}

func (w websocketInteractor) wsReadMessage() (int, []byte, error) {
	return w.ws.ReadMessage()
}

func (w websocketInteractor) wsWriteText(frame []byte) error {
	w.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return w.ws.WriteMessage(websocket.TextMessage, frame)
}

func (w websocketInteractor) wsWritePing() error {
	return w.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (w websocketInteractor) wsWriteClose(code int) error {
	return w.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, ""), time.Now().Add(writeWait))
}

func (w websocketInteractor) wsClose() error {
	return w.ws.Close()
}

func (w websocketInteractor) wsRemoteAddr() string {
	return w.ws.RemoteAddr().String()
}
