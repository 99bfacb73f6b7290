package main

import (
	"errors"

	"go.uber.org/zap"
)

// router classifies inbound frames and turns them into registry changes
// or fan-outs. It is called from each connection's reader, so frames from
// one connection arrive in order and never overlap.
type router struct {
	reg *registry
	log *zap.Logger
}

func newRouter(reg *registry, log *zap.Logger) *router {
	return &router{reg: reg, log: log}
}

// route handles one frame from p. The returned error is informational;
// nothing a client sends closes its connection. An empty frame is dropped
// here and never takes the broadcast path for undecodable input.
func (rt *router) route(p peer, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}

	env, err := decodeEnvelope(raw)
	switch {
	case errors.Is(err, errDecode):
		mark("router.fallback", 1)
		rt.fanOut(rt.reg.all(), fallbackChat(raw))
		return err
	case err != nil:
		mark("router.rejected", 1)
		rt.log.Debug("frame ignored", zap.String("conn", p.id()), zap.Error(err))
		return err
	}

	switch env.Type {
	case typeJoin:
		err = rt.join(p, env)
	case typeChat:
		err = rt.chat(p, env)
	}
	if err != nil {
		mark("router.rejected", 1)
	}
	return err
}

func (rt *router) join(p peer, env envelope) error {
	payload, err := env.join()
	if err == nil {
		err = rt.reg.assignRoom(p, payload.RoomID)
	}
	if err != nil {
		rt.log.Info("join rejected", zap.String("conn", p.id()), zap.Error(err))
		return err
	}
	mark("router.join", 1)
	rt.log.Info("joined room", zap.String("conn", p.id()), zap.String("room", payload.RoomID))
	return nil
}

func (rt *router) chat(p peer, env envelope) error {
	payload, err := env.chat()
	if err != nil {
		rt.log.Debug("chat dropped", zap.String("conn", p.id()), zap.Error(err))
		return err
	}

	roomID, ok := rt.reg.roomOf(p).room()
	if !ok {
		if err := p.send(notInRoom()); err != nil {
			rt.log.Debug("peer send failed", zap.String("conn", p.id()), zap.Error(err))
		}
		return errNotInRoom
	}

	mark("router.chat", 1)
	rt.publish(roomID, payload.Message)
	return nil
}

// publish sends message to every current member of roomID and returns how
// many accepted it.
func (rt *router) publish(roomID, message string) int {
	return rt.fanOut(rt.reg.membersOf(roomID), roomChat(message, roomID))
}

func (rt *router) fanOut(recipients []peer, frame []byte) int {
	delivered := 0
	for _, p := range recipients {
		if err := p.send(frame); err != nil {
			mark("drops", 1)
			rt.log.Debug("peer send failed", zap.String("conn", p.id()), zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}
