package main

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	typeJoin  = "join"
	typeChat  = "chat"
	typeError = "error"

	codeNotInRoom = "not_in_room"
)

var (
	errDecode             = errors.New("payload is not valid JSON")
	errUnknownType        = errors.New("unknown message type")
	errInvalidJoinPayload = errors.New("join requires a non-empty roomId")
	errEmptyMessage       = errors.New("chat message is empty")
	errNotInRoom          = errors.New("connection has not joined a room")
)

// envelope is the outer shape of every frame on the wire.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type joinPayload struct {
	RoomID string `json:"roomId"`
}

type chatPayload struct {
	Message string `json:"message"`
	RoomID  string `json:"roomId,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// decodeEnvelope classifies a raw inbound frame. Frames that are not JSON
// at all return errDecode; the caller falls back to a broadcast of the raw
// text. Valid JSON that is not an envelope returns errUnknownType.
func decodeEnvelope(raw []byte) (envelope, error) {
	var env envelope
	if !json.Valid(raw) {
		return env, errDecode
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("%w: %v", errUnknownType, err)
	}
	switch env.Type {
	case typeJoin, typeChat:
		return env, nil
	default:
		return env, fmt.Errorf("%w: %q", errUnknownType, env.Type)
	}
}

func (env envelope) join() (joinPayload, error) {
	var p joinPayload
	if len(env.Payload) == 0 {
		return p, errInvalidJoinPayload
	}
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return p, fmt.Errorf("%w: %v", errInvalidJoinPayload, err)
	}
	if p.RoomID == "" {
		return p, errInvalidJoinPayload
	}
	return p, nil
}

func (env envelope) chat() (chatPayload, error) {
	var p chatPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return p, fmt.Errorf("%w: %v", errEmptyMessage, err)
		}
	}
	if p.Message == "" {
		return p, errEmptyMessage
	}
	return p, nil
}

func encode(typ string, payload interface{}) []byte {
	body, err := json.Marshal(payload)
	if err != nil {
		// Payload types are fixed structs of strings.
		panic(fmt.Sprintf("encode %s payload: %v", typ, err))
	}
	out, err := json.Marshal(envelope{Type: typ, Payload: body})
	if err != nil {
		panic(fmt.Sprintf("encode %s envelope: %v", typ, err))
	}
	return out
}

// roomChat is the frame fanned out to the members of roomID.
func roomChat(message, roomID string) []byte {
	return encode(typeChat, chatPayload{Message: message, RoomID: roomID})
}

// fallbackChat re-wraps a malformed frame as a chat with no room.
func fallbackChat(raw []byte) []byte {
	return encode(typeChat, chatPayload{Message: string(raw)})
}

func notInRoom() []byte {
	return encode(typeError, errorPayload{
		Code:    codeNotInRoom,
		Message: "join a room before sending chat messages",
	})
}
