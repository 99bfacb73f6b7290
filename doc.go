// Roomrelay relays chat messages between websocket clients in named rooms.
//
//     roomrelay -addr=:8080
//
// Everything is as ephemeral as can be. A connection belongs to no room
// until it joins one, and a room is forgotten when its last member leaves.
// Nothing is stored.
//
// Connect a websocket on any path, then join a room.
//     {"type":"join","payload":{"roomId":"lobby"}}
//
// Chat messages go to every member of the sender's room, the sender
// included.
//     {"type":"chat","payload":{"message":"hi"}}
//     {"type":"chat","payload":{"message":"hi","roomId":"lobby"}}
//
// A chat sent before joining is dropped and answered with an error frame
// of code "not_in_room". A frame that is not JSON at all is re-wrapped as
// a chat without a room and sent to every connection, joined or not.
//
// Publish from outside by POSTing a plain text body to the room.
//     curl localhost:8080/rooms/lobby -d "Hello"
//
// GET / and GET /rooms/{roomId} serve a small browser client. /health,
// /stats, /metrics and /debug/origins report on the running relay.
package main
