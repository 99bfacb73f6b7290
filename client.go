package main

import (
	"html/template"
	"net/http"

	"github.com/gorilla/mux"
)

// getHandler serves a browser client. Under /rooms/{roomId} it joins that
// room on load; at / it asks for a room first.
type getHandler struct{}

type templateArgs struct {
	Room string
}

func (gh getHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	webTemplate.Execute(w, templateArgs{Room: mux.Vars(r)["roomId"]})
}

var webTemplate = template.Must(template.New("webTemplate").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>roomrelay{{if .Room}} {{.Room}}{{end}}</title>
<style type="text/css">
html, body {
    margin: 0;
    height: 100%;
    font-family: sans-serif;
    background: black;
}

#join, #chat {
    position: absolute;
    top: 0.5em;
    left: 0.5em;
    right: 0.5em;
    bottom: 0.5em;
    background: white;
    padding: 0.5em;
}

#chat {
    display: none;
}

#log {
    position: absolute;
    top: 2.5em;
    left: 0.5em;
    right: 0.5em;
    bottom: 3em;
    overflow: auto;
    background: #eee;
    padding: 0.5em;
}

#form {
    position: absolute;
    bottom: 0.5em;
    left: 0.5em;
    right: 0.5em;
}
</style>
</head>
<body>
<form id="join">
    <h3>Enter a room ID to join</h3>
    <input type="text" id="room" size="32" value="{{.Room}}"/>
    <input type="submit" value="Join Room" />
</form>
<div id="chat">
    <b id="title"></b>
    <div id="log"></div>
    <form id="form">
        <input type="text" id="msg" size="64"/>
        <input type="submit" value="Send" />
    </form>
</div>
<script type="text/javascript">
(function() {
    var conn;
    var joinForm = document.getElementById("join");
    var room = document.getElementById("room");
    var log = document.getElementById("log");
    var msg = document.getElementById("msg");

    function appendLog(text) {
        var doScroll = log.scrollTop >= log.scrollHeight - log.clientHeight - 1;
        var d = document.createElement("div");
        d.textContent = text;
        log.appendChild(d);
        if (doScroll) {
            log.scrollTop = log.scrollHeight - log.clientHeight;
        }
    }

    function join(roomId) {
        if (!window["WebSocket"]) {
            appendLog("Your browser does not support WebSockets.");
            return;
        }
        joinForm.style.display = "none";
        document.getElementById("chat").style.display = "block";
        document.getElementById("title").textContent = "Room: " + roomId;

        var scheme = location.protocol === "https:" ? "wss://" : "ws://";
        conn = new WebSocket(scheme + location.host + "/");
        conn.onopen = function() {
            conn.send(JSON.stringify({type: "join", payload: {roomId: roomId}}));
        };
        conn.onclose = function() {
            appendLog("Connection closed.");
            conn = null;
        };
        conn.onmessage = function(evt) {
            try {
                var m = JSON.parse(evt.data);
                appendLog(m.type === "error" ? "! " + m.payload.message : m.payload.message);
            } catch (e) {
                appendLog(evt.data);
            }
        };
        msg.focus();
    }

    joinForm.onsubmit = function() {
        var roomId = room.value.trim();
        if (roomId !== "") {
            join(roomId);
        }
        return false;
    };

    document.getElementById("form").onsubmit = function() {
        if (conn && msg.value.trim() !== "") {
            conn.send(JSON.stringify({type: "chat", payload: {message: msg.value}}));
            msg.value = "";
        }
        return false;
    };

    var initial = "{{.Room}}";
    if (initial !== "") {
        join(initial);
    }
})();
</script>
</body>
</html>
`))
