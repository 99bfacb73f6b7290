package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Largest body accepted by the publish endpoint.
const maxPublishSize = maxMessageSize

type wsHandler struct {
	h        *hub
	upgrader *websocket.Upgrader
}

func newWsHandler(h *hub, allowed origins) wsHandler {
	return wsHandler{
		h: h,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowed, h.log),
		},
	}
}

// checkOrigin accepts non-browser clients, which send no Origin header,
// and browsers from an allowed origin.
func checkOrigin(allowed origins, log *zap.Logger) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowed.allowed(origin) {
			return true
		}
		log.Warn("websocket origin rejected", zap.String("origin", origin))
		return false
	}
}

func (wsh wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := wsh.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an error response.
		wsh.h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := newConnection(websocketInteractor{ws: ws}, wsh.h.log)
	if err := wsh.h.serve(c); err != nil {
		c.log.Info("connection refused", zap.Error(err))
	}
}

// corsMiddleware answers preflights and adds CORS headers for allowed
// origins. Other origins get no CORS headers and are left to the browser.
func corsMiddleware(allowed origins) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" && allowed.allowed(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type originsHandler struct {
	cfg *config
}

func (oh originsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var env *string
	if oh.cfg.envOrigins != "" {
		env = &oh.cfg.envOrigins
	}
	allowed := oh.cfg.origins.list
	if allowed == nil {
		allowed = []string{}
	}
	writeJSON(w, http.StatusOK, struct {
		AllowedOrigins    []string `json:"allowedOrigins"`
		EnvAllowedOrigins *string  `json:"envAllowedOrigins"`
	}{allowed, env})
}

type statsHandler struct {
	h *hub
}

func (sh statsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rooms, connections := sh.h.registry.stats()
	writeJSON(w, http.StatusOK, map[string]int{
		"rooms":       rooms,
		"connections": connections,
	})
}

// postHandler publishes a plain text body to the room in the path.
type postHandler struct {
	h *hub
}

func (ph postHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPublishSize+1))
	if err != nil {
		sendBadRequestError(w, "Unable to read POST body.")
		return
	}
	if len(body) > maxPublishSize {
		sendBadRequestError(w, fmt.Sprintf("Message must be at most %d bytes.", maxPublishSize))
		return
	}
	if len(body) == 0 || !utf8.Valid(body) {
		sendBadRequestError(w, "Message must be non-empty Unicode (UTF-8).")
		return
	}
	delivered := ph.h.publish(roomID, string(body))
	writeJSON(w, http.StatusOK, map[string]int{"delivered": delivered})
}

func sendBadRequestError(w http.ResponseWriter, str string) {
	http.Error(w,
		fmt.Sprintf("Error: bad request. %s", str),
		http.StatusBadRequest)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
