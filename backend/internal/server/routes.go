package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Warpcast/backend/internal/config"
	"github.com/BioHazard786/Warpcast/backend/internal/signaling"
	"github.com/BioHazard786/Warpcast/internal/protocol"
)

const welcomeText = "Welcome to the Warpcast signaling server"

// newUpgrader builds the websocket upgrader for the configured origins.
func newUpgrader(cfg config.Config) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  64 * 1024, // 64 KB
		WriteBufferSize: 64 * 1024, // 64 KB

		CheckOrigin: func(r *http.Request) bool {
			if cfg.AllowsAnyOrigin() {
				return true
			}
			origin := r.Header.Get("Origin")
			// Non-browser clients such as the CLI send no Origin
			return origin == "" || slices.Contains(cfg.AllowedOrigins, origin)
		},
	}
}

// ServeWs returns an http.HandlerFunc that handles websocket requests.
// The "client" query parameter selects the wire codec.
func ServeWs(hub *signaling.Hub, cfg config.Config, log *slog.Logger) http.HandlerFunc {
	upgrader := newUpgrader(cfg)

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("Failed to upgrade connection", "remote", r.RemoteAddr, "err", err)
			return
		}

		codec := protocol.SelectCodec(r.URL.Query().Get("client"))
		client := signaling.NewClient(hub, conn, codec, cfg.SendBufferSize, cfg.MaxMessageSize)

		// Register the client with the hub
		select {
		case client.Hub.Register <- client:
		case <-client.Hub.Done():
			log.Info("Refusing connection, hub stopped", "remote", r.RemoteAddr)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			conn.Close()
			return
		}

		// Start the client's read and write pumps in separate goroutines
		go client.WritePump()
		go client.ReadPump()
	}
}

// NewRouter wires every HTTP route of the signaling server.
func NewRouter(hub *signaling.Hub, cfg config.Config, stats *Stats, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthCheckHandler)
	mux.HandleFunc("GET /stats", stats.Handler)
	mux.HandleFunc("/ws", ServeWs(hub, cfg, log))
	mux.HandleFunc("/", welcomeHandler)

	return mux
}

// Health Check endpoint
func healthCheckHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

func welcomeHandler(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"message": welcomeText}
	if r.URL.Path != "/" {
		body["path"] = "invalid path"
	}
	writeJSON(w, body)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}
