package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Upstream falso para validar o gateway em modo proxy (server.upstreamURL=http://localhost:8082).
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	mux := http.NewServeMux()
	mux.HandleFunc("/api/user/info", func(w http.ResponseWriter, r *http.Request) {
		username := r.URL.Query().Get("username")
		if username == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing username"})
			return
		}
		logger.Info("user info requested", "username", username, "api_key_forwarded", r.Header.Get("X-API-Key") != "")
		writeJSON(w, http.StatusOK, map[string]any{
			"username": username,
			"level":    30,
			"online":   true,
			"lastSeen": time.Now().UTC(),
		})
	})
	mux.HandleFunc("/api/online-players", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"count": 2, "players": []string{"steve", "alex"}})
	})

	addr := ":8082"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	logger.Info("fake upstream listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
