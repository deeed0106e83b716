package api

import (
	"net/http"
	"strings"
)

func NewRouter(h *Handlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", instrument("readyz", h.HandleReady))

	mux.HandleFunc("/api/status", instrument("status", only(http.MethodGet, h.HandleStatus)))
	mux.HandleFunc("/api/session", instrument("session", only(http.MethodGet, h.HandleSession)))
	mux.HandleFunc("/api/start", instrument("start", only(http.MethodPost, h.HandleStart)))
	mux.HandleFunc("/api/stop", instrument("stop", only(http.MethodPost, h.HandleStop)))
	mux.HandleFunc("/api/reset", instrument("reset", only(http.MethodPost, h.HandleReset)))
	mux.HandleFunc("/api/analyze", instrument("analyze", only(http.MethodPost, h.HandleAnalyze)))
	mux.HandleFunc("/api/sessions", instrument("sessions", only(http.MethodGet, h.HandleListSessions)))

	mux.HandleFunc("/api/sessions/", func(w http.ResponseWriter, r *http.Request) {
		// /api/sessions/{id} | /events | /token
		path := strings.TrimSuffix(r.URL.Path, "/")
		const prefix = "/api/sessions/"
		if !strings.HasPrefix(path, prefix) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		parts := strings.Split(strings.TrimPrefix(path, prefix), "/")
		if len(parts) == 0 || parts[0] == "" || len(parts) > 2 {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		id := parts[0]
		tail := ""
		if len(parts) > 1 {
			tail = parts[1]
		}

		switch tail {
		case "":
			instrument("session_get", only(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetSession(w, r, id)
			}))(w, r)
		case "events":
			instrument("session_events", only(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
				h.HandleListEvents(w, r, id)
			}))(w, r)
		case "token":
			instrument("session_token", only(http.MethodPost, func(w http.ResponseWriter, r *http.Request) {
				h.HandleMintToken(w, r, id)
			}))(w, r)
		default:
			writeError(w, http.StatusNotFound, "not found")
		}
	})

	return mux
}

func only(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		next(w, r)
	}
}
