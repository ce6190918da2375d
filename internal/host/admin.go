package host

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// adminMux serves the JSON-only admin routes.
func (a *App) adminMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("GET /admin/status", jsonOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mode := "running"
		select {
		case <-a.shutdown:
			mode = "shutting down"
		default:
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"version":   a.opts.Version,
			"time":      time.Now().UTC().Format(time.RFC3339),
			"uptime":    time.Since(a.started).Round(time.Second).String(),
			"mode":      mode,
			"resources": a.resourceNames(),
		})
	})))

	mux.Handle("POST /admin/shutdown", jsonOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})
		a.log.Info("shutdown requested via admin")
		a.RequestShutdown()
	})))

	return mux
}

// jsonOnly enforces the JSON contract on API routes.
func jsonOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept := r.Header.Get("Accept")
		if accept != "" && !strings.Contains(accept, "application/json") && !strings.Contains(accept, "*/*") {
			writeJSONError(w, http.StatusNotAcceptable, "not_acceptable", "Accept must include application/json")
			return
		}
		if r.Method != http.MethodGet && r.ContentLength != 0 && !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "Content-Type must be application/json")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRequestID tags the request with an X-Request-Id and logs it.
func (a *App) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		start := time.Now()
		next.ServeHTTP(w, r)
		a.log.Debug("request", "id", id, "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": msg,
	})
}

// WriteJSON and WriteJSONError give plugins the same response shapes as
// the built-in routes.
func WriteJSON(w http.ResponseWriter, status int, v any) { writeJSON(w, status, v) }

func WriteJSONError(w http.ResponseWriter, status int, code, msg string) {
	writeJSONError(w, status, code, msg)
}
