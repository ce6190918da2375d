// Package clipboard exposes the system clipboard to the front-end.
package clipboard

import (
	"encoding/json"
	"net/http"

	"github.com/atotto/clipboard"

	"github.com/hakawati/hakawati/internal/host"
	"github.com/hakawati/hakawati/internal/logger"
)

// Backend reads and writes clipboard text.
type Backend interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

// System is the OS clipboard.
type System struct{}

func (System) ReadAll() (string, error)   { return clipboard.ReadAll() }
func (System) WriteAll(text string) error { return clipboard.WriteAll(text) }

type Plugin struct {
	backend Backend
	log     logger.Logger
}

// New returns the plugin over backend, or the OS clipboard if backend is nil.
func New(backend Backend, log logger.Logger) *Plugin {
	if backend == nil {
		backend = System{}
	}
	return &Plugin{backend: backend, log: logger.OrDefault(log)}
}

func (p *Plugin) Name() string { return "clipboard" }

func (p *Plugin) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /read", p.handleRead)
	mux.HandleFunc("POST /write", p.handleWrite)
}

type payload struct {
	Text string `json:"text"`
}

func (p *Plugin) handleRead(w http.ResponseWriter, r *http.Request) {
	if clipboard.Unsupported && isSystem(p.backend) {
		host.WriteJSONError(w, http.StatusNotImplemented, "unsupported", "no clipboard utility available")
		return
	}
	text, err := p.backend.ReadAll()
	if err != nil {
		p.log.Warn("clipboard read failed", "err", err)
		host.WriteJSONError(w, http.StatusInternalServerError, "clipboard_error", err.Error())
		return
	}
	host.WriteJSON(w, http.StatusOK, payload{Text: text})
}

func (p *Plugin) handleWrite(w http.ResponseWriter, r *http.Request) {
	var in payload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&in); err != nil {
		host.WriteJSONError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if clipboard.Unsupported && isSystem(p.backend) {
		host.WriteJSONError(w, http.StatusNotImplemented, "unsupported", "no clipboard utility available")
		return
	}
	if err := p.backend.WriteAll(in.Text); err != nil {
		p.log.Warn("clipboard write failed", "err", err)
		host.WriteJSONError(w, http.StatusInternalServerError, "clipboard_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func isSystem(b Backend) bool {
	_, ok := b.(System)
	return ok
}
