// Package opener hands URLs and files to the user's default applications.
package opener

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/browser"

	"github.com/hakawati/hakawati/internal/host"
	"github.com/hakawati/hakawati/internal/logger"
)

// Launcher opens targets outside the process.
type Launcher interface {
	OpenURL(url string) error
	OpenFile(path string) error
}

// System uses the platform's default handlers.
type System struct{}

func (System) OpenURL(u string) error     { return browser.OpenURL(u) }
func (System) OpenFile(path string) error { return browser.OpenFile(path) }

var allowedSchemes = map[string]bool{"http": true, "https": true, "mailto": true}

type Plugin struct {
	launcher Launcher
	log      logger.Logger
}

// New returns the plugin over launcher, or the system handlers if nil.
func New(launcher Launcher, log logger.Logger) *Plugin {
	if launcher == nil {
		launcher = System{}
	}
	return &Plugin{launcher: launcher, log: logger.OrDefault(log)}
}

func (p *Plugin) Name() string { return "opener" }

func (p *Plugin) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /open-url", p.handleOpenURL)
	mux.HandleFunc("POST /open-path", p.handleOpenPath)
}

// OpenURL validates and opens u. Only http, https and mailto are allowed.
func (p *Plugin) OpenURL(u string) error {
	parsed, err := url.Parse(strings.TrimSpace(u))
	if err != nil {
		return fmt.Errorf("%w: %v", host.ErrInvalidArgs, err)
	}
	if !allowedSchemes[strings.ToLower(parsed.Scheme)] {
		return fmt.Errorf("%w: scheme %q not allowed", host.ErrInvalidArgs, parsed.Scheme)
	}
	if parsed.Scheme != "mailto" && parsed.Host == "" {
		return fmt.Errorf("%w: %q has no host", host.ErrInvalidArgs, u)
	}
	return p.launcher.OpenURL(parsed.String())
}

// OpenPath opens an existing file or directory given by absolute path.
func (p *Plugin) OpenPath(path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: %q is not absolute", host.ErrInvalidArgs, path)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %v", host.ErrInvalidArgs, err)
	}
	return p.launcher.OpenFile(filepath.Clean(path))
}

func (p *Plugin) handleOpenURL(w http.ResponseWriter, r *http.Request) {
	var in struct {
		URL string `json:"url"`
	}
	if !decode(w, r, &in) {
		return
	}
	p.respond(w, "open url", p.OpenURL(in.URL))
}

func (p *Plugin) handleOpenPath(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Path string `json:"path"`
	}
	if !decode(w, r, &in) {
		return
	}
	p.respond(w, "open path", p.OpenPath(in.Path))
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(v); err != nil {
		host.WriteJSONError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

func (p *Plugin) respond(w http.ResponseWriter, op string, err error) {
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, host.ErrInvalidArgs):
		host.WriteJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		p.log.Warn(op+" failed", "err", err)
		host.WriteJSONError(w, http.StatusInternalServerError, "open_failed", err.Error())
	}
}
