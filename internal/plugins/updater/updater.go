// Package updater checks a release manifest for a newer build.
// Installing updates is left to the platform installer.
package updater

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/hakawati/hakawati/internal/host"
	"github.com/hakawati/hakawati/internal/logger"
)

// ErrNoEndpoint is returned by Check when no manifest URL is configured.
var ErrNoEndpoint = errors.New("updater: no endpoint configured")

// Manifest is the release document served at the endpoint.
type Manifest struct {
	Version string `json:"version"`
	Notes   string `json:"notes"`
	PubDate string `json:"pub_date"`
}

// Result reports the outcome of a check.
type Result struct {
	Available      bool   `json:"available"`
	Version        string `json:"version"`
	CurrentVersion string `json:"currentVersion"`
	Date           string `json:"date,omitempty"`
	Body           string `json:"body,omitempty"`
}

type Options struct {
	Endpoint string
	Timeout  time.Duration
	Current  string // running version, with or without a leading "v"
	Client   *http.Client
}

type Plugin struct {
	opts Options
	log  logger.Logger
}

func New(opts Options, log logger.Logger) *Plugin {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	return &Plugin{opts: opts, log: logger.OrDefault(log)}
}

func (p *Plugin) Name() string { return "updater" }

func (p *Plugin) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /check", p.handleCheck)
}

// Check fetches the manifest and compares its version with the running one.
func (p *Plugin) Check(ctx context.Context) (Result, error) {
	res := Result{CurrentVersion: p.opts.Current}
	if p.opts.Endpoint == "" {
		return res, ErrNoEndpoint
	}
	current := canonical(p.opts.Current)
	if !semver.IsValid(current) {
		return res, fmt.Errorf("updater: running version %q is not semver", p.opts.Current)
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	m, err := p.fetch(ctx)
	if err != nil {
		return res, err
	}
	latest := canonical(m.Version)
	if !semver.IsValid(latest) {
		return res, fmt.Errorf("updater: manifest version %q is not semver", m.Version)
	}

	res.Version = m.Version
	res.Date = m.PubDate
	res.Body = m.Notes
	res.Available = semver.Compare(latest, current) > 0
	return res, nil
}

func (p *Plugin) fetch(ctx context.Context) (Manifest, error) {
	var m Manifest
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.opts.Endpoint, nil)
	if err != nil {
		return m, fmt.Errorf("updater: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.opts.Client.Do(req)
	if err != nil {
		return m, fmt.Errorf("updater: fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return m, fmt.Errorf("updater: fetch manifest: %s", resp.Status)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&m); err != nil {
		return m, fmt.Errorf("updater: decode manifest: %w", err)
	}
	return m, nil
}

func (p *Plugin) handleCheck(w http.ResponseWriter, r *http.Request) {
	res, err := p.Check(r.Context())
	switch {
	case errors.Is(err, ErrNoEndpoint):
		host.WriteJSONError(w, http.StatusServiceUnavailable, "not_configured", err.Error())
	case err != nil:
		p.log.Warn("update check failed", "err", err)
		host.WriteJSONError(w, http.StatusBadGateway, "check_failed", err.Error())
	default:
		host.WriteJSON(w, http.StatusOK, res)
	}
}

// canonical prepares a version for x/mod/semver, which requires the "v"
// prefix. Versions rendered by maloquacious/semver may carry "+build"
// metadata; x/mod/semver accepts it and ignores it when comparing.
func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
