// Package host is the native shell around the front-end: it runs one-shot
// setup hooks, publishes named resources, serves IPC commands and the SQL
// bridge, mounts plugins and runs the public and admin HTTP servers.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/hakawati/hakawati/internal/logger"
)

// Options configures the servers.
type Options struct {
	Addr            string        // public listener, e.g. "127.0.0.1:1420"
	AdminAddr       string        // loopback admin listener; empty disables it
	PublicDir       string        // front-end assets
	ShutdownTimeout time.Duration // graceful shutdown budget
	Version         string        // reported by /admin/status

	// OnReady is called with the public URL once both listeners are bound.
	OnReady func(url string)
}

// SetupFunc runs once during Build, before any listener opens.
type SetupFunc func(ctx context.Context, app *App) error

// CommandFunc handles an IPC command. args is the raw JSON request body.
type CommandFunc func(ctx context.Context, args json.RawMessage) (any, error)

// Plugin is a collaborator mounted under /plugin/<Name>/.
type Plugin interface {
	Name() string
	RegisterRoutes(mux *http.ServeMux)
}

// Builder assembles an App.
type Builder struct {
	opts     Options
	log      logger.Logger
	setups   []SetupFunc
	plugins  []Plugin
	commands map[string]CommandFunc
}

func NewBuilder(opts Options, log logger.Logger) *Builder {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 15 * time.Second
	}
	return &Builder{
		opts:     opts,
		log:      logger.OrDefault(log),
		commands: map[string]CommandFunc{},
	}
}

// Setup adds a hook. Hooks run in registration order; the first error
// aborts Build.
func (b *Builder) Setup(fn SetupFunc) *Builder {
	b.setups = append(b.setups, fn)
	return b
}

func (b *Builder) Plugin(p Plugin) *Builder {
	b.plugins = append(b.plugins, p)
	return b
}

// Command registers an IPC command served at POST /ipc/<name>.
func (b *Builder) Command(name string, fn CommandFunc) *Builder {
	b.commands[name] = fn
	return b
}

// Build runs the setup hooks and wires the handlers. If a hook fails,
// resources managed so far are closed and the hook's error is returned
// unchanged.
func (b *Builder) Build(ctx context.Context) (*App, error) {
	app := &App{
		opts:      b.opts,
		log:       b.log,
		resources: map[string]any{},
		commands:  b.commands,
		shutdown:  make(chan struct{}),
		started:   time.Now(),
	}

	for _, fn := range b.setups {
		if err := fn(ctx, app); err != nil {
			_ = app.Close()
			return nil, err
		}
	}

	plugins := map[string]Plugin{}
	for _, p := range b.plugins {
		name := p.Name()
		if name == "" {
			_ = app.Close()
			return nil, errors.New("plugin with empty name")
		}
		if _, dup := plugins[name]; dup {
			_ = app.Close()
			return nil, fmt.Errorf("plugin %q registered twice", name)
		}
		plugins[name] = p
	}

	app.public = app.publicMux(b.plugins)
	app.admin = app.adminMux()
	return app, nil
}

// App is a built shell.
type App struct {
	opts     Options
	log      logger.Logger
	commands map[string]CommandFunc

	mu        sync.Mutex
	resources map[string]any
	order     []string
	closed    bool

	public http.Handler
	admin  http.Handler

	shutdown     chan struct{}
	shutdownOnce sync.Once
	started      time.Time
}

// Manage publishes v under name. Names are unique.
func (a *App) Manage(name string, v any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errors.New("app is closed")
	}
	if _, ok := a.resources[name]; ok {
		return fmt.Errorf("resource %q already managed", name)
	}
	a.resources[name] = v
	a.order = append(a.order, name)
	return nil
}

// Resource returns the value published under name.
func (a *App) Resource(name string) (any, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.resources[name]
	return v, ok
}

func (a *App) resourceNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, len(a.order))
	copy(names, a.order)
	sort.Strings(names)
	return names
}

// Handler serves the front-end surface.
func (a *App) Handler() http.Handler { return a.public }

// AdminHandler serves the JSON-only admin surface.
func (a *App) AdminHandler() http.Handler { return a.admin }

// RequestShutdown makes Run return. Safe to call more than once.
func (a *App) RequestShutdown() {
	a.shutdownOnce.Do(func() { close(a.shutdown) })
}

// Done is closed once shutdown has been requested.
func (a *App) Done() <-chan struct{} { return a.shutdown }

// Close closes every managed io.Closer in reverse order of publication.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	order := a.order
	a.mu.Unlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		c, ok := a.resources[order[i]].(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", order[i], err))
		}
	}
	return errors.Join(errs...)
}
