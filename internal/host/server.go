package host

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// publicMux serves assets, IPC, the SQL bridge and plugin routes.
func (a *App) publicMux(plugins []Plugin) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/", a.assets())

	mux.HandleFunc("GET /live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-a.shutdown:
			http.Error(w, "SHUTTING DOWN", http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("READY"))
		}
	})

	mux.Handle("POST /ipc/{name}", a.withRequestID(jsonOnly(http.HandlerFunc(a.handleIPC))))
	mux.Handle("POST /sql/execute", a.withRequestID(jsonOnly(http.HandlerFunc(a.handleExecute))))
	mux.Handle("POST /sql/select", a.withRequestID(jsonOnly(http.HandlerFunc(a.handleSelect))))

	for _, p := range plugins {
		sub := http.NewServeMux()
		p.RegisterRoutes(sub)
		prefix := "/plugin/" + p.Name()
		mux.Handle(prefix+"/", a.withRequestID(http.StripPrefix(prefix, sub)))
	}
	return mux
}

// assets serves files from PublicDir and falls back to index.html for
// client-side routes.
func (a *App) assets() http.Handler {
	files := http.FileServer(http.Dir(a.opts.PublicDir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.opts.PublicDir == "" {
			http.NotFound(w, r)
			return
		}
		name := filepath.Join(a.opts.PublicDir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		if info, err := os.Stat(name); err != nil || info.IsDir() && r.URL.Path != "/" {
			http.ServeFile(w, r, filepath.Join(a.opts.PublicDir, "index.html"))
			return
		}
		files.ServeHTTP(w, r)
	})
}

// Run serves until ctx is cancelled, RequestShutdown is called, or a server
// fails, then shuts both servers down within ShutdownTimeout.
func (a *App) Run(ctx context.Context) error {
	publicLn, err := net.Listen("tcp", a.opts.Addr)
	if err != nil {
		return fmt.Errorf("public listener: %w", err)
	}
	publicSrv := &http.Server{Handler: a.public}

	var adminLn net.Listener
	adminSrv := &http.Server{Handler: a.admin}
	if a.opts.AdminAddr != "" {
		if err := requireLoopback(a.opts.AdminAddr); err != nil {
			_ = publicLn.Close()
			return err
		}
		adminLn, err = net.Listen("tcp", a.opts.AdminAddr)
		if err != nil {
			_ = publicLn.Close()
			return fmt.Errorf("admin listener bind failed (loopback only): %w", err)
		}
	}

	errCh := make(chan error, 2)

	go func() {
		a.log.Info("public server listening", "addr", publicLn.Addr().String())
		if err := publicSrv.Serve(publicLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("public server error: %w", err)
		}
	}()

	if adminLn != nil {
		go func() {
			a.log.Info("admin server listening (JSON-only)", "addr", adminLn.Addr().String())
			if err := adminSrv.Serve(adminLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("admin server error: %w", err)
			}
		}()
	}

	if a.opts.OnReady != nil {
		a.opts.OnReady("http://" + publicLn.Addr().String() + "/")
	}

	var runErr error
	select {
	case <-ctx.Done():
	case <-a.shutdown:
	case runErr = <-errCh:
		a.log.Error("server error", "err", runErr)
	}
	a.RequestShutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.opts.ShutdownTimeout)
	defer cancel()

	_ = publicSrv.Shutdown(shutdownCtx)
	if adminLn != nil {
		_ = adminSrv.Shutdown(shutdownCtx)
	}
	a.log.Info("shutdown complete")
	return runErr
}

func requireLoopback(addr string) error {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("admin address %q: %w", addr, err)
	}
	if strings.EqualFold(h, "localhost") {
		return nil
	}
	if ip := net.ParseIP(h); ip != nil && ip.IsLoopback() {
		return nil
	}
	return fmt.Errorf("admin address %q must be loopback", addr)
}
