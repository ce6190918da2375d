package opener

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hakawati/hakawati/internal/logger"
)

type recorder struct {
	urls  []string
	files []string
	err   error
}

func (r *recorder) OpenURL(u string) error {
	r.urls = append(r.urls, u)
	return r.err
}

func (r *recorder) OpenFile(path string) error {
	r.files = append(r.files, path)
	return r.err
}

func TestOpenURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{url: "https://hakawati.app/tales"},
		{url: "http://localhost:1420/"},
		{url: "mailto:stories@hakawati.app"},
		{url: "file:///etc/passwd", wantErr: true},
		{url: "javascript:alert(1)", wantErr: true},
		{url: "https://", wantErr: true},
		{url: "not a url", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			rec := &recorder{}
			err := New(rec, logger.Discard()).OpenURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if len(rec.urls) != 0 {
					t.Errorf("rejected url reached the launcher: %v", rec.urls)
				}
				return
			}
			if err != nil {
				t.Fatalf("OpenURL: %v", err)
			}
			if len(rec.urls) != 1 {
				t.Errorf("launcher calls = %v", rec.urls)
			}
		})
	}
}

func TestOpenPath(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	p := New(rec, logger.Discard())

	if err := p.OpenPath(dir); err != nil {
		t.Fatalf("OpenPath(%s): %v", dir, err)
	}
	if err := p.OpenPath("relative/file.txt"); err == nil {
		t.Error("relative path must be rejected")
	}
	if err := p.OpenPath(filepath.Join(dir, "missing")); err == nil {
		t.Error("missing path must be rejected")
	}
	if len(rec.files) != 1 {
		t.Errorf("launcher calls = %v, want 1", rec.files)
	}
}

func TestRoutes(t *testing.T) {
	tests := []struct {
		name     string
		launcher *recorder
		path     string
		body     string
		wantCode int
	}{
		{name: "open url", launcher: &recorder{}, path: "/open-url", body: `{"url":"https://hakawati.app"}`, wantCode: http.StatusNoContent},
		{name: "bad scheme", launcher: &recorder{}, path: "/open-url", body: `{"url":"ftp://x"}`, wantCode: http.StatusBadRequest},
		{name: "malformed", launcher: &recorder{}, path: "/open-path", body: `[`, wantCode: http.StatusBadRequest},
		{name: "launcher failure", launcher: &recorder{err: errors.New("no browser")}, path: "/open-url", body: `{"url":"https://hakawati.app"}`, wantCode: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			New(tt.launcher, logger.Discard()).RegisterRoutes(mux)
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body)
			}
		})
	}
}
