// Package paths resolves and prepares the per-user directory that holds the
// application's local state.
package paths

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	gap "github.com/muesli/go-app-paths"

	apperrors "github.com/hakawati/hakawati/internal/errors"
)

// DataDir returns the absolute per-user local data directory for the
// application identifier, following the host platform's convention for
// non-roaming application state. It does not touch the filesystem.
func DataDir(identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", apperrors.New(apperrors.KindHostPathUnavailable, "application identifier is required")
	}

	dirs, err := gap.NewScope(gap.User, identifier).DataDirs()
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindHostPathUnavailable, "resolve user data dir", err)
	}
	if len(dirs) == 0 || dirs[0] == "" {
		return "", apperrors.New(apperrors.KindHostPathUnavailable, "no user data dir for this session")
	}

	dir, err := filepath.Abs(dirs[0])
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindHostPathUnavailable, dirs[0], err)
	}
	return dir, nil
}

// ConfigFile returns the path of name inside the per-user config directory
// for the application identifier.
func ConfigFile(identifier, name string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", fmt.Errorf("application identifier is required")
	}
	return gap.NewScope(gap.User, identifier).ConfigPath(name)
}

// Override validates an explicitly configured data directory.
func Override(dir string) (string, error) {
	if !filepath.IsAbs(dir) {
		return "", apperrors.New(apperrors.KindHostPathUnavailable, fmt.Sprintf("%s: data directory must be absolute", dir))
	}
	return filepath.Clean(dir), nil
}

// EnsureDir guarantees that dir exists as a directory the current user can
// create files in, creating it and any missing ancestors.
func EnsureDir(dir string) error {
	info, err := os.Stat(dir)
	if err == nil && !info.IsDir() {
		return apperrors.New(apperrors.KindPathTypeConflict, fmt.Sprintf("%s: exists and is not a directory", dir))
	}
	if err != nil {
		// Below a regular file Stat reports ENOTDIR, not ErrNotExist.
		if conflict := fileAncestor(dir); conflict != "" {
			return apperrors.New(apperrors.KindPathTypeConflict, fmt.Sprintf("%s: ancestor %s is not a directory", dir, conflict))
		}
		if !stderrors.Is(err, fs.ErrNotExist) {
			return apperrors.Wrap(apperrors.KindDirectoryCreateFailed, dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperrors.Wrap(apperrors.KindDirectoryCreateFailed, dir, err)
		}
	}

	if err := checkWritable(dir); err != nil {
		return apperrors.Wrap(apperrors.KindDirectoryCreateFailed, dir, err)
	}
	return nil
}

// fileAncestor returns the nearest existing ancestor of dir when it is not a
// directory, or "" otherwise.
func fileAncestor(dir string) string {
	for current := filepath.Dir(dir); ; current = filepath.Dir(current) {
		info, err := os.Stat(current)
		if err == nil {
			if info.IsDir() {
				return ""
			}
			return current
		}
		if parent := filepath.Dir(current); parent == current {
			return ""
		}
	}
}

func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".hakawati-write-*")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	return os.Remove(name)
}
