package store

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultDBFile is the application's sole database file.
	DefaultDBFile = "hakawati.db"

	// DescriptorScheme prefixes a connection descriptor.
	DescriptorScheme = "sqlite:"
)

// Location describes where the database lives.
type Location struct {
	Dir        string // prepared data directory
	Path       string // absolute database file path
	Descriptor string // "sqlite:" + Path
}

// Locate derives the database file path and descriptor from a prepared
// data directory.
func Locate(dir string) (Location, error) {
	if !filepath.IsAbs(dir) {
		return Location{}, fmt.Errorf("%s: data directory must be absolute", dir)
	}
	dir = filepath.Clean(dir)
	path := GetDBPath(dir)
	return Location{
		Dir:        dir,
		Path:       path,
		Descriptor: DescriptorScheme + path,
	}, nil
}

// GetDBPath returns the full path to the database file.
func GetDBPath(storePath string) string {
	return filepath.Join(storePath, DefaultDBFile)
}

// CheckExists verifies if the datastore exists at the given path.
// Returns true if the store exists, false otherwise.
func CheckExists(storePath string) (bool, error) {
	dbPath := GetDBPath(storePath)
	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check store existence: %w", err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("datastore path is a directory, expected file: %s", dbPath)
	}
	return true, nil
}

// ParseDescriptor returns the filesystem path named by a "sqlite:" descriptor.
func ParseDescriptor(descriptor string) (string, error) {
	path, ok := strings.CutPrefix(descriptor, DescriptorScheme)
	if !ok || path == "" {
		return "", fmt.Errorf("%q: expected %s<path>", descriptor, DescriptorScheme)
	}
	return path, nil
}

// ResourceName returns the key under which the front-end looks up the
// database handle for a descriptor: the base name of its file.
func ResourceName(descriptor string) string {
	path, err := ParseDescriptor(descriptor)
	if err != nil {
		path = descriptor
	}
	return filepath.Base(path)
}

// FileURI encodes an absolute path as an SQLite URI filename. Every byte the
// URI grammar treats specially is percent-encoded so the engine opens exactly
// that path.
func FileURI(path string) string {
	p := filepath.ToSlash(path)
	if vol := filepath.VolumeName(path); vol != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{Path: p}
	return "file:" + u.EscapedPath()
}
