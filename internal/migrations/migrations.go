// Package migrations holds the ordered, build-time list of schema migrations
// for the application database.
//
// Scripts live next to this file as NNN_<description>.sql and are compiled
// into the binary. The list is append-only: once a version ships, its script
// never changes; a correction is a new version.
package migrations

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"

	apperrors "github.com/hakawati/hakawati/internal/errors"
)

//go:embed *.sql
var scriptsFS embed.FS

// Kind is the direction of a migration. Only Forward is supported.
type Kind int

const (
	Forward Kind = iota + 1
)

func (k Kind) String() string {
	if k == Forward {
		return "forward"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Migration is a single forward schema change.
type Migration struct {
	Version     int
	Description string
	Kind        Kind
	SQL         string
}

// reScriptFile matches NNN_description.sql
var reScriptFile = regexp.MustCompile(`^(\d{3})_([a-z0-9_]+)\.sql$`)

var registry = []Migration{
	{
		Version:     1,
		Description: "create_scenarios_table",
		Kind:        Forward,
		SQL:         mustRead("001_create_scenarios.sql"),
	},
	{
		Version:     2,
		Description: "create_tales_table",
		Kind:        Forward,
		SQL:         mustRead("002_create_tales.sql"),
	},
}

func mustRead(name string) string {
	b, err := fs.ReadFile(scriptsFS, name)
	if err != nil {
		panic(fmt.Sprintf("migrations: embedded script %s: %v", name, err))
	}
	return string(b)
}

// Registry returns a copy of the compiled-in migrations in version order.
func Registry() []Migration {
	out := make([]Migration, len(registry))
	copy(out, registry)
	return out
}

// Scripts returns the embedded script tree.
func Scripts() fs.FS {
	return scriptsFS
}

// Max returns the highest version in ms, or 0 when ms is empty.
func Max(ms []Migration) int {
	if len(ms) == 0 {
		return 0
	}
	return ms[len(ms)-1].Version
}

// Validate checks that versions are unique, start at 1, strictly increase
// without gaps, and that every migration is forward with a non-empty script.
func Validate(ms []Migration) error {
	for i, m := range ms {
		want := i + 1
		if m.Version != want {
			return apperrors.New(apperrors.KindRegistryInvalid,
				fmt.Sprintf("entry %d has version %d, want %d", i, m.Version, want))
		}
		if m.Kind != Forward {
			return apperrors.New(apperrors.KindRegistryInvalid,
				fmt.Sprintf("version %d: unsupported kind %s", m.Version, m.Kind))
		}
		if m.Description == "" {
			return apperrors.New(apperrors.KindRegistryInvalid,
				fmt.Sprintf("version %d: description is required", m.Version))
		}
		if len(m.SQL) == 0 {
			return apperrors.New(apperrors.KindRegistryInvalid,
				fmt.Sprintf("version %d: empty script", m.Version))
		}
	}
	return nil
}

// Checksum returns the hex SHA-256 of the migration script.
func Checksum(m Migration) string {
	sum := sha256.Sum256([]byte(m.SQL))
	return hex.EncodeToString(sum[:])
}

// ScriptFile describes a script found in a migration tree.
type ScriptFile struct {
	Version int
	Name    string
	Path    string
}

// ListScripts reads NNN_name.sql files from fsys, sorted by version.
// Files that do not match the pattern are skipped; duplicate versions are an
// error.
func ListScripts(fsys fs.FS) ([]ScriptFile, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}

	var scripts []ScriptFile
	seen := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		matches := reScriptFile.FindStringSubmatch(e.Name())
		if matches == nil {
			continue
		}
		version, err := strconv.Atoi(matches[1])
		if err != nil {
			return nil, fmt.Errorf("invalid version in %q: %w", e.Name(), err)
		}
		if existing, ok := seen[version]; ok {
			return nil, fmt.Errorf("duplicate migration version %d: %q and %q", version, existing, e.Name())
		}
		seen[version] = e.Name()
		scripts = append(scripts, ScriptFile{Version: version, Name: matches[2], Path: e.Name()})
	}

	sort.Slice(scripts, func(i, j int) bool {
		return scripts[i].Version < scripts[j].Version
	})
	return scripts, nil
}
