package sqlite

import (
	"fmt"
	"strings"

	"github.com/hakawati/hakawati/internal/store"
)

// pragma represents a SQLite pragma setting.
type pragma struct {
	name  string
	value string
}

// persistentPragmas are applied to every pooled connection.
var persistentPragmas = []pragma{
	{name: "foreign_keys", value: "ON"},
	{name: "busy_timeout", value: "5000"},
	{name: "journal_mode", value: "WAL"},
	{name: "synchronous", value: "NORMAL"},
	{name: "temp_store", value: "FILE"},
	{name: "locking_mode", value: "NORMAL"},
}

// readOnlyPragmas leave the journal mode as found, so inspecting a database
// never rewrites its header, and reject writes on the connection.
var readOnlyPragmas = []pragma{
	{name: "busy_timeout", value: "5000"},
	{name: "query_only", value: "ON"},
}

// buildDSN constructs a DSN for modernc.org/sqlite.
// modernc uses the syntax: file:path?_pragma=name(value)&_pragma=name2(value2)
// The path is URI-encoded so that the driver's query split and SQLite's URI
// parser both see exactly the filesystem path.
func buildDSN(path string, pragmas []pragma) string {
	var sb strings.Builder
	sb.WriteString(store.FileURI(path))

	for i, p := range pragmas {
		if i > 0 {
			sb.WriteString("&")
		} else {
			sb.WriteString("?")
		}
		fmt.Fprintf(&sb, "_pragma=%s(%s)", p.name, p.value)
	}

	return sb.String()
}
