package sqlite

const (
	metaTable        = "hakawati_meta"
	historyTable     = "hakawati_migrations"
	schemaVersionKey = "schema_version"
)

// metaSchema creates the runner-owned tables. The marker row is seeded with
// 0 only when absent, so running it against an initialized database changes
// no rows.
const metaSchema = `
CREATE TABLE IF NOT EXISTS hakawati_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS hakawati_migrations (
    version INTEGER PRIMARY KEY,
    description TEXT NOT NULL,
    checksum TEXT NOT NULL,
    applied_at INTEGER NOT NULL
);

INSERT OR IGNORE INTO hakawati_meta (key, value, updated_at)
VALUES ('schema_version', '0', strftime('%s', 'now'));
`
