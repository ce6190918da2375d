package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/hakawati/hakawati/internal/errors"
	"github.com/hakawati/hakawati/internal/logger"
	"github.com/hakawati/hakawati/internal/migrations"
	"github.com/hakawati/hakawati/internal/store"
)

const (
	scenariosSQL = `CREATE TABLE scenarios (id TEXT PRIMARY KEY, name TEXT NOT NULL);`
	talesSQL     = `CREATE TABLE tales (id TEXT PRIMARY KEY, scenario_id TEXT, name TEXT NOT NULL);`
	poisonedSQL  = `CREATE TABLE tales (id TEXT PRIMARY KEY); INSERT INTO no_such_table VALUES (1);`
)

func registryOf(scripts ...string) []migrations.Migration {
	names := []string{"create_scenarios_table", "create_tales_table", "create_extra_table"}
	var ms []migrations.Migration
	for i, sql := range scripts {
		ms = append(ms, migrations.Migration{
			Version:     i + 1,
			Description: names[i],
			Kind:        migrations.Forward,
			SQL:         sql,
		})
	}
	return ms
}

// openStore opens the database in dir and closes it when the test ends.
func openStore(t *testing.T, dir string) *SQLiteStore {
	t.Helper()
	loc, err := store.Locate(dir)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	s := New(loc, logger.Discard())
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func schemaVersion(t *testing.T, s *SQLiteStore) int {
	t.Helper()
	v, err := s.GetSchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("GetSchemaVersion: %v", err)
	}
	return v
}

func hasTable(t *testing.T, s *SQLiteStore, name string) bool {
	t.Helper()
	ok, err := s.tableExists(context.Background(), name)
	if err != nil {
		t.Fatalf("tableExists(%s): %v", name, err)
	}
	return ok
}

func totalChanges(t *testing.T, s *SQLiteStore) int {
	t.Helper()
	var n int
	if err := s.DB().QueryRow(`SELECT total_changes()`).Scan(&n); err != nil {
		t.Fatalf("total_changes: %v", err)
	}
	return n
}

func TestMigrate_FreshDatabase(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir())

	res, err := s.Migrate(ctx, registryOf(scenariosSQL, talesSQL))
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if res.From != 0 || res.To != 2 || len(res.Applied) != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
	if v := schemaVersion(t, s); v != 2 {
		t.Errorf("schema_version = %d, want 2", v)
	}
	for _, table := range []string{"scenarios", "tales", metaTable, historyTable} {
		if !hasTable(t, s, table) {
			t.Errorf("table %s does not exist", table)
		}
	}

	applied, err := s.AppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(applied) != 2 || applied[0].Version != 1 || applied[1].Description != "create_tales_table" {
		t.Errorf("unexpected history: %+v", applied)
	}
	if applied[0].Checksum != migrations.Checksum(registryOf(scenariosSQL)[0]) {
		t.Error("history checksum does not match the applied script")
	}
}

func TestMigrate_CompiledRegistry(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir())

	if _, err := s.Migrate(ctx, migrations.Registry()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if v := schemaVersion(t, s); v != migrations.Max(migrations.Registry()) {
		t.Errorf("schema_version = %d, want %d", v, migrations.Max(migrations.Registry()))
	}

	_, err := s.DB().ExecContext(ctx,
		`INSERT INTO scenarios (id, name, created_at, updated_at) VALUES ('s1', 'Desert', 1, 1)`)
	if err != nil {
		t.Fatalf("insert scenario: %v", err)
	}
	_, err = s.DB().ExecContext(ctx,
		`INSERT INTO tales (id, name, scenario_id, created_at, updated_at) VALUES ('t1', 'First', 's1', 1, 1)`)
	if err != nil {
		t.Fatalf("insert tale: %v", err)
	}
}

func TestMigrate_IdempotentRerun(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	reg := registryOf(scenariosSQL, talesSQL)

	first := openStore(t, dir)
	if _, err := first.Migrate(ctx, reg); err != nil {
		t.Fatalf("first Migrate: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second := openStore(t, dir)
	res, err := second.Migrate(ctx, reg)
	if err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if len(res.Applied) != 0 || res.From != 2 || res.To != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
	if n := totalChanges(t, second); n != 0 {
		t.Errorf("second run changed %d rows, want 0", n)
	}
	if v := schemaVersion(t, second); v != 2 {
		t.Errorf("schema_version = %d, want 2", v)
	}
}

func TestMigrate_PartialUpgrade(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	v1 := openStore(t, dir)
	if _, err := v1.Migrate(ctx, registryOf(scenariosSQL)); err != nil {
		t.Fatalf("Migrate v1: %v", err)
	}
	if _, err := v1.DB().ExecContext(ctx, `INSERT INTO scenarios (id, name) VALUES ('s1', 'Oasis')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_ = v1.Close()

	s := openStore(t, dir)
	res, err := s.Migrate(ctx, registryOf(scenariosSQL, talesSQL))
	if err != nil {
		t.Fatalf("Migrate v2: %v", err)
	}
	if len(res.Applied) != 1 || res.Applied[0] != 2 {
		t.Errorf("Applied = %v, want [2]", res.Applied)
	}
	if v := schemaVersion(t, s); v != 2 {
		t.Errorf("schema_version = %d, want 2", v)
	}
	var name string
	if err := s.DB().QueryRowContext(ctx, `SELECT name FROM scenarios WHERE id = 's1'`).Scan(&name); err != nil || name != "Oasis" {
		t.Errorf("pre-existing row lost: name=%q err=%v", name, err)
	}
}

func TestMigrate_PoisonedMigration(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := openStore(t, dir)
	_, err := s.Migrate(ctx, registryOf(scenariosSQL, poisonedSQL))
	if got := apperrors.KindOf(err); got != apperrors.KindMigrationFailed {
		t.Fatalf("got kind %q, want %q (err=%v)", got, apperrors.KindMigrationFailed, err)
	}
	if v := apperrors.VersionOf(err); v != 2 {
		t.Errorf("failed version = %d, want 2", v)
	}
	if v := schemaVersion(t, s); v != 1 {
		t.Errorf("schema_version = %d, want 1", v)
	}
	if !hasTable(t, s, "scenarios") {
		t.Error("v1 artifacts must survive a failed v2")
	}
	if hasTable(t, s, "tales") {
		t.Error("failed v2 must leave none of its objects behind")
	}
	_ = s.Close()

	fixed := openStore(t, dir)
	res, err := fixed.Migrate(ctx, registryOf(scenariosSQL, talesSQL))
	if err != nil {
		t.Fatalf("Migrate with fixed v2: %v", err)
	}
	if res.From != 1 || res.To != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestMigrate_SchemaNewerThanBinary(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := openStore(t, dir)
	if _, err := s.Migrate(ctx, registryOf(scenariosSQL, talesSQL)); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	_ = s.Close()

	old := openStore(t, dir)
	_, err := old.Migrate(ctx, registryOf(scenariosSQL))
	if got := apperrors.KindOf(err); got != apperrors.KindSchemaNewerThanBinary {
		t.Fatalf("got kind %q, want %q (err=%v)", got, apperrors.KindSchemaNewerThanBinary, err)
	}
	if n := totalChanges(t, old); n != 0 {
		t.Errorf("rejected run changed %d rows, want 0", n)
	}
	if v := schemaVersion(t, old); v != 2 {
		t.Errorf("schema_version = %d, want 2", v)
	}
}

func TestMigrate_ChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := openStore(t, dir)
	if _, err := s.Migrate(ctx, registryOf(scenariosSQL)); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	_ = s.Close()

	edited := `CREATE TABLE scenarios (id TEXT PRIMARY KEY, name TEXT NOT NULL, extra TEXT);`
	again := openStore(t, dir)
	_, err := again.Migrate(ctx, registryOf(edited, talesSQL))
	if got := apperrors.KindOf(err); got != apperrors.KindChecksumMismatch {
		t.Fatalf("got kind %q, want %q (err=%v)", got, apperrors.KindChecksumMismatch, err)
	}
	if apperrors.VersionOf(err) != 1 {
		t.Errorf("mismatch version = %d, want 1", apperrors.VersionOf(err))
	}
	if hasTable(t, again, "tales") {
		t.Error("no migration may run after a checksum mismatch")
	}
}

func TestVerifyChecksums(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir())
	if _, err := s.Migrate(ctx, registryOf(scenariosSQL, talesSQL)); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	before := totalChanges(t, s)

	if err := s.VerifyChecksums(ctx, registryOf(scenariosSQL, talesSQL)); err != nil {
		t.Errorf("unchanged registry: %v", err)
	}
	// An older registry only checks the versions it knows.
	if err := s.VerifyChecksums(ctx, registryOf(scenariosSQL)); err != nil {
		t.Errorf("prefix registry: %v", err)
	}
	err := s.VerifyChecksums(ctx, registryOf(scenariosSQL, poisonedSQL))
	if got := apperrors.KindOf(err); got != apperrors.KindChecksumMismatch {
		t.Errorf("got kind %q, want %q (err=%v)", got, apperrors.KindChecksumMismatch, err)
	}
	if totalChanges(t, s) != before {
		t.Error("VerifyChecksums must not write")
	}
}

func TestMigrate_InvalidRegistry(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)

	bad := registryOf(scenariosSQL, talesSQL)
	bad[1].Version = 3
	_, err := s.Migrate(context.Background(), bad)
	if got := apperrors.KindOf(err); got != apperrors.KindRegistryInvalid {
		t.Fatalf("got kind %q, want %q (err=%v)", got, apperrors.KindRegistryInvalid, err)
	}
	if hasTable(t, s, metaTable) {
		t.Error("an invalid registry must be rejected before any table is created")
	}
}

func TestMigrate_NotOpened(t *testing.T) {
	loc, _ := store.Locate(t.TempDir())
	s := New(loc, logger.Discard())
	_, err := s.Migrate(context.Background(), registryOf(scenariosSQL))
	if got := apperrors.KindOf(err); got != apperrors.KindOpenFailed {
		t.Fatalf("got kind %q, want %q", got, apperrors.KindOpenFailed)
	}
}

func TestOpen_CreatesFileAtUnusualPath(t *testing.T) {
	tests := []string{
		"with space",
		"ḥakawātī حكواتي",
		"query?and#hash",
		"100% done",
	}
	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), name)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				t.Skipf("filesystem rejects %q: %v", name, err)
			}
			s := openStore(t, dir)
			if _, err := s.Migrate(context.Background(), registryOf(scenariosSQL)); err != nil {
				t.Fatalf("Migrate: %v", err)
			}
			info, err := os.Stat(filepath.Join(dir, store.DefaultDBFile))
			if err != nil {
				t.Fatalf("database not created at the exact path: %v", err)
			}
			if info.Size() == 0 && !fileExists(filepath.Join(dir, store.DefaultDBFile+"-wal")) {
				t.Error("database file is empty and has no WAL")
			}
		})
	}
}

func TestOpen_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	garbage := make([]byte, 4096)
	for i := range garbage {
		garbage[i] = 0xA5
	}
	if err := os.WriteFile(filepath.Join(dir, store.DefaultDBFile), garbage, 0o644); err != nil {
		t.Fatal(err)
	}

	loc, _ := store.Locate(dir)
	s := New(loc, logger.Discard())
	defer s.Close()

	err := s.Open(context.Background())
	if err == nil {
		_, err = s.Migrate(context.Background(), registryOf(scenariosSQL))
	}
	if got := apperrors.KindOf(err); got != apperrors.KindOpenFailed {
		t.Fatalf("got kind %q, want %q (err=%v)", got, apperrors.KindOpenFailed, err)
	}
}

func TestCheckState(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir())

	state, err := s.CheckState(ctx, 2)
	if err != nil || state != store.StateUninitialized {
		t.Fatalf("fresh: got %v, %v", state, err)
	}

	if _, err := s.Migrate(ctx, registryOf(scenariosSQL)); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	tests := []struct {
		max  int
		want store.StoreState
	}{
		{max: 2, want: store.StateBehind},
		{max: 1, want: store.StateReady},
		{max: 0, want: store.StateAhead},
	}
	for _, tt := range tests {
		state, err := s.CheckState(ctx, tt.max)
		if err != nil || state != tt.want {
			t.Errorf("CheckState(%d) = %v, %v; want %v", tt.max, state, err, tt.want)
		}
	}
}

func TestIntegrityCheck(t *testing.T) {
	s := openStore(t, t.TempDir())
	if _, err := s.Migrate(context.Background(), registryOf(scenariosSQL)); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	got, err := s.IntegrityCheck(context.Background())
	if err != nil || got != "ok" {
		t.Errorf("IntegrityCheck = %q, %v", got, err)
	}
}

func TestNewReadOnly_KeepsJournalMode(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	loc, err := store.Locate(dir)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}

	plain, err := sql.Open("sqlite", loc.Path)
	if err != nil {
		t.Fatalf("open plain: %v", err)
	}
	if _, err := plain.ExecContext(ctx, `CREATE TABLE notes (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if err := plain.Close(); err != nil {
		t.Fatalf("close plain: %v", err)
	}

	s := NewReadOnly(loc, logger.Discard())
	if err := s.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	state, err := s.CheckState(ctx, 2)
	if err != nil || state != store.StateUninitialized {
		t.Errorf("CheckState = %v, %v", state, err)
	}
	if _, err := s.Migrate(ctx, registryOf(scenariosSQL)); err == nil {
		t.Error("Migrate on a read-only store must fail")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	plain, err = sql.Open("sqlite", loc.Path)
	if err != nil {
		t.Fatalf("reopen plain: %v", err)
	}
	defer plain.Close()
	var mode string
	if err := plain.QueryRowContext(ctx, `PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "delete" {
		t.Errorf("journal_mode = %q, want delete", mode)
	}
	var tables int
	if err := plain.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='table'`).Scan(&tables); err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if tables != 1 {
		t.Errorf("found %d tables, want only notes", tables)
	}
}

func TestBuildDSN(t *testing.T) {
	if filepath.Separator != '/' {
		t.Skip("unix paths")
	}
	got := buildDSN("/my data/hakawati.db", []pragma{{"foreign_keys", "ON"}, {"busy_timeout", "5000"}})
	want := "file:/my%20data/hakawati.db?_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
