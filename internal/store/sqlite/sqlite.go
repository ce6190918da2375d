package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/hakawati/hakawati/internal/errors"
	"github.com/hakawati/hakawati/internal/logger"
	"github.com/hakawati/hakawati/internal/store"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using modernc.org/sqlite.
type SQLiteStore struct {
	loc     store.Location
	db      *sql.DB
	logger  logger.Logger
	pragmas []pragma
}

var _ store.Store = (*SQLiteStore)(nil)

// New creates a new SQLiteStore for the located database file.
func New(loc store.Location, log logger.Logger) *SQLiteStore {
	return &SQLiteStore{
		loc:     loc,
		logger:  logger.OrDefault(log),
		pragmas: persistentPragmas,
	}
}

// NewReadOnly creates a store for inspecting an existing database. Its
// connection keeps the file's journal mode and refuses writes, so Migrate
// and InitSchema fail on it.
func NewReadOnly(loc store.Location, log logger.Logger) *SQLiteStore {
	s := New(loc, log)
	s.pragmas = readOnlyPragmas
	return s
}

// Location returns where the store's database lives.
func (s *SQLiteStore) Location() store.Location {
	return s.loc
}

// Open opens the SQLite database with safe defaults, creating the file if it
// does not exist. Failures, including a lock held by another process, are
// reported as OpenFailed.
func (s *SQLiteStore) Open(ctx context.Context) error {
	if s.db != nil {
		return nil
	}
	dsn := buildDSN(s.loc.Path, s.pragmas)
	s.logger.Debug("opening database", "dsn", dsn)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return apperrors.Wrap(apperrors.KindOpenFailed, s.loc.Path, err)
	}

	// One connection: statements from the front-end are serialized, and
	// total_changes() observes every write made through the handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return apperrors.Wrap(apperrors.KindOpenFailed, s.loc.Path, err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// DB returns the open handle, or nil before Open.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// InitSchema creates the metadata and history tables and seeds the schema
// marker with 0. It is idempotent.
func (s *SQLiteStore) InitSchema(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, metaSchema); err != nil {
		return fmt.Errorf("failed to create metadata tables: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CheckState returns the current state of the datastore.
func (s *SQLiteStore) CheckState(ctx context.Context, registryMax int) (store.StoreState, error) {
	if s.db == nil {
		return store.StateMissing, fmt.Errorf("database not opened")
	}

	initialized, err := s.tableExists(ctx, metaTable)
	if err != nil {
		return store.StateUninitialized, fmt.Errorf("failed to check %s table: %w", metaTable, err)
	}
	if !initialized {
		return store.StateUninitialized, nil
	}

	version, err := s.GetSchemaVersion(ctx)
	if err != nil {
		return store.StateUninitialized, fmt.Errorf("failed to get schema version: %w", err)
	}

	switch {
	case version < registryMax:
		return store.StateBehind, nil
	case version > registryMax:
		return store.StateAhead, nil
	}
	return store.StateReady, nil
}

// GetSchemaVersion returns the schema marker. An uninitialized database is
// at version 0.
func (s *SQLiteStore) GetSchemaVersion(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}
	return readSchemaVersion(ctx, s.db)
}

// AppliedMigrations returns the migration history in version order.
func (s *SQLiteStore) AppliedMigrations(ctx context.Context) ([]store.AppliedMigration, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT version, description, checksum, applied_at FROM `+historyTable+` ORDER BY version`)
	if err != nil {
		if isNoSuchTable(err) {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var result []store.AppliedMigration
	for rows.Next() {
		var m store.AppliedMigration
		var appliedAt int64
		if err := rows.Scan(&m.Version, &m.Description, &m.Checksum, &appliedAt); err != nil {
			return nil, err
		}
		m.AppliedAt = time.Unix(appliedAt, 0).UTC()
		result = append(result, m)
	}
	return result, rows.Err()
}

// IntegrityCheck runs PRAGMA integrity_check and returns its first line,
// "ok" for a healthy database.
func (s *SQLiteStore) IntegrityCheck(ctx context.Context) (string, error) {
	if s.db == nil {
		return "", fmt.Errorf("database not opened")
	}
	var result string
	if err := s.db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&result); err != nil {
		return "", fmt.Errorf("integrity check: %w", err)
	}
	return result, nil
}

func (s *SQLiteStore) tableExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readSchemaVersion(ctx context.Context, q querier) (int, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM `+metaTable+` WHERE key = ?`, schemaVersionKey).Scan(&value)
	if err != nil {
		if isNoSuchTable(err) || errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("fetch %s: %w", schemaVersionKey, err)
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", schemaVersionKey, value, err)
	}
	return v, nil
}

// isNoSuchTable checks if an error indicates a missing table.
func isNoSuchTable(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "no such table")
}
