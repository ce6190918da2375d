package sqlite

import (
	"context"
	"fmt"
	"strconv"
	"time"

	apperrors "github.com/hakawati/hakawati/internal/errors"
	"github.com/hakawati/hakawati/internal/migrations"
)

// MigrateResult reports what a Migrate call did.
type MigrateResult struct {
	From    int   // marker before the run
	To      int   // marker after the run
	Applied []int // versions applied by this run, ascending
}

// Migrate brings the database to the highest registry version. Each pending
// migration runs in its own transaction together with the marker update, so
// a failure leaves every earlier migration committed and none of the failed
// one's objects behind. An up-to-date database is left without writes.
func (s *SQLiteStore) Migrate(ctx context.Context, registry []migrations.Migration) (MigrateResult, error) {
	var res MigrateResult

	if err := migrations.Validate(registry); err != nil {
		return res, err
	}
	if s.db == nil {
		return res, apperrors.New(apperrors.KindOpenFailed, "database not opened")
	}

	if err := s.InitSchema(ctx); err != nil {
		return res, apperrors.Wrap(apperrors.KindOpenFailed, s.loc.Path, err)
	}

	current, err := s.GetSchemaVersion(ctx)
	if err != nil {
		return res, apperrors.Wrap(apperrors.KindOpenFailed, s.loc.Path, err)
	}
	res.From, res.To = current, current

	latest := migrations.Max(registry)
	if current > latest {
		return res, apperrors.New(apperrors.KindSchemaNewerThanBinary,
			fmt.Sprintf("database schema version %d, this binary knows up to %d", current, latest))
	}

	if err := s.verifyApplied(ctx, registry, current); err != nil {
		return res, err
	}

	for _, m := range registry {
		if m.Version <= current {
			continue
		}
		s.logger.Info("applying migration", "version", m.Version, "description", m.Description)
		if err := s.applyMigration(ctx, m, current); err != nil {
			return res, apperrors.MigrationFailed(m.Version, err)
		}
		current = m.Version
		res.To = current
		res.Applied = append(res.Applied, m.Version)
	}

	if len(res.Applied) == 0 {
		s.logger.Debug("schema up to date", "version", current)
	}
	return res, nil
}

// VerifyChecksums compares the recorded history against registry without
// writing. Versions above the current marker are ignored.
func (s *SQLiteStore) VerifyChecksums(ctx context.Context, registry []migrations.Migration) error {
	if s.db == nil {
		return apperrors.New(apperrors.KindOpenFailed, "database not opened")
	}
	current, err := s.GetSchemaVersion(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.KindOpenFailed, "read schema version", err)
	}
	if current > migrations.Max(registry) {
		current = migrations.Max(registry)
	}
	return s.verifyApplied(ctx, registry, current)
}

// verifyApplied checks that scripts already applied to the database have not
// changed since.
func (s *SQLiteStore) verifyApplied(ctx context.Context, registry []migrations.Migration, current int) error {
	applied, err := s.AppliedMigrations(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.KindOpenFailed, "read migration history", err)
	}
	for _, a := range applied {
		if a.Version < 1 || a.Version > current {
			continue
		}
		want := migrations.Checksum(registry[a.Version-1])
		if a.Checksum != want {
			return apperrors.ChecksumMismatch(a.Version, a.Checksum, want)
		}
	}
	return nil
}

// applyMigration runs one migration script and advances the marker from
// prev to m.Version in a single transaction.
func (s *SQLiteStore) applyMigration(ctx context.Context, m migrations.Migration, prev int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("exec: %w", err)
	}

	ts := time.Now().UTC().Unix()
	res, err := tx.ExecContext(ctx,
		`UPDATE `+metaTable+` SET value = ?, updated_at = ? WHERE key = ? AND value = ?`,
		strconv.Itoa(m.Version), ts, schemaVersionKey, strconv.Itoa(prev))
	if err != nil {
		return fmt.Errorf("update %s: %w", schemaVersionKey, err)
	}
	rows, err := res.RowsAffected()
	if err == nil && rows != 1 {
		return fmt.Errorf("%s update affected %d rows, expected 1", schemaVersionKey, rows)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO `+historyTable+` (version, description, checksum, applied_at) VALUES (?, ?, ?, ?)`,
		m.Version, m.Description, migrations.Checksum(m), ts)
	if err != nil {
		return fmt.Errorf("record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
