// Package provision prepares the application database at startup: it
// resolves and creates the per-user data directory, takes the single-instance
// lock, locates the database file and brings its schema up to date.
//
// Every error returned by Run carries a kind from internal/errors; the kind
// names the stage that failed.
package provision

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/hakawati/hakawati/internal/errors"
	"github.com/hakawati/hakawati/internal/logger"
	"github.com/hakawati/hakawati/internal/migrations"
	"github.com/hakawati/hakawati/internal/paths"
	"github.com/hakawati/hakawati/internal/store"
	"github.com/hakawati/hakawati/internal/store/sqlite"
)

// Options configures a provisioning run.
type Options struct {
	// Identifier is the stable application identity used to resolve the
	// per-user data directory.
	Identifier string

	// DataDir overrides path resolution when set. Must be absolute.
	DataDir string

	// Migrations to apply. Uses migrations.Registry() if nil.
	Migrations []migrations.Migration

	// Logger for stage logging. Uses logger.Default if nil.
	Logger logger.Logger
}

// Provisioned is a ready database. The caller owns it and must Close it.
type Provisioned struct {
	DataDir   string
	Location  store.Location
	Store     *sqlite.SQLiteStore
	Lock      *paths.InstanceLock
	Migration sqlite.MigrateResult
}

// Close closes the database and then releases the instance lock.
func (p *Provisioned) Close() error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.Store != nil {
		errs = append(errs, p.Store.Close())
	}
	if p.Lock != nil {
		errs = append(errs, p.Lock.Release())
	}
	return errors.Join(errs...)
}

// Run executes the startup stages in order. On failure nothing is left open.
func Run(ctx context.Context, opts Options) (*Provisioned, error) {
	log := logger.OrDefault(opts.Logger)
	registry := opts.Migrations
	if registry == nil {
		registry = migrations.Registry()
	}

	// A broken registry is a programmer error; reject it before touching disk.
	if err := migrations.Validate(registry); err != nil {
		return nil, err
	}

	dir, err := ResolveDataDir(opts)
	if err != nil {
		return nil, err
	}
	log.Debug("resolved data directory", "dir", dir)

	if err := paths.EnsureDir(dir); err != nil {
		return nil, err
	}

	lock, err := paths.Lock(dir)
	if err != nil {
		return nil, err
	}
	p := &Provisioned{DataDir: dir, Lock: lock}

	success := false
	defer func() {
		if !success {
			_ = p.Close()
		}
	}()

	loc, err := store.Locate(dir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindHostPathUnavailable, "locate database", err)
	}
	p.Location = loc

	p.Store = sqlite.New(loc, log)
	if err := p.Store.Open(ctx); err != nil {
		return nil, err
	}

	res, err := p.Store.Migrate(ctx, registry)
	if err != nil {
		return nil, err
	}
	p.Migration = res
	log.Info("database ready",
		"path", loc.Path,
		"schema_version", res.To,
		"applied", len(res.Applied))

	success = true
	return p, nil
}

// ResolveDataDir returns the override directory if set, otherwise the
// per-user data directory for the identifier. It has no side effects.
func ResolveDataDir(opts Options) (string, error) {
	if opts.DataDir != "" {
		return paths.Override(opts.DataDir)
	}
	return paths.DataDir(opts.Identifier)
}

// Diagnostic formats a provisioning error for the fatal startup message,
// naming the failed stage.
func Diagnostic(err error) string {
	return fmt.Sprintf("%s: %v", apperrors.KindOf(err).Stage(), err)
}
