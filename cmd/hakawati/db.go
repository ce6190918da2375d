package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hakawati/hakawati/internal/migrations"
	"github.com/hakawati/hakawati/internal/paths"
	"github.com/hakawati/hakawati/internal/provision"
	"github.com/hakawati/hakawati/internal/store"
	"github.com/hakawati/hakawati/internal/store/sqlite"
)

func (c *cli) dbCmd() *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	dbCreateCmd := &cobra.Command{
		Use:   "create",
		Short: "Create and initialize the database",
		Args:  cobra.NoArgs,
		RunE:  c.runDBCreate,
	}
	dbUpgradeCmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE:  c.runDBUpgrade,
	}
	dbVerifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Check schema version, script checksums and integrity without migrating",
		Args:  cobra.NoArgs,
		RunE:  c.runDBVerify,
	}
	dbStatusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the database location, schema version and migration history",
		Args:  cobra.NoArgs,
		RunE:  c.runDBStatus,
	}

	dbCmd.AddCommand(dbCreateCmd, dbUpgradeCmd, dbVerifyCmd, dbStatusCmd)
	return dbCmd
}

func (c *cli) runDBCreate(cmd *cobra.Command, args []string) error {
	dir, err := provision.ResolveDataDir(c.provisionOptions())
	if err != nil {
		return err
	}
	exists, err := store.CheckExists(dir)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("database already exists at %s (use db upgrade)", store.GetDBPath(dir))
	}

	p, err := provision.Run(cmd.Context(), c.provisionOptions())
	if err != nil {
		return err
	}
	defer p.Close()

	fmt.Fprintf(c.stdout, "Created %s\n", p.Location.Path)
	fmt.Fprintf(c.stdout, "Schema version: %d\n", p.Migration.To)
	return nil
}

func (c *cli) runDBUpgrade(cmd *cobra.Command, args []string) error {
	p, err := provision.Run(cmd.Context(), c.provisionOptions())
	if err != nil {
		return err
	}
	defer p.Close()

	if len(p.Migration.Applied) == 0 {
		fmt.Fprintf(c.stdout, "%s is up to date (schema version %d)\n", p.Location.Path, p.Migration.To)
		return nil
	}
	for _, v := range p.Migration.Applied {
		fmt.Fprintf(c.stdout, "  applied %03d\n", v)
	}
	fmt.Fprintf(c.stdout, "Upgraded %s from %d to %d\n", p.Location.Path, p.Migration.From, p.Migration.To)
	return nil
}

// inspect opens an existing database read-only. It holds the instance lock
// so a running shell cannot migrate underneath it.
func (c *cli) inspect(cmd *cobra.Command, fn func(s *sqlite.SQLiteStore) error) error {
	dir, err := provision.ResolveDataDir(c.provisionOptions())
	if err != nil {
		return err
	}
	exists, err := store.CheckExists(dir)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("no database at %s (run db create)", store.GetDBPath(dir))
	}

	lock, err := paths.Lock(dir)
	if err != nil {
		return err
	}
	defer lock.Release()

	loc, err := store.Locate(dir)
	if err != nil {
		return err
	}
	s := sqlite.NewReadOnly(loc, c.log)
	if err := s.Open(cmd.Context()); err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

var errVerifyFailed = errors.New("verification failed")

func (c *cli) runDBVerify(cmd *cobra.Command, args []string) error {
	ok := color.New(color.FgGreen)
	bad := color.New(color.FgRed)
	ctx := cmd.Context()
	registry := migrations.Registry()

	return c.inspect(cmd, func(s *sqlite.SQLiteStore) error {
		failed := false

		state, err := s.CheckState(ctx, migrations.Max(registry))
		if err != nil {
			return err
		}
		if state == store.StateReady {
			ok.Fprintf(c.stdout, "  ✓ schema %s\n", state)
		} else {
			bad.Fprintf(c.stdout, "  ✗ schema %s\n", state)
			failed = true
		}

		if err := s.VerifyChecksums(ctx, registry); err != nil {
			bad.Fprintf(c.stdout, "  ✗ %v\n", err)
			failed = true
		} else {
			ok.Fprintln(c.stdout, "  ✓ migration checksums match")
		}

		result, err := s.IntegrityCheck(ctx)
		if err != nil {
			return err
		}
		if result == "ok" {
			ok.Fprintln(c.stdout, "  ✓ integrity check passed")
		} else {
			bad.Fprintf(c.stdout, "  ✗ integrity check: %s\n", result)
			failed = true
		}

		if failed {
			return errVerifyFailed
		}
		return nil
	})
}

func (c *cli) runDBStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	registry := migrations.Registry()

	return c.inspect(cmd, func(s *sqlite.SQLiteStore) error {
		version, err := s.GetSchemaVersion(ctx)
		if err != nil {
			return err
		}
		state, err := s.CheckState(ctx, migrations.Max(registry))
		if err != nil {
			return err
		}
		applied, err := s.AppliedMigrations(ctx)
		if err != nil {
			return err
		}

		size := "unknown size"
		if info, err := os.Stat(s.Location().Path); err == nil {
			size = humanize.IBytes(uint64(info.Size()))
		}
		fmt.Fprintf(c.stdout, "Database:   %s (%s)\n", s.Location().Path, size)
		fmt.Fprintf(c.stdout, "Descriptor: %s\n", s.Location().Descriptor)
		fmt.Fprintf(c.stdout, "Schema:     %d of %d ", version, migrations.Max(registry))
		switch state {
		case store.StateReady:
			color.New(color.FgGreen).Fprintf(c.stdout, "(%s)\n", state)
		case store.StateAhead:
			color.New(color.FgRed).Fprintf(c.stdout, "(%s)\n", state)
		default:
			color.New(color.FgYellow).Fprintf(c.stdout, "(%s)\n", state)
		}

		fmt.Fprintln(c.stdout, "History:")
		for _, m := range applied {
			fmt.Fprintf(c.stdout, "  %03d  %-24s  %-16s  %s\n", m.Version, m.Description, humanize.Time(m.AppliedAt), shortSum(m.Checksum))
		}
		return nil
	})
}

func shortSum(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
