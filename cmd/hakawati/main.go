package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/maloquacious/semver"
	"github.com/spf13/cobra"

	"github.com/hakawati/hakawati/internal/config"
	apperrors "github.com/hakawati/hakawati/internal/errors"
	"github.com/hakawati/hakawati/internal/logger"
	"github.com/hakawati/hakawati/internal/provision"
)

var version = semver.Version{Minor: 1, PreRelease: "alpha", Build: semver.Commit()}

// cli holds the state shared by every sub-command.
type cli struct {
	stdout, stderr io.Writer

	configPath string
	cfg        config.Config
	log        *slog.Logger

	// flag values, applied over the loaded config when set
	identifier, dataDir, logLevel, logFormat string

	addr, adminAddr, publicDir string
	shutdownTO, exitAfter      time.Duration
	openFrontend               bool
	updateEndpoint             string
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "hakawati: %s\n", describe(err))
		os.Exit(1)
	}
}

// describe formats a fatal error. Provisioning failures name their stage.
func describe(err error) string {
	if apperrors.KindOf(err) != apperrors.KindUnknown {
		return "startup failed: " + provision.Diagnostic(err)
	}
	return err.Error()
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:           "hakawati",
		Short:         "Hakawati desktop shell",
		Long:          `Hakawati prepares the story database in the per-user data directory and serves the front-end.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load(cmd)
		},
		RunE: c.runShell,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "config file (default <user config dir>/<identifier>/config.toml)")
	pf.StringVar(&c.identifier, "identifier", config.DefaultIdentifier, "application identifier used for per-user paths")
	pf.StringVar(&c.dataDir, "data-dir", "", "absolute data directory, overriding the per-user default")
	pf.StringVar(&c.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&c.logFormat, "log-format", "text", "log format (text, json)")

	// run is also the default action of the root command
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Provision the database and serve the front-end",
		RunE:  c.runShell,
	}
	for _, cmd := range []*cobra.Command{rootCmd, runCmd} {
		f := cmd.Flags()
		f.StringVar(&c.addr, "addr", "127.0.0.1:1420", "front-end HTTP address")
		f.StringVar(&c.adminAddr, "admin-addr", "127.0.0.1:1421", "admin HTTP address (JSON, loopback only; empty disables)")
		f.StringVar(&c.publicDir, "public", "dist", "directory of front-end assets")
		f.DurationVar(&c.shutdownTO, "shutdown-timeout", 15*time.Second, "graceful shutdown timeout")
		f.DurationVar(&c.exitAfter, "exit-after", 0, "optional runtime; if set, the shell exits after this duration (testing)")
		f.BoolVar(&c.openFrontend, "open", false, "open the front-end in the default browser once listening")
		f.StringVar(&c.updateEndpoint, "update-endpoint", "", "release manifest URL for update checks")
	}

	greetCmd := &cobra.Command{
		Use:   "greet NAME",
		Short: "Print the front-end greeting for NAME",
		Args:  cobra.ExactArgs(1),
		RunE:  c.runGreet,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.stdout, "hakawati %s\n", version.String())
		},
	}

	rootCmd.AddCommand(runCmd, c.dbCmd(), greetCmd, versionCmd)
	return rootCmd
}

// load resolves the configuration: defaults, then the TOML file, then
// HAKAWATI_* variables, then any flag given on the command line.
func (c *cli) load(cmd *cobra.Command) error {
	flags := cmd.Flags()

	path := c.configPath
	if path == "" {
		p, err := config.DefaultPath(c.identifier)
		if err != nil {
			return err
		}
		path = p
	} else if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	set := func(name string, apply func()) {
		if f := flags.Lookup(name); f != nil && f.Changed {
			apply()
		}
	}
	set("identifier", func() { cfg.Identifier = c.identifier })
	set("data-dir", func() { cfg.DataDir = c.dataDir })
	set("log-level", func() { cfg.LogLevel = c.logLevel })
	set("log-format", func() { cfg.LogFormat = c.logFormat })
	set("addr", func() { cfg.Host.Addr = c.addr })
	set("admin-addr", func() { cfg.Host.AdminAddr = c.adminAddr })
	set("public", func() { cfg.Host.PublicDir = c.publicDir })
	set("shutdown-timeout", func() { cfg.Host.ShutdownTimeout = c.shutdownTO })
	set("open", func() { cfg.Host.OpenFrontend = c.openFrontend })
	set("update-endpoint", func() { cfg.Updater.Endpoint = c.updateEndpoint })

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.cfg = cfg

	c.log, err = logger.New(c.stderr, cfg.LogLevel, logger.Format(cfg.LogFormat))
	if err != nil {
		return err
	}
	c.log.Debug("configuration loaded", "path", path, "identifier", cfg.Identifier)
	return nil
}

func (c *cli) provisionOptions() provision.Options {
	return provision.Options{
		Identifier: c.cfg.Identifier,
		DataDir:    c.cfg.DataDir,
		Logger:     c.log,
	}
}
