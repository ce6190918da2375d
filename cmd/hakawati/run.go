package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hakawati/hakawati/internal/commands"
	"github.com/hakawati/hakawati/internal/host"
	"github.com/hakawati/hakawati/internal/plugins/clipboard"
	"github.com/hakawati/hakawati/internal/plugins/opener"
	"github.com/hakawati/hakawati/internal/plugins/updater"
	"github.com/hakawati/hakawati/internal/provision"
	"github.com/hakawati/hakawati/internal/store"
)

// runShell provisions the database, publishes it to the front-end and
// serves until interrupted. A provisioning failure aborts before any
// listener opens.
func (c *cli) runShell(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	browse := opener.New(nil, c.log)
	app, err := c.builder(browse).Build(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			c.log.Error("close resources", "err", err)
		}
	}()

	if c.exitAfter > 0 {
		c.log.Info("exit-after timer set", "after", c.exitAfter)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.exitAfter)
		defer cancel()
	}
	return app.Run(ctx)
}

// builder wires the shell: the provisioning hook, plugins and commands.
func (c *cli) builder(browse *opener.Plugin) *host.Builder {
	cfg := c.cfg
	b := host.NewBuilder(host.Options{
		Addr:            cfg.Host.Addr,
		AdminAddr:       cfg.Host.AdminAddr,
		PublicDir:       cfg.Host.PublicDir,
		ShutdownTimeout: cfg.Host.ShutdownTimeout,
		Version:         version.String(),
		OnReady: func(url string) {
			c.log.Info("front-end ready", "url", url)
			if !cfg.Host.OpenFrontend {
				return
			}
			if err := browse.OpenURL(url); err != nil {
				c.log.Warn("open front-end", "err", err)
			}
		},
	}, c.log)

	b.Setup(func(ctx context.Context, app *host.App) error {
		p, err := provision.Run(ctx, c.provisionOptions())
		if err != nil {
			return err
		}
		// Closed in reverse: the handle first, then the store and lock.
		if err := app.Manage("provision", p); err != nil {
			_ = p.Close()
			return fmt.Errorf("publish provisioning: %w", err)
		}
		return app.Manage(store.ResourceName(p.Location.Descriptor), p.Store.DB())
	})

	b.Plugin(clipboard.New(nil, c.log))
	b.Plugin(browse)
	b.Plugin(updater.New(updater.Options{
		Endpoint: cfg.Updater.Endpoint,
		Timeout:  cfg.Updater.Timeout,
		Current:  version.String(),
	}, c.log))

	commands.Register(b)
	return b
}

func (c *cli) runGreet(cmd *cobra.Command, args []string) error {
	_, err := fmt.Fprintln(c.stdout, commands.Greet(args[0]))
	return err
}
