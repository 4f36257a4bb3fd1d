package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli"

	"threadpost/internal/app"
	"threadpost/internal/config"
)

func execute(ctx context.Context, args []string) error {
	r := &runner{ctx: ctx}
	a := cli.NewApp()
	a.Name = "threadpost"
	a.HelpName = "threadpost"
	a.Usage = "publishes a CSV content schedule to Threads"
	a.UsageText = "threadpost [--config FILE] <command> [arguments...]"
	a.Version = version
	a.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: config.DefaultPath,
			Usage: "config file (YAML or JSON)",
		},
		cli.StringFlag{
			Name:  "env-dir",
			Value: ".",
			Usage: "directory holding .env and .env.local",
		},
	}
	a.Before = r.before
	a.Action = r.run
	a.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "run the scheduler until interrupted",
			Action: r.run,
		},
		{
			Name:      "now",
			Usage:     "publish one schedule item immediately",
			ArgsUsage: "[index]",
			Action:    r.now,
		},
		{
			Name:   "batch",
			Usage:  "publish the head of the upload list at a fixed interval",
			Action: r.batch,
		},
		{
			Name:   "status",
			Usage:  "show ledger totals and upcoming items",
			Action: r.status,
		},
		{
			Name:   "config",
			Usage:  "print the effective configuration with secrets masked",
			Action: r.printConfig,
		},
		{
			Name:   "test",
			Usage:  "publish an unrecorded test post",
			Action: r.test,
		},
	}
	return a.Run(args)
}

type runner struct {
	ctx context.Context
}

func (r *runner) before(c *cli.Context) error {
	if _, err := config.LoadEnvFiles(globalString(c, "env-dir")); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

func (r *runner) options(c *cli.Context, needAPI bool) app.Options {
	return app.Options{
		ConfigPath: globalString(c, "config"),
		// Only the default path may be absent.
		AllowMissing: !c.GlobalIsSet("config") && !c.IsSet("config"),
		NeedAPI:      needAPI,
		Out:          os.Stdout,
	}
}

// with opens the app, runs fn and closes the app.
func (r *runner) with(c *cli.Context, needAPI bool, fn func(a *app.App) error) error {
	a, err := app.New(r.ctx, r.options(c, needAPI))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func (r *runner) run(c *cli.Context) error {
	if c.NArg() > 0 {
		return fmt.Errorf("unknown command %q", c.Args().First())
	}
	return r.with(c, true, func(a *app.App) error { return a.Run(r.ctx) })
}

func (r *runner) now(c *cli.Context) error {
	idx := 0
	if s := strings.TrimSpace(c.Args().First()); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return fmt.Errorf("index must be a non-negative integer, got %q", s)
		}
		idx = n
	}
	return r.with(c, true, func(a *app.App) error { return a.PostNow(r.ctx, idx) })
}

func (r *runner) batch(c *cli.Context) error {
	return r.with(c, true, func(a *app.App) error { return a.Batch(r.ctx) })
}

func (r *runner) status(c *cli.Context) error {
	return r.with(c, false, func(a *app.App) error { return a.Status(r.ctx) })
}

func (r *runner) test(c *cli.Context) error {
	return r.with(c, true, func(a *app.App) error { return a.TestPost(r.ctx) })
}

// printConfig prints before validating so a broken config can be inspected.
func (r *runner) printConfig(c *cli.Context) error {
	o := r.options(c, true)
	cfg, err := config.NewManager(o.ConfigPath, o.AllowMissing).Load()
	if err != nil {
		return err
	}
	if err := app.PrintConfig(os.Stdout, cfg); err != nil {
		return err
	}
	if err := app.ValidateConfig(cfg, true); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// globalString reads an app-level flag from either the root or a subcommand context.
func globalString(c *cli.Context, name string) string {
	if v := c.GlobalString(name); v != "" {
		return v
	}
	return c.String(name)
}
