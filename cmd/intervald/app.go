package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/vnykmshr/intervalflow/internal/config"
)

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "intervald"
	app.Usage = "run monitors on fixed intervals"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Value:  "intervald.yaml",
			Usage:  "path to the YAML config file",
			EnvVar: "INTERVALD_CONFIG",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "override logLevel from the config file",
		},
	}
	app.Action = run
	return app
}

func run(c *cli.Context) error {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger := newLogger(cfg, os.Stderr)

	var ln net.Listener
	if cfg.MetricsAddr != "" {
		ln, err = net.Listen("tcp", cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.MetricsAddr, err)
		}
	}

	d, err := newDaemon(cfg, &logger)
	if err != nil {
		if ln != nil {
			ln.Close()
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return d.run(ctx, path, ln)
}
