// Package cmd is the gochat command tree.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Dyastin-0/gochat/client"
	"github.com/Dyastin-0/gochat/config"
	"github.com/Dyastin-0/gochat/styles"
	"github.com/urfave/cli/v3"
)

const VERSION = "0.1.0"

func New() *cli.Command {
	return &cli.Command{
		Name:    "gochat",
		Usage:   "chat and file transfer over tcp and udp",
		Version: VERSION,
		Action:  gochatAction,
		Commands: []*cli.Command{
			serveCommand(),
			chatCommand("tcp", "connect to a server over tcp"),
			chatCommand("udp", "connect to a server over udp"),
		},
	}
}

func gochatAction(ctx context.Context, cmd *cli.Command) error {
	fmt.Println(styles.TITLE.Render("gochat"))
	fmt.Println()

	return cli.ShowAppHelp(cmd)
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to a yaml config file",
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the tcp and udp servers",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "tcp-addr",
				Usage: "tcp listen address, empty disables tcp",
				Value: config.DefaultAddr,
			},
			&cli.StringFlag{
				Name:  "udp-addr",
				Usage: "udp listen address, empty disables udp",
				Value: config.DefaultAddr,
			},
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "directory to receive files to",
			},
			&cli.StringFlag{
				Name:  "udp-mode",
				Usage: "sequential or interleaved",
			},
			&cli.Int64Flag{
				Name:  "max-sessions",
				Usage: "maximum concurrent tcp sessions",
			},
			&cli.DurationFlag{
				Name:  "idle-timeout",
				Usage: "abort a transfer after this long without data",
			},
			&cli.BoolFlag{
				Name:  "progress",
				Usage: "draw a progress bar for received files",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
		},
		Action: serveAction,
	}
}

func chatCommand(network, usage string) *cli.Command {
	return &cli.Command{
		Name:  network,
		Usage: usage,
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "server address",
				Value:   "127.0.0.1" + config.DefaultAddr,
			},
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "username, prompted for when unset",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "how long to wait for each server reply",
				Value: client.DefaultReplyTimeout,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return chatAction(ctx, cmd, network)
		},
	}
}

// loadConfig reads --config and applies the flags that were set.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	if cmd.IsSet("tcp-addr") {
		cfg.TCPAddr = cmd.String("tcp-addr")
	}
	if cmd.IsSet("udp-addr") {
		cfg.UDPAddr = cmd.String("udp-addr")
	}
	if cmd.IsSet("dir") {
		cfg.Dir = cmd.String("dir")
	}
	if cmd.IsSet("udp-mode") {
		cfg.UDPMode = cmd.String("udp-mode")
	}
	if cmd.IsSet("max-sessions") {
		cfg.MaxSessions = cmd.Int64("max-sessions")
	}
	if cmd.IsSet("idle-timeout") {
		cfg.IdleTimeout = cmd.Duration("idle-timeout")
	}
	if cmd.IsSet("progress") {
		cfg.Progress = cmd.Bool("progress")
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}

	return cfg, cfg.Validate()
}

func replyTimeout(cmd *cli.Command) time.Duration {
	if d := cmd.Duration("timeout"); d > 0 {
		return d
	}
	return client.DefaultReplyTimeout
}
