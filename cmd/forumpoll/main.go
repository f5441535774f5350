package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

var version = "dev"

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	app := cli.NewApp()
	app.Name = "forumpoll"
	app.HelpName = "forumpoll"
	app.Usage = "poll markup parser and expiry daemon for forum posts"
	app.UsageText = "forumpoll [--config FILE] <command> [arguments...]"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Usage:  "path to the config file (JSON or YAML)",
			Value:  "./config.yaml",
			EnvVar: "FORUMPOLL_CONFIG",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "run the expiry scheduler and watch the config file",
			Action: serve,
		},
		{
			Name:      "parse",
			Usage:     "print the poll extracted from a post as JSON",
			ArgsUsage: "[FILE|-]",
			Action:    parse,
		},
		{
			Name:      "strip",
			Usage:     "print a post with its poll markup removed",
			ArgsUsage: "[FILE|-]",
			Action:    strip,
		},
		{
			Name:   "close",
			Usage:  "close a poll now",
			Flags:  pollFlags,
			Action: closePoll,
		},
		{
			Name:   "show",
			Usage:  "print a stored poll, or the scheduled polls with --scheduled",
			Flags:  append([]cli.Flag{cli.BoolFlag{Name: "scheduled, s", Usage: "list polls waiting for their end time"}}, pollFlags...),
			Action: show,
		},
	}
	return app
}
